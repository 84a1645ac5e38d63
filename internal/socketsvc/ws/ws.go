package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/avvvet/card-relay/internal/comm"
	"github.com/avvvet/card-relay/internal/socketsvc/broker"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait = 5 * time.Second
	// sendBuffer is how many events a subscriber may lag behind before it is
	// dropped.
	sendBuffer = 16
)

var ErrClosed = errors.New("ws: hub closed")

// client owns one subscriber. Only its write pump writes to conn; the send
// channel is sent on and closed under the hub's emitMtx.
type client struct {
	conn      *websocket.Conn
	send      chan *comm.WSMessage
	closeCode int
	closeText string
}

func (c *client) stop(code int, text string) {
	c.closeCode = code
	c.closeText = text
	close(c.send)
}

type Ws struct {
	connMap sync.Map // to keep track of socket connection with socketId
	emitMtx sync.Mutex
	closed  bool
	pumps   sync.WaitGroup
	Broker  *broker.Broker
}

func NewWs() *Ws {
	return &Ws{}
}

// Emit delivers payload as event to every subscriber connected right now and
// hands it to the broker for other relay instances.
func (s *Ws) Emit(event string, payload any) error {
	msg, err := comm.NewWSMessage(event, payload)
	if err != nil {
		return err
	}

	if err := s.Broadcast(msg); err != nil {
		return err
	}

	if s.Broker != nil {
		if err := s.Broker.PublishEvent(msg); err != nil {
			log.Errorf("Failed to relay %s to other instances: %v", event, err)
		}
	}
	return nil
}

// Broadcast queues msg for local subscribers only. Calls are serialized so
// subscribers observe events in call order. A subscriber whose queue is full
// is dropped rather than holding up the caller.
func (s *Ws) Broadcast(msg *comm.WSMessage) error {
	s.emitMtx.Lock()
	defer s.emitMtx.Unlock()

	if s.closed {
		return ErrClosed
	}

	sent := 0
	s.connMap.Range(func(key, value any) bool {
		socketId := key.(string)
		c := value.(*client)
		select {
		case c.send <- msg:
			sent++
		default:
			log.Warnf("dropping socket %s, %d events behind", socketId, sendBuffer)
			s.connMap.Delete(socketId)
			c.stop(websocket.ClosePolicyViolation, "subscriber too slow")
		}
		return true
	})

	log.Debugf("event %s queued for %d subscribers", msg.Type, sent)
	return nil
}

func (s *Ws) StoreConnection(socketId string, conn *websocket.Conn) error {
	s.emitMtx.Lock()
	defer s.emitMtx.Unlock()
	if s.closed {
		return ErrClosed
	}

	c := &client{conn: conn, send: make(chan *comm.WSMessage, sendBuffer)}
	s.connMap.Store(socketId, c)
	s.pumps.Add(1)
	go s.writePump(socketId, c)
	return nil
}

// writePump writes queued events until the client is stopped, then says
// goodbye with the close code it was stopped with.
func (s *Ws) writePump(socketId string, c *client) {
	defer s.pumps.Done()
	defer c.conn.Close()

	failed := false
	for msg := range c.send {
		if failed {
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			// closing the conn ends the read loop, which disconnects the socket
			log.Warnf("write to socket %s failed: %v", socketId, err)
			failed = true
			c.conn.Close()
		}
	}

	if !failed {
		frame := websocket.FormatCloseMessage(c.closeCode, c.closeText)
		c.conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(time.Second))
	}
}

func (s *Ws) GetConnection(socketId string) (*websocket.Conn, bool) {
	c, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return c.(*client).conn, true
}

func (s *Ws) HandleDisconnect(socketId string) {
	s.emitMtx.Lock()
	defer s.emitMtx.Unlock()

	if c, ok := s.connMap.LoadAndDelete(socketId); ok {
		c.(*client).stop(websocket.CloseNormalClosure, "")
		log.Infof("socket %s removed from subscribers", socketId)
	}
}

// Count returns the number of live subscribers.
func (s *Ws) Count() int {
	count := 0
	s.connMap.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

// CloseAll sends a going-away close frame to every subscriber, refuses new
// ones and waits for the writers to finish.
func (s *Ws) CloseAll() {
	s.emitMtx.Lock()
	s.closed = true
	s.connMap.Range(func(key, value any) bool {
		value.(*client).stop(websocket.CloseGoingAway, "server shutting down")
		s.connMap.Delete(key)
		return true
	})
	s.emitMtx.Unlock()

	s.pumps.Wait()
}
