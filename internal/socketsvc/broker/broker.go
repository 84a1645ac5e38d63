package broker

import (
	"encoding/json"

	"github.com/avvvet/card-relay/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Topic is the subject card events are shared on between relay instances.
const Topic = "card.reader"

type Broker struct {
	Conn       *nats.Conn
	InstanceId string
	Deliver    func(*comm.WSMessage) error
}

func NewBroker(conn *nats.Conn, instanceId string, fncDeliver func(*comm.WSMessage) error) *Broker {
	return &Broker{
		Conn:       conn,
		InstanceId: instanceId,
		Deliver:    fncDeliver,
	}
}

// consume events emitted by other relay instances
func (b *Broker) Subscribe(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// PublishEvent shares a locally emitted event with the other instances.
func (b *Broker) PublishEvent(m *comm.WSMessage) error {
	payload, err := json.Marshal(comm.RelayEnvelope{
		InstanceId: b.InstanceId,
		Type:       m.Type,
		Data:       m.Data,
	})
	if err != nil {
		return err
	}

	return b.Publish(Topic, payload)
}

func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}

// handleMessages relays events from other instances to local subscribers.
// Our own publications come back on the same subject and are dropped, they
// were delivered locally already.
func (b *Broker) handleMessages(msgNats *nats.Msg) {
	env := comm.RelayEnvelope{}
	if err := json.Unmarshal(msgNats.Data, &env); err != nil {
		log.Errorf("Error decoding relay envelope: %s", err)
		return
	}

	if env.InstanceId == b.InstanceId {
		return
	}

	switch env.Type {
	case comm.EventCardData:
		if err := b.Deliver(&comm.WSMessage{Type: env.Type, Data: env.Data}); err != nil {
			log.Errorf("Error delivering %s from instance %s: %s", env.Type, env.InstanceId, err)
		}
	default:
		log.Warnf("Unknown relay event %q from instance %s", env.Type, env.InstanceId)
	}
}
