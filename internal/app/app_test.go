package app

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	config "github.com/avvvet/card-relay/configs"
	"github.com/avvvet/card-relay/internal/comm"
	"github.com/avvvet/card-relay/internal/ingress"
	"github.com/avvvet/card-relay/internal/socketsvc/ws"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relay struct {
	hub    *ws.Ws
	main   *httptest.Server
	socket *httptest.Server
}

func newRelay(t *testing.T) *relay {
	t.Helper()
	cfg := config.Config{SocketPort: "4014", RateLimit: 1000, APIToken: "api"}
	hub := ws.NewWs()

	mainRouter, err := NewMainRouter(cfg, hub, nil)
	require.NoError(t, err)

	r := &relay{
		hub:    hub,
		main:   httptest.NewServer(mainRouter),
		socket: httptest.NewServer(NewSocketRouter(cfg, hub)),
	}
	t.Cleanup(func() {
		hub.CloseAll()
		r.main.Close()
		r.socket.Close()
	})
	return r
}

func (r *relay) subscribe(t *testing.T, origin string) *websocket.Conn {
	t.Helper()
	want := r.hub.Count() + 1

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(r.socket.URL, "http")+"/ws", header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return r.hub.Count() == want }, time.Second, 5*time.Millisecond)
	return conn
}

func (r *relay) post(t *testing.T, body string) string {
	t.Helper()
	resp, err := http.Post(r.main.URL+ingress.CardReadPath, "text/html", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func readCard(t *testing.T, conn *websocket.Conn) comm.CardData {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg comm.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, comm.EventCardData, msg.Type)

	var card comm.CardData
	require.NoError(t, json.Unmarshal(msg.Data, &card))
	return card
}

func expectNothing(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestCardReadReachesEverySubscriber(t *testing.T) {
	r := newRelay(t)
	a := r.subscribe(t, "")
	b := r.subscribe(t, "http://localhost:5173")

	assert.Equal(t, ingress.CodeSuccess, r.post(t, "vgdecoderesult=4111111111111111&&devicenumber=7"))

	assert.Equal(t, comm.CardData{CardData: "4111111111111111"}, readCard(t, a))
	assert.Equal(t, comm.CardData{CardData: "4111111111111111"}, readCard(t, b))
	expectNothing(t, a)
}

func TestRejectedCardReadEmitsNothing(t *testing.T) {
	r := newRelay(t)
	conn := r.subscribe(t, "")

	assert.Equal(t, ingress.CodeFailure, r.post(t, "devicenumber=7"))
	assert.Equal(t, ingress.CodeFailure, r.post(t, "vgdecoderesult=&&devicenumber=7"))
	expectNothing(t, conn)
}

func TestLateSubscriberMissesPastEvents(t *testing.T) {
	r := newRelay(t)
	early := r.subscribe(t, "")

	require.Equal(t, ingress.CodeSuccess, r.post(t, "vgdecoderesult=first&&devicenumber=1"))
	assert.Equal(t, "first", readCard(t, early).CardData)

	// the first message a late subscriber sees is the next read, never a past one
	late := r.subscribe(t, "")
	require.Equal(t, ingress.CodeSuccess, r.post(t, "vgdecoderesult=second&&devicenumber=1"))
	assert.Equal(t, "second", readCard(t, late).CardData)
	assert.Equal(t, "second", readCard(t, early).CardData)
}

func TestEventsKeepPostOrder(t *testing.T) {
	r := newRelay(t)
	conn := r.subscribe(t, "")

	tokens := []string{"1", "2", "3", "4", "5"}
	for _, tok := range tokens {
		require.Equal(t, ingress.CodeSuccess, r.post(t, "vgdecoderesult="+tok+"&&devicenumber=1"))
	}
	for _, tok := range tokens {
		assert.Equal(t, tok, readCard(t, conn).CardData)
	}
}

func TestForeignOriginRefused(t *testing.T) {
	r := newRelay(t)

	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(r.socket.URL, "http")+"/ws", header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, r.hub.Count())
}

func TestSocketHealthNeedsAPIToken(t *testing.T) {
	r := newRelay(t)
	r.subscribe(t, "")

	resp, err := http.Get(r.socket.URL + "/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, r.socket.URL+"/v1/health", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer api")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Data["subscribers"])
}

func TestShutdownClosesSubscribers(t *testing.T) {
	cfg := config.Config{ServerPort: "0", SocketPort: "0", RateLimit: 1000}
	hub := ws.NewWs()
	a, err := New(cfg, hub, nil)
	require.NoError(t, err)

	errc, err := a.Start()
	require.NoError(t, err)

	_, port, err := net.SplitHostPort(a.Socket.Addr())
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:"+port+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Zero(t, hub.Count())
	assert.ErrorIs(t, hub.Emit(comm.EventCardData, comm.CardData{CardData: "x"}), ws.ErrClosed)

	for err := range errc {
		t.Fatalf("unexpected serve error: %v", err)
	}
}

func TestCardReadsBypassRateLimit(t *testing.T) {
	cfg := config.Config{SocketPort: "4014", RateLimit: 3}
	mainRouter, err := NewMainRouter(cfg, ws.NewWs(), nil)
	require.NoError(t, err)
	srv := httptest.NewServer(mainRouter)
	defer srv.Close()

	for i := 0; i < 10; i++ {
		resp, err := http.Post(srv.URL+ingress.CardReadPath, "text/html", strings.NewReader("vgdecoderesult=41&&devicenumber=7"))
		require.NoError(t, err)
		b, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, "read %d", i)
		assert.Equal(t, ingress.CodeSuccess, string(b))
	}

	// pages still share the per-IP limit
	statuses := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		resp, err := http.Get(srv.URL + "/")
		require.NoError(t, err)
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}
	assert.Contains(t, statuses, http.StatusTooManyRequests)
}

func TestOwnPageOriginFollowsServerPort(t *testing.T) {
	cfg := config.Config{ServerPort: "8088", SocketPort: "4014", RateLimit: 1000}
	hub := ws.NewWs()
	srv := httptest.NewServer(NewSocketRouter(cfg, hub))
	defer srv.Close()
	defer hub.CloseAll()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://localhost:8088"}})
	require.NoError(t, err)
	conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://localhost:4030"}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
