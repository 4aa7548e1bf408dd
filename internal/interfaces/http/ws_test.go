package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraudlens/fraudlens/internal/stream"
)

func dialHub(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	require.NoError(t, err, "websocket upgrade must succeed")
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.clients) == want
	}, 2*time.Second, 5*time.Millisecond, "client registration must complete")
}

func TestHub_BroadcastReachesClient(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	t.Cleanup(hub.Close)

	srv := httptest.NewServer(http.HandlerFunc(hub.Subscribe))
	t.Cleanup(srv.Close)

	conn := dialHub(t, srv.URL)
	waitForClients(t, hub, 1)

	hub.Broadcast([]byte(`{"hello":"feed"}`))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"feed"}`, string(payload))
}

func TestHub_FeedHandlerLabelsEnvelopes(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	t.Cleanup(hub.Close)

	srv := httptest.NewServer(http.HandlerFunc(hub.Subscribe))
	t.Cleanup(srv.Close)

	conn := dialHub(t, srv.URL)
	waitForClients(t, hub, 1)

	handler := hub.FeedHandler(stream.TopicFraudAlerts)
	require.NoError(t, handler(context.Background(), &stream.Message{
		Key:     "CUST-001",
		Payload: []byte(`{"type":"AI_FRAUD_ALERT","transactionId":"TXN-9"}`),
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame FeedMessage
	require.NoError(t, json.Unmarshal(payload, &frame))
	assert.Equal(t, stream.TopicFraudAlerts, frame.Topic)
	assert.Equal(t, "CUST-001", frame.Key)
	assert.JSONEq(t, `{"type":"AI_FRAUD_ALERT","transactionId":"TXN-9"}`, string(frame.Payload))
}

func TestHub_CloseIsIdempotentAndSilencesBroadcast(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	hub.Close()
	hub.Close()
	hub.Broadcast([]byte("after close"))
}

func TestServer_StreamEndpointUpgradesThroughMiddleware(t *testing.T) {
	server := newTestServer(t, approveResponse, nil, nil)
	go server.hub.Run()
	t.Cleanup(server.hub.Close)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	conn := dialHub(t, srv.URL+"/api/fraud-detection/stream")
	waitForClients(t, server.hub, 1)

	server.hub.Broadcast([]byte(`{"topic":"fraud-alerts"}`))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"topic":"fraud-alerts"}`, string(payload))
}
