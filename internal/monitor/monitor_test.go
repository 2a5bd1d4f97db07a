package monitor

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"
	"github.com/pion/transport/vnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saintparish4/relay/internal/allocation"
	"github.com/saintparish4/relay/internal/relay"
)

var testLoggerFactory = logging.NewDefaultLoggerFactory()

func newTestSetup(t *testing.T) (*allocation.Manager, *Server, *httptest.Server) {
	t.Helper()

	var srv *Server
	manager, err := allocation.NewManager(allocation.ManagerConfig{
		LeveledLogger: testLoggerFactory.NewLogger("test"),
		AddressGenerator: &relay.None{
			Address: "127.0.0.1",
			Net:     vnet.NewNet(nil),
		},
		OnEvent: func(e allocation.Event) {
			srv.HandleEvent(e)
		},
	})
	require.NoError(t, err)

	srv = NewServer(Config{
		Addr:          "127.0.0.1:0",
		LeveledLogger: testLoggerFactory.NewLogger("monitor"),
	}, manager)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = manager.Close() })

	return manager, srv, ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestEventStream(t *testing.T) {
	manager, srv, ts := newTestSetup(t)

	conn := dialWS(t, ts)

	require.Eventually(t, func() bool {
		return srv.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	turnSocket, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	fiveTuple := &allocation.FiveTuple{
		SrcAddr: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5000},
		DstAddr: turnSocket.LocalAddr(),
	}
	_, err = manager.CreateAllocation(fiveTuple, turnSocket, 0, allocation.DefaultLifetime, "user")
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var we wireEvent
	require.NoError(t, json.Unmarshal(payload, &we))
	assert.Equal(t, string(allocation.EventAllocationCreated), we.Type)
	assert.Equal(t, "user", we.Username)
	assert.NotEmpty(t, we.RelayAddr)
	assert.NotEmpty(t, we.FiveTuple)

	manager.DeleteAllocation(fiveTuple)

	_, payload, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &we))
	assert.Equal(t, string(allocation.EventAllocationRemoved), we.Type)
}

func TestSubscriberDisconnect(t *testing.T) {
	_, srv, ts := newTestSetup(t)

	conn := dialWS(t, ts)
	require.Eventually(t, func() bool {
		return srv.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return srv.SubscriberCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestStatsEndpoint(t *testing.T) {
	manager, _, ts := newTestSetup(t)

	turnSocket, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	fiveTuple := &allocation.FiveTuple{
		SrcAddr: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5001},
		DstAddr: turnSocket.LocalAddr(),
	}
	_, err = manager.CreateAllocation(fiveTuple, turnSocket, 0, allocation.DefaultLifetime, "user")
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.EqualValues(t, 1, body["allocations"])

	// stats is read-only
	postResp, err := http.Post(ts.URL+"/api/stats", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = postResp.Body.Close() }()
	assert.Equal(t, http.StatusMethodNotAllowed, postResp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	_, _, ts := newTestSetup(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
