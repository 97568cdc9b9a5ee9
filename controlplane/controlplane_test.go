package controlplane

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timeoutCh(t *testing.T) <-chan time.Time {
	t.Helper()
	return time.After(2 * time.Second)
}

func TestHandshakeAndEcho(t *testing.T) {
	shutdownCalled := make(chan struct{}, 1)
	srv := NewServer(func(s *Session) {
		s.Register("echo", func(params json.RawMessage) (interface{}, error) {
			var m map[string]string
			if err := json.Unmarshal(params, &m); err != nil {
				return nil, err
			}
			return m, nil
		})
	}, func() { shutdownCalled <- struct{}{} })

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/connect"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(handshakeConnectPrefix+ProtocolVersion)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(msg), handshakeAcceptPrefix))

	req := Request{Syn: 1, Method: "echo", Params: json.RawMessage(`{"hello":"world"}`)}
	require.NoError(t, conn.WriteJSON(req))

	var resp Response
	require.NoError(t, conn.ReadJSON(&resp))
	assert.EqualValues(t, 1, resp.Syn)
	assert.Nil(t, resp.Error)

	var result map[string]string
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "world", result["hello"])
}

func TestSemverCompatibility(t *testing.T) {
	one0, err := parseSemver("1.0.0")
	require.NoError(t, err)
	one5, err := parseSemver("1.5.2")
	require.NoError(t, err)
	two0, err := parseSemver("2.0.0")
	require.NoError(t, err)
	zero1, err := parseSemver("0.1.0")
	require.NoError(t, err)
	zero2, err := parseSemver("0.2.0")
	require.NoError(t, err)

	assert.True(t, one0.compatible(one5), "same MAJOR, different MINOR/PATCH is compatible once MAJOR>=1")
	assert.False(t, one0.compatible(two0), "different MAJOR is never compatible")
	assert.False(t, zero1.compatible(zero2), "while MAJOR==0, MINOR must match too")
	assert.True(t, zero1.compatible(zero1), "identical 0.x versions are compatible")

	_, err = parseSemver("not-a-version")
	assert.Error(t, err)
}

func TestHandshakeRejectsIncompatibleMajorVersion(t *testing.T) {
	srv := NewServer(func(s *Session) {}, func() {})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/connect"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(handshakeConnectPrefix+"2.0.0")))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(msg), handshakeRejectPrefix), "an incompatible MAJOR version must be rejected, not accepted")
}

func TestHandshakeAcceptsMatchingMajorDifferentPatch(t *testing.T) {
	srv := NewServer(func(s *Session) {}, func() {})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/connect"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(handshakeConnectPrefix+"1.0.9")))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(msg), handshakeAcceptPrefix), "same MAJOR with a different PATCH must be accepted")
}

func TestUnknownMethodReturnsError(t *testing.T) {
	srv := NewServer(func(s *Session) {}, func() {})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/connect"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(handshakeConnectPrefix+ProtocolVersion)))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(Request{Syn: 7, Method: "nope"}))
	var resp Response
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NotImplemented", resp.Error.Kind)
}

func TestShutdownEndpointTriggersCallback(t *testing.T) {
	called := make(chan struct{}, 1)
	srv := NewServer(func(s *Session) {}, func() { called <- struct{}{} })
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/shutdown")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 202, resp.StatusCode)

	select {
	case <-called:
	case <-timeoutCh(t):
		t.Fatal("shutdown callback was not invoked")
	}
}
