package controlplane

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/winmount/winmount/internal/wlog"
	"github.com/winmount/winmount/vfserrors"
)

// semver is a parsed "X.Y.Z" version string.
type semver struct {
	major, minor, patch int
}

func parseSemver(s string) (semver, error) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 3 {
		return semver{}, fmt.Errorf("controlplane: malformed version %q", s)
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	patch, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return semver{}, fmt.Errorf("controlplane: malformed version %q", s)
	}
	return semver{major, minor, patch}, nil
}

// compatible implements §6's handshake rule: MAJOR must match, and while
// MAJOR==0 (pre-1.0, still-unstable wire format) MINOR must match too.
func (v semver) compatible(other semver) bool {
	if v.major != other.major {
		return false
	}
	if v.major == 0 && v.minor != other.minor {
		return false
	}
	return true
}

// Handler answers one Request's method call. It returns a JSON-encodable
// result, or an error (ideally a *vfserrors.Error so the Kind survives the
// wire).
type Handler func(params json.RawMessage) (interface{}, error)

// Session is one accepted WebSocket connection: the connect/accept
// handshake has already completed by the time Handshake returns it.
type Session struct {
	conn     *websocket.Conn
	handlers map[string]Handler

	writeMu sync.Mutex
}

// Handshake performs the connect/accept/reject exchange of §6: the client
// sends "WinMount connect vX.Y.Z" as the first text frame, and the server
// replies with "WinMount accept vX.Y.Z" if the client's declared version is
// compatible (MAJOR equal, and MINOR equal too while MAJOR==0), or
// "WinMount reject vX.Y.Z" followed by closing the connection.
func Handshake(conn *websocket.Conn) (*Session, error) {
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if len(msg) < len(handshakeConnectPrefix) || string(msg[:len(handshakeConnectPrefix)]) != handshakeConnectPrefix {
		conn.WriteMessage(websocket.TextMessage, []byte(handshakeRejectPrefix+ProtocolVersion))
		conn.Close()
		return nil, fmt.Errorf("controlplane: malformed handshake line %q", msg)
	}

	clientVersionStr := string(msg[len(handshakeConnectPrefix):])
	clientVersion, parseErr := parseSemver(clientVersionStr)
	serverVersion, _ := parseSemver(ProtocolVersion)
	if parseErr != nil || !clientVersion.compatible(serverVersion) {
		conn.WriteMessage(websocket.TextMessage, []byte(handshakeRejectPrefix+ProtocolVersion))
		conn.Close()
		return nil, fmt.Errorf("controlplane: incompatible client version %q", clientVersionStr)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(handshakeAcceptPrefix+ProtocolVersion)); err != nil {
		return nil, err
	}

	return &Session{conn: conn, handlers: map[string]Handler{}}, nil
}

// Register installs a handler for method, to be called for every incoming
// Request naming it.
func (s *Session) Register(method string, h Handler) {
	s.handlers[method] = h
}

// Serve reads Requests until the connection closes, dispatching each to
// its registered Handler and writing back a Response. One session serves
// requests sequentially, matching the teacher's single-threaded control
// surface assumption (§9's "held by the control plane" note); handlers
// that need to block on long filesystem operations should do so in their
// own goroutine and push an Event on completion via Push.
func (s *Session) Serve() {
	for {
		var req Request
		if err := s.conn.ReadJSON(&req); err != nil {
			wlog.L().WithError(err).Debug("controlplane session closed")
			return
		}
		s.dispatch(req)
	}
}

func (s *Session) dispatch(req Request) {
	h, ok := s.handlers[req.Method]
	if !ok {
		s.writeResponse(Response{Syn: req.Syn, Error: &ErrorPayload{Kind: "NotImplemented", Message: "unknown method: " + req.Method}})
		return
	}

	result, err := h(req.Params)
	if err != nil {
		s.writeResponse(Response{Syn: req.Syn, Error: toErrorPayload(err)})
		return
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		s.writeResponse(Response{Syn: req.Syn, Error: &ErrorPayload{Kind: "Other", Message: err.Error()}})
		return
	}
	s.writeResponse(Response{Syn: req.Syn, Result: encoded})
}

func toErrorPayload(err error) *ErrorPayload {
	if ve, ok := err.(*vfserrors.Error); ok {
		return &ErrorPayload{Kind: ve.Kind.String(), Message: ve.Message}
	}
	return &ErrorPayload{Kind: "Other", Message: err.Error()}
}

func (s *Session) writeResponse(resp Response) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(resp); err != nil {
		wlog.L().WithError(err).Debug("controlplane write failed")
	}
}

// Push sends an unsolicited Event on the subscription identified by syn.
func (s *Session) Push(syn uint64, topic string, payload interface{}) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(Event{Syn: syn, Topic: topic, Payload: encoded})
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}
