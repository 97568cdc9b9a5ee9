// Package controlplane is the daemon's control surface of §6: a
// WebSocket session protocol for request/response and push
// subscriptions, wired through gorilla/websocket, plus the HTTP shutdown
// endpoint. The wire protocol is specified only at interface level — this
// package fixes one concrete encoding of it.
package controlplane

import "encoding/json"

// ProtocolVersion is the version string exchanged in the connect/accept
// handshake line.
const ProtocolVersion = "1.0.0"

const (
	handshakeConnectPrefix = "WinMount connect v"
	handshakeAcceptPrefix  = "WinMount accept v"
	handshakeRejectPrefix  = "WinMount reject v"
)

// Request is one client-to-server call, correlated to its Response by Syn.
type Request struct {
	Syn    uint64          `json:"syn"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers a Request with the same Syn. Exactly one of Result or
// Error is set.
type Response struct {
	Syn    uint64          `json:"syn"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorPayload   `json:"error,omitempty"`
}

// Event is an unsolicited server-to-client push delivered against a
// subscription started by some earlier Request — its Syn is the
// subscribing request's Syn, not a new sequence number, so the client can
// route events back to the subscription that asked for them.
type Event struct {
	Syn     uint64          `json:"syn"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorPayload mirrors vfserrors.Error across the wire: a stable kind name
// plus a human message, never a Go error value.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
