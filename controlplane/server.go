package controlplane

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/winmount/winmount/internal/wlog"
)

// SessionFactory builds and registers handlers on a freshly-handshaken
// Session; it's invoked once per accepted connection.
type SessionFactory func(s *Session)

// Server is the daemon's control-plane HTTP endpoint: one upgradeable
// WebSocket route plus the /api/shutdown trigger of §6.
type Server struct {
	upgrader websocket.Upgrader
	factory  SessionFactory

	mu       sync.Mutex
	sessions map[*Session]struct{}
	shutdown func()
}

// NewServer builds a Server. factory is called for every newly accepted
// session to register its method handlers; shutdown is invoked once when
// /api/shutdown is requested.
func NewServer(factory SessionFactory, shutdown func()) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The control plane is a local daemon surface, not a public web
			// API: any origin is accepted, matching the teacher's assumption
			// that CORS is a deployment-specific mount-adapter concern.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		factory:  factory,
		sessions: map[*Session]struct{}{},
		shutdown: shutdown,
	}
}

// Handler returns the net/http.Handler serving both routes.
func (srv *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/connect", srv.handleConnect)
	mux.HandleFunc("/api/shutdown", srv.handleShutdown)
	return mux
}

func (srv *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wlog.L().WithError(err).Warn("controlplane upgrade failed")
		return
	}

	session, err := Handshake(conn)
	if err != nil {
		wlog.L().WithError(err).Warn("controlplane handshake failed")
		return
	}

	srv.mu.Lock()
	srv.sessions[session] = struct{}{}
	srv.mu.Unlock()

	srv.factory(session)
	session.Serve()

	srv.mu.Lock()
	delete(srv.sessions, session)
	srv.mu.Unlock()
}

func (srv *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusAccepted)
	if srv.shutdown != nil {
		go srv.shutdown()
	}
}
