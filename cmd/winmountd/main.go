// Command winmountd is the composable filesystem daemon: it loads persisted
// filesystem/server declarations, declares every listed filesystem with the
// registry without starting it (server declarations are not acted on), and
// serves the control plane over WebSocket, per spec §6.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/winmount/winmount/config"
	"github.com/winmount/winmount/controlplane"
	"github.com/winmount/winmount/internal/wlog"
	"github.com/winmount/winmount/providers"
	"github.com/winmount/winmount/registry"
)

func main() {
	configPath := flag.String("config", "winmount.json", "path to the persisted filesystem/server declarations")
	listenAddr := flag.String("listen", "127.0.0.1:14910", "control plane listen address")
	flag.Parse()

	reg := registry.New()
	providers.RegisterAll(reg)

	doc, err := config.Load(*configPath)
	if err != nil {
		wlog.L().WithError(err).Fatal("failed to load config")
	}

	for _, decl := range doc.Filesystems {
		reg.CreateFS(decl.Name, decl.KindID, decl.Config)
	}

	srv := controlplane.NewServer(registerMethods(reg), func() { os.Exit(0) })

	httpServer := &http.Server{Addr: *listenAddr, Handler: srv.Handler()}

	go func() {
		wlog.L().WithField("addr", *listenAddr).Info("control plane listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			wlog.L().WithError(err).Fatal("control plane server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	wlog.L().Info("shutting down")
	httpServer.Shutdown(context.Background())
}

// registerMethods builds the SessionFactory that exposes the registry's
// lifecycle operations over the control plane, per §6.
func registerMethods(reg *registry.Registry) controlplane.SessionFactory {
	return func(s *controlplane.Session) {
		s.Register("list_fs", func(params json.RawMessage) (interface{}, error) {
			return reg.ListFS(), nil
		})

		s.Register("start_fs", func(params json.RawMessage) (interface{}, error) {
			var req struct {
				ID registry.UUID `json:"id"`
			}
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, err
			}
			started, err := reg.StartFS(context.Background(), req.ID)
			if err != nil {
				return nil, err
			}
			return map[string]bool{"started": started}, nil
		})

		s.Register("stop_fs", func(params json.RawMessage) (interface{}, error) {
			var req struct {
				ID registry.UUID `json:"id"`
			}
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, err
			}
			if err := reg.StopFS(req.ID); err != nil {
				return nil, err
			}
			return map[string]bool{"stopped": true}, nil
		})

		s.Register("create_fs", func(params json.RawMessage) (interface{}, error) {
			var req struct {
				Name   string          `json:"name"`
				KindID registry.UUID   `json:"kind_id"`
				Config json.RawMessage `json:"config"`
			}
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, err
			}
			id := reg.CreateFS(req.Name, req.KindID, req.Config)
			return map[string]registry.UUID{"id": id}, nil
		})

		s.Register("remove_fs", func(params json.RawMessage) (interface{}, error) {
			var req struct {
				ID registry.UUID `json:"id"`
			}
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, err
			}
			if err := reg.RemoveFS(req.ID); err != nil {
				return nil, err
			}
			return map[string]bool{"removed": true}, nil
		})
	}
}
