package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// Listener is one HTTP server with its own start and stop.
type Listener struct {
	Name   string
	server *http.Server
	ln     net.Listener
}

func NewListener(name, addr string, handler http.Handler) *Listener {
	return &Listener{
		Name: name,
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start binds the address and serves in the background. The returned channel
// receives a serve error, or is closed once the listener has been shut down.
func (l *Listener) Start() (<-chan error, error) {
	ln, err := net.Listen("tcp", l.server.Addr)
	if err != nil {
		return nil, err
	}
	l.ln = ln

	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	log.Infof("%s listener running at %s", l.Name, ln.Addr())
	return errc, nil
}

// Addr is the bound address, useful when started on port 0.
func (l *Listener) Addr() string {
	if l.ln == nil {
		return l.server.Addr
	}
	return l.ln.Addr().String()
}

// Shutdown stops accepting connections and waits for in-flight requests.
// Hijacked connections (websockets) are not tracked here.
func (l *Listener) Shutdown(ctx context.Context) error {
	if err := l.server.Shutdown(ctx); err != nil {
		return err
	}
	log.Infof("%s listener stopped", l.Name)
	return nil
}
