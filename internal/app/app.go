// Package app composes the relay: the main listener (pages and card reads)
// and the socket listener (subscribers), sharing one broadcast hub.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	config "github.com/avvvet/card-relay/configs"
	"github.com/avvvet/card-relay/internal/auth"
	"github.com/avvvet/card-relay/internal/ingress"
	"github.com/avvvet/card-relay/internal/server"
	"github.com/avvvet/card-relay/internal/socketsvc/routes"
	"github.com/avvvet/card-relay/internal/socketsvc/ws"
	"github.com/avvvet/card-relay/internal/web"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	log "github.com/sirupsen/logrus"
)

type App struct {
	Hub    *ws.Ws
	Main   *server.Listener
	Socket *server.Listener
}

// New wires both listeners. credentials may be nil, in which case the login
// routes are not mounted.
func New(cfg config.Config, hub *ws.Ws, credentials auth.CredentialStore) (*App, error) {
	mainRouter, err := NewMainRouter(cfg, hub, credentials)
	if err != nil {
		return nil, err
	}

	return &App{
		Hub:    hub,
		Main:   server.NewListener("main", ":"+cfg.ServerPort, mainRouter),
		Socket: server.NewListener("socket", ":"+cfg.SocketPort, NewSocketRouter(cfg, hub)),
	}, nil
}

func baseMiddleware(r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
}

// rateLimit protects the service api from over requests.
func rateLimit(r chi.Router, limit int) {
	r.Use(httprate.LimitByIP(limit, 1*time.Minute))
}

// NewMainRouter serves card reads and pages. Card reads sit outside the rate
// limiter: a reader must always get a 200 with a code= reply.
func NewMainRouter(cfg config.Config, emitter ingress.Emitter, credentials auth.CredentialStore) (http.Handler, error) {
	r := chi.NewRouter()
	baseMiddleware(r)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(config.CORS().Handler)

	ingress.NewHandler(emitter).SetRoutes(r)

	pages, err := web.NewHandler(web.Page{
		Title:       "Card Reader Relay",
		IngressPath: ingress.CardReadPath,
		SocketPort:  cfg.SocketPort,
	})
	if err != nil {
		return nil, err
	}

	var j *auth.JWT
	if credentials != nil {
		if cfg.JWTSecretKey == "" {
			return nil, errors.New("JWT_SECRET_KEY is required when POSTGRES_URL is set")
		}
		j = auth.NewJWT(cfg.JWTSecretKey)
	}

	r.Group(func(r chi.Router) {
		rateLimit(r, cfg.RateLimit)
		pages.SetRoutes(r)

		if j != nil {
			r.Route("/v1", func(r chi.Router) {
				auth.NewHandler(auth.NewService(credentials, j), j).SetRoutes(r)
			})
		}
	})

	return r, nil
}

func NewSocketRouter(cfg config.Config, hub *ws.Ws) http.Handler {
	origins := cfg.AllowedOrigins()

	r := chi.NewRouter()
	baseMiddleware(r)
	rateLimit(r, cfg.RateLimit)
	r.Use(config.SocketCORS(origins).Handler)

	routes.SetRoutes(r, hub, origins, cfg.APIToken)
	return r
}

// Start brings up both listeners. If the second one cannot bind the first is
// stopped again.
func (a *App) Start() (<-chan error, error) {
	mainErr, err := a.Main.Start()
	if err != nil {
		return nil, err
	}
	socketErr, err := a.Socket.Start()
	if err != nil {
		a.Main.Shutdown(context.Background())
		return nil, err
	}

	errc := make(chan error, 2)
	var wg sync.WaitGroup
	for _, from := range []<-chan error{mainErr, socketErr} {
		wg.Add(1)
		go func(from <-chan error) {
			defer wg.Done()
			for err := range from {
				errc <- err
			}
		}(from)
	}
	go func() {
		wg.Wait()
		close(errc)
	}()
	return errc, nil
}

// Shutdown drains in two phases: both listeners stop accepting and flush
// in-flight requests, then every subscriber connection is closed.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	for _, l := range []*server.Listener{a.Main, a.Socket} {
		if err := l.Shutdown(ctx); err != nil {
			log.Errorf("%s listener shutdown failed: %v", l.Name, err)
			errs = append(errs, err)
		}
	}

	a.Hub.CloseAll()
	log.Info("subscriber connections closed")

	return errors.Join(errs...)
}
