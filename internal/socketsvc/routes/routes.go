package routes

import (
	"github.com/avvvet/card-relay/internal/auth"
	"github.com/avvvet/card-relay/internal/socketsvc/handlers"
	"github.com/avvvet/card-relay/internal/socketsvc/ws"
	"github.com/go-chi/chi"
)

// SetRoutes mounts the subscriber endpoint. /socket.io/ keeps pages that were
// built against the old socket path connecting.
func SetRoutes(r chi.Router, s *ws.Ws, allowedOrigins []string, apiToken string) {
	h := handlers.NewHandler(s, allowedOrigins)

	r.Get("/ws", h.HandleWebSocket)
	r.Get("/socket.io/", h.HandleWebSocket)

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.RequireAPIToken(apiToken))
		r.Get("/health", h.HealthHandler)
	})
}
