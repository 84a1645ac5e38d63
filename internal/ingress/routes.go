package ingress

import (
	"github.com/go-chi/chi"
)

// CardReadPath is the path the reader firmware is configured with.
const CardReadPath = "/temp/cardread"

func (h *Handler) SetRoutes(r chi.Router) {
	r.Post(CardReadPath, h.HandleCardRead)
}
