package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	service  *Service
	verifier TokenVerifier
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func NewHandler(s *Service, v TokenVerifier) *Handler {
	return &Handler{service: s, verifier: v}
}

func (h *Handler) SetRoutes(r chi.Router) {
	r.Post("/auth/login", h.LoginHandler)

	// Secure routes
	r.Group(func(r chi.Router) {
		r.Use(h.verifier.Verifier())
		r.Use(Authenticator)

		r.Get("/auth/me", h.MeHandler)
	})
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "username and password are required"})
		return
	}

	tokens, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeUnauthorized(w, errorResponse{Message: "Invalid username or password"})
			return
		}
		log.Errorf("login for %s failed: %v", req.Username, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		writeUnauthorized(w, errorResponse{Message: "Invalid access token"})
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}
