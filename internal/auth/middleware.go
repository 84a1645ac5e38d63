package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

type errorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

func writeUnauthorized(w http.ResponseWriter, rsp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

// Authenticator rejects requests whose token the verifier middleware could
// not validate, telling expired tokens apart from invalid ones.
func Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _, err := jwtauth.FromContext(r.Context())
		if err != nil {
			if errors.Is(err, jwtauth.ErrExpired) {
				writeUnauthorized(w, errorResponse{
					Message: "Access token expired! Please renew your token.",
					Code:    http.StatusUnauthorized,
				})
				return
			}
			writeUnauthorized(w, errorResponse{Message: "Invalid access token"})
			return
		}
		if token == nil {
			writeUnauthorized(w, errorResponse{Message: "Invalid access token"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAPIToken accepts only "Authorization: Bearer <apiToken>". An empty
// apiToken rejects everything.
func RequireAPIToken(apiToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := jwtauth.TokenFromHeader(r)
			if apiToken == "" || token == "" ||
				subtle.ConstantTimeCompare([]byte(token), []byte(apiToken)) != 1 {
				writeUnauthorized(w, errorResponse{Message: "Invalid token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
