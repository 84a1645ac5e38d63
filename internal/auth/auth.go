// Package auth holds the credential helpers that sit beside the relay: password
// hashing, JWT issue/verify and the static API token check. None of it guards
// the card read path.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

// tokenLifetime mirrors the never-expiring tokens devices were provisioned with.
const tokenLifetime = 9999

var (
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrTokenExpired       = errors.New("auth: token expired")
)

type User struct {
	UserId   int64  `json:"user_id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// CredentialStore looks up a user and the bcrypt hash of their password.
type CredentialStore interface {
	LookupUser(ctx context.Context, username string) (User, string, error)
}

// TokenVerifier validates bearer tokens, directly or as request middleware
// that leaves the token in the context for jwtauth.FromContext.
type TokenVerifier interface {
	Verify(token string) (map[string]interface{}, error)
	Verifier() func(http.Handler) http.Handler
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// JWT issues and verifies HS256 tokens.
type JWT struct {
	tokenAuth *jwtauth.JWTAuth
}

func NewJWT(secret string) *JWT {
	return &JWT{tokenAuth: jwtauth.New("HS256", []byte(secret), nil)}
}

// IssueTokens returns an access token carrying the user and a refresh token
// carrying only the username.
func (j *JWT) IssueTokens(u User) (Tokens, error) {
	exp := time.Now().AddDate(tokenLifetime, 0, 0).Unix()

	_, access, err := j.tokenAuth.Encode(map[string]interface{}{
		"user": u,
		"exp":  exp,
	})
	if err != nil {
		return Tokens{}, err
	}

	_, refresh, err := j.tokenAuth.Encode(map[string]interface{}{
		"username": u.Username,
		"exp":      exp,
	})
	if err != nil {
		return Tokens{}, err
	}

	return Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

func (j *JWT) Verify(tokenString string) (map[string]interface{}, error) {
	token, err := jwtauth.VerifyToken(j.tokenAuth, tokenString)
	if err != nil {
		if errors.Is(err, jwtauth.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	return token.PrivateClaims(), nil
}

// Verifier finds the token in the "token" header, then in
// "Authorization: Bearer".
func (j *JWT) Verifier() func(http.Handler) http.Handler {
	return jwtauth.Verify(j.tokenAuth, tokenFromTokenHeader, jwtauth.TokenFromHeader)
}

func tokenFromTokenHeader(r *http.Request) string {
	return r.Header.Get("token")
}

// Service logs users in against a CredentialStore.
type Service struct {
	store CredentialStore
	jwt   *JWT
}

func NewService(store CredentialStore, j *JWT) *Service {
	return &Service{store: store, jwt: j}
}

func (s *Service) Login(ctx context.Context, username, password string) (Tokens, error) {
	user, hash, err := s.store.LookupUser(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Tokens{}, ErrInvalidCredentials
		}
		return Tokens{}, err
	}

	if !CheckPassword(password, hash) {
		return Tokens{}, ErrInvalidCredentials
	}

	return s.jwt.IssueTokens(user)
}
