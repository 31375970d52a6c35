package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"

	"codepilot/internal/auth"
)

func (s *Server) authRequired() bool {
	return s.apiToken != "" || s.tokenHash != ""
}

// withAuth requires a bearer token on every route except /health when a token
// is configured.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || !s.authRequired() {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok || !s.tokenValid(token) {
			s.writeErrorReq(w, r, http.StatusUnauthorized, apiError{
				status:  http.StatusUnauthorized,
				code:    "unauthorized",
				errCode: ErrCodeUnauthorized,
				err:     fmt.Errorf("unauthorized"),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tokenValid checks token against the env token and the configured hash.
// Tokens that matched the hash are remembered by digest so bcrypt runs once.
func (s *Server) tokenValid(token string) bool {
	if s.apiToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.apiToken)) == 1 {
		return true
	}
	if s.tokenHash == "" {
		return false
	}

	sum := sha256.Sum256([]byte(token))
	digest := hex.EncodeToString(sum[:])
	if _, ok := s.verifiedTokens.Load(digest); ok {
		return true
	}
	if !auth.VerifyToken(s.tokenHash, token) {
		return false
	}
	s.verifiedTokens.Store(digest, struct{}{})
	return true
}
