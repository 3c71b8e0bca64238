// Package auth protects the admin API with a single bearer key.
package auth

import (
	"net/http"
)

// FailureHandler writes the response for a rejected request.
type FailureHandler func(w http.ResponseWriter, r *http.Request, status int, message string)

// Authenticator checks bearer tokens against the configured admin key.
// The key may be given in plain text or as a bcrypt hash.
type Authenticator struct {
	adminKey string
}

func NewAuthenticator(adminKey string) *Authenticator {
	return &Authenticator{adminKey: adminKey}
}

// AuthResult contains the result of an authentication attempt
type AuthResult struct {
	Authenticated bool
	Error         string
}

// Authenticate authenticates a request using the Authorization header
func (a *Authenticator) Authenticate(authHeader string) AuthResult {
	token := BearerToken(authHeader)
	switch {
	case token == "":
		return AuthResult{Error: "missing bearer token"}
	case a.adminKey == "":
		return AuthResult{Error: "admin key not configured"}
	case !MatchKey(token, a.adminKey):
		return AuthResult{Error: "invalid token"}
	}
	return AuthResult{Authenticated: true}
}

// RequireAuth is a middleware that rejects unauthenticated requests with 401.
func (a *Authenticator) RequireAuth(onFail FailureHandler) func(http.Handler) http.Handler {
	if onFail == nil {
		onFail = func(w http.ResponseWriter, r *http.Request, status int, message string) {
			http.Error(w, message, status)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := a.Authenticate(r.Header.Get("Authorization"))
			if !result.Authenticated {
				onFail(w, r, http.StatusUnauthorized, result.Error)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
