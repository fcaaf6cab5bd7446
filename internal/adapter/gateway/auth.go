package gateway

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"techassist/internal/domain"
	"techassist/internal/infra/config"
)

// ClientInfo identifies a gateway client. Authenticated is set only when a
// token was verified.
type ClientInfo struct {
	Name          string
	Authenticated bool
}

// Authenticator validates client tokens.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

type authEntry struct {
	token []byte
	info  *ClientInfo
}

// StaticTokenAuth authenticates clients against a static token list
// using constant-time comparison.
type StaticTokenAuth struct {
	entries []authEntry
}

// AuthFromConfig returns a StaticTokenAuth for the configured tokens, or a
// nil Authenticator when there are none.
func AuthFromConfig(tokens []config.GatewayTokenConfig) Authenticator {
	if len(tokens) == 0 {
		return nil
	}
	return NewStaticTokenAuth(tokens)
}

// NewStaticTokenAuth builds an authenticator from configured tokens.
func NewStaticTokenAuth(tokens []config.GatewayTokenConfig) *StaticTokenAuth {
	a := &StaticTokenAuth{entries: make([]authEntry, len(tokens))}
	for i, t := range tokens {
		name := t.Name
		if name == "" {
			name = "client"
		}
		a.entries[i] = authEntry{token: []byte(t.Token), info: &ClientInfo{Name: name, Authenticated: true}}
	}
	return a
}

// Authenticate returns client info if the token is valid.
func (s *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	tokenBytes := []byte(token)
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(tokenBytes, e.token) == 1 {
			return e.info, nil
		}
	}
	return nil, domain.ErrAuthInvalid
}

type clientKey struct{}

// ClientFrom returns the client stored by the auth middleware, or nil.
func ClientFrom(ctx context.Context) *ClientInfo {
	c, _ := ctx.Value(clientKey{}).(*ClientInfo)
	return c
}

func withClient(ctx context.Context, c *ClientInfo) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// requireAuth rejects requests without a valid bearer token. A nil
// authenticator lets every request through.
func requireAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if auth == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client, err := auth.Authenticate(bearerToken(r))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="techassist"`)
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withClient(r.Context(), client)))
		})
	}
}
