// Package auth verifies bearer tokens issued by the authentication
// collaborator. Issuance lives elsewhere; this side only checks the
// signature and that the token's subject matches the claimed player.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/veilbound/veilbound-backend/internal/protocol"
)

type Verifier struct {
	secret []byte
}

// NewVerifier returns a disabled verifier when secret is empty (local play).
func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return &Verifier{}
	}
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Enabled() bool { return len(v.secret) > 0 }

// Verify checks the request's bearer token against playerID. Disabled
// verifiers accept everything.
func (v *Verifier) Verify(r *http.Request, playerID string) error {
	if !v.Enabled() {
		return nil
	}
	raw := bearerToken(r)
	if raw == "" {
		return protocol.ErrAuthRequired
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !tok.Valid {
		return protocol.ErrAuthInvalid
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil || sub != playerID {
		return protocol.ErrAuthInvalid
	}
	return nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	// Browsers cannot set headers on websocket dials.
	return r.URL.Query().Get("token")
}
