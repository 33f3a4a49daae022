package auth

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidToken is returned when a credential cannot be verified.
var ErrInvalidToken = errors.New("invalid token")

// Identity is a verified user as the chat subsystem sees it.
type Identity struct {
	ID   string
	Name string
}

// Verifier resolves bearer credentials to stable user identities. Today the
// check is a local HMAC validation; the context deadline is honored so a
// future remote verifier keeps the same contract.
type Verifier struct {
	cfg     *JWTConfig
	timeout time.Duration
}

// NewVerifier creates a verifier. timeout bounds each Verify call; zero
// means 10 seconds.
func NewVerifier(cfg *JWTConfig, timeout time.Duration) *Verifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Verifier{cfg: cfg, timeout: timeout}
}

// Verify validates the credential and returns the identity it carries.
// A deadline exceeded or cancellation is reported as verification failure.
func (v *Verifier) Verify(ctx context.Context, token string) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	claims, err := ValidateToken(v.cfg, token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	name := claims.Name
	if name == "" {
		name = claims.UserID
	}
	return &Identity{ID: claims.UserID, Name: name}, nil
}
