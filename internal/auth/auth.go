// Package auth verifies bearer tokens and resolves caller identity.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

var (
	ErrMissingToken = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrUnavailable  = errors.New("auth: identity verification unavailable")
)

const defaultResolveTimeout = 2 * time.Second

type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type claims struct {
	UID    string `json:"uid,omitempty"`
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier accepts HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret must not be empty")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer = strings.TrimSpace(issuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTVerifier{secret: []byte(secret), parser: jwt.NewParser(opts...)}, nil
}

// Verify returns the caller's uid: the subject claim, or user_id/uid when
// the subject is empty.
func (v *JWTVerifier) Verify(_ context.Context, token string) (string, error) {
	c := &claims{}
	parsed, err := v.parser.ParseWithClaims(token, c, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	for _, uid := range []string{c.Subject, c.UserID, c.UID} {
		if uid = strings.TrimSpace(uid); uid != "" {
			return uid, nil
		}
	}
	return "", fmt.Errorf("%w: no subject", ErrInvalidToken)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// Identity is the outcome of resolving a request's caller. UID is empty
// when the caller is anonymous; Err says why.
type Identity struct {
	UID string
	Err error
}

func (i Identity) Verified() bool { return i.UID != "" }

// Resolver bounds verification time so rate-limit keying never waits on a
// slow identity provider.
type Resolver struct {
	verifier Verifier
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewResolver accepts a nil verifier; every caller is then anonymous with
// ErrUnavailable.
func NewResolver(verifier Verifier, timeout time.Duration, logger zerolog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}
	return &Resolver{verifier: verifier, timeout: timeout, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, authorization string) Identity {
	token := BearerToken(authorization)
	if token == "" {
		return Identity{Err: ErrMissingToken}
	}
	if r.verifier == nil {
		return Identity{Err: ErrUnavailable}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		uid string
		err error
	}
	done := make(chan result, 1)
	go func() {
		uid, err := r.verifier.Verify(ctx, token)
		done <- result{uid: uid, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if !errors.Is(res.err, ErrInvalidToken) && !errors.Is(res.err, ErrUnavailable) {
				res.err = fmt.Errorf("%w: %v", ErrUnavailable, res.err)
			}
			r.logger.Debug().Err(res.err).Msg("token not verified")
			return Identity{Err: res.err}
		}
		return Identity{UID: res.uid}
	case <-ctx.Done():
		r.logger.Warn().Dur("timeout", r.timeout).Msg("identity verification timed out, treating caller as anonymous")
		return Identity{Err: ErrUnavailable}
	}
}
