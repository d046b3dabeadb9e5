package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, c jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func validClaims(subject string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "travel-gateway-test",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
}

func mustVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier(testSecret, "travel-gateway-test")
	require.NoError(t, err)
	return v
}

type slowVerifier struct{ delay time.Duration }

func (s slowVerifier) Verify(ctx context.Context, _ string) (string, error) {
	select {
	case <-time.After(s.delay):
		return "late", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type brokenVerifier struct{}

func (brokenVerifier) Verify(context.Context, string) (string, error) {
	return "", errors.New("jwks fetch failed")
}

func TestNewJWTVerifier_RequiresSecret(t *testing.T) {
	_, err := NewJWTVerifier(" ", "")
	require.Error(t, err)
}

func TestVerify(t *testing.T) {
	v := mustVerifier(t)
	ctx := context.Background()

	uid, err := v.Verify(ctx, signToken(t, testSecret, validClaims("user-1")))
	require.NoError(t, err)
	require.Equal(t, "user-1", uid)

	_, err = v.Verify(ctx, signToken(t, "other-secret", validClaims("user-1")))
	require.ErrorIs(t, err, ErrInvalidToken)

	expired := validClaims("user-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err = v.Verify(ctx, signToken(t, testSecret, expired))
	require.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := validClaims("user-1")
	wrongIssuer.Issuer = "someone-else"
	_, err = v.Verify(ctx, signToken(t, testSecret, wrongIssuer))
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(ctx, "garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_FallsBackToUserIDClaim(t *testing.T) {
	v := mustVerifier(t)
	c := &claims{UserID: "firebase-uid", RegisteredClaims: validClaims("")}
	uid, err := v.Verify(context.Background(), signToken(t, testSecret, c))
	require.NoError(t, err)
	require.Equal(t, "firebase-uid", uid)
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", BearerToken("Bearer abc"))
	require.Equal(t, "abc", BearerToken("  bearer   abc "))
	require.Empty(t, BearerToken("Basic abc"))
	require.Empty(t, BearerToken(""))
}

func TestResolve(t *testing.T) {
	r := NewResolver(mustVerifier(t), time.Second, zerolog.Nop())
	ctx := context.Background()

	id := r.Resolve(ctx, "Bearer "+signToken(t, testSecret, validClaims("user-9")))
	require.True(t, id.Verified())
	require.Equal(t, "user-9", id.UID)

	id = r.Resolve(ctx, "")
	require.False(t, id.Verified())
	require.ErrorIs(t, id.Err, ErrMissingToken)

	id = r.Resolve(ctx, "Bearer nope")
	require.ErrorIs(t, id.Err, ErrInvalidToken)
}

func TestResolve_SlowVerifierFallsBackToAnonymous(t *testing.T) {
	r := NewResolver(slowVerifier{delay: time.Second}, 20*time.Millisecond, zerolog.Nop())
	start := time.Now()
	id := r.Resolve(context.Background(), "Bearer tok")
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.False(t, id.Verified())
	require.ErrorIs(t, id.Err, ErrUnavailable)
}

func TestResolve_VerifierErrorsAreUnavailable(t *testing.T) {
	r := NewResolver(brokenVerifier{}, time.Second, zerolog.Nop())
	id := r.Resolve(context.Background(), "Bearer tok")
	require.ErrorIs(t, id.Err, ErrUnavailable)

	r = NewResolver(nil, time.Second, zerolog.Nop())
	id = r.Resolve(context.Background(), "Bearer tok")
	require.ErrorIs(t, id.Err, ErrUnavailable)
}
