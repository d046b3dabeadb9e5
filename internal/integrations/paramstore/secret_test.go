package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeGetter struct {
	val    string
	err    error
	names  []string
	onCall func()
}

func (f *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	f.names = append(f.names, name)
	if f.onCall != nil {
		f.onCall()
	}
	return f.val, f.err
}

func TestSecret_StaticNeverHitsStore(t *testing.T) {
	s := Resolve("  sk-static ", &fakeGetter{err: errors.New("must not be called")}, "/travel", "gemini-api-key")
	v, err := s.Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-static", v)
}

func TestSecret_FetchedOnce(t *testing.T) {
	calls := 0
	g := &fakeGetter{val: `{"token":"sk-from-ssm"}`, onCall: func() { calls++ }}
	s := Resolve("", g, "/travel/", "openai-api-key")
	require.NotNil(t, s)

	for i := 0; i < 3; i++ {
		v, err := s.Value(context.Background())
		require.NoError(t, err)
		require.Equal(t, "sk-from-ssm", v)
	}
	require.Equal(t, 1, calls)
	require.Equal(t, []string{"/travel/openai-api-key"}, g.names)
}

func TestSecret_RetriesAfterFailure(t *testing.T) {
	g := &fakeGetter{err: errors.New("ssm throttled")}
	s := Resolve("", g, "/travel", "openai-api-key")

	_, err := s.Value(context.Background())
	require.ErrorContains(t, err, "ssm throttled")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g.err = ctx.Err()
	_, err = s.Value(ctx)
	require.ErrorIs(t, err, context.Canceled)

	g.err = nil
	g.val = `{"token":"sk-recovered"}`
	v, err := s.Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-recovered", v)

	g.err = errors.New("must not be called again")
	v, err = s.Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-recovered", v)
	require.Len(t, g.names, 3)
}

func TestSecret_NotConfigured(t *testing.T) {
	require.Nil(t, Resolve("", nil, "/travel", "x"))
	require.Nil(t, Resolve("", &fakeGetter{}, " ", "x"))

	var s *Secret
	_, err := s.Value(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not configured")
}

func TestFetchToken(t *testing.T) {
	ctx := context.Background()

	_, err := fetchToken(ctx, &fakeGetter{val: `{"other":"value"}`}, "/p/x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "is empty")

	_, err = fetchToken(ctx, &fakeGetter{val: `{"broken`}, "/p/x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unmarshal")

	_, err = fetchToken(ctx, &fakeGetter{err: errors.New("ssm unavailable")}, "/p/x")
	require.ErrorContains(t, err, "ssm unavailable")

	_, err = fetchToken(ctx, nil, "/p/x")
	require.ErrorContains(t, err, "nil")

	_, err = fetchToken(ctx, &fakeGetter{}, "")
	require.ErrorContains(t, err, "empty")
}
