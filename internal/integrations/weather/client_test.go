package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithBaseURL(srv.URL), WithTimeout(time.Second)}, opts...)
	c, err := New("wk-test", opts...)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New("  ")
	require.Error(t, err)
}

func TestLookup_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/current.json", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "wk-test", q.Get("key"))
		require.Equal(t, "Buenos Aires", q.Get("q"))
		require.Equal(t, "es", q.Get("lang"))
		require.Equal(t, "no", q.Get("aqi"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"location": {"name": "Buenos Aires", "localtime": "2026-10-16 9:05"},
			"current": {"temp_c": 18.46, "feelslike_c": 17.04, "condition": {"text": "Parcialmente nublado"}}
		}`))
	}))
	defer srv.Close()

	w, err := newTestClient(t, srv).Lookup(context.Background(), " Buenos Aires ")
	require.NoError(t, err)
	require.Equal(t, 18.5, w.TemperatureC)
	require.Equal(t, 17.0, w.FeelsLikeC)
	require.Equal(t, "Parcialmente nublado", w.Condition)
	require.Equal(t, "9:05", w.LocalTime)
}

func TestLookup_Language(t *testing.T) {
	var lang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang = r.URL.Query().Get("lang")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"location":{"localtime":"2026-10-16 21:40"},"current":{"temp_c":10}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, WithLanguage("en")).Lookup(context.Background(), "Oslo")
	require.NoError(t, err)
	require.Equal(t, "en", lang)

	_, err = newTestClient(t, srv, WithLanguage(" ")).Lookup(context.Background(), "Oslo")
	require.NoError(t, err)
	require.Equal(t, "es", lang)
}

func TestLookup_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":1006,"message":"No matching location found."}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Lookup(context.Background(), "Atlantis")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadRequest, statusErr.HTTPStatusCode())
}

func TestLookup_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c, err := New("wk", WithBaseURL(srv.URL), WithTimeout(30*time.Millisecond))
	require.NoError(t, err)
	_, err = c.Lookup(context.Background(), "Lima")
	require.Error(t, err)
}

func TestLookup_EmptyPlace(t *testing.T) {
	c, err := New("wk")
	require.NoError(t, err)
	_, err = c.Lookup(context.Background(), "  ")
	require.Error(t, err)
}

func TestClockTime(t *testing.T) {
	require.Equal(t, "14:30", clockTime("2026-10-16 14:30"))
	require.Equal(t, "N/A", clockTime("2026-10-16"))
	require.Equal(t, "N/A", clockTime(""))
	require.Equal(t, "14:30", clockTime("2026-10-16 14:30:59"))
}
