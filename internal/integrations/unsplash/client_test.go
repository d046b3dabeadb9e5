package unsplash

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New("uk-test", WithBaseURL(srv.URL), WithTimeout(time.Second))
	require.NoError(t, err)
	return c
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}

func TestSearch_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search/photos", r.URL.Path)
		require.Equal(t, "Client-ID uk-test", r.Header.Get("Authorization"))
		q := r.URL.Query()
		require.Equal(t, "Cusco travel landscape", q.Get("query"))
		require.Equal(t, "3", q.Get("per_page"))
		require.Equal(t, "landscape", q.Get("orientation"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total": 3, "results": [
			{"id": "a", "urls": {"regular": "https://images.unsplash.com/a"}},
			{"id": "b", "urls": {"regular": ""}},
			{"id": "c", "urls": {"regular": "https://images.unsplash.com/c"}}
		]}`))
	}))
	defer srv.Close()

	urls, err := newTestClient(t, srv).Search(context.Background(), "Cusco", 3)
	require.NoError(t, err)
	require.Equal(t, []string{"https://images.unsplash.com/a", "https://images.unsplash.com/c"}, urls)
}

func TestSearch_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":["OAuth error: The access token is invalid"]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Search(context.Background(), "Cusco", 3)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.HTTPStatusCode())
}

func TestSearch_ZeroCountSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	urls, err := newTestClient(t, srv).Search(context.Background(), "Cusco", 0)
	require.NoError(t, err)
	require.Empty(t, urls)
	require.False(t, called)
}

func TestSearch_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, srv).Search(ctx, "Cusco", 3)
	require.Error(t, err)
}
