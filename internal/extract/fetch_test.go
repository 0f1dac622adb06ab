package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "docqa-fetch/1.0", r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/post":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><body><nav>menu</nav><p>A cat sat.</p></body></html>`))
		case "/notes.md":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write([]byte("# Notes\n\nA dog ran."))
		case "/report":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(NewRegistry(), 0)
	ctx := context.Background()

	text, err := f.Fetch(ctx, srv.URL+"/post")
	require.NoError(t, err)
	require.Equal(t, "A cat sat.", text)

	text, err = f.Fetch(ctx, srv.URL+"/notes.md")
	require.NoError(t, err)
	require.Equal(t, "Notes\nA dog ran.", text)

	_, err = f.Fetch(ctx, srv.URL+"/report")
	require.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	_, err = f.Fetch(ctx, srv.URL+"/missing")
	require.ErrorContains(t, err, "404")
}

func TestFetcher_RejectsNonHTTP(t *testing.T) {
	f := NewFetcher(NewRegistry(), 0)
	for _, u := range []string{"", "file:///etc/passwd", "ftp://example.com/a.txt", "example.com"} {
		_, err := f.Fetch(context.Background(), u)
		require.ErrorIs(t, err, domain.ErrInvalidArgument, u)
	}
}
