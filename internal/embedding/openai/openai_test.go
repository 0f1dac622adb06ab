package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: url, Model: "m", MaxRetries: retries})
	require.NoError(t, err)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestEmbedBatch_OrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"a", "b"}, req.Input)
		require.Equal(t, "m", req.Model)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	out, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 0}, {0, 1}}, out)
	require.Equal(t, 2, c.Dimension())
}

func TestEmbed_RetriesOnServerError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"embedding":[0.5,0.5]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	v, err := c.Embed(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, 0.5}, v)
	require.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestEmbed_ClientErrorNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	_, err := c.Embed(context.Background(), "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad model")
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("DOCQA_TEST_EMBED_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "DOCQA_TEST_EMBED_KEY"})
	require.Error(t, err)
}

func TestRetryDelay(t *testing.T) {
	require.Equal(t, 200*time.Millisecond, retryDelay(0))
	require.Equal(t, 400*time.Millisecond, retryDelay(1))
	require.Equal(t, 5*time.Second, retryDelay(10))
}

func TestModelName(t *testing.T) {
	small, err := NewClient(Config{Model: "text-embedding-3-small"})
	require.NoError(t, err)
	sized, err := NewClient(Config{Model: "text-embedding-3-small", Dimensions: 256})
	require.NoError(t, err)
	require.Equal(t, "text-embedding-3-small", small.ModelName())
	require.Equal(t, "text-embedding-3-small@256", sized.ModelName())
}
