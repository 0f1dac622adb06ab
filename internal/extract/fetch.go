package extract

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"time"

	"docqa/internal/domain"
)

const (
	DefaultFetchTimeout = 30 * time.Second
	// MaxFetchBytes caps how much of a page is read.
	MaxFetchBytes = int64(5 * 1024 * 1024)
)

var extByContentType = map[string]string{
	"text/html":             ".html",
	"application/xhtml+xml": ".html",
	"text/markdown":         ".md",
	"text/x-markdown":       ".md",
	"text/plain":            ".txt",
}

// Fetcher downloads web pages and extracts their text with a Registry.
type Fetcher struct {
	registry *Registry
	client   *http.Client
}

func NewFetcher(registry *Registry, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Fetcher{registry: registry, client: &http.Client{Timeout: timeout}}
}

// Fetch downloads rawURL and extracts its text. The extractor is picked by
// the response content type, then by the extension of the URL path.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: url must start with http:// or https://, got %q", domain.ErrInvalidArgument, rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "docqa-fetch/1.0")
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: %s", rawURL, resp.Status)
	}
	ext := path.Ext(u.Path)
	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		if e, ok := extByContentType[mediaType]; ok {
			ext = e
		}
	}
	return f.registry.Extract("page"+ext, io.LimitReader(resp.Body, MaxFetchBytes))
}
