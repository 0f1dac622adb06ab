package extract

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"docqa/internal/domain"
)

// Extractor turns raw file bytes into plain text. It does no chunking.
type Extractor interface {
	Extract(r io.Reader) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(r io.Reader) (string, error)

func (f ExtractorFunc) Extract(r io.Reader) (string, error) { return f(r) }

// Registry maps lower-case file extensions to extractors.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry returns a registry with the built-in text, markdown and HTML extractors.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}
	r.Register(".txt", ExtractorFunc(plainText))
	md := ExtractorFunc(markdownText)
	r.Register(".md", md)
	r.Register(".markdown", md)
	html := ExtractorFunc(htmlText)
	r.Register(".html", html)
	r.Register(".htm", html)
	return r
}

func (r *Registry) Register(ext string, e Extractor) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	r.byExt[ext] = e
}

// Supported lists the registered extensions in sorted order.
func (r *Registry) Supported() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Extract picks the extractor by the extension of name.
func (r *Registry) Extract(name string, rd io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	e, ok := r.byExt[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q (supported: %s)", domain.ErrUnsupportedFormat, ext, strings.Join(r.Supported(), ", "))
	}
	text, err := e.Extract(rd)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", name, err)
	}
	return text, nil
}

// ExtractFile opens path and extracts its text.
func (r *Registry) ExtractFile(path string) (string, error) {
	if _, ok := r.byExt[strings.ToLower(filepath.Ext(path))]; !ok {
		return r.Extract(path, nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return r.Extract(filepath.Base(path), f)
}

func plainText(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
