package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"docqa/internal/domain"
)

// Storage is a minimal REST client to Qdrant.
// Scores from Euclid collections are distances and are mapped to 1/(1+d).
type Storage struct {
	url    string
	apiKey string
	client *http.Client

	mu        sync.Mutex
	distances map[string]string
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client:    &http.Client{Timeout: timeout},
		distances: make(map[string]string),
	}
}

const scrollPage = 256

var distanceNames = map[domain.Distance]string{
	domain.DistanceCosine:    "Cosine",
	domain.DistanceDot:       "Dot",
	domain.DistanceEuclidean: "Euclid",
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload domain.Payload `json:"payload"`
}

type scoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload domain.Payload  `json:"payload"`
}

func (s *Storage) ListCollections(ctx context.Context) ([]string, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Result.Collections))
	for _, c := range resp.Result.Collections {
		names = append(names, c.Name)
	}
	return names, nil
}

func (s *Storage) CreateCollection(ctx context.Context, c domain.Collection) error {
	if c.Dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", c.Dimension)
	}
	distance, ok := distanceNames[c.Distance]
	if !ok {
		return fmt.Errorf("unsupported distance %q", c.Distance)
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.Dimension,
			"distance": distance,
		},
	}
	if err := s.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(c.Name), body, nil); err != nil {
		return err
	}
	s.rememberDistance(c.Name, distance)
	return nil
}

func (s *Storage) rememberDistance(collection, distance string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.distances[collection] = distance
}

// collectionDistance returns the Qdrant metric name of a collection, asking
// the server the first time a collection is seen.
func (s *Storage) collectionDistance(ctx context.Context, collection string) (string, error) {
	s.mu.Lock()
	distance, ok := s.distances[collection]
	s.mu.Unlock()
	if ok {
		return distance, nil
	}
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(collection), nil, &resp); err != nil {
		return "", err
	}
	distance = resp.Result.Config.Params.Vectors.Distance
	s.rememberDistance(collection, distance)
	return distance, nil
}

// similarity turns a raw Qdrant score into one where higher is closer.
func similarity(distance string, score float64) float64 {
	switch distance {
	case "Euclid", "Manhattan":
		return 1 / (1 + score)
	}
	return score
}

func (s *Storage) Upsert(ctx context.Context, collection string, points []domain.VectorPoint) error {
	body := struct {
		Points []point `json:"points"`
	}{Points: make([]point, len(points))}
	for i, p := range points {
		body.Points[i] = point{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}
	return s.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(collection)+"/points?wait=true", body, nil)
}

func (s *Storage) Search(ctx context.Context, collection string, vector []float32, limit int) ([]domain.ScoredPoint, error) {
	if limit <= 0 {
		return nil, nil
	}
	distance, err := s.collectionDistance(ctx, collection)
	if err != nil {
		return nil, err
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []scoredPoint `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(collection)+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.ScoredPoint, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.ScoredPoint{ID: pointID(r.ID), Score: similarity(distance, r.Score), Payload: r.Payload})
	}
	return results, nil
}

// Scan pages through the collection with the scroll API.
func (s *Storage) Scan(ctx context.Context, collection string, limit int) ([]domain.ScoredPoint, error) {
	var out []domain.ScoredPoint
	var offset json.RawMessage
	for len(out) < limit {
		req := map[string]any{
			"limit":        min(limit-len(out), scrollPage),
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points []struct {
					ID      json.RawMessage `json:"id"`
					Payload domain.Payload  `json:"payload"`
				} `json:"points"`
				NextPageOffset json.RawMessage `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(collection)+"/points/scroll", req, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			out = append(out, domain.ScoredPoint{ID: pointID(p.ID), Payload: p.Payload})
		}
		next := resp.Result.NextPageOffset
		if len(resp.Result.Points) == 0 || len(next) == 0 || string(next) == "null" {
			break
		}
		offset = next
	}
	return out, nil
}

func (s *Storage) DeleteDocument(ctx context.Context, collection, documentID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []any{
				map[string]any{"key": "document_id", "match": map[string]any{"value": documentID}},
			},
		},
	}
	return s.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(collection)+"/points/delete?wait=true", body, nil)
}

func (s *Storage) Count(ctx context.Context, collection string) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(collection)+"/points/count", map[string]any{"exact": true}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// pointID renders numeric and string ids alike.
func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (s *Storage) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		text := strings.TrimSpace(string(msg))
		switch {
		case resp.StatusCode == http.StatusConflict || strings.Contains(text, "already exists"):
			return fmt.Errorf("%w: %s", domain.ErrCollectionExists, text)
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", domain.ErrCollectionMissing, text)
		}
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, path, resp.Status, text)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
