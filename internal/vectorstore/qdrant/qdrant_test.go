package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
	"docqa/internal/retriever"
)

type recorded struct {
	method string
	path   string
	query  string
	body   map[string]any
}

func newServer(t *testing.T, handler func(r recorded, w http.ResponseWriter)) (*Storage, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		require.Equal(t, "secret", r.Header.Get("api-key"))
		calls = append(calls, rec)
		handler(rec, w)
	}))
	t.Cleanup(srv.Close)
	return NewStorage(Config{URL: srv.URL + "/", APIKey: "secret"}), &calls
}

func TestListCollections(t *testing.T) {
	s, _ := newServer(t, func(r recorded, w http.ResponseWriter) {
		require.Equal(t, "/collections", r.path)
		_, _ = w.Write([]byte(`{"result":{"collections":[{"name":"a"},{"name":"documents"}]}}`))
	})
	names, err := s.ListCollections(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a", "documents"}, names)
}

func TestCreateCollection(t *testing.T) {
	s, calls := newServer(t, func(r recorded, w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"result":true}`))
	})
	require.NoError(t, s.CreateCollection(context.Background(), domain.Collection{Name: "docs", Dimension: 384, Distance: domain.DistanceCosine}))
	require.Len(t, *calls, 1)
	c := (*calls)[0]
	require.Equal(t, http.MethodPut, c.method)
	require.Equal(t, "/collections/docs", c.path)
	vectors := c.body["vectors"].(map[string]any)
	require.EqualValues(t, 384, vectors["size"])
	require.Equal(t, "Cosine", vectors["distance"])
}

func TestCreateCollection_AlreadyExists(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status int
		body   string
	}{
		{name: "conflict", status: http.StatusConflict, body: `{"status":{"error":"exists"}}`},
		{name: "bad request", status: http.StatusBadRequest, body: "Wrong input: Collection `docs` already exists!"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newServer(t, func(r recorded, w http.ResponseWriter) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			err := s.CreateCollection(context.Background(), domain.Collection{Name: "docs", Dimension: 3, Distance: domain.DistanceDot})
			require.ErrorIs(t, err, domain.ErrCollectionExists)
		})
	}
}

func TestUpsert(t *testing.T) {
	s, calls := newServer(t, func(r recorded, w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	})
	err := s.Upsert(context.Background(), "docs", []domain.VectorPoint{
		{ID: "id-1", Vector: []float32{1, 0}, Payload: domain.Payload{DocumentID: "d1", Text: "hello", ChunkIndex: 7}},
	})
	require.NoError(t, err)
	c := (*calls)[0]
	require.Equal(t, "/collections/docs/points", c.path)
	require.Equal(t, "wait=true", c.query)
	points := c.body["points"].([]any)
	p := points[0].(map[string]any)
	require.Equal(t, "id-1", p["id"])
	payload := p["payload"].(map[string]any)
	require.Equal(t, "d1", payload["document_id"])
	require.EqualValues(t, 7, payload["chunk_index"])
}

func collectionInfo(distance string) string {
	return `{"result":{"config":{"params":{"vectors":{"size":2,"distance":"` + distance + `"}}}}}`
}

func TestSearch(t *testing.T) {
	s, calls := newServer(t, func(r recorded, w http.ResponseWriter) {
		if r.method == http.MethodGet {
			_, _ = w.Write([]byte(collectionInfo("Cosine")))
			return
		}
		_, _ = w.Write([]byte(`{"result":[
			{"id":"u1","score":0.9,"payload":{"document_id":"d1","text":"A cat sat.","chunk_index":0}},
			{"id":42,"score":0.4,"payload":{"document_id":"d1","text":"A dog ran.","chunk_index":1}}
		]}`))
	})
	got, err := s.Search(context.Background(), "docs", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "u1", got[0].ID)
	require.Equal(t, "42", got[1].ID)
	require.Equal(t, 1, got[1].Payload.ChunkIndex)
	require.InDelta(t, 0.9, got[0].Score, 1e-9)
	require.Equal(t, "/collections/docs", (*calls)[0].path)
	require.EqualValues(t, 2, (*calls)[1].body["limit"])
	require.Equal(t, true, (*calls)[1].body["with_payload"])

	_, err = s.Search(context.Background(), "docs", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, *calls, 3)
}

func TestSearch_EuclidRanksNearestFirst(t *testing.T) {
	s, _ := newServer(t, func(r recorded, w http.ResponseWriter) {
		if r.method == http.MethodGet {
			_, _ = w.Write([]byte(collectionInfo("Euclid")))
			return
		}
		_, _ = w.Write([]byte(`{"result":[
			{"id":"near","score":0.1,"payload":{"document_id":"d1","text":"near","chunk_index":0}},
			{"id":"far","score":1.9,"payload":{"document_id":"d1","text":"far","chunk_index":1}}
		]}`))
	})
	got, err := s.Search(context.Background(), "docs", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.InDelta(t, 1/1.1, got[0].Score, 1e-9)
	require.InDelta(t, 1/2.9, got[1].Score, 1e-9)

	hits := retriever.Filter(got, 0.5)
	require.Len(t, hits, 1)
	require.Equal(t, "near", hits[0].ID)
}

func TestSearch_UsesDistanceFromCreate(t *testing.T) {
	s, calls := newServer(t, func(r recorded, w http.ResponseWriter) {
		if r.method == http.MethodPut {
			_, _ = w.Write([]byte(`{"result":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":[{"id":"a","score":1,"payload":{"document_id":"d1","text":"a","chunk_index":0}}]}`))
	})
	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, domain.Collection{Name: "docs", Dimension: 2, Distance: domain.DistanceEuclidean}))
	got, err := s.Search(ctx, "docs", []float32{1, 0}, 1)
	require.NoError(t, err)
	require.InDelta(t, 0.5, got[0].Score, 1e-9)
	require.Len(t, *calls, 2)
}

func TestSearch_MissingCollection(t *testing.T) {
	s, _ := newServer(t, func(r recorded, w http.ResponseWriter) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := s.Search(context.Background(), "nope", []float32{1}, 1)
	require.ErrorIs(t, err, domain.ErrCollectionMissing)
}

func TestDeleteAndCount(t *testing.T) {
	s, calls := newServer(t, func(r recorded, w http.ResponseWriter) {
		if r.path == "/collections/docs/points/count" {
			_, _ = w.Write([]byte(`{"result":{"count":12}}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":{}}`))
	})
	require.NoError(t, s.DeleteDocument(context.Background(), "docs", "d1"))
	n, err := s.Count(context.Background(), "docs")
	require.NoError(t, err)
	require.Equal(t, 12, n)
	require.Equal(t, "/collections/docs/points/delete", (*calls)[0].path)
	filter := (*calls)[0].body["filter"].(map[string]any)
	must := filter["must"].([]any)[0].(map[string]any)
	require.Equal(t, "document_id", must["key"])
}

func TestScan_FollowsPages(t *testing.T) {
	s, calls := newServer(t, func(r recorded, w http.ResponseWriter) {
		require.Equal(t, "/collections/docs/points/scroll", r.path)
		if r.body["offset"] == nil {
			_, _ = w.Write([]byte(`{"result":{"points":[
				{"id":"a","payload":{"document_id":"d1","text":"cat","chunk_index":0,"strategy":"small"}}
			],"next_page_offset":"b"}}`))
			return
		}
		require.Equal(t, "b", r.body["offset"])
		_, _ = w.Write([]byte(`{"result":{"points":[
			{"id":7,"payload":{"document_id":"d2","text":"dog","chunk_index":0}}
		],"next_page_offset":null}}`))
	})
	got, err := s.Scan(context.Background(), "docs", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].ID)
	require.Equal(t, "small", got[0].Payload.Strategy)
	require.Equal(t, "7", got[1].ID)
	require.Len(t, *calls, 2)
	require.Equal(t, false, (*calls)[0].body["with_vector"])
}
