package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float64{0, 0}, []float64{1, 1}))
	assert.Equal(t, 0.0, Cosine([]float64{1}, []float64{1, 1}))
}

func TestHashingEmbedderIsDeterministicAndNormalized(t *testing.T) {
	e := NewHashingEmbedder(64)

	vecs, err := e.Embed(context.Background(), []string{"특허 검색 기술", "특허 검색 기술", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	require.Len(t, vecs[0], 64)

	assert.Equal(t, vecs[0], vecs[1])
	var sum float64
	for _, x := range vecs[0] {
		sum += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-9)

	for _, x := range vecs[2] {
		assert.Equal(t, 0.0, x)
	}
}

func TestHashingEmbedderRanksOverlappingPhraseHigher(t *testing.T) {
	e := NewHashingEmbedder(1024)
	vecs, err := e.Embed(context.Background(), []string{
		"인공지능 기반 특허 검색 시스템",
		"특허 검색",
		"날씨 예보",
	})
	require.NoError(t, err)

	related := Cosine(vecs[0], vecs[1])
	unrelated := Cosine(vecs[0], vecs[2])
	assert.Greater(t, related, unrelated)
}

func TestHashingEmbedderHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashingEmbedder(0).Embed(ctx, []string{"a"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRemoteEmbedderOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "jhgan/ko-sroberta-multitask", req.Model)
		assert.Equal(t, []string{"a", "b"}, req.Input)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	e := &RemoteEmbedder{Client: srv.Client(), URL: srv.URL, Model: "jhgan/ko-sroberta-multitask", APIKey: "secret"}
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, vecs)
}

func TestRemoteEmbedderErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantErr     string
	}{
		{"http error", http.StatusServiceUnavailable, "text/plain", "loading model", "invalid status code [503]"},
		{"not json", http.StatusOK, "text/html", "<html/>", "is not a valid JSON content type"},
		{"bad json", http.StatusOK, "application/json", "{", "embedding request"},
		{"count mismatch", http.StatusOK, "application/json", `{"data":[{"index":0,"embedding":[1]}]}`, "embedding service returned 1 vectors for 2 inputs"},
		{"duplicate index", http.StatusOK, "application/json", `{"data":[{"index":0,"embedding":[1,0]},{"index":0,"embedding":[0,1]}]}`, "duplicate embedding index 0"},
		{"index out of range", http.StatusOK, "application/json", `{"data":[{"index":0,"embedding":[1,0]},{"index":2,"embedding":[0,1]}]}`, "embedding index 2 out of range"},
		{"ragged dimensions", http.StatusOK, "application/json", `{"data":[{"index":0,"embedding":[1,0]},{"index":1,"embedding":[0,1,5]}]}`, "embedding at index 1 has 3 dimensions, want 2"},
		{"empty vector", http.StatusOK, "application/json", `{"data":[{"index":0,"embedding":[]},{"index":1,"embedding":[0,1]}]}`, "empty embedding at index 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			e := &RemoteEmbedder{Client: srv.Client(), URL: srv.URL}
			vecs, err := e.Embed(context.Background(), []string{"a", "b"})
			require.Error(t, err)
			assert.Nil(t, vecs)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRemoteEmbedderHonorsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the server")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := &RemoteEmbedder{Client: srv.Client(), URL: srv.URL}
	_, err := e.Embed(ctx, []string{"a"})
	require.ErrorIs(t, err, context.Canceled)
}
