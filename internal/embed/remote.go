package embed

import (
	"context"
	"fmt"
	"net/http"

	ET "github.com/IBM/fp-go/v2/either"
	F "github.com/IBM/fp-go/v2/function"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	Http "github.com/IBM/fp-go/v2/ioeither/http"
	J "github.com/IBM/fp-go/v2/json"
)

// RemoteEmbedder calls an OpenAI-compatible embeddings endpoint, such as a
// text-embeddings-inference server hosting a sentence-transformer model.
type RemoteEmbedder struct {
	Client *http.Client
	URL    string
	Model  string
	APIKey string
}

type embeddingRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

func (e *RemoteEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}

	request := F.Pipe1(
		Http.MakeBodyRequest(
			http.MethodPost,
			IOE.FromEither(J.Marshal(embeddingRequest{Model: e.Model, Input: texts})),
		)(e.URL),
		IOE.Map[error](func(req *http.Request) *http.Request {
			req = req.WithContext(ctx)
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json")
			if e.APIKey != "" {
				req.Header.Set("Authorization", "Bearer "+e.APIKey)
			}
			return req
		}),
	)

	result := F.Pipe1(
		Http.ReadJSON[embeddingResponse](Http.MakeClient(client))(request),
		IOE.ChainEitherK(func(resp embeddingResponse) ET.Either[error, [][]float64] {
			return ET.TryCatchError(vectors(resp, len(texts)))
		}),
	)()

	vecs, err := ET.UnwrapError(result)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	return vecs, nil
}

// vectors orders the response by index. Indices must be exactly 0..n-1 and
// all vectors must share one non-zero dimensionality.
func vectors(resp embeddingResponse, n int) ([][]float64, error) {
	if len(resp.Data) != n {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(resp.Data), n)
	}
	out := make([][]float64, n)
	dims := -1
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= n {
			return nil, fmt.Errorf("embedding index %d out of range [0,%d)", d.Index, n)
		}
		if out[d.Index] != nil {
			return nil, fmt.Errorf("duplicate embedding index %d", d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", d.Index)
		}
		if dims == -1 {
			dims = len(d.Embedding)
		} else if len(d.Embedding) != dims {
			return nil, fmt.Errorf("embedding at index %d has %d dimensions, want %d", d.Index, len(d.Embedding), dims)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
