package embed

import (
	"context"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

const (
	wordWeight  = 1.0
	charWeight  = 0.5
	minCharGram = 2
	maxCharGram = 3
)

// HashingEmbedder is an offline embedder. Whole words and padded character
// n-grams are hashed into Dims buckets with a hash-derived sign, so phrases
// sharing stems (common for agglutinated Korean tokens) land close together.
type HashingEmbedder struct {
	Dims int
}

func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = 512
	}
	return &HashingEmbedder{Dims: dims}
}

func (e *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *HashingEmbedder) vector(text string) []float64 {
	v := make([]float64, e.Dims)
	for _, tok := range strings.Fields(strings.ToLower(norm.NFC.String(text))) {
		e.add(v, "w:"+tok, wordWeight)
		runes := []rune("<" + tok + ">")
		for n := minCharGram; n <= maxCharGram; n++ {
			for i := 0; i+n <= len(runes); i++ {
				e.add(v, "c:"+string(runes[i:i+n]), charWeight)
			}
		}
	}
	normalize(v)
	return v
}

func (e *HashingEmbedder) add(v []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	idx := h % uint64(e.Dims)
	if h>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}
