// Package keyword ranks candidate keyphrases of a sentence by how close their
// embedding lies to the embedding of the whole sentence.
package keyword

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/config"
	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/embed"
)

// tokenPattern keeps runs of two or more letters, digits or underscores.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

type Keyword struct {
	Phrase string  `json:"phrase"`
	Score  float64 `json:"score"`
}

type Extractor struct {
	Embedder embed.Embedder
	NGramMin int
	NGramMax int
	TopN     int
	Logger   *zap.SugaredLogger
	Tracer   trace.Tracer
}

func NewExtractor(
	cfg config.Extract,
	embedder embed.Embedder,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
) *Extractor {
	return &Extractor{
		Embedder: embedder,
		NGramMin: cfg.NGramMin,
		NGramMax: cfg.NGramMax,
		TopN:     cfg.TopN,
		Logger:   logger,
		Tracer:   tracer,
	}
}

// Extract returns at most TopN candidate phrases ordered by descending score.
// An empty result is not an error; callers decide what that means.
func (e *Extractor) Extract(ctx context.Context, sentence string) ([]Keyword, error) {
	ctx, span := e.Tracer.Start(ctx, "keyword.extract")
	defer span.End()

	candidates := Candidates(sentence, e.NGramMin, e.NGramMax)
	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	if len(candidates) == 0 {
		return nil, nil
	}

	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, sentence)
	texts = append(texts, candidates...)
	vecs, err := e.Embedder.Embed(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("embedding candidates: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}

	doc := vecs[0]
	keywords := make([]Keyword, len(candidates))
	for i, c := range candidates {
		keywords[i] = Keyword{Phrase: c, Score: round4(embed.Cosine(doc, vecs[i+1]))}
	}
	sort.SliceStable(keywords, func(i, j int) bool {
		return keywords[i].Score > keywords[j].Score
	})
	if e.TopN > 0 && len(keywords) > e.TopN {
		keywords = keywords[:e.TopN]
	}

	e.Logger.Debugw("Ranked keyphrases", "sentence", sentence, "keywords", keywords)
	return keywords, nil
}

// Select keeps every keyword scoring at least ratio times the top score.
// Keywords must already be ordered by descending score.
func Select(keywords []Keyword, ratio float64) []string {
	if len(keywords) == 0 {
		return nil
	}
	threshold := keywords[0].Score * ratio
	var selected []string
	for _, kw := range keywords {
		if kw.Score >= threshold {
			selected = append(selected, kw.Phrase)
		}
	}
	return selected
}

// Candidates lists the distinct n-grams of the sentence for n in [min, max],
// in lexical order. Tokens are lowercased after NFC normalization.
func Candidates(sentence string, min, max int) []string {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	tokens := tokenPattern.FindAllString(strings.ToLower(norm.NFC.String(sentence)), -1)

	seen := make(map[string]struct{})
	var out []string
	for n := min; n <= max; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			gram := strings.Join(tokens[i:i+n], " ")
			if _, ok := seen[gram]; ok {
				continue
			}
			seen[gram] = struct{}{}
			out = append(out, gram)
		}
	}
	sort.Strings(out)
	return out
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
