// Package nouns reduces ranked keyphrases to the registry search query.
package nouns

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/IBM/fp-go/v2/array"
	F "github.com/IBM/fp-go/v2/function"

	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/config"
	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/models"
)

type Filter struct {
	Analyzer  Analyzer
	MinLength int
}

func NewFilter(cfg config.Nouns) *Filter {
	return &Filter{
		Analyzer:  KoreanAnalyzer{KeepLatin: cfg.KeepLatin},
		MinLength: cfg.MinLength,
	}
}

// Nouns returns the distinct nouns of the phrases that are at least
// MinLength runes long, longest first. Equal lengths keep their first
// appearance order.
func (f *Filter) Nouns(phrases []string) []string {
	words := F.Pipe2(
		f.Analyzer.Nouns(strings.Join(phrases, " ")),
		array.Filter(func(w string) bool {
			return utf8.RuneCountInString(w) >= f.MinLength
		}),
		dedupe,
	)
	sort.SliceStable(words, func(i, j int) bool {
		return utf8.RuneCountInString(words[i]) > utf8.RuneCountInString(words[j])
	})
	return words
}

// Query joins the filtered nouns into the registry search string.
func (f *Filter) Query(phrases []string) (string, error) {
	words := f.Nouns(phrases)
	if len(words) == 0 {
		return "", models.ErrNoValidKeyword
	}
	return strings.Join(words, " "), nil
}

func dedupe(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
