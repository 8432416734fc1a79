package nouns

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Analyzer extracts noun morphemes from free text, in order of appearance.
type Analyzer interface {
	Nouns(text string) []string
}

// attach says which stems a suffix may follow.
type attach int

const (
	afterAny attach = iota
	afterConsonant
	afterVowel
)

type suffix struct {
	text  string
	after attach
}

// particles are postpositions that follow a noun inside one eojeol. Longer
// forms come first so that "으로부터" wins over "부터".
var particles = sortByLength([]suffix{
	{"으로부터", afterConsonant}, {"에서부터", afterAny}, {"로부터", afterVowel},
	{"이라는", afterConsonant}, {"으로써", afterConsonant}, {"으로서", afterConsonant},
	{"에게서", afterAny}, {"에서의", afterAny}, {"에서는", afterAny}, {"에서도", afterAny},
	{"으로", afterConsonant}, {"로써", afterVowel}, {"로서", afterVowel}, {"라는", afterVowel},
	{"에서", afterAny}, {"에게", afterAny}, {"까지", afterAny}, {"부터", afterAny},
	{"보다", afterAny}, {"처럼", afterAny}, {"마다", afterAny}, {"에는", afterAny},
	{"에도", afterAny}, {"과의", afterConsonant}, {"와의", afterVowel}, {"과는", afterConsonant},
	{"와는", afterVowel}, {"이나", afterConsonant}, {"이며", afterConsonant}, {"이고", afterConsonant},
	{"이다", afterConsonant}, {"이란", afterConsonant},
	{"이", afterConsonant}, {"은", afterConsonant}, {"을", afterConsonant}, {"과", afterConsonant},
	{"가", afterVowel}, {"는", afterVowel}, {"를", afterVowel}, {"와", afterVowel},
	{"의", afterAny}, {"에", afterAny},
})

// endings turn a verbal noun back into the noun ("검색하는" -> "검색").
var endings = sortByLength([]suffix{
	{"하였다", afterAny}, {"되었다", afterAny}, {"시키는", afterAny}, {"스러운", afterAny},
	{"스럽게", afterAny}, {"적으로", afterAny},
	{"하는", afterAny}, {"하여", afterAny}, {"하고", afterAny}, {"하기", afterAny},
	{"한다", afterAny}, {"했다", afterAny}, {"하면", afterAny}, {"하며", afterAny},
	{"하게", afterAny}, {"되는", afterAny}, {"되어", afterAny}, {"되고", afterAny},
	{"된다", afterAny}, {"되며", afterAny}, {"되면", afterAny}, {"되게", afterAny},
	{"시켜", afterAny}, {"시킨", afterAny}, {"적인", afterAny},
	{"한", afterAny}, {"할", afterAny}, {"함", afterAny},
	{"된", afterAny}, {"될", afterAny}, {"됨", afterAny},
})

// protectedNouns end in a syllable that doubles as an ending or particle.
// Stripping never cuts into them, so "접근권한" keeps its final "한".
var protectedNouns = []string{
	"권한", "제한", "기한", "무한", "유한", "상한", "하한",
	"주의", "정의", "합의", "논의", "협의", "동의", "회의", "강의", "건의", "편의", "결의",
	"고양이", "어린이", "아이", "차이", "길이", "높이", "넓이", "깊이", "놀이", "종이", "나이",
	"효과", "결과", "통과", "초과", "성과",
	"평가", "증가", "추가", "참가", "부가",
	"포함",
}

var stopwords = map[string]struct{}{
	"이것": {}, "그것": {}, "저것": {}, "여기": {}, "거기": {}, "저기": {},
	"우리": {}, "때문": {}, "무엇": {}, "어떤": {}, "이런": {}, "그런": {},
}

// KoreanAnalyzer is a dictionary-free noun extractor for Korean text. Each
// whitespace-separated eojeol is stripped of one verbal ending and then one
// trailing particle; stems shorter than two syllables are never produced by
// stripping. Latin tokens are kept only with KeepLatin.
type KoreanAnalyzer struct {
	KeepLatin bool
}

func (a KoreanAnalyzer) Nouns(text string) []string {
	var out []string
	for _, field := range strings.Fields(norm.NFC.String(text)) {
		tok := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		switch {
		case tok == "":
			continue
		case isHangulWord(tok):
			stem := stripSuffix(tok, endings)
			stem = stripSuffix(stem, particles)
			if _, stop := stopwords[stem]; stop {
				continue
			}
			out = append(out, stem)
		case a.KeepLatin && isLatinWord(tok):
			out = append(out, tok)
		}
	}
	return out
}

func stripSuffix(word string, suffixes []suffix) string {
	for _, s := range suffixes {
		if !strings.HasSuffix(word, s.text) {
			continue
		}
		stem := strings.TrimSuffix(word, s.text)
		if utf8.RuneCountInString(stem) < 2 || cutsProtected(word, s.text) {
			continue
		}
		last, _ := utf8.DecodeLastRuneInString(stem)
		switch s.after {
		case afterConsonant:
			if !hasFinalConsonant(last) {
				continue
			}
		case afterVowel:
			if hasFinalConsonant(last) {
				continue
			}
		}
		return stem
	}
	return word
}

// cutsProtected reports whether removing suffix from word would cut into a
// protected noun that ends the word.
func cutsProtected(word, suffix string) bool {
	for _, noun := range protectedNouns {
		if strings.HasSuffix(word, noun) && len(suffix) <= len(noun) {
			return true
		}
	}
	return false
}

func isHangulSyllable(r rune) bool {
	return r >= 0xAC00 && r <= 0xD7A3
}

// hasFinalConsonant reports whether the syllable carries a batchim.
func hasFinalConsonant(r rune) bool {
	return isHangulSyllable(r) && (r-0xAC00)%28 != 0
}

func isHangulWord(s string) bool {
	for _, r := range s {
		if !isHangulSyllable(r) {
			return false
		}
	}
	return true
}

func isLatinWord(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func sortByLength(s []suffix) []suffix {
	out := make([]suffix, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool {
		return utf8.RuneCountInString(out[i].text) > utf8.RuneCountInString(out[j].text)
	})
	return out
}
