// Package report renders analysis results for the terminal.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/models"
)

const abstractLimit = 200

var separator = strings.Repeat("─", 60)

type group struct {
	title string
	keys  []string
}

var groups = []group{
	{"핵심 정보", []string{"inventionTitle", "astrtCont"}},
	{"주요 식별 정보", []string{"applicationNumber", "registerNumber", "publicationNumber", "openNumber", "applicantName"}},
	{"주요 일자", []string{"applicationDate", "publicationDate", "registerDate", "openDate"}},
	{"기타 정보", []string{"registerStatus", "ipcNumber", "drawing", "bigDrawing"}},
}

var labels = map[string]string{
	"inventionTitle":    "발명의 명칭",
	"applicationNumber": "출원번호",
	"applicantName":     "출원인",
	"astrtCont":         "요약",
	"applicationDate":   "출원일자",
	"registerStatus":    "현재 상태",
	"publicationNumber": "공고번호",
	"publicationDate":   "공고일자",
	"openNumber":        "공개번호",
	"openDate":          "공개일자",
	"registerNumber":    "등록번호",
	"registerDate":      "등록일자",
	"ipcNumber":         "IPC 분류",
	"drawing":           "대표도면 URL",
	"bigDrawing":        "큰 대표도면 URL",
}

// Write renders a successful analysis.
func Write(w io.Writer, r models.AnalysisResult) {
	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, "최종 종합 정보 보고서")
	fmt.Fprintln(w, separator)

	fmt.Fprintln(w, "\n[ 검색 정보 ]")
	fmt.Fprintf(w, "  - 최종 검색어: %s\n", orNA(r.Query))

	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "\n[ 대표 특허 상세 정보 ]")
	writeBasicInfo(w, r.BasicInfo)

	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "\n[ 관계 특허 정보 ]")
	writeCitations(w, "이 특허가 인용한 특허", r.CitedPatents)
	writeCitations(w, "이 특허를 인용한 특허", r.CitingPatents)
	writeFamily(w, r.PatentFamily)

	fmt.Fprintln(w, "\n"+separator)
}

// WriteError renders a failed analysis.
func WriteError(w io.Writer, message string) {
	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, "최종 종합 정보 보고서")
	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "\n분석 실패: %s\n", message)
	fmt.Fprintln(w, separator)
}

func writeBasicInfo(w io.Writer, info models.BasicInfo) {
	remaining := make(map[string]struct{}, len(info))
	for k := range info {
		remaining[k] = struct{}{}
	}

	for _, g := range groups {
		var present []string
		for _, k := range g.keys {
			if _, ok := info[k]; ok {
				present = append(present, k)
			}
		}
		if len(present) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", g.title)
		for _, k := range present {
			if k == "astrtCont" {
				fmt.Fprintf(w, "  - %s:\n    %s\n", labels[k], Truncate(info[k], abstractLimit))
			} else {
				fmt.Fprintf(w, "  - %s: %s\n", labels[k], info[k])
			}
			delete(remaining, k)
		}
	}

	if len(remaining) == 0 {
		return
	}
	keys := make([]string, 0, len(remaining))
	for k := range remaining {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, "\n기타 추가 정보")
	for _, k := range keys {
		fmt.Fprintf(w, "  - %s: %s\n", k, info[k])
	}
}

func writeCitations(w io.Writer, title string, refs []models.CitationRef) {
	fmt.Fprintf(w, "\n  - %s: ", title)
	if len(refs) == 0 {
		fmt.Fprintln(w, "정보 없음")
		return
	}
	fmt.Fprintf(w, "%d건\n", len(refs))
	for _, ref := range refs {
		fmt.Fprintf(w, "    - %s\n", orMissing(string(ref)))
	}
}

func writeFamily(w io.Writer, family []models.FamilyMember) {
	fmt.Fprint(w, "\n  - 해외 패밀리 특허: ")
	if len(family) == 0 {
		fmt.Fprintln(w, "정보 없음")
		return
	}
	fmt.Fprintf(w, "%d건\n", len(family))
	for _, c := range GroupFamily(family) {
		fmt.Fprintf(w, "    - [%s]: %s\n", c.Country, strings.Join(c.Numbers, ", "))
	}
}

// CountryFamily holds the distinct application numbers filed in one country.
type CountryFamily struct {
	Country string
	Numbers []string
}

// GroupFamily groups members by country in order of first appearance and
// drops repeated application numbers within a country.
func GroupFamily(family []models.FamilyMember) []CountryFamily {
	var out []CountryFamily
	index := make(map[string]int)
	seen := make(map[string]map[string]struct{})
	for _, m := range family {
		country := m.Country
		if country == "" {
			country = "?"
		}
		number := orMissing(m.AppNumber)
		i, ok := index[country]
		if !ok {
			i = len(out)
			index[country] = i
			out = append(out, CountryFamily{Country: country})
			seen[country] = make(map[string]struct{})
		}
		if _, dup := seen[country][number]; dup {
			continue
		}
		seen[country][number] = struct{}{}
		out[i].Numbers = append(out[i].Numbers, number)
	}
	return out
}

// Truncate cuts s to at most limit runes, marking the cut with "...".
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func orMissing(s string) string {
	if s == "" {
		return "번호 없음"
	}
	return s
}
