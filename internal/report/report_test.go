package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/models"
)

func TestGroupFamilyDeduplicatesPerCountry(t *testing.T) {
	got := GroupFamily([]models.FamilyMember{
		{Country: "US", AppNumber: "17/123,456"},
		{Country: "JP", AppNumber: "2021-000111"},
		{Country: "US", AppNumber: "17/123,456"},
		{Country: "US", AppNumber: "17/999,000"},
		{Country: "", AppNumber: ""},
	})
	assert.Equal(t, []CountryFamily{
		{Country: "US", Numbers: []string{"17/123,456", "17/999,000"}},
		{Country: "JP", Numbers: []string{"2021-000111"}},
		{Country: "?", Numbers: []string{"번호 없음"}},
	}, got)
}

func TestTruncateCountsRunes(t *testing.T) {
	assert.Equal(t, "특허", Truncate("특허", 2))
	assert.Equal(t, "특허...", Truncate("특허검색", 2))
	assert.Equal(t, "", Truncate("", 5))
}

func TestWriteGroupsFieldsWithLabels(t *testing.T) {
	var buf bytes.Buffer
	Write(&buf, models.AnalysisResult{
		Query:             "검색기술 특허",
		ApplicationNumber: "1020200012345",
		BasicInfo: models.BasicInfo{
			"inventionTitle":    "특허 검색 시스템",
			"astrtCont":         strings.Repeat("가", 250),
			"applicationNumber": "1020200012345",
			"registerStatus":    "등록",
			"zExtra":            "z",
			"aExtra":            "a",
		},
		CitedPatents:  []models.CitationRef{"1020150001111", ""},
		CitingPatents: []models.CitationRef{},
		PatentFamily: []models.FamilyMember{
			{Country: "US", AppNumber: "17123456"},
			{Country: "US", AppNumber: "17123456"},
		},
	})
	out := buf.String()

	assert.Contains(t, out, "  - 최종 검색어: 검색기술 특허")
	assert.Contains(t, out, "\n핵심 정보\n  - 발명의 명칭: 특허 검색 시스템\n  - 요약:\n    "+strings.Repeat("가", 200)+"...\n")
	assert.Contains(t, out, "\n주요 식별 정보\n  - 출원번호: 1020200012345\n")
	assert.NotContains(t, out, "주요 일자")
	assert.Contains(t, out, "\n기타 정보\n  - 현재 상태: 등록\n")
	assert.Contains(t, out, "\n기타 추가 정보\n  - aExtra: a\n  - zExtra: z\n")
	assert.Contains(t, out, "이 특허가 인용한 특허: 2건\n    - 1020150001111\n    - 번호 없음\n")
	assert.Contains(t, out, "이 특허를 인용한 특허: 정보 없음")
	assert.Contains(t, out, "해외 패밀리 특허: 2건\n    - [US]: 17123456\n")
}

func TestWriteError(t *testing.T) {
	var buf bytes.Buffer
	WriteError(&buf, "기본 정보를 가져오지 못했습니다.")
	assert.Contains(t, buf.String(), "분석 실패: 기본 정보를 가져오지 못했습니다.")
}
