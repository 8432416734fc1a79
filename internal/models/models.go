package models

import (
	"encoding/json"
	"errors"
)

// BasicInfo holds the bibliographic fields of the first registry item,
// keyed by the registry's element name. Empty values are never stored.
type BasicInfo map[string]string

// CitationRef is an application number referenced by a citation record.
// The registry may omit it; an empty ref encodes as JSON null.
type CitationRef string

func (c CitationRef) MarshalJSON() ([]byte, error) {
	if c == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(c))
}

func (c *CitationRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = CitationRef(s)
	return nil
}

type FamilyMember struct {
	Country   string `json:"country"`
	AppNumber string `json:"app_number"`
}

// Related is the tolerant aggregate of the four registry lookups for one
// application number. Any part may be missing.
type Related struct {
	BasicInfo BasicInfo
	Cited     []CitationRef
	Citing    []CitationRef
	Family    []FamilyMember
}

type AnalysisResult struct {
	Query             string         `json:"main_patent_query"`
	ApplicationNumber string         `json:"applicationNumber"`
	BasicInfo         BasicInfo      `json:"basicInfo"`
	CitedPatents      []CitationRef  `json:"citedPatents"`
	CitingPatents     []CitationRef  `json:"citingPatents"`
	PatentFamily      []FamilyMember `json:"patentFamily"`
}

var (
	ErrNotFound       = errors.New("no matching patent")
	ErrNoKeywords     = errors.New("no keywords extracted")
	ErrNoValidKeyword = errors.New("no valid keyword after filtering")
	ErrNoBasicInfo    = errors.New("basic information unavailable")
)

// AnalysisError is the error-shaped result of a failed analysis. Message is
// meant for the end user; Kind is one of the sentinel errors above.
type AnalysisError struct {
	Kind    error  `json:"-"`
	Message string `json:"error"`
}

func (e *AnalysisError) Error() string { return e.Message }

func (e *AnalysisError) Unwrap() error { return e.Kind }

func NewAnalysisError(kind error, message string) *AnalysisError {
	return &AnalysisError{Kind: kind, Message: message}
}
