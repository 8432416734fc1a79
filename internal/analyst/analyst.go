// Package analyst turns a technical description into a comprehensive patent
// record: keyphrases, a noun query, the representative application and its
// citations and family.
package analyst

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/keyword"
	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/kipris"
	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/models"
)

const (
	msgNoKeywords     = "입력된 문장에서 핵심 기술 어구를 추출하지 못했습니다."
	msgNoValidKeyword = "추출된 어구에서 유효한 키워드를 찾지 못했습니다."
	msgNotFound       = "'%s'에 해당하는 대표 특허를 찾을 수 없습니다."
	msgNoBasicInfo    = "기본 정보를 가져오지 못했습니다."
)

type KeywordExtractor interface {
	Extract(ctx context.Context, sentence string) ([]keyword.Keyword, error)
}

type NounFilter interface {
	Query(phrases []string) (string, error)
}

type Registry interface {
	Resolve(ctx context.Context, query string) (string, error)
	FetchAll(ctx context.Context, appNumber string) models.Related
}

type Analyst struct {
	Extractor        KeywordExtractor
	Nouns            NounFilter
	Registry         Registry
	ThresholdRatio   float64
	Logger           *zap.SugaredLogger
	Tracer           trace.Tracer
	Meter            metric.Meter
	analysesTotal    metric.Int64Counter
	analysisDuration metric.Int64Histogram
}

func New(
	extractor KeywordExtractor,
	nouns NounFilter,
	registry Registry,
	thresholdRatio float64,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Analyst, error) {
	a := &Analyst{
		Extractor:      extractor,
		Nouns:          nouns,
		Registry:       registry,
		ThresholdRatio: thresholdRatio,
		Logger:         logger,
		Tracer:         tracer,
		Meter:          meter,
	}

	var err error
	a.analysesTotal, err = meter.Int64Counter(
		"analysis.total",
		metric.WithDescription("Number of analyses by outcome"),
	)
	if err != nil {
		return nil, err
	}

	a.analysisDuration, err = meter.Int64Histogram(
		"analysis.duration",
		metric.WithDescription("Duration of a full analysis"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Analyze runs the whole pipeline for one query. Expected failures come back
// as *models.AnalysisError; any other error is an internal fault such as an
// unreachable embedding service.
func (a *Analyst) Analyze(ctx context.Context, query string) (models.AnalysisResult, error) {
	query = strings.TrimSpace(query)
	ctx, span := a.Tracer.Start(ctx, "analysis.analyze", trace.WithAttributes(
		attribute.String("query", query),
	))
	defer span.End()
	startTime := time.Now()

	result, err := a.analyze(ctx, query)

	outcome := "success"
	var aerr *models.AnalysisError
	switch {
	case errors.As(err, &aerr):
		outcome = outcomeOf(aerr.Kind)
		span.AddEvent("analysis_failed", trace.WithAttributes(attribute.String("reason", aerr.Message)))
		a.Logger.Infow("Analysis failed", "query", query, "reason", aerr.Message)
	case err != nil:
		outcome = "error"
		span.RecordError(err)
		a.Logger.Errorw("Analysis error", "query", query, "err", err)
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	a.analysesTotal.Add(ctx, 1, attrs)
	a.analysisDuration.Record(ctx, time.Since(startTime).Milliseconds(), attrs)
	return result, err
}

func (a *Analyst) analyze(ctx context.Context, query string) (models.AnalysisResult, error) {
	searchQuery := query
	if !kipris.IsApplicationNumber(query) {
		var err error
		searchQuery, err = a.searchQuery(ctx, query)
		if err != nil {
			return models.AnalysisResult{}, err
		}
	}

	appNumber, err := a.Registry.Resolve(ctx, searchQuery)
	if errors.Is(err, models.ErrNotFound) {
		return models.AnalysisResult{}, models.NewAnalysisError(models.ErrNotFound, fmt.Sprintf(msgNotFound, searchQuery))
	}
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("resolve %q: %w", searchQuery, err)
	}

	related := a.Registry.FetchAll(ctx, appNumber)
	if related.BasicInfo == nil {
		return models.AnalysisResult{}, models.NewAnalysisError(models.ErrNoBasicInfo, msgNoBasicInfo)
	}

	return models.AnalysisResult{
		Query:             searchQuery,
		ApplicationNumber: appNumber,
		BasicInfo:         related.BasicInfo,
		CitedPatents:      orEmpty(related.Cited),
		CitingPatents:     orEmpty(related.Citing),
		PatentFamily:      orEmpty(related.Family),
	}, nil
}

// searchQuery reduces a free-text sentence to the registry query string.
func (a *Analyst) searchQuery(ctx context.Context, sentence string) (string, error) {
	keywords, err := a.Extractor.Extract(ctx, sentence)
	if err != nil {
		return "", fmt.Errorf("extract keywords: %w", err)
	}
	if len(keywords) == 0 {
		return "", models.NewAnalysisError(models.ErrNoKeywords, msgNoKeywords)
	}

	phrases := keyword.Select(keywords, a.ThresholdRatio)
	a.Logger.Infow("Selected keyphrases", "phrases", phrases)

	q, err := a.Nouns.Query(phrases)
	if errors.Is(err, models.ErrNoValidKeyword) {
		return "", models.NewAnalysisError(models.ErrNoValidKeyword, msgNoValidKeyword)
	}
	if err != nil {
		return "", fmt.Errorf("filter nouns: %w", err)
	}
	a.Logger.Infow("Refined search query", "query", q)
	return q, nil
}

func outcomeOf(kind error) string {
	switch {
	case errors.Is(kind, models.ErrNotFound):
		return "not_found"
	case errors.Is(kind, models.ErrNoKeywords):
		return "no_keywords"
	case errors.Is(kind, models.ErrNoValidKeyword):
		return "no_valid_keyword"
	case errors.Is(kind, models.ErrNoBasicInfo):
		return "no_basic_info"
	default:
		return "failed"
	}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
