package internal

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/analyst"
	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/api"
	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/batch"
	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/config"
	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/embed"
	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/keyword"
	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/kipris"
	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/nouns"
)

type Services struct {
	Analyst AnalystInterface
	Batch   BatchInterface
	Handler http.Handler
}

func InitServices(
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Services, error) {
	embedder, err := NewEmbedder(cfg.Extract)
	if err != nil {
		return nil, err
	}
	extractor := keyword.NewExtractor(cfg.Extract, embedder, tracer, logger)
	registry, err := kipris.NewClient(cfg.Registry, tracer, logger, meter)
	if err != nil {
		return nil, err
	}
	a, err := analyst.New(
		extractor,
		nouns.NewFilter(cfg.Nouns),
		registry,
		cfg.Extract.ThresholdRatio,
		tracer,
		logger,
		meter,
	)
	if err != nil {
		return nil, err
	}
	b, err := batch.NewRunner(a, tracer, logger, meter)
	if err != nil {
		return nil, err
	}
	return &Services{
		Analyst: a,
		Batch:   b,
		Handler: api.NewServer(a, logger),
	}, nil
}

// NewEmbedder builds the sentence embedder selected by extract.embedder.
func NewEmbedder(cfg config.Extract) (embed.Embedder, error) {
	switch cfg.Embedder {
	case "", "hashing":
		return embed.NewHashingEmbedder(cfg.Dimensions), nil
	case "remote":
		return &embed.RemoteEmbedder{
			Client: &http.Client{Timeout: cfg.Timeout},
			URL:    cfg.EmbeddingURL,
			Model:  cfg.Model,
			APIKey: cfg.EmbeddingKey,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported embedder: %s", cfg.Embedder)
	}
}
