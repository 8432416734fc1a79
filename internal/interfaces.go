package internal

import (
	"context"

	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/models"
)

type AnalystInterface interface {
	Analyze(ctx context.Context, query string) (models.AnalysisResult, error)
}

type BatchInterface interface {
	RunFile(ctx context.Context, inputPath, outputCSV string, maxWorkers int64) error
}
