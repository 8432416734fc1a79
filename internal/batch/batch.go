// Package batch analyzes a list of queries concurrently and writes one CSV
// row per query.
package batch

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/fp-go/v2/array"
	ET "github.com/IBM/fp-go/v2/either"
	F "github.com/IBM/fp-go/v2/function"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/models"
	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/report"
	T "github.com/Qubut/IP-Claim/packages/patent_analyst/internal/typing"
)

var Header = []string{
	"query",
	"application_number",
	"invention_title",
	"register_status",
	"cited",
	"citing",
	"family",
	"error",
}

type Analyzer interface {
	Analyze(ctx context.Context, query string) (models.AnalysisResult, error)
}

type Runner struct {
	Analyzer        Analyzer
	Logger          *zap.SugaredLogger
	Tracer          trace.Tracer
	Meter           metric.Meter
	ProgressOut     io.Writer
	progress        *progressbar.ProgressBar
	processed       *atomic.Uint64
	sessionDuration metric.Int64Histogram
	queriesTotal    metric.Int64Counter
	queriesSuccess  metric.Int64Counter
	queriesFailed   metric.Int64Counter
	queryDuration   metric.Int64Histogram
}

func NewRunner(
	analyzer Analyzer,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Runner, error) {
	r := &Runner{
		Analyzer:    analyzer,
		Logger:      logger,
		Tracer:      tracer,
		Meter:       meter,
		ProgressOut: os.Stdout,
		processed:   &atomic.Uint64{},
	}

	var err error
	r.sessionDuration, err = meter.Int64Histogram(
		"batch.session.duration",
		metric.WithDescription("Duration of the full batch session"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	r.queriesTotal, err = meter.Int64Counter(
		"batch.queries.total",
		metric.WithDescription("Total number of queries read"),
	)
	if err != nil {
		return nil, err
	}

	r.queriesSuccess, err = meter.Int64Counter(
		"batch.queries.success",
		metric.WithDescription("Number of successfully analyzed queries"),
	)
	if err != nil {
		return nil, err
	}

	r.queriesFailed, err = meter.Int64Counter(
		"batch.queries.failed",
		metric.WithDescription("Number of failed analyses"),
	)
	if err != nil {
		return nil, err
	}

	r.queryDuration, err = meter.Int64Histogram(
		"batch.query.duration",
		metric.WithDescription("Duration of a single query analysis"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// ReadQueries returns the trimmed, non-empty lines of r. Lines starting with
// '#' are comments.
func ReadQueries(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}
	return F.Pipe2(
		lines,
		array.Map(strings.TrimSpace),
		array.Filter(func(s string) bool {
			return s != "" && !strings.HasPrefix(s, "#")
		}),
	), nil
}

// RunFile reads queries from inputPath and writes the CSV to outputCSV.
func (r *Runner) RunFile(ctx context.Context, inputPath, outputCSV string, maxWorkers int64) error {
	queries := IOE.Bracket(
		IOE.Eitherize1(os.Open)(inputPath),
		func(f *os.File) IOE.IOEither[error, []string] {
			return IOE.TryCatchError(func() ([]string, error) {
				return ReadQueries(f)
			})
		},
		func(f *os.File, _ ET.Either[error, []string]) IOE.IOEither[error, T.Unit] {
			return IOE.TryCatchError(func() (T.Unit, error) {
				return T.Unit{}, f.Close()
			})
		},
	)()
	list, err := ET.UnwrapError(queries)
	if err != nil {
		return fmt.Errorf("open queries %s: %w", inputPath, err)
	}

	file, err := os.Create(outputCSV)
	if err != nil {
		return fmt.Errorf("failed to create CSV: %w", err)
	}
	defer file.Close()

	buf := bufio.NewWriter(file)
	if err := r.Run(ctx, list, buf, maxWorkers); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flush CSV: %w", err)
	}
	return nil
}

// Run analyzes queries with at most maxWorkers in flight. A failed analysis
// is reported in the row's error column; only write failures abort the run.
func (r *Runner) Run(ctx context.Context, queries []string, out io.Writer, maxWorkers int64) error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	ctx, sessionSpan := r.Tracer.Start(ctx, "batch.session", trace.WithAttributes(
		attribute.Int("queries", len(queries)),
		attribute.Int64("max_workers", maxWorkers),
	))
	defer sessionSpan.End()

	startTime := time.Now()
	r.Logger.Infow("Starting batch session", "queries", len(queries), "workers", maxWorkers)
	r.queriesTotal.Add(ctx, int64(len(queries)))

	r.progress = progressbar.NewOptions(len(queries),
		progressbar.OptionSetWriter(r.ProgressOut),
		progressbar.OptionSetWidth(60),
		progressbar.OptionSetDescription("Analyzing queries..."),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(50*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
	)

	writer := csv.NewWriter(out)
	if err := writer.Write(Header); err != nil {
		sessionSpan.RecordError(err)
		return fmt.Errorf("failed to write header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		sessionSpan.RecordError(err)
		return fmt.Errorf("failed to write header: %w", err)
	}

	var writeMu sync.Mutex
	safeWrite := func(row []string) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := writer.Write(row); err != nil {
			return err
		}
		writer.Flush()
		return writer.Error()
	}

	sem := semaphore.NewWeighted(maxWorkers)
	var wg sync.WaitGroup
	errChan := make(chan error, 1)

	for _, query := range queries {
		if err := sem.Acquire(ctx, 1); err != nil {
			r.Logger.Warnw("Batch cancelled", "err", err)
			wg.Wait()
			sessionSpan.RecordError(err)
			return err
		}
		wg.Add(1)

		go func(q string) {
			defer wg.Done()
			defer sem.Release(1)

			ctxQuery, span := r.Tracer.Start(ctx, "batch.query", trace.WithAttributes(
				attribute.String("query", q),
			))
			defer span.End()

			queryStart := time.Now()
			result, err := r.Analyzer.Analyze(ctxQuery, q)
			status := "success"
			if err != nil {
				status = "failed"
				span.RecordError(err)
				r.queriesFailed.Add(ctxQuery, 1)
				r.Logger.Debugw("Query failed", "query", q, "err", err)
			} else {
				r.queriesSuccess.Add(ctxQuery, 1)
			}
			r.queryDuration.Record(
				ctxQuery,
				time.Since(queryStart).Milliseconds(),
				metric.WithAttributes(attribute.String("status", status)),
			)

			if werr := safeWrite(Row(q, result, err)); werr != nil {
				span.RecordError(werr)
				select {
				case errChan <- fmt.Errorf("write row for %q: %w", q, werr):
				default:
				}
			}
			r.updateProgress()
			if n := r.processed.Add(1); n%100 == 0 {
				r.Logger.Infow("Processed queries", "total", n)
			}
		}(query)
	}

	wg.Wait()
	close(errChan)
	if err, ok := <-errChan; ok {
		sessionSpan.RecordError(err)
		return err
	}

	status := "success"
	if len(queries) == 0 {
		status = "empty"
	}
	r.sessionDuration.Record(
		ctx,
		time.Since(startTime).Milliseconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)
	r.Logger.Infow("Batch completed", "total_queries", r.processed.Load())
	if r.progress != nil {
		r.progress.Describe("Batch complete")
		_ = r.progress.Finish()
		r.progress = nil
	}
	return nil
}

func (r *Runner) updateProgress() {
	if r.progress != nil {
		_ = r.progress.Add(1)
	}
}

// Row flattens one analysis outcome into the CSV columns of Header.
func Row(query string, result models.AnalysisResult, err error) []string {
	if err != nil {
		msg := err.Error()
		var aerr *models.AnalysisError
		if errors.As(err, &aerr) {
			msg = aerr.Message
		}
		return []string{query, "", "", "", "", "", "", msg}
	}
	groups := report.GroupFamily(result.PatentFamily)
	family := make([]string, 0, len(groups))
	for _, g := range groups {
		family = append(family, g.Country+":"+strings.Join(g.Numbers, ","))
	}
	return []string{
		query,
		result.ApplicationNumber,
		result.BasicInfo["inventionTitle"],
		result.BasicInfo["registerStatus"],
		strconv.Itoa(len(result.CitedPatents)),
		strconv.Itoa(len(result.CitingPatents)),
		strings.Join(family, ";"),
		"",
	}
}
