// Package scraper implements the results-portal scraping pipeline: endpoint
// probing, form introspection, concurrent batched fetching, and response
// extraction. One Scraper instance is dedicated to one scrape run; the
// underlying HTTP session is not safe to share across concurrent runs.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mydiplomaclassresults/sbtet-scraper/config"
	"github.com/mydiplomaclassresults/sbtet-scraper/models"
	"github.com/mydiplomaclassresults/sbtet-scraper/parser"
	"github.com/mydiplomaclassresults/sbtet-scraper/report"
)

// Scraper owns the HTTP session, the cached form spec, and the progress
// counters for one scrape run.
type Scraper struct {
	cfg     *config.Config
	client  *resty.Client
	Metrics *Metrics

	mu         sync.Mutex
	workingURL string
	form       *models.FormSpec
	processed  int
	total      int

	succeeded int64
	failed    int64

	// pdfText extracts text from PDF bytes; swapped out in tests.
	pdfText func([]byte) (string, error)
}

// New builds a scraper instance configured from cfg. A nil metrics is valid
// and disables instrumentation.
func New(cfg *config.Config, metrics *Metrics) (*Scraper, error) {
	for _, raw := range cfg.BaseURLs {
		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		if parsed.Host == "" {
			return nil, fmt.Errorf("base url %q must include a host", raw)
		}
	}

	client := resty.New()
	if jar, err := cookiejar.New(nil); err == nil {
		client.SetCookieJar(jar)
	}
	client.SetHeader("User-Agent", cfg.UserAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	client.SetTimeout(cfg.RequestTimeout)

	return &Scraper{
		cfg:     cfg,
		client:  client,
		Metrics: metrics,
		pdfText: parser.PDFText,
	}, nil
}

// GetProgress reports the share of identifiers processed so far, in [0, 100].
func (s *Scraper) GetProgress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.total == 0 {
		return 0
	}
	return float64(s.processed) / float64(s.total) * 100
}

// Counts returns the processed/total counters and the success/failure split.
func (s *Scraper) Counts() (processed, total, succeeded, failed int) {
	s.mu.Lock()
	processed = s.processed
	total = s.total
	s.mu.Unlock()
	return processed, total, int(atomic.LoadInt64(&s.succeeded)), int(atomic.LoadInt64(&s.failed))
}

// ScrapeResults runs the whole pipeline for one class: enumerate PINs, analyze
// the form once, fetch and extract in fixed-size batches with a small worker
// pool, then compile the spreadsheet. A failed form analysis aborts the run;
// per-identifier failures only degrade the result set. ErrNoResults is
// returned when every identifier failed.
//
// Spreadsheet rows follow completion order within each batch, matching the
// behavior results consumers already rely on, not submission order.
func (s *Scraper) ScrapeResults(ctx context.Context, year, branchCode, collegeCode string, startPin, endPin int, semester string) (*bytes.Buffer, *models.RunSummary, error) {
	pins := GeneratePINs(year, collegeCode, branchCode, startPin, endPin)

	s.mu.Lock()
	s.processed = 0
	s.total = len(pins)
	s.mu.Unlock()
	atomic.StoreInt64(&s.succeeded, 0)
	atomic.StoreInt64(&s.failed, 0)

	start := time.Now()
	slog.Info("starting scrape",
		slog.Int("pins", len(pins)),
		slog.String("year", year),
		slog.String("branch", branchCode),
		slog.String("college", collegeCode),
		slog.String("semester", semester),
	)

	if _, err := s.AnalyzeForm(ctx); err != nil {
		return nil, nil, fmt.Errorf("analyze form: %w", err)
	}

	var records []*models.StudentRecord
	batchCount := (len(pins) + s.cfg.BatchSize - 1) / s.cfg.BatchSize
	for i := 0; i < len(pins); i += s.cfg.BatchSize {
		end := min(i+s.cfg.BatchSize, len(pins))
		slog.Info("processing batch",
			slog.Int("batch", i/s.cfg.BatchSize+1),
			slog.Int("batches", batchCount),
		)
		records = append(records, s.runBatch(ctx, pins[i:end], semester)...)

		// Pace between batches to stay polite toward the portal.
		if end < len(pins) {
			time.Sleep(s.cfg.BatchPause)
		}
	}

	summary := &models.RunSummary{
		StartTime: start,
		EndTime:   time.Now(),
		Total:     len(pins),
		Succeeded: int(atomic.LoadInt64(&s.succeeded)),
		Failed:    int(atomic.LoadInt64(&s.failed)),
	}
	slog.Info("scrape complete",
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Duration("elapsed", summary.EndTime.Sub(summary.StartTime)),
	)

	if len(records) == 0 {
		return nil, summary, ErrNoResults
	}

	buf, err := report.Compile(records)
	if err != nil {
		return nil, summary, fmt.Errorf("compile report: %w", err)
	}
	return buf, summary, nil
}

// runBatch dispatches one batch to the bounded worker pool and collects
// results in completion order. Identifiers whose result does not arrive
// within the collection timeout are abandoned; their workers still run to
// completion and account for progress on their own.
func (s *Scraper) runBatch(ctx context.Context, pins []string, semester string) []*models.StudentRecord {
	jobs := make(chan string, len(pins))
	out := make(chan *models.StudentRecord, len(pins))

	workers := min(s.cfg.Workers, len(pins))
	for w := 0; w < workers; w++ {
		go func() {
			for pin := range jobs {
				out <- s.processPin(ctx, pin, semester)
			}
		}()
	}
	for _, pin := range pins {
		jobs <- pin
	}
	close(jobs)

	deadline := time.NewTimer(s.cfg.CollectTimeout)
	defer deadline.Stop()

	var records []*models.StudentRecord
	for i := 0; i < len(pins); i++ {
		select {
		case record := <-out:
			if record != nil {
				records = append(records, record)
			}
		case <-deadline.C:
			slog.Warn("batch collection timed out",
				slog.Int("outstanding", len(pins)-i),
			)
			return records
		}
	}
	return records
}

// processPin fetches and extracts one identifier. It never propagates an
// error: failures degrade the result set, and the progress counter advances
// exactly once whether the pin succeeded, failed, or panicked.
func (s *Scraper) processPin(ctx context.Context, pin, semester string) (record *models.StudentRecord) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while processing pin",
				slog.String("pin", pin),
				slog.Any("panic", r),
			)
			record = nil
		}

		s.mu.Lock()
		s.processed++
		s.mu.Unlock()

		if record != nil {
			atomic.AddInt64(&s.succeeded, 1)
			s.Metrics.IncPin("success")
			s.Metrics.IncRecords()
		} else {
			atomic.AddInt64(&s.failed, 1)
			s.Metrics.IncPin("failure")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.CollectTimeout)
	defer cancel()

	raw, err := s.fetchOne(ctx, pin, semester)
	if err != nil {
		classified := classifyError(err)
		slog.Warn("request failed",
			slog.String("pin", pin),
			slog.String("category", errorTypeLabel(classified)),
			slog.Any("error", err),
		)
		s.Metrics.IncError(errorTypeLabel(classified))
		return nil
	}
	if raw == nil {
		slog.Debug("unrecognized response format", slog.String("pin", pin))
		return nil
	}

	record, err = s.extract(ctx, pin, raw)
	if err != nil {
		slog.Warn("extraction failed",
			slog.String("pin", pin),
			slog.Any("error", err),
		)
		s.Metrics.IncError("parse")
		return nil
	}
	if record == nil {
		slog.Warn("no result for pin", slog.String("pin", pin))
		return nil
	}
	slog.Info("pin scraped", slog.String("pin", pin), slog.Int("subjects", len(record.Subjects)))
	return record
}
