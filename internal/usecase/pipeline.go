package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/palamut62/ai-gant-news/internal/domain"
	"github.com/palamut62/ai-gant-news/internal/events"
	"github.com/palamut62/ai-gant-news/internal/fetcher"
	"github.com/palamut62/ai-gant-news/internal/logging"
	"github.com/palamut62/ai-gant-news/internal/metrics"
)

const (
	outcomeSuccess           = "success"
	outcomeFetchFailed       = "fetch_failed"
	outcomeContractViolation = "contract_violation"
)

// Fetcher returns the raw replies for both locales.
type Fetcher interface {
	Fetch(ctx context.Context, window domain.Window) fetcher.Result
}

// Parser validates raw replies into candidates.
type Parser interface {
	Parse(primary, secondary string, window domain.Window) ([]domain.CandidateRecord, error)
}

// PipelineDeps wires all collaborators into the orchestration pipeline.
type PipelineDeps struct {
	Fetcher    Fetcher
	Parser     Parser
	Persister  *Persister
	Bus        *events.Bus
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
	WindowDays int
	Location   *time.Location
	Now        func() time.Time
}

// Pipeline implements one ingestion run: fetch, parse, persist, announce.
type Pipeline struct {
	fetcher    Fetcher
	parser     Parser
	persister  *Persister
	bus        *events.Bus
	logger     *slog.Logger
	metrics    *metrics.Recorder
	windowDays int
	location   *time.Location
	now        func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		fetcher:    deps.Fetcher,
		parser:     deps.Parser,
		persister:  deps.Persister,
		bus:        deps.Bus,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		windowDays: deps.WindowDays,
		location:   deps.Location,
		now:        deps.Now,
	}
	if p.logger == nil {
		p.logger = logging.Discard()
	}
	if p.windowDays <= 0 {
		p.windowDays = 30
	}
	if p.location == nil {
		p.location = time.UTC
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Run executes one ingestion run for the current time.
func (p *Pipeline) Run(ctx context.Context) (domain.RunReport, error) {
	return p.RunAt(ctx, p.now())
}

// RunAt executes one ingestion run whose window ends on the calendar day of now.
// Only a contract violation in the generator replies is returned as an error; every other
// failure is reflected in the report.
func (p *Pipeline) RunAt(ctx context.Context, now time.Time) (domain.RunReport, error) {
	runID := uuid.NewString()
	logger := p.logger.With("run", runID)
	started := time.Now()

	window := domain.TrailingWindow(now.In(p.location), p.windowDays)
	logger.Info("ingestion run started", "window", window.String())

	fetched := p.fetcher.Fetch(ctx, window)
	if fetched.Exhausted() {
		logger.Warn("no generator reply arrived", "errors", len(fetched.Errors))
		p.metrics.RunFinished(outcomeFetchFailed, time.Since(started))
		return domain.RunReport{
			Success: false,
			Message: "No updates could be fetched.",
			Updates: []domain.DevelopmentRecord{},
		}, nil
	}

	var candidates []domain.CandidateRecord
	if fetched.Complete() {
		var err error
		candidates, err = p.parser.Parse(*fetched.Primary, *fetched.Secondary, window)
		if err != nil {
			logger.Error("generator reply rejected", "error", err)
			p.metrics.RunFinished(outcomeContractViolation, time.Since(started))
			return domain.RunReport{}, fmt.Errorf("parse generator replies: %w", err)
		}
	} else {
		logger.Warn("one locale failed, run yields no candidates", "errors", len(fetched.Errors))
	}

	if len(candidates) == 0 {
		logger.Info("ingestion run finished", "candidates", 0)
		p.metrics.RunFinished(outcomeSuccess, time.Since(started))
		return domain.RunReport{
			Success: true,
			Message: "No new updates found.",
			Updates: []domain.DevelopmentRecord{},
		}, nil
	}

	results := p.persister.Persist(ctx, candidates)
	stats := domain.Tally(results)

	if stats.Successful > 0 && p.bus != nil {
		p.bus.Publish(events.DataChanged{RunID: runID, Added: stats.Successful, At: now})
	}

	logger.Info("ingestion run finished",
		"total", stats.Total, "successful", stats.Successful, "failed", stats.Failed)
	p.metrics.RunFinished(outcomeSuccess, time.Since(started))

	return domain.RunReport{
		Success: true,
		Message: runMessage(stats),
		Stats:   stats,
		Updates: domain.Persisted(results),
	}, nil
}

func runMessage(stats domain.RunStats) string {
	message := fmt.Sprintf("%d new developments added.", stats.Successful)
	if stats.Failed > 0 {
		message += fmt.Sprintf(" %d records could not be added.", stats.Failed)
	}
	return message
}
