package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/palamut62/ai-gant-news/internal/domain"
	"github.com/palamut62/ai-gant-news/internal/logging"
	"github.com/palamut62/ai-gant-news/internal/metrics"
	"github.com/palamut62/ai-gant-news/internal/ports"
)

// Persister is the only writer of developments, audit entries and batch summaries.
type Persister struct {
	store   ports.DevelopmentWriter
	logger  *slog.Logger
	metrics *metrics.Recorder
	now     func() time.Time
}

// NewPersister wires a persister; now stamps created_at and defaults to time.Now.
func NewPersister(store ports.DevelopmentWriter, logger *slog.Logger, rec *metrics.Recorder, now func() time.Time) *Persister {
	if logger == nil {
		logger = logging.Discard()
	}
	if now == nil {
		now = time.Now
	}
	return &Persister{store: store, logger: logger, metrics: rec, now: now}
}

// Persist upserts the candidates one at a time, in order. A failed write is recorded in its
// result and the batch continues. Every stored record gets an audit entry; when anything was
// stored, a batch summary and a summary audit entry follow the last record.
func (p *Persister) Persist(ctx context.Context, candidates []domain.CandidateRecord) []domain.PersistResult {
	results := make([]domain.PersistResult, 0, len(candidates))
	var latest time.Time

	for i, candidate := range candidates {
		rec, err := p.store.UpsertDevelopment(ctx, domain.NewDevelopment(candidate, p.now().UTC()))
		if err != nil {
			p.logger.Warn("development not stored",
				"index", i, "event_date", candidate.EventDate, "title", candidate.ShortPrimary, "error", err)
			p.metrics.DevelopmentPersisted(false)
			results = append(results, domain.PersistResult{Candidate: candidate, Err: err})
			continue
		}
		p.metrics.DevelopmentPersisted(true)
		if rec.CreatedAt.After(latest) {
			latest = rec.CreatedAt
		}

		if _, err := p.store.InsertAuditEntry(ctx, domain.AuditEntryFor(rec)); err != nil {
			p.logger.Error("audit entry not stored", "development", rec.ID, "error", err)
			p.metrics.AuditWriteFailed()
		}

		stored := rec
		results = append(results, domain.PersistResult{Candidate: candidate, Record: &stored})
	}

	stats := domain.Tally(results)
	if stats.Successful > 0 {
		p.summarize(ctx, stats.Successful, latest)
	}
	return results
}

// summarize writes the batch summary and its audit entry, stamped no earlier than latest.
func (p *Persister) summarize(ctx context.Context, successCount int, latest time.Time) {
	at := p.now().UTC()
	if at.Before(latest) {
		at = latest
	}

	summary, err := p.store.InsertBatchSummary(ctx, domain.BatchSummary{SuccessCount: successCount, CreatedAt: at})
	if err != nil {
		p.logger.Error("batch summary not stored", "success_count", successCount, "error", err)
	} else {
		p.logger.Info("batch summary stored", "id", summary.ID, "success_count", successCount)
	}

	if _, err := p.store.InsertAuditEntry(ctx, domain.SummaryAuditEntry(successCount, at)); err != nil {
		p.logger.Error("summary audit entry not stored", "error", err)
		p.metrics.AuditWriteFailed()
	}
}
