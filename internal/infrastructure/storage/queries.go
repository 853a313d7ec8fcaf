package storage

import (
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/palamut62/ai-gant-news/internal/domain"
)

// ErrNotFound is returned by single-row reads that match nothing.
var ErrNotFound = errors.New("not found")

const (
	developmentsTable = "developments"
	auditLogTable     = "audit_log"
	summariesTable    = "batch_summaries"

	// auditChannel is the Postgres NOTIFY channel fired by the audit_log insert trigger.
	auditChannel = "audit_log_inserted"

	// feedBuffer bounds each subscriber's undelivered entries.
	feedBuffer = 16
)

var (
	developmentColumns = []string{
		"id", "event_date", "short_description", "short_description_en",
		"long_description", "long_description_en", "source_url", "created_at",
	}
	auditColumns   = []string{"id", "title", "title_en", "description", "description_en", "event_date", "created_at"}
	summaryColumns = []string{"id", "success_count", "created_at"}
)

// upsertSuffix overwrites every non-key column of the row sharing the natural key.
const upsertSuffix = `ON CONFLICT (event_date, short_description) DO UPDATE SET
	short_description_en = excluded.short_description_en,
	long_description = excluded.long_description,
	long_description_en = excluded.long_description_en,
	source_url = excluded.source_url,
	created_at = excluded.created_at
RETURNING id`

// dialect captures how a backend wants placeholders and temporal values bound.
type dialect struct {
	sb   sq.StatementBuilderType
	date func(domain.Date) any
	time func(time.Time) any
}

var (
	postgresDialect = dialect{
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		date: func(d domain.Date) any { return d.Time() },
		time: func(t time.Time) any { return t.UTC() },
	}
	sqliteDialect = dialect{
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Question),
		date: func(d domain.Date) any { return d.String() },
		time: func(t time.Time) any { return formatSQLiteTime(t) },
	}
)

func (d dialect) upsertDevelopment(rec domain.DevelopmentRecord) (string, []any, error) {
	return d.sb.Insert(developmentsTable).
		Columns(developmentColumns[1:]...).
		Values(
			d.date(rec.EventDate),
			rec.ShortPrimary,
			rec.ShortSecondary,
			rec.LongPrimary,
			rec.LongSecondary,
			rec.SourceURL,
			d.time(rec.CreatedAt),
		).
		Suffix(upsertSuffix).
		ToSql()
}

func (d dialect) insertAudit(entry domain.AuditLogEntry) (string, []any, error) {
	return d.sb.Insert(auditLogTable).
		Columns(auditColumns[1:]...).
		Values(
			entry.TitlePrimary,
			entry.TitleSecondary,
			entry.DescriptionPrimary,
			entry.DescriptionSecondary,
			d.date(entry.EventDate),
			d.time(entry.CreatedAt),
		).
		Suffix("RETURNING id").
		ToSql()
}

func (d dialect) insertSummary(summary domain.BatchSummary) (string, []any, error) {
	return d.sb.Insert(summariesTable).
		Columns(summaryColumns[1:]...).
		Values(summary.SuccessCount, d.time(summary.CreatedAt)).
		Suffix("RETURNING id").
		ToSql()
}

// listDevelopments orders by event date, newest first; limit <= 0 means no limit.
func (d dialect) listDevelopments(limit int) (string, []any, error) {
	q := d.sb.Select(developmentColumns...).
		From(developmentsTable).
		OrderBy("event_date DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q.ToSql()
}

func (d dialect) getDevelopment(id int64) (string, []any, error) {
	return d.sb.Select(developmentColumns...).
		From(developmentsTable).
		Where(sq.Eq{"id": id}).
		ToSql()
}

func (d dialect) countDevelopments() (string, []any, error) {
	return d.sb.Select("COUNT(*)").From(developmentsTable).ToSql()
}

func (d dialect) recentAudit(limit int) (string, []any, error) {
	if limit <= 0 {
		return "", nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	return d.sb.Select(auditColumns...).
		From(auditLogTable).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
}

func (d dialect) getAudit(id int64) (string, []any, error) {
	return d.sb.Select(auditColumns...).
		From(auditLogTable).
		Where(sq.Eq{"id": id}).
		ToSql()
}

func (d dialect) latestSummary() (string, []any, error) {
	return d.sb.Select(summaryColumns...).
		From(summariesTable).
		OrderBy("created_at DESC", "id DESC").
		Limit(1).
		ToSql()
}
