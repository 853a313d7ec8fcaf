package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/palamut62/ai-gant-news/internal/domain"
	"github.com/palamut62/ai-gant-news/internal/logging"
	"github.com/palamut62/ai-gant-news/internal/ports"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// sqliteTimeLayout is fixed width so lexical order of created_at equals chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRepository stores the timeline in a SQLite file (or :memory:) and serves the change
// feed from an in-process hub.
type SQLiteRepository struct {
	db     *sql.DB
	q      dialect
	hub    *hub
	logger *slog.Logger
}

var _ ports.Store = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens dsn with a single connection so :memory: databases stay shared.
func NewSQLiteRepository(dsn string, logger *slog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	return &SQLiteRepository{db: db, q: sqliteDialect, hub: newHub(logger), logger: logger}, nil
}

// EnsureSchema applies the embedded schema. Safe to run multiple times.
func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases every feed subscriber and the database handle.
func (r *SQLiteRepository) Close() error {
	r.hub.close()
	return r.db.Close()
}

// UpsertDevelopment inserts rec or overwrites the row with the same natural key.
func (r *SQLiteRepository) UpsertDevelopment(ctx context.Context, rec domain.DevelopmentRecord) (domain.DevelopmentRecord, error) {
	query, args, err := r.q.upsertDevelopment(rec)
	if err != nil {
		return domain.DevelopmentRecord{}, fmt.Errorf("build upsert: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&rec.ID); err != nil {
		return domain.DevelopmentRecord{}, fmt.Errorf("upsert development: %w", err)
	}
	return rec, nil
}

// InsertAuditEntry appends entry and hands it to the feed subscribers.
func (r *SQLiteRepository) InsertAuditEntry(ctx context.Context, entry domain.AuditLogEntry) (domain.AuditLogEntry, error) {
	query, args, err := r.q.insertAudit(entry)
	if err != nil {
		return domain.AuditLogEntry{}, fmt.Errorf("build audit insert: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&entry.ID); err != nil {
		return domain.AuditLogEntry{}, fmt.Errorf("insert audit entry: %w", err)
	}
	r.hub.publish(entry)
	return entry, nil
}

func (r *SQLiteRepository) InsertBatchSummary(ctx context.Context, summary domain.BatchSummary) (domain.BatchSummary, error) {
	query, args, err := r.q.insertSummary(summary)
	if err != nil {
		return domain.BatchSummary{}, fmt.Errorf("build summary insert: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&summary.ID); err != nil {
		return domain.BatchSummary{}, fmt.Errorf("insert batch summary: %w", err)
	}
	return summary, nil
}

func (r *SQLiteRepository) ListDevelopments(ctx context.Context, limit int) ([]domain.DevelopmentRecord, error) {
	query, args, err := r.q.listDevelopments(limit)
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query developments: %w", err)
	}
	defer rows.Close()

	var records []domain.DevelopmentRecord
	for rows.Next() {
		rec, err := scanSQLiteDevelopment(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return records, nil
}

func (r *SQLiteRepository) GetDevelopment(ctx context.Context, id int64) (domain.DevelopmentRecord, error) {
	query, args, err := r.q.getDevelopment(id)
	if err != nil {
		return domain.DevelopmentRecord{}, fmt.Errorf("build get: %w", err)
	}
	rec, err := scanSQLiteDevelopment(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DevelopmentRecord{}, fmt.Errorf("development %d: %w", id, ErrNotFound)
	}
	return rec, err
}

func (r *SQLiteRepository) CountDevelopments(ctx context.Context) (int64, error) {
	query, args, err := r.q.countDevelopments()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count developments: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) RecentAuditEntries(ctx context.Context, limit int) ([]domain.AuditLogEntry, error) {
	query, args, err := r.q.recentAudit(limit)
	if err != nil {
		return nil, fmt.Errorf("build recent audit: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditLogEntry
	for rows.Next() {
		entry, err := scanSQLiteAudit(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return entries, nil
}

func (r *SQLiteRepository) LatestBatchSummary(ctx context.Context) (domain.BatchSummary, error) {
	query, args, err := r.q.latestSummary()
	if err != nil {
		return domain.BatchSummary{}, fmt.Errorf("build latest summary: %w", err)
	}
	var (
		summary   domain.BatchSummary
		createdAt string
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&summary.ID, &summary.SuccessCount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BatchSummary{}, fmt.Errorf("batch summary: %w", ErrNotFound)
	}
	if err != nil {
		return domain.BatchSummary{}, fmt.Errorf("latest batch summary: %w", err)
	}
	if summary.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return domain.BatchSummary{}, err
	}
	return summary, nil
}

// SubscribeAudit delivers audit entries inserted through this repository after the call.
func (r *SQLiteRepository) SubscribeAudit(ctx context.Context, predicate func(domain.AuditLogEntry) bool) (<-chan domain.AuditLogEntry, func(), error) {
	ch, release := r.hub.subscribe(ctx, predicate)
	return ch, release, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDevelopment(row rowScanner) (domain.DevelopmentRecord, error) {
	var (
		rec       domain.DevelopmentRecord
		eventDate string
		createdAt string
	)
	if err := row.Scan(&rec.ID, &eventDate, &rec.ShortPrimary, &rec.ShortSecondary,
		&rec.LongPrimary, &rec.LongSecondary, &rec.SourceURL, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan development: %w", err)
	}
	var err error
	if rec.EventDate, err = domain.ParseDate(eventDate); err != nil {
		return rec, fmt.Errorf("development %d: %w", rec.ID, err)
	}
	if rec.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return rec, fmt.Errorf("development %d: %w", rec.ID, err)
	}
	return rec, nil
}

func scanSQLiteAudit(row rowScanner) (domain.AuditLogEntry, error) {
	var (
		entry     domain.AuditLogEntry
		eventDate string
		createdAt string
	)
	if err := row.Scan(&entry.ID, &entry.TitlePrimary, &entry.TitleSecondary,
		&entry.DescriptionPrimary, &entry.DescriptionSecondary, &eventDate, &createdAt); err != nil {
		return entry, fmt.Errorf("scan audit entry: %w", err)
	}
	var err error
	if entry.EventDate, err = domain.ParseDate(eventDate); err != nil {
		return entry, fmt.Errorf("audit entry %d: %w", entry.ID, err)
	}
	if entry.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return entry, fmt.Errorf("audit entry %d: %w", entry.ID, err)
	}
	return entry, nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
