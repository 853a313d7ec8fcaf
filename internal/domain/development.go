package domain

import "time"

// ShortTextLimit bounds short descriptions, counted in code points.
const ShortTextLimit = 255

// CandidateRecord is a validated bilingual development that has not been stored yet.
type CandidateRecord struct {
	EventDate      Date
	ShortPrimary   string
	ShortSecondary string
	LongPrimary    string
	LongSecondary  string
	SourceURL      string
	CreatedAt      time.Time
}

// NaturalKey identifies a development for conflict resolution.
type NaturalKey struct {
	EventDate    Date
	ShortPrimary string
}

// Key returns the natural key of the candidate.
func (c CandidateRecord) Key() NaturalKey {
	return NaturalKey{EventDate: c.EventDate, ShortPrimary: c.ShortPrimary}
}

// DevelopmentRecord is a persisted timeline entry.
type DevelopmentRecord struct {
	ID             int64     `json:"id"`
	EventDate      Date      `json:"event_date"`
	ShortPrimary   string    `json:"short_description"`
	ShortSecondary string    `json:"short_description_en"`
	LongPrimary    string    `json:"long_description"`
	LongSecondary  string    `json:"long_description_en"`
	SourceURL      string    `json:"source_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Key returns the natural key of the record.
func (r DevelopmentRecord) Key() NaturalKey {
	return NaturalKey{EventDate: r.EventDate, ShortPrimary: r.ShortPrimary}
}

// NewDevelopment stamps a candidate with the assignment time used for storage.
func NewDevelopment(c CandidateRecord, at time.Time) DevelopmentRecord {
	return DevelopmentRecord{
		EventDate:      c.EventDate,
		ShortPrimary:   c.ShortPrimary,
		ShortSecondary: c.ShortSecondary,
		LongPrimary:    c.LongPrimary,
		LongSecondary:  c.LongSecondary,
		SourceURL:      c.SourceURL,
		CreatedAt:      at,
	}
}

// AuditLogEntry is one append-only change log row consumed by live viewers.
type AuditLogEntry struct {
	ID                   int64     `json:"id"`
	TitlePrimary         string    `json:"title"`
	TitleSecondary       string    `json:"title_en"`
	DescriptionPrimary   string    `json:"description"`
	DescriptionSecondary string    `json:"description_en"`
	EventDate            Date      `json:"event_date"`
	CreatedAt            time.Time `json:"created_at"`
}

// AuditEntryFor mirrors a persisted development into its audit entry.
func AuditEntryFor(r DevelopmentRecord) AuditLogEntry {
	return AuditLogEntry{
		TitlePrimary:         r.ShortPrimary,
		TitleSecondary:       r.ShortSecondary,
		DescriptionPrimary:   r.LongPrimary,
		DescriptionSecondary: r.LongSecondary,
		EventDate:            r.EventDate,
		CreatedAt:            r.CreatedAt,
	}
}

// SummaryAuditEntry builds the synthetic "N new developments added" entry of a run.
func SummaryAuditEntry(successCount int, at time.Time) AuditLogEntry {
	return AuditLogEntry{
		TitlePrimary:         Primary.summaryTitle(successCount),
		TitleSecondary:       Secondary.summaryTitle(successCount),
		DescriptionPrimary:   Primary.summaryDescription(successCount),
		DescriptionSecondary: Secondary.summaryDescription(successCount),
		EventDate:            DateOf(at),
		CreatedAt:            at,
	}
}

// BatchSummary records how many developments one ingestion run stored.
type BatchSummary struct {
	ID           int64     `json:"id"`
	SuccessCount int       `json:"success_count"`
	CreatedAt    time.Time `json:"created_at"`
}
