package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/palamut62/ai-gant-news/internal/domain"
	"github.com/palamut62/ai-gant-news/internal/logging"
	"github.com/palamut62/ai-gant-news/internal/metrics"
)

var (
	// ErrContractViolation marks a reply that is not a JSON object with an updates array.
	ErrContractViolation = errors.New("generator reply violates the response contract")

	ErrUnpaired      = errors.New("no secondary item at the same index")
	ErrSchema        = errors.New("item does not match the update schema")
	ErrInvalidDate   = errors.New("event_date is not a calendar date")
	ErrOutsideWindow = errors.New("event_date is outside the requested window")
)

// ValidationError tags a dropped item with its position and the locale that caused the drop.
type ValidationError struct {
	Index  int
	Locale string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("item %d (%s): %v", e.Index, e.Locale, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ItemResult is the outcome of validating the pair at Index: exactly one of Candidate and Err is set.
type ItemResult struct {
	Index     int
	Candidate *domain.CandidateRecord
	Err       error
}

// OK reports whether the pair produced a candidate.
func (r ItemResult) OK() bool { return r.Err == nil && r.Candidate != nil }

type itemText struct {
	ShortDescription *string `json:"short_description"`
	LongDescription  *string `json:"long_description"`
	SourceURL        *string `json:"source_url"`
}

type rawItem struct {
	EventDate string `json:"event_date"`
	itemText
}

// Parser turns the two raw generator replies into validated candidates. It keeps no state
// between calls.
type Parser struct {
	logger  *slog.Logger
	metrics *metrics.Recorder
	now     func() time.Time
	schema  *itemSchema
}

// New builds a parser; now stamps CreatedAt and defaults to time.Now.
func New(logger *slog.Logger, rec *metrics.Recorder, now func() time.Time) *Parser {
	if logger == nil {
		logger = logging.Discard()
	}
	if now == nil {
		now = time.Now
	}
	return &Parser{logger: logger, metrics: rec, now: now, schema: mustItemSchema()}
}

// Parse returns the candidates of the valid pairs in input order.
func (p *Parser) Parse(primary, secondary string, window domain.Window) ([]domain.CandidateRecord, error) {
	results, err := p.ParseItems(primary, secondary, window)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.CandidateRecord, 0, len(results))
	for _, r := range results {
		if r.OK() {
			candidates = append(candidates, *r.Candidate)
			continue
		}
		p.logger.Debug("item dropped", "index", r.Index, "error", r.Err)
		p.metrics.CandidateDropped(dropReason(r.Err))
	}
	p.metrics.CandidatesValidated(len(candidates))
	return candidates, nil
}

// ParseItems validates every primary item against its positional secondary partner and returns
// one tagged result per primary item. Only contract violations are returned as errors.
func (p *Parser) ParseItems(primary, secondary string, window domain.Window) ([]ItemResult, error) {
	primaryItems, err := decodeUpdates(primary)
	if err != nil {
		return nil, fmt.Errorf("%s reply: %w", domain.Primary.Code(), err)
	}
	secondaryItems, err := decodeUpdates(secondary)
	if err != nil {
		return nil, fmt.Errorf("%s reply: %w", domain.Secondary.Code(), err)
	}

	createdAt := p.now()
	results := make([]ItemResult, 0, len(primaryItems))
	for i, rawPrimary := range primaryItems {
		if i >= len(secondaryItems) {
			results = append(results, ItemResult{
				Index: i,
				Err:   &ValidationError{Index: i, Locale: domain.Secondary.Code(), Err: ErrUnpaired},
			})
			continue
		}
		candidate, err := p.pair(i, rawPrimary, secondaryItems[i], window)
		if err != nil {
			results = append(results, ItemResult{Index: i, Err: err})
			continue
		}
		candidate.CreatedAt = createdAt
		results = append(results, ItemResult{Index: i, Candidate: &candidate})
	}
	return results, nil
}

func (p *Parser) pair(index int, rawPrimary, rawSecondary json.RawMessage, window domain.Window) (domain.CandidateRecord, error) {
	var prim rawItem
	if err := p.decodeItem(index, domain.Primary, defUpdate, rawPrimary, &prim); err != nil {
		return domain.CandidateRecord{}, err
	}
	// the date always comes from the primary item
	var sec itemText
	if err := p.decodeItem(index, domain.Secondary, defTranslation, rawSecondary, &sec); err != nil {
		return domain.CandidateRecord{}, err
	}

	date, err := domain.ParseDate(prim.EventDate)
	if err != nil {
		return domain.CandidateRecord{}, &ValidationError{
			Index: index, Locale: domain.Primary.Code(), Err: fmt.Errorf("%w: %v", ErrInvalidDate, err),
		}
	}
	if !window.Contains(date) {
		return domain.CandidateRecord{}, &ValidationError{
			Index: index, Locale: domain.Primary.Code(), Err: fmt.Errorf("%w: %s not in %s", ErrOutsideWindow, date, window),
		}
	}

	sourceURL := strings.TrimSpace(deref(prim.SourceURL))
	if sourceURL == "" {
		sourceURL = strings.TrimSpace(deref(sec.SourceURL))
	}

	return domain.CandidateRecord{
		EventDate:      date,
		ShortPrimary:   shortText(deref(prim.ShortDescription), domain.ShortTextLimit, domain.Primary.Untitled),
		ShortSecondary: shortText(deref(sec.ShortDescription), domain.ShortTextLimit, domain.Secondary.Untitled),
		LongPrimary:    longText(deref(prim.LongDescription), domain.Primary.NoDescription),
		LongSecondary:  longText(deref(sec.LongDescription), domain.Secondary.NoDescription),
		SourceURL:      sourceURL,
	}, nil
}

func (p *Parser) decodeItem(index int, locale domain.Locale, def string, raw json.RawMessage, dst any) error {
	if err := p.schema.Validate(def, raw); err != nil {
		return &ValidationError{Index: index, Locale: locale.Code(), Err: fmt.Errorf("%w: %v", ErrSchema, err)}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &ValidationError{Index: index, Locale: locale.Code(), Err: fmt.Errorf("%w: %v", ErrSchema, err)}
	}
	return nil
}

// decodeUpdates extracts the raw items of the updates array from one reply.
func decodeUpdates(reply string) ([]json.RawMessage, error) {
	body := StripFences(reply)

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContractViolation, err)
	}
	raw, ok := envelope["updates"]
	if !ok || string(raw) == "null" {
		return nil, fmt.Errorf("%w: missing updates array", ErrContractViolation)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: updates is not an array", ErrContractViolation)
	}
	return items, nil
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrUnpaired):
		return "unpaired"
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, ErrOutsideWindow):
		return "outside_window"
	default:
		return "other"
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
