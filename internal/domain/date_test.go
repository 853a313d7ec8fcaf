package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Date
		wantErr bool
	}{
		{in: "2024-01-10", want: NewDate(2024, time.January, 10)},
		{in: " 2024-02-29 ", want: NewDate(2024, time.February, 29)},
		{in: "2024-01-10T23:30:00Z", want: NewDate(2024, time.January, 10)},
		{in: "2024-13-01", wantErr: true},
		{in: "10/01/2024", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range tests {
		got, err := ParseDate(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.True(t, got.Equal(tc.want), "input %q: got %s", tc.in, got)
	}
}

func TestTrailingWindowContains(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.February, 9, 15, 4, 5, 0, time.UTC)
	w := TrailingWindow(now, 30)

	assert.Equal(t, "2024-01-10", w.Start.String())
	assert.Equal(t, "2024-02-09", w.End.String())

	assert.True(t, w.Contains(w.Start), "start is inclusive")
	assert.True(t, w.Contains(w.End), "end is inclusive")
	assert.False(t, w.Contains(w.Start.AddDays(-1)))
	assert.False(t, w.Contains(w.End.AddDays(1)))
}

func TestTrailingWindowUsesLocalCalendarDay(t *testing.T) {
	t.Parallel()

	istanbul := time.FixedZone("TRT", 3*60*60)
	now := time.Date(2024, time.February, 9, 23, 30, 0, 0, time.UTC).In(istanbul)

	w := TrailingWindow(now, 1)
	assert.Equal(t, "2024-02-10", w.End.String())
}

func TestDateJSON(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(struct {
		D Date `json:"d"`
	}{D: NewDate(2024, time.March, 3)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2024-03-03"}`, string(raw))

	var decoded struct {
		D Date `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"d":"2024-03-03"}`), &decoded))
	assert.True(t, decoded.D.Equal(NewDate(2024, time.March, 3)))

	assert.Error(t, json.Unmarshal([]byte(`{"d":"yesterday"}`), &decoded))
}

func TestTally(t *testing.T) {
	t.Parallel()

	rec := DevelopmentRecord{ID: 1}
	results := []PersistResult{
		{Record: &rec},
		{Err: errors.New("constraint")},
		{Record: &rec},
	}

	stats := Tally(results)
	assert.Equal(t, RunStats{Total: 3, Successful: 2, Failed: 1}, stats)
	assert.Equal(t, stats.Total, stats.Successful+stats.Failed)
	assert.Len(t, Persisted(results), 2)
	assert.Equal(t, "constraint", results[1].Reason())
}

func TestSummaryAuditEntry(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, time.January, 12, 8, 0, 0, 0, time.UTC)
	entry := SummaryAuditEntry(4, at)

	assert.Equal(t, "4 Yeni Gelişme Eklendi", entry.TitlePrimary)
	assert.Equal(t, "4 New Developments Added", entry.TitleSecondary)
	assert.Equal(t, "2024-01-12", entry.EventDate.String())
	assert.Equal(t, at, entry.CreatedAt)
}
