package domain

// PersistResult is the tagged outcome of storing one candidate.
type PersistResult struct {
	Candidate CandidateRecord
	Record    *DevelopmentRecord
	Err       error
}

// Succeeded reports whether the candidate was stored.
func (r PersistResult) Succeeded() bool {
	return r.Err == nil && r.Record != nil
}

// Reason describes why the write failed; empty on success.
func (r PersistResult) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// RunStats aggregates the per-record results of one batch.
type RunStats struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Tally counts successes and failures; Successful+Failed always equals Total.
func Tally(results []PersistResult) RunStats {
	stats := RunStats{Total: len(results)}
	for _, r := range results {
		if r.Succeeded() {
			stats.Successful++
		} else {
			stats.Failed++
		}
	}
	return stats
}

// Persisted returns the stored records in input order.
func Persisted(results []PersistResult) []DevelopmentRecord {
	records := make([]DevelopmentRecord, 0, len(results))
	for _, r := range results {
		if r.Succeeded() {
			records = append(records, *r.Record)
		}
	}
	return records
}

// RunReport is the JSON summary returned by the trigger surface.
type RunReport struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Stats   RunStats            `json:"stats"`
	Updates []DevelopmentRecord `json:"updates"`
}
