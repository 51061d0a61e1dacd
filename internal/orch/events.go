package orch

import "github.com/sbrops/groundcheck-cli/internal/runlog"

// Stats aggregates run counters. Processed always equals the number of
// audit rows written.
type Stats struct {
	Processed       int `json:"processed"`
	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`
	Errors          int `json:"errors"`
	Skipped         int `json:"skipped"`
	SkippedChecked  int `json:"skipped_already_checked"`
	SkippedDup      int `json:"skipped_duplicate"`
	NoResults       int `json:"no_results"`
	Ambiguous       int `json:"ambiguous"`
	RateLimitEvents int `json:"rate_limit_events"`
}

// Events receives one-way progress notifications. Nil callbacks are
// skipped; callbacks run on the orchestrator goroutine and must return
// quickly.
type Events struct {
	// RowDone fires after a record's audit row is final. index is the
	// record's position within the processed slice.
	RowDone func(index int, row runlog.Row, stats Stats)
	// RunDone fires once, after the last record.
	RunDone func(stats Stats)
}

func (e Events) rowDone(index int, row runlog.Row, stats Stats) {
	if e.RowDone != nil {
		e.RowDone(index, row, stats)
	}
}

func (e Events) runDone(stats Stats) {
	if e.RunDone != nil {
		e.RunDone(stats)
	}
}
