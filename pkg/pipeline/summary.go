package pipeline

import "fmt"

// ItemStatus is the terminal state an item reached.
type ItemStatus string

const (
	StatusCommitted ItemStatus = "committed"
	StatusSkipped   ItemStatus = "skipped"
	StatusFailed    ItemStatus = "failed"
)

// ItemOutcome records how one item left the pipeline.
type ItemOutcome struct {
	SourceID     string
	Status       ItemStatus
	Reason       string
	RemotePostID string

	abort error
}

// ItemFailure is one hard failure entry in the run summary.
type ItemFailure struct {
	SourceID string
	Reason   string
}

// Summary aggregates per-item outcomes for one pipeline run. Skipped counts
// expected non-publishes, reservation-race losers included; Failed counts
// hard failures and is what drives a non-zero exit.
type Summary struct {
	Committed int
	Skipped   int
	Failed    int

	SkipReasons map[string]int
	Failures    []ItemFailure

	// WalkError is set when feed traversal stopped early on an exhausted
	// page fetch; items yielded before the failure were still processed.
	WalkError string
}

// NewSummary creates an empty run summary.
func NewSummary() *Summary {
	return &Summary{SkipReasons: make(map[string]int)}
}

func (s *Summary) add(outcome ItemOutcome) {
	switch outcome.Status {
	case StatusCommitted:
		s.Committed++
	case StatusSkipped:
		s.Skipped++
		s.SkipReasons[outcome.Reason]++
	case StatusFailed:
		s.Failed++
		s.Failures = append(s.Failures, ItemFailure{
			SourceID: outcome.SourceID,
			Reason:   outcome.Reason,
		})
	}
}

// Processed returns the number of items that reached a terminal state.
func (s *Summary) Processed() int {
	return s.Committed + s.Skipped + s.Failed
}

// String renders the summary for the run report.
func (s *Summary) String() string {
	out := fmt.Sprintf("committed=%d skipped=%d failed=%d", s.Committed, s.Skipped, s.Failed)
	for _, f := range s.Failures {
		out += fmt.Sprintf("\n  failed %s: %s", f.SourceID, f.Reason)
	}
	if s.WalkError != "" {
		out += "\n  feed traversal stopped early: " + s.WalkError
	}
	return out
}
