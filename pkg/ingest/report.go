package ingest

import "time"

// State of an ingestion run
type State string

const (
	StateIdle         State = "idle"
	StateFetchingRoot State = "fetching_root"
	StateCrawlingPage State = "crawling_page"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Report summarizes one ingestion run
type Report struct {
	RunID       string             `json:"run_id"`
	RootID      int64              `json:"root_id"`
	State       State              `json:"state"`
	Pages       int                `json:"pages"`
	LastPage    int                `json:"last_page"`
	Seen        int                `json:"seen"`
	Processed   int                `json:"processed"`
	Skipped     int                `json:"skipped"`
	SkipReasons map[SkipReason]int `json:"skip_reasons"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at,omitzero"`
	Err         error              `json:"-"`
	Error       string             `json:"error,omitempty"`
}

func newReport(runID string, rootID int64) *Report {
	return &Report{
		RunID:       runID,
		RootID:      rootID,
		State:       StateIdle,
		SkipReasons: make(map[SkipReason]int),
		StartedAt:   time.Now().UTC(),
	}
}

// Finished reports whether the run reached a terminal state
func (r Report) Finished() bool {
	return r.State == StateDone || r.State == StateFailed
}

// Duration of the run so far
func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) record(res LinkResult) {
	r.Seen++
	if res.Outcome == OutcomeLinked {
		r.Processed++
		return
	}
	r.Skipped++
	r.SkipReasons[res.Reason]++
}

func (r *Report) fail(err error) {
	r.State = StateFailed
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
}

// snapshot returns a copy that does not share the reasons map
func (r *Report) snapshot() Report {
	cp := *r
	cp.SkipReasons = make(map[SkipReason]int, len(r.SkipReasons))
	for k, v := range r.SkipReasons {
		cp.SkipReasons[k] = v
	}
	return cp
}
