package scheduler

import (
	"time"

	"github.com/holdinghq/hq/internal/runs"
)

// HistorySource provides read-only access to recent run records.
type HistorySource interface {
	LastByType(runType string) (*runs.Record, error)
	ListRecent(limit int) ([]*runs.Record, error)
}

// JobStatus is the deterministic due-check result for one job.
type JobStatus struct {
	Job     Job           `json:"job"`
	DueNow  bool          `json:"due_now"`
	LastRun *runs.Record  `json:"last_run,omitempty"`
}

// DueNow reports whether a job should fire at the given local time.
// A job is due when it is enabled, the current hour and weekday fall
// inside its schedule, and no run of its type has already happened
// today. This check only reports status and never executes anything.
func DueNow(job Job, now time.Time, lastRun *runs.Record) bool {
	if !job.Enabled {
		return false
	}
	if !job.Schedule.Matches(now) {
		return false
	}
	return !alreadyRunToday(lastRun, now)
}

// alreadyRunToday compares the last run's creation date against now by
// calendar-date equality in now's location. Failed and cancelled runs do
// not count, so the job stays due so the work can be retried.
func alreadyRunToday(lastRun *runs.Record, now time.Time) bool {
	if lastRun == nil {
		return false
	}
	if lastRun.Status == runs.StatusFailed || lastRun.Status == runs.StatusCancelled {
		return false
	}
	y1, m1, d1 := lastRun.CreatedAt.In(now.Location()).Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// StatusReport computes the due-check for every job. History lookup
// failures degrade to "no prior run" rather than failing the report.
func StatusReport(jobs []Job, now time.Time, history HistorySource) []JobStatus {
	out := make([]JobStatus, 0, len(jobs))
	for _, job := range jobs {
		var lastRun *runs.Record
		if history != nil {
			if lr, err := history.LastByType(job.RunType); err == nil {
				lastRun = lr
			}
		}
		out = append(out, JobStatus{
			Job:     job,
			DueNow:  DueNow(job, now, lastRun),
			LastRun: lastRun,
		})
	}
	return out
}
