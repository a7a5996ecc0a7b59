package scheduler

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/holdinghq/hq/internal/runs"
)

// Decision is the parsed output of the delegated ("ai_decide") mode.
type Decision struct {
	JobsToRun          []string `json:"jobs_to_run"`
	Reasoning          string   `json:"reasoning"`
	NextCheckInMinutes int      `json:"next_check_in_minutes"`
}

// safeEmptyDecision is returned whenever the reasoning service's output
// cannot be parsed: run nothing, check again in an hour.
func safeEmptyDecision(reason string) Decision {
	return Decision{
		JobsToRun:          []string{},
		Reasoning:          reason,
		NextCheckInMinutes: 60,
	}
}

// ParseDecision parses free-form reasoning-service output. Markdown
// code fences are stripped before unmarshalling; any parse failure
// yields the safe empty decision rather than an error.
func ParseDecision(raw string) Decision {
	cleaned := stripCodeFences(raw)

	var d Decision
	if err := json.Unmarshal([]byte(cleaned), &d); err != nil {
		return safeEmptyDecision("parse error")
	}
	if d.JobsToRun == nil {
		d.JobsToRun = []string{}
	}
	if d.NextCheckInMinutes <= 0 {
		d.NextCheckInMinutes = 60
	}
	return d
}

// stripCodeFences removes a surrounding markdown code fence
// (``` or ```json) if present and trims whitespace.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop a language tag on the opening fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "json" || first == "" {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// BuildDecisionPrompt renders the context the reasoning service sees:
// current local time, and for each job its schedule plus last run.
func BuildDecisionPrompt(now time.Time, jobs []Job, lastRuns map[string]*runs.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current time: %s (%s, day %d of week)\n\n",
		now.Format("2006-01-02 15:04"), now.Weekday(), int(now.Weekday()))
	b.WriteString("Scheduled jobs:\n")
	for _, job := range jobs {
		fmt.Fprintf(&b, "- key=%s name=%q schedule=%q enabled=%t",
			job.Key, job.Name, job.Schedule.Human(), job.Enabled)
		if lr := lastRuns[job.RunType]; lr != nil {
			fmt.Fprintf(&b, " last_run=%s status=%s",
				lr.CreatedAt.In(now.Location()).Format(time.RFC3339), lr.Status)
		} else {
			b.WriteString(" last_run=never")
		}
		b.WriteString("\n")
	}
	b.WriteString("\nDecide which jobs should run now. Respond with exactly this JSON shape:\n")
	b.WriteString(`{"jobs_to_run": ["job_key"], "reasoning": "...", "next_check_in_minutes": 30}`)
	b.WriteString("\nDo not run a job that already ran today. Return an empty jobs_to_run list when nothing is due.")
	return b.String()
}
