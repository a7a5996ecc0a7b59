// Package scheduler implements the decision loop that proposes and
// triggers scheduled executive runs, either mechanically (fixed time
// windows) or by delegating the decision to the AI gateway.
package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule is a simplified recurrence: the hours of day and days of week
// a job is eligible to run. Only hour/weekday granularity is needed, so
// full cron syntax is deliberately avoided; a cron rendering is derivable
// for display.
type Schedule struct {
	// Hours are hours of day (0-23) the job may fire.
	Hours []int `yaml:"hours"`
	// Days are days of week (0=Sunday .. 6=Saturday) the job may fire.
	Days []int `yaml:"days"`
}

// Matches reports whether t falls inside the schedule's window.
func (s Schedule) Matches(t time.Time) bool {
	hourOK := false
	for _, h := range s.Hours {
		if t.Hour() == h {
			hourOK = true
			break
		}
	}
	if !hourOK {
		return false
	}
	for _, d := range s.Days {
		if int(t.Weekday()) == d {
			return true
		}
	}
	return false
}

// CronSpec renders the schedule as a standard 5-field cron expression,
// for display only.
func (s Schedule) CronSpec() string {
	return fmt.Sprintf("0 %s * * %s", joinInts(s.Hours), joinInts(s.Days))
}

// Human renders the schedule for the dashboard, e.g.
// "07:00 on Mon, Tue, Wed, Thu, Fri".
func (s Schedule) Human() string {
	hours := make([]int, len(s.Hours))
	copy(hours, s.Hours)
	sort.Ints(hours)
	parts := make([]string, len(hours))
	for i, h := range hours {
		parts[i] = fmt.Sprintf("%02d:00", h)
	}

	days := make([]int, len(s.Days))
	copy(days, s.Days)
	sort.Ints(days)
	names := make([]string, 0, len(days))
	for _, d := range days {
		if d >= 0 && d <= 6 {
			names = append(names, time.Weekday(d).String()[:3])
		}
	}
	return strings.Join(parts, ", ") + " on " + strings.Join(names, ", ")
}

func joinInts(xs []int) string {
	if len(xs) == 0 {
		return "*"
	}
	sorted := make([]int, len(xs))
	copy(sorted, xs)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, x := range sorted {
		parts[i] = fmt.Sprintf("%d", x)
	}
	return strings.Join(parts, ",")
}

// Job is a static mapping from a recurring time window to a run type.
type Job struct {
	Key      string   `yaml:"key"`
	Name     string   `yaml:"name"`
	RunType  string   `yaml:"run_type"`
	Schedule Schedule `yaml:"schedule"`
	Priority int      `yaml:"priority"`
	Enabled  bool     `yaml:"enabled"`
}

// ValidateJobs checks job definitions for sane schedules. The cron
// rendering is parsed with the standard cron parser to catch out-of-range
// hours or days early.
func ValidateJobs(jobs []Job) error {
	seen := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		if job.Key == "" {
			return fmt.Errorf("job with empty key")
		}
		if seen[job.Key] {
			return fmt.Errorf("duplicate job key: %s", job.Key)
		}
		seen[job.Key] = true
		if len(job.Schedule.Hours) == 0 || len(job.Schedule.Days) == 0 {
			return fmt.Errorf("job %s: schedule must list hours and days", job.Key)
		}
		if _, err := cron.ParseStandard(job.Schedule.CronSpec()); err != nil {
			return fmt.Errorf("job %s: invalid schedule %v: %w", job.Key, job.Schedule, err)
		}
	}
	return nil
}

// DefaultJobs is the built-in HQ job registry.
func DefaultJobs() []Job {
	return []Job{
		{
			Key:      "daily_brief",
			Name:     "Daily Executive Brief",
			RunType:  "DAILY_EXECUTIVE_BRIEF",
			Schedule: Schedule{Hours: []int{7}, Days: []int{1, 2, 3, 4, 5}},
			Priority: 1,
			Enabled:  true,
		},
		{
			Key:      "health_sweep",
			Name:     "Platform Health Sweep",
			RunType:  "PLATFORM_HEALTH_CHECK",
			Schedule: Schedule{Hours: []int{6, 12, 18}, Days: []int{0, 1, 2, 3, 4, 5, 6}},
			Priority: 2,
			Enabled:  true,
		},
		{
			Key:      "monday_revenue",
			Name:     "Weekly Revenue Reconciliation",
			RunType:  "REVENUE_RECONCILIATION",
			Schedule: Schedule{Hours: []int{8}, Days: []int{1}},
			Priority: 3,
			Enabled:  true,
		},
	}
}
