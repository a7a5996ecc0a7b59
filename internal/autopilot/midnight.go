package autopilot

import (
	"context"
	"time"
)

// nextMidnight returns the first midnight in loc strictly after now.
func nextMidnight(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}

// RunMidnightReset resets the daily run counter at each local midnight
// until the context is cancelled. The timer re-arms itself after every
// firing by recomputing the next midnight, so the reset keeps working
// across days and DST transitions.
func (c *Controller) RunMidnightReset(ctx context.Context) {
	for {
		next := nextMidnight(c.now(), c.loc)
		timer := time.NewTimer(next.Sub(c.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			c.resetDailyCount()
		}
	}
}

// resetDailyCount zeroes the daily counter and records the reset day so
// the lazy check does not reset a second time.
func (c *Controller) resetDailyCount() {
	c.mu.Lock()
	c.dailyRunCount = 0
	c.lastResetDay = c.now().In(c.loc).Format("2006-01-02")
	c.mu.Unlock()
	c.log.Info("daily autonomous run counter reset")
}

// maybeResetDailyLocked lazily resets the counter when the local
// calendar day has changed since the last reset. This backstops the
// midnight timer: quota checks are correct even if the process slept
// through midnight. Caller must hold c.mu.
func (c *Controller) maybeResetDailyLocked() {
	day := c.now().In(c.loc).Format("2006-01-02")
	if day != c.lastResetDay {
		c.dailyRunCount = 0
		c.lastResetDay = day
	}
}
