package permissions

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the cache sweep once a minute
const DefaultSweepSchedule = "@every 1m"

// StartSweeper evicts expired decisions on a cron schedule. The returned
// stop function waits for a running sweep to finish.
func (e *Engine) StartSweeper(schedule string) (stop func(), err error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if removed := e.SweepCache(); removed > 0 {
			e.logger.WithField("removed", removed).Debug("Swept expired permission decisions")
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()

	return func() {
		<-c.Stop().Done()
	}, nil
}
