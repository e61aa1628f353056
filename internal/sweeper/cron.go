package sweeper

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Sweep schedules are classic 5-field cron expressions:
// minute, hour, day of month, month, day of week.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// untilNextSweep returns how long to wait before the schedule next fires.
// An expression that does not parse yields 0; New has already validated the
// configured schedule, so that only happens for hand-built values.
func untilNextSweep(schedule string) time.Duration {
	spec, err := scheduleParser.Parse(schedule)
	if err != nil {
		return 0
	}
	wait := time.Until(spec.Next(time.Now()))
	if wait < 0 {
		return 0
	}
	return wait
}
