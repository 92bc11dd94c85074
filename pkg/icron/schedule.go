package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts five-field expressions, an optional leading seconds field
// and descriptors such as "@every 5s".
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
	cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type TriggerInfo struct {
	Next       time.Time `json:"next"`
	Last       time.Time `json:"last"`
	Expression string    `json:"expression"`

	TimeSinceLast time.Duration `json:"time_since_last"`
	TimeUntilNext time.Duration `json:"time_until_next"`
}

func Parse(cronExpr string) (cron.Schedule, error) {
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// GetTriggerInfo reports the fire times around refTime. For "@every" schedules
// the last fire is one interval before the next.
func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := Parse(cronExpr)
	if err != nil {
		return nil, err
	}

	nextTime := schedule.Next(refTime)

	var prevTime time.Time
	if every, ok := schedule.(cron.ConstantDelaySchedule); ok {
		prevTime = nextTime.Add(-every.Delay)
	} else {
		prevTime = previous(schedule, refTime)
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       nextTime,
		Last:       prevTime,
	}
	if !prevTime.IsZero() {
		info.TimeSinceLast = refTime.Sub(prevTime)
	}
	info.TimeUntilNext = nextTime.Sub(refTime)

	return info, nil
}

const maxStepsPerWindow = 10000

// previous finds the latest fire time not after refTime, widening the search
// window until one is found.
func previous(schedule cron.Schedule, refTime time.Time) time.Time {
	for _, window := range []time.Duration{time.Minute, time.Hour, 24 * time.Hour, 366 * 24 * time.Hour} {
		var prev time.Time
		t := refTime.Add(-window)
		for range maxStepsPerWindow {
			n := schedule.Next(t)
			if n.IsZero() || n.After(refTime) {
				break
			}
			prev = n
			t = n
		}
		if !prev.IsZero() {
			return prev
		}
	}
	return time.Time{}
}
