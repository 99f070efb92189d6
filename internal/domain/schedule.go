package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ScheduleType selects how a scheduled task's time value is interpreted
type ScheduleType string

const (
	ScheduleDaily    ScheduleType = "daily"    // fires at HH:MM every day
	ScheduleInterval ScheduleType = "interval" // fires every N hours (fractional ok)
)

// ErrInvalidSchedule is wrapped by all schedule validation failures
var ErrInvalidSchedule = errors.New("invalid schedule")

var dailyRegex = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// ScheduleSpec is a validated schedule. For daily schedules Hour and Minute
// are set; for interval schedules Every is set.
type ScheduleSpec struct {
	Type   ScheduleType
	Hour   int
	Minute int
	Every  time.Duration
}

// ParseSchedule validates a (schedule_type, time_value) pair.
// daily expects "HH:MM" (24h), interval expects a decimal number of hours.
func ParseSchedule(scheduleType ScheduleType, timeValue string) (ScheduleSpec, error) {
	switch scheduleType {
	case ScheduleDaily:
		matches := dailyRegex.FindStringSubmatch(timeValue)
		if matches == nil {
			return ScheduleSpec{}, fmt.Errorf("%w: daily time %q (expected HH:MM)", ErrInvalidSchedule, timeValue)
		}
		hour, _ := strconv.Atoi(matches[1])
		minute, _ := strconv.Atoi(matches[2])
		return ScheduleSpec{Type: ScheduleDaily, Hour: hour, Minute: minute}, nil

	case ScheduleInterval:
		hours, err := strconv.ParseFloat(timeValue, 64)
		if err != nil || hours <= 0 {
			return ScheduleSpec{}, fmt.Errorf("%w: interval hours %q (expected a positive number)", ErrInvalidSchedule, timeValue)
		}
		return ScheduleSpec{Type: ScheduleInterval, Every: time.Duration(hours * float64(time.Hour))}, nil

	default:
		return ScheduleSpec{}, fmt.Errorf("%w: unknown schedule type %q", ErrInvalidSchedule, scheduleType)
	}
}

// CronSpec returns the cron expression for a daily schedule
func (s ScheduleSpec) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", s.Minute, s.Hour)
}
