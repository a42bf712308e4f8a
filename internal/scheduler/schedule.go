package scheduler

import (
	"strconv"
	"strings"
	"time"

	"github.com/boardwatch/boardwatch/internal/store"
)

// IsDue reports whether a watch configuration should run now. A
// configuration that has never executed is always due. Unknown
// schedule types are never due.
func IsDue(config *store.WatchConfig, now time.Time) bool {
	if config.LastExecutedAt == nil {
		return true
	}
	last := *config.LastExecutedAt

	switch config.Schedule.Type {
	case store.ScheduleHourly:
		return !now.Before(last.Add(time.Hour))

	case store.ScheduleDaily:
		hour, minute := parseClock(config.Schedule.Time)
		todayScheduled := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())

		lastY, lastM, lastD := last.Date()
		nowY, nowM, nowD := now.Date()
		ranToday := lastY == nowY && lastM == nowM && lastD == nowD

		return !ranToday && !now.Before(todayScheduled)

	case store.ScheduleCustom:
		interval := config.Schedule.IntervalMinutes
		if interval <= 0 {
			interval = 60
		}
		return !now.Before(last.Add(time.Duration(interval) * time.Minute))

	default:
		return false
	}
}

// NextExecution computes the next time a configuration will run, or
// nil for unknown schedule types
func NextExecution(config *store.WatchConfig, now time.Time) *time.Time {
	switch config.Schedule.Type {
	case store.ScheduleHourly:
		next := now.Truncate(time.Hour).Add(time.Hour)
		return &next

	case store.ScheduleDaily:
		hour, minute := parseClock(config.Schedule.Time)
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return &next

	case store.ScheduleCustom:
		interval := config.Schedule.IntervalMinutes
		if interval <= 0 {
			interval = 60
		}
		next := now.Add(time.Duration(interval) * time.Minute)
		return &next

	default:
		return nil
	}
}

// parseClock parses "HH:MM", falling back to 09:00 on malformed input
func parseClock(value string) (int, int) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 9, 0
	}

	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 9, 0
	}

	return hour, minute
}
