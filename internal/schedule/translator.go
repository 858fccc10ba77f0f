// Package schedule turns declarative source schedules into cron triggers and
// runs them.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
)

// Trigger is a cron expression understood by the Scheduler. The zero value
// means the schedule is disabled.
type Trigger string

// Disabled is returned for schedules with enabled=false.
const Disabled Trigger = ""

// LastDayMarker is the day-of-month token for the last day of the month.
const LastDayMarker = "L"

var unitMinutes = map[string]int{
	domain.UnitMinute: 1,
	domain.UnitHour:   60,
	domain.UnitDay:    24 * 60,
	domain.UnitWeek:   7 * 24 * 60,
	domain.UnitMonth:  30 * 24 * 60,
}

var weekdays = map[string]int{
	"sunday": 0, "sun": 0,
	"monday": 1, "mon": 1,
	"tuesday": 2, "tue": 2,
	"wednesday": 3, "wed": 3,
	"thursday": 4, "thu": 4,
	"friday": 5, "fri": 5,
	"saturday": 6, "sat": 6,
}

// UnitMinutes returns the length of one interval unit in minutes.
func UnitMinutes(unit string) (int, bool) {
	m, ok := unitMinutes[strings.ToLower(strings.TrimSpace(unit))]
	return m, ok
}

// Translate converts a ScheduleConfig into a Trigger. It is pure and never
// consults a clock.
func Translate(cfg domain.ScheduleConfig) (Trigger, error) {
	if !cfg.Enabled {
		return Disabled, nil
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case domain.ScheduleInterval:
		return translateInterval(cfg.Interval)
	case domain.ScheduleDaily:
		hour, minute, err := parseClock(cfg.Time)
		if err != nil {
			return Disabled, err
		}
		return Trigger(fmt.Sprintf("%d %d * * *", minute, hour)), nil
	case domain.ScheduleWeekly:
		hour, minute, err := parseClock(cfg.Time)
		if err != nil {
			return Disabled, err
		}
		dow, err := parseWeekday(cfg.DayOfWeek)
		if err != nil {
			return Disabled, err
		}
		return Trigger(fmt.Sprintf("%d %d * * %d", minute, hour, dow)), nil
	case domain.ScheduleMonthly:
		hour, minute, err := parseClock(cfg.Time)
		if err != nil {
			return Disabled, err
		}
		dom, err := parseDayOfMonth(cfg.DayOfMonth)
		if err != nil {
			return Disabled, err
		}
		return Trigger(fmt.Sprintf("%d %d %s * *", minute, hour, dom)), nil
	case domain.ScheduleCustom:
		// validated by the scheduler when the trigger is registered
		return Trigger(strings.TrimSpace(cfg.CustomCron)), nil
	default:
		return Disabled, &domain.ConfigurationError{
			Err: fmt.Errorf("%w: %q", domain.ErrUnsupportedScheduleType, cfg.Type),
		}
	}
}

func translateInterval(iv domain.Interval) (Trigger, error) {
	minutes, ok := UnitMinutes(iv.Unit)
	if !ok {
		return Disabled, &domain.ConfigurationError{
			Err: fmt.Errorf("%w: %q", domain.ErrUnsupportedUnit, iv.Unit),
		}
	}
	if iv.Value <= 0 {
		return Disabled, &domain.ConfigurationError{
			Err: fmt.Errorf("interval value must be positive, got %d", iv.Value),
		}
	}
	period := time.Duration(iv.Value*minutes) * time.Minute
	return Trigger("@every " + period.String()), nil
}

func parseClock(raw string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, 0, &domain.ConfigurationError{Err: fmt.Errorf("time must be HH:MM, got %q", raw)}
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, &domain.ConfigurationError{Err: fmt.Errorf("invalid hour in %q", raw)}
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, &domain.ConfigurationError{Err: fmt.Errorf("invalid minute in %q", raw)}
	}
	return hour, minute, nil
}

func parseWeekday(raw string) (int, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if d, ok := weekdays[key]; ok {
		return d, nil
	}
	if d, err := strconv.Atoi(key); err == nil && d >= 0 && d <= 6 {
		return d, nil
	}
	return 0, &domain.ConfigurationError{Err: fmt.Errorf("invalid day_of_week %q", raw)}
}

func parseDayOfMonth(raw string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	switch key {
	case "last":
		return LastDayMarker, nil
	case "first":
		return "1", nil
	}
	d, err := strconv.Atoi(key)
	if err != nil || d < 1 || d > 31 {
		return "", &domain.ConfigurationError{Err: fmt.Errorf("invalid day_of_month %q", raw)}
	}
	return strconv.Itoa(d), nil
}
