package domain

// Schedule types.
const (
	ScheduleInterval = "interval"
	ScheduleDaily    = "daily"
	ScheduleWeekly   = "weekly"
	ScheduleMonthly  = "monthly"
	ScheduleCustom   = "custom"
)

// Interval units.
const (
	UnitMinute = "minute"
	UnitHour   = "hour"
	UnitDay    = "day"
	UnitWeek   = "week"
	UnitMonth  = "month"
)

// Interval is the repetition spec of an interval schedule.
type Interval struct {
	Value int    `json:"value" yaml:"value"`
	Unit  string `json:"unit" yaml:"unit"`
}

// ScheduleConfig is the declarative schedule of one source. DayOfMonth holds
// a number ("1".."31") or one of "first" / "last".
type ScheduleConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	Type       string   `json:"type" yaml:"type"`
	Interval   Interval `json:"interval" yaml:"interval"`
	Time       string   `json:"time" yaml:"time"`
	DayOfWeek  string   `json:"day_of_week" yaml:"day_of_week"`
	DayOfMonth string   `json:"day_of_month" yaml:"day_of_month"`
	CustomCron string   `json:"custom_cron" yaml:"custom_cron"`
}
