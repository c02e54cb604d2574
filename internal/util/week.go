package util

import (
	"time"
)

// WeekWindow 返回 t 所在 ISO 周的 [周一 00:00, 周日 23:59:59]，按 loc 时区计算
// 所有按周的计算都应通过这里，调用方不要自行做日期运算
func WeekWindow(t time.Time, loc *time.Location) (time.Time, time.Time) {
	start := WeekStart(t, loc)
	end := start.AddDate(0, 0, 7).Add(-time.Second)
	return start, end
}

// WeekStart 返回 t 所在周的周一 00:00（loc 时区）
func WeekStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	weekday := int(local.Weekday())
	if weekday == 0 { // Sunday
		weekday = 7
	}
	return time.Date(local.Year(), local.Month(), local.Day()-weekday+1, 0, 0, 0, 0, loc)
}

// ShiftWeeks 以周为单位平移周起点
func ShiftWeeks(weekStart time.Time, n int) time.Time {
	return weekStart.AddDate(0, 0, 7*n)
}

// DayStart 返回 t 当天 00:00（loc 时区）
func DayStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// LastNDays 返回截止到今天（含）的连续 n 天的起点，按时间升序
func LastNDays(now time.Time, n int, loc *time.Location) []time.Time {
	today := DayStart(now, loc)
	days := make([]time.Time, n)
	for i := 0; i < n; i++ {
		days[i] = today.AddDate(0, 0, i-n+1)
	}
	return days
}

// FloorMinute 取整到分钟并转为 UTC
func FloorMinute(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

// LoadLocation 解析时区，失败时退回本地时区
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}
