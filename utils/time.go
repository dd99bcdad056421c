package utils

import (
	"time"
)

// DayStart 返回当天零点
func DayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// WeekStart 返回本周周一零点
func WeekStart(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // 周日算第 7 天
	}
	return DayStart(t).AddDate(0, 0, -(weekday - 1))
}

// MonthStart 返回本月 1 号零点
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// DateKey 返回 YYYY-MM-DD 格式的日期键
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
