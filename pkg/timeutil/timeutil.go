// Package timeutil provides timezone and academic-calendar utilities.
// All deadlines in the workflow (registration windows, promotion runs) are
// interpreted in campus time, so every helper pins to that zone.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// CampusTZ is the campus timezone (IST, UTC+5:30, no DST).
var CampusTZ = time.FixedZone("Asia/Kolkata", 5*60*60+30*60)

// Now returns the current time in campus timezone.
func Now() time.Time {
	return time.Now().In(CampusTZ)
}

// ToCampus converts a time to campus timezone.
func ToCampus(t time.Time) time.Time {
	return t.In(CampusTZ)
}

// ToUTC converts a time to UTC.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// Date creates a time in campus timezone with the given date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, CampusTZ)
}

// DateTime creates a time in campus timezone with the given date and time.
func DateTime(year, month, day, hour, min, sec int) time.Time {
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, CampusTZ)
}

// StartOfDay returns the start of the day (00:00:00) in campus timezone.
func StartOfDay(t time.Time) time.Time {
	local := ToCampus(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, CampusTZ)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in campus timezone.
func EndOfDay(t time.Time) time.Time {
	local := ToCampus(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, CampusTZ)
}

// IsSameDay checks if two times are on the same day in campus timezone.
func IsSameDay(t1, t2 time.Time) bool {
	a, b := ToCampus(t1), ToCampus(t2)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// DaysBetween calculates the number of days between two times.
func DaysBetween(t1, t2 time.Time) int {
	a := StartOfDay(t1)
	b := StartOfDay(t2)
	days := int(b.Sub(a).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// ══════════════════════════════════════════════════════════════════════════════
// ACADEMIC CALENDAR
// ══════════════════════════════════════════════════════════════════════════════

// The academic year starts in July. Odd semesters run July-December, even
// semesters January-June.
const academicYearStartMonth = time.July

// AcademicYearLabel returns the academic year containing t in "YYYY-YY"
// form, e.g. "2025-26" for any time from July 2025 through June 2026.
func AcademicYearLabel(t time.Time) string {
	local := ToCampus(t)
	start := local.Year()
	if local.Month() < academicYearStartMonth {
		start--
	}
	return fmt.Sprintf("%d-%02d", start, (start+1)%100)
}

// AcademicYearStart returns the first day of the academic year containing t.
func AcademicYearStart(t time.Time) time.Time {
	local := ToCampus(t)
	year := local.Year()
	if local.Month() < academicYearStartMonth {
		year--
	}
	return Date(year, int(academicYearStartMonth), 1)
}

// InOddTerm reports whether t falls in the odd-semester term (July-December).
func InOddTerm(t time.Time) bool {
	return ToCampus(t).Month() >= academicYearStartMonth
}

// ══════════════════════════════════════════════════════════════════════════════
// FORMATTING & PARSING
// ══════════════════════════════════════════════════════════════════════════════

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatTime is the standard time format (HH:MM).
	FormatTime = "15:04"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatDateTimeSeconds includes seconds.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
	// FormatHumanDate is a human-readable format.
	FormatHumanDate = "2 January 2006"
)

// FormatCampus formats a time in campus timezone with the given layout.
func FormatCampus(t time.Time, layout string) string {
	return ToCampus(t).Format(layout)
}

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in campus timezone.
func FormatDateStr(t time.Time) string {
	return FormatCampus(t, FormatDate)
}

// FormatDateTimeStr formats a time as a datetime string in campus timezone.
func FormatDateTimeStr(t time.Time) string {
	return FormatCampus(t, FormatDateTime)
}

// ParseCampus parses a time string in campus timezone.
func ParseCampus(layout, value string) (time.Time, error) {
	return time.ParseInLocation(layout, value, CampusTZ)
}

// ParseDateCampus parses a date string (YYYY-MM-DD) in campus timezone.
func ParseDateCampus(value string) (time.Time, error) {
	return ParseCampus(FormatDate, value)
}

// ParseDateTimeCampus parses a datetime string (YYYY-MM-DD HH:MM) in campus
// timezone.
func ParseDateTimeCampus(value string) (time.Time, error) {
	return ParseCampus(FormatDateTime, value)
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION TIMING
// ══════════════════════════════════════════════════════════════════════════════

// IsSafeNotificationTime checks if it's appropriate to send notifications
// (9:00-22:00 campus time).
func IsSafeNotificationTime(t time.Time) bool {
	hour := ToCampus(t).Hour()
	return hour >= 9 && hour < 22
}

// NextSafeNotificationTime returns the next time when notifications are
// appropriate.
func NextSafeNotificationTime(t time.Time) time.Time {
	local := ToCampus(t)
	hour := local.Hour()

	if hour < 9 {
		return DateTime(local.Year(), int(local.Month()), local.Day(), 9, 0, 0)
	}
	if hour >= 22 {
		tomorrow := local.AddDate(0, 0, 1)
		return DateTime(tomorrow.Year(), int(tomorrow.Month()), tomorrow.Day(), 9, 0, 0)
	}
	return local
}
