package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// KST is the Korea Standard Time location (UTC+9).
var KST *time.Location

func init() {
	KST = LoadLocation("Asia/Seoul")
}

// DateLayout is the calendar date format carried by news items.
const DateLayout = "2006-01-02"

// LoadLocation resolves an IANA zone name. When the tz database is not
// available it falls back to a fixed UTC+9 zone for Asia/Seoul and UTC
// for anything else.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc
	}
	if name == "Asia/Seoul" {
		return time.FixedZone("KST", 9*60*60)
	}
	return time.UTC
}

// NowIn returns the current time in loc.
func NowIn(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// FormatDate formats t as YYYY-MM-DD in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// FormatDateTime formats t as "2006-01-02 15:04:05" in loc.
func FormatDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02 15:04:05")
}

// IsDate reports whether s is a well-formed YYYY-MM-DD calendar date.
func IsDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

var absoluteLayouts = []string{
	"2006.01.02.",
	"2006.01.02",
	"2006.1.2.",
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006.01.02. 15:04",
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

var (
	reKoreanRelative  = regexp.MustCompile(`(\d+)\s*(초|분|시간|일|주)\s*전`)
	reEnglishRelative = regexp.MustCompile(`(?i)(\d+)\s*(second|minute|min|hour|day|week)s?\s+ago`)
)

// ParseNewsDate interprets the date text a news listing shows next to an
// entry. Absolute dates are read in now's location; relative forms such as
// "3시간 전" or "2 days ago" are resolved against now. The second return
// value is false when nothing recognisable was found.
func ParseNewsDate(raw string, now time.Time) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, true
		}
	}

	lower := strings.ToLower(s)
	switch {
	case strings.Contains(s, "어제"), strings.Contains(lower, "yesterday"):
		return now.AddDate(0, 0, -1), true
	case strings.Contains(s, "오늘"), strings.Contains(lower, "today"), strings.Contains(lower, "just now"), strings.Contains(s, "방금"):
		return now, true
	}

	if m := reKoreanRelative.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return shiftBack(now, n, koreanUnit(m[2])), true
	}
	if m := reEnglishRelative.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return shiftBack(now, n, strings.ToLower(m[2])), true
	}

	return time.Time{}, false
}

func koreanUnit(u string) string {
	switch u {
	case "초":
		return "second"
	case "분":
		return "minute"
	case "시간":
		return "hour"
	case "일":
		return "day"
	case "주":
		return "week"
	}
	return ""
}

func shiftBack(now time.Time, n int, unit string) time.Time {
	switch unit {
	case "second":
		return now.Add(-time.Duration(n) * time.Second)
	case "minute", "min":
		return now.Add(-time.Duration(n) * time.Minute)
	case "hour":
		return now.Add(-time.Duration(n) * time.Hour)
	case "day":
		return now.AddDate(0, 0, -n)
	case "week":
		return now.AddDate(0, 0, -7*n)
	}
	return now
}
