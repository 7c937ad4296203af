package sla

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var targetPattern = regexp.MustCompile(`^(?:(\d+)d)?(?:(\d+)h)?$`)

// FormatError reports a response target that is not of the form
// [<N>d][<N>h].
type FormatError struct {
	Input string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid duration %q: use XdYh format like '3d', '48h' or '2d4h'", e.Input)
}

// ParseTarget converts strings such as "3d", "48h" or "2d4h" into a
// duration. An empty string yields zero.
func ParseTarget(value string) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	match := targetPattern.FindStringSubmatch(trimmed)
	if match == nil {
		return 0, &FormatError{Input: value}
	}
	days, err := atoiOrZero(match[1])
	if err != nil {
		return 0, &FormatError{Input: value}
	}
	hours, err := atoiOrZero(match[2])
	if err != nil {
		return 0, &FormatError{Input: value}
	}
	return time.Duration(days)*24*time.Hour + time.Duration(hours)*time.Hour, nil
}

func atoiOrZero(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 32)
}

// FormatTarget renders a response target as "<d>days HH:MM:SS".
func FormatTarget(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	days := total / 86400
	rem := total % 86400
	return fmt.Sprintf("%ddays %02d:%02d:%02d", days, rem/3600, (rem%3600)/60, rem%60)
}

// FormatHMS renders d as hours:minutes:seconds with unbounded hours, the
// format used by the SLA dashboard.
func FormatHMS(d time.Duration) string {
	total := int64(d / time.Second)
	sign := ""
	if total < 0 {
		sign = "-"
		total = -total
	}
	return fmt.Sprintf("%s%d:%d:%d", sign, total/3600, (total%3600)/60, total%60)
}

// LoadReportZone resolves the display zone. Storage and comparison always
// use UTC; the zone only affects rendering.
func LoadReportZone(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
