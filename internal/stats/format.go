package stats

import (
	"fmt"
	"strings"
	"time"
)

// FormatDuration renders d as "1д 2ч 3м", omitting zero units.
// Anything under a minute is "0м".
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return "0м"
	}
	days := int64(d / (24 * time.Hour))
	hours := int64(d/time.Hour) % 24
	minutes := int64(d/time.Minute) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dд", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dч", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dм", minutes))
	}
	return strings.Join(parts, " ")
}

// FormatHoursMinutes renders d as "26ч 3м".
func FormatHoursMinutes(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%dч %dм", int64(d/time.Hour), int64(d/time.Minute)%60)
}

// FormatRemaining renders a cooldown the way the application panel shows it.
func FormatRemaining(d time.Duration) string {
	if d < time.Minute {
		return "меньше минуты"
	}
	return FormatDuration(d)
}
