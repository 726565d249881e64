package bot

import (
	"fmt"
	"time"
)

// FormatDuration formats a time.Duration into a human-readable string.
func FormatDuration(duration time.Duration) string {
	if duration%(24*time.Hour) == 0 {
		days := duration / (24 * time.Hour)
		if days > 1 {
			return fmt.Sprintf("%d days", days)
		}
		return "1 day"
	}
	if duration%time.Hour == 0 {
		hours := duration / time.Hour
		if hours > 1 {
			return fmt.Sprintf("%d hours", hours)
		}
		return "1 hour"
	}
	if duration%time.Minute == 0 {
		minutes := duration / time.Minute
		if minutes > 1 {
			return fmt.Sprintf("%d minutes", minutes)
		}
		return "1 minute"
	}
	seconds := duration / time.Second
	if seconds > 1 {
		return fmt.Sprintf("%d seconds", seconds)
	}
	return "1 second"
}

// formatOptional is FormatDuration for log fields where zero means no expiry.
func formatOptional(duration time.Duration) string {
	if duration <= 0 {
		return "until unlocked"
	}
	return FormatDuration(duration)
}
