package session

import (
	"fmt"
	"time"
)

// FormatClock renders a countdown as MM:SS, the professor display.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// FormatClockHours renders a countdown as HH:MM:SS, the student display.
func FormatClockHours(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
