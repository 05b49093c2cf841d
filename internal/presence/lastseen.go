package presence

import (
	"fmt"
	"time"
)

// dayThreshold separates relative from absolute last-seen formatting.
const dayThreshold = 24 * time.Hour

// FormatLastSeen renders a last-seen timestamp for display. Within the last
// 24 hours the result is relative ("just now", "5m ago", "3h ago"); anything
// older is an absolute date. Pure function of the two timestamps (unix ms).
func FormatLastSeen(lastSeen, now int64) string {
	if lastSeen <= 0 {
		return "a while ago"
	}
	elapsed := time.Duration(now-lastSeen) * time.Millisecond
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case elapsed < dayThreshold:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	default:
		return time.UnixMilli(lastSeen).Format("Jan 2, 2006")
	}
}
