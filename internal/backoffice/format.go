package backoffice

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// maxAgo is the age past which a timestamp is shown as a date.
const maxAgo = 30 * 24 * time.Hour

var agoMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Minute, Format: "just now", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "1 minute %s", DivBy: 1},
	{D: time.Hour, Format: "%d minutes %s", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "1 hour %s", DivBy: 1},
	{D: 24 * time.Hour, Format: "%d hours %s", DivBy: time.Hour},
	{D: 48 * time.Hour, Format: "1 day %s", DivBy: 1},
	{D: maxAgo, Format: "%d days %s", DivBy: 24 * time.Hour},
}

// Ago renders t relative to now ("3 minutes ago"). Timestamps older than a
// month are shown as a date.
func Ago(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	// Clock skew can put t slightly ahead of now.
	if t.After(now) {
		t = now
	}
	if now.Sub(t) >= maxAgo {
		return t.Local().Format("2006-01-02")
	}
	return humanize.CustomRelTime(t, now, "ago", "from now", agoMagnitudes)
}

// Money formats an amount with two decimals.
func Money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
