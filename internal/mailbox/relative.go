package mailbox

import (
	"fmt"
	"math"
	"time"
)

const (
	minutesPerDay   = 24 * 60
	minutesPerMonth = 30 * minutesPerDay
	minutesPerYear  = 365 * minutesPerDay
)

// RelativeLabel describes t relative to now in a single rounded unit,
// e.g. "in 3 hours" or "5 minutes ago".
func RelativeLabel(t, now time.Time) string {
	diff := t.Sub(now)
	minutes := math.Abs(diff.Minutes())

	var (
		n    float64
		unit string
	)
	switch {
	case minutes < 1:
		n, unit = math.Round(math.Abs(diff.Seconds())), "second"
	case minutes < 60:
		n, unit = math.Round(minutes), "minute"
	case minutes < minutesPerDay:
		n, unit = math.Round(minutes/60), "hour"
	case minutes < minutesPerMonth:
		n, unit = math.Round(minutes/minutesPerDay), "day"
	case minutes < minutesPerYear:
		n, unit = math.Round(minutes/minutesPerMonth), "month"
		if n == 12 {
			n, unit = 1, "year"
		}
	default:
		n, unit = math.Round(minutes/minutesPerYear), "year"
	}

	phrase := fmt.Sprintf("%d %s", int64(n), unit)
	if n != 1 {
		phrase += "s"
	}

	if diff > 0 {
		return "in " + phrase
	}
	return phrase + " ago"
}
