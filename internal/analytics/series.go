package analytics

import (
	"time"

	"github.com/freelanceflow/revcast/internal/forecast"
	"github.com/freelanceflow/revcast/internal/persistence"
)

// monthKey is the wire label for a calendar month
const monthKey = "2006-01"

// firstOfMonth truncates t to the first day of its month in UTC
func firstOfMonth(t time.Time) time.Time {
	t = t.UTC()

	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// monthlySeries converts sparse per-month totals into the engine's integer
// time series. The window from..to is zero-filled so interior months with no
// paid invoices count as zero revenue, then leading empty months are trimmed
// so a freelancer who started invoicing mid-window is not fitted against a
// flat ramp of zeros. Returned months[i] labels series[i].
func monthlySeries(totals []persistence.MonthlyRevenue, from, to time.Time) ([]forecast.Sample, []time.Time) {
	from = firstOfMonth(from)
	to = firstOfMonth(to)
	if to.Before(from) {
		return nil, nil
	}

	byMonth := make(map[time.Time]float64, len(totals))
	for _, mr := range totals {
		byMonth[firstOfMonth(mr.Month)] = mr.Total
	}

	var months []time.Time
	for m := from; !m.After(to); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}

	// Trim leading months with no revenue.
	start := 0
	for start < len(months) && byMonth[months[start]] == 0 {
		start++
	}
	months = months[start:]

	series := make([]forecast.Sample, len(months))
	for i, m := range months {
		series[i] = forecast.Sample{X: float64(i), Y: byMonth[m]}
	}

	return series, months
}
