package analytics

import (
	"strconv"
	"time"

	"linkboard/model"
)

// Period selects the chart window. Unknown values fall back to a 30-slot
// zero-filled series.
type Period string

const (
	PeriodDay      Period = "1d" // 24 hourly slots over the current calendar day
	PeriodWeek     Period = "1w" // 7 daily slots, trailing week ending today
	PeriodMonth    Period = "1m" // 30 daily slots over the current month
	PeriodHalfYear Period = "6m" // 26 trailing 7-day windows ending today
	PeriodYear     Period = "1y" // 12 monthly slots over the current year
)

// ValidPeriod reports whether p is one of the selectable chart periods.
func ValidPeriod(p Period) bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodHalfYear, PeriodYear:
		return true
	}
	return false
}

// Bucket is one time-windowed aggregation slot in a chart series.
type Bucket struct {
	Label  string `json:"period"`
	Clicks int    `json:"clicks"`
}

// ChartData is the aggregator output consumed by the chart surface.
// TotalClicks counts every input event, not only those inside the chart
// window, matching the dashboard's headline number.
type ChartData struct {
	Buckets     []Bucket `json:"data"`
	TotalClicks int      `json:"totalClicks"`
	Period      Period   `json:"period"`
}

// Fixed label tables. The week series labels slots by position (slot 0 is
// always "Mon") rather than by the actual weekday of the date; the chart
// has always rendered it that way.
var (
	weekdayLabels = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
	monthLabels   = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
)

// slotCounts is the fixed slot cardinality per period.
var slotCounts = map[Period]int{
	PeriodDay:      24,
	PeriodWeek:     7,
	PeriodMonth:    30,
	PeriodHalfYear: 26,
	PeriodYear:     12,
}

const defaultSlots = 30 // unknown periods get the month cardinality, zero-filled

// BuildChart buckets the given click events into the fixed slot series for
// the period, anchored at now. It is a pure function of (events, period,
// now): callers own scoping the events to the right user, and tests inject
// now directly. Slots are ordered oldest to newest; each event is counted
// when its timestamp lies within the slot's inclusive [start, end] window.
func BuildChart(events []model.ClickEvent, period Period, now time.Time) ChartData {
	points, known := slotCounts[period]
	if !known {
		points = defaultSlots
	}

	buckets := make([]Bucket, 0, points)
	for i := 0; i < points; i++ {
		bucket := Bucket{}
		switch period {
		case PeriodDay:
			bucket.Label = strconv.Itoa(i) + ":00"
			start, end := hourSlot(now, i)
			bucket.Clicks = countBetween(events, start, end)
		case PeriodWeek:
			bucket.Label = weekdayLabels[i]
			start, end := daySlot(dayStart(now).AddDate(0, 0, -(6 - i)))
			bucket.Clicks = countBetween(events, start, end)
		case PeriodMonth:
			bucket.Label = strconv.Itoa(i + 1)
			// Day numbers past the month's length normalize forward
			// (Feb 30 -> Mar 1); days 31+ of longer months are not
			// represented. Fixed 30-slot model, kept for parity with
			// the chart this feeds.
			day := time.Date(now.Year(), now.Month(), i+1, 0, 0, 0, 0, now.Location())
			start, end := daySlot(day)
			bucket.Clicks = countBetween(events, start, end)
		case PeriodHalfYear:
			bucket.Label = "W" + strconv.Itoa(i+1)
			start := dayStart(now).AddDate(0, 0, -(25-i)*7)
			end := endOfDay(start.AddDate(0, 0, 6))
			bucket.Clicks = countBetween(events, start, end)
		case PeriodYear:
			bucket.Label = monthLabels[i]
			start := time.Date(now.Year(), time.Month(i+1), 1, 0, 0, 0, 0, now.Location())
			end := time.Date(now.Year(), time.Month(i+2), 1, 0, 0, 0, 0, now.Location()).Add(-time.Millisecond)
			bucket.Clicks = countBetween(events, start, end)
		default:
			bucket.Label = strconv.Itoa(i + 1)
		}
		buckets = append(buckets, bucket)
	}

	return ChartData{
		Buckets:     buckets,
		TotalClicks: len(events),
		Period:      period,
	}
}

// hourSlot returns hour i of now's calendar day: [i:00:00.000, i:59:59.999].
func hourSlot(now time.Time, hour int) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	end := start.Add(time.Hour - time.Millisecond)
	return start, end
}

// daySlot returns the full calendar day of day: [00:00:00.000, 23:59:59.999].
func daySlot(day time.Time) (time.Time, time.Time) {
	return day, endOfDay(day)
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, int(999*time.Millisecond), day.Location())
}

// countBetween counts events whose timestamp lies in [start, end], both
// ends inclusive.
func countBetween(events []model.ClickEvent, start, end time.Time) int {
	n := 0
	for _, e := range events {
		if !e.ClickedAt.Before(start) && !e.ClickedAt.After(end) {
			n++
		}
	}
	return n
}
