package daterange

import (
	"errors"
	"fmt"
	"time"
)

// ISODate is the wire and file-name date layout used everywhere in the pipeline.
const ISODate = "2006-01-02"

// ErrInvalidRange is returned when the start date lies after the end date.
var ErrInvalidRange = errors.New("invalid date range: start after end")

// Range is an inclusive span of calendar days. It drives every downstream
// coverage retrieval: one unit of work per day per layer.
type Range struct {
	Start time.Time
	End   time.Time
}

// New builds a Range from two calendar dates. Both are truncated to midnight
// UTC so arithmetic is day-exact regardless of the caller's clock.
func New(start, end time.Time) (Range, error) {
	start = Truncate(start)
	end = Truncate(end)
	if start.After(end) {
		return Range{}, fmt.Errorf("%w: %s > %s", ErrInvalidRange, start.Format(ISODate), end.Format(ISODate))
	}
	return Range{Start: start, End: end}, nil
}

// Parse builds a Range from two ISO YYYY-MM-DD strings.
func Parse(start, end string) (Range, error) {
	s, err := time.Parse(ISODate, start)
	if err != nil {
		return Range{}, fmt.Errorf("parse start date %q: %w", start, err)
	}
	e, err := time.Parse(ISODate, end)
	if err != nil {
		return Range{}, fmt.Errorf("parse end date %q: %w", end, err)
	}
	return New(s, e)
}

// Truncate strips the time-of-day component, normalising to midnight UTC.
func Truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Len returns the number of days in the range, end inclusive.
func (r Range) Len() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Dates returns every calendar day from start to end inclusive, in order.
func (r Range) Dates() []time.Time {
	out := make([]time.Time, 0, r.Len())
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// String renders the range the way output artifacts name it: start_end.
func (r Range) String() string {
	return r.Start.Format(ISODate) + "_" + r.End.Format(ISODate)
}
