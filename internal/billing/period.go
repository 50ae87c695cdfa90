package billing

import (
	"fmt"
	"regexp"
	"time"
)

// Period is the inclusive date range a bill covers.
type Period struct {
	Start time.Time
	End   time.Time
}

// Days counts both endpoints, matching utility billing convention: a period
// of 05/26 through 06/24 is 30 billing days, not 29.
func (p Period) Days() int {
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

// StartString and EndString format period endpoints the way bills display
// them (MM/DD/YYYY).
func (p Period) StartString() string { return p.Start.Format("01/02/2006") }
func (p Period) EndString() string   { return p.End.Format("01/02/2006") }

// DefaultPeriod is the last-resort billing period used when no uploaded
// file carries a usable period marker.
func DefaultPeriod() Period {
	start := time.Date(2025, time.May, 26, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.June, 24, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: end}
}

var totalMarkerRe = regexp.MustCompile(`Total\s+(\d{1,2}/\d{1,2}/\d{4})\s*-\s*(\d{1,2}/\d{1,2}/\d{4})`)

// ParsePeriodMarker extracts a billing period from a "Total <start> - <end>"
// marker cell. A cell whose text does not match leaves the period
// undetermined; callers treat (nil, false) as no period, never an error.
func ParsePeriodMarker(cell string) (*Period, bool) {
	m := totalMarkerRe.FindStringSubmatch(cell)
	if m == nil {
		return nil, false
	}
	start, err := time.Parse("1/2/2006", m[1])
	if err != nil {
		return nil, false
	}
	end, err := time.Parse("1/2/2006", m[2])
	if err != nil {
		return nil, false
	}
	if end.Before(start) {
		return nil, false
	}
	return &Period{Start: start, End: end}, true
}

// NewPeriod validates and builds a period from explicit operator input.
func NewPeriod(start, end time.Time) (Period, error) {
	if end.Before(start) {
		return Period{}, fmt.Errorf("period end %s before start %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	return Period{Start: start, End: end}, nil
}
