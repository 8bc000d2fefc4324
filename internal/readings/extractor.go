package readings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/septivank/solar-dashboard/internal/db"
)

// DateLayout is the key format of DailyFirst results.
const DateLayout = "2006-01-02"

// ErrInvalidPeriod is returned for a year or month outside the calendar.
var ErrInvalidPeriod = errors.New("invalid year or month")

// Supported years. The upper bound keeps DateLayout keys at four digits and
// stays well inside the range of a Postgres timestamp.
const (
	MinYear = 1
	MaxYear = 9999
)

// ValidPeriod reports whether year/month can be queried.
func ValidPeriod(year, month int) bool {
	return year >= MinYear && year <= MaxYear && month >= 1 && month <= 12
}

// Source returns the readings recorded for key in [from, to).
type Source interface {
	ReadingsBetween(ctx context.Context, key db.ReadingKey, from, to time.Time) ([]db.MeterReading, error)
}

// Extractor computes the first reading of each calendar day.
type Extractor struct {
	source   Source
	resolver Resolver
	loc      *time.Location
}

// NewExtractor creates an extractor. Day boundaries are computed in loc.
func NewExtractor(source Source, resolver Resolver, loc *time.Location) *Extractor {
	if loc == nil {
		loc = time.UTC
	}
	return &Extractor{source: source, resolver: resolver, loc: loc}
}

// Location returns the zone used for day boundaries.
func (e *Extractor) Location() *time.Location {
	return e.loc
}

// DailyFirst maps each date of year/month with at least one reading for customer to
// the value of that date's earliest reading. Nil values are kept. Ties on the
// timestamp go to the lowest reading id. An unknown customer yields an empty map.
func (e *Extractor) DailyFirst(ctx context.Context, customer string, year, month int) (map[string]*float64, error) {
	if !ValidPeriod(year, month) {
		return nil, ErrInvalidPeriod
	}

	key, ok, err := e.resolver.Resolve(ctx, customer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve customer %q: %w", customer, err)
	}
	if !ok {
		return map[string]*float64{}, nil
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, e.loc)
	to := from.AddDate(0, 1, 0)

	rows, err := e.source.ReadingsBetween(ctx, key, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load readings: %w", err)
	}

	return FirstPerDay(rows, year, time.Month(month), e.loc), nil
}

// FirstPerDay groups rows by calendar date in loc, keeping only dates inside
// year/month, and selects the earliest reading of each group.
func FirstPerDay(rows []db.MeterReading, year int, month time.Month, loc *time.Location) map[string]*float64 {
	first := make(map[string]db.MeterReading)
	for _, r := range rows {
		ts := r.Timestamp.In(loc)
		if ts.Year() != year || ts.Month() != month {
			continue
		}
		day := ts.Format(DateLayout)
		cur, seen := first[day]
		if !seen || earlier(r, cur) {
			first[day] = r
		}
	}

	out := make(map[string]*float64, len(first))
	for day, r := range first {
		out[day] = r.TotalPositiveRealEnergyKWh
	}
	return out
}

func earlier(a, b db.MeterReading) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}
