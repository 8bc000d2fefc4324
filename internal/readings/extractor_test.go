package readings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/septivank/solar-dashboard/internal/db"
)

type memorySource struct {
	readings []db.MeterReading
	err      error
	calls    int
}

func (m *memorySource) ReadingsBetween(_ context.Context, key db.ReadingKey, from, to time.Time) ([]db.MeterReading, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []db.MeterReading
	for _, r := range m.readings {
		if r.Key != key {
			continue
		}
		if r.Timestamp.Before(from) || !r.Timestamp.Before(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

type staticResolver struct {
	keys map[string]db.ReadingKey
	err  error
}

func (s staticResolver) Resolve(_ context.Context, customer string) (db.ReadingKey, bool, error) {
	if s.err != nil {
		return db.ReadingKey{}, false, s.err
	}
	key, ok := s.keys[customer]
	return key, ok, nil
}

func (s staticResolver) Identifiers(context.Context) ([]string, error) {
	return nil, nil
}

func kwh(v float64) *float64 { return &v }

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

var c1 = db.ReadingKey{External: "C1"}

func newTestExtractor(src *memorySource) *Extractor {
	return NewExtractor(src, staticResolver{keys: map[string]db.ReadingKey{"C1": c1, "C2": {External: "C2"}}}, time.UTC)
}

func TestDailyFirst_Example(t *testing.T) {
	src := &memorySource{readings: []db.MeterReading{
		{ID: 2, Key: c1, Timestamp: at("2024-03-01T14:00"), TotalPositiveRealEnergyKWh: kwh(120.5)},
		{ID: 1, Key: c1, Timestamp: at("2024-03-01T08:00"), TotalPositiveRealEnergyKWh: kwh(100.0)},
		{ID: 3, Key: c1, Timestamp: at("2024-03-02T09:00"), TotalPositiveRealEnergyKWh: kwh(131.25)},
	}}

	got, err := newTestExtractor(src).DailyFirst(context.Background(), "C1", 2024, 3)
	if err != nil {
		t.Fatalf("DailyFirst failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("Expected 2 days, got %d: %v", len(got), got)
	}
	if v := got["2024-03-01"]; v == nil || *v != 100.0 {
		t.Errorf("Expected 2024-03-01 = 100.0, got %v", v)
	}
	if v := got["2024-03-02"]; v == nil || *v != 131.25 {
		t.Errorf("Expected 2024-03-02 = 131.25, got %v", v)
	}
}

func TestDailyFirst_NoReadings(t *testing.T) {
	src := &memorySource{readings: []db.MeterReading{
		{ID: 1, Key: c1, Timestamp: at("2024-02-29T23:59"), TotalPositiveRealEnergyKWh: kwh(1)},
		{ID: 2, Key: db.ReadingKey{External: "C2"}, Timestamp: at("2024-03-05T10:00"), TotalPositiveRealEnergyKWh: kwh(2)},
	}}

	got, err := newTestExtractor(src).DailyFirst(context.Background(), "C1", 2024, 3)
	if err != nil {
		t.Fatalf("Expected no error for empty month, got %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Expected empty non-nil map, got %v", got)
	}
}

func TestDailyFirst_NullValueKept(t *testing.T) {
	src := &memorySource{readings: []db.MeterReading{
		{ID: 1, Key: c1, Timestamp: at("2024-03-10T06:00"), TotalPositiveRealEnergyKWh: nil},
		{ID: 2, Key: c1, Timestamp: at("2024-03-10T07:00"), TotalPositiveRealEnergyKWh: kwh(55)},
	}}

	got, err := newTestExtractor(src).DailyFirst(context.Background(), "C1", 2024, 3)
	if err != nil {
		t.Fatalf("DailyFirst failed: %v", err)
	}

	v, ok := got["2024-03-10"]
	if !ok {
		t.Fatal("Expected entry for 2024-03-10")
	}
	if v != nil {
		t.Errorf("Expected null first reading to be preserved, got %v", *v)
	}
}

func TestDailyFirst_TieBreaksOnLowestID(t *testing.T) {
	src := &memorySource{readings: []db.MeterReading{
		{ID: 9, Key: c1, Timestamp: at("2024-03-03T08:00"), TotalPositiveRealEnergyKWh: kwh(9)},
		{ID: 4, Key: c1, Timestamp: at("2024-03-03T08:00"), TotalPositiveRealEnergyKWh: kwh(4)},
		{ID: 7, Key: c1, Timestamp: at("2024-03-03T08:00"), TotalPositiveRealEnergyKWh: kwh(7)},
	}}

	got, err := newTestExtractor(src).DailyFirst(context.Background(), "C1", 2024, 3)
	if err != nil {
		t.Fatalf("DailyFirst failed: %v", err)
	}
	if v := got["2024-03-03"]; v == nil || *v != 4 {
		t.Errorf("Expected reading with id 4 to win the tie, got %v", v)
	}
}

func TestDailyFirst_UnknownCustomer(t *testing.T) {
	src := &memorySource{}

	got, err := newTestExtractor(src).DailyFirst(context.Background(), "nobody", 2024, 3)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected empty map, got %v", got)
	}
	if src.calls != 0 {
		t.Errorf("Expected source not to be queried, got %d calls", src.calls)
	}
}

func TestDailyFirst_InvalidPeriod(t *testing.T) {
	src := &memorySource{}
	e := newTestExtractor(src)

	for _, month := range []int{0, 13, -1} {
		if _, err := e.DailyFirst(context.Background(), "C1", 2024, month); !errors.Is(err, ErrInvalidPeriod) {
			t.Errorf("month %d: expected ErrInvalidPeriod, got %v", month, err)
		}
	}
	for _, year := range []int{0, -1, MaxYear + 1, 300000} {
		if _, err := e.DailyFirst(context.Background(), "C1", year, 3); !errors.Is(err, ErrInvalidPeriod) {
			t.Errorf("year %d: expected ErrInvalidPeriod, got %v", year, err)
		}
	}
	if src.calls != 0 {
		t.Errorf("Expected source not to be queried, got %d calls", src.calls)
	}
}

func TestDailyFirst_SourceError(t *testing.T) {
	storeErr := errors.New("connection refused")
	src := &memorySource{err: storeErr}

	_, err := newTestExtractor(src).DailyFirst(context.Background(), "C1", 2024, 3)
	if !errors.Is(err, storeErr) {
		t.Errorf("Expected wrapped store error, got %v", err)
	}
}

func TestDailyFirst_ResolverError(t *testing.T) {
	resolveErr := errors.New("registry down")
	e := NewExtractor(&memorySource{}, staticResolver{err: resolveErr}, time.UTC)

	_, err := e.DailyFirst(context.Background(), "C1", 2024, 3)
	if !errors.Is(err, resolveErr) {
		t.Errorf("Expected wrapped resolver error, got %v", err)
	}
}

func TestDailyFirst_CanonicalTimezone(t *testing.T) {
	vienna, err := time.LoadLocation("Europe/Vienna")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// 23:30 UTC on Mar 4 is 00:30 on Mar 5 in Vienna (CET, UTC+1).
	src := &memorySource{readings: []db.MeterReading{
		{ID: 1, Key: c1, Timestamp: time.Date(2024, 3, 4, 23, 30, 0, 0, time.UTC), TotalPositiveRealEnergyKWh: kwh(10)},
		{ID: 2, Key: c1, Timestamp: time.Date(2024, 3, 5, 6, 0, 0, 0, time.UTC), TotalPositiveRealEnergyKWh: kwh(11)},
	}}
	e := NewExtractor(src, staticResolver{keys: map[string]db.ReadingKey{"C1": c1}}, vienna)

	got, err := e.DailyFirst(context.Background(), "C1", 2024, 3)
	if err != nil {
		t.Fatalf("DailyFirst failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected a single Vienna day, got %v", got)
	}
	if v := got["2024-03-05"]; v == nil || *v != 10 {
		t.Errorf("Expected 2024-03-05 = 10, got %v", v)
	}
}

func TestFirstPerDay_OneEntryPerDayAndMinimal(t *testing.T) {
	base := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	var rows []db.MeterReading
	// Descending insertion order across 10 days, 5 readings each.
	id := int64(100)
	for d := 9; d >= 0; d-- {
		for h := 20; h >= 4; h -= 4 {
			rows = append(rows, db.MeterReading{
				ID:                         id,
				Key:                        c1,
				Timestamp:                  base.AddDate(0, 0, d).Add(time.Duration(h) * time.Hour),
				TotalPositiveRealEnergyKWh: kwh(float64(d*100 + h)),
			})
			id--
		}
	}

	got := FirstPerDay(rows, 2024, time.July, time.UTC)
	if len(got) != 10 {
		t.Fatalf("Expected 10 days, got %d", len(got))
	}
	for d := 0; d < 10; d++ {
		day := base.AddDate(0, 0, d).Format(DateLayout)
		v := got[day]
		if v == nil || *v != float64(d*100+4) {
			t.Errorf("%s: expected earliest value %d, got %v", day, d*100+4, v)
		}
	}
}

func TestFirstPerDay_DropsOtherMonths(t *testing.T) {
	rows := []db.MeterReading{
		{ID: 1, Key: c1, Timestamp: at("2024-03-31T23:00"), TotalPositiveRealEnergyKWh: kwh(1)},
		{ID: 2, Key: c1, Timestamp: at("2024-04-01T00:00"), TotalPositiveRealEnergyKWh: kwh(2)},
	}

	got := FirstPerDay(rows, 2024, time.April, time.UTC)
	if len(got) != 1 || got["2024-04-01"] == nil {
		t.Errorf("Expected only 2024-04-01, got %v", got)
	}
}
