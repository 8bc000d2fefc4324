package validator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/septivank/solar-dashboard/tools/timeparser"
)

// ValidationResult holds validation outcome
type ValidationResult struct {
	IsValid       bool
	AnomalyReason string
}

// RawReading is one reading as received from an ingestion client.
// Null marks an explicitly missing value.
type RawReading struct {
	Date string
	Data string
	Null bool
}

// Validator checks raw readings before they are stored
type Validator struct {
	tolerance time.Duration
	loc       *time.Location
}

// NewValidator creates a validator. Readings further than toleranceMinutes from their
// receive time are rejected; zero disables the check. Zone-less timestamps are read in loc.
func NewValidator(toleranceMinutes int, loc *time.Location) *Validator {
	if loc == nil {
		loc = time.UTC
	}
	return &Validator{
		tolerance: time.Duration(toleranceMinutes) * time.Minute,
		loc:       loc,
	}
}

// ValidateReading parses and checks a raw reading.
// A valid reading may carry a nil value.
func (v *Validator) ValidateReading(raw RawReading, receivedAt time.Time) (*float64, time.Time, ValidationResult) {
	result := ValidationResult{IsValid: true}

	readingTime, err := timeparser.ParseMeterTimestamp(raw.Date, v.loc)
	if err != nil {
		result.IsValid = false
		result.AnomalyReason = fmt.Sprintf("invalid timestamp format: %v", err)
		return nil, time.Time{}, result
	}

	if !timeparser.IsWithinTolerance(readingTime, receivedAt, v.tolerance) {
		result.IsValid = false
		result.AnomalyReason = fmt.Sprintf("timestamp outside tolerance window (±%s)", v.tolerance)
		return nil, readingTime, result
	}

	// Meters wrap single values in square brackets
	data := strings.TrimSpace(strings.Trim(raw.Data, "[]"))
	if raw.Null || data == "" {
		return nil, readingTime, result
	}

	value, err := strconv.ParseFloat(data, 64)
	if err != nil {
		result.IsValid = false
		result.AnomalyReason = fmt.Sprintf("invalid energy value: %v", err)
		return nil, readingTime, result
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		result.IsValid = false
		result.AnomalyReason = "non-finite value detected"
		return nil, readingTime, result
	}

	if value < 0 {
		result.IsValid = false
		result.AnomalyReason = "negative value detected"
		return nil, readingTime, result
	}

	return &value, readingTime, result
}
