package db

import (
	"time"
)

// Customer statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusOther    = "other"
)

// Customer represents a registered solar customer
type Customer struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	CapacityKW   *float64  `json:"capacity_kw"`
	Brand        string    `json:"brand"`
	Email        *string   `json:"email"`
	Phone        *string   `json:"phone"`
	RegisteredOn time.Time `json:"registered_on"`
	UpdatedAt    time.Time `json:"updated_at"`
	Status       string    `json:"status"`
}

// CustomerSummary is the reduced customer payload served to field loggers
type CustomerSummary struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// ReadingKey identifies whose readings to select. Exactly one field is set:
// External for the raw customer_id column, CustomerID for the customers foreign key.
type ReadingKey struct {
	External   string
	CustomerID int64
}

// IsZero reports whether neither reference is set.
func (k ReadingKey) IsZero() bool {
	return k.External == "" && k.CustomerID == 0
}

// MeterReading represents a cumulative energy meter reading.
// A nil TotalPositiveRealEnergyKWh is a missing value, not an absent reading.
type MeterReading struct {
	ID                         int64
	Key                        ReadingKey
	Timestamp                  time.Time
	TotalPositiveRealEnergyKWh *float64
}
