package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/solar-dashboard/internal/db"
	"github.com/septivank/solar-dashboard/internal/metrics"
)

const uniqueViolation = "23505"

var (
	// ErrDuplicateCode is returned when a customer code is already registered
	ErrDuplicateCode = errors.New("customer code already exists")
	// ErrNotFound is returned when a looked-up record does not exist
	ErrNotFound = errors.New("not found")
	// ErrEmptyKey is returned for a reading key with no customer reference
	ErrEmptyKey = errors.New("reading key has no customer reference")
)

// Tx is an alias for pgx.Tx
type Tx = pgx.Tx

// Repository handles database operations.
// reading_timestamp is stored without a zone; values are wall-clock times in loc.
type Repository struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool, loc *time.Location) *Repository {
	if loc == nil {
		loc = time.UTC
	}
	return &Repository{pool: pool, loc: loc}
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	defer metrics.ObserveQuery("ping", time.Now())
	return r.pool.Ping(ctx)
}

// ReadingsBetween returns readings for key with from <= timestamp < to, ordered by timestamp then id
func (r *Repository) ReadingsBetween(ctx context.Context, key db.ReadingKey, from, to time.Time) ([]db.MeterReading, error) {
	if key.IsZero() {
		return nil, ErrEmptyKey
	}
	defer metrics.ObserveQuery("readings_between", time.Now())

	column, arg := "customer_id", any(key.External)
	if key.CustomerID != 0 {
		column, arg = "customer_ref", any(key.CustomerID)
	}

	query := fmt.Sprintf(`
		SELECT id, reading_timestamp, total_positive_real_energy_kwh
		FROM meter_readings
		WHERE %s = $1 AND reading_timestamp >= $2 AND reading_timestamp < $3
		ORDER BY reading_timestamp ASC, id ASC
	`, column)

	rows, err := r.pool.Query(ctx, query, arg, from.In(r.loc), to.In(r.loc))
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []db.MeterReading
	for rows.Next() {
		reading := db.MeterReading{Key: key}
		if err := rows.Scan(&reading.ID, &reading.Timestamp, &reading.TotalPositiveRealEnergyKWh); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		reading.Timestamp = r.wallClock(reading.Timestamp)
		readings = append(readings, reading)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return readings, nil
}

// DistinctReadingCustomers lists the non-null customer_id values present in readings
func (r *Repository) DistinctReadingCustomers(ctx context.Context) ([]string, error) {
	defer metrics.ObserveQuery("distinct_reading_customers", time.Now())

	query := `
		SELECT DISTINCT customer_id
		FROM meter_readings
		WHERE customer_id IS NOT NULL
		ORDER BY customer_id ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query reading customers: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect reading customers: %w", err)
	}
	return ids, nil
}

// BeginTx starts a new transaction
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// InsertMeterReadingTx inserts a meter reading within a transaction
func (r *Repository) InsertMeterReadingTx(ctx context.Context, tx pgx.Tx, reading *db.MeterReading) error {
	if reading.Key.IsZero() {
		return ErrEmptyKey
	}
	defer metrics.ObserveQuery("insert_reading", time.Now())

	query := `
		INSERT INTO meter_readings (customer_id, customer_ref, reading_timestamp, total_positive_real_energy_kwh)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var external *string
	var ref *int64
	if reading.Key.CustomerID != 0 {
		ref = &reading.Key.CustomerID
	} else {
		external = &reading.Key.External
	}

	err := tx.QueryRow(ctx, query,
		external,
		ref,
		reading.Timestamp.In(r.loc),
		reading.TotalPositiveRealEnergyKWh,
	).Scan(&reading.ID)
	if err != nil {
		return fmt.Errorf("failed to insert meter reading: %w", err)
	}

	return nil
}

// ListCustomers returns every customer ordered by code
func (r *Repository) ListCustomers(ctx context.Context) ([]db.Customer, error) {
	defer metrics.ObserveQuery("list_customers", time.Now())

	query := `
		SELECT id, code, name, address, capacity_kw, brand, email, phone, registered_on, updated_at, status
		FROM customers
		ORDER BY code ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	customers := []db.Customer{}
	for rows.Next() {
		var c db.Customer
		err := rows.Scan(
			&c.ID,
			&c.Code,
			&c.Name,
			&c.Address,
			&c.CapacityKW,
			&c.Brand,
			&c.Email,
			&c.Phone,
			&c.RegisteredOn,
			&c.UpdatedAt,
			&c.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return customers, nil
}

// ListCustomerSummaries returns {id, code, name} for every customer ordered by code
func (r *Repository) ListCustomerSummaries(ctx context.Context) ([]db.CustomerSummary, error) {
	defer metrics.ObserveQuery("list_customer_summaries", time.Now())

	query := `
		SELECT id, code, name
		FROM customers
		ORDER BY code ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query customer summaries: %w", err)
	}

	summaries, err := pgx.CollectRows(rows, pgx.RowToStructByPos[db.CustomerSummary])
	if err != nil {
		return nil, fmt.Errorf("failed to collect customer summaries: %w", err)
	}
	return summaries, nil
}

// CustomerIDByCode resolves an external code to the internal id
func (r *Repository) CustomerIDByCode(ctx context.Context, code string) (int64, error) {
	defer metrics.ObserveQuery("customer_id_by_code", time.Now())

	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM customers WHERE code = $1`, code).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to query customer: %w", err)
	}
	return id, nil
}

// CreateCustomer inserts c in a single transaction and fills its id and updated_at.
// A duplicate code rolls back and returns ErrDuplicateCode.
func (r *Repository) CreateCustomer(ctx context.Context, c *db.Customer) error {
	defer metrics.ObserveQuery("create_customer", time.Now())

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO customers (code, name, address, capacity_kw, brand, email, phone, registered_on, updated_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), $9)
		RETURNING id, updated_at
	`

	err = tx.QueryRow(ctx, query,
		c.Code,
		c.Name,
		c.Address,
		c.CapacityKW,
		c.Brand,
		c.Email,
		c.Phone,
		c.RegisteredOn,
		c.Status,
	).Scan(&c.ID, &c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateCode
		}
		return fmt.Errorf("failed to insert customer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit customer: %w", err)
	}

	return nil
}

// CountCustomersSince counts customers registered on or after the date of since
func (r *Repository) CountCustomersSince(ctx context.Context, since time.Time) (int, error) {
	defer metrics.ObserveQuery("count_customers_since", time.Now())

	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers WHERE registered_on >= $1`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count customers: %w", err)
	}
	return count, nil
}

// wallClock re-tags a zone-less timestamp, scanned as UTC, into the canonical location
func (r *Repository) wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), r.loc)
}
