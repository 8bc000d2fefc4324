package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/septivank/solar-dashboard/internal/db"
	"github.com/septivank/solar-dashboard/internal/metrics"
	"github.com/septivank/solar-dashboard/internal/repository"
	"go.uber.org/zap"
)

// ErrDuplicateCode is returned by Create when the code is already registered.
var ErrDuplicateCode = repository.ErrDuplicateCode

// ValidationError describes a rejected registration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Store is the persistence the registry needs
type Store interface {
	ListCustomers(ctx context.Context) ([]db.Customer, error)
	ListCustomerSummaries(ctx context.Context) ([]db.CustomerSummary, error)
	CreateCustomer(ctx context.Context, c *db.Customer) error
	CountCustomersSince(ctx context.Context, since time.Time) (int, error)
}

// Publisher announces registrations to other services
type Publisher interface {
	PublishCustomerRegistered(ctx context.Context, c db.Customer) error
}

// NewCustomer is the registration input. Zero Status and RegisteredOn take defaults.
type NewCustomer struct {
	Code         string
	Name         string
	Address      string
	CapacityKW   *float64
	Brand        string
	Email        string
	Phone        string
	Status       string
	RegisteredOn time.Time
}

// Registry is the customer catalog
type Registry struct {
	store     Store
	publisher Publisher
	loc       *time.Location
	logger    *zap.Logger
	now       func() time.Time
}

// NewRegistry creates a registry. publisher may be nil.
func NewRegistry(store Store, publisher Publisher, loc *time.Location, logger *zap.Logger) *Registry {
	if loc == nil {
		loc = time.UTC
	}
	return &Registry{
		store:     store,
		publisher: publisher,
		loc:       loc,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns all customers ordered by code
func (r *Registry) List(ctx context.Context) ([]db.Customer, error) {
	return r.store.ListCustomers(ctx)
}

// ListSummaries returns the {id, code, name} projection ordered by code
func (r *Registry) ListSummaries(ctx context.Context) ([]db.CustomerSummary, error) {
	summaries, err := r.store.ListCustomerSummaries(ctx)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []db.CustomerSummary{}
	}
	return summaries, nil
}

// Create validates and registers a customer.
// A taken code returns ErrDuplicateCode and leaves the store untouched.
func (r *Registry) Create(ctx context.Context, in NewCustomer) (*db.Customer, error) {
	c, err := r.normalize(in)
	if err != nil {
		return nil, err
	}

	if err := r.store.CreateCustomer(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return nil, ErrDuplicateCode
		}
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	metrics.CustomersRegistered.Inc()
	r.logger.Info("customer registered",
		zap.Int64("customer_id", c.ID),
		zap.String("code", c.Code),
	)

	if r.publisher != nil {
		if err := r.publisher.PublishCustomerRegistered(ctx, *c); err != nil {
			r.logger.Error("failed to publish customer registration",
				zap.Error(err),
				zap.String("code", c.Code),
			)
		}
	}

	return c, nil
}

// CountNewThisWeek counts customers registered since Monday of the current week
func (r *Registry) CountNewThisWeek(ctx context.Context) (int, error) {
	return r.store.CountCustomersSince(ctx, WeekStart(r.now().In(r.loc)))
}

// WeekStart returns Monday 00:00 of the week containing t, in t's location
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	y, m, d := t.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
}

func (r *Registry) normalize(in NewCustomer) (*db.Customer, error) {
	c := &db.Customer{
		Code:       strings.TrimSpace(in.Code),
		Name:       strings.TrimSpace(in.Name),
		Address:    strings.TrimSpace(in.Address),
		CapacityKW: in.CapacityKW,
		Brand:      strings.TrimSpace(in.Brand),
		Email:      optional(in.Email),
		Phone:      optional(in.Phone),
		Status:     strings.ToLower(strings.TrimSpace(in.Status)),
	}

	if c.Code == "" {
		return nil, &ValidationError{Field: "code", Message: "is required"}
	}
	if c.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "is required"}
	}
	if c.CapacityKW != nil && *c.CapacityKW < 0 {
		return nil, &ValidationError{Field: "capacity", Message: "must not be negative"}
	}

	switch c.Status {
	case "":
		c.Status = db.StatusActive
	case db.StatusActive, db.StatusInactive, db.StatusOther:
	default:
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", in.Status)}
	}

	if in.RegisteredOn.IsZero() {
		y, m, d := r.now().In(r.loc).Date()
		c.RegisteredOn = time.Date(y, m, d, 0, 0, 0, 0, r.loc)
	} else {
		y, m, d := in.RegisteredOn.Date()
		c.RegisteredOn = time.Date(y, m, d, 0, 0, 0, 0, r.loc)
	}

	return c, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
