package readings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/septivank/solar-dashboard/internal/db"
	"github.com/septivank/solar-dashboard/internal/repository"
)

// Resolver maps a caller-supplied customer identifier to the key readings are stored under.
type Resolver interface {
	// Resolve returns ok=false when the identifier names no known customer.
	Resolve(ctx context.Context, customer string) (db.ReadingKey, bool, error)
	// Identifiers lists every identifier callers may pass to Resolve, ascending.
	Identifiers(ctx context.Context) ([]string, error)
}

// DirectStore lists raw customer identifiers found in readings.
type DirectStore interface {
	DistinctReadingCustomers(ctx context.Context) ([]string, error)
}

// CodeStore resolves customer codes.
type CodeStore interface {
	CustomerIDByCode(ctx context.Context, code string) (int64, error)
	ListCustomerSummaries(ctx context.Context) ([]db.CustomerSummary, error)
}

// DirectResolver treats the identifier as the readings' own customer_id.
type DirectResolver struct {
	store DirectStore
}

// NewDirectResolver creates a resolver for deployments keyed by raw customer id
func NewDirectResolver(store DirectStore) *DirectResolver {
	return &DirectResolver{store: store}
}

func (d *DirectResolver) Resolve(_ context.Context, customer string) (db.ReadingKey, bool, error) {
	customer = strings.TrimSpace(customer)
	if customer == "" {
		return db.ReadingKey{}, false, nil
	}
	return db.ReadingKey{External: customer}, true, nil
}

func (d *DirectResolver) Identifiers(ctx context.Context) ([]string, error) {
	ids, err := d.store.DistinctReadingCustomers(ctx)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// CodeResolver joins through the customer registry by external code.
type CodeResolver struct {
	store CodeStore
}

// NewCodeResolver creates a resolver for deployments keyed by customer code
func NewCodeResolver(store CodeStore) *CodeResolver {
	return &CodeResolver{store: store}
}

func (c *CodeResolver) Resolve(ctx context.Context, customer string) (db.ReadingKey, bool, error) {
	customer = strings.TrimSpace(customer)
	if customer == "" {
		return db.ReadingKey{}, false, nil
	}

	id, err := c.store.CustomerIDByCode(ctx, customer)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return db.ReadingKey{}, false, nil
		}
		return db.ReadingKey{}, false, fmt.Errorf("failed to look up customer code: %w", err)
	}
	return db.ReadingKey{CustomerID: id}, true, nil
}

func (c *CodeResolver) Identifiers(ctx context.Context) ([]string, error) {
	summaries, err := c.store.ListCustomerSummaries(ctx)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(summaries))
	for _, s := range summaries {
		codes = append(codes, s.Code)
	}
	return codes, nil
}
