package customers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/septivank/solar-dashboard/internal/db"
	"github.com/septivank/solar-dashboard/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memoryStore mimics the Postgres unique constraint and ordering.
type memoryStore struct {
	mu        sync.Mutex
	customers []db.Customer
	nextID    int64
	createErr error
}

func (m *memoryStore) ListCustomers(context.Context) ([]db.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]db.Customer(nil), m.customers...)
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memoryStore) ListCustomerSummaries(ctx context.Context) ([]db.CustomerSummary, error) {
	all, _ := m.ListCustomers(ctx)
	var out []db.CustomerSummary
	for _, c := range all {
		out = append(out, db.CustomerSummary{ID: c.ID, Code: c.Code, Name: c.Name})
	}
	return out, nil
}

func (m *memoryStore) CreateCustomer(_ context.Context, c *db.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.customers {
		if existing.Code == c.Code {
			return repository.ErrDuplicateCode
		}
	}
	m.nextID++
	c.ID = m.nextID
	c.UpdatedAt = time.Now()
	m.customers = append(m.customers, *c)
	return nil
}

func (m *memoryStore) CountCustomersSince(_ context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.customers {
		if !c.RegisteredOn.Before(since) {
			n++
		}
	}
	return n, nil
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishCustomerRegistered(ctx context.Context, c db.Customer) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func newTestRegistry(store Store, pub Publisher) *Registry {
	return NewRegistry(store, pub, time.UTC, zap.NewNop())
}

func TestRegistry_CreateDefaults(t *testing.T) {
	store := &memoryStore{}
	r := newTestRegistry(store, nil)
	r.now = func() time.Time { return time.Date(2024, 3, 6, 15, 4, 5, 0, time.UTC) }

	c, err := r.Create(context.Background(), NewCustomer{Code: " C-001 ", Name: "Sunny Farm", Email: "  "})
	require.NoError(t, err)

	assert.Equal(t, int64(1), c.ID)
	assert.Equal(t, "C-001", c.Code)
	assert.Equal(t, db.StatusActive, c.Status)
	assert.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), c.RegisteredOn)
	assert.Nil(t, c.Email)
	assert.Nil(t, c.Phone)
}

func TestRegistry_CreateDuplicateCode(t *testing.T) {
	store := &memoryStore{}
	r := newTestRegistry(store, nil)

	first, err := r.Create(context.Background(), NewCustomer{Code: "C-001", Name: "First Owner", Address: "Main St 1"})
	require.NoError(t, err)

	_, err = r.Create(context.Background(), NewCustomer{Code: "C-001", Name: "Impostor", Address: "Elsewhere"})
	assert.ErrorIs(t, err, ErrDuplicateCode)

	all, err := r.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, "First Owner", all[0].Name)
	assert.Equal(t, "Main St 1", all[0].Address)
}

func TestRegistry_CreateValidation(t *testing.T) {
	negative := -3.5
	tests := []struct {
		name  string
		in    NewCustomer
		field string
	}{
		{"missing code", NewCustomer{Name: "x"}, "code"},
		{"missing name", NewCustomer{Code: "C-1"}, "name"},
		{"negative capacity", NewCustomer{Code: "C-1", Name: "x", CapacityKW: &negative}, "capacity"},
		{"unknown status", NewCustomer{Code: "C-1", Name: "x", Status: "deleted"}, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memoryStore{}
			_, err := newTestRegistry(store, nil).Create(context.Background(), tt.in)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Empty(t, store.customers)
		})
	}
}

func TestRegistry_CreateStoreFailure(t *testing.T) {
	storeErr := errors.New("check constraint violated")
	r := newTestRegistry(&memoryStore{createErr: storeErr}, nil)

	_, err := r.Create(context.Background(), NewCustomer{Code: "C-1", Name: "x"})
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ErrDuplicateCode)
}

func TestRegistry_CreatePublishesEvent(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("PublishCustomerRegistered", mock.Anything, mock.MatchedBy(func(c db.Customer) bool {
		return c.Code == "C-9"
	})).Return(nil)

	_, err := newTestRegistry(&memoryStore{}, pub).Create(context.Background(), NewCustomer{Code: "C-9", Name: "Nine"})
	require.NoError(t, err)
	pub.AssertExpectations(t)
}

func TestRegistry_PublishFailureDoesNotFailCreate(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("PublishCustomerRegistered", mock.Anything, mock.Anything).Return(errors.New("channel closed"))

	store := &memoryStore{}
	c, err := newTestRegistry(store, pub).Create(context.Background(), NewCustomer{Code: "C-9", Name: "Nine"})
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.Len(t, store.customers, 1)
}

func TestRegistry_ListSortedByCode(t *testing.T) {
	store := &memoryStore{}
	r := newTestRegistry(store, nil)

	for _, code := range []string{"M-2", "A-9", "Z-1", "B-3"} {
		_, err := r.Create(context.Background(), NewCustomer{Code: code, Name: "n" + code})
		require.NoError(t, err)
	}

	all, err := r.List(context.Background())
	require.NoError(t, err)
	summaries, err := r.ListSummaries(context.Background())
	require.NoError(t, err)

	want := []string{"A-9", "B-3", "M-2", "Z-1"}
	require.Len(t, all, len(want))
	require.Len(t, summaries, len(want))
	for i, code := range want {
		assert.Equal(t, code, all[i].Code)
		assert.Equal(t, code, summaries[i].Code)
		assert.Equal(t, all[i].ID, summaries[i].ID)
	}
}

func TestRegistry_ListSummariesEmpty(t *testing.T) {
	summaries, err := newTestRegistry(&memoryStore{}, nil).ListSummaries(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, summaries)
	assert.Empty(t, summaries)
}

func TestRegistry_CountNewThisWeek(t *testing.T) {
	store := &memoryStore{}
	r := newTestRegistry(store, nil)

	// Wednesday 2024-03-06; the week starts Monday 2024-03-04.
	r.now = func() time.Time { return time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC) }

	for code, day := range map[string]int{"OLD": 3, "MON": 4, "WED": 6} {
		_, err := r.Create(context.Background(), NewCustomer{
			Code:         code,
			Name:         code,
			RegisteredOn: time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	n, err := r.CountNewThisWeek(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWeekStart(t *testing.T) {
	monday := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	for offset := 0; offset < 7; offset++ {
		day := monday.AddDate(0, 0, offset).Add(17*time.Hour + 42*time.Minute)
		assert.Equal(t, monday, WeekStart(day), "weekday %s", day.Weekday())
	}

	// Crossing a month boundary: Sunday 2024-09-01 belongs to the week of Monday 2024-08-26.
	assert.Equal(t, time.Date(2024, 8, 26, 0, 0, 0, 0, time.UTC), WeekStart(time.Date(2024, 9, 1, 9, 0, 0, 0, time.UTC)))
}
