package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/septivank/solar-dashboard/internal/db"
	"github.com/septivank/solar-dashboard/internal/logging"
	"github.com/septivank/solar-dashboard/internal/metrics"
	"github.com/septivank/solar-dashboard/internal/readings"
	"github.com/septivank/solar-dashboard/internal/repository"
	"github.com/septivank/solar-dashboard/internal/validator"
	"go.uber.org/zap"
)

// IngestMessage is a batch of meter readings for one customer
type IngestMessage struct {
	RequestID  string       `json:"request_id"`
	Customer   string       `json:"customer"`
	ReceivedAt time.Time    `json:"received_at"`
	Readings   []RawReading `json:"readings"`
}

// RawReading is one reading of a batch. Data may be a number, a numeric
// string, an empty string or null.
type RawReading struct {
	Date string          `json:"date"`
	Data json.RawMessage `json:"data"`
}

// ErrUnknownCustomer is returned for batches naming no known customer
var ErrUnknownCustomer = errors.New("unknown customer")

// ReadingStore persists readings in a transaction
type ReadingStore interface {
	BeginTx(ctx context.Context) (repository.Tx, error)
	InsertMeterReadingTx(ctx context.Context, tx repository.Tx, reading *db.MeterReading) error
}

// IngestResult counts the outcome of one batch
type IngestResult struct {
	Stored   int
	Rejected int
}

// Ingestor validates and stores reading batches arriving out of band
type Ingestor struct {
	store     ReadingStore
	resolver  readings.Resolver
	validator *validator.Validator
	logger    *zap.Logger
	now       func() time.Time
}

// NewIngestor creates a new ingestor
func NewIngestor(store ReadingStore, resolver readings.Resolver, v *validator.Validator, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		store:     store,
		resolver:  resolver,
		validator: v,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessMessage is the AMQP handler. Any error dead-letters the batch.
func (s *Ingestor) ProcessMessage(ctx context.Context, body []byte) error {
	_, err := s.Ingest(ctx, body)
	return err
}

// Ingest stores the valid readings of a batch in one transaction and skips the rest
func (s *Ingestor) Ingest(ctx context.Context, body []byte) (IngestResult, error) {
	var result IngestResult

	var msg IngestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return result, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	reqLogger := logging.WithRequestID(s.logger, msg.RequestID)
	reqLogger.Info("processing reading batch",
		zap.String("customer", msg.Customer),
		zap.Int("reading_count", len(msg.Readings)),
	)

	key, ok, err := s.resolver.Resolve(ctx, msg.Customer)
	if err != nil {
		return result, fmt.Errorf("failed to resolve customer: %w", err)
	}
	if !ok {
		return result, fmt.Errorf("%w: %q", ErrUnknownCustomer, msg.Customer)
	}

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}

	var valid []db.MeterReading
	for i, raw := range msg.Readings {
		value, ts, check := s.validator.ValidateReading(toValidatorInput(raw), receivedAt)
		if !check.IsValid {
			result.Rejected++
			reqLogger.Warn("skipping invalid reading",
				zap.Int("index", i),
				zap.String("date", raw.Date),
				zap.String("reason", check.AnomalyReason),
			)
			continue
		}
		valid = append(valid, db.MeterReading{
			Key:                        key,
			Timestamp:                  ts,
			TotalPositiveRealEnergyKWh: value,
		})
	}
	metrics.ReadingsIngested.WithLabelValues("rejected").Add(float64(result.Rejected))

	if len(valid) == 0 {
		reqLogger.Info("reading batch had nothing to store", zap.Int("rejected", result.Rejected))
		return result, nil
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range valid {
		if err := s.store.InsertMeterReadingTx(ctx, tx, &valid[i]); err != nil {
			return result, fmt.Errorf("failed to insert reading: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("failed to commit transaction: %w", err)
	}

	result.Stored = len(valid)
	metrics.ReadingsIngested.WithLabelValues("stored").Add(float64(result.Stored))

	reqLogger.Info("reading batch stored",
		zap.Int("stored", result.Stored),
		zap.Int("rejected", result.Rejected),
	)
	return result, nil
}

func toValidatorInput(raw RawReading) validator.RawReading {
	data := bytes.TrimSpace(raw.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return validator.RawReading{Date: raw.Date, Null: true}
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return validator.RawReading{Date: raw.Date, Data: s}
		}
	}

	return validator.RawReading{Date: raw.Date, Data: string(data)}
}
