package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/septivank/solar-dashboard/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleBatch(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	msg := sampleBatch("SOL-1", 3, 5*time.Minute, 100, now)

	assert.Equal(t, "SOL-1", msg.Customer)
	assert.NotEmpty(t, msg.RequestID)
	require.Len(t, msg.Readings, 3)
	assert.Equal(t, "01/06/2025 11:50:00", msg.Readings[0].Date)
	assert.Equal(t, "01/06/2025 12:00:00", msg.Readings[2].Date)
	assert.JSONEq(t, `"100.00"`, string(msg.Readings[0].Data))
	assert.JSONEq(t, `"101.00"`, string(msg.Readings[2].Data))

	v := validator.NewValidator(60, time.UTC)
	for _, r := range msg.Readings {
		assert.True(t, json.Valid(r.Data), string(r.Data))
		value, _, result := v.ValidateReading(validator.RawReading{Date: r.Date, Data: string(r.Data[1 : len(r.Data)-1])}, now)
		assert.True(t, result.IsValid, result.AnomalyReason)
		assert.NotNil(t, value)
	}
}
