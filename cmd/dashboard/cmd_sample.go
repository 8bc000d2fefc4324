package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/septivank/solar-dashboard/internal/config"
	"github.com/septivank/solar-dashboard/internal/service"
	"github.com/spf13/cobra"
)

var sampleOpts struct {
	customer string
	count    int
	interval time.Duration
	start    float64
}

var sampleCmd = &cobra.Command{
	Use:   "send-sample",
	Short: "Publish a sample reading batch to the ingest exchange",
	Long: `Publish one batch of synthetic cumulative readings for a customer to the
ingest exchange. Useful for exercising ingestion against a local RabbitMQ.`,
	RunE: runSample,
}

func init() {
	sampleCmd.Flags().StringVar(&sampleOpts.customer, "customer", "", "customer identifier (required)")
	sampleCmd.Flags().IntVar(&sampleOpts.count, "count", 12, "number of readings in the batch")
	sampleCmd.Flags().DurationVar(&sampleOpts.interval, "interval", 5*time.Minute, "spacing between readings")
	sampleCmd.Flags().Float64Var(&sampleOpts.start, "start-kwh", 1000, "value of the first reading")
	sampleCmd.MarkFlagRequired("customer")
	rootCmd.AddCommand(sampleCmd)
}

// sampleBatch builds count readings ending at now, increasing by 0.5 kWh each
func sampleBatch(customer string, count int, interval time.Duration, startKWh float64, now time.Time) service.IngestMessage {
	msg := service.IngestMessage{
		RequestID:  uuid.NewString(),
		Customer:   customer,
		ReceivedAt: now,
	}

	first := now.Add(-time.Duration(count-1) * interval)
	for i := 0; i < count; i++ {
		value := strconv.FormatFloat(startKWh+float64(i)*0.5, 'f', 2, 64)
		msg.Readings = append(msg.Readings, service.RawReading{
			Date: first.Add(time.Duration(i) * interval).Format("02/01/2006 15:04:05"),
			// meters send the value as a JSON string
			Data: json.RawMessage(strconv.Quote(value)),
		})
	}
	return msg
}

func runSample(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.IngestionEnabled() {
		return errors.New("RABBITMQ_URL is not set")
	}

	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(cfg.RabbitMQ.IngestExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	msg := sampleBatch(sampleOpts.customer, sampleOpts.count, sampleOpts.interval, sampleOpts.start, time.Now().In(cfg.Location()))
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	err = ch.PublishWithContext(ctx, cfg.RabbitMQ.IngestExchange, cfg.RabbitMQ.IngestRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    msg.RequestID,
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return fmt.Errorf("failed to publish batch: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Sent %d readings for %s: request_id=%s\n", len(msg.Readings), msg.Customer, msg.RequestID)
	return nil
}
