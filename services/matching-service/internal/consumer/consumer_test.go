package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestHandle_PropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	var got trace.SpanContext
	var calls int
	c := &Consumer{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		handler: func(ctx context.Context, msg kafka.Message) error {
			calls++
			got = trace.SpanContextFromContext(ctx)
			return nil
		},
	}

	c.handle(context.Background(), kafka.Message{
		Topic: "calendar.busy_day.synced.v1",
		Headers: []kafka.Header{
			{Key: "traceparent", Value: []byte("00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")},
		},
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", got.TraceID().String())
}

func TestHandle_HandlerErrorDoesNotPanic(t *testing.T) {
	c := &Consumer{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		handler: func(context.Context, kafka.Message) error { return errors.New("boom") },
	}
	assert.NotPanics(t, func() { c.handle(context.Background(), kafka.Message{Topic: "t"}) })
}
