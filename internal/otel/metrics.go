package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all chatclaw metric instruments.
type Metrics struct {
	UpdateDuration   metric.Float64Histogram
	LLMCallDuration  metric.Float64Histogram
	CommandDuration  metric.Float64Histogram
	CommandFailures  metric.Int64Counter
	MessagesHandled  metric.Int64Counter
	TasksSpawned     metric.Int64Counter
	ActiveBackground metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.UpdateDuration, err = meter.Float64Histogram("chatclaw.update.duration",
		metric.WithDescription("Telegram update handling duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.LLMCallDuration, err = meter.Float64Histogram("chatclaw.llm.duration",
		metric.WithDescription("LLM call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.CommandDuration, err = meter.Float64Histogram("chatclaw.command.duration",
		metric.WithDescription("Shell command duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.CommandFailures, err = meter.Int64Counter("chatclaw.command.failures",
		metric.WithDescription("Shell commands that exited non-zero or timed out"),
	)
	if err != nil {
		return nil, err
	}

	m.MessagesHandled, err = meter.Int64Counter("chatclaw.messages.handled",
		metric.WithDescription("Chat messages routed through the orchestrator"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksSpawned, err = meter.Int64Counter("chatclaw.tasks.spawned",
		metric.WithDescription("Background tasks scheduled via /bg"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveBackground, err = meter.Int64UpDownCounter("chatclaw.tasks.active",
		metric.WithDescription("Background tasks currently running"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordCommand records one shell command's duration and, on failure,
// bumps the failure counter.
func (m *Metrics) RecordCommand(ctx context.Context, d time.Duration, success bool) {
	m.CommandDuration.Record(ctx, d.Seconds())
	if !success {
		m.CommandFailures.Add(ctx, 1)
	}
}
