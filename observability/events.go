package observability

import (
	"context"
	"log/slog"
	"sort"
	"strconv"

	"payvault/core/events"
	"payvault/native/payroll"
)

// EventMetrics is an events.Emitter that feeds committed payroll events into
// the payroll metrics registry.
type EventMetrics struct {
	metrics *PayrollMetrics
}

// NewEventMetrics returns an emitter backed by the shared payroll registry.
func NewEventMetrics() *EventMetrics {
	return &EventMetrics{metrics: Payroll()}
}

// Emit implements events.Emitter.
func (e *EventMetrics) Emit(evt events.Event) {
	if e == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	e.metrics.RecordEvent(payload.Type)
	attrs := payload.Attributes
	switch payload.Type {
	case payroll.EventTypePayout:
		gross, _ := strconv.ParseUint(attrs["gross"], 10, 64)
		fee, _ := strconv.ParseUint(attrs["fee"], 10, 64)
		e.metrics.RecordPayout(attrs["asset"], gross, fee)
	case payroll.EventTypeDeposit:
		amount, _ := strconv.ParseUint(attrs["amount"], 10, 64)
		e.metrics.RecordDeposit(attrs["asset"], amount)
	}
}

// Fanout forwards every event to each non-nil emitter in order.
type Fanout []events.Emitter

// Emit implements events.Emitter.
func (f Fanout) Emit(evt events.Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// EventLogger writes committed events to a structured logger at debug level.
type EventLogger struct {
	logger *slog.Logger
}

// NewEventLogger returns an emitter logging through logger, or the default
// logger when nil.
func NewEventLogger(logger *slog.Logger) *EventLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLogger{logger: logger}
}

// Emit implements events.Emitter.
func (l *EventLogger) Emit(evt events.Event) {
	if l == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	keys := make([]string, 0, len(payload.Attributes))
	for key := range payload.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys)+1)
	attrs = append(attrs, slog.String("event", payload.Type))
	for _, key := range keys {
		attrs = append(attrs, slog.String(key, payload.Attributes[key]))
	}
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, "ledger event", attrs...)
}
