package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"panel-energy/internal/live/sink"
	"panel-energy/internal/reporting/application/eventbus"
	"panel-energy/internal/reporting/application/events"
)

// DefaultReportTopicPrefix scopes report notifications per source.
const DefaultReportTopicPrefix = "report"

// ReportForwarder publishes ReportCalculated events to a sink on
// "<prefix>:<sourceId>".
type ReportForwarder struct {
	sink   sink.PublishSink
	prefix string
}

// NewReportForwarder constructs a forwarder.
func NewReportForwarder(s sink.PublishSink, prefix string) (*ReportForwarder, error) {
	if s == nil {
		return nil, errors.New("report forwarder: nil sink")
	}
	if prefix == "" {
		prefix = DefaultReportTopicPrefix
	}
	return &ReportForwarder{sink: s, prefix: prefix}, nil
}

// Prefix returns the topic prefix.
func (f *ReportForwarder) Prefix() string { return f.prefix }

// Subscribe registers the forwarder on bus.
func (f *ReportForwarder) Subscribe(bus eventbus.EventBus) {
	bus.Subscribe(eventbus.EventTypeOf[events.ReportCalculated](), func(ctx context.Context, event any) error {
		evt, ok := event.(events.ReportCalculated)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		return f.Handle(ctx, evt)
	})
}

// Handle publishes one event.
func (f *ReportForwarder) Handle(ctx context.Context, evt events.ReportCalculated) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("report forwarder: encode: %w", err)
	}
	return f.sink.Publish(ctx, sink.Topic(f.prefix, evt.SourceID), payload)
}
