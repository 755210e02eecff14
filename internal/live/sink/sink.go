package sink

import (
	"context"
	"errors"
)

// PublishSink delivers a payload to subscribers of a topic.
type PublishSink interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Multi forwards every publish to several sinks.
type Multi struct {
	sinks []PublishSink
}

// NewMulti constructs a Multi. Nil sinks are ignored.
func NewMulti(sinks ...PublishSink) *Multi {
	kept := make([]PublishSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Multi{sinks: kept}
}

// Publish forwards to all sinks and joins their errors.
func (m *Multi) Publish(ctx context.Context, topic string, payload []byte) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
