package interfaces

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panel-energy/internal/live/sink"
	"panel-energy/internal/reporting/application/eventbus"
	"panel-energy/internal/reporting/application/events"
)

func TestReportForwarderPublishesPerSourceTopic(t *testing.T) {
	broker := sink.NewSSEBroker()
	ch := broker.Subscribe("report:p1")
	defer broker.Unsubscribe("report:p1", ch)

	forwarder, err := NewReportForwarder(broker, "")
	require.NoError(t, err)
	bus := eventbus.NewInMemoryBus()
	forwarder.Subscribe(bus)

	hour := 3
	require.NoError(t, bus.Publish(context.Background(), events.ReportCalculated{
		SourceID:       "p1",
		Kind:           events.KindHourly,
		BusinessDate:   "2025-01-05",
		Hour:           &hour,
		TotalEnergyKWh: 12.5,
		SampleCount:    360,
	}))

	select {
	case payload := <-ch:
		var got events.ReportCalculated
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, events.KindHourly, got.Kind)
		require.NotNil(t, got.Hour)
		assert.Equal(t, 3, *got.Hour)
		assert.InDelta(t, 12.5, got.TotalEnergyKWh, 1e-9)
	default:
		t.Fatal("no payload forwarded")
	}
}

func TestNewReportForwarderRejectsNilSink(t *testing.T) {
	_, err := NewReportForwarder(nil, "report")
	require.Error(t, err)
}
