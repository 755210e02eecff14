package statistic

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	telemetry "panel-energy/internal/telemetry/domain"
)

var base = time.Date(2025, 11, 14, 0, 0, 0, 0, time.UTC)

func powerAt(offset time.Duration, kw float64) telemetry.Reading {
	return telemetry.Reading{SourceID: "LVMDP_1", At: base.Add(offset), PowerKW: telemetry.Float(kw)}
}

func TestAggregate_LinearRampIsTriangleArea(t *testing.T) {
	got := Aggregate([]telemetry.Reading{
		powerAt(0, 0),
		powerAt(2*time.Hour, 100),
	})
	assert.InDelta(t, 100, got.TotalEnergyKWh, 1e-9)
	assert.Equal(t, 2, got.SampleCount)
}

func TestAggregate_HourZeroScenario(t *testing.T) {
	got := Aggregate([]telemetry.Reading{
		powerAt(time.Hour, 30),
		powerAt(0, 10),
	})
	assert.InDelta(t, 20, got.TotalEnergyKWh, 1e-9)
	assert.InDelta(t, 20, got.AvgPowerKW, 1e-9)
	assert.Equal(t, 2, got.SampleCount)
	assert.Equal(t, 30.0, got.PeakPowerKW)
	assert.Equal(t, base.Add(time.Hour), got.PeakAt)
	assert.Equal(t, base, got.FirstAt)
}

func TestAggregate_IrregularIntervalsAndInvalidPower(t *testing.T) {
	nan := math.NaN()
	got := Aggregate([]telemetry.Reading{
		powerAt(0, 10),
		{At: base.Add(10 * time.Minute), PowerKW: &nan, PowerFactor: telemetry.Float(0.9)},
		powerAt(30*time.Minute, 10),
		powerAt(90*time.Minute, 20),
	})
	// 10 kW for 0.5 h, then 10->20 kW over 1 h.
	assert.InDelta(t, 5+15, got.TotalEnergyKWh, 1e-9)
	assert.Equal(t, 4, got.SampleCount)
	assert.InDelta(t, 0.9, got.AvgPowerFactor, 1e-9)
}

func TestAggregate_CurrentIgnoresInvalidPhases(t *testing.T) {
	got := Aggregate([]telemetry.Reading{{
		At:       base,
		CurrentA: telemetry.Float(10),
		CurrentB: telemetry.Float(-5),
		CurrentC: telemetry.Float(20),
	}})
	assert.Equal(t, 15.0, got.AvgCurrent)
	assert.Equal(t, 10.0, got.MinCurrent)
	assert.Equal(t, 20.0, got.MaxCurrent)
	assert.Equal(t, 1, got.SampleCount)
}

func TestAggregate_MinMaxTrackIndividualPhases(t *testing.T) {
	got := Aggregate([]telemetry.Reading{
		{At: base, CurrentA: telemetry.Float(100), CurrentB: telemetry.Float(100), CurrentC: telemetry.Float(1)},
		{At: base.Add(time.Second), CurrentA: telemetry.Float(50), CurrentB: telemetry.Float(0)},
	})
	assert.Equal(t, 1.0, got.MinCurrent)
	assert.Equal(t, 100.0, got.MaxCurrent)
	assert.InDelta(t, (67.0+50.0)/2, got.AvgCurrent, 1e-9)
}

func TestAggregate_EmptyAndUselessReadingsYieldZero(t *testing.T) {
	assert.Equal(t, Summary{}, Aggregate(nil))

	inf := math.Inf(1)
	got := Aggregate([]telemetry.Reading{
		{At: base, PowerKW: &inf, CurrentA: telemetry.Float(-1)},
	})
	assert.Equal(t, Summary{}, got)
}

func TestAggregate_DoesNotReorderInput(t *testing.T) {
	in := []telemetry.Reading{powerAt(time.Hour, 1), powerAt(0, 1)}
	_ = Aggregate(in)
	require.Equal(t, base.Add(time.Hour), in[0].At)
}

func TestNominalEnergy_MatchesTrapezoidForFlatLoad(t *testing.T) {
	var readings []telemetry.Reading
	for i := 0; i <= 1200; i++ {
		readings = append(readings, powerAt(time.Duration(i)*3*time.Second, 12))
	}
	trapezoid := Aggregate(readings).TotalEnergyKWh
	nominal := NominalEnergyKWh(readings[1:], 3*time.Second)
	assert.InDelta(t, trapezoid, nominal, 1e-9)
	assert.InDelta(t, 12, trapezoid, 1e-9)
}

func TestCompleteness(t *testing.T) {
	assert.Equal(t, 50.0, Completeness(600, time.Hour, 3*time.Second))
	assert.Equal(t, 100.0, Completeness(5000, time.Hour, 3*time.Second))
	assert.Equal(t, 0.0, Completeness(0, time.Hour, 3*time.Second))
}
