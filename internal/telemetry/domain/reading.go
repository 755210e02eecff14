package telemetry

import (
	"context"
	"math"
	"time"
)

// Reading is one sample of a distribution panel power meter.
// Optional numeric fields are nil when the meter did not report them.
type Reading struct {
	SourceID string
	At       time.Time

	PowerKW     *float64
	CurrentA    *float64
	CurrentB    *float64
	CurrentC    *float64
	PowerFactor *float64
	FrequencyHz *float64
	VoltageLL   *float64
	VoltageLN   *float64

	// EnergyCounterKWh is the meter's cumulative energy register.
	EnergyCounterKWh *float64
}

// Source provides raw readings for a panel.
type Source interface {
	// Readings returns readings within [start, end). Ordering is not guaranteed.
	Readings(ctx context.Context, sourceID string, start, end time.Time) ([]Reading, error)
}

// LatestSource provides the most recent reading for a panel.
type LatestSource interface {
	Latest(ctx context.Context, sourceID string) (*Reading, error)
}

// Value returns the dereferenced value when it is present and finite.
func Value(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, false
	}
	return *v, true
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// ValidPhaseCurrents returns the finite, strictly positive phase currents.
func (r Reading) ValidPhaseCurrents() []float64 {
	phases := make([]float64, 0, 3)
	for _, p := range []*float64{r.CurrentA, r.CurrentB, r.CurrentC} {
		if v, ok := Value(p); ok && v > 0 {
			phases = append(phases, v)
		}
	}
	return phases
}

// SampleCurrent is the mean of the valid phase currents.
func (r Reading) SampleCurrent() (float64, bool) {
	phases := r.ValidPhaseCurrents()
	if len(phases) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range phases {
		sum += v
	}
	return sum / float64(len(phases)), true
}
