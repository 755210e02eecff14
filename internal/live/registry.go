package live

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"panel-energy/internal/live/sink"
	"panel-energy/internal/observability/metrics"
	telemetry "panel-energy/internal/telemetry/domain"
)

const (
	// DefaultInterval is the poll period when Start receives a non-positive interval.
	DefaultInterval = time.Second
	// DefaultTopicPrefix scopes raw reading topics.
	DefaultTopicPrefix = "panel:raw"
)

// FetchLatest returns the most recent reading of one source, or nil when there is none.
type FetchLatest func(ctx context.Context) (*telemetry.Reading, error)

// FromLatestSource binds a LatestSource to a single source id.
func FromLatestSource(src telemetry.LatestSource, sourceID string) FetchLatest {
	return func(ctx context.Context) (*telemetry.Reading, error) {
		return src.Latest(ctx, sourceID)
	}
}

// ChangeKey identifies a reading for duplicate suppression.
type ChangeKey struct {
	At            time.Time
	EnergyCounter float64
	AvgCurrent    float64
}

// KeyOf derives the change key of a reading. Missing values count as zero.
func KeyOf(r telemetry.Reading) ChangeKey {
	energy, _ := telemetry.Value(r.EnergyCounterKWh)
	current, _ := r.SampleCurrent()
	return ChangeKey{At: r.At, EnergyCounter: energy, AvgCurrent: current}
}

// Equal reports whether two keys describe the same reading.
func (k ChangeKey) Equal(other ChangeKey) bool {
	return k.At.Equal(other.At) && k.EnergyCounter == other.EnergyCounter && k.AvgCurrent == other.AvgCurrent
}

// Payload is the JSON document forwarded for a changed reading.
type Payload struct {
	SourceID    string    `json:"sourceId"`
	At          time.Time `json:"at"`
	EnergyKWh   *float64  `json:"energyKwh"`
	PowerKW     *float64  `json:"powerKw"`
	PowerFactor *float64  `json:"powerFactor"`
	FrequencyHz *float64  `json:"frequencyHz"`
	VoltageLL   *float64  `json:"voltageLL"`
	VoltageLN   *float64  `json:"voltageLN"`
	AvgCurrent  *float64  `json:"avgCurrent"`
}

// NewPayload builds the forwarded document for a reading.
func NewPayload(sourceID string, r telemetry.Reading) Payload {
	p := Payload{
		SourceID:    sourceID,
		At:          r.At,
		EnergyKWh:   finite(r.EnergyCounterKWh),
		PowerKW:     finite(r.PowerKW),
		PowerFactor: finite(r.PowerFactor),
		FrequencyHz: finite(r.FrequencyHz),
		VoltageLL:   finite(r.VoltageLL),
		VoltageLN:   finite(r.VoltageLN),
	}
	if current, ok := r.SampleCurrent(); ok {
		p.AvgCurrent = &current
	}
	return p
}

func finite(v *float64) *float64 {
	if value, ok := telemetry.Value(v); ok {
		return &value
	}
	return nil
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTopicPrefix overrides the topic prefix.
func WithTopicPrefix(prefix string) Option {
	return func(r *Registry) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithDefaultInterval overrides the interval used when Start gets none.
func WithDefaultInterval(interval time.Duration) Option {
	return func(r *Registry) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// Registry runs one change-detecting poller per source.
type Registry struct {
	sink     sink.PublishSink
	logger   *zap.Logger
	prefix   string
	interval time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRegistry constructs a Registry publishing to s.
func NewRegistry(s sink.PublishSink, opts ...Option) *Registry {
	r := &Registry{
		sink:     s,
		logger:   zap.NewNop(),
		prefix:   DefaultTopicPrefix,
		interval: DefaultInterval,
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Topic returns the topic readings of sourceID are published on.
func (r *Registry) Topic(sourceID string) string {
	return sink.Topic(r.prefix, sourceID)
}

// Start begins polling sourceID. It returns false when the source is already
// running or the arguments are unusable.
func (r *Registry) Start(sourceID string, fetch FetchLatest, interval time.Duration) bool {
	if r == nil || sourceID == "" || fetch == nil {
		return false
	}
	if interval <= 0 {
		interval = r.interval
	}

	r.mu.Lock()
	if _, ok := r.entries[sourceID]; ok {
		r.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{cancel: cancel, done: make(chan struct{})}
	r.entries[sourceID] = e
	n := len(r.entries)
	r.mu.Unlock()

	metrics.SetLiveSources(n)
	p := &poller{
		sourceID: sourceID,
		topic:    r.Topic(sourceID),
		fetch:    fetch,
		sink:     r.sink,
		logger:   r.logger.With(zap.String("source", sourceID)),
	}
	go func() {
		defer close(e.done)
		p.run(ctx, interval)
	}()
	r.logger.Info("live broadcast started", zap.String("source", sourceID), zap.Duration("interval", interval))
	return true
}

// Stop cancels polling for sourceID and waits for the poller to exit.
// It returns false when the source was not running.
func (r *Registry) Stop(sourceID string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	e, ok := r.entries[sourceID]
	if ok {
		delete(r.entries, sourceID)
	}
	n := len(r.entries)
	r.mu.Unlock()
	if !ok {
		return false
	}

	e.cancel()
	<-e.done
	metrics.SetLiveSources(n)
	r.logger.Info("live broadcast stopped", zap.String("source", sourceID))
	return true
}

// StopAll stops every running poller.
func (r *Registry) StopAll() {
	for _, sourceID := range r.Running() {
		r.Stop(sourceID)
	}
}

// Running lists the sources currently polled.
func (r *Registry) Running() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	out := make([]string, 0, len(r.entries))
	for sourceID := range r.entries {
		out = append(out, sourceID)
	}
	r.mu.Unlock()
	sort.Strings(out)
	return out
}

// IsRunning reports whether sourceID is polled.
func (r *Registry) IsRunning(sourceID string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[sourceID]
	return ok
}

type poller struct {
	sourceID string
	topic    string
	fetch    FetchLatest
	sink     sink.PublishSink
	logger   *zap.Logger

	last *ChangeKey
}

func (p *poller) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll performs one tick and reports whether a payload was forwarded.
func (p *poller) poll(ctx context.Context) (forwarded bool) {
	defer func() {
		if rec := recover(); rec != nil {
			p.skip("panic", fmt.Errorf("panic: %v", rec))
			forwarded = false
		}
	}()

	reading, err := p.fetch(ctx)
	if err != nil {
		p.skip("fetch_error", err)
		return false
	}
	if reading == nil {
		p.skip("no_reading", nil)
		return false
	}

	key := KeyOf(*reading)
	if p.last != nil && p.last.Equal(key) {
		p.skip("unchanged", nil)
		return false
	}

	payload, err := json.Marshal(NewPayload(p.sourceID, *reading))
	if err != nil {
		p.skip("encode_error", err)
		return false
	}
	// The key is kept even when a sink fails: publishing is fire-and-forget
	// and sinks that did accept the payload must not see it again.
	p.last = &key
	metrics.IncLiveForward(p.sourceID)
	if p.sink != nil {
		if err := p.sink.Publish(ctx, p.topic, payload); err != nil {
			metrics.IncLivePublishError(p.sourceID)
			p.logger.Warn("live publish failed",
				zap.String("source", p.sourceID),
				zap.String("topic", p.topic),
				zap.Error(err),
			)
		}
	}
	return true
}

func (p *poller) skip(reason string, err error) {
	metrics.IncLiveSkip(p.sourceID, reason)
	if err == nil {
		return
	}
	if reason == "panic" {
		p.logger.Warn("live tick skipped", zap.String("reason", reason), zap.Error(err))
		return
	}
	p.logger.Debug("live tick skipped", zap.String("reason", reason), zap.Error(err))
}
