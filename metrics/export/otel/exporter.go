package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type counter struct {
	id         authcore.MetricID
	instrument metric.Int64ObservableCounter
}

type latency struct {
	id      authcore.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter keeps the callback registration alive until Close.
type Exporter struct {
	source       internaldefs.Source
	registration metric.Registration
	counters     []counter
	latency      latency
	drops        []metric.Int64ObservableCounter
}

// New registers authcore instruments on meter, reading from source
// (usually an *authcore.Engine).
func New(meter metric.Meter, source internaldefs.Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   source,
		counters: make([]counter, 0, len(internaldefs.Counters)),
	}
	var observables []metric.Observable

	for _, def := range internaldefs.Counters {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	def := internaldefs.ValidateLatency
	e.latency.id = def.ID
	for i, bucket := range internaldefs.Buckets {
		name := def.Name + "_bucket_le_" + bucket.Suffix
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
		}
		e.latency.buckets[i] = ins
		observables = append(observables, ins)
	}
	count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Histogram total sample count."))
	if err != nil {
		return nil, fmt.Errorf("create histogram count gauge: %w", err)
	}
	e.latency.count = count
	observables = append(observables, count)

	for _, drop := range internaldefs.DropSamples(source) {
		ins, err := meter.Int64ObservableCounter(drop.Def.Name, metric.WithDescription(drop.Def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", drop.Def.Name, err)
		}
		e.drops = append(e.drops, ins)
		observables = append(observables, ins)
	}

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}

	cumulative := internaldefs.Cumulative(snapshot.Histograms[e.latency.id])
	for i, v := range cumulative {
		o.ObserveInt64(e.latency.buckets[i], int64(v))
	}
	o.ObserveInt64(e.latency.count, int64(cumulative[len(cumulative)-1]))

	// DropSamples order matches e.drops.
	for i, s := range internaldefs.DropSamples(e.source) {
		o.ObserveInt64(e.drops[i], int64(s.Value))
	}
	return nil
}

func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
