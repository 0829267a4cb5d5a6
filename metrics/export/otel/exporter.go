package otel

import (
	"context"
	"errors"
	"fmt"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	authenticatedName = "gosession_authenticated"
	auditDroppedName  = "gosession_audit_dropped_total"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is read once per collection cycle.
type Source interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	AuditDropped() uint64
	IsAuth() bool
}

// latency is one refresh-latency histogram rendered as a cumulative bucket
// gauge keyed by an "le" attribute plus a sample counter.
type latency struct {
	id      goSession.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableCounter
	le      []metric.ObserveOption
}

// Exporter publishes a session client's metrics through observable
// instruments. All instruments share a single callback.
type Exporter struct {
	source        Source
	registration  metric.Registration
	counters      map[goSession.MetricID]metric.Int64ObservableCounter
	latencies     []latency
	authenticated metric.Int64ObservableGauge
	auditDropped  metric.Int64ObservableCounter
}

// New registers instruments for client on meter.
func New(meter metric.Meter, client *goSession.Client) (*Exporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewFromSource(meter, client)
}

// NewFromSource registers instruments reading from source. Close unregisters
// the callback.
func NewFromSource(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   source,
		counters: make(map[goSession.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = ins
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		l, err := newLatency(meter, def)
		if err != nil {
			return nil, err
		}
		e.latencies = append(e.latencies, l)
		observables = append(observables, l.buckets, l.count)
	}

	var err error
	e.authenticated, err = meter.Int64ObservableGauge(authenticatedName,
		metric.WithDescription("1 while the session is authenticated, 0 otherwise."))
	if err != nil {
		return nil, fmt.Errorf("create gauge %s: %w", authenticatedName, err)
	}
	e.auditDropped, err = meter.Int64ObservableCounter(auditDroppedName,
		metric.WithDescription("Audit events dropped under backpressure."))
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", auditDroppedName, err)
	}
	observables = append(observables, e.authenticated, e.auditDropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func newLatency(meter metric.Meter, def internaldefs.HistogramDef) (latency, error) {
	l := latency{id: def.ID}
	name := def.Name + "_bucket"
	buckets, err := meter.Int64ObservableGauge(name,
		metric.WithDescription(def.Help+" Cumulative count per upper bound."))
	if err != nil {
		return l, fmt.Errorf("create gauge %s: %w", name, err)
	}
	name = def.Name + "_count"
	count, err := meter.Int64ObservableCounter(name, metric.WithDescription(def.Help+" Sample count."))
	if err != nil {
		return l, fmt.Errorf("create counter %s: %w", name, err)
	}
	l.buckets, l.count = buckets, count
	for _, bound := range internaldefs.HistogramBounds {
		l.le = append(l.le, metric.WithAttributeSet(attribute.NewSet(attribute.String("le", bound))))
	}
	return l, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for id, ins := range e.counters {
		o.ObserveInt64(ins, int64(snap.Counters[id]))
	}
	for _, l := range e.latencies {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[l.id]))
		for i, opt := range l.le {
			o.ObserveInt64(l.buckets, int64(cumulative[i]), opt)
		}
		o.ObserveInt64(l.count, int64(cumulative[len(cumulative)-1]))
	}
	var auth int64
	if e.source.IsAuth() {
		auth = 1
	}
	o.ObserveInt64(e.authenticated, auth)
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback. It is safe on a nil Exporter.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
