package report

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/soelive/internal/observe"
	"github.com/MrWong99/soelive/internal/resilience"
)

// Compile-time interface assertion.
var _ Refiner = (*FallbackRefiner)(nil)

// FallbackRefiner tries a primary refiner and then each fallback in order,
// skipping any whose circuit breaker is open.
type FallbackRefiner struct {
	group   *resilience.FallbackGroup[*namedRefiner]
	metrics *observe.Metrics
}

// namedRefiner records per-backend request metrics.
type namedRefiner struct {
	name  string
	inner Refiner
	owner *FallbackRefiner
}

func (n *namedRefiner) Refine(ctx context.Context, a AttendanceData) (*RefinedContent, error) {
	m := n.owner.metrics
	rc, err := n.inner.Refine(ctx, a)
	if err != nil {
		m.RecordProviderRequest(ctx, n.name, "refine", "error")
		m.RecordProviderError(ctx, n.name, "refine")
		observe.WithTrace(ctx, nil).Warn("refiner failed", "refiner", n.name, "err", err)
		return nil, err
	}
	m.RecordProviderRequest(ctx, n.name, "refine", "ok")
	return rc, nil
}

// NewFallbackRefiner creates a FallbackRefiner with primary as the preferred
// backend.
func NewFallbackRefiner(primaryName string, primary Refiner, cfg resilience.FallbackConfig) *FallbackRefiner {
	f := &FallbackRefiner{metrics: observe.DefaultMetrics()}
	f.group = resilience.NewFallbackGroup(primaryName, &namedRefiner{name: primaryName, inner: primary, owner: f}, cfg)
	return f
}

// AddFallback registers another refiner tried after the ones already added.
func (f *FallbackRefiner) AddFallback(name string, r Refiner) {
	f.group.AddFallback(name, &namedRefiner{name: name, inner: r, owner: f})
}

// SetMetrics replaces the metrics sink. Call it before the first Refine.
func (f *FallbackRefiner) SetMetrics(m *observe.Metrics) { f.metrics = m }

// Names lists the backends in trial order.
func (f *FallbackRefiner) Names() []string { return f.group.Names() }

// Refine implements [Refiner].
func (f *FallbackRefiner) Refine(ctx context.Context, a AttendanceData) (*RefinedContent, error) {
	if err := Validate(a); err != nil {
		return nil, err
	}

	ctx, span := observe.StartSpan(ctx, "report.refine")
	defer span.End()

	start := time.Now()
	rc, err := resilience.ExecuteWithResult(ctx, f.group, func(ctx context.Context, r *namedRefiner) (*RefinedContent, error) {
		return r.Refine(ctx, a)
	})
	f.metrics.RefineDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.FailSpan(span, err)
		return nil, fmt.Errorf("report: refine: %w", err)
	}
	return rc, nil
}
