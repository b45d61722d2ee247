package compat

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type scopeMetrics struct {
	activations     metric.Int64Counter
	active          metric.Int64UpDownCounter
	restoreFailures metric.Int64Counter
	presented       metric.Int64Counter
}

// newScopeMetrics creates the guard's instruments. An instrument the meter
// refuses is replaced by a no-op so metrics never block a scope.
func newScopeMetrics(m metric.Meter) *scopeMetrics {
	var nm noop.Meter
	sm := &scopeMetrics{}
	var err error

	if sm.activations, err = m.Int64Counter("xtraceback.scope.activations",
		metric.WithDescription("Traceback scopes entered")); err != nil {
		sm.activations, _ = nm.Int64Counter("")
	}
	if sm.active, err = m.Int64UpDownCounter("xtraceback.scope.active",
		metric.WithDescription("Traceback scopes currently active")); err != nil {
		sm.active, _ = nm.Int64UpDownCounter("")
	}
	if sm.restoreFailures, err = m.Int64Counter("xtraceback.scope.restore_failures",
		metric.WithDescription("Failures to reinstall the saved presentation state")); err != nil {
		sm.restoreFailures, _ = nm.Int64Counter("")
	}
	if sm.presented, err = m.Int64Counter("xtraceback.panics.presented",
		metric.WithDescription("Panics rendered through an installed scope")); err != nil {
		sm.presented, _ = nm.Int64Counter("")
	}
	return sm
}
