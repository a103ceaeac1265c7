// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for SDK activity:
//   - pipeline_runs/cancellations: Driver runs and pre-processing cancels
//   - hook_failures:               Handlers that returned an error or panicked
//   - helper_calls/misses:         Cross-extension helper invocations
//   - extensions_loaded/unloaded:  Manager lifecycle
package monitoring

import (
	"sync/atomic"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	pipelineRuns       atomic.Int64
	cancellations      atomic.Int64
	hookFailures       atomic.Int64
	helperCalls        atomic.Int64
	helperMisses       atomic.Int64
	extensionsLoaded   atomic.Int64
	extensionsUnloaded atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordPipelineRun records a finished driver run.
func (mc *MetricsCollector) RecordPipelineRun(cancelled bool) {
	mc.pipelineRuns.Add(1)
	if cancelled {
		mc.cancellations.Add(1)
	}
}

// RecordHookFailure records a failed hook invocation.
func (mc *MetricsCollector) RecordHookFailure() { mc.hookFailures.Add(1) }

// RecordHelperCall records a helper lookup made for invocation.
func (mc *MetricsCollector) RecordHelperCall(found bool) {
	mc.helperCalls.Add(1)
	if !found {
		mc.helperMisses.Add(1)
	}
}

// RecordExtensionLoaded records a successful activation.
func (mc *MetricsCollector) RecordExtensionLoaded() { mc.extensionsLoaded.Add(1) }

// RecordExtensionUnloaded records an unload.
func (mc *MetricsCollector) RecordExtensionUnloaded() { mc.extensionsUnloaded.Add(1) }

// Stats returns current metrics.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"pipeline_runs":       mc.pipelineRuns.Load(),
		"cancellations":       mc.cancellations.Load(),
		"hook_failures":       mc.hookFailures.Load(),
		"helper_calls":        mc.helperCalls.Load(),
		"helper_misses":       mc.helperMisses.Load(),
		"extensions_loaded":   mc.extensionsLoaded.Load(),
		"extensions_unloaded": mc.extensionsUnloaded.Load(),
	}
}
