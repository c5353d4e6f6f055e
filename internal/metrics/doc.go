/*
Package metrics exports settings coordinator events as Prometheus metrics.

# Overview

Collector implements types.MetricsRecorder. Every coordinator in a process
can share one collector; the backend label is the resource scheme (file, s3,
gs, mem).

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Address:   ":9090",
		Path:      "/metrics",
		Namespace: "viewersettings",
	}, logger)
	if err != nil {
		return err
	}
	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop(ctx)

	c, err := coordinator.New(backend, registry, source, coordinator.WithMetrics(collector))

# Metrics

	settings_saves_total{backend,trigger,status}   counter
	settings_save_duration_seconds{backend}        histogram
	settings_init_results_total{backend,result}    counter
	settings_access_denied_total{backend,reason}   counter
	settings_active_coordinators{backend}          gauge

trigger is one of explicit, autosave or close. status is success, canceled,
the lower-cased error code of a failed save, or error.

# Endpoints

Start serves the configured path plus /health and /debug/saves, a plain text
summary of saves per trigger since the last ResetStats.

A disabled collector accepts every call and records nothing.
*/
package metrics
