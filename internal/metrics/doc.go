// Package metrics aggregates request-completion events into time windows.
//
// Producers call [Registry.Record] from any number of goroutines. Each label
// gets its own [Accumulator]; a distinguished cumulated window (label
// [CumulatedLabel]) receives every event. [Registry.FlushAll] snapshots and
// resets every window under the same lock Record takes, so each event is
// reported in exactly one window:
//
//	reg, err := metrics.NewRegistry(metrics.RegistryOptions{
//		LabelFilter:   "^api_",
//		SLAThresholds: map[string]int64{"api_login": 250},
//	})
//	spec := metrics.ParsePercentiles("99;95;90", logger)
//
//	reg.Record(metrics.Event{Label: "api_login", ElapsedMs: 120, Success: true})
//
//	for _, ls := range reg.FlushAll(spec) {
//		sink.AddMetric(ls.Snapshot)
//	}
//
// # Percentiles
//
// Window percentiles use the nearest-rank method over a bounded reservoir of
// latency samples (see [DefaultMaxSamples]). The optional lifetime [Summary]
// uses HDR histograms instead and is never reset.
//
// # SLA
//
// A window counts successful events at or under its SLA threshold. The
// cumulated window always reports an SLA success count of zero.
package metrics
