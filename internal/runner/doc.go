// Package runner drives the built-in load probe.
//
// Workers loop claiming a slot from the shared request budget, wait on an
// optional golang.org/x/time/rate limiter and call [Job.Do]:
//
//	r := runner.New(runner.FromLoad(cfg.Load, probe))
//	result := r.Run(ctx)
//
// [Runner.Active] is the number of calls in flight; the listener stamps it on
// every window snapshot as the active thread count.
package runner
