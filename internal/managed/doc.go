// Package managed runs a single top-level unit of work inside a managed
// lifecycle: one execution context per run, a bounded worker pool for
// blocking calls, a signal bridge that turns SIGINT/SIGTERM into cooperative
// cancellation, and adapters that bridge blocking and context-aware calls in
// both directions.
//
// A run is structured as follows:
//
//	Runner.Run
//	  └─ Lifespan            (worker pool installed as the default target)
//	       ├─ SignalBridge   (listener goroutine)
//	       └─ body(ctx)      (the guarded operation)
//
// The listener and the body are the only two concurrent branches. Whichever
// finishes first decides the outcome; the other is cancelled and joined before
// Run returns, and the pool is released after both have exited.
//
// Sync turns a Task into a blocking Call that drives a whole Run per
// invocation. Async turns a blocking Call into a Task that dispatches onto the
// pool of the surrounding run. Both are memoized by operation identity, so
// wrapping the same operation twice yields the same pointer.
package managed
