// Package workerpool provides a bounded pool of worker goroutines used to run
// blocking calls without stalling the goroutines that wait on them. A pool is
// sized once at construction and drains every queued and in-flight task before
// its workers exit.
package workerpool
