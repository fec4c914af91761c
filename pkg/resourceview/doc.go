/*
Package resourceview holds the mutable tree of ResourceUnits a single
process owns, and the bookkeeping needed to replicate it: per-unit
revisions, a bounded change log, and bucket indexes used by the
scheduling framework's feasibility pre-check.

A local process's ResourceView has one ResourceUnit per agent it owns.
A domain process's ResourceView aggregates one ResourceUnit per local
it has absorbed, each carrying that local's agents in its Fragment.
Either way, exactly one goroutine is meant to drive a given ResourceView
synchronously; the exported methods are safe to call from several
goroutines only because they take a mutex, not because the view is
lock-free.
*/
package resourceview
