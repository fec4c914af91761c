// Package schederr defines the error taxonomy shared across the
// scheduling subsystem, plus a Collect helper that aggregates a batch
// of per-unit or per-instance errors into one: messages are
// deduplicated, and the most concerning code present wins over
// whatever arrived first.
package schederr
