// Package recorder caches the last scheduling error seen for a given
// request id, so a caller that asks again after a rebid -- or a
// client that reconnects after a timeout -- gets back a concrete
// reason instead of a generic failure.
package recorder
