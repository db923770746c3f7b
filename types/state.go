//nolint:revive // types is a common Go package naming convention
package types

// RequestState is a step of the request lifecycle.
type RequestState string

// Request lifecycle states. StateFailed is reachable from any step.
const (
	StateReceived  RequestState = "received"
	StateValidated RequestState = "validated"
	StateCacheHit  RequestState = "cache_hit"
	StateCacheMiss RequestState = "cache_miss"
	StateRendering RequestState = "rendering"
	StateRendered  RequestState = "rendered"
	StateResponded RequestState = "responded"
	StateFailed    RequestState = "failed"
)

// Terminal reports whether no further transition follows s.
func (s RequestState) Terminal() bool {
	return s == StateResponded || s == StateFailed
}
