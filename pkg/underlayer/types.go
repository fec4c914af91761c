// Package underlayer transports scheduling decisions to local proxies
// over grpc (pkg/rpc) and watches their liveness by heartbeat, marking
// a local unhealthy after it misses the timeout multiple; later calls
// to an unhealthy local fail with CodeUnderlayerUnavailable, while
// calls already in flight are left to finish or time out. A local
// coming back healthy triggers a full resync of its resource view.
package underlayer

import (
	"context"
	"time"

	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// ReservationResult is the outcome of one Reserve call: the token and
// device slice the group controller stores under GROUP_SCHEDULE_CONTEXT
// for the later Bind call.
type ReservationResult struct {
	Token       string
	DeviceSlice []string
}

// BindResult is the outcome of one Bind call.
type BindResult struct {
	Contexts map[string]string
}

// GroupTransport is the subset of underlayer operations pkg/groupctrl
// drives: reserve/bind/unreserve/unbind per member, plus group-wide
// cleanup and preemption.
type GroupTransport interface {
	Reserve(ctx context.Context, unitID string, req *types.ScheduleRequest) (*ReservationResult, error)
	UnReserve(ctx context.Context, unitID, token string) error
	Bind(ctx context.Context, unitID, token string, createOptions map[string]string) (*BindResult, error)
	UnBind(ctx context.Context, unitID string, requestID string) error
	ClearGroup(ctx context.Context, groupID string, unitIDs []string) error
	Preempt(ctx context.Context, unitID string, victimInstanceIDs []string, reason string) error
}

// Config tunes the heartbeat fault detector.
type Config struct {
	HeartbeatInterval time.Duration
	// TimeoutMultiple is how many missed intervals mark a local unhealthy.
	TimeoutMultiple int
}

// DefaultConfig matches spec §4.7: 1s interval, 12x timeout.
func DefaultConfig() Config {
	return Config{HeartbeatInterval: time.Second, TimeoutMultiple: 12}
}

func (c Config) timeout() time.Duration {
	return c.HeartbeatInterval * time.Duration(c.TimeoutMultiple)
}

// ResyncHandler is invoked (on its own goroutine) when a local
// transitions from unhealthy back to healthy, so the caller can pull a
// full resource view rather than rely on the incremental change log.
type ResyncHandler func(localID string)
