// Package groupctrl drives gang-, range- and strict-pack-scheduled
// groups of instances through decision, reserve and bind, with
// rollback on partial failure per the group's policy.
package groupctrl

import (
	"time"

	"github.com/cuemby/yuanrong-scheduler/pkg/schedqueue"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
	"github.com/cuemby/yuanrong-scheduler/pkg/underlayer"
)

// reservation is what one member holds between a successful Reserve
// and its Bind or rollback.
type reservation struct {
	requestID string
	unitID    string
	token     string
	deviceIDs []string
}

// groupAttempt is the live, in-memory state of one decision/reserve/bind
// cycle for a group. A group may go through several attempts (on
// resource-not-enough rollback) before it either succeeds or exhausts
// its retry budget.
type groupAttempt struct {
	group *types.GroupInfo

	decisions map[string]schedqueue.ScheduleResult // requestID -> decision
	reserved  map[string]*reservation              // requestID -> reservation, only while held
	bound     []string                             // request ids successfully bound this attempt

	lastReservedInd int // Range policy: index of the last contiguous success
}

func newGroupAttempt(group *types.GroupInfo) *groupAttempt {
	return &groupAttempt{
		group:     group,
		decisions: make(map[string]schedqueue.ScheduleResult),
		reserved:  make(map[string]*reservation),
	}
}

// Result is a group's final, terminal outcome.
type Result struct {
	GroupID  string
	Status   types.GroupStatus
	BoundIDs []string // request ids that were successfully bound
	Err      error
}

// Config tunes retry/backoff behavior shared with instancectrl's shape.
type Config struct {
	MaxAttempts      int
	RetryBackoff     time.Duration
	ReserveBindTimeout time.Duration
}

// DefaultConfig gives the group controller a bounded number of
// decision/reserve/bind cycles before giving up, mirroring
// instancectrl's bounded re-schedule budget.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:        5,
		RetryBackoff:       2 * time.Second,
		ReserveBindTimeout: 10 * time.Second,
	}
}

// Transport is the underlayer surface this package needs; satisfied by
// *underlayer.Manager.
type Transport = underlayer.GroupTransport
