package schedqueue

import (
	"context"

	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// ResourceType selects which of the two Queues a request belongs on.
type ResourceType int

const (
	// Primary serves ordinary, freshly-scheduled instances.
	Primary ResourceType = iota
	// Virtual serves instances targeted at an existing tenant
	// affinity pool, whose resources are reserved ahead of the
	// actual placement.
	Virtual
)

// ResourceTypeOf classifies a request by its ResourceSelector: a
// request naming an affinity pool is Virtual, any other request is
// Primary.
func ResourceTypeOf(req *types.ScheduleRequest) ResourceType {
	sel := req.Instance.ScheduleOption.ResourceSelector
	if sel.Pool != "" {
		return Virtual
	}
	return Primary
}

// Confirm records the final disposition of a completed placement
// against the queue that decided it, so a caller's retry after a
// conflict is weighed consistently with the original decision.
type Confirm func(rsp *types.InstanceInfo, result ScheduleResult) error

// Scheduler dispatches ScheduleDecision/ScheduleConfirm/
// GroupScheduleDecision calls to whichever of the Primary/Virtual
// Queues matches the request's resource type, mirroring how the
// source scheduler routes to a primary or virtual queue actor rather
// than deciding placements itself.
type Scheduler struct {
	primary *Queue
	virtual *Queue
	confirm Confirm

	policies []string
}

// NewScheduler wires a Scheduler over two already-running Queues.
// confirm may be nil if the caller does not need ScheduleConfirm.
func NewScheduler(primary, virtual *Queue, confirm Confirm) *Scheduler {
	return &Scheduler{primary: primary, virtual: virtual, confirm: confirm}
}

func (s *Scheduler) queueFor(t ResourceType) *Queue {
	if t == Virtual {
		return s.virtual
	}
	return s.primary
}

// ScheduleDecision enqueues req on the queue matching its resource
// type and blocks for a decision. cancel may be nil.
func (s *Scheduler) ScheduleDecision(ctx context.Context, req *types.ScheduleRequest, cancel <-chan struct{}) (ScheduleResult, error) {
	q := s.queueFor(ResourceTypeOf(req))
	return q.ScheduleDecision(ctx, req, cancel)
}

// ScheduleConfirm reports a placement's outcome back to the queue
// that made the decision.
func (s *Scheduler) ScheduleConfirm(rsp *types.InstanceInfo, result ScheduleResult) error {
	if s.confirm == nil {
		return nil
	}
	return s.confirm(rsp, result)
}

// RegisterPolicy records a scheduling policy name as available on
// both queues. Queue itself is policy-agnostic (policy selection
// lives in the Decide callback's framework); this just lets a driver
// reject an unknown policy name up front, the same role the original
// broadcast-and-collect call played across two separate actors.
func (s *Scheduler) RegisterPolicy(name string) error {
	for _, p := range s.policies {
		if p == name {
			return nil
		}
	}
	s.policies = append(s.policies, name)
	return nil
}

// KnownPolicies reports every policy name registered so far.
func (s *Scheduler) KnownPolicies() []string {
	out := make([]string, len(s.policies))
	copy(out, s.policies)
	return out
}
