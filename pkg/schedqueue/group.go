package schedqueue

import (
	"context"
	"sync"

	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// GroupScheduleResult is the outcome of a GroupScheduleDecision: the
// per-request results keyed by RequestID, and how many of them
// actually succeeded.
type GroupScheduleResult struct {
	Results   map[string]ScheduleResult
	Succeeded int
}

// GroupScheduleDecision schedules every request in spec concurrently
// against a single queue (chosen from the first request's resource
// type, matching how one group is never split across the primary and
// virtual pools), then reconciles the results according to the
// group's policy:
//
//   - Gang: any single failure fails the whole group.
//   - Range: succeeds so long as at least RangeOpts.Min requests from
//     RangeRequests succeeded; a shortfall below Min is a failure.
//   - StrictPack: same as Gang; ordering/placement tightness is
//     enforced by the Decide callback's plugin chain, not here.
func (s *Scheduler) GroupScheduleDecision(ctx context.Context, group *types.GroupInfo) (GroupScheduleResult, error) {
	if len(group.Requests) == 0 && len(group.RangeRequests) == 0 {
		return GroupScheduleResult{Results: map[string]ScheduleResult{}}, nil
	}

	q := s.primary
	all := append(append([]*types.ScheduleRequest{}, group.Requests...), group.RangeRequests...)
	if len(all) > 0 {
		q = s.queueFor(ResourceTypeOf(all[0]))
	}

	type outcome struct {
		id     string
		result ScheduleResult
		err    error
	}

	outcomes := make(chan outcome, len(all))
	var wg sync.WaitGroup
	for _, req := range all {
		wg.Add(1)
		go func(req *types.ScheduleRequest) {
			defer wg.Done()
			result, err := q.ScheduleDecision(ctx, req, nil)
			outcomes <- outcome{id: req.RequestID, result: result, err: err}
		}(req)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	results := make(map[string]ScheduleResult, len(all))
	errs := make([]error, 0)
	rangeSucceeded := 0
	rangeIDs := make(map[string]struct{}, len(group.RangeRequests))
	for _, r := range group.RangeRequests {
		rangeIDs[r.RequestID] = struct{}{}
	}

	for o := range outcomes {
		if o.err != nil {
			errs = append(errs, o.err)
			continue
		}
		results[o.id] = o.result
		if _, isRange := rangeIDs[o.id]; isRange {
			rangeSucceeded++
		}
	}

	switch group.GroupOpts.GroupPolicy {
	case types.GroupPolicyRange:
		min := rangeMin(group.RangeRequests)
		if rangeSucceeded < min {
			return GroupScheduleResult{Results: results, Succeeded: len(results)},
				schederr.New(schederr.CodeGroupFailed,
					"range group %s: only %d of required %d instances scheduled",
					group.GroupID, rangeSucceeded, min)
		}
	default: // Gang, StrictPack
		if len(errs) > 0 {
			return GroupScheduleResult{Results: results, Succeeded: len(results)},
				schederr.Collect(errs, schederr.CodeGroupFailed)
		}
	}

	return GroupScheduleResult{Results: results, Succeeded: len(results)}, nil
}

// rangeMin returns the tolerated-shortfall minimum for a range group,
// taken from its first request (all range requests within one group
// share the same RangeOpts).
func rangeMin(requests []*types.ScheduleRequest) int {
	if len(requests) == 0 {
		return 0
	}
	return requests[0].RangeOpts.Min
}
