package schedqueue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

func rangeReq(id string, min int) *types.ScheduleRequest {
	r := reqWith(id, 0, "t1")
	r.IsRangeSchedule = true
	r.RangeOpts = types.RangeOpts{Min: min, Max: min + 2}
	return r
}

func TestGroupScheduleDecisionGangFailsOnAnyError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	q := New(ctx, "primary", func(req *types.ScheduleRequest) (ScheduleResult, error) {
		calls++
		if req.RequestID == "bad" {
			return ScheduleResult{}, assert.AnError
		}
		return ScheduleResult{UnitID: "agent-1"}, nil
	})
	sched := NewScheduler(q, q, nil)

	group := &types.GroupInfo{
		GroupID:   "g1",
		GroupOpts: types.GroupOpts{GroupPolicy: types.GroupPolicyGang},
		Requests:  []*types.ScheduleRequest{reqWith("ok1", 0, "t1"), reqWith("bad", 0, "t1")},
	}

	result, err := sched.GroupScheduleDecision(ctx, group)
	assert.Error(t, err)
	assert.Equal(t, 1, result.Succeeded)
}

func TestGroupScheduleDecisionRangeSucceedsAboveMin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New(ctx, "primary", func(req *types.ScheduleRequest) (ScheduleResult, error) {
		if req.RequestID == "fail" {
			return ScheduleResult{}, assert.AnError
		}
		return ScheduleResult{UnitID: "agent-1"}, nil
	})
	sched := NewScheduler(q, q, nil)

	group := &types.GroupInfo{
		GroupID:   "g2",
		GroupOpts: types.GroupOpts{GroupPolicy: types.GroupPolicyRange},
		RangeRequests: []*types.ScheduleRequest{
			rangeReq("r1", 2), rangeReq("r2", 2), rangeReq("fail", 2),
		},
	}

	result, err := sched.GroupScheduleDecision(ctx, group)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
}

func TestGroupScheduleDecisionRangeFailsBelowMin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New(ctx, "primary", func(req *types.ScheduleRequest) (ScheduleResult, error) {
		if req.RequestID != "r1" {
			return ScheduleResult{}, assert.AnError
		}
		return ScheduleResult{UnitID: "agent-1"}, nil
	})
	sched := NewScheduler(q, q, nil)

	group := &types.GroupInfo{
		GroupID:   "g3",
		GroupOpts: types.GroupOpts{GroupPolicy: types.GroupPolicyRange},
		RangeRequests: []*types.ScheduleRequest{
			rangeReq("r1", 2), rangeReq("r2", 2), rangeReq("r3", 2),
		},
	}

	_, err := sched.GroupScheduleDecision(ctx, group)
	assert.Error(t, err)
}

func TestGroupScheduleDecisionEmptyGroupSucceeds(t *testing.T) {
	sched := &Scheduler{}
	result, err := sched.GroupScheduleDecision(context.Background(), &types.GroupInfo{GroupID: "empty"})
	require.NoError(t, err)
	assert.Empty(t, result.Results)
}
