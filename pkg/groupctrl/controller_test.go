package groupctrl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/yuanrong-scheduler/pkg/schedqueue"
	"github.com/cuemby/yuanrong-scheduler/pkg/storage"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
	"github.com/cuemby/yuanrong-scheduler/pkg/underlayer"
)

func reqWith(id, unitHint string) *types.ScheduleRequest {
	return &types.ScheduleRequest{
		RequestID: id,
		Instance:  &types.InstanceInfo{InstanceID: id, TenantID: "t1"},
	}
}

func rangeReq(id string, min int) *types.ScheduleRequest {
	r := reqWith(id, "")
	r.IsRangeSchedule = true
	r.RangeOpts = types.RangeOpts{Min: min, Max: min + 2}
	return r
}

// fakeTransport implements underlayer.GroupTransport entirely
// in-process, so groupctrl's reserve/bind/rollback logic can be
// exercised without a real grpc round trip.
type fakeTransport struct {
	mu sync.Mutex

	reserveFail map[string]bool // by requestID
	bindFail    map[string]bool // by requestID

	reserved map[string]bool // requestID -> still held
	bound    []string
	cleared  []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		reserveFail: map[string]bool{},
		bindFail:    map[string]bool{},
		reserved:    map[string]bool{},
	}
}

func (f *fakeTransport) Reserve(ctx context.Context, unitID string, req *types.ScheduleRequest) (*underlayer.ReservationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserveFail[req.RequestID] {
		return nil, assert.AnError
	}
	f.reserved[req.RequestID] = true
	return &underlayer.ReservationResult{Token: "tok-" + req.RequestID, DeviceSlice: []string{"gpu-0"}}, nil
}

func (f *fakeTransport) UnReserve(ctx context.Context, unitID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range f.reserved {
		if "tok-"+id == token {
			delete(f.reserved, id)
		}
	}
	return nil
}

func (f *fakeTransport) Bind(ctx context.Context, unitID, token string, createOptions map[string]string) (*underlayer.BindResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range f.reserved {
		if "tok-"+id == token && f.bindFail[id] {
			return nil, assert.AnError
		}
	}
	for id := range f.reserved {
		if "tok-"+id == token {
			f.bound = append(f.bound, id)
		}
	}
	return &underlayer.BindResult{Contexts: createOptions}, nil
}

func (f *fakeTransport) UnBind(ctx context.Context, unitID, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.bound[:0]
	for _, id := range f.bound {
		if id != requestID {
			kept = append(kept, id)
		}
	}
	f.bound = kept
	return nil
}

func (f *fakeTransport) ClearGroup(ctx context.Context, groupID string, unitIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, groupID)
	return nil
}

func (f *fakeTransport) Preempt(ctx context.Context, unitID string, victimInstanceIDs []string, reason string) error {
	return nil
}

func newTestScheduler(decide schedqueue.Decide) *schedqueue.Scheduler {
	q := schedqueue.New(context.Background(), "primary", decide)
	return schedqueue.NewScheduler(q, q, nil)
}

func TestScheduleGangSucceeds(t *testing.T) {
	sched := newTestScheduler(func(req *types.ScheduleRequest) (schedqueue.ScheduleResult, error) {
		return schedqueue.ScheduleResult{UnitID: "unit-1"}, nil
	})
	transport := newFakeTransport()
	ctrl := New(sched, transport, nil, nil, "replica-a")

	group := &types.GroupInfo{
		RequestID: "req-group-1",
		GroupID:   "g1",
		GroupOpts: types.GroupOpts{GroupPolicy: types.GroupPolicyGang},
		Requests:  []*types.ScheduleRequest{reqWith("m1", ""), reqWith("m2", "")},
	}

	result, err := ctrl.Schedule(context.Background(), group)
	require.NoError(t, err)
	assert.Equal(t, types.GroupStatusRunning, result.Status)
	assert.ElementsMatch(t, []string{"m1", "m2"}, result.BoundIDs)
	assert.Empty(t, transport.cleared, "a successful gang schedule must not roll back")
}

func TestScheduleGangRollsBackOnReserveFailure(t *testing.T) {
	sched := newTestScheduler(func(req *types.ScheduleRequest) (schedqueue.ScheduleResult, error) {
		return schedqueue.ScheduleResult{UnitID: "unit-1"}, nil
	})
	transport := newFakeTransport()
	transport.reserveFail["m2"] = true
	ctrl := New(sched, transport, nil, nil, "replica-a")
	ctrl.SetConfig(Config{MaxAttempts: 1, RetryBackoff: time.Millisecond})

	group := &types.GroupInfo{
		RequestID: "req-group-2",
		GroupID:   "g2",
		GroupOpts: types.GroupOpts{GroupPolicy: types.GroupPolicyGang},
		Requests:  []*types.ScheduleRequest{reqWith("m1", ""), reqWith("m2", "")},
	}

	result, err := ctrl.Schedule(context.Background(), group)
	assert.Error(t, err)
	assert.Equal(t, types.GroupStatusFailed, result.Status)
	assert.Empty(t, transport.reserved, "m1's reservation must be rolled back")
	assert.NotEmpty(t, transport.cleared)
}

func TestScheduleRangeKeepsContiguousPrefix(t *testing.T) {
	sched := newTestScheduler(func(req *types.ScheduleRequest) (schedqueue.ScheduleResult, error) {
		return schedqueue.ScheduleResult{UnitID: "unit-1"}, nil
	})
	transport := newFakeTransport()
	transport.reserveFail["r3"] = true
	ctrl := New(sched, transport, nil, nil, "replica-a")

	group := &types.GroupInfo{
		RequestID:     "req-group-3",
		GroupID:       "g3",
		GroupOpts:     types.GroupOpts{GroupPolicy: types.GroupPolicyRange},
		RangeRequests: []*types.ScheduleRequest{rangeReq("r1", 2), rangeReq("r2", 2), rangeReq("r3", 2), rangeReq("r4", 2)},
	}

	result, err := ctrl.Schedule(context.Background(), group)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"r1", "r2"}, result.BoundIDs, "r3 failed and r4 was never attempted, preserving order")
}

func TestScheduleRangeFailsBelowMin(t *testing.T) {
	sched := newTestScheduler(func(req *types.ScheduleRequest) (schedqueue.ScheduleResult, error) {
		return schedqueue.ScheduleResult{UnitID: "unit-1"}, nil
	})
	transport := newFakeTransport()
	transport.reserveFail["r1"] = true
	ctrl := New(sched, transport, nil, nil, "replica-a")
	ctrl.SetConfig(Config{MaxAttempts: 1, RetryBackoff: time.Millisecond})

	group := &types.GroupInfo{
		RequestID:     "req-group-4",
		GroupID:       "g4",
		GroupOpts:     types.GroupOpts{GroupPolicy: types.GroupPolicyRange},
		RangeRequests: []*types.ScheduleRequest{rangeReq("r1", 2), rangeReq("r2", 2), rangeReq("r3", 2)},
	}

	_, err := ctrl.Schedule(context.Background(), group)
	assert.Error(t, err)
}

func TestSchedulePersistsGroupState(t *testing.T) {
	sched := newTestScheduler(func(req *types.ScheduleRequest) (schedqueue.ScheduleResult, error) {
		return schedqueue.ScheduleResult{UnitID: "unit-1"}, nil
	})
	transport := newFakeTransport()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctrl := New(sched, transport, store, nil, "replica-a")
	group := &types.GroupInfo{
		RequestID: "req-group-5",
		GroupID:   "g5",
		GroupOpts: types.GroupOpts{GroupPolicy: types.GroupPolicyGang},
		Requests:  []*types.ScheduleRequest{reqWith("m1", "")},
	}

	_, err = ctrl.Schedule(context.Background(), group)
	require.NoError(t, err)

	saved, err := store.GetGroup("req-group-5", "g5")
	require.NoError(t, err)
	assert.Equal(t, types.GroupStatusRunning, saved.Status)
	assert.Equal(t, "replica-a", saved.OwnerProxy)

	owned, err := ctrl.Recover()
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "g5", owned[0].GroupID)
}

func TestBuildRunningInfoRanksByUnitThenDevice(t *testing.T) {
	reservations := []*reservation{
		{requestID: "b", unitID: "unit-2", deviceIDs: []string{"gpu-0"}},
		{requestID: "a", unitID: "unit-1", deviceIDs: []string{"gpu-1"}},
		{requestID: "c", unitID: "unit-1", deviceIDs: []string{"gpu-0"}},
	}
	payload, err := buildRunningInfo("g1", reservations)
	require.NoError(t, err)
	assert.Contains(t, payload, `"rank":0`)
	// unit-1/gpu-0 (c) ranks before unit-1/gpu-1 (a), both before unit-2 (b).
	idxC := indexOf(payload, `"request_id":"c"`)
	idxA := indexOf(payload, `"request_id":"a"`)
	idxB := indexOf(payload, `"request_id":"b"`)
	assert.True(t, idxC < idxA && idxA < idxB)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
