package localproxy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/yuanrong-scheduler/pkg/resourceview"
	"github.com/cuemby/yuanrong-scheduler/pkg/rpc"
	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

func scalarResources(cpu, mem float64) types.Resources {
	return types.Resources{
		"cpu":    {Name: "cpu", Type: types.ValueTypeScalar, Scalar: &types.Scalar{Value: cpu}},
		"memory": {Name: "memory", Type: types.ValueTypeScalar, Scalar: &types.Scalar{Value: mem}},
	}
}

func newView(t *testing.T) *resourceview.ResourceView {
	t.Helper()
	v := resourceview.New("local-1", resourceview.Param{IsLocal: true})
	require.NoError(t, v.AddResourceUnit(&types.ResourceUnit{
		ID:          "agent-1",
		Capacity:    scalarResources(8, 16384),
		Allocatable: scalarResources(8, 16384),
		ActualUse:   scalarResources(0, 0),
		Instances:   make(map[string]*types.InstanceInfo),
	}))
	return v
}

func TestReserveThenBind(t *testing.T) {
	v := newView(t)
	s := New("local-1", v)
	ctx := context.Background()

	rsp, err := s.Reserve(ctx, &rpc.ReserveRequest{
		RequestID: "req-1",
		UnitID:    "agent-1",
		Instance:  &types.InstanceInfo{InstanceID: "inst-1", Resources: scalarResources(2, 4096)},
	})
	require.NoError(t, err)
	require.Equal(t, string(schederr.CodeOK), rsp.Code)
	require.NotEmpty(t, rsp.Token)

	unit, ok := v.GetResourceUnit("agent-1")
	require.True(t, ok)
	assert.Equal(t, 6.0, unit.Allocatable["cpu"].Scalar.Value, "reserve subtracts resources immediately")

	bindRsp, err := s.Bind(ctx, &rpc.BindRequest{RequestID: "req-1", UnitID: "agent-1", Token: rsp.Token, CreateOptions: map[string]string{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, string(schederr.CodeOK), bindRsp.Code)
	assert.Equal(t, "v", bindRsp.Contexts["k"])

	unit, _ = v.GetResourceUnit("agent-1")
	_, stillThere := unit.Instances["inst-1"]
	assert.True(t, stillThere, "bind must not release the reserved instance")
}

func TestReserveThenUnReserveReleases(t *testing.T) {
	v := newView(t)
	s := New("local-1", v)
	ctx := context.Background()

	rsp, err := s.Reserve(ctx, &rpc.ReserveRequest{
		RequestID: "req-1",
		UnitID:    "agent-1",
		Instance:  &types.InstanceInfo{InstanceID: "inst-1", Resources: scalarResources(2, 4096)},
	})
	require.NoError(t, err)

	ackRsp, err := s.UnReserve(ctx, &rpc.UnReserveRequest{RequestID: "req-1", UnitID: "agent-1", Token: rsp.Token})
	require.NoError(t, err)
	assert.Equal(t, string(schederr.CodeOK), ackRsp.Code)

	unit, _ := v.GetResourceUnit("agent-1")
	assert.Equal(t, 8.0, unit.Allocatable["cpu"].Scalar.Value, "unreserve restores resources")
	_, stillThere := unit.Instances["inst-1"]
	assert.False(t, stillThere)
}

func TestReserveTimeoutReleasesUnboundHold(t *testing.T) {
	v := newView(t)
	s := New("local-1", v)
	s.SetReserveTimeout(20 * time.Millisecond)
	ctx := context.Background()

	_, err := s.Reserve(ctx, &rpc.ReserveRequest{
		RequestID: "req-1",
		UnitID:    "agent-1",
		Instance:  &types.InstanceInfo{InstanceID: "inst-1", Resources: scalarResources(2, 4096)},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		unit, _ := v.GetResourceUnit("agent-1")
		return unit.Allocatable["cpu"].Scalar.Value == 8.0
	}, time.Second, 5*time.Millisecond, "expired reservation must release its hold")
}

func TestUnBindByRequestID(t *testing.T) {
	v := newView(t)
	s := New("local-1", v)
	ctx := context.Background()

	_, err := s.Dispatch(ctx, &rpc.DispatchRequest{
		RequestID: "req-1",
		UnitID:    "agent-1",
		Instance:  &types.InstanceInfo{InstanceID: "inst-1", Resources: scalarResources(2, 4096)},
	})
	require.NoError(t, err)

	ackRsp, err := s.UnBind(ctx, &rpc.UnBindRequest{RequestID: "req-1", UnitID: "agent-1"})
	require.NoError(t, err)
	assert.Equal(t, string(schederr.CodeOK), ackRsp.Code)

	unit, _ := v.GetResourceUnit("agent-1")
	assert.Equal(t, 8.0, unit.Allocatable["cpu"].Scalar.Value)
}

func TestClearGroupReleasesReservationsAndBoundInstances(t *testing.T) {
	v := newView(t)
	require.NoError(t, v.AddResourceUnit(&types.ResourceUnit{
		ID:          "agent-2",
		Capacity:    scalarResources(8, 16384),
		Allocatable: scalarResources(8, 16384),
		ActualUse:   scalarResources(0, 0),
		Instances:   make(map[string]*types.InstanceInfo),
	}))
	s := New("local-1", v)
	ctx := context.Background()

	_, err := s.Reserve(ctx, &rpc.ReserveRequest{
		RequestID: "req-1",
		UnitID:    "agent-1",
		Instance:  &types.InstanceInfo{InstanceID: "inst-1", GroupID: "g1", Resources: scalarResources(2, 4096)},
	})
	require.NoError(t, err)

	_, err = s.Dispatch(ctx, &rpc.DispatchRequest{
		RequestID: "req-2",
		UnitID:    "agent-2",
		Instance:  &types.InstanceInfo{InstanceID: "inst-2", GroupID: "g1", Resources: scalarResources(2, 4096)},
	})
	require.NoError(t, err)

	ackRsp, err := s.ClearGroup(ctx, &rpc.ClearGroupRequest{GroupID: "g1", UnitIDs: []string{"agent-1", "agent-2"}})
	require.NoError(t, err)
	assert.Equal(t, string(schederr.CodeOK), ackRsp.Code)

	u1, _ := v.GetResourceUnit("agent-1")
	u2, _ := v.GetResourceUnit("agent-2")
	assert.Equal(t, 8.0, u1.Allocatable["cpu"].Scalar.Value)
	assert.Equal(t, 8.0, u2.Allocatable["cpu"].Scalar.Value)
}

func TestPullResourceReportsWindow(t *testing.T) {
	v := newView(t)
	s := New("local-1", v)
	ctx := context.Background()

	rsp, err := s.PullResource(ctx, &rpc.PullResourceRequest{LocalID: "local-1", SinceRevision: 0})
	require.NoError(t, err)
	assert.Equal(t, "local-1", rsp.Changes.LocalID)
	assert.NotEmpty(t, rsp.Changes.Changes, "the unit added in newView must show up in the first pull")
}

func TestHeartbeatReportsHealthy(t *testing.T) {
	s := New("local-1", newView(t))
	rsp, err := s.Heartbeat(context.Background(), &rpc.HeartbeatRequest{LocalID: "local-1"})
	require.NoError(t, err)
	assert.True(t, rsp.Healthy)
}
