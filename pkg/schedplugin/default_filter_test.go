package schedplugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/yuanrong-scheduler/pkg/resourcealgebra"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

func scalar(name string, value float64) *types.Resource {
	return &types.Resource{Name: name, Type: types.ValueTypeScalar, Scalar: &types.Scalar{Value: value}}
}

func cpuMem(cpu, mem float64) types.Resources {
	return types.Resources{"cpu": scalar("cpu", cpu), "memory": scalar("memory", mem)}
}

func unitWithBuckets(id string, cpu, mem float64, monopolyNum, sharedNum int) *types.ResourceUnit {
	u := &types.ResourceUnit{
		ID:          id,
		Capacity:    cpuMem(cpu, mem),
		Allocatable: cpuMem(cpu, mem),
	}
	ratioKey, memKey, err := resourcealgebra.BucketShape(u.Allocatable)
	if err != nil {
		panic(err)
	}
	u.BucketIndexes = map[string]map[string]*types.Bucket{
		ratioKey: {
			memKey: {
				Total: types.BucketCount{MonopolyNum: monopolyNum, SharedNum: sharedNum},
			},
		},
	}
	return u
}

func TestDefaultFilterMonopolyRequiresExactMatch(t *testing.T) {
	f := &DefaultFilter{}
	ctx := NewPreAllocatedContext()

	unit := unitWithBuckets("agent-1", 4, 8192, 1, 0)
	req := &types.ScheduleRequest{Instance: &types.InstanceInfo{
		Resources:      cpuMem(4, 8192),
		ScheduleOption: types.ScheduleOption{SchedulePolicyName: types.SchedulePolicyMonopoly},
	}}

	result := f.Filter(ctx, req, unit)
	assert.True(t, result.Passed())

	req.Instance.Resources = cpuMem(2, 8192)
	result = f.Filter(ctx, req, unit)
	assert.False(t, result.Passed(), "mismatched shape must fail monopoly filter")
}

func TestDefaultFilterMonopolyRejectsAlreadyClaimed(t *testing.T) {
	f := &DefaultFilter{}
	ctx := NewPreAllocatedContext()
	ctx.PreAllocatedSelectedSet["agent-1"] = struct{}{}

	unit := unitWithBuckets("agent-1", 4, 8192, 1, 0)
	req := &types.ScheduleRequest{Instance: &types.InstanceInfo{
		Resources:      cpuMem(4, 8192),
		ScheduleOption: types.ScheduleOption{SchedulePolicyName: types.SchedulePolicyMonopoly},
	}}
	result := f.Filter(ctx, req, unit)
	assert.False(t, result.Passed())
}

func TestDefaultFilterResourceFilterReportsAvailableForRequest(t *testing.T) {
	f := &DefaultFilter{}
	ctx := NewPreAllocatedContext()
	unit := &types.ResourceUnit{ID: "agent-1", Capacity: cpuMem(8, 16384), Allocatable: cpuMem(8, 16384)}
	req := &types.ScheduleRequest{Instance: &types.InstanceInfo{Resources: cpuMem(2, 2048)}}

	result := f.Filter(ctx, req, unit)
	require.True(t, result.Passed())
	assert.Equal(t, 4, result.AvailableForRequest)
}

func TestDefaultFilterResourceFilterRejectsOverCapacity(t *testing.T) {
	f := &DefaultFilter{}
	ctx := NewPreAllocatedContext()
	unit := &types.ResourceUnit{ID: "agent-1", Capacity: cpuMem(2, 2048), Allocatable: cpuMem(2, 2048)}
	req := &types.ScheduleRequest{Instance: &types.InstanceInfo{Resources: cpuMem(4, 1024)}}

	result := f.Filter(ctx, req, unit)
	assert.False(t, result.Passed())
}

func TestDefaultFilterHonorsBatchTentativeAllocation(t *testing.T) {
	f := &DefaultFilter{}
	ctx := NewPreAllocatedContext()
	ctx.Allocated["agent-1"] = AllocatedResource{Resource: cpuMem(3, 3072)}
	unit := &types.ResourceUnit{ID: "agent-1", Capacity: cpuMem(4, 8192), Allocatable: cpuMem(4, 8192)}
	req := &types.ScheduleRequest{Instance: &types.InstanceInfo{Resources: cpuMem(2, 1024)}}

	result := f.Filter(ctx, req, unit)
	assert.False(t, result.Passed(), "tentative allocation from an earlier request in the batch must be honored")
}
