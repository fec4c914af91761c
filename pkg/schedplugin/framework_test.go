package schedplugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

func TestFrameworkRunBatchRanksBestFirst(t *testing.T) {
	fw := &Framework{
		Filters: []FilterPlugin{&DefaultFilter{}},
		Scorers: []ScorePlugin{&DefaultScorer{}},
	}
	ctx := NewPreAllocatedContext()
	req := &types.ScheduleRequest{Instance: &types.InstanceInfo{Resources: cpuMem(1, 1024)}}

	tight := &types.ResourceUnit{ID: "tight", Capacity: cpuMem(8, 8192), Allocatable: cpuMem(1, 1024)}
	roomy := &types.ResourceUnit{ID: "roomy", Capacity: cpuMem(8, 8192), Allocatable: cpuMem(7, 7168)}

	candidates, err := fw.RunBatch(ctx, req, []*types.ResourceUnit{tight, roomy})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "roomy", candidates[0].Unit.ID)
}

func TestFrameworkRunBatchAllFilteredReturnsError(t *testing.T) {
	fw := &Framework{Filters: []FilterPlugin{&DefaultFilter{}}}
	ctx := NewPreAllocatedContext()
	req := &types.ScheduleRequest{Instance: &types.InstanceInfo{Resources: cpuMem(100, 100000)}}
	tooSmall := &types.ResourceUnit{ID: "agent-1", Capacity: cpuMem(2, 2048), Allocatable: cpuMem(2, 2048)}

	_, err := fw.RunBatch(ctx, req, []*types.ResourceUnit{tooSmall})
	assert.Error(t, err)
}

func TestDefaultReserveAccumulatesTentativeAllocation(t *testing.T) {
	reserve := &DefaultReserve{}
	ctx := NewPreAllocatedContext()
	unit := &types.ResourceUnit{ID: "agent-1"}
	req := &types.ScheduleRequest{Instance: &types.InstanceInfo{Resources: cpuMem(2, 2048)}}

	require.NoError(t, reserve.Reserve(ctx, req, unit, NodeScore{}))
	require.NoError(t, reserve.Reserve(ctx, req, unit, NodeScore{}))

	assert.Equal(t, 4.0, ctx.Allocated["agent-1"].Resource["cpu"].Scalar.Value)
	assert.Equal(t, 4096.0, ctx.Allocated["agent-1"].Resource["memory"].Scalar.Value)
}
