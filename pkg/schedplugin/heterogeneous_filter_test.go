package schedplugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

func vectorResource(name string, values map[string][]float64) *types.Resource {
	return &types.Resource{
		Name: name,
		Type: types.ValueTypeVectors,
		Vectors: &types.Vectors{Categories: map[string]*types.VectorSlot{
			"default": {Values: values},
		}},
	}
}

func npuUnit(id string, memAvail, memCap []float64) *types.ResourceUnit {
	return &types.ResourceUnit{
		ID: id,
		Capacity: types.Resources{
			"NPU/310P/memory": vectorResource("NPU/310P/memory", map[string][]float64{"dev-0": memCap}),
		},
		Allocatable: types.Resources{
			"NPU/310P/memory": vectorResource("NPU/310P/memory", map[string][]float64{"dev-0": memAvail}),
		},
	}
}

func TestHeterogeneousFilterPassesWithNoHeteroRequest(t *testing.T) {
	f := &DefaultHeterogeneousFilter{}
	ctx := NewPreAllocatedContext()
	unit := npuUnit("agent-1", []float64{32}, []float64{32})
	req := &types.ScheduleRequest{Instance: &types.InstanceInfo{Resources: cpuMem(2, 1024)}}

	result := f.Filter(ctx, req, unit)
	assert.True(t, result.Passed())
}

func TestHeterogeneousFilterMemoryRequest(t *testing.T) {
	f := &DefaultHeterogeneousFilter{}
	ctx := NewPreAllocatedContext()
	unit := npuUnit("agent-1", []float64{16}, []float64{32})

	fits := &types.ScheduleRequest{Instance: &types.InstanceInfo{Resources: types.Resources{
		"NPU/310P/memory": scalar("NPU/310P/memory", 8),
	}}}
	result := f.Filter(ctx, fits, unit)
	assert.True(t, result.Passed())

	tooBig := &types.ScheduleRequest{Instance: &types.InstanceInfo{Resources: types.Resources{
		"NPU/310P/memory": scalar("NPU/310P/memory", 24),
	}}}
	result = f.Filter(ctx, tooBig, unit)
	assert.False(t, result.Passed())
}

func TestHeterogeneousFilterCardTypeRegexResolution(t *testing.T) {
	f := &DefaultHeterogeneousFilter{}
	ctx := NewPreAllocatedContext()
	unit := npuUnit("agent-1", []float64{16}, []float64{32})

	req := &types.ScheduleRequest{Instance: &types.InstanceInfo{Resources: types.Resources{
		"NPU/310.*/memory": scalar("NPU/310.*/memory", 8),
	}}}
	result := f.Filter(ctx, req, unit)
	require.True(t, result.Passed(), "regex card-type request must resolve to the concrete NPU/310P present on the unit")
}
