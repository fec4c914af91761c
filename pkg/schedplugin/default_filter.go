package schedplugin

import (
	"math"

	"github.com/cuemby/yuanrong-scheduler/pkg/resourcealgebra"
	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

const DefaultFilterName = "DefaultFilter"

// DefaultFilter matches an instance's cpu/memory request against a
// unit's allocatable capacity. A monopoly instance must match a
// unit's whole allocatable shape exactly (via the unit's bucket
// index); a default-policy instance is checked resource by resource
// and reports back how many instances of the same shape fit in the
// unit's available resources.
type DefaultFilter struct{}

func (f *DefaultFilter) Name() string { return DefaultFilterName }

func (f *DefaultFilter) Filter(ctx *PreAllocatedContext, req *types.ScheduleRequest, unit *types.ResourceUnit) Filtered {
	inst := req.Instance
	if inst.ScheduleOption.SchedulePolicyName == types.SchedulePolicyMonopoly {
		if err := f.monopolyFilter(ctx, inst, unit); err != nil {
			return Filtered{Err: err}
		}
		return Filtered{AvailableForRequest: 1}
	}
	return f.resourceFilter(ctx, inst, unit)
}

func (f *DefaultFilter) monopolyFilter(ctx *PreAllocatedContext, inst *types.InstanceInfo, unit *types.ResourceUnit) error {
	if _, claimed := ctx.PreAllocatedSelectedSet[unit.ID]; claimed {
		return schederr.New(schederr.CodeResourceNotEnough, "unit %q already claimed by another monopoly instance in this batch", unit.ID)
	}

	cpuReq, memReq, err := requestedCPUMem(inst.Resources)
	if err != nil {
		return err
	}
	cpuCap, memCap, err := requestedCPUMem(unit.Allocatable)
	if err != nil {
		return err
	}
	if !resourcealgebra.ScalarEqual(cpuReq, cpuCap) || !resourcealgebra.ScalarEqual(memReq, memCap) {
		return schederr.New(schederr.CodeResourceNotEnough, "unit %q allocatable shape does not match monopoly request precisely", unit.ID)
	}
	if resourcealgebra.ScalarEqual(cpuReq, 0) {
		return schederr.New(schederr.CodeInvalidArgument, "invalid cpu request: %v", cpuReq)
	}

	ratioKey, memKey, err := resourcealgebra.BucketShape(unit.Allocatable)
	if err != nil {
		return schederr.New(schederr.CodeResourceNotEnough, "unit %q has no bucket shape: %v", unit.ID, err)
	}
	byMem, ok := unit.BucketIndexes[ratioKey]
	if !ok {
		return schederr.New(schederr.CodeResourceNotEnough, "unit %q: no bucket for ratio %q", unit.ID, ratioKey)
	}
	bucket, ok := byMem[memKey]
	if !ok {
		return schederr.New(schederr.CodeResourceNotEnough, "unit %q: no bucket for mem %q", unit.ID, memKey)
	}
	if bucket.Total.MonopolyNum == 0 {
		return schederr.New(schederr.CodeResourceNotEnough, "unit %q: no monopoly-eligible capacity left", unit.ID)
	}
	return nil
}

func (f *DefaultFilter) resourceFilter(ctx *PreAllocatedContext, inst *types.InstanceInfo, unit *types.ResourceUnit) Filtered {
	available, err := ctx.Available(unit)
	if err != nil {
		return Filtered{Err: schederr.New(schederr.CodeResourceNotEnough, "unit %q: %v", unit.ID, err)}
	}
	if !resourcealgebra.IsValid(available) {
		return Filtered{Err: schederr.New(schederr.CodeResourceNotEnough, "unit %q: no resources available", unit.ID)}
	}

	maxAllocatable := math.MaxInt32
	for name, req := range inst.Resources {
		if isHeterogeneousName(name) {
			continue // heterogeneous resources are checked by DefaultHeterogeneousFilter
		}
		if req.Type == types.ValueTypeScalar && resourcealgebra.ScalarEqual(req.Scalar.Value, 0) {
			continue
		}
		cap, ok := unit.Capacity[name]
		if !ok {
			return Filtered{Err: schederr.New(schederr.CodeInvalidArgument, "%s: not found in unit %q capacity", name, unit.ID)}
		}
		ok2, err := resourcealgebra.ResourceLessEqual(req, cap)
		if err != nil || !ok2 {
			return Filtered{Err: schederr.New(schederr.CodeResourceNotEnough, "%s: out of capacity on unit %q", name, unit.ID)}
		}
		avail, ok := available[name]
		if !ok {
			return Filtered{Err: schederr.New(schederr.CodeInvalidArgument, "%s: not found in unit %q available", name, unit.ID)}
		}
		ok3, err := resourcealgebra.ResourceLessEqual(req, avail)
		if err != nil || !ok3 {
			return Filtered{Err: schederr.New(schederr.CodeResourceNotEnough, "%s: not enough on unit %q", name, unit.ID)}
		}
		if req.Type == types.ValueTypeScalar && avail.Type == types.ValueTypeScalar && req.Scalar.Value > 0 {
			canAllocate := int(avail.Scalar.Value / req.Scalar.Value)
			if canAllocate < maxAllocatable {
				maxAllocatable = canAllocate
			}
		}
	}
	if maxAllocatable == math.MaxInt32 || maxAllocatable <= 0 {
		maxAllocatable = 1
	}
	return Filtered{AvailableForRequest: maxAllocatable}
}

func requestedCPUMem(rs types.Resources) (cpu, mem float64, err error) {
	cpuR, ok := rs[resourcealgebra.ResourceNameCPU]
	if !ok || cpuR.Type != types.ValueTypeScalar {
		return 0, 0, schederr.New(schederr.CodeInvalidArgument, "missing scalar cpu resource")
	}
	memR, ok := rs[resourcealgebra.ResourceNameMemory]
	if !ok || memR.Type != types.ValueTypeScalar {
		return 0, 0, schederr.New(schederr.CodeInvalidArgument, "missing scalar memory resource")
	}
	return cpuR.Scalar.Value, memR.Scalar.Value, nil
}
