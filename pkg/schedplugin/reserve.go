package schedplugin

import "github.com/cuemby/yuanrong-scheduler/pkg/types"

const DefaultReserveName = "DefaultReserve"

// DefaultReserve records a winning unit's tentative allocation into
// the batch-wide context: monopoly instances claim the unit outright,
// everything else accumulates into the unit's running Allocated total
// so the next request scored in the same batch sees accurate headroom.
type DefaultReserve struct{}

func (r *DefaultReserve) Name() string { return DefaultReserveName }

func (r *DefaultReserve) Reserve(ctx *PreAllocatedContext, req *types.ScheduleRequest, unit *types.ResourceUnit, score NodeScore) error {
	inst := req.Instance
	if inst.ScheduleOption.SchedulePolicyName == types.SchedulePolicyMonopoly {
		ctx.PreAllocatedSelectedSet[unit.ID] = struct{}{}
		return nil
	}

	alloc := ctx.Allocated[unit.ID]
	if alloc.Resource == nil {
		alloc.Resource = make(types.Resources)
	}
	for name, req := range inst.Resources {
		if req.Type != types.ValueTypeScalar {
			continue
		}
		existing, ok := alloc.Resource[name]
		if !ok {
			alloc.Resource[name] = &types.Resource{Name: name, Type: types.ValueTypeScalar, Scalar: &types.Scalar{Value: req.Scalar.Value}}
			continue
		}
		existing.Scalar.Value += req.Scalar.Value
	}
	ctx.Allocated[unit.ID] = alloc
	return nil
}
