package driver

import (
	"github.com/cuemby/yuanrong-scheduler/pkg/resourceview"
	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/schedplugin"
	"github.com/cuemby/yuanrong-scheduler/pkg/schedqueue"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// buildDecide closes over view and fw to give a schedqueue.Queue its
// Decide callback: run every known unit through the plugin framework,
// take the best-scoring survivor, commit the instance against the
// view, and hand back the winning unit id and score. This is the
// piece the queue's own doc comment describes as supplied by
// "the driver that wires a Queue to a resourceview + schedplugin
// Framework pair" -- the queue and the framework are both
// resource-state-free on their own.
func buildDecide(view *resourceview.ResourceView, fw *schedplugin.Framework) schedqueue.Decide {
	return func(req *types.ScheduleRequest) (schedqueue.ScheduleResult, error) {
		units := view.ListUnits()
		if len(units) == 0 {
			return schedqueue.ScheduleResult{}, schederr.New(schederr.CodeResourceNotEnough,
				"request %s: no resource units registered", req.RequestID)
		}

		pctx := schedplugin.NewPreAllocatedContext()
		candidates, err := fw.RunBatch(pctx, req, units)
		if err != nil {
			return schedqueue.ScheduleResult{}, err
		}

		best := candidates[0]
		if fw.Reserve != nil {
			if err := fw.Reserve.Reserve(pctx, req, best.Unit, best.Score); err != nil {
				return schedqueue.ScheduleResult{}, schederr.New(schederr.CodeResourceNotEnough,
					"request %s: reserve on unit %s: %v", req.RequestID, best.Unit.ID, err)
			}
		}

		inst := req.Instance
		inst.UnitID = best.Unit.ID
		inst.SchedulerChain = append(append([]string(nil), inst.SchedulerChain...), best.Unit.ID)

		if err := view.AddInstances(map[string]*types.InstanceAllocatedInfo{
			inst.InstanceID: {Instance: inst},
		}); err != nil {
			return schedqueue.ScheduleResult{}, schederr.New(schederr.CodeResourceNotEnough,
				"request %s: commit placement on unit %s: %v", req.RequestID, best.Unit.ID, err)
		}

		return schedqueue.ScheduleResult{UnitID: best.Unit.ID, Score: best.Score.Score}, nil
	}
}
