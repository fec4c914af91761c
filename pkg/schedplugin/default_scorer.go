package schedplugin

import (
	"github.com/cuemby/yuanrong-scheduler/pkg/resourcealgebra"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

const DefaultScorerName = "DefaultScorer"

// maxScore is the ceiling of the 0-100 scoring range every scorer
// reports into; plugins are free to combine at different weights, but
// they all report on this same scale.
const maxScore int64 = 100

// DefaultScorer prefers units with a larger share of their cpu+memory
// capacity still available (measured before the request is placed),
// so load spreads across the fleet instead of packing the first unit
// that fits.
type DefaultScorer struct{}

func (s *DefaultScorer) Name() string { return DefaultScorerName }

func (s *DefaultScorer) Score(ctx *PreAllocatedContext, req *types.ScheduleRequest, unit *types.ResourceUnit) NodeScore {
	available, err := ctx.Available(unit)
	if err != nil {
		return NodeScore{Score: 0}
	}
	cpuCap, memCap, err := requestedCPUMem(unit.Capacity)
	if err != nil || resourcealgebra.ScalarEqual(cpuCap, 0) || resourcealgebra.ScalarEqual(memCap, 0) {
		return NodeScore{Score: 0}
	}
	cpuAvail, memAvail, err := requestedCPUMem(available)
	if err != nil {
		return NodeScore{Score: 0}
	}

	cpuRatio := cpuAvail / cpuCap
	memRatio := memAvail / memCap
	ratio := (cpuRatio + memRatio) / 2
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return NodeScore{Score: int64(ratio * float64(maxScore))}
}
