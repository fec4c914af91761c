package schedplugin

import (
	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

const (
	LabelAffinityFilterName        = "LabelAffinityFilter"
	LabelAffinityRelaxedFilterName = "LabelAffinityRelaxedFilter"
)

// LabelAffinityFilter matches an instance's ScheduleOption.Affinity
// keys against a unit's NodeLabels. In strict mode a unit missing any
// requested key/value is rejected outright; in relaxed mode a miss
// never rejects the unit and does not affect scoring either
// (DefaultScorer does not look at labels).
type LabelAffinityFilter struct {
	relaxed bool
}

// NewLabelAffinityFilter builds a LabelAffinityFilter; relaxed selects
// the best-effort variant.
func NewLabelAffinityFilter(relaxed bool) *LabelAffinityFilter {
	return &LabelAffinityFilter{relaxed: relaxed}
}

func (f *LabelAffinityFilter) Name() string {
	if f.relaxed {
		return LabelAffinityRelaxedFilterName
	}
	return LabelAffinityFilterName
}

func (f *LabelAffinityFilter) Filter(_ *PreAllocatedContext, req *types.ScheduleRequest, unit *types.ResourceUnit) Filtered {
	affinity := req.Instance.ScheduleOption.Affinity
	if len(affinity) == 0 {
		return Filtered{AvailableForRequest: 1}
	}
	for key, value := range affinity {
		if labelMatches(unit.NodeLabels, key, value) {
			continue
		}
		if f.relaxed {
			continue
		}
		return Filtered{Err: schederr.New(schederr.CodeUnitUnavailable, "unit %q: missing affinity %s=%s", unit.ID, key, value)}
	}
	return Filtered{AvailableForRequest: 1}
}

func labelMatches(labels map[string]types.LabelCounter, key, value string) bool {
	counter, ok := labels[key]
	if !ok {
		return false
	}
	if value == "" {
		return len(counter) > 0
	}
	count, ok := counter[value]
	return ok && count > 0
}
