package schedplugin

import (
	"math"

	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

const DefaultHeterogeneousFilterName = "DefaultHeterogeneousFilter"

// minCardFraction is the smallest fractional device share a request
// may ask for; below it the request is nonsensical rather than just
// small.
const minCardFraction = 0.0001

// DefaultHeterogeneousFilter checks an instance's VENDOR/PRODUCT/KIND
// requests (accelerator memory, latency, stream-count, card count)
// against a unit's per-device vector resources. Instances with no
// heterogeneous request pass trivially; this plugin never judges
// cpu/memory, which is DefaultFilter's job.
type DefaultHeterogeneousFilter struct{}

func (f *DefaultHeterogeneousFilter) Name() string { return DefaultHeterogeneousFilterName }

func (f *DefaultHeterogeneousFilter) Filter(ctx *PreAllocatedContext, req *types.ScheduleRequest, unit *types.ResourceUnit) Filtered {
	inst := req.Instance
	if !hasHeterogeneousResource(inst.Resources) {
		return Filtered{AvailableForRequest: 1}
	}

	available, err := ctx.Available(unit)
	if err != nil {
		return Filtered{Err: schederr.New(schederr.CodeResourceNotEnough, "unit %q: %v", unit.ID, err)}
	}

	if err := checkCardResources(inst, available); err != nil {
		return Filtered{Err: err}
	}
	if err := checkCardCount(inst, unit, available); err != nil {
		return Filtered{Err: err}
	}
	return Filtered{AvailableForRequest: 1}
}

func checkCardResources(inst *types.InstanceInfo, available types.Resources) error {
	for name, req := range inst.Resources {
		vendorProduct, kind, ok := splitHeteroName(name)
		if !ok || kind == HeteroKindLatency || kind == HeteroKindCount {
			continue
		}
		if req.Type == types.ValueTypeScalar && req.Scalar.Value <= 0 {
			return schederr.New(schederr.CodeInvalidArgument, "invalid %s value", kind)
		}
		cardType := resolveCardType(available, vendorProduct)
		if cardType == "" {
			return schederr.New(schederr.CodeUnitUnavailable, "card type matching %q not found", vendorProduct)
		}
		slot, ok := cardCategory(available, cardType, kind)
		if !ok {
			return schederr.New(schederr.CodeUnitUnavailable, "%s: not found", kind)
		}
		if !anyDeviceSatisfies(slot, req.Scalar.Value) {
			return schederr.New(schederr.CodeUnitUnavailable, "%s: not enough", kind)
		}
	}
	return nil
}

func anyDeviceSatisfies(slot *types.VectorSlot, reqVal float64) bool {
	for _, vals := range slot.Values {
		for _, v := range vals {
			if reqVal <= v {
				return true
			}
		}
	}
	return false
}

func checkCardCount(inst *types.InstanceInfo, unit *types.ResourceUnit, available types.Resources) error {
	cardNumName := findCardNumName(inst.Resources)
	if cardNumName == "" {
		return nil
	}
	reqVal := inst.Resources[cardNumName].Scalar.Value
	if reqVal < minCardFraction {
		return schederr.New(schederr.CodeInvalidArgument, "card count request %v below minimum %v", reqVal, minCardFraction)
	}

	vendorProduct, _, _ := splitHeteroName(cardNumName)
	cardType := resolveCardType(available, vendorProduct)
	if cardType == "" {
		return schederr.New(schederr.CodeUnitUnavailable, "card type matching %q not found", vendorProduct)
	}

	availSlot, ok := cardCategory(available, cardType, HeteroKindMemory)
	if !ok {
		return schederr.New(schederr.CodeUnitUnavailable, "hbm: not found")
	}
	capSlot, ok := cardCategory(unit.Capacity, cardType, HeteroKindMemory)
	if !ok {
		return schederr.New(schederr.CodeUnitUnavailable, "hbm: not found in capacity")
	}

	perDeviceFraction := reqVal
	if reqVal >= 1-epsilonTolerance {
		perDeviceFraction = 1
	}
	cnt := countAvailableCards(availSlot, capSlot, perDeviceFraction)

	reqNum := int(math.Ceil(reqVal))
	if reqVal < 1-epsilonTolerance {
		reqNum = 1
	}
	if cnt < reqNum {
		return schederr.New(schederr.CodeUnitUnavailable, "card count: not enough (need %d, have %d)", reqNum, cnt)
	}
	return nil
}

func findCardNumName(rs types.Resources) string {
	for name := range rs {
		if _, kind, ok := splitHeteroName(name); ok && kind == HeteroKindCount {
			return name
		}
	}
	return ""
}

const epsilonTolerance = 1e-8

// countAvailableCards counts how many devices have at least
// fraction*capacity memory still available.
func countAvailableCards(avail, cap *types.VectorSlot, fraction float64) int {
	cnt := 0
	for uuid, availVals := range avail.Values {
		capVals, ok := cap.Values[uuid]
		if !ok || len(capVals) != len(availVals) {
			continue
		}
		for i := range availVals {
			required := capVals[i] * fraction
			if capVals[i] > epsilonTolerance && availVals[i] >= required-epsilonTolerance {
				cnt++
			}
		}
	}
	return cnt
}
