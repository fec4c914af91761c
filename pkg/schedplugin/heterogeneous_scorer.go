package schedplugin

import (
	"sort"

	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

const DefaultHeterogeneousScorerName = "DefaultHeterogeneousScorer"

// DefaultHeterogeneousScorer scores a unit's accelerator devices for
// an instance's memory/latency/stream-count requests and reports the
// single best device via RealDeviceIDs; instances that only ask for a
// card count (no specific device metric) score flat maxScore since any
// device satisfying the count is equally good. An instance with no
// heterogeneous request at all scores maxScore only on units that
// themselves carry no heterogeneous resources, so heterogeneous
// capacity is reserved for requests that actually need it.
type DefaultHeterogeneousScorer struct{}

func (s *DefaultHeterogeneousScorer) Name() string { return DefaultHeterogeneousScorerName }

func (s *DefaultHeterogeneousScorer) Score(ctx *PreAllocatedContext, req *types.ScheduleRequest, unit *types.ResourceUnit) NodeScore {
	inst := req.Instance
	available, err := ctx.Available(unit)
	if err != nil {
		return NodeScore{}
	}

	if !hasHeterogeneousResource(inst.Resources) {
		if hasHeterogeneousResource(available) {
			return NodeScore{}
		}
		return NodeScore{Score: maxScore}
	}

	if cardNumName := findCardNumName(inst.Resources); cardNumName != "" {
		return NodeScore{Score: maxScore, HeteroProductName: cardTypeOf(cardNumName, available)}
	}

	var hbm, latency, stream []float64
	cardType := ""
	for name, req := range inst.Resources {
		vendorProduct, kind, ok := splitHeteroName(name)
		if !ok {
			continue
		}
		ct := resolveCardType(available, vendorProduct)
		if ct == "" {
			continue
		}
		cardType = ct
		switch kind {
		case HeteroKindMemory:
			hbm = hbmScores(available, cardType, req.Scalar.Value)
		case HeteroKindLatency:
			latency = latencyScores(available, cardType)
		case HeteroKindStream:
			stream = streamScores(available, cardType, req.Scalar.Value)
		}
	}
	if len(hbm) == 0 || len(hbm) != len(latency) || len(hbm) != len(stream) {
		return NodeScore{}
	}

	bestIdx, bestScore := 0, float64(-1)
	for i := range hbm {
		if hbm[i] < 0 || latency[i] < 0 || stream[i] < 0 {
			continue
		}
		combined := (hbm[i] + latency[i] + stream[i]) / 3
		if combined > bestScore {
			bestScore = combined
			bestIdx = i
		}
	}
	if bestScore < 0 {
		return NodeScore{}
	}
	return NodeScore{
		Score:             int64(bestScore),
		HeteroProductName: cardType,
		RealDeviceIDs:     []int{bestIdx},
	}
}

func cardTypeOf(cardNumName string, available types.Resources) string {
	vendorProduct, _, _ := splitHeteroName(cardNumName)
	return resolveCardType(available, vendorProduct)
}

// flattenSlot walks a vector slot's devices in uuid order, so the
// hbm, latency and stream slices line up index by index.
func flattenSlot(slot *types.VectorSlot) []float64 {
	uuids := make([]string, 0, len(slot.Values))
	for uuid := range slot.Values {
		uuids = append(uuids, uuid)
	}
	sort.Strings(uuids)
	var out []float64
	for _, uuid := range uuids {
		out = append(out, slot.Values[uuid]...)
	}
	return out
}

func hbmScores(available types.Resources, cardType string, reqVal float64) []float64 {
	slot, ok := cardCategory(available, cardType, HeteroKindMemory)
	if !ok {
		return nil
	}
	vals := flattenSlot(slot)
	out := make([]float64, len(vals))
	for i, avail := range vals {
		if reqVal > avail {
			out[i] = -1
			continue
		}
		out[i] = (1 - reqVal/avail) * float64(maxScore)
	}
	return out
}

func latencyScores(available types.Resources, cardType string) []float64 {
	slot, ok := cardCategory(available, cardType, HeteroKindLatency)
	if !ok {
		return nil
	}
	vals := flattenSlot(slot)
	if len(vals) == 0 {
		return nil
	}
	maxLatency := vals[0]
	for _, v := range vals {
		if v > maxLatency {
			maxLatency = v
		}
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = ((maxLatency - v) / (maxLatency + 1e-8)) * float64(maxScore)
	}
	return out
}

func streamScores(available types.Resources, cardType string, reqVal float64) []float64 {
	slot, ok := cardCategory(available, cardType, HeteroKindStream)
	if !ok {
		return nil
	}
	vals := flattenSlot(slot)
	if len(vals) == 0 {
		return nil
	}
	maxStream := vals[0]
	for _, v := range vals {
		if v > maxStream {
			maxStream = v
		}
	}
	out := make([]float64, len(vals))
	if maxStream <= 1e-15 {
		return out
	}
	for i, v := range vals {
		if reqVal > v {
			out[i] = -1
			continue
		}
		out[i] = (v / maxStream) * float64(maxScore)
	}
	return out
}
