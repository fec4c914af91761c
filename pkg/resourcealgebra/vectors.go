package resourcealgebra

import (
	"fmt"

	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// AddVectors merges two Vectors: categories present in only one side
// pass through unchanged; categories present in both have their
// per-uuid arrays summed elementwise, and uuids present only on the
// right side are appended to the left side's category.
func AddVectors(l, r *types.Vectors) (*types.Vectors, error) {
	out := cloneVectors(l)
	for cat, rSlot := range r.Categories {
		lSlot, ok := out.Categories[cat]
		if !ok {
			out.Categories[cat] = cloneSlot(rSlot)
			continue
		}
		merged, err := addSlots(lSlot, rSlot)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", cat, err)
		}
		out.Categories[cat] = merged
	}
	return out, nil
}

// SubVectors subtracts r from l. A category is dropped entirely if the
// right-hand slot has Expired set; otherwise it is subtracted
// pointwise and must share array lengths per uuid with the left side.
// Devices (uuids) present only on the right-hand side are skipped, the
// same way categories absent on the left are.
func SubVectors(l, r *types.Vectors) (*types.Vectors, error) {
	out := cloneVectors(l)
	for cat, rSlot := range r.Categories {
		lSlot, ok := out.Categories[cat]
		if !ok {
			continue
		}
		if rSlot.Expired {
			delete(out.Categories, cat)
			continue
		}
		subbed, err := subSlots(lSlot, rSlot)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", cat, err)
		}
		out.Categories[cat] = subbed
	}
	return out, nil
}

func addSlots(l, r *types.VectorSlot) (*types.VectorSlot, error) {
	out := cloneSlot(l)
	for uuid, rvals := range r.Values {
		lvals, ok := out.Values[uuid]
		if !ok {
			out.Values[uuid] = append([]float64(nil), rvals...)
			continue
		}
		if len(lvals) != len(rvals) {
			return nil, fmt.Errorf("device %q: length mismatch %d vs %d", uuid, len(lvals), len(rvals))
		}
		summed := make([]float64, len(lvals))
		for i := range lvals {
			summed[i] = AddScalarValue(lvals[i], rvals[i])
		}
		out.Values[uuid] = summed
	}
	return out, nil
}

func subSlots(l, r *types.VectorSlot) (*types.VectorSlot, error) {
	out := cloneSlot(l)
	for uuid, rvals := range r.Values {
		lvals, ok := out.Values[uuid]
		if !ok {
			continue
		}
		if len(lvals) != len(rvals) {
			return nil, fmt.Errorf("device %q: length mismatch %d vs %d", uuid, len(lvals), len(rvals))
		}
		subbed := make([]float64, len(lvals))
		for i := range lvals {
			subbed[i] = SubScalarValue(lvals[i], rvals[i])
		}
		out.Values[uuid] = subbed
	}
	return out, nil
}

func cloneVectors(v *types.Vectors) *types.Vectors {
	out := &types.Vectors{Categories: make(map[string]*types.VectorSlot, len(v.Categories))}
	for cat, slot := range v.Categories {
		out.Categories[cat] = cloneSlot(slot)
	}
	return out
}

func cloneSlot(s *types.VectorSlot) *types.VectorSlot {
	out := &types.VectorSlot{Values: make(map[string][]float64, len(s.Values)), Expired: s.Expired}
	for uuid, vals := range s.Values {
		out.Values[uuid] = append([]float64(nil), vals...)
	}
	return out
}
