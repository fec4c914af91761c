package resourcealgebra

import (
	"fmt"

	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// AddResource adds two same-named Resources of matching Type.
func AddResource(l, r *types.Resource) (*types.Resource, error) {
	if err := checkSameType(l, r); err != nil {
		return nil, err
	}
	out := &types.Resource{Name: l.Name, Type: l.Type}
	switch l.Type {
	case types.ValueTypeScalar:
		out.Scalar = &types.Scalar{
			Value: AddScalarValue(l.Scalar.Value, r.Scalar.Value),
			Limit: l.Scalar.Limit,
		}
	case types.ValueTypeVectors:
		v, err := AddVectors(l.Vectors, r.Vectors)
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", l.Name, err)
		}
		out.Vectors = v
	default:
		return nil, fmt.Errorf("resource %q: unknown value type %q", l.Name, l.Type)
	}
	return out, nil
}

// SubResource subtracts r from l.
func SubResource(l, r *types.Resource) (*types.Resource, error) {
	if err := checkSameType(l, r); err != nil {
		return nil, err
	}
	out := &types.Resource{Name: l.Name, Type: l.Type}
	switch l.Type {
	case types.ValueTypeScalar:
		out.Scalar = &types.Scalar{
			Value: SubScalarValue(l.Scalar.Value, r.Scalar.Value),
			Limit: l.Scalar.Limit,
		}
	case types.ValueTypeVectors:
		v, err := SubVectors(l.Vectors, r.Vectors)
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", l.Name, err)
		}
		out.Vectors = v
	default:
		return nil, fmt.Errorf("resource %q: unknown value type %q", l.Name, l.Type)
	}
	return out, nil
}

// ResourceLessEqual reports whether l <= r for a scalar resource.
// Vectors have no total order, so a request naming a vector resource
// is satisfied by feasibility filtering, not comparison here; calling
// this on Vectors-typed resources reports true and lets the caller's
// filter plugin do the real check.
func ResourceLessEqual(l, r *types.Resource) (bool, error) {
	if err := checkSameType(l, r); err != nil {
		return false, err
	}
	if l.Type == types.ValueTypeVectors {
		return true, nil
	}
	return ScalarLessEqual(l.Scalar.Value, r.Scalar.Value), nil
}

// ResourceEqual reports whether l and r carry the same name, type and value.
func ResourceEqual(l, r *types.Resource) bool {
	if l.Name != r.Name || l.Type != r.Type {
		return false
	}
	switch l.Type {
	case types.ValueTypeScalar:
		return ScalarEqual(l.Scalar.Value, r.Scalar.Value) && ScalarEqual(l.Scalar.Limit, r.Scalar.Limit)
	case types.ValueTypeVectors:
		return vectorsEqual(l.Vectors, r.Vectors)
	default:
		return false
	}
}

func vectorsEqual(l, r *types.Vectors) bool {
	if len(l.Categories) != len(r.Categories) {
		return false
	}
	for cat, lSlot := range l.Categories {
		rSlot, ok := r.Categories[cat]
		if !ok || lSlot.Expired != rSlot.Expired || len(lSlot.Values) != len(rSlot.Values) {
			return false
		}
		for uuid, lvals := range lSlot.Values {
			rvals, ok := rSlot.Values[uuid]
			if !ok || len(lvals) != len(rvals) {
				return false
			}
			for i := range lvals {
				if !ScalarEqual(lvals[i], rvals[i]) {
					return false
				}
			}
		}
	}
	return true
}

func checkSameType(l, r *types.Resource) error {
	if l.Name != r.Name {
		return fmt.Errorf("resource name mismatch: %q vs %q", l.Name, r.Name)
	}
	if l.Type != r.Type {
		return fmt.Errorf("resource %q: type mismatch %q vs %q", l.Name, l.Type, r.Type)
	}
	return nil
}

// AddResources adds r into l, resource by resource. A resource present
// in only one side passes through unchanged, matching the union
// semantics of a ResourceUnit absorbing a delta.
func AddResources(l, r types.Resources) (types.Resources, error) {
	out := cloneResources(l)
	for name, rv := range r {
		lv, ok := out[name]
		if !ok {
			out[name] = rv
			continue
		}
		sum, err := AddResource(lv, rv)
		if err != nil {
			return nil, err
		}
		out[name] = sum
	}
	return out, nil
}

// SubResources subtracts r from l, resource by resource. A resource
// named only on the right side is ignored: there is nothing on the
// left to subtract it from.
func SubResources(l, r types.Resources) (types.Resources, error) {
	out := cloneResources(l)
	for name, rv := range r {
		lv, ok := out[name]
		if !ok {
			continue
		}
		diff, err := SubResource(lv, rv)
		if err != nil {
			return nil, err
		}
		out[name] = diff
	}
	return out, nil
}

// ResourcesLessEqual reports whether l <= r. The comparison is
// asymmetric: only resource names present in l are considered, so a
// request naming a subset of a unit's resources can still be
// satisfied by it. A name present in l but missing from r fails the
// comparison.
func ResourcesLessEqual(l, r types.Resources) (bool, error) {
	for name, lv := range l {
		rv, ok := r[name]
		if !ok {
			return false, nil
		}
		ok, err := ResourceLessEqual(lv, rv)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// ResourcesEqual reports whether l and r carry exactly the same
// resource names and values.
func ResourcesEqual(l, r types.Resources) bool {
	if len(l) != len(r) {
		return false
	}
	for name, lv := range l {
		rv, ok := r[name]
		if !ok || !ResourceEqual(lv, rv) {
			return false
		}
	}
	return true
}

// IsValid reports whether every entry is named, typed and carries a
// non-negative value: Scalar.Value >= 0 for scalars, all array
// entries >= 0 for vectors.
func IsValid(rs types.Resources) bool {
	if len(rs) == 0 {
		return false
	}
	for name, r := range rs {
		if name == "" || r == nil {
			return false
		}
		switch r.Type {
		case types.ValueTypeScalar:
			if r.Scalar == nil || r.Scalar.Value < 0 {
				return false
			}
		case types.ValueTypeVectors:
			if r.Vectors == nil {
				return false
			}
			for _, slot := range r.Vectors.Categories {
				for _, vals := range slot.Values {
					for _, v := range vals {
						if v < 0 {
							return false
						}
					}
				}
			}
		default:
			return false
		}
	}
	return true
}

func cloneResources(rs types.Resources) types.Resources {
	out := make(types.Resources, len(rs))
	for name, r := range rs {
		out[name] = r
	}
	return out
}
