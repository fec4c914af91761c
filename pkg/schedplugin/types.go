package schedplugin

import (
	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// AllocatedResource is one unit's tentative, not-yet-committed draw
// against its Allocatable, recorded by Reserve so that later requests
// scored within the same batch see an accurate remaining picture.
type AllocatedResource struct {
	Resource       types.Resources
	AllocatedCards map[string]*types.Vectors // cardType -> per-device reserved amounts
}

// PreAllocatedContext is the ScheduleContext built by Prefilter and
// threaded through Filter/Score/Reserve for one ScheduleRequest.
type PreAllocatedContext struct {
	// Allocated is unit id -> resources already spoken for within this
	// batch but not yet committed to the resource view.
	Allocated map[string]AllocatedResource
	// PreAllocatedSelectedSet holds unit ids a monopoly instance in
	// this batch has already claimed outright.
	PreAllocatedSelectedSet map[string]struct{}
}

// NewPreAllocatedContext returns an empty context ready for a fresh batch.
func NewPreAllocatedContext() *PreAllocatedContext {
	return &PreAllocatedContext{
		Allocated:               make(map[string]AllocatedResource),
		PreAllocatedSelectedSet: make(map[string]struct{}),
	}
}

// Available returns a unit's allocatable resources net of whatever
// this context has already tentatively spoken for.
func (c *PreAllocatedContext) Available(unit *types.ResourceUnit) (types.Resources, error) {
	alloc, ok := c.Allocated[unit.ID]
	if !ok {
		return unit.Allocatable, nil
	}
	return subResourcesChecked(unit.Allocatable, alloc.Resource)
}

// Filtered is the outcome of running one unit through a Filter plugin.
type Filtered struct {
	Err                 error
	NeedMoreInstances   bool
	AvailableForRequest int // how many instances of this shape fit in the unit's available resources
}

// Passed reports whether the unit survived this filter.
func (f Filtered) Passed() bool { return f.Err == nil }

// NodeScore is the outcome of running one unit through a Score plugin.
type NodeScore struct {
	Score int64 // 0-100; higher is more preferred

	// Heterogeneous-only fields, populated by DefaultHeterogeneousScorer.
	AllocatedVectors  map[string]*types.Vectors
	HeteroProductName string
	RealDeviceIDs     []int
}

// PrefilterPlugin builds shared per-request state before Filter/Score run.
type PrefilterPlugin interface {
	Name() string
	Prefilter(req *types.ScheduleRequest) (*PreAllocatedContext, error)
}

// FilterPlugin narrows the candidate set.
type FilterPlugin interface {
	Name() string
	Filter(ctx *PreAllocatedContext, req *types.ScheduleRequest, unit *types.ResourceUnit) Filtered
}

// ScorePlugin ranks surviving candidates.
type ScorePlugin interface {
	Name() string
	Score(ctx *PreAllocatedContext, req *types.ScheduleRequest, unit *types.ResourceUnit) NodeScore
}

// ReservePlugin commits a winner's tentative allocation into the
// shared context so the next request in the batch sees it.
type ReservePlugin interface {
	Name() string
	Reserve(ctx *PreAllocatedContext, req *types.ScheduleRequest, unit *types.ResourceUnit, score NodeScore) error
}

func subResourcesChecked(l, r types.Resources) (types.Resources, error) {
	out := make(types.Resources, len(l))
	for name, lv := range l {
		out[name] = lv
	}
	for name, rv := range r {
		lv, ok := out[name]
		if !ok {
			continue
		}
		diff, err := subOneScalarOnly(lv, rv)
		if err != nil {
			return nil, schederr.New(schederr.CodeInnerSystemError, "available: %v", err)
		}
		out[name] = diff
	}
	return out, nil
}

func subOneScalarOnly(l, r *types.Resource) (*types.Resource, error) {
	if l.Type != types.ValueTypeScalar {
		return l, nil
	}
	return &types.Resource{
		Name:   l.Name,
		Type:   l.Type,
		Scalar: &types.Scalar{Value: l.Scalar.Value - r.Scalar.Value, Limit: l.Scalar.Limit},
	}, nil
}
