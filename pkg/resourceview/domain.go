package resourceview

import (
	"github.com/cuemby/yuanrong-scheduler/pkg/resourcealgebra"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// UpdateResourceUnitDelta applies a change window reported by one
// local process onto this (domain-side) view's replicated copy of
// that local. The local's own top-level units are kept in Fragment
// under a synthetic root unit keyed by LocalID; GetResourceUnit
// continues to resolve by leaf unit id.
func (v *ResourceView) UpdateResourceUnitDelta(changes *types.ResourceUnitChanges) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	root, ok := v.units[changes.LocalID]
	if !ok {
		root = &types.ResourceUnit{
			ID:           changes.LocalID,
			ViewInitTime: changes.LocalViewInitTime,
			Fragment:     make(map[string]*types.ResourceUnit),
			Instances:    make(map[string]*types.InstanceInfo),
			Status:       types.UnitStatusNormal,
		}
		v.units[changes.LocalID] = root
	}
	if root.ViewInitTime != "" && changes.LocalViewInitTime != "" && root.ViewInitTime != changes.LocalViewInitTime {
		// the local restarted since our last update; its revision
		// numbering reset, so the previously replicated fragment set
		// is stale and must be rebuilt from this window forward.
		v.dropFragmentIndexes(root)
		root.Fragment = make(map[string]*types.ResourceUnit)
		root.ViewInitTime = changes.LocalViewInitTime
	}

	for _, change := range changes.Changes {
		v.applyRemoteChange(root, change)
	}
	recomputeAggregate(root)
	v.revision++
	root.Revision = v.revision
	return nil
}

// recomputeAggregate sums root's Fragment leaves into root's own
// Capacity/Allocatable/ActualUse, so a domain-tier root unit is a
// valid scheduling candidate in its own right: schedqueue's Decide
// callback (pkg/driver) filters and scores whatever ListUnits
// returns, and at the domain tier that is one root per registered
// local, keyed exactly as pkg/underlayer.Manager keys its locals.
func recomputeAggregate(root *types.ResourceUnit) {
	capSum, allocSum, actualSum := types.Resources{}, types.Resources{}, types.Resources{}
	for _, leaf := range root.Fragment {
		capSum = mustAddResources(capSum, leaf.Capacity)
		allocSum = mustAddResources(allocSum, leaf.Allocatable)
		actualSum = mustAddResources(actualSum, leaf.ActualUse)
	}
	root.Capacity = capSum
	root.Allocatable = allocSum
	root.ActualUse = actualSum
}

func mustAddResources(l, r types.Resources) types.Resources {
	sum, err := resourcealgebra.AddResources(l, r)
	if err != nil {
		// Resource-name collisions with mismatched types across a
		// local's agents would indicate a misconfigured fleet; keep
		// the running total rather than losing the whole aggregate.
		return l
	}
	return sum
}

func (v *ResourceView) dropFragmentIndexes(root *types.ResourceUnit) {
	for _, unit := range root.Fragment {
		for instID, inst := range unit.Instances {
			delete(v.instanceIndex, instID)
			if inst.RequestID != "" {
				delete(v.requestIndex, inst.RequestID)
			}
		}
	}
}

func (v *ResourceView) applyRemoteChange(root *types.ResourceUnit, change types.ResourceUnitChange) {
	switch change.Kind {
	case types.ChangeAddition:
		if change.Unit == nil {
			return
		}
		root.Fragment[change.ResourceUnitID] = change.Unit
		v.reindexInstances(change.Unit)

	case types.ChangeDeletion:
		if unit, ok := root.Fragment[change.ResourceUnitID]; ok {
			for instID, inst := range unit.Instances {
				delete(v.instanceIndex, instID)
				if inst.RequestID != "" {
					delete(v.requestIndex, inst.RequestID)
				}
			}
		}
		delete(root.Fragment, change.ResourceUnitID)

	case types.ChangeModification:
		unit, ok := root.Fragment[change.ResourceUnitID]
		if !ok {
			return
		}
		if rc := change.ResourceChange; rc != nil {
			if rc.Capacity != nil {
				unit.Capacity = rc.Capacity
			}
			if rc.Allocatable != nil {
				unit.Allocatable = rc.Allocatable
			}
			if rc.ActualUse != nil {
				unit.ActualUse = rc.ActualUse
			}
		}
		if change.StatusChange != nil {
			unit.Status = *change.StatusChange
		}
		for _, ic := range change.InstanceChanges {
			applyRemoteInstanceChange(v, unit, ic)
		}
		initBucketCandidacy(unit)
		unit.Revision = change.Revision
	}
}

func applyRemoteInstanceChange(v *ResourceView, unit *types.ResourceUnit, ic types.InstanceChange) {
	if ic.Instance == nil {
		return
	}
	switch ic.Op {
	case types.InstanceChangeAdd:
		unit.Instances[ic.Instance.InstanceID] = ic.Instance
		v.instanceIndex[ic.Instance.InstanceID] = unit.ID
		if ic.Instance.RequestID != "" {
			v.requestIndex[ic.Instance.RequestID] = unit.ID
		}
	case types.InstanceChangeDelete:
		delete(unit.Instances, ic.Instance.InstanceID)
		delete(v.instanceIndex, ic.Instance.InstanceID)
		if ic.Instance.RequestID != "" {
			delete(v.requestIndex, ic.Instance.RequestID)
		}
	}
}
