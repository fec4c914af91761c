package resourceview

import (
	"time"

	"github.com/cuemby/yuanrong-scheduler/pkg/resourcealgebra"
	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// AddInstances places a batch of instances, deducting their resources
// from each owning unit's Allocatable and recording node-label
// affinity. Any AllocatedPromise channels are resolved once the whole
// batch has been processed, every one with the same aggregated error
// (nil if all succeeded). The batch is not atomic: instances that were
// applied stay applied even when others in the same batch fail.
func (v *ResourceView) AddInstances(insts map[string]*types.InstanceAllocatedInfo) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var errs []error
	applied := make([]*types.InstanceInfo, 0, len(insts))

	for instID, info := range insts {
		if err := v.addOneInstance(instID, info.Instance); err != nil {
			errs = append(errs, err)
			continue
		}
		applied = append(applied, info.Instance)
	}

	batchErr := schederr.Collect(errs, schederr.CodeResourceNotEnough)
	for _, info := range insts {
		if info.AllocatedPromise == nil {
			continue
		}
		info.AllocatedPromise <- batchErr
	}
	if batchErr != nil {
		return batchErr
	}

	for _, inst := range applied {
		v.cancelReuseTimer(inst.InstanceID)
	}
	return nil
}

func (v *ResourceView) addOneInstance(instID string, inst *types.InstanceInfo) error {
	if _, dup := v.instanceIndex[instID]; dup {
		return schederr.New(schederr.CodeInstanceDuplicated, "instance %q already in-flight", instID)
	}
	unit, ok := v.units[inst.UnitID]
	if !ok {
		return schederr.New(schederr.CodeNotFound, "instance %q: resource unit %q not found", instID, inst.UnitID)
	}
	ok2, err := resourcealgebra.ResourcesLessEqual(inst.Resources, unit.Allocatable)
	if err != nil {
		return schederr.New(schederr.CodeInvalidArgument, "instance %q: %v", instID, err)
	}
	if !ok2 {
		return schederr.New(schederr.CodeResourceNotEnough, "instance %q: unit %q cannot satisfy requested resources", instID, unit.ID)
	}
	newAllocatable, err := resourcealgebra.SubResources(unit.Allocatable, inst.Resources)
	if err != nil {
		return schederr.New(schederr.CodeInnerSystemError, "instance %q: %v", instID, err)
	}
	wasEmpty := len(unit.Instances) == 0
	unit.Allocatable = newAllocatable
	unit.Instances[instID] = inst
	v.instanceIndex[instID] = unit.ID
	if inst.RequestID != "" {
		v.requestIndex[inst.RequestID] = unit.ID
	}
	addLabels(unit, inst.Labels)
	applyAddInstanceBucket(unit, wasEmpty, inst)

	v.revision++
	unit.Revision = v.revision
	v.appendChange(types.ResourceUnitChange{
		Kind:           types.ChangeModification,
		ResourceUnitID: unit.ID,
		Revision:       v.revision,
		InstanceChanges: []types.InstanceChange{
			{Op: types.InstanceChangeAdd, Instance: inst},
		},
	})
	v.notify(unit.ID)
	return nil
}

// DeleteInstances releases a batch of instances back into their
// owning unit's Allocatable pool. When the view has tenant affinity
// enabled and isVirtualInstance is false, the release is delayed by
// TenantPodReuseWindow so a same-tenant follow-up request can reuse
// the slot without a full reschedule; isVirtualInstance is set for
// gang-scheduling rollbacks, which must free immediately since the
// instance never actually ran.
func (v *ResourceView) DeleteInstances(instIDs []string, isVirtualInstance bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var errs []error
	for _, instID := range instIDs {
		if err := v.deleteOneInstance(instID, isVirtualInstance); err != nil {
			errs = append(errs, err)
		}
	}
	return schederr.Collect(errs, schederr.CodeNotFound)
}

func (v *ResourceView) deleteOneInstance(instID string, isVirtualInstance bool) error {
	unitID, ok := v.instanceIndex[instID]
	if !ok {
		return schederr.New(schederr.CodeNotFound, "instance %q not found", instID)
	}
	unit, ok := v.units[unitID]
	if !ok {
		return schederr.New(schederr.CodeNotFound, "resource unit %q not found", unitID)
	}
	inst, ok := unit.Instances[instID]
	if !ok {
		return schederr.New(schederr.CodeNotFound, "instance %q not found on unit %q", instID, unitID)
	}

	release := func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		u, ok := v.units[unitID]
		if !ok {
			return
		}
		releaseOneInstance(u, instID, inst)
		delete(v.instanceIndex, instID)
		if inst.RequestID != "" {
			delete(v.requestIndex, inst.RequestID)
		}
		applyDeleteInstanceBucket(u, inst)

		v.revision++
		u.Revision = v.revision
		v.appendChange(types.ResourceUnitChange{
			Kind:           types.ChangeModification,
			ResourceUnitID: unitID,
			Revision:       v.revision,
			InstanceChanges: []types.InstanceChange{
				{Op: types.InstanceChangeDelete, Instance: inst},
			},
		})
		v.notify(unitID)
		delete(v.reuseTimers, instID)
	}

	if isVirtualInstance || !v.param.EnableTenantAffinity || v.param.TenantPodReuseWindow <= 0 {
		releaseOneInstance(unit, instID, inst)
		delete(v.instanceIndex, instID)
		if inst.RequestID != "" {
			delete(v.requestIndex, inst.RequestID)
		}
		applyDeleteInstanceBucket(unit, inst)
		v.revision++
		unit.Revision = v.revision
		v.appendChange(types.ResourceUnitChange{
			Kind:           types.ChangeModification,
			ResourceUnitID: unitID,
			Revision:       v.revision,
			InstanceChanges: []types.InstanceChange{
				{Op: types.InstanceChangeDelete, Instance: inst},
			},
		})
		v.notify(unitID)
		return nil
	}

	v.cancelReuseTimer(instID)
	v.reuseTimers[instID] = time.AfterFunc(v.param.TenantPodReuseWindow, release)
	return nil
}

// applyAddInstanceBucket applies the bucket-candidacy transition for a
// just-placed instance. Only the first instance landing on a
// previously-empty unit moves its bucket counters (spec §4.2): a
// default-policy instance trades the unit's monopoly candidacy for
// shared candidacy; a monopoly instance consumes the unit outright, so
// it only loses monopoly candidacy and never gains shared. Any
// instance placed on an already-occupied unit leaves the counters
// untouched.
func applyAddInstanceBucket(unit *types.ResourceUnit, wasEmpty bool, inst *types.InstanceInfo) {
	if !wasEmpty {
		return
	}
	if inst.ScheduleOption.SchedulePolicyName == types.SchedulePolicyMonopoly {
		mutateUnitBucketCount(unit, -1, 0)
		return
	}
	mutateUnitBucketCount(unit, -1, 1)
}

// applyDeleteInstanceBucket applies the bucket-candidacy transition for
// a just-removed instance. Only a unit left fully empty by this
// deletion moves its bucket counters. A monopoly instance's unit does
// not regain monopoly candidacy: the pod it occupied is assumed to be
// torn down, and re-granting candidacy would let a new instance land
// on the same pod before that happens (spec §4.2 DeleteInstances). A
// default-policy instance's unit regains monopoly candidacy and loses
// shared candidacy.
func applyDeleteInstanceBucket(unit *types.ResourceUnit, inst *types.InstanceInfo) {
	if len(unit.Instances) != 0 {
		return
	}
	if inst.ScheduleOption.SchedulePolicyName == types.SchedulePolicyMonopoly {
		return
	}
	mutateUnitBucketCount(unit, 1, -1)
}

// releaseOneInstance removes inst from unit.Instances and credits its
// resources back. A monopoly instance's unit is restored to full
// Capacity rather than additively credited: a monopoly placement had
// already driven Allocatable to (effectively) zero regardless of the
// exact requested amount, so only a capacity reset undoes it exactly.
func releaseOneInstance(unit *types.ResourceUnit, instID string, inst *types.InstanceInfo) {
	delete(unit.Instances, instID)
	if inst.ScheduleOption.SchedulePolicyName == types.SchedulePolicyMonopoly {
		unit.Allocatable = unit.Capacity
	} else if merged, err := resourcealgebra.AddResources(unit.Allocatable, inst.Resources); err == nil {
		unit.Allocatable = merged
	}
	subLabels(unit, inst.Labels)
}

func addLabels(unit *types.ResourceUnit, labels map[string]string) {
	if unit.NodeLabels == nil {
		unit.NodeLabels = make(map[string]types.LabelCounter)
	}
	for k, v := range labels {
		resourcealgebra.AddLabelCounter(unit.NodeLabels, k, v)
	}
}

func subLabels(unit *types.ResourceUnit, labels map[string]string) {
	if unit.NodeLabels == nil {
		return
	}
	for k, v := range labels {
		resourcealgebra.SubLabelCounter(unit.NodeLabels, k, v)
	}
}
