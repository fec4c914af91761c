package resourceview

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/yuanrong-scheduler/pkg/log"
	"github.com/cuemby/yuanrong-scheduler/pkg/resourcealgebra"
	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// UpdateType selects which half of a ResourceUnit UpdateResourceUnit replaces.
type UpdateType int

const (
	UpdateStatic UpdateType = iota // replaces Capacity/Allocatable
	UpdateActual                   // replaces ActualUse
)

// defaultMaxChangeLog bounds the in-memory change window; once it is
// exceeded the oldest entries are dropped, whether or not any
// consumer's watermark has moved past them.
const defaultMaxChangeLog = 4096

// defaultTenantPodReuseWindow is how long a just-vacated instance slot
// stays reserved for the same tenant before its resources are folded
// back into the general allocatable pool.
const defaultTenantPodReuseWindow = 10 * time.Second

// Param configures a ResourceView at construction time.
type Param struct {
	IsLocal              bool
	EnableTenantAffinity bool
	TenantPodReuseWindow time.Duration
}

// ResourceView owns a tree of ResourceUnits for one process: a local
// proxy's agents, or a domain scheduler's absorbed locals. All
// exported methods take the internal mutex; callers do not need to
// synchronize among themselves, but a ResourceView is still meant to
// be driven by one logical owner at a time.
type ResourceView struct {
	mu sync.RWMutex

	id    string
	param Param

	units         map[string]*types.ResourceUnit // top-level unit id -> unit
	instanceIndex map[string]string              // instance id -> owning unit id
	requestIndex  map[string]string               // request id -> owning unit id

	revision         int64
	lastReportedRev  int64
	changeLog        []types.ResourceUnitChange

	reuseTimers map[string]*time.Timer // instance id -> pending recycle timer

	updateHandlers []ResourceUpdateHandler

	logger zerolog.Logger
}

// ResourceUpdateHandler is invoked after any mutation that changes a
// unit's resources, instance set, or status.
type ResourceUpdateHandler func(unitID string)

// New constructs an empty ResourceView.
func New(id string, param Param) *ResourceView {
	if param.TenantPodReuseWindow == 0 {
		param.TenantPodReuseWindow = defaultTenantPodReuseWindow
	}
	return &ResourceView{
		id:            id,
		param:         param,
		units:         make(map[string]*types.ResourceUnit),
		instanceIndex: make(map[string]string),
		requestIndex:  make(map[string]string),
		reuseTimers:   make(map[string]*time.Timer),
		logger:        log.WithComponent("resourceview").With().Str("view_id", id).Logger(),
	}
}

// AddResourceUnit registers a new unit in the view.
func (v *ResourceView) AddResourceUnit(unit *types.ResourceUnit) error {
	return v.addResourceUnit(unit)
}

// AddResourceUnitWithUrl registers a new unit and records the
// transport address it was reached at on Alias, so the underlayer
// manager can recover the address after a process restart without a
// separate address table.
func (v *ResourceView) AddResourceUnitWithUrl(unit *types.ResourceUnit, url string) error {
	unit.Alias = url
	return v.addResourceUnit(unit)
}

func (v *ResourceView) addResourceUnit(unit *types.ResourceUnit) error {
	if unit == nil || unit.ID == "" {
		return schederr.New(schederr.CodeInvalidArgument, "resource unit must have a non-empty id")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.units[unit.ID]; exists {
		return schederr.New(schederr.CodeAlreadyExists, "resource unit %q already exists", unit.ID)
	}
	if unit.Instances == nil {
		unit.Instances = make(map[string]*types.InstanceInfo)
	}
	if unit.Status == "" {
		unit.Status = types.UnitStatusNormal
	}
	v.revision++
	unit.Revision = v.revision
	v.units[unit.ID] = unit
	v.reindexInstances(unit)
	initBucketCandidacy(unit)

	v.appendChange(types.ResourceUnitChange{
		Kind:           types.ChangeAddition,
		ResourceUnitID: unit.ID,
		Revision:       v.revision,
		Unit:           unit,
	})
	v.notify(unit.ID)
	v.logger.Debug().Str("unit_id", unit.ID).Msg("resource unit added")
	return nil
}

func (v *ResourceView) reindexInstances(unit *types.ResourceUnit) {
	for instID, inst := range unit.Instances {
		v.instanceIndex[instID] = unit.ID
		if inst.RequestID != "" {
			v.requestIndex[inst.RequestID] = unit.ID
		}
	}
}

// DeleteResourceUnit removes a unit and every instance index entry it owned.
func (v *ResourceView) DeleteResourceUnit(unitID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	unit, ok := v.units[unitID]
	if !ok {
		return schederr.New(schederr.CodeNotFound, "resource unit %q not found", unitID)
	}
	for instID, inst := range unit.Instances {
		delete(v.instanceIndex, instID)
		if inst.RequestID != "" {
			delete(v.requestIndex, inst.RequestID)
		}
		v.cancelReuseTimer(instID)
	}
	delete(v.units, unitID)
	v.revision++
	v.appendChange(types.ResourceUnitChange{
		Kind:           types.ChangeDeletion,
		ResourceUnitID: unitID,
		Revision:       v.revision,
	})
	v.notify(unitID)
	v.logger.Debug().Str("unit_id", unitID).Msg("resource unit deleted")
	return nil
}

// UpdateResourceUnit replaces a unit's static capacity or actual-use
// figures wholesale, re-deriving its bucket indexes.
func (v *ResourceView) UpdateResourceUnit(unit *types.ResourceUnit, updateType UpdateType) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	existing, ok := v.units[unit.ID]
	if !ok {
		return schederr.New(schederr.CodeNotFound, "resource unit %q not found", unit.ID)
	}

	delta := &types.ResourceDelta{}
	switch updateType {
	case UpdateStatic:
		existing.Capacity = unit.Capacity
		existing.Allocatable = unit.Allocatable
		delta.Capacity = unit.Capacity
		delta.Allocatable = unit.Allocatable
		// capacity changed, so the shape this unit's bucket entry lives
		// under may have moved; relocate it rather than leaving a stale
		// entry behind under the old shape.
		if oldBucket, ok := findUnitBucket(existing); ok {
			removeUnitBucket(existing, oldBucket)
		}
		initBucketCandidacy(existing)
	case UpdateActual:
		existing.ActualUse = unit.ActualUse
		delta.ActualUse = unit.ActualUse
	}

	v.revision++
	existing.Revision = v.revision
	v.appendChange(types.ResourceUnitChange{
		Kind:           types.ChangeModification,
		ResourceUnitID: unit.ID,
		Revision:       v.revision,
		ResourceChange: delta,
	})
	v.notify(unit.ID)
	return nil
}

// UpdateUnitStatus transitions a unit's lifecycle state.
func (v *ResourceView) UpdateUnitStatus(unitID string, status types.UnitStatus) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	unit, ok := v.units[unitID]
	if !ok {
		return schederr.New(schederr.CodeNotFound, "resource unit %q not found", unitID)
	}
	unit.Status = status
	v.revision++
	unit.Revision = v.revision
	statusCopy := status
	v.appendChange(types.ResourceUnitChange{
		Kind:           types.ChangeModification,
		ResourceUnitID: unitID,
		Revision:       v.revision,
		StatusChange:   &statusCopy,
	})
	v.notify(unitID)
	return nil
}

// CurrentRevision returns the view's latest revision, for a caller
// (e.g. a PullResource server handler) that needs to answer several
// independent pull watermarks rather than advancing a single shared
// one the way GetResourceViewChanges does.
func (v *ResourceView) CurrentRevision() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.revision
}

// GetResourceUnit returns a copy-free reference to a unit, looked up
// first among top-level units and then among each top-level unit's
// Fragment leaves; callers must not mutate the returned value.
func (v *ResourceView) GetResourceUnit(unitID string) (*types.ResourceUnit, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if unit, ok := v.units[unitID]; ok {
		return unit, true
	}
	for _, root := range v.units {
		if leaf, ok := root.Fragment[unitID]; ok {
			return leaf, true
		}
	}
	return nil, false
}

// ListUnits returns every top-level unit currently held by the view.
// Callers must not mutate the returned units; used by metrics
// collection and by the driver's decide callback.
func (v *ResourceView) ListUnits() []*types.ResourceUnit {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]*types.ResourceUnit, 0, len(v.units))
	for _, u := range v.units {
		out = append(out, u)
	}
	return out
}

// GetUnitByInstReqID resolves the unit owning the instance created for requestID.
func (v *ResourceView) GetUnitByInstReqID(requestID string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	unitID, ok := v.requestIndex[requestID]
	return unitID, ok
}

// ClearResourceView drops every unit, index and pending timer.
func (v *ResourceView) ClearResourceView() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, timer := range v.reuseTimers {
		timer.Stop()
	}
	v.units = make(map[string]*types.ResourceUnit)
	v.instanceIndex = make(map[string]string)
	v.requestIndex = make(map[string]string)
	v.reuseTimers = make(map[string]*time.Timer)
	v.changeLog = nil
}

// AddResourceUpdateHandler registers a callback invoked after any
// mutation to a unit's resources, instances or status.
func (v *ResourceView) AddResourceUpdateHandler(handler ResourceUpdateHandler) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.updateHandlers = append(v.updateHandlers, handler)
}

func (v *ResourceView) notify(unitID string) {
	for _, h := range v.updateHandlers {
		h(unitID)
	}
}

func (v *ResourceView) cancelReuseTimer(instID string) {
	if timer, ok := v.reuseTimers[instID]; ok {
		timer.Stop()
		delete(v.reuseTimers, instID)
	}
}

// initBucketCandidacy seeds a unit's own bucket entry from its current
// occupancy rather than recomputing a live instance count: per spec
// §4.2/§3 a unit contributes at most one monopoly candidate and one
// shared candidate to its shape's bucket, transitioning only at the
// empty<->occupied boundary, not per instance. An empty unit is a
// monopoly candidate; a unit carrying instances (e.g. a domain
// re-absorbing a local's replica, or a capacity update recomputing
// shape) is treated as already past that first-instance transition:
// shared if none of its instances is monopoly-policy, otherwise
// neither (a monopoly placement consumes the whole unit and is never
// a shared candidate).
func initBucketCandidacy(unit *types.ResourceUnit) {
	if len(unit.Instances) == 0 {
		setUnitBucketCount(unit, types.BucketCount{MonopolyNum: 1})
		return
	}
	count := types.BucketCount{}
	if !unitHasMonopolyInstance(unit) {
		count.SharedNum = 1
	}
	setUnitBucketCount(unit, count)
}

func unitHasMonopolyInstance(unit *types.ResourceUnit) bool {
	for _, inst := range unit.Instances {
		if inst.ScheduleOption.SchedulePolicyName == types.SchedulePolicyMonopoly {
			return true
		}
	}
	return false
}

// setUnitBucketCount places unit's candidacy count at the bucket for
// its current Allocatable shape, creating the bucket entry if needed.
// A unit missing the cpu/memory scalars (e.g. a pure-vector
// accelerator shelf) is left unindexed; DefaultFilter falls back to a
// linear scan for it.
func setUnitBucketCount(unit *types.ResourceUnit, count types.BucketCount) {
	ratioKey, memKey, err := resourcealgebra.BucketShape(unit.Allocatable)
	if err != nil {
		return
	}
	if unit.BucketIndexes == nil {
		unit.BucketIndexes = make(map[string]map[string]*types.Bucket)
	}
	byMem, ok := unit.BucketIndexes[ratioKey]
	if !ok {
		byMem = make(map[string]*types.Bucket)
		unit.BucketIndexes[ratioKey] = byMem
	}
	bucket, ok := byMem[memKey]
	if !ok {
		bucket = &types.Bucket{Allocatable: make(map[string]types.BucketCount)}
		byMem[memKey] = bucket
	}
	bucket.Allocatable[unit.ID] = count
	bucket.Total = sumBucketCounts(bucket.Allocatable)
}

// findUnitBucket locates the bucket entry a unit is already
// registered under, regardless of its current Allocatable shape. Add
// and delete instance transitions mutate this same entry in place
// rather than relocating it, since a unit's own bucket membership is
// established once (at AddResourceUnit or a capacity update) and
// should not drift every time Allocatable shrinks or grows with
// instance churn.
func findUnitBucket(unit *types.ResourceUnit) (*types.Bucket, bool) {
	for _, byMem := range unit.BucketIndexes {
		for _, bucket := range byMem {
			if _, ok := bucket.Allocatable[unit.ID]; ok {
				return bucket, true
			}
		}
	}
	return nil, false
}

// removeUnitBucket drops unit's entry from bucket, used when a
// capacity change is about to relocate it to a new shape.
func removeUnitBucket(unit *types.ResourceUnit, bucket *types.Bucket) {
	delete(bucket.Allocatable, unit.ID)
	bucket.Total = sumBucketCounts(bucket.Allocatable)
}

// mutateUnitBucketCount adjusts unit's already-located bucket entry by
// the given deltas, without relocating it to a different shape.
func mutateUnitBucketCount(unit *types.ResourceUnit, deltaMonopoly, deltaShared int) {
	bucket, ok := findUnitBucket(unit)
	if !ok {
		return
	}
	count := bucket.Allocatable[unit.ID]
	count.MonopolyNum += deltaMonopoly
	count.SharedNum += deltaShared
	bucket.Allocatable[unit.ID] = count
	bucket.Total = sumBucketCounts(bucket.Allocatable)
}

func sumBucketCounts(counts map[string]types.BucketCount) types.BucketCount {
	var total types.BucketCount
	for _, c := range counts {
		total.MonopolyNum += c.MonopolyNum
		total.SharedNum += c.SharedNum
	}
	return total
}
