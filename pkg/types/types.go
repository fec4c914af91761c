package types

import "time"

// ValueType discriminates the two Resource payload shapes.
type ValueType string

const (
	ValueTypeScalar  ValueType = "scalar"
	ValueTypeVectors ValueType = "vectors"
)

// Scalar is an integer-valued quantity such as CPU thousandths or
// memory megabytes. Value must be >= 0; arithmetic is carried out in
// fixed-point thousandths by pkg/resourcealgebra to avoid float drift.
type Scalar struct {
	Value float64
	Limit float64
}

// VectorSlot holds one device category's per-device-uuid value arrays.
// All arrays for a given uuid share the same length (the device count).
type VectorSlot struct {
	// Values maps device-uuid to a per-device-slot value array.
	Values map[string][]float64
	// Expired, when set on the right-hand operand of a subtraction,
	// causes the category to be removed outright rather than
	// subtracted pointwise.
	Expired bool
}

// Vectors is the two-level map category -> device-uuid -> values.
// Categories include memory (HBM), latency, stream count, device ids
// and health. Latency is scoring-only; memory/stream gate feasibility.
type Vectors struct {
	Categories map[string]*VectorSlot
}

// Resource is a named, typed value: either a Scalar or a Vectors.
type Resource struct {
	Name    string
	Type    ValueType
	Scalar  *Scalar
	Vectors *Vectors
}

// Resources maps resource name to Resource. A Resources value is valid
// iff non-empty and every entry is named, typed and non-negative.
type Resources map[string]*Resource

// LabelCounter is a multiset of label values, used both for a single
// node_labels entry and for instance-resolved affinity aggregates.
type LabelCounter map[string]int

// UnitStatus is the lifecycle state of a ResourceUnit.
type UnitStatus string

const (
	UnitStatusNormal      UnitStatus = "NORMAL"
	UnitStatusEvicting    UnitStatus = "EVICTING"
	UnitStatusRecovering  UnitStatus = "RECOVERING"
	UnitStatusToBeDeleted UnitStatus = "TO_BE_DELETED"
)

// BucketCount is the {monopoly, shared} candidate counters for one
// (mem/cpu ratio, mem value) shape.
type BucketCount struct {
	MonopolyNum int
	SharedNum   int
}

// Bucket tracks, for a given shape, how many units are candidates for
// monopoly vs. shared placement, both in aggregate and per unit.
type Bucket struct {
	Total       BucketCount
	Allocatable map[string]BucketCount // unit-id -> counts
}

// ResourceUnit is one node in the view tree: a leaf agent at the local
// tier, or an aggregate (with non-empty Fragment) at the domain tier.
type ResourceUnit struct {
	ID           string
	Alias        string
	OwnerID      string
	ViewInitTime string // opaque handle; changes on local view re-init

	Capacity    Resources
	Allocatable Resources
	ActualUse   Resources

	Instances map[string]*InstanceInfo // instance-id -> info

	// Fragment holds child units; only non-empty at the domain tier,
	// where a ResourceUnit can represent an aggregated local view.
	Fragment map[string]*ResourceUnit

	NodeLabels map[string]LabelCounter // label-key -> multiset of values

	// BucketIndexes is mem/cpu-ratio-key -> mem-value-key -> Bucket.
	BucketIndexes map[string]map[string]*Bucket

	Status   UnitStatus
	Revision int64
}

// SchedulePolicyName selects how a request's resources are matched
// against a unit's allocatable capacity.
type SchedulePolicyName string

const (
	SchedulePolicyDefault  SchedulePolicyName = "default"
	SchedulePolicyMonopoly SchedulePolicyName = "monopoly"
)

// ScheduleOption carries the per-instance scheduling preferences that
// came in with the original request.
type ScheduleOption struct {
	Priority           int
	SchedulePolicyName SchedulePolicyName
	ScheduleTimeoutMs  int64
	Affinity           map[string]string
	ResourceSelector   ResourceSelector
	PreemptedAllowed   bool
}

// ResourceSelector names the affinity pool (if any) an instance is
// targeted at. Owner "default" with no Pool means "assign a fresh
// affinity UUID so no accidental co-scheduling occurs".
type ResourceSelector struct {
	Owner string
	Pool  string
}

// InstanceInfo is a placed (or being-placed) instance within a
// ResourceUnit's Instances map.
type InstanceInfo struct {
	InstanceID     string
	RequestID      string
	UnitID         string
	SchedulerChain []string // unit-ids from leaf to root at decision time

	Resources Resources
	ActualUse Resources
	Labels    map[string]string

	ScheduleOption ScheduleOption

	GroupID          string
	TenantID         string
	FunctionProxyID  string
	CreatedAt        time.Time
}

// InstanceAllocatedInfo is the input to ResourceView.AddInstances: the
// instance to place plus an optional promise resolved once placement
// is known to have succeeded or failed.
type InstanceAllocatedInfo struct {
	Instance         *InstanceInfo
	AllocatedPromise chan error // nil if the caller does not need a signal
}

// ChangeKind discriminates the three ResourceUnitChange variants.
type ChangeKind string

const (
	ChangeAddition     ChangeKind = "Addition"
	ChangeDeletion     ChangeKind = "Deletion"
	ChangeModification ChangeKind = "Modification"
)

// InstanceChangeOp is ADD or DELETE within a Modification's
// instance_changes list.
type InstanceChangeOp string

const (
	InstanceChangeAdd    InstanceChangeOp = "ADD"
	InstanceChangeDelete InstanceChangeOp = "DELETE"
)

// InstanceChange is one entry of a Modification's instance_changes.
type InstanceChange struct {
	Op       InstanceChangeOp
	Instance *InstanceInfo
}

// ResourceUnitChange is a tagged union describing one mutation to one
// ResourceUnit, carried at a specific local revision.
type ResourceUnitChange struct {
	Kind           ChangeKind
	ResourceUnitID string
	Revision       int64

	// Addition / full-unit snapshot (used by Addition and by the
	// coalesced Add-after-Modify case in MergeLocalResourceViewChanges).
	Unit *ResourceUnit

	// Modification payload.
	InstanceChanges []InstanceChange
	StatusChange    *UnitStatus
	ResourceChange  *ResourceDelta
	LabelChange     *LabelDelta
}

// ResourceDelta carries a STATIC or ACTUAL resource replacement as
// part of a Modification change.
type ResourceDelta struct {
	Capacity    Resources
	Allocatable Resources
	ActualUse   Resources
}

// LabelDelta carries an additive/subtractive label-counter change.
type LabelDelta struct {
	Added   map[string]LabelCounter
	Removed map[string]LabelCounter
}

// ResourceUnitChanges is a bounded revision window of changes produced
// by one local view (or one domain poll of that local).
type ResourceUnitChanges struct {
	LocalID          string
	LocalViewInitTime string
	StartRevision    int64
	EndRevision      int64
	Changes          []ResourceUnitChange
}

// RangeOpts describes a range-schedule request's tolerated shortfall.
type RangeOpts struct {
	Min                 int
	Max                 int
	Step                int
	CurRangeInstanceNum int
}

// ScheduleRequest is one instance's placement request as it flows
// through the schedule queue and scheduling framework.
type ScheduleRequest struct {
	RequestID     string
	TraceID       string
	Instance      *InstanceInfo
	ScheduleRound int

	// Contexts holds per-plugin scratch state keyed by plugin name,
	// populated by Prefilter and consulted by Filter/Score.
	Contexts map[string]interface{}

	RangeOpts       RangeOpts
	IsRangeSchedule bool
}

// GroupStatus is the lifecycle state of a GroupInfo.
type GroupStatus string

const (
	GroupStatusScheduling GroupStatus = "SCHEDULING"
	GroupStatusRunning    GroupStatus = "RUNNING"
	GroupStatusFailed     GroupStatus = "FAILED"
)

// GroupPolicy selects the group's rollback/bind discipline.
type GroupPolicy string

const (
	GroupPolicyGang       GroupPolicy = "Gang"
	GroupPolicyRange      GroupPolicy = "Range"
	GroupPolicyStrictPack GroupPolicy = "StrictPack"
)

// GroupOpts carries group-wide scheduling parameters.
type GroupOpts struct {
	Timeout                time.Duration
	GroupPolicy             GroupPolicy
	SameRunningLifecycle   bool
}

// GroupInfo is the persisted, owner-proxy-exclusive record of a
// multi-instance scheduling request.
type GroupInfo struct {
	RequestID string
	TraceID   string
	GroupID   string
	ParentID  string
	OwnerProxy string
	RGroupName string
	Status     GroupStatus
	GroupOpts  GroupOpts

	Requests      []*ScheduleRequest
	RangeRequests []*ScheduleRequest
}
