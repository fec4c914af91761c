package rpc

import "github.com/cuemby/yuanrong-scheduler/pkg/types"

// Ack is the generic outcome envelope for calls that carry no payload
// beyond a status.
type Ack struct {
	Code    string
	Message string
}

// ReserveRequest asks a local to provisionally hold resources on
// unitID for one instance, ahead of Bind.
type ReserveRequest struct {
	RequestID string
	TraceID   string
	UnitID    string
	Instance  *types.InstanceInfo
}

// ReserveResponse carries the reservation token and selected device
// slice the group controller stores under GROUP_SCHEDULE_CONTEXT for
// the subsequent Bind call.
type ReserveResponse struct {
	Code        string
	Message     string
	Token       string
	DeviceSlice []string
}

// UnReserveRequest releases a reservation made by a prior Reserve that
// will not be bound (rollback path).
type UnReserveRequest struct {
	RequestID string
	UnitID    string
	Token     string
}

// BindRequest commits a reservation to a running instance. CreateOptions
// carries extra string-valued placement data computed by the group
// controller (e.g. FUNCTION_GROUP_RUNNING_INFO) that has no field of
// its own on InstanceInfo.
type BindRequest struct {
	RequestID     string
	UnitID        string
	Token         string
	CreateOptions map[string]string
}

// BindResponse is the outcome of a Bind call.
type BindResponse struct {
	Code     string
	Message  string
	Contexts map[string]string
}

// UnBindRequest tears down a previously bound instance (rollback or
// normal teardown path).
type UnBindRequest struct {
	RequestID string
	UnitID    string
}

// ClearGroupRequest tells a local to drop any state it still holds for
// every member of one group, used after an abandoned rollback.
type ClearGroupRequest struct {
	GroupID string
	UnitIDs []string
}

// PreemptRequest asks a local to evict the named victim instances to
// make room for a higher-priority placement.
type PreemptRequest struct {
	UnitID            string
	VictimInstanceIDs []string
	Reason            string
}

// DispatchRequest is the single-instance (non-group) placement path
// used by instancectrl.Underlayer.
type DispatchRequest struct {
	RequestID     string
	TraceID       string
	UnitID        string
	Instance      *types.InstanceInfo
	CreateOptions map[string]string
}

// DispatchResponse is the outcome of a Dispatch call.
type DispatchResponse struct {
	RequestID string
	Code      string
	Message   string
	Contexts  map[string]string
}

// PullResourceRequest asks a local for every change since sinceRevision.
type PullResourceRequest struct {
	LocalID       string
	SinceRevision int64
}

// PullResourceResponse carries the local's change-log window. A gap
// (Changes.StartRevision > sinceRevision) forces the caller into a
// full re-sync.
type PullResourceResponse struct {
	Changes types.ResourceUnitChanges
}

// HeartbeatRequest is sent on the fixed heartbeat interval.
type HeartbeatRequest struct {
	LocalID string
	SentAt  int64
}

// HeartbeatResponse confirms liveness back to the caller.
type HeartbeatResponse struct {
	Healthy    bool
	ServerTime int64
}
