package localproxy

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/yuanrong-scheduler/pkg/log"
	"github.com/cuemby/yuanrong-scheduler/pkg/resourceview"
	"github.com/cuemby/yuanrong-scheduler/pkg/rpc"
	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// defaultReserveTimeout bounds how long a Reserve's tentative hold
// survives without a matching Bind, per the glossary's "Reserve: a
// local-side tentative hold of resources; released if not followed by
// Bind within a timeout."
const defaultReserveTimeout = 30 * time.Second

// hold is the bookkeeping kept between a successful Reserve and its
// eventual Bind, UnReserve, or timeout release.
type hold struct {
	instanceID string
	unitID     string
	groupID    string
	bound      bool
	timer      *time.Timer
}

// Server answers the grpc calls pkg/underlayer.Manager makes against
// one local proxy's resource view. It satisfies rpc.UnderlayerServer.
type Server struct {
	mu sync.Mutex

	localID      string
	viewInitTime string
	view         *resourceview.ResourceView

	reserveTimeout time.Duration
	holds          map[string]*hold // token -> hold

	logger zerolog.Logger
}

// New wires a Server over view, which must have been constructed with
// resourceview.Param{IsLocal: true}.
func New(localID string, view *resourceview.ResourceView) *Server {
	return &Server{
		localID:        localID,
		viewInitTime:   uuid.NewString(),
		view:           view,
		reserveTimeout: defaultReserveTimeout,
		holds:          make(map[string]*hold),
		logger:         log.WithComponent("localproxy").With().Str("local_id", localID).Logger(),
	}
}

// SetReserveTimeout overrides the default tentative-hold timeout.
func (s *Server) SetReserveTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.reserveTimeout = d
	s.mu.Unlock()
}

func ack(code schederr.Code, msg string) *rpc.Ack {
	return &rpc.Ack{Code: string(code), Message: msg}
}

func errCode(err error) (string, string) {
	if err == nil {
		return string(schederr.CodeOK), ""
	}
	return string(schederr.CodeOf(err)), err.Error()
}

// deviceSliceFrom collects every distinct device uuid named by any
// vector resource in resources, used as the best-effort "which
// devices did this reservation land on" answer a caller stores under
// GROUP_SCHEDULE_CONTEXT.
func deviceSliceFrom(resources types.Resources) []string {
	seen := make(map[string]struct{})
	for _, res := range resources {
		if res.Vectors == nil {
			continue
		}
		for _, slot := range res.Vectors.Categories {
			for devID := range slot.Values {
				seen[devID] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reserve places req.Instance on req.UnitID immediately (the tentative
// hold subtracts real resources, so a concurrent decision against the
// same unit never double-books it) and arms a release timer in case
// the matching Bind never arrives.
func (s *Server) Reserve(ctx context.Context, req *rpc.ReserveRequest) (*rpc.ReserveResponse, error) {
	if req.Instance == nil {
		return &rpc.ReserveResponse{Code: string(schederr.CodeParamInvalid), Message: "reserve request carries no instance"}, nil
	}
	inst := req.Instance
	inst.RequestID = req.RequestID
	inst.UnitID = req.UnitID

	err := s.view.AddInstances(map[string]*types.InstanceAllocatedInfo{
		inst.InstanceID: {Instance: inst},
	})
	if err != nil {
		code, msg := errCode(err)
		return &rpc.ReserveResponse{Code: code, Message: msg}, nil
	}

	token := uuid.NewString()
	h := &hold{instanceID: inst.InstanceID, unitID: req.UnitID, groupID: inst.GroupID}
	h.timer = time.AfterFunc(s.reserveTimeout, func() { s.releaseUnbound(token) })

	s.mu.Lock()
	s.holds[token] = h
	s.mu.Unlock()

	return &rpc.ReserveResponse{
		Code:        string(schederr.CodeOK),
		Token:       token,
		DeviceSlice: deviceSliceFrom(inst.Resources),
	}, nil
}

func (s *Server) releaseUnbound(token string) {
	s.mu.Lock()
	h, ok := s.holds[token]
	if !ok || h.bound {
		s.mu.Unlock()
		return
	}
	delete(s.holds, token)
	s.mu.Unlock()

	if err := s.view.DeleteInstances([]string{h.instanceID}, true); err != nil {
		s.logger.Warn().Str("instance_id", h.instanceID).Err(err).Msg("reserve timeout release failed")
		return
	}
	s.logger.Info().Str("instance_id", h.instanceID).Str("token", token).Msg("reservation expired without a bind, released")
}

// UnReserve releases a still-held reservation, used on group rollback.
func (s *Server) UnReserve(ctx context.Context, req *rpc.UnReserveRequest) (*rpc.Ack, error) {
	s.mu.Lock()
	h, ok := s.holds[req.Token]
	if ok {
		delete(s.holds, req.Token)
		if h.timer != nil {
			h.timer.Stop()
		}
	}
	s.mu.Unlock()
	if !ok {
		return ack(schederr.CodeNotFound, "no reservation for token"), nil
	}
	if err := s.view.DeleteInstances([]string{h.instanceID}, true); err != nil {
		code, msg := errCode(err)
		return ack(schederr.Code(code), msg), nil
	}
	return ack(schederr.CodeOK, ""), nil
}

// Bind confirms a reservation, canceling its release timer. The
// instance resources were already committed at Reserve time; Bind
// only stops the clock and echoes the caller's create options back
// as Contexts, the only sensible place for them to land since
// InstanceInfo carries no free-form create-options field of its own.
func (s *Server) Bind(ctx context.Context, req *rpc.BindRequest) (*rpc.BindResponse, error) {
	s.mu.Lock()
	h, ok := s.holds[req.Token]
	if ok {
		h.bound = true
		if h.timer != nil {
			h.timer.Stop()
		}
	}
	s.mu.Unlock()
	if !ok {
		return &rpc.BindResponse{Code: string(schederr.CodeNotFound), Message: "no reservation for token"}, nil
	}
	return &rpc.BindResponse{Code: string(schederr.CodeOK), Contexts: req.CreateOptions}, nil
}

// UnBind tears down a previously bound instance by request id, scanning
// req.UnitID's instances since a bound instance has no token on file.
func (s *Server) UnBind(ctx context.Context, req *rpc.UnBindRequest) (*rpc.Ack, error) {
	instID, ok := s.findInstanceByRequestID(req.UnitID, req.RequestID)
	if !ok {
		return ack(schederr.CodeNotFound, "no bound instance for request"), nil
	}
	if err := s.view.DeleteInstances([]string{instID}, false); err != nil {
		code, msg := errCode(err)
		return ack(schederr.Code(code), msg), nil
	}
	return ack(schederr.CodeOK, ""), nil
}

func (s *Server) findInstanceByRequestID(unitID, requestID string) (string, bool) {
	unit, ok := s.view.GetResourceUnit(unitID)
	if !ok {
		return "", false
	}
	for instID, inst := range unit.Instances {
		if inst.RequestID == requestID {
			return instID, true
		}
	}
	return "", false
}

// ClearGroup drops every reservation and bound instance this local
// still holds for groupID across unitIDs, used after an abandoned
// rollback the owner could not otherwise account for.
func (s *Server) ClearGroup(ctx context.Context, req *rpc.ClearGroupRequest) (*rpc.Ack, error) {
	var toRelease []string

	s.mu.Lock()
	for token, h := range s.holds {
		if h.groupID == req.GroupID {
			toRelease = append(toRelease, h.instanceID)
			if h.timer != nil {
				h.timer.Stop()
			}
			delete(s.holds, token)
		}
	}
	s.mu.Unlock()

	for _, unitID := range req.UnitIDs {
		unit, ok := s.view.GetResourceUnit(unitID)
		if !ok {
			continue
		}
		for instID, inst := range unit.Instances {
			if inst.GroupID == req.GroupID {
				toRelease = append(toRelease, instID)
			}
		}
	}
	if len(toRelease) == 0 {
		return ack(schederr.CodeOK, ""), nil
	}
	if err := s.view.DeleteInstances(dedupe(toRelease), true); err != nil {
		code, msg := errCode(err)
		return ack(schederr.Code(code), msg), nil
	}
	return ack(schederr.CodeOK, ""), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Preempt evicts the named victim instances to make room for a
// higher-priority placement.
func (s *Server) Preempt(ctx context.Context, req *rpc.PreemptRequest) (*rpc.Ack, error) {
	if err := s.view.DeleteInstances(req.VictimInstanceIDs, false); err != nil {
		code, msg := errCode(err)
		return ack(schederr.Code(code), msg), nil
	}
	s.logger.Info().Str("unit_id", req.UnitID).Strs("victims", req.VictimInstanceIDs).Str("reason", req.Reason).Msg("preempted instances")
	return ack(schederr.CodeOK, ""), nil
}

// Dispatch is the combined reserve-and-bind path pkg/instancectrl uses
// for ordinary (non-group) placements: a single commit with no
// intervening token.
func (s *Server) Dispatch(ctx context.Context, req *rpc.DispatchRequest) (*rpc.DispatchResponse, error) {
	if req.Instance == nil {
		return &rpc.DispatchResponse{RequestID: req.RequestID, Code: string(schederr.CodeParamInvalid), Message: "dispatch request carries no instance"}, nil
	}
	inst := req.Instance
	inst.RequestID = req.RequestID
	inst.UnitID = req.UnitID

	err := s.view.AddInstances(map[string]*types.InstanceAllocatedInfo{
		inst.InstanceID: {Instance: inst},
	})
	code, msg := errCode(err)
	return &rpc.DispatchResponse{RequestID: req.RequestID, Code: code, Message: msg, Contexts: req.CreateOptions}, nil
}

// PullResource answers a domain poll with every change in
// (SinceRevision, current] without advancing any shared watermark, so
// more than one domain consumer can poll independently.
func (s *Server) PullResource(ctx context.Context, req *rpc.PullResourceRequest) (*rpc.PullResourceResponse, error) {
	result := types.ResourceUnitChanges{
		LocalID:           s.localID,
		LocalViewInitTime: s.viewInitTime,
		StartRevision:     req.SinceRevision,
		EndRevision:       s.view.CurrentRevision(),
	}
	s.view.MergeLocalResourceViewChanges(req.SinceRevision, result.EndRevision, &result)
	return &rpc.PullResourceResponse{Changes: result}, nil
}

// Heartbeat confirms liveness back to the domain's underlayer manager.
func (s *Server) Heartbeat(ctx context.Context, req *rpc.HeartbeatRequest) (*rpc.HeartbeatResponse, error) {
	return &rpc.HeartbeatResponse{Healthy: true, ServerTime: time.Now().UnixNano()}, nil
}

var _ rpc.UnderlayerServer = (*Server)(nil)
