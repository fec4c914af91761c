package groupctrl

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/yuanrong-scheduler/pkg/log"
	"github.com/cuemby/yuanrong-scheduler/pkg/recorder"
	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/schedqueue"
	"github.com/cuemby/yuanrong-scheduler/pkg/storage"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
	"github.com/cuemby/yuanrong-scheduler/pkg/underlayer"
)

// Controller drives a GroupInfo through decision, reserve and bind,
// rolling back on partial failure per the group's policy, and
// persists every status transition so a restarted replica can tell
// which groups it still owns.
type Controller struct {
	scheduler *schedqueue.Scheduler
	transport Transport
	store     storage.Store
	recorder  *recorder.ScheduleRecorder
	localID   string // this replica's OwnerProxy value

	cfg Config

	logger zerolog.Logger
}

// New wires a Controller. store may be nil, in which case group state
// is not persisted (used in tests and single-shot tools).
func New(scheduler *schedqueue.Scheduler, transport Transport, store storage.Store, rec *recorder.ScheduleRecorder, localID string) *Controller {
	return &Controller{
		scheduler: scheduler,
		transport: transport,
		store:     store,
		recorder:  rec,
		localID:   localID,
		cfg:       DefaultConfig(),
		logger:    log.WithComponent("groupctrl"),
	}
}

// SetConfig replaces the retry/timeout configuration.
func (c *Controller) SetConfig(cfg Config) {
	c.cfg = cfg
}

// Recover loads every group this replica owned before restart, for
// the driver to reconcile against the current resource view.
func (c *Controller) Recover() ([]*types.GroupInfo, error) {
	if c.store == nil {
		return nil, nil
	}
	return c.store.ListGroupsByOwner(c.localID)
}

// Release clears a completed or externally-terminated group from
// every unit it touched and drops its persisted record.
func (c *Controller) Release(ctx context.Context, group *types.GroupInfo, unitIDs []string) error {
	if err := c.transport.ClearGroup(ctx, group.GroupID, unitIDs); err != nil {
		return err
	}
	if c.store == nil {
		return nil
	}
	return c.store.DeleteGroup(group.RequestID, group.GroupID)
}

// Schedule runs group through up to cfg.MaxAttempts decision/reserve/bind
// cycles, persisting state at every transition, and returns its
// terminal outcome. A nil error always comes with a Result whose
// Status is RUNNING; a non-nil error always comes with a FAILED
// Result carrying the same error.
func (c *Controller) Schedule(ctx context.Context, group *types.GroupInfo) (*Result, error) {
	group.OwnerProxy = c.localID
	group.Status = types.GroupStatusScheduling
	c.persist(group)

	var lastErr error
scheduleLoop:
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		result, err := c.attempt(ctx, group)
		if err == nil {
			group.Status = types.GroupStatusRunning
			c.persist(group)
			return result, nil
		}

		lastErr = err
		if !retryable(err) || attempt == c.cfg.MaxAttempts {
			break scheduleLoop
		}
		c.logger.Warn().Str("group_id", group.GroupID).Int("attempt", attempt).Err(err).
			Msg("group scheduling attempt failed, retrying")
		select {
		case <-time.After(c.cfg.RetryBackoff):
		case <-ctx.Done():
			lastErr = ctx.Err()
			break scheduleLoop
		}
	}

	group.Status = types.GroupStatusFailed
	c.persist(group)
	return &Result{GroupID: group.GroupID, Status: types.GroupStatusFailed, Err: lastErr}, lastErr
}

// retryable reports whether a failed attempt is worth a fresh
// decision/reserve/bind cycle rather than a terminal failure.
func retryable(err error) bool {
	switch schederr.CodeOf(err) {
	case schederr.CodeResourceNotEnough, schederr.CodeScheduleConflicted, schederr.CodeGroupFailed:
		return true
	default:
		return false
	}
}

// attempt runs one full decision/reserve/bind cycle.
func (c *Controller) attempt(ctx context.Context, group *types.GroupInfo) (*Result, error) {
	decision, err := c.scheduler.GroupScheduleDecision(ctx, group)
	if err != nil {
		return nil, err
	}

	at := newGroupAttempt(group)
	at.decisions = decision.Results

	ordered := orderedMembers(group, decision.Results)

	reserved, err := c.reserveAll(ctx, at, ordered)
	if err != nil {
		c.rollback(ctx, at, group)
		return nil, err
	}

	bound, err := c.bindAll(ctx, at, reserved)
	if err != nil {
		c.rollback(ctx, at, group)
		return nil, err
	}

	return &Result{GroupID: group.GroupID, Status: types.GroupStatusRunning, BoundIDs: bound}, nil
}

// orderedMembers returns the decided requests in the order reserve
// and bind should process them: RangeRequests in their original order
// for a Range group (so last_reserved_ind stays meaningful), or every
// decided request for Gang/StrictPack.
func orderedMembers(group *types.GroupInfo, decisions map[string]schedqueue.ScheduleResult) []*types.ScheduleRequest {
	if group.GroupOpts.GroupPolicy == types.GroupPolicyRange {
		ordered := make([]*types.ScheduleRequest, 0, len(group.RangeRequests))
		for _, r := range group.RangeRequests {
			if _, ok := decisions[r.RequestID]; ok {
				ordered = append(ordered, r)
			}
		}
		return ordered
	}

	all := make([]*types.ScheduleRequest, 0, len(group.Requests)+len(group.RangeRequests))
	all = append(all, group.Requests...)
	all = append(all, group.RangeRequests...)
	ordered := make([]*types.ScheduleRequest, 0, len(all))
	for _, r := range all {
		if _, ok := decisions[r.RequestID]; ok {
			ordered = append(ordered, r)
		}
	}
	return ordered
}

func rangeMin(requests []*types.ScheduleRequest) int {
	if len(requests) == 0 {
		return 0
	}
	return requests[0].RangeOpts.Min
}

// reserveAll reserves every decided member, per the group's policy.
func (c *Controller) reserveAll(ctx context.Context, at *groupAttempt, ordered []*types.ScheduleRequest) ([]*types.ScheduleRequest, error) {
	if at.group.GroupOpts.GroupPolicy == types.GroupPolicyRange {
		return c.reserveRange(ctx, at, ordered)
	}
	return c.reserveConcurrent(ctx, at, ordered)
}

// reserveConcurrent reserves every member at once and fails the whole
// group on any single failure, used by Gang and StrictPack.
func (c *Controller) reserveConcurrent(ctx context.Context, at *groupAttempt, ordered []*types.ScheduleRequest) ([]*types.ScheduleRequest, error) {
	type outcome struct {
		requestID string
		unitID    string
		res       *underlayer.ReservationResult
		err       error
	}

	outcomes := make(chan outcome, len(ordered))
	for _, req := range ordered {
		req := req
		unitID := at.decisions[req.RequestID].UnitID
		go func() {
			res, err := c.transport.Reserve(ctx, unitID, req)
			outcomes <- outcome{requestID: req.RequestID, unitID: unitID, res: res, err: err}
		}()
	}

	var firstErr error
	for range ordered {
		o := <-outcomes
		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		at.reserved[o.requestID] = &reservation{
			requestID: o.requestID,
			unitID:    o.unitID,
			token:     o.res.Token,
			deviceIDs: o.res.DeviceSlice,
		}
	}

	if firstErr != nil {
		return nil, schederr.New(schederr.CodeGroupFailed, "group %s: reserve failed: %v", at.group.GroupID, firstErr)
	}
	return ordered, nil
}

// reserveRange reserves members in order and keeps only the longest
// contiguous prefix of successes, so no gap ever opens up within a
// range's occupied indices. The kept prefix must still meet
// RangeOpts.Min or the whole attempt fails.
func (c *Controller) reserveRange(ctx context.Context, at *groupAttempt, ordered []*types.ScheduleRequest) ([]*types.ScheduleRequest, error) {
	kept := make([]*types.ScheduleRequest, 0, len(ordered))
	for i, req := range ordered {
		unitID := at.decisions[req.RequestID].UnitID
		res, err := c.transport.Reserve(ctx, unitID, req)
		if err != nil {
			at.lastReservedInd = i - 1
			break
		}
		at.reserved[req.RequestID] = &reservation{
			requestID: req.RequestID,
			unitID:    unitID,
			token:     res.Token,
			deviceIDs: res.DeviceSlice,
		}
		kept = append(kept, req)
		at.lastReservedInd = i
	}

	if min := rangeMin(at.group.RangeRequests); len(kept) < min {
		return nil, schederr.New(schederr.CodeGroupFailed,
			"group %s: range reserve kept only %d of required %d", at.group.GroupID, len(kept), min)
	}
	return kept, nil
}

// bindAll binds every reserved member concurrently, carrying a single
// shared FUNCTION_GROUP_RUNNING_INFO payload ranking all of them.
func (c *Controller) bindAll(ctx context.Context, at *groupAttempt, members []*types.ScheduleRequest) ([]string, error) {
	reservations := make([]*reservation, 0, len(members))
	for _, m := range members {
		reservations = append(reservations, at.reserved[m.RequestID])
	}
	runningInfo, err := buildRunningInfo(at.group.GroupID, reservations)
	if err != nil {
		return nil, schederr.New(schederr.CodeInnerSystemError, "group %s: build running info: %v", at.group.GroupID, err)
	}

	type outcome struct {
		requestID string
		err       error
	}

	outcomes := make(chan outcome, len(members))
	for _, m := range members {
		res := at.reserved[m.RequestID]
		go func() {
			_, err := c.transport.Bind(ctx, res.unitID, res.token, map[string]string{groupRunningInfoKey: runningInfo})
			outcomes <- outcome{requestID: res.requestID, err: err}
		}()
	}

	bound := make([]string, 0, len(members))
	var firstErr error
	for range members {
		o := <-outcomes
		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		bound = append(bound, o.requestID)
		delete(at.reserved, o.requestID) // bound members are unbound, not unreserved, on rollback
	}
	at.bound = bound

	if firstErr != nil {
		return nil, schederr.New(schederr.CodeGroupFailed, "group %s: bind failed: %v", at.group.GroupID, firstErr)
	}
	return bound, nil
}

// rollback releases every reservation and binding an attempt
// accumulated before failing, then clears the group from every unit
// its decisions touched.
func (c *Controller) rollback(ctx context.Context, at *groupAttempt, group *types.GroupInfo) {
	for _, requestID := range at.bound {
		unitID := at.decisions[requestID].UnitID
		if err := c.transport.UnBind(ctx, unitID, requestID); err != nil {
			c.logger.Warn().Str("group_id", group.GroupID).Str("request_id", requestID).Err(err).
				Msg("rollback unbind failed")
		}
	}
	for requestID, res := range at.reserved {
		if err := c.transport.UnReserve(ctx, res.unitID, res.token); err != nil {
			c.logger.Warn().Str("group_id", group.GroupID).Str("request_id", requestID).Err(err).
				Msg("rollback unreserve failed")
		}
	}

	seen := make(map[string]struct{}, len(at.decisions))
	unitIDs := make([]string, 0, len(at.decisions))
	for _, d := range at.decisions {
		if _, ok := seen[d.UnitID]; ok {
			continue
		}
		seen[d.UnitID] = struct{}{}
		unitIDs = append(unitIDs, d.UnitID)
	}
	if len(unitIDs) == 0 {
		return
	}
	if err := c.transport.ClearGroup(ctx, group.GroupID, unitIDs); err != nil {
		c.logger.Warn().Str("group_id", group.GroupID).Err(err).Msg("rollback clear_group failed")
	}
}

// persist best-effort saves group's current state; a storage hiccup
// is logged, not fatal, since the in-memory attempt is still
// authoritative until the controller itself restarts.
func (c *Controller) persist(group *types.GroupInfo) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveGroup(group.RequestID, group.GroupID, group); err != nil {
		c.logger.Warn().Str("group_id", group.GroupID).Err(err).Msg("persist group state failed")
	}
}
