package instancectrl

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/yuanrong-scheduler/pkg/log"
	"github.com/cuemby/yuanrong-scheduler/pkg/recorder"
	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/schedqueue"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

const (
	defaultMaxDispatchRetries       = 5
	defaultCreateAgentMaxAttempts   = 3
	defaultCreateAgentRetryInterval = 50 * time.Millisecond
	minCreateAgentRetryInterval     = 50 * time.Millisecond
	maxCreateAgentRetryInterval     = 10 * time.Second
)

var defaultRetryScheduleIntervals = []time.Duration{3 * time.Second, 5 * time.Second, 10 * time.Second}

// cancelTag is a once-fired cancellation signal for one in-flight
// request's ScheduleDecision call.
type cancelTag struct {
	once   sync.Once
	reason string
	done   chan struct{}
}

func newCancelTag() *cancelTag {
	return &cancelTag{done: make(chan struct{})}
}

func (t *cancelTag) cancel(reason string) {
	t.once.Do(func() {
		t.reason = reason
		close(t.done)
	})
}

// Controller drives ScheduleRequests through decision, dispatch, and
// (on the header domain) on-demand agent creation and bounded
// schedule retry, one request at a time per caller goroutine.
type Controller struct {
	mu sync.Mutex

	scheduler  *schedqueue.Scheduler
	recorder   *recorder.ScheduleRecorder
	underlayer Underlayer
	scaler     Scaler

	isHeader                   bool
	scalerEnabled              bool
	tolerateUnderlayerAbnormal bool

	maxDispatchRetries       int
	retryScheduleIntervals   []time.Duration
	createAgentRetryInterval time.Duration

	requestTrySchedTimes map[string]int
	cancelTags           map[string]*cancelTag

	logger zerolog.Logger
}

// New wires a Controller. isHeader marks this as the top-of-hierarchy
// domain, the only tier allowed to talk to a Scaler.
func New(scheduler *schedqueue.Scheduler, rec *recorder.ScheduleRecorder, underlayer Underlayer, isHeader bool) *Controller {
	return &Controller{
		scheduler:                scheduler,
		recorder:                 rec,
		underlayer:               underlayer,
		isHeader:                 isHeader,
		tolerateUnderlayerAbnormal: true,
		maxDispatchRetries:       defaultMaxDispatchRetries,
		retryScheduleIntervals:   append([]time.Duration(nil), defaultRetryScheduleIntervals...),
		createAgentRetryInterval: defaultCreateAgentRetryInterval,
		requestTrySchedTimes:     make(map[string]int),
		cancelTags:               make(map[string]*cancelTag),
		logger:                   log.WithComponent("instancectrl"),
	}
}

// BindScaler attaches an agent scaler and enables on-demand creation.
func (c *Controller) BindScaler(scaler Scaler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scaler = scaler
	c.scalerEnabled = scaler != nil
}

// SetTolerateUnderlayerAbnormal controls whether a unit-unavailable
// dispatch response is treated the same as a schedule conflict (free
// retry) instead of a terminal failure.
func (c *Controller) SetTolerateUnderlayerAbnormal(tolerate bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tolerateUnderlayerAbnormal = tolerate
}

// SetRetryScheduleIntervals replaces the backoff schedule used
// between successive full re-schedules of an unplaceable request.
func (c *Controller) SetRetryScheduleIntervals(intervals []time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retryScheduleIntervals = append([]time.Duration(nil), intervals...)
}

// SetCreateAgentRetryInterval clamps and sets the interval between
// CreateAgent attempts.
func (c *Controller) SetCreateAgentRetryInterval(interval time.Duration) {
	if interval < minCreateAgentRetryInterval {
		interval = minCreateAgentRetryInterval
	}
	if interval > maxCreateAgentRetryInterval {
		interval = maxCreateAgentRetryInterval
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createAgentRetryInterval = interval
}

// TryCancelSchedule fires the cancel tag for requestID, if it is
// still waiting on a decision. A request already dispatched is
// unaffected.
func (c *Controller) TryCancelSchedule(requestID, reason string) {
	c.mu.Lock()
	tag, ok := c.cancelTags[requestID]
	delete(c.cancelTags, requestID)
	c.mu.Unlock()
	if ok {
		tag.cancel(reason)
	}
}

func (c *Controller) getCancelTag(requestID string) *cancelTag {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tag, ok := c.cancelTags[requestID]; ok {
		return tag
	}
	tag := newCancelTag()
	c.cancelTags[requestID] = tag
	return tag
}

func (c *Controller) dropCancelTag(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cancelTags, requestID)
}

func (c *Controller) clearRetryState(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.requestTrySchedTimes, requestID)
}

// Schedule runs req through decision, dispatch, and (if needed) the
// header domain's scale-out/retry escalation, returning the final
// response. A non-nil error means the request never reached a final
// response at all (context canceled, etc); a nil error always comes
// with a non-nil *ScheduleResponse, successful or not.
func (c *Controller) Schedule(ctx context.Context, req *types.ScheduleRequest) (*ScheduleResponse, error) {
	c.mu.Lock()
	c.requestTrySchedTimes[req.RequestID]++
	c.mu.Unlock()

	rsp, err := c.scheduleDecision(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.onDispatchSchedule(ctx, rsp, req)
}

func (c *Controller) scheduleDecision(ctx context.Context, req *types.ScheduleRequest) (*ScheduleResponse, error) {
	tag := c.getCancelTag(req.RequestID)

	decideCtx := ctx
	if ms := req.Instance.ScheduleOption.ScheduleTimeoutMs; ms > 0 {
		var cancelFn context.CancelFunc
		decideCtx, cancelFn = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
		defer cancelFn()
	}

	result, decideErr := c.scheduler.ScheduleDecision(decideCtx, req, tag.done)
	if decideErr != nil && decideCtx.Err() == context.DeadlineExceeded {
		tag.cancel("schedule timeout")
		reason := "the scheduling queue is busy or the schedule timeout configuration is not proper"
		if priorErr, ok := c.recorder.TryQueryScheduleErr(req.RequestID); ok {
			reason = priorErr.Error()
		}
		decideErr = schederr.New(schederr.CodeScheduleTimeout,
			"instance %s cannot be scheduled within %dms: %s", req.RequestID,
			req.Instance.ScheduleOption.ScheduleTimeoutMs, reason)
	}

	return c.dispatchSchedule(ctx, result, decideErr, req, 0)
}

func (c *Controller) dispatchSchedule(ctx context.Context, result schedqueue.ScheduleResult, decideErr error, req *types.ScheduleRequest, dispatchTimes int) (*ScheduleResponse, error) {
	if decideErr != nil {
		c.dropCancelTag(req.RequestID)
		return buildErrorResponse(decideErr, req), nil
	}

	rsp, err := c.underlayer.DispatchSchedule(ctx, result.UnitID, req)
	if err != nil {
		if dispatchTimes >= c.maxDispatchRetries {
			c.dropCancelTag(req.RequestID)
			return nil, schederr.New(schederr.CodeUnitUnavailable,
				"request %s: unit %s unreachable after %d attempts: %v",
				req.RequestID, result.UnitID, dispatchTimes+1, err)
		}
		c.logger.Warn().Str("request_id", req.RequestID).Str("unit_id", result.UnitID).
			Int("attempt", dispatchTimes).Msg("dispatch to unit failed, retrying")
		return c.dispatchSchedule(ctx, result, nil, req, dispatchTimes+1)
	}

	if rsp.Code == schederr.CodeResourceNotEnough {
		rsp.Code = schederr.CodeScheduleConflicted
	}
	return c.checkReSchedulingIsRequired(ctx, rsp, req)
}

func (c *Controller) checkReSchedulingIsRequired(ctx context.Context, rsp *ScheduleResponse, req *types.ScheduleRequest) (*ScheduleResponse, error) {
	c.mu.Lock()
	tolerate := c.tolerateUnderlayerAbnormal
	c.mu.Unlock()

	if rsp.Code == schederr.CodeScheduleConflicted ||
		(tolerate && rsp.Code == schederr.CodeUnitUnavailable) {
		// A scheduling conflict is retried for free: it is never
		// counted against requestTrySchedTimes.
		return c.scheduleDecision(ctx, req)
	}

	c.dropCancelTag(req.RequestID)
	return rsp, nil
}

func buildErrorResponse(decideErr error, req *types.ScheduleRequest) *ScheduleResponse {
	code := schederr.CodeOf(decideErr)
	return &ScheduleResponse{RequestID: req.RequestID, Code: code, Message: decideErr.Error()}
}

// onDispatchSchedule escalates a ResourceNotEnough or
// AffinityScheduleFailed final response on the header domain: first by asking the scaler to bring up a new
// agent and re-scheduling against it, then by a bounded number of
// full re-schedules spaced out by retryScheduleIntervals. Any other
// domain, or any other response code, is returned as-is.
func (c *Controller) onDispatchSchedule(ctx context.Context, rsp *ScheduleResponse, req *types.ScheduleRequest) (*ScheduleResponse, error) {
	escalates := rsp.Code == schederr.CodeResourceNotEnough || rsp.Code == schederr.CodeAffinityScheduleFailed
	if !escalates || !c.isHeader {
		c.clearRetryState(req.RequestID)
		return rsp, nil
	}

	c.mu.Lock()
	scalerEnabled := c.scalerEnabled
	c.mu.Unlock()

	// A request pinned to a specific affinity pool cannot be satisfied
	// by scaling out a fresh, unrelated agent.
	if scalerEnabled && req.Instance.ScheduleOption.ResourceSelector.Pool != "" {
		scalerEnabled = false
	}

	if scalerEnabled {
		assignFreshAffinityOwner(req)
		if _, err := c.createAgentWithRetry(ctx, req); err == nil {
			req.ScheduleRound++
			return c.Schedule(ctx, req)
		}
		c.clearRetryState(req.RequestID)
		return rsp, nil
	}

	c.mu.Lock()
	tries := c.requestTrySchedTimes[req.RequestID]
	intervals := c.retryScheduleIntervals
	c.mu.Unlock()

	if tries >= 1 && tries <= len(intervals) {
		select {
		case <-time.After(intervals[tries-1]):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		req.ScheduleRound++
		return c.Schedule(ctx, req)
	}

	c.clearRetryState(req.RequestID)
	return rsp, nil
}

// assignFreshAffinityOwner gives a request a private affinity owner
// before scaling out a new agent for it, unless it already names an
// existing pool to scale into.
func assignFreshAffinityOwner(req *types.ScheduleRequest) {
	sel := &req.Instance.ScheduleOption.ResourceSelector
	if sel.Pool != "" {
		return
	}
	if sel.Owner == "" || sel.Owner == "default" {
		sel.Owner = uuid.NewString()
	}
}

func (c *Controller) createAgentWithRetry(ctx context.Context, req *types.ScheduleRequest) (*CreateAgentResult, error) {
	c.mu.Lock()
	scaler := c.scaler
	interval := c.createAgentRetryInterval
	c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < defaultCreateAgentMaxAttempts; attempt++ {
		result, err := scaler.CreateAgent(ctx, req)
		if err == nil {
			if result.Code != schederr.CodeOK && result.Code != "" {
				return nil, schederr.New(result.Code, "%s", result.Message)
			}
			return result, nil
		}
		lastErr = err
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, schederr.New(schederr.CodeUnitUnavailable,
		"create agent for request %s timed out after %d attempts: %v", req.RequestID, defaultCreateAgentMaxAttempts, lastErr)
}
