package underlayer

import (
	"context"

	"github.com/cuemby/yuanrong-scheduler/pkg/metrics"
	"github.com/cuemby/yuanrong-scheduler/pkg/rpc"
	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// timed runs call, recording its duration and outcome under op, and
// returns call's error unchanged.
func (m *Manager) timed(op string, call func() error) error {
	timer := metrics.NewTimer()
	err := call()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	timer.ObserveDurationVec(metrics.UnderlayerCallDuration, op)
	metrics.UnderlayerCallsTotal.WithLabelValues(op, outcome).Inc()
	return err
}

// Reserve implements GroupTransport.
func (m *Manager) Reserve(ctx context.Context, unitID string, req *types.ScheduleRequest) (*ReservationResult, error) {
	l, err := m.getLocal(unitID)
	if err != nil {
		return nil, err
	}

	var rsp *rpc.ReserveResponse
	callErr := m.timed("reserve", func() error {
		var err error
		rsp, err = l.client.Reserve(ctx, &rpc.ReserveRequest{
			RequestID: req.RequestID,
			TraceID:   req.TraceID,
			UnitID:    unitID,
			Instance:  req.Instance,
		})
		return err
	})
	if callErr != nil {
		return nil, schederr.New(schederr.CodeUnderlayerUnavailable, "reserve on unit %s: %v", unitID, callErr)
	}
	if rsp.Code != "" && schederr.Code(rsp.Code) != schederr.CodeOK {
		return nil, schederr.New(schederr.Code(rsp.Code), "%s", rsp.Message)
	}
	return &ReservationResult{Token: rsp.Token, DeviceSlice: rsp.DeviceSlice}, nil
}

// UnReserve implements GroupTransport.
func (m *Manager) UnReserve(ctx context.Context, unitID, token string) error {
	l, err := m.getLocal(unitID)
	if err != nil {
		return err
	}
	return m.timed("unreserve", func() error {
		_, err := l.client.UnReserve(ctx, &rpc.UnReserveRequest{UnitID: unitID, Token: token})
		return err
	})
}

// Bind implements GroupTransport.
func (m *Manager) Bind(ctx context.Context, unitID, token string, createOptions map[string]string) (*BindResult, error) {
	l, err := m.getLocal(unitID)
	if err != nil {
		return nil, err
	}

	var rsp *rpc.BindResponse
	callErr := m.timed("bind", func() error {
		var err error
		rsp, err = l.client.Bind(ctx, &rpc.BindRequest{UnitID: unitID, Token: token, CreateOptions: createOptions})
		return err
	})
	if callErr != nil {
		return nil, schederr.New(schederr.CodeUnderlayerUnavailable, "bind on unit %s: %v", unitID, callErr)
	}
	if rsp.Code != "" && schederr.Code(rsp.Code) != schederr.CodeOK {
		return nil, schederr.New(schederr.Code(rsp.Code), "%s", rsp.Message)
	}
	return &BindResult{Contexts: rsp.Contexts}, nil
}

// UnBind implements GroupTransport.
func (m *Manager) UnBind(ctx context.Context, unitID string, requestID string) error {
	l, err := m.getLocal(unitID)
	if err != nil {
		return err
	}
	return m.timed("unbind", func() error {
		_, err := l.client.UnBind(ctx, &rpc.UnBindRequest{UnitID: unitID, RequestID: requestID})
		return err
	})
}

// ClearGroup implements GroupTransport. unitIDs may span multiple
// locals; each gets its own call since a group can straddle units.
func (m *Manager) ClearGroup(ctx context.Context, groupID string, unitIDs []string) error {
	var firstErr error
	for _, unitID := range unitIDs {
		l, err := m.getLocal(unitID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		err = m.timed("clear_group", func() error {
			_, err := l.client.ClearGroup(ctx, &rpc.ClearGroupRequest{GroupID: groupID, UnitIDs: []string{unitID}})
			return err
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Preempt implements GroupTransport.
func (m *Manager) Preempt(ctx context.Context, unitID string, victimInstanceIDs []string, reason string) error {
	l, err := m.getLocal(unitID)
	if err != nil {
		return err
	}
	err = m.timed("preempt", func() error {
		_, err := l.client.Preempt(ctx, &rpc.PreemptRequest{UnitID: unitID, VictimInstanceIDs: victimInstanceIDs, Reason: reason})
		return err
	})
	if err == nil {
		metrics.PreemptionsTotal.Add(float64(len(victimInstanceIDs)))
	}
	return err
}

// PullResource asks unitID's local for every change since sinceRevision,
// used both for the periodic poller and for the post-recovery resync.
func (m *Manager) PullResource(ctx context.Context, unitID string, sinceRevision int64) (*types.ResourceUnitChanges, error) {
	l, err := m.getLocal(unitID)
	if err != nil {
		return nil, err
	}

	timer := metrics.NewTimer()
	var rsp *rpc.PullResourceResponse
	callErr := m.timed("pull_resource", func() error {
		var err error
		rsp, err = l.client.PullResource(ctx, &rpc.PullResourceRequest{LocalID: unitID, SinceRevision: sinceRevision})
		return err
	})
	timer.ObserveDuration(metrics.PollDuration)
	if callErr != nil {
		return nil, schederr.New(schederr.CodeUnderlayerUnavailable, "pull resource from %s: %v", unitID, callErr)
	}
	return &rsp.Changes, nil
}
