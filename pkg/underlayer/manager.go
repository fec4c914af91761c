package underlayer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/yuanrong-scheduler/pkg/instancectrl"
	"github.com/cuemby/yuanrong-scheduler/pkg/log"
	"github.com/cuemby/yuanrong-scheduler/pkg/metrics"
	"github.com/cuemby/yuanrong-scheduler/pkg/rpc"
	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// local tracks one registered local proxy's connection and health.
type local struct {
	id      string
	addr    string
	client  *rpc.Client
	healthy bool
	misses  int
	stopCh  chan struct{}
}

// Manager implements instancectrl.Underlayer and GroupTransport over a
// set of registered local proxies, keyed by the same unit id the
// resource view uses for that local's top-level ResourceUnit.
type Manager struct {
	mu     sync.RWMutex
	locals map[string]*local

	cfg     Config
	onReady ResyncHandler

	logger zerolog.Logger
}

// New constructs a Manager. onReady may be nil if the caller does not
// need resync notifications (e.g. in tests).
func New(cfg Config, onReady ResyncHandler) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg = DefaultConfig()
	}
	return &Manager{
		locals:  make(map[string]*local),
		cfg:     cfg,
		onReady: onReady,
		logger:  log.WithComponent("underlayer"),
	}
}

// RegisterLocal dials addr and begins heartbeating unitID, which must
// match the id of the top-level ResourceUnit that local owns.
func (m *Manager) RegisterLocal(unitID, addr string) error {
	client, err := rpc.Dial(addr)
	if err != nil {
		return schederr.New(schederr.CodeUnderlayerUnavailable, "dial local %s at %s: %v", unitID, addr, err)
	}

	l := &local{id: unitID, addr: addr, client: client, healthy: true, stopCh: make(chan struct{})}

	m.mu.Lock()
	if existing, ok := m.locals[unitID]; ok {
		close(existing.stopCh)
		existing.client.Close()
	}
	m.locals[unitID] = l
	m.mu.Unlock()

	metrics.LocalsHealthy.Inc()
	go m.heartbeatLoop(l)
	return nil
}

// UnregisterLocal closes the connection and stops heartbeating unitID.
func (m *Manager) UnregisterLocal(unitID string) {
	m.mu.Lock()
	l, ok := m.locals[unitID]
	if ok {
		delete(m.locals, unitID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	close(l.stopCh)
	if l.healthy {
		metrics.LocalsHealthy.Dec()
	}
	l.client.Close()
}

func (m *Manager) getLocal(unitID string) (*local, error) {
	m.mu.RLock()
	l, ok := m.locals[unitID]
	m.mu.RUnlock()
	if !ok {
		return nil, schederr.New(schederr.CodeUnderlayerUnavailable, "no registered local for unit %s", unitID)
	}
	if !l.healthy {
		return nil, schederr.New(schederr.CodeUnderlayerUnavailable, "local %s is unhealthy", unitID)
	}
	return l, nil
}

func (m *Manager) heartbeatLoop(l *local) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			m.beat(l)
		}
	}
}

func (m *Manager) beat(l *local) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HeartbeatInterval)
	defer cancel()

	_, err := l.client.Heartbeat(ctx, &rpc.HeartbeatRequest{LocalID: l.id, SentAt: time.Now().UnixNano()})

	m.mu.Lock()
	wasHealthy := l.healthy
	if err != nil {
		l.misses++
		if l.misses >= m.cfg.TimeoutMultiple {
			l.healthy = false
		}
	} else {
		l.misses = 0
		l.healthy = true
	}
	becameHealthy := l.healthy && !wasHealthy
	becameUnhealthy := !l.healthy && wasHealthy
	m.mu.Unlock()

	if becameUnhealthy {
		metrics.LocalsHealthy.Dec()
		m.logger.Warn().Str("local_id", l.id).Msg("local marked unhealthy, heartbeat timeout exceeded")
	}
	if becameHealthy {
		metrics.LocalsHealthy.Inc()
		m.logger.Info().Str("local_id", l.id).Msg("local recovered, triggering resync")
		if m.onReady != nil {
			go m.onReady(l.id)
		}
	}
}

// DispatchSchedule implements instancectrl.Underlayer.
func (m *Manager) DispatchSchedule(ctx context.Context, unitID string, req *types.ScheduleRequest) (*instancectrl.ScheduleResponse, error) {
	l, err := m.getLocal(unitID)
	if err != nil {
		return nil, err
	}

	timer := metrics.NewTimer()
	rsp, err := l.client.Dispatch(ctx, &rpc.DispatchRequest{
		RequestID: req.RequestID,
		TraceID:   req.TraceID,
		UnitID:    unitID,
		Instance:  req.Instance,
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	timer.ObserveDurationVec(metrics.UnderlayerCallDuration, "dispatch")
	metrics.UnderlayerCallsTotal.WithLabelValues("dispatch", outcome).Inc()
	if err != nil {
		return nil, schederr.New(schederr.CodeUnderlayerUnavailable, "dispatch to unit %s: %v", unitID, err)
	}

	return &instancectrl.ScheduleResponse{
		RequestID: rsp.RequestID,
		Code:      schederr.Code(rsp.Code),
		Message:   rsp.Message,
		Contexts:  rsp.Contexts,
	}, nil
}
