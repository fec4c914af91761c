package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/yuanrong-scheduler/pkg/log"
	"github.com/cuemby/yuanrong-scheduler/pkg/resourceview"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// defaultPollInterval matches spec §6: "Poll interval default 1000 ms,
// configurable."
const defaultPollInterval = time.Second

// Transport is the subset of pkg/underlayer.Manager the poller needs.
type Transport interface {
	PullResource(ctx context.Context, unitID string, sinceRevision int64) (*types.ResourceUnitChanges, error)
}

// Config tunes the poll loop.
type Config struct {
	Interval time.Duration
}

// DefaultConfig returns the spec's default 1s poll interval.
func DefaultConfig() Config {
	return Config{Interval: defaultPollInterval}
}

// Poller periodically pulls every registered local's change-log window
// and applies it to a domain-tier ResourceView. A gap between a local's
// last-reported watermark and the window it returns (start > watermark)
// forces that local back to a full from-scratch pull, matching §4.2's
// "windows whose start_revision > watermark are rejected" rule one
// layer up, before UpdateResourceUnitDelta is ever called with a
// window the view can't apply incrementally.
type Poller struct {
	mu         sync.Mutex
	watermarks map[string]int64

	view      *resourceview.ResourceView
	transport Transport
	cfg       Config

	stopOnce sync.Once
	stopCh   chan struct{}

	logger zerolog.Logger
}

// New wires a Poller over a domain view and the transport it pulls
// through. cfg.Interval <= 0 falls back to DefaultConfig.
func New(view *resourceview.ResourceView, transport Transport, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg = DefaultConfig()
	}
	return &Poller{
		watermarks: make(map[string]int64),
		view:       view,
		transport:  transport,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		logger:     log.WithComponent("poller"),
	}
}

// RegisterLocal adds unitID to the polling set, starting from a full
// resync (revision 0) the next tick.
func (p *Poller) RegisterLocal(unitID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.watermarks[unitID]; !ok {
		p.watermarks[unitID] = 0
	}
}

// UnregisterLocal drops unitID from the polling set, e.g. once its
// underlayer registration is removed.
func (p *Poller) UnregisterLocal(unitID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.watermarks, unitID)
}

// ForceResync resets unitID's watermark to 0, so the next poll pulls
// its full history again. Wired as pkg/underlayer's ResyncHandler: a
// local coming back healthy after a heartbeat outage can't be trusted
// to still agree with our last-known revision.
func (p *Poller) ForceResync(unitID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.watermarks[unitID]; ok {
		p.watermarks[unitID] = 0
	}
}

// Run starts the poll loop on the calling goroutine until ctx is done
// or Stop is called. Callers that want a background loop should run it
// with `go poller.Run(ctx)`.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

// Stop ends the poll loop.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *Poller) registeredLocals() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.watermarks))
	for id := range p.watermarks {
		out = append(out, id)
	}
	return out
}

func (p *Poller) pollAll(ctx context.Context) {
	for _, unitID := range p.registeredLocals() {
		p.pollOne(ctx, unitID)
	}
}

func (p *Poller) pollOne(ctx context.Context, unitID string) {
	p.mu.Lock()
	since := p.watermarks[unitID]
	p.mu.Unlock()

	changes, err := p.transport.PullResource(ctx, unitID, since)
	if err != nil {
		p.logger.Debug().Str("unit_id", unitID).Err(err).Msg("pull resource failed, will retry next interval")
		return
	}

	if changes.StartRevision > since {
		// a gap: this local has moved past what we can apply
		// incrementally (e.g. it restarted and its change log was
		// truncated). Re-pull from scratch on the next tick.
		p.mu.Lock()
		p.watermarks[unitID] = 0
		p.mu.Unlock()
		p.logger.Warn().Str("unit_id", unitID).Int64("since", since).Int64("window_start", changes.StartRevision).
			Msg("resource change log gap detected, forcing full re-sync")
		return
	}

	if err := p.view.UpdateResourceUnitDelta(changes); err != nil {
		p.logger.Warn().Str("unit_id", unitID).Err(err).Msg("apply resource view delta failed")
		return
	}

	p.mu.Lock()
	p.watermarks[unitID] = changes.EndRevision
	p.mu.Unlock()
}
