// Package driver wires every scheduling component into one running
// process: the resource view, plugin framework, schedule queues,
// instance and group controllers, the underlayer transport, the
// resource poller, HA leadership, persistence and metrics. It plays
// the role cmd/warren's manager bootstrap plays for warren -- storage
// first, then the FSM/raft group, then the actors that depend on them.
package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/yuanrong-scheduler/pkg/groupctrl"
	"github.com/cuemby/yuanrong-scheduler/pkg/ha"
	"github.com/cuemby/yuanrong-scheduler/pkg/instancectrl"
	"github.com/cuemby/yuanrong-scheduler/pkg/log"
	"github.com/cuemby/yuanrong-scheduler/pkg/metrics"
	"github.com/cuemby/yuanrong-scheduler/pkg/poller"
	"github.com/cuemby/yuanrong-scheduler/pkg/recorder"
	"github.com/cuemby/yuanrong-scheduler/pkg/resourceview"
	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/schedplugin"
	"github.com/cuemby/yuanrong-scheduler/pkg/schedqueue"
	"github.com/cuemby/yuanrong-scheduler/pkg/storage"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
	"github.com/cuemby/yuanrong-scheduler/pkg/underlayer"
)

// LocalEndpoint names one local proxy this domain scheduler should
// register with the underlayer and the resource poller at startup.
type LocalEndpoint struct {
	UnitID string
	Addr   string
}

// Config assembles a Driver. DataDir holds both the bbolt group store
// and (when HA.Enabled) the raft log; they live under separate
// subdirectories so the two can be backed up independently.
type Config struct {
	DomainID string
	DataDir  string
	IsHeader bool

	Underlayer underlayer.Config
	Poller     poller.Config
	Group      groupctrl.Config

	FilterNames []string
	ScorerNames []string
	ReserveName string

	Locals []LocalEndpoint

	HA HAConfig
}

// HAConfig toggles raft-backed leader election across domain replicas.
type HAConfig struct {
	Enabled  bool
	NodeID   string
	BindAddr string
	Bootstrap bool
	Peers    []ha.Peer
}

func defaultFilterNames() []string {
	return []string{schedplugin.DefaultFilterName, schedplugin.DefaultHeterogeneousFilterName}
}

func defaultScorerNames() []string {
	return []string{schedplugin.DefaultScorerName, schedplugin.DefaultHeterogeneousScorerName}
}

// Driver owns every long-lived component of one domain scheduler
// replica and the goroutines wiring them together.
type Driver struct {
	cfg Config

	view     *resourceview.ResourceView
	registry *schedplugin.Registry
	fw       *schedplugin.Framework

	primary *schedqueue.Queue
	virtual *schedqueue.Queue
	sched   *schedqueue.Scheduler

	recorder   *recorder.ScheduleRecorder
	underlayer *underlayer.Manager
	poller     *poller.Poller

	instanceCtrl *instancectrl.Controller
	groupCtrl    *groupctrl.Controller

	store storage.Store
	raft  *ha.Group

	collector *metrics.Collector

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	isLeader bool

	logger zerolog.Logger
}

// New assembles a Driver but starts nothing; call Run to bring every
// actor up.
func New(cfg Config) (*Driver, error) {
	if cfg.FilterNames == nil {
		cfg.FilterNames = defaultFilterNames()
	}
	if cfg.ScorerNames == nil {
		cfg.ScorerNames = defaultScorerNames()
	}
	if cfg.ReserveName == "" {
		cfg.ReserveName = schedplugin.DefaultReserveName
	}

	registry := schedplugin.NewDefaultRegistry()
	filters, err := registry.BuildFilters(cfg.FilterNames)
	if err != nil {
		return nil, fmt.Errorf("build filters: %w", err)
	}
	scorers, err := registry.BuildScorers(cfg.ScorerNames)
	if err != nil {
		return nil, fmt.Errorf("build scorers: %w", err)
	}
	reservers, err := registry.BuildReservers([]string{cfg.ReserveName})
	if err != nil {
		return nil, fmt.Errorf("build reserve plugin: %w", err)
	}

	view := resourceview.New(cfg.DomainID, resourceview.Param{IsLocal: false})
	fw := &schedplugin.Framework{Filters: filters, Scorers: scorers, Reserve: reservers[0]}

	var store storage.Store
	if cfg.DataDir != "" {
		store, err = storage.NewBoltStore(cfg.DataDir + "/groups")
		if err != nil {
			return nil, fmt.Errorf("open group store: %w", err)
		}
	}

	d := &Driver{
		cfg:      cfg,
		view:     view,
		registry: registry,
		fw:       fw,
		recorder: recorder.New(),
		store:    store,
		logger:   log.WithComponent("driver"),
	}

	d.underlayer = underlayer.New(cfg.Underlayer, d.onLocalResync)
	d.poller = poller.New(view, d.underlayer, cfg.Poller)

	if cfg.HA.Enabled {
		raftGroup, err := ha.New(ha.Config{
			NodeID:    cfg.HA.NodeID,
			BindAddr:  cfg.HA.BindAddr,
			DataDir:   cfg.DataDir + "/raft",
			Bootstrap: cfg.HA.Bootstrap,
			Peers:     cfg.HA.Peers,
		}, d.onLeaderChange)
		if err != nil {
			return nil, fmt.Errorf("start ha group: %w", err)
		}
		d.raft = raftGroup
	} else {
		d.isLeader = true
	}

	return d, nil
}

// onLeaderChange gates the schedule queues' active-decision state on
// raft leadership: every replica runs the full actor set and its
// queues keep popping requests, but leaderGatedDecide fails every
// decision on a replica that is not the leader.
func (d *Driver) onLeaderChange(isLeader bool) {
	d.mu.Lock()
	d.isLeader = isLeader
	d.mu.Unlock()
	d.logger.Info().Bool("is_leader", isLeader).Msg("domain leadership changed")
}

// onLocalResync is the underlayer.ResyncHandler: a local recovering
// from a heartbeat outage can't be trusted to agree with our last
// watermark, so force the poller to re-pull its full state.
func (d *Driver) onLocalResync(localID string) {
	d.poller.ForceResync(localID)
}

func (d *Driver) buildDecide() schedqueue.Decide {
	return buildDecide(d.view, d.fw)
}

// Run starts every background actor: the two schedule queues, the
// underlayer heartbeat loops, the resource poller, and metrics
// collection, then registers the configured local endpoints. It
// blocks until ctx is canceled.
func (d *Driver) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.primary = schedqueue.New(runCtx, "primary-queue", d.leaderGatedDecide())
	d.virtual = schedqueue.New(runCtx, "virtual-queue", d.leaderGatedDecide())
	d.sched = schedqueue.NewScheduler(d.primary, d.virtual, nil)
	_ = d.sched.RegisterPolicy(string(types.SchedulePolicyDefault))
	_ = d.sched.RegisterPolicy(string(types.SchedulePolicyMonopoly))

	d.instanceCtrl = instancectrl.New(d.sched, d.recorder, d.underlayer, d.cfg.IsHeader)
	d.groupCtrl = groupctrl.New(d.sched, d.underlayer, d.store, d.recorder, d.cfg.DomainID)
	d.groupCtrl.SetConfig(d.cfg.Group)

	var raftStatus metrics.RaftStatus
	if d.raft != nil {
		raftStatus = d.raft
	}
	d.collector = metrics.NewCollector(d.view, d.primary, d.virtual, raftStatus)
	d.collector.Start()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.poller.Run(runCtx)
	}()

	for _, l := range d.cfg.Locals {
		if err := d.RegisterLocal(l.UnitID, l.Addr); err != nil {
			d.logger.Warn().Str("unit_id", l.UnitID).Err(err).Msg("register local at startup failed, will not retry automatically")
		}
	}

	<-runCtx.Done()
	return runCtx.Err()
}

// leaderGatedDecide wraps buildDecide so a non-leader replica's queue
// never actually places anything: it keeps running (so its in-memory
// state warms up from the poller) but every decision fails fast,
// letting the caller's retry land on whichever replica is leader.
func (d *Driver) leaderGatedDecide() schedqueue.Decide {
	inner := d.buildDecide()
	return func(req *types.ScheduleRequest) (schedqueue.ScheduleResult, error) {
		d.mu.Lock()
		leader := d.isLeader
		d.mu.Unlock()
		if !leader {
			return schedqueue.ScheduleResult{}, errNotLeader(d.cfg.DomainID)
		}
		return inner(req)
	}
}

// RegisterLocal wires a newly joined local proxy into both the
// underlayer heartbeat loop and the resource poller.
func (d *Driver) RegisterLocal(unitID, addr string) error {
	if err := d.underlayer.RegisterLocal(unitID, addr); err != nil {
		return err
	}
	d.poller.RegisterLocal(unitID)
	return nil
}

// UnregisterLocal tears down a local proxy's connection and stops
// polling it.
func (d *Driver) UnregisterLocal(unitID string) {
	d.underlayer.UnregisterLocal(unitID)
	d.poller.UnregisterLocal(unitID)
}

// Schedule places a single request, synchronously, through the
// instance controller.
func (d *Driver) Schedule(ctx context.Context, req *types.ScheduleRequest) (*instancectrl.ScheduleResponse, error) {
	return d.instanceCtrl.Schedule(ctx, req)
}

// ScheduleGroup places a gang/range/strict-pack group through the
// group controller.
func (d *Driver) ScheduleGroup(ctx context.Context, group *types.GroupInfo) (*groupctrl.Result, error) {
	return d.groupCtrl.Schedule(ctx, group)
}

// RecoverGroups reloads every group this replica owned before a
// restart, for the caller to reconcile against the current resource
// view (e.g. re-derive in-flight member counts).
func (d *Driver) RecoverGroups() ([]*types.GroupInfo, error) {
	return d.groupCtrl.Recover()
}

// Stop tears every actor down in roughly reverse dependency order.
func (d *Driver) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.primary != nil {
		d.primary.Stop()
	}
	if d.virtual != nil {
		d.virtual.Stop()
	}
	d.poller.Stop()
	if d.collector != nil {
		d.collector.Stop()
	}
	if d.raft != nil {
		if err := d.raft.Shutdown(); err != nil {
			d.logger.Warn().Err(err).Msg("raft shutdown failed")
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("group store close failed")
		}
	}
	d.wg.Wait()
}

// View exposes the domain resource view for read-only use by the
// driver's owning process (e.g. an admin/debug surface); callers must
// not mutate anything returned from it.
func (d *Driver) View() *resourceview.ResourceView { return d.view }

func errNotLeader(domainID string) error {
	return schederr.New(schederr.CodeUnitUnavailable, "domain %s: this replica is not the raft leader", domainID)
}
