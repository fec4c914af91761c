// Package ha elects a leader among a domain scheduler's replicas with
// github.com/hashicorp/raft, so only one replica at a time places
// requests from its schedule queues (spec §3.1's "other domain/group schedulers ...
// elect one leader" requirement). The FSM itself carries no real
// scheduling state -- group/resource state lives in pkg/storage and
// is resynced from the underlayer -- it exists only to give raft a
// log to commit leadership over.
package ha

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"

	"github.com/cuemby/yuanrong-scheduler/pkg/log"
)

// Peer is one voting member of the raft group.
type Peer struct {
	ID   string
	Addr string
}

// Config configures a single replica's raft participation.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	// Bootstrap, when true, forms a brand-new single- or multi-member
	// cluster from Peers on first start. A replica joining an existing
	// cluster leaves this false and is added by the current leader via
	// AddVoter instead.
	Bootstrap bool
	Peers     []Peer
}

// OnLeaderChange is invoked (on its own goroutine) whenever this
// replica's leadership status changes, so the driver can gate its
// scheduling decisions on it.
type OnLeaderChange func(isLeader bool)

// Group wraps one replica's participation in the raft leader-election
// group. It satisfies pkg/metrics.RaftStatus.
type Group struct {
	raft   *raft.Raft
	fsm    *fsm
	nodeID string

	onChange OnLeaderChange
	stopCh   chan struct{}

	logger zerolog.Logger
}

// New starts this replica's raft participant and begins watching for
// leadership changes. onChange may be nil.
func New(cfg Config, onChange OnLeaderChange) (*Group, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create ha data dir: %w", err)
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve ha bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create raft snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("create raft stable store: %w", err)
	}

	f := newFSM()
	r, err := raft.NewRaft(raftCfg, f, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("create raft node: %w", err)
	}

	if cfg.Bootstrap {
		servers := make([]raft.Server, 0, len(cfg.Peers)+1)
		servers = append(servers, raft.Server{ID: raftCfg.LocalID, Address: transport.LocalAddr()})
		for _, p := range cfg.Peers {
			if p.ID == cfg.NodeID {
				continue
			}
			servers = append(servers, raft.Server{ID: raft.ServerID(p.ID), Address: raft.ServerAddress(p.Addr)})
		}
		future := r.BootstrapCluster(raft.Configuration{Servers: servers})
		if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
			return nil, fmt.Errorf("bootstrap raft cluster: %w", err)
		}
	}

	g := &Group{
		raft:     r,
		fsm:      f,
		nodeID:   cfg.NodeID,
		onChange: onChange,
		stopCh:   make(chan struct{}),
		logger:   log.WithComponent("ha"),
	}
	go g.watchLeadership()
	return g, nil
}

// IsLeader reports whether this replica currently holds leadership.
func (g *Group) IsLeader() bool {
	return g.raft.State() == raft.Leader
}

// AppliedIndex returns the raft log index this replica has applied.
func (g *Group) AppliedIndex() uint64 {
	return g.raft.AppliedIndex()
}

// Leader returns the current leader's node id, or "" if none is
// known.
func (g *Group) Leader() string {
	_, id := g.raft.LeaderWithID()
	return string(id)
}

// AddVoter adds a new replica to the cluster; only the leader may call
// this successfully.
func (g *Group) AddVoter(nodeID, addr string) error {
	future := g.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 10*time.Second)
	return future.Error()
}

// RemoveServer removes a replica from the cluster; only the leader
// may call this successfully.
func (g *Group) RemoveServer(nodeID string) error {
	future := g.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	return future.Error()
}

// Shutdown stops this replica's raft participation.
func (g *Group) Shutdown() error {
	close(g.stopCh)
	return g.raft.Shutdown().Error()
}

// watchLeadership applies a leadership-epoch marker each time this
// replica becomes leader (so AppliedIndex/epoch genuinely advances
// through raft, not just through local state) and notifies onChange
// on every transition either way.
func (g *Group) watchLeadership() {
	for {
		select {
		case <-g.stopCh:
			return
		case isLeader, ok := <-g.raft.LeaderCh():
			if !ok {
				return
			}
			if isLeader {
				g.markEpoch()
			}
			g.logger.Info().Str("node_id", g.nodeID).Bool("is_leader", isLeader).Msg("leadership changed")
			if g.onChange != nil {
				go g.onChange(isLeader)
			}
		}
	}
}

func (g *Group) markEpoch() {
	_, epoch := g.fsm.currentEpoch()
	data, err := json.Marshal(command{LeaderID: g.nodeID, Epoch: epoch + 1})
	if err != nil {
		return
	}
	g.raft.Apply(data, 5*time.Second)
}
