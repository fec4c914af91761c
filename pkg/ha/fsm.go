package ha

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
)

// command is the only kind of entry this FSM ever applies: a marker
// recording which node held leadership as of a given raft index. The
// domain scheduler's actual state (groups, resource view) is owned by
// pkg/storage and pkg/resourceview directly, resynced from the
// underlayer rather than replicated through raft — this FSM exists
// only to give raft a quorum-committed log to elect a leader over.
type command struct {
	LeaderID string `json:"leader_id"`
	Epoch    int64  `json:"epoch"`
}

// fsm implements raft.FSM. Its only state is the last-applied command,
// exposed through AppliedIndex/CurrentLeader for diagnostics and for
// pkg/metrics' RaftStatus sampling.
type fsm struct {
	mu       sync.RWMutex
	leaderID string
	epoch    int64
}

func newFSM() *fsm {
	return &fsm{}
}

// Apply implements raft.FSM.
func (f *fsm) Apply(log *raft.Log) interface{} {
	var cmd command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal ha command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if cmd.Epoch > f.epoch {
		f.epoch = cmd.Epoch
		f.leaderID = cmd.LeaderID
	}
	return nil
}

// Snapshot implements raft.FSM.
func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return &fsmSnapshot{leaderID: f.leaderID, epoch: f.epoch}, nil
}

// Restore implements raft.FSM.
func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var snap command
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode ha snapshot: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaderID = snap.LeaderID
	f.epoch = snap.Epoch
	return nil
}

func (f *fsm) currentEpoch() (string, int64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.leaderID, f.epoch
}

type fsmSnapshot struct {
	leaderID string
	epoch    int64
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		return json.NewEncoder(sink).Encode(command{LeaderID: s.leaderID, Epoch: s.epoch})
	}()
	if err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
