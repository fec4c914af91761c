package ha

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func TestSingleNodeBecomesLeader(t *testing.T) {
	addr := freeAddr(t)
	changes := make(chan bool, 4)

	g, err := New(Config{
		NodeID:    "node-1",
		BindAddr:  addr,
		DataDir:   t.TempDir(),
		Bootstrap: true,
		Peers:     []Peer{{ID: "node-1", Addr: addr}},
	}, func(isLeader bool) { changes <- isLeader })
	require.NoError(t, err)
	t.Cleanup(func() { g.Shutdown() })

	select {
	case isLeader := <-changes:
		assert.True(t, isLeader)
	case <-time.After(5 * time.Second):
		t.Fatal("single-node raft group never elected a leader")
	}

	assert.True(t, g.IsLeader())
	assert.Equal(t, "node-1", g.Leader())

	assert.Eventually(t, func() bool {
		return g.AppliedIndex() > 0
	}, 2*time.Second, 20*time.Millisecond, "the leadership-epoch marker must be applied through raft")
}

func TestAddVoterRejectedOnNonLeader(t *testing.T) {
	// Exercises the error path: AddVoter against a node that never
	// bootstrapped has no leader yet, so the call must fail rather
	// than hang.
	addr := freeAddr(t)
	g, err := New(Config{
		NodeID:   "node-2",
		BindAddr: addr,
		DataDir:  t.TempDir(),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { g.Shutdown() })

	err = g.AddVoter("node-3", "127.0.0.1:1")
	assert.Error(t, err, fmt.Sprintf("node %s has no leader and must reject AddVoter", g.nodeID))
}
