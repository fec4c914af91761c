package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/yuanrong-scheduler/pkg/resourceview"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

type fakeTransport struct {
	mu      sync.Mutex
	windows map[string][]*types.ResourceUnitChanges // unitID -> queued windows, popped in order
	calls   int
}

func (f *fakeTransport) PullResource(ctx context.Context, unitID string, sinceRevision int64) (*types.ResourceUnitChanges, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	q := f.windows[unitID]
	if len(q) == 0 {
		return &types.ResourceUnitChanges{LocalID: unitID, StartRevision: sinceRevision, EndRevision: sinceRevision}, nil
	}
	next := q[0]
	f.windows[unitID] = q[1:]
	return next, nil
}

func scalarResources(cpu, mem float64) types.Resources {
	return types.Resources{
		"cpu":    {Name: "cpu", Type: types.ValueTypeScalar, Scalar: &types.Scalar{Value: cpu}},
		"memory": {Name: "memory", Type: types.ValueTypeScalar, Scalar: &types.Scalar{Value: mem}},
	}
}

func TestPollerAppliesDeltaAndAdvancesWatermark(t *testing.T) {
	domainView := resourceview.New("domain-1", resourceview.Param{})
	unit := &types.ResourceUnit{
		ID:          "agent-1",
		Capacity:    scalarResources(8, 16384),
		Allocatable: scalarResources(8, 16384),
		Instances:   make(map[string]*types.InstanceInfo),
		Revision:    1,
	}
	transport := &fakeTransport{windows: map[string][]*types.ResourceUnitChanges{
		"local-1": {
			{
				LocalID:       "local-1",
				StartRevision: 0,
				EndRevision:   1,
				Changes: []types.ResourceUnitChange{
					{Kind: types.ChangeAddition, ResourceUnitID: "agent-1", Revision: 1, Unit: unit},
				},
			},
		},
	}}

	p := New(domainView, transport, Config{Interval: 5 * time.Millisecond})
	p.RegisterLocal("local-1")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		_, ok := domainView.GetResourceUnit("agent-1")
		return ok
	}, 200*time.Millisecond, 5*time.Millisecond, "poller must fold the pulled window into the domain view")

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.watermarks["local-1"] == 1
	}, 200*time.Millisecond, 5*time.Millisecond, "watermark must advance to the window's end revision")

	p.Stop()
}

func TestPollerForceResyncResetsWatermark(t *testing.T) {
	domainView := resourceview.New("domain-1", resourceview.Param{})
	transport := &fakeTransport{windows: map[string][]*types.ResourceUnitChanges{}}
	p := New(domainView, transport, Config{Interval: time.Hour})
	p.RegisterLocal("local-1")

	p.mu.Lock()
	p.watermarks["local-1"] = 42
	p.mu.Unlock()

	p.ForceResync("local-1")

	p.mu.Lock()
	got := p.watermarks["local-1"]
	p.mu.Unlock()
	assert.Equal(t, int64(0), got)
}

func TestPollerDetectsGapAndForcesResync(t *testing.T) {
	domainView := resourceview.New("domain-1", resourceview.Param{})
	transport := &fakeTransport{windows: map[string][]*types.ResourceUnitChanges{
		"local-1": {
			{LocalID: "local-1", StartRevision: 5, EndRevision: 10},
		},
	}}
	p := New(domainView, transport, Config{Interval: time.Hour})
	p.RegisterLocal("local-1")

	p.pollOne(context.Background(), "local-1")

	p.mu.Lock()
	got := p.watermarks["local-1"]
	p.mu.Unlock()
	assert.Equal(t, int64(0), got, "a start revision ahead of our watermark must force a re-sync from zero")
}
