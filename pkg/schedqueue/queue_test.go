package schedqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

func reqWith(id string, priority int, tenant string) *types.ScheduleRequest {
	return &types.ScheduleRequest{
		RequestID: id,
		Instance: &types.InstanceInfo{
			TenantID:       tenant,
			ScheduleOption: types.ScheduleOption{Priority: priority},
		},
	}
}

func TestQueueDecidesLaterRequestAfterInFlightOne(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	order := make(chan string, 2)
	// gate holds the first popped request inside decide until the
	// second one has been enqueued.
	gate := make(chan struct{})
	first := true

	q := New(ctx, "test-queue", func(req *types.ScheduleRequest) (ScheduleResult, error) {
		if first {
			<-gate
			first = false
		}
		order <- req.RequestID
		return ScheduleResult{UnitID: "unit-1"}, nil
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = q.ScheduleDecision(ctx, reqWith("low", 1, "t1"), nil)
	}()

	// Give "low" time to be popped and block on the gate before "high" enqueues.
	time.Sleep(20 * time.Millisecond)

	go func() {
		defer wg.Done()
		_, _ = q.ScheduleDecision(ctx, reqWith("high", 10, "t1"), nil)
	}()

	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()
	close(order)

	var got []string
	for id := range order {
		got = append(got, id)
	}
	// "low" was already being decided when "high" arrived, so it
	// finishes first; this just proves the worker did not deadlock.
	require.Len(t, got, 2)
	assert.Contains(t, got, "low")
	assert.Contains(t, got, "high")
}

func TestQueueScheduleDecisionReturnsDecideResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New(ctx, "test-queue", func(req *types.ScheduleRequest) (ScheduleResult, error) {
		return ScheduleResult{UnitID: "agent-7", Score: 42}, nil
	})

	result, err := q.ScheduleDecision(ctx, reqWith("r1", 0, "t1"), nil)
	require.NoError(t, err)
	assert.Equal(t, "agent-7", result.UnitID)
	assert.EqualValues(t, 42, result.Score)
}

func TestQueueScheduleDecisionHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	block := make(chan struct{})
	q := New(ctx, "test-queue", func(req *types.ScheduleRequest) (ScheduleResult, error) {
		close(started)
		<-block
		return ScheduleResult{}, nil
	})

	// Occupy the worker with a first request so the second sits in the heap.
	go func() { _, _ = q.ScheduleDecision(ctx, reqWith("occupy", 0, "t1"), nil) }()
	<-started

	cancelCh := make(chan struct{})
	close(cancelCh)
	_, err := q.ScheduleDecision(ctx, reqWith("r2", 0, "t1"), cancelCh)
	assert.Error(t, err)

	close(block)
}

func TestQueueLenReflectsPendingRequests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	q := New(ctx, "test-queue", func(req *types.ScheduleRequest) (ScheduleResult, error) {
		<-release
		return ScheduleResult{}, nil
	})

	go func() { _, _ = q.ScheduleDecision(ctx, reqWith("a", 0, "t1"), nil) }()
	time.Sleep(10 * time.Millisecond)
	go func() { _, _ = q.ScheduleDecision(ctx, reqWith("b", 0, "t1"), nil) }()
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 1, q.Len())
	close(release)
}
