package underlayer

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/cuemby/yuanrong-scheduler/pkg/rpc"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// fakeLocal is a minimal rpc.UnderlayerServer used to exercise Manager
// against a real grpc connection without a live local proxy.
type fakeLocal struct {
	reserveToken string
	dispatchCode string
	healthy      atomic.Bool
}

func (f *fakeLocal) Reserve(ctx context.Context, req *rpc.ReserveRequest) (*rpc.ReserveResponse, error) {
	return &rpc.ReserveResponse{Code: "OK", Token: f.reserveToken, DeviceSlice: []string{"gpu-0"}}, nil
}
func (f *fakeLocal) UnReserve(ctx context.Context, req *rpc.UnReserveRequest) (*rpc.Ack, error) {
	return &rpc.Ack{Code: "OK"}, nil
}
func (f *fakeLocal) Bind(ctx context.Context, req *rpc.BindRequest) (*rpc.BindResponse, error) {
	return &rpc.BindResponse{Code: "OK", Contexts: req.CreateOptions}, nil
}
func (f *fakeLocal) UnBind(ctx context.Context, req *rpc.UnBindRequest) (*rpc.Ack, error) {
	return &rpc.Ack{Code: "OK"}, nil
}
func (f *fakeLocal) ClearGroup(ctx context.Context, req *rpc.ClearGroupRequest) (*rpc.Ack, error) {
	return &rpc.Ack{Code: "OK"}, nil
}
func (f *fakeLocal) Preempt(ctx context.Context, req *rpc.PreemptRequest) (*rpc.Ack, error) {
	return &rpc.Ack{Code: "OK"}, nil
}
func (f *fakeLocal) Dispatch(ctx context.Context, req *rpc.DispatchRequest) (*rpc.DispatchResponse, error) {
	return &rpc.DispatchResponse{RequestID: req.RequestID, Code: f.dispatchCode}, nil
}
func (f *fakeLocal) PullResource(ctx context.Context, req *rpc.PullResourceRequest) (*rpc.PullResourceResponse, error) {
	return &rpc.PullResourceResponse{Changes: types.ResourceUnitChanges{LocalID: req.LocalID}}, nil
}
func (f *fakeLocal) Heartbeat(ctx context.Context, req *rpc.HeartbeatRequest) (*rpc.HeartbeatResponse, error) {
	if !f.healthy.Load() {
		return nil, context.DeadlineExceeded
	}
	return &rpc.HeartbeatResponse{Healthy: true, ServerTime: time.Now().UnixNano()}, nil
}

func startFakeLocal(t *testing.T, srv *fakeLocal) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&rpc.ServiceDesc, srv)
	go grpcServer.Serve(lis)
	t.Cleanup(grpcServer.Stop)

	return lis.Addr().String()
}

func TestDispatchScheduleRoundTrip(t *testing.T) {
	fake := &fakeLocal{dispatchCode: "OK"}
	fake.healthy.Store(true)
	addr := startFakeLocal(t, fake)

	mgr := New(DefaultConfig(), nil)
	require.NoError(t, mgr.RegisterLocal("unit-1", addr))
	t.Cleanup(func() { mgr.UnregisterLocal("unit-1") })

	req := &types.ScheduleRequest{RequestID: "req-1", Instance: &types.InstanceInfo{InstanceID: "inst-1"}}
	rsp, err := mgr.DispatchSchedule(context.Background(), "unit-1", req)
	require.NoError(t, err)
	assert.Equal(t, "req-1", rsp.RequestID)
}

func TestReserveBindRoundTrip(t *testing.T) {
	fake := &fakeLocal{reserveToken: "tok-1"}
	fake.healthy.Store(true)
	addr := startFakeLocal(t, fake)

	mgr := New(DefaultConfig(), nil)
	require.NoError(t, mgr.RegisterLocal("unit-1", addr))
	t.Cleanup(func() { mgr.UnregisterLocal("unit-1") })

	req := &types.ScheduleRequest{RequestID: "req-1", Instance: &types.InstanceInfo{InstanceID: "inst-1"}}
	reservation, err := mgr.Reserve(context.Background(), "unit-1", req)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", reservation.Token)

	bound, err := mgr.Bind(context.Background(), "unit-1", reservation.Token, map[string]string{"FUNCTION_GROUP_RUNNING_INFO": "{}"})
	require.NoError(t, err)
	assert.Equal(t, "{}", bound.Contexts["FUNCTION_GROUP_RUNNING_INFO"])
}

func TestDispatchUnregisteredUnit(t *testing.T) {
	mgr := New(DefaultConfig(), nil)
	_, err := mgr.DispatchSchedule(context.Background(), "missing-unit", &types.ScheduleRequest{RequestID: "req-1", Instance: &types.InstanceInfo{}})
	assert.Error(t, err)
}

func TestResyncCallbackFiresOnRecovery(t *testing.T) {
	fake := &fakeLocal{}
	addr := startFakeLocal(t, fake)

	resynced := make(chan string, 1)
	cfg := Config{HeartbeatInterval: 20 * time.Millisecond, TimeoutMultiple: 2}
	mgr := New(cfg, func(localID string) { resynced <- localID })
	require.NoError(t, mgr.RegisterLocal("unit-1", addr))
	t.Cleanup(func() { mgr.UnregisterLocal("unit-1") })

	time.Sleep(200 * time.Millisecond) // allow heartbeat misses to mark the local unhealthy

	fake.healthy.Store(true)

	select {
	case id := <-resynced:
		assert.Equal(t, "unit-1", id)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("resync handler was not invoked after local recovered")
	}
}
