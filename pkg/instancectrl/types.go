package instancectrl

import (
	"context"

	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// ScheduleResponse is the final answer handed back to whoever
// submitted a ScheduleRequest.
type ScheduleResponse struct {
	RequestID string
	Code      schederr.Code
	Message   string
	Contexts  map[string]string
}

// Underlayer dispatches a decided placement to the chosen resource
// unit and reports back whether it was accepted. Implemented by
// pkg/underlayer's grpc client over the domain<->local channel.
type Underlayer interface {
	DispatchSchedule(ctx context.Context, unitID string, req *types.ScheduleRequest) (*ScheduleResponse, error)
}

// CreateAgentResult is the scaler's answer to an on-demand agent
// creation request.
type CreateAgentResult struct {
	Code                  schederr.Code
	Message               string
	UpdatedCreateOptions  map[string]string
}

// Scaler asks an external agent pool manager to bring up a new agent
// matching a request's resource shape, used when no existing unit can
// satisfy it. Only the header (top) domain talks to a Scaler.
type Scaler interface {
	CreateAgent(ctx context.Context, req *types.ScheduleRequest) (*CreateAgentResult, error)
}
