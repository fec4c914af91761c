package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a thin typed wrapper over a grpc.ClientConn to one local
// proxy, forcing every call onto this package's gob codec.
type Client struct {
	conn *grpc.ClientConn
}

// Dial opens a connection to a local proxy's underlayer-facing server.
// Credential rotation and mTLS are out of scope for this subsystem (see
// DESIGN.md); transport security, if any, is layered on by the
// surrounding deployment.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out)
}

func (c *Client) Reserve(ctx context.Context, req *ReserveRequest) (*ReserveResponse, error) {
	out := new(ReserveResponse)
	if err := c.invoke(ctx, "Reserve", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UnReserve(ctx context.Context, req *UnReserveRequest) (*Ack, error) {
	out := new(Ack)
	if err := c.invoke(ctx, "UnReserve", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Bind(ctx context.Context, req *BindRequest) (*BindResponse, error) {
	out := new(BindResponse)
	if err := c.invoke(ctx, "Bind", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UnBind(ctx context.Context, req *UnBindRequest) (*Ack, error) {
	out := new(Ack)
	if err := c.invoke(ctx, "UnBind", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ClearGroup(ctx context.Context, req *ClearGroupRequest) (*Ack, error) {
	out := new(Ack)
	if err := c.invoke(ctx, "ClearGroup", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Preempt(ctx context.Context, req *PreemptRequest) (*Ack, error) {
	out := new(Ack)
	if err := c.invoke(ctx, "Preempt", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchResponse, error) {
	out := new(DispatchResponse)
	if err := c.invoke(ctx, "Dispatch", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PullResource(ctx context.Context, req *PullResourceRequest) (*PullResourceResponse, error) {
	out := new(PullResourceResponse)
	if err := c.invoke(ctx, "PullResource", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Heartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error) {
	out := new(HeartbeatResponse)
	if err := c.invoke(ctx, "Heartbeat", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// defaultCallTimeout bounds any underlayer call that does not carry its
// own deadline via ctx.
const defaultCallTimeout = 10 * time.Second

// WithDefaultTimeout returns a context with defaultCallTimeout applied
// if ctx does not already carry a deadline.
func WithDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultCallTimeout)
}
