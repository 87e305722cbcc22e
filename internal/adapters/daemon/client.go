package daemon

import (
	"context"
	"errors"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client implements ports.DaemonClient.
type Client struct {
	conn   grpc.ClientConnInterface
	closer func() error
}

var _ ports.DaemonClient = (*Client)(nil)

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn, closer: func() error { return nil }}
}

// Dial connects to the daemon of root over its Unix socket.
// grpc.NewClient returns immediately; the connection is made on the first RPC.
func Dial(root string) (*Client, error) {
	target := "unix://" + domain.DaemonSocketPath(root)
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, zerr.Wrap(err, "daemon client creation failed")
	}
	c := NewClient(conn)
	c.closer = conn.Close
	return c, nil
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, callError(err)
	}
	return out, nil
}

func callError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		return zerr.Wrap(err, domain.ErrDaemonUnavailable.Error())
	case codes.Canceled:
		return context.Canceled
	default:
		return errors.New(st.Message())
	}
}

// Ping implements ports.DaemonClient.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.invoke(ctx, pingMethod, &structpb.Struct{})
	return err
}

// Status implements ports.DaemonClient.
func (c *Client) Status(ctx context.Context) (*ports.DaemonStatus, error) {
	out, err := c.invoke(ctx, statusMethod, &structpb.Struct{})
	if err != nil {
		return nil, err
	}
	return statusFromStruct(out)
}

// Build implements ports.DaemonClient. A build with failed rules returns its result
// together with domain.ErrBuildExecutionFailed.
func (c *Client) Build(ctx context.Context, req ports.BuildRequest) (*domain.BuildResult, error) {
	out, err := c.invoke(ctx, buildMethod, buildRequestToStruct(req))
	if err != nil {
		return nil, err
	}
	result, failed, err := buildResultFromStruct(out)
	if err != nil {
		return nil, err
	}
	if failed {
		return result, domain.ErrBuildExecutionFailed
	}
	return result, nil
}

// Shutdown implements ports.DaemonClient.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.invoke(ctx, shutdownMethod, &structpb.Struct{})
	return err
}

// Close implements ports.DaemonClient.
func (c *Client) Close() error {
	return c.closer()
}
