package distributed

import (
	"context"
	"time"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultCallTimeout bounds a single RPC of the client.
const DefaultCallTimeout = 10 * time.Second

// Client is an EventLog backed by a remote event service.
type Client struct {
	conn    grpc.ClientConnInterface
	closer  func() error
	target  string
	timeout time.Duration
}

var _ ports.EventLog = (*Client)(nil)

// NewClient wraps an existing connection. A zero timeout selects DefaultCallTimeout.
func NewClient(conn grpc.ClientConnInterface, target string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Client{conn: conn, target: target, timeout: timeout, closer: func() error { return nil }}
}

// Dial creates a client for the event service at addr.
// The connection is established lazily on the first call.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "event service client creation failed"), "addr", addr)
	}
	c := NewClient(conn, addr, timeout)
	c.closer = conn.Close
	return c, nil
}

// Close releases the connection created by Dial.
func (c *Client) Close() error {
	return c.closer()
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) unavailable(op string, err error) *domain.CacheUnavailableError {
	return &domain.CacheUnavailableError{Backend: "event service " + c.target, Op: op, Err: err}
}

// OpenRun implements ports.EventLog.
func (c *Client) OpenRun(ctx context.Context) (domain.RunID, error) {
	out, err := c.invoke(ctx, openRunMethod, &structpb.Struct{})
	if err != nil {
		return "", c.unavailable("open run", err)
	}
	return parseOpenRunResponse(out)
}

// Publish implements ports.EventLog.
func (c *Client) Publish(ctx context.Context, runID domain.RunID, events []domain.BuildSlaveEvent) ([]int64, error) {
	out, err := c.invoke(ctx, publishEventsMethod, publishRequest(runID, events))
	if err != nil {
		return nil, c.unavailable("publish", err)
	}
	seqs, err := parsePublishResponse(out)
	if err != nil {
		return nil, err
	}
	if len(seqs) != len(events) {
		return nil, zerr.With(zerr.With(ErrMalformedMessage, "sent", len(events)), "acknowledged", len(seqs))
	}
	return seqs, nil
}

// Query implements ports.EventLog. Transport and decoding failures are reported as
// failed ranges, never as errors.
func (c *Client) Query(ctx context.Context, q domain.EventsQuery) domain.EventsRange {
	out, err := c.invoke(ctx, queryEventsMethod, encodeQuery(q).toStruct())
	if err != nil {
		return domain.RangeFailed(q, c.unavailable("query", err).Error())
	}
	w, err := RangeFromStruct(out)
	if err != nil {
		return domain.RangeFailed(q, err.Error())
	}
	r, err := w.Decode()
	if err != nil {
		return domain.RangeFailed(q, err.Error())
	}
	if !r.Succeeded() {
		return r
	}
	first := int64(1)
	if q.First != nil {
		first = *q.First
	}
	if err := domain.VerifyContiguous(q.RunID, first, r.Events()); err != nil {
		return domain.RangeFailed(q, err.Error())
	}
	return r
}
