package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"

	"split-harness-go/operators"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var (
	ErrTaskNotRegistered = errors.New("task not registered with exchange")
)

type Client struct {
	conn *grpc.ClientConn
	own  bool
}

// Dial connects to an exchange server at target.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial exchange %s: %w", target, err)
	}
	return &Client{conn: conn, own: true}, nil
}

// NewClient wraps an existing connection, which stays owned by the caller.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) Close() error {
	if c.own {
		return c.conn.Close()
	}
	return nil
}

// Stream is the remote output of one task.
type Stream struct {
	stream grpc.ClientStream
	mem    memory.Allocator
}

// Fetch opens the output of taskID. Batches are decoded into mem.
func (c *Client) Fetch(ctx context.Context, taskID string, mem memory.Allocator) (*Stream, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], fetchMethod)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(wrapperspb.String(taskID)); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &Stream{stream: stream, mem: mem}, nil
}

// Next returns the next batch, or io.EOF once the remote task is done.
func (s *Stream) Next() (*operators.RecordBatch, error) {
	msg := new(wrapperspb.BytesValue)
	if err := s.stream.RecvMsg(msg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotRegistered, status.Convert(err).Message())
		}
		return nil, err
	}
	return DecodeBatch(msg.GetValue(), s.mem)
}
