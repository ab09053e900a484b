package exchange

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"split-harness-go/operators"
	"split-harness-go/util/log"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ResultSource is a stream of batches that ends with io.EOF. An executing task
// is one.
type ResultSource interface {
	Next(ctx context.Context) (*operators.RecordBatch, error)
}

// Server hands out registered result sources to remote readers. Each source
// can be fetched once.
type Server struct {
	mu      sync.Mutex
	sources map[string]ResultSource
	mem     memory.Allocator
	grpc    *grpc.Server
}

func NewServer(mem memory.Allocator, opts ...grpc.ServerOption) *Server {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	s := &Server{
		sources: make(map[string]ResultSource),
		mem:     mem,
		grpc:    grpc.NewServer(opts...),
	}
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Register makes src available under taskID.
func (s *Server) Register(taskID string, src ResultSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[taskID] = src
}

func (s *Server) take(taskID string) (ResultSource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[taskID]
	delete(s.sources, taskID)
	return src, ok
}

// Pending returns how many registered sources have not been fetched yet.
func (s *Server) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

func (s *Server) Serve(lis net.Listener) error {
	log.Infof(context.Background(), "exchange listening on %s", lis.Addr())
	return s.grpc.Serve(lis)
}

func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

func (s *Server) fetch(req *wrapperspb.StringValue, stream grpc.ServerStream) error {
	ctx := log.AddTags(stream.Context(), "task", req.GetValue())
	src, ok := s.take(req.GetValue())
	if !ok {
		return status.Errorf(codes.NotFound, "no task %q registered", req.GetValue())
	}
	var batches int
	for {
		rb, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			log.Debugw(ctx, "exchange stream finished", "batches", batches)
			return nil
		}
		if err != nil {
			log.Errorw(ctx, "exchange source failed", "error", err)
			return status.Error(codes.Internal, err.Error())
		}
		data, err := EncodeBatch(rb, s.mem)
		rb.Release()
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		if err := stream.SendMsg(wrapperspb.Bytes(data)); err != nil {
			return err
		}
		batches++
	}
}
