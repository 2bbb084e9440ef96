package grpccas

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/ans104/storage"
)

// Server exposes a storage.CAS over the CAS gRPC service.
type Server struct {
	UnimplementedCASServer
	CAS    storage.CAS
	Logger *slog.Logger
}

func (s *Server) Put(stream CAS_PutServer) error {
	if s == nil || s.CAS == nil {
		return status.Error(codes.FailedPrecondition, "missing CAS")
	}
	r := &chunkReader{recv: stream.Recv}
	id, err := s.CAS.Put(stream.Context(), r)
	if err != nil {
		return mapErr(err)
	}
	s.logger().Debug("payload stored", "cid", id.String(), "bytes", r.n)
	return stream.SendAndClose(wrapperspb.String(id.String()))
}

func (s *Server) Get(in *wrapperspb.StringValue, stream CAS_GetServer) error {
	if s == nil || s.CAS == nil {
		return status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	rc, err := s.CAS.Get(stream.Context(), id)
	if err != nil {
		return mapErr(err)
	}
	defer rc.Close()

	// rc verifies the CID at EOF, so a corrupted object ends the stream
	// with DataLoss after its bytes were sent.
	buf := make([]byte, ChunkSize)
	for {
		n, err := io.ReadFull(rc, buf)
		if n > 0 {
			if serr := stream.Send(wrapperspb.Bytes(buf[:n])); serr != nil {
				return serr
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return mapErr(err)
		}
	}
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	return wrapperspb.Bool(s.CAS.Has(ctx, id)), nil
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}

// chunkReader adapts a stream of BytesValue messages to io.Reader.
type chunkReader struct {
	recv func() (*wrapperspb.BytesValue, error)
	buf  []byte
	n    int64
	err  error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		m, err := r.recv()
		if err != nil {
			if err != io.EOF {
				err = mapRPC(err)
			}
			r.err = err
			return 0, err
		}
		r.buf = m.GetValue()
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	r.n += int64(n)
	return n, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidCID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrCIDMismatch), errors.Is(err, storage.ErrImmutable):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		if _, ok := status.FromError(err); ok {
			return err
		}
		return status.Error(codes.Internal, err.Error())
	}
}
