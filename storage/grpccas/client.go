package grpccas

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/ans104/cidutil"
	"xdao.co/ans104/storage"
)

// Client implements storage.CAS over a CAS gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client CASClient

	// Timeout applies per RPC when non-zero. For streams it bounds the whole
	// transfer.
	Timeout time.Duration
}

var _ storage.CAS = (*Client)(nil)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

// NewClient wraps an established connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewCASClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// Put streams r to the service in ChunkSize messages and checks the returned
// CID against the bytes sent.
func (c *Client) Put(ctx context.Context, r io.Reader) (cid.Cid, error) {
	if c == nil || c.client == nil {
		return cid.Undef, errors.New("grpccas: client not connected")
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	stream, err := c.client.Put(ctx)
	if err != nil {
		return cid.Undef, mapRPC(err)
	}
	h := cidutil.NewHasher()
	for {
		// A fresh buffer per message: the stream may retain sent messages.
		buf := make([]byte, ChunkSize)
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			h.Write(buf[:n])
			if err := stream.Send(wrapperspb.Bytes(buf[:n])); err != nil {
				if err == io.EOF {
					// The server ended the stream; its status is in CloseAndRecv.
					break
				}
				return cid.Undef, mapRPC(err)
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			cancel()
			return cid.Undef, rerr
		}
	}
	reply, err := stream.CloseAndRecv()
	if err != nil {
		return cid.Undef, mapRPC(err)
	}
	id, err := cid.Decode(reply.GetValue())
	if err != nil || !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	expected, err := h.CID()
	if err != nil {
		return cid.Undef, err
	}
	if !id.Equals(expected) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

// Get opens a server stream for id. The first message is received before
// returning so that ErrNotFound surfaces here rather than on Read.
func (c *Client) Get(ctx context.Context, id cid.Cid) (io.ReadCloser, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	if c == nil || c.client == nil {
		return nil, errors.New("grpccas: client not connected")
	}
	ctx, cancel := c.ctx(ctx)
	stream, err := c.client.Get(ctx, wrapperspb.String(id.String()))
	if err != nil {
		cancel()
		return nil, mapRPC(err)
	}
	first, err := stream.Recv()
	r := &streamReader{chunkReader: chunkReader{recv: stream.Recv}, cancel: cancel}
	switch {
	case err == io.EOF:
		r.err = io.EOF
	case err != nil:
		cancel()
		return nil, mapRPC(err)
	default:
		r.buf = first.GetValue()
	}
	return storage.VerifyReader(id, r), nil
}

func (c *Client) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() || c == nil || c.client == nil {
		return false
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Has(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return false
	}
	return reply.GetValue()
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}

type streamReader struct {
	chunkReader
	cancel context.CancelFunc
}

func (r *streamReader) Close() error {
	r.cancel()
	return nil
}
