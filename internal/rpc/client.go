package rpc

import (
	"context"
	"fmt"

	"github.com/nidhogg/cognitive-core/internal/core"
	"github.com/nidhogg/cognitive-core/internal/notify"
	"github.com/nidhogg/cognitive-core/internal/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls the cognitive-core service over an existing connection.
type Client struct {
	conn *grpc.ClientConn
	opts []grpc.CallOption
}

// Dial opens a plaintext connection to addr.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps conn. Only cognitive-core calls use the JSON codec, so
// the connection stays usable for the health service.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{
		conn: conn,
		opts: []grpc.CallOption{grpc.CallContentSubtype(codecName)},
	}
}

// Conn exposes the underlying connection.
func (c *Client) Conn() *grpc.ClientConn { return c.conn }

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) GetCognitiveCore(ctx context.Context, req *service.GetRequest) (*core.CognitiveCore, error) {
	out := new(core.CognitiveCore)
	if err := c.conn.Invoke(ctx, methodGet, req, out, c.opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateCognitiveCore(ctx context.Context, req *service.UpdateRequest) (*service.UpdateResponse, error) {
	out := new(service.UpdateResponse)
	if err := c.conn.Invoke(ctx, methodUpdate, req, out, c.opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RecordConversation(ctx context.Context, req *service.RecordConversationRequest) (*service.RecordConversationResponse, error) {
	out := new(service.RecordConversationResponse)
	if err := c.conn.Invoke(ctx, methodRecord, req, out, c.opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ActivateAwareness(ctx context.Context, req *service.ActivateRequest) (*service.ActivateResponse, error) {
	out := new(service.ActivateResponse)
	if err := c.conn.Invoke(ctx, methodActivate, req, out, c.opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) QueryMemory(ctx context.Context, req *service.QueryRequest) (*service.QueryResponse, error) {
	out := new(service.QueryResponse)
	if err := c.conn.Invoke(ctx, methodQuery, req, out, c.opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StreamUpdates opens a server stream. Cancel ctx to close it.
func (c *Client) StreamUpdates(ctx context.Context, req *service.StreamRequest) (grpc.ServerStreamingClient[notify.Update], error) {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], methodStream, c.opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[service.StreamRequest, notify.Update]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
