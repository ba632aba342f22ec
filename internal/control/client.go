package control

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"go.klb.dev/clipbridge/internal/ipc"
)

// Client talks to a running host's control endpoint.
type Client struct {
	conn *grpc.ClientConn
}

// Dial returns a Client for the control socket at path. No connection is
// made until the first call.
func Dial(path string) (*Client, error) {
	return DialWith(func(ctx context.Context, _ string) (net.Conn, error) {
		return ipc.Dial(ctx, path)
	})
}

// DialWith returns a Client that connects through dial.
func DialWith(dial func(context.Context, string) (net.Conn, error)) (*Client, error) {
	// No auth needed: the socket is local and owner-restricted by the OS.
	conn, err := grpc.NewClient("passthrough:///clipbridge",
		grpc.WithContextDialer(dial),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("control client: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Status fetches the bridge state.
func (c *Client) Status(ctx context.Context) (Status, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodStatus, &emptypb.Empty{}, out); err != nil {
		return Status{}, err
	}
	return statusFromStruct(out)
}

// SetEnabled toggles clipboard integration and returns the resulting state.
func (c *Client) SetEnabled(ctx context.Context, on bool) (Status, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodSetEnabled, wrapperspb.Bool(on), out); err != nil {
		return Status{}, err
	}
	return statusFromStruct(out)
}

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }
