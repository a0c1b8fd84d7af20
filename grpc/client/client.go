package client

import (
	"context"
	"net"

	"github.com/qpipe/qpipe"
	"google.golang.org/grpc"
)

// NewClientConn builds a grpc client connection whose underlying transport
// is a local duplex pair channel drawn from provider. Every connect attempt
// by grpc acquires a fresh pair, the dial address is the sentinel and never
// a real endpoint. The pair never leaves the process, so the connection is
// plaintext.
func NewClientConn(provider *qpipe.Provider, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithInsecure(),
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return provider.Dial()
		}),
	}, opts...)

	return grpc.Dial(qpipe.SentinelAddr().String(), dialOpts...)
}
