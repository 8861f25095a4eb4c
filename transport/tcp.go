// Package transport provides the concrete network binding for
// engine.Transport. TLS is explicitly out of scope (spec.md section
// 1); TCP is the plain-TCP case, grounded on the teacher's own use
// of net.Dialer.DialContext for its leader replication link
// (anarchoredis/replication/replication.go).
package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/awinterman/respmux/engine"
)

// TCP dials plain TCP connections for the engine.
type TCP struct {
	Dialer net.Dialer
}

var _ engine.Transport = (*TCP)(nil)

// Connect implements engine.Transport.
func (t *TCP) Connect(ctx context.Context, ep engine.EndpointConfig) (engine.Conn, error) {
	addr := net.JoinHostPort(ep.Host, ep.Port)
	conn, err := t.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return conn, nil
}
