package engine

import (
	"context"
	"io"
	"time"
)

// Conn is the bidirectional byte stream contract spec.md section 6
// requires of a transport: async read/write plus a close primitive.
// The core makes no assumption beyond this about what carries the
// bytes (TCP, TLS, a Unix socket, an in-memory pipe for tests).
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Transport is the abstract connector the engine uses to obtain a
// fresh Conn on every (re)connection attempt. TLS handshake details,
// DNS resolution and credential storage are explicitly out of scope
// (spec.md section 1) and live behind this boundary, not inside it.
type Transport interface {
	Connect(ctx context.Context, endpoint EndpointConfig) (Conn, error)
}

// EndpointConfig addresses the server and carries the credentials
// folded into the HELLO/AUTH/SELECT handshake (spec.md section 6).
type EndpointConfig struct {
	Host           string
	Port           string
	Username       string
	Password       string
	ClientName     string
	DatabaseIndex  int
	HasDatabaseIdx bool
}

// Timeouts holds the durations for the phases of a connection attempt
// and the steady-state health check. A zero value disables the
// corresponding check (spec.md section 6). The engine reads only
// ConnectTimeout, PingInterval and HealthCheckTimeout; ResolveTimeout,
// SSLHandshakeTimeout and ReconnectWaitInterval are carried but not
// applied.
type Timeouts struct {
	ResolveTimeout        time.Duration
	ConnectTimeout        time.Duration
	SSLHandshakeTimeout   time.Duration
	PingInterval          time.Duration
	HealthCheckTimeout    time.Duration
	ReconnectWaitInterval time.Duration
}
