package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awinterman/respmux/request"
	"github.com/awinterman/respmux/resp/adapter"
)

// fakeTransport always hands back the same pre-dialed Conn, letting
// tests drive both ends of a net.Pipe() directly, the way
// anarchoredis/replication/replication_test.go drives a Subscriber
// over a real listener.
type fakeTransport struct {
	conn Conn
}

func (f *fakeTransport) Connect(ctx context.Context, ep EndpointConfig) (Conn, error) {
	return f.conn, nil
}

// readCommand decodes one RESP3 command array off the wire the way
// request.Request encodes it: *N\r\n($len\r\ndata\r\n)*N.
func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	if len(line) == 0 || line[0] != '*' {
		return nil, fmt.Errorf("fake server: expected array header, got %q", line)
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil {
		return nil, err
	}
	args := make([]string, n)
	for i := 0; i < n; i++ {
		lenLine, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		lenLine = strings.TrimRight(lenLine, "\r\n")
		l, err := strconv.Atoi(lenLine[1:])
		if err != nil {
			return nil, err
		}
		buf := make([]byte, l+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args[i] = string(buf[:l])
	}
	return args, nil
}

const helloReply = "%3\r\n" +
	"+server\r\n+respmux-fake\r\n" +
	"+proto\r\n:3\r\n" +
	"+role\r\n+master\r\n"

// runFakeServer answers HELLO with a canned map reply and every other
// command by looking up replies (keyed upper-case) in the table,
// defaulting to +OK\r\n. Set a "push-before" entry to have the server
// emit a push frame immediately ahead of that command's reply.
func runFakeServer(t *testing.T, conn net.Conn, replies map[string]string, pushBefore map[string]string) {
	t.Helper()
	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		name := strings.ToUpper(args[0])
		if name == "HELLO" {
			if _, err := conn.Write([]byte(helloReply)); err != nil {
				return
			}
			continue
		}
		if push, ok := pushBefore[name]; ok {
			if _, err := conn.Write([]byte(push)); err != nil {
				return
			}
		}
		reply, ok := replies[name]
		if !ok {
			reply = "+OK\r\n"
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
	}
}

func waitForState(t *testing.T, e *Engine, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("engine never reached state %s, stuck at %s", want, e.State())
}

func TestExecRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	e := New(&fakeTransport{conn: client}, EndpointConfig{}, Timeouts{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)
	go runFakeServer(t, server, map[string]string{"PING": "+PONG\r\n"}, nil)

	waitForState(t, e, StateRunning)

	req := request.New()
	require.NoError(t, req.Push("PING"))
	var reply string
	err := e.Exec(ctx, req, []adapter.Adapter{adapter.String{Dst: &reply}})
	require.NoError(t, err)
	assert.Equal(t, "PONG", reply)
}

func TestPushFramesRouteToPushChannel(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	e := New(&fakeTransport{conn: client}, EndpointConfig{}, Timeouts{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	push := ">3\r\n$7\r\nmessage\r\n$3\r\nfoo\r\n$2\r\nhi\r\n"
	go runFakeServer(t, server,
		map[string]string{"GET": "$3\r\nbar\r\n"},
		map[string]string{"GET": push},
	)

	waitForState(t, e, StateRunning)

	req := request.New()
	require.NoError(t, req.Push("GET", "key"))
	var reply string
	err := e.Exec(ctx, req, []adapter.Adapter{adapter.String{Dst: &reply}})
	require.NoError(t, err)
	assert.Equal(t, "bar", reply)

	select {
	case msg := <-e.Push():
		assert.Equal(t, "message", msg.Kind())
	case <-time.After(2 * time.Second):
		t.Fatal("expected a push message, got none")
	}
}

func TestExecCancelBeforeFlushRemovesSlot(t *testing.T) {
	client, _ := net.Pipe()
	defer client.Close()

	e := New(&fakeTransport{conn: client}, EndpointConfig{}, Timeouts{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := request.New()
	require.NoError(t, req.Push("PING"))
	err := e.Exec(ctx, req, []adapter.Adapter{adapter.Ignore{}})
	require.Error(t, err)

	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrKindCancelled, ee.Kind)
	assert.Empty(t, e.outbound)
	assert.Empty(t, e.pending)
}

func TestExecCancelIfNotConnectedRejectsImmediately(t *testing.T) {
	client, _ := net.Pipe()
	defer client.Close()

	e := New(&fakeTransport{conn: client}, EndpointConfig{}, Timeouts{})

	req := request.New()
	require.NoError(t, req.Push("PING"))
	req.GetConfig().CancelIfNotConnected = true

	err := e.Exec(context.Background(), req, []adapter.Adapter{adapter.Ignore{}})
	require.Error(t, err)
	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrKindNotConnected, ee.Kind)
}
