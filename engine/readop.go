package engine

import (
	"github.com/awinterman/respmux/resp"
)

// byteBuffer is the single growing read buffer the reader task owns
// for the lifetime of one connection generation (spec.md section 5):
// the parser only ever borrows slices into it, and those slices must
// not outlive the next buffer growth.
type byteBuffer struct {
	buf []byte
}

func (b *byteBuffer) feedMore(data []byte) {
	b.buf = append(b.buf, data...)
}

func (b *byteBuffer) discard(n int) {
	if n <= 0 {
		return
	}
	copy(b.buf, b.buf[n:])
	b.buf = b.buf[:len(b.buf)-n]
}

// readSource is the minimal read primitive readOne needs; satisfied
// by Conn.
type readSource interface {
	Read(p []byte) (int, error)
}

// readOne drives the parser until exactly one complete top-level
// reply has been emitted (spec.md section 4.E): it is agnostic to
// whether that reply turns out to be a push frame or an ordinary
// command reply — that routing decision belongs to the engine's
// reader loop, which owns the push channel.
//
// Node.Data is only valid until the buffer passed to Feed is next
// mutated; since this loop discards consumed bytes and appends fresh
// ones on every iteration, each batch's Data must be cloned out before
// the next iteration runs, or before returning to a caller that will
// still be holding it once the reader goes on to the next reply.
func readOne(conn readSource, parser *resp.Parser, rb *byteBuffer) ([]resp.Node, error) {
	var all []resp.Node
	readChunk := make([]byte, 4096)

	for {
		consumed, nodes, err := parser.Feed(rb.buf)
		all = append(all, cloneNodeData(nodes)...)
		rb.discard(consumed)

		if err == nil {
			return all, nil
		}
		if err != resp.ErrNeedMore {
			return all, err
		}

		n, rerr := conn.Read(readChunk)
		if n > 0 {
			rb.feedMore(readChunk[:n])
		}
		if rerr != nil {
			return all, rerr
		}
	}
}

// cloneNodeData copies each node's borrowed Data slice so it survives
// the read buffer's next discard/growth.
func cloneNodeData(nodes []resp.Node) []resp.Node {
	for i := range nodes {
		if nodes[i].Data == nil {
			continue
		}
		nodes[i].Data = append([]byte(nil), nodes[i].Data...)
	}
	return nodes
}
