// Package resp implements the RESP3 type taxonomy (resp/kind) and a
// pull-driven incremental parser: Parser.Feed walks as far into a
// buffer as complete framing allows and emits a flat stream of typed
// Nodes, reporting ErrNeedMore rather than blocking when the buffer
// ends mid-frame.
package resp

import (
	"fmt"
	"strconv"

	"github.com/awinterman/respmux/resp/kind"
)

// DefaultMaxDepth bounds aggregate nesting so a malformed or hostile
// stream cannot grow the parser's stack without bound.
const DefaultMaxDepth = 128

// frame is one entry of the parser's explicit aggregate stack (spec.md
// section 4.B): the kind that opened it, how many scalar slots remain
// before it closes (-1 for a streamed blob string awaiting chunks),
// and the depth its children are emitted at.
type frame struct {
	knd       kind.Kind
	remaining int64
	depth     int
}

// Parser is a single incremental RESP3 decoder. It is not safe for
// concurrent use; the engine owns one Parser per connection generation.
type Parser struct {
	maxDepth int
	stack    []frame
}

// NewParser returns a Parser with the given maximum nesting depth. A
// maxDepth <= 0 selects DefaultMaxDepth.
func NewParser(maxDepth int) *Parser {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Parser{maxDepth: maxDepth}
}

// Reset clears any in-progress aggregate state, as after a
// reconnection discards the previous byte stream.
func (p *Parser) Reset() {
	p.stack = p.stack[:0]
}

// Depth reports the parser's current nesting depth (0 between
// top-level replies).
func (p *Parser) Depth() int {
	return len(p.stack)
}

// Feed consumes a prefix of buf and returns the number of bytes
// consumed along with every Node completed along the way. It returns
// exactly one of: ErrNeedMore (possibly with a non-empty node prefix,
// when one or more complete frames were emitted before the buffer ran
// out), a *ParseError, or nil once one full top-level reply (root
// depth 0, stack empty again) has been emitted. A top-level attribute
// is not a reply by itself: Feed goes on to the value that follows it
// and returns the attribute's nodes together with that value's.
//
// Feed never panics and never reads past len(buf).
func (p *Parser) Feed(buf []byte) (consumed int, nodes []Node, err error) {
	pos := 0

	var rootKind kind.Kind
	closeFrames := func() {
		for len(p.stack) > 0 {
			top := &p.stack[len(p.stack)-1]
			if top.remaining != 0 {
				return
			}
			if len(p.stack) == 1 {
				rootKind = top.knd
			}
			p.stack = p.stack[:len(p.stack)-1]
		}
	}

	for {
		if len(p.stack) > 0 && p.stack[len(p.stack)-1].remaining == -1 {
			n, chunk, terminal, cerr := parseStreamChunk(buf[pos:])
			if cerr != nil {
				return pos, nodes, cerr
			}
			if terminal {
				pos += n
				rootKind = 0
				p.stack = p.stack[:len(p.stack)-1]
				closeFrames()
				if len(p.stack) == 0 && rootKind != kind.Attribute {
					return pos, nodes, nil
				}
				continue
			}
			depth := len(p.stack)
			pos += n
			nodes = append(nodes, Node{Kind: kind.StreamedStringPart, Depth: depth, Data: chunk})
			continue
		}

		n, node, newFrame, terr := p.readToken(buf[pos:])
		if terr != nil {
			return pos, nodes, terr
		}
		pos += n
		nodes = append(nodes, node)

		if len(p.stack) > 0 {
			p.stack[len(p.stack)-1].remaining--
		}
		if newFrame != nil {
			p.stack = append(p.stack, *newFrame)
		}
		rootKind = 0
		closeFrames()

		if len(p.stack) == 0 && rootKind != kind.Attribute {
			return pos, nodes, nil
		}
	}
}

// readToken parses exactly one self-contained token starting at
// buf[0]: a scalar, or an aggregate/streamed-string header. It never
// mutates parser state and never consumes a partial frame — on
// ErrNeedMore the caller's position is unchanged.
func (p *Parser) readToken(buf []byte) (consumed int, node Node, newFrame *frame, err error) {
	if len(buf) == 0 {
		return 0, Node{}, nil, ErrNeedMore
	}

	prefix := buf[0]
	k := kind.Kind(prefix)
	depth := len(p.stack)

	switch k {
	case kind.SimpleString, kind.SimpleError:
		line, n, lerr := readLine(buf[1:])
		if lerr != nil {
			return 0, Node{}, nil, lerr
		}
		return 1 + n, Node{Kind: k, Depth: depth, Data: line}, nil, nil

	case kind.Number:
		line, n, lerr := readLine(buf[1:])
		if lerr != nil {
			return 0, Node{}, nil, lerr
		}
		val, perr := strconv.ParseInt(string(line), 10, 64)
		if perr != nil {
			return 0, Node{}, nil, newParseError(ErrKindNotANumber, k, perr.Error())
		}
		return 1 + n, Node{Kind: k, Depth: depth, Number: val}, nil, nil

	case kind.Double, kind.BigNumber:
		line, n, lerr := readLine(buf[1:])
		if lerr != nil {
			return 0, Node{}, nil, lerr
		}
		if len(line) == 0 {
			return 0, Node{}, nil, newParseError(ErrKindEmptyField, k, "empty body")
		}
		return 1 + n, Node{Kind: k, Depth: depth, Data: line}, nil, nil

	case kind.Boolean:
		line, n, lerr := readLine(buf[1:])
		if lerr != nil {
			return 0, Node{}, nil, lerr
		}
		if len(line) != 1 || (line[0] != 't' && line[0] != 'f') {
			return 0, Node{}, nil, newParseError(ErrKindNotABoolean, k, string(line))
		}
		return 1 + n, Node{Kind: k, Depth: depth, Boolean: line[0] == 't'}, nil, nil

	case kind.Null:
		line, n, lerr := readLine(buf[1:])
		if lerr != nil {
			return 0, Node{}, nil, lerr
		}
		if len(line) != 0 {
			return 0, Node{}, nil, newParseError(ErrKindEmptyField, k, "null body must be empty")
		}
		return 1 + n, Node{Kind: k, Depth: depth, IsNull: true}, nil, nil

	case kind.BlobString, kind.BlobError, kind.VerbatimString:
		header, n1, lerr := readLine(buf[1:])
		if lerr != nil {
			return 0, Node{}, nil, lerr
		}
		if len(header) == 1 && header[0] == '?' {
			if k != kind.BlobString {
				return 0, Node{}, nil, newParseError(ErrKindIncompatibleSize, k, "only blob_string supports the streamed form")
			}
			if depth+1 > p.maxDepth {
				return 0, Node{}, nil, newParseError(ErrKindExceedsMaxNestedDepth, k, "")
			}
			nf := frame{knd: k, remaining: -1, depth: depth + 1}
			return 1 + n1, Node{Kind: k, Depth: depth, AggregateSize: StreamedAggregate}, &nf, nil
		}
		length, perr := strconv.ParseInt(string(header), 10, 64)
		if perr != nil || length < 0 {
			return 0, Node{}, nil, newParseError(ErrKindNotANumber, k, "invalid blob length")
		}
		total := 1 + n1 + int(length) + 2
		if len(buf) < total {
			return 0, Node{}, nil, ErrNeedMore
		}
		data := buf[1+n1 : 1+n1+int(length)]
		if buf[total-2] != '\r' || buf[total-1] != '\n' {
			return 0, Node{}, nil, newParseError(ErrKindNoCRLF, k, "blob not terminated by CRLF")
		}
		return total, Node{Kind: k, Depth: depth, Data: data}, nil, nil

	case kind.Array, kind.Set, kind.Map, kind.Attribute, kind.Push:
		header, n1, lerr := readLine(buf[1:])
		if lerr != nil {
			return 0, Node{}, nil, lerr
		}
		if len(header) == 1 && header[0] == '?' {
			if depth+1 > p.maxDepth {
				return 0, Node{}, nil, newParseError(ErrKindExceedsMaxNestedDepth, k, "")
			}
			nf := frame{knd: k, remaining: -1, depth: depth + 1}
			return 1 + n1, Node{Kind: k, Depth: depth, AggregateSize: StreamedAggregate}, &nf, nil
		}
		count, perr := strconv.ParseInt(string(header), 10, 64)
		if perr != nil || count < 0 {
			return 0, Node{}, nil, newParseError(ErrKindNotANumber, k, "invalid aggregate size")
		}
		if depth+1 > p.maxDepth {
			return 0, Node{}, nil, newParseError(ErrKindExceedsMaxNestedDepth, k, "")
		}
		slots := count * k.ElementMultiplier()
		nf := frame{knd: k, remaining: slots, depth: depth + 1}
		return 1 + n1, Node{Kind: k, Depth: depth, AggregateSize: count}, &nf, nil

	case kind.StreamedStringPart:
		return 0, Node{}, nil, newParseError(ErrKindInvalidPrefix, k, "streamed chunk outside an open blob_string stream")

	default:
		return 0, Node{}, nil, newParseError(ErrKindInvalidPrefix, k, fmt.Sprintf("unknown prefix %q", string(prefix)))
	}
}

// parseStreamChunk reads one ';'-prefixed chunk of a streamed blob
// string. terminal reports a zero-length chunk, which ends the stream
// without itself producing a Node.
func parseStreamChunk(buf []byte) (consumed int, data []byte, terminal bool, err error) {
	if len(buf) == 0 {
		return 0, nil, false, ErrNeedMore
	}
	if kind.Kind(buf[0]) != kind.StreamedStringPart {
		return 0, nil, false, newParseError(ErrKindInvalidPrefix, kind.Kind(buf[0]), "expected streamed_string_part")
	}
	header, n1, lerr := readLine(buf[1:])
	if lerr != nil {
		return 0, nil, false, lerr
	}
	length, perr := strconv.ParseInt(string(header), 10, 64)
	if perr != nil || length < 0 {
		return 0, nil, false, newParseError(ErrKindNotANumber, kind.StreamedStringPart, "invalid chunk length")
	}
	if length == 0 {
		return 1 + n1, nil, true, nil
	}
	total := 1 + n1 + int(length) + 2
	if len(buf) < total {
		return 0, nil, false, ErrNeedMore
	}
	data = buf[1+n1 : 1+n1+int(length)]
	if buf[total-2] != '\r' || buf[total-1] != '\n' {
		return 0, nil, false, newParseError(ErrKindNoCRLF, kind.StreamedStringPart, "")
	}
	return total, data, false, nil
}

// readLine scans buf for the CRLF terminating a header/simple-value
// line and returns the content before it (excluding the CRLF) and the
// number of bytes consumed including the CRLF.
func readLine(buf []byte) (line []byte, consumed int, err error) {
	for i := 0; i < len(buf); i++ {
		if buf[i] == '\n' {
			if i == 0 || buf[i-1] != '\r' {
				return nil, 0, newParseError(ErrKindNoCRLF, 0, "line feed without preceding carriage return")
			}
			return buf[:i-1], i + 1, nil
		}
	}
	return nil, 0, ErrNeedMore
}
