package resp

import (
	"errors"
	"testing"

	"github.com/awinterman/respmux/resp/kind"
)

func feedAll(t *testing.T, p *Parser, chunks ...string) ([]Node, error) {
	t.Helper()
	var all []Node
	for _, c := range chunks {
		buf := []byte(c)
		for len(buf) > 0 {
			consumed, nodes, err := p.Feed(buf)
			all = append(all, nodes...)
			buf = buf[consumed:]
			if err == nil {
				return all, nil
			}
			if !errors.Is(err, ErrNeedMore) {
				return all, err
			}
			if consumed == 0 {
				break // genuinely need another chunk
			}
		}
	}
	return all, ErrNeedMore
}

func TestFeedSimpleString(t *testing.T) {
	p := NewParser(0)
	nodes, err := feedAll(t, p, "+OK\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Kind != kind.SimpleString || string(nodes[0].Data) != "OK" {
		t.Fatalf("got %+v", nodes)
	}
}

func TestFeedNumber(t *testing.T) {
	p := NewParser(0)
	nodes, err := feedAll(t, p, ":1000\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Number != 1000 {
		t.Fatalf("got %+v", nodes)
	}
}

func TestFeedArrayOfMixedScalars(t *testing.T) {
	p := NewParser(0)
	nodes, err := feedAll(t, p, "*3\r\n:1\r\n:2\r\n:3\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 4 {
		t.Fatalf("want 4 nodes (header + 3 elements), got %d: %+v", len(nodes), nodes)
	}
	if nodes[0].Kind != kind.Array || nodes[0].AggregateSize != 3 {
		t.Fatalf("bad header: %+v", nodes[0])
	}
}

func TestFeedNestedMap(t *testing.T) {
	p := NewParser(0)
	nodes, err := feedAll(t, p, "%2\r\n+a\r\n:1\r\n+b\r\n:2\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nodes[0].Kind != kind.Map || nodes[0].AggregateSize != 2 {
		t.Fatalf("bad header: %+v", nodes[0])
	}
	if len(nodes) != 5 {
		t.Fatalf("want 5 nodes (header + 2 pairs), got %d", len(nodes))
	}
}

func TestFeedNestedAggregates(t *testing.T) {
	p := NewParser(0)
	// array[2] of { array[1]{:1}, map[1]{+k: :2} } — the shape of an
	// EXEC reply whose queued commands include their own aggregates.
	nodes, err := feedAll(t, p, "*2\r\n*1\r\n:1\r\n%1\r\n+k\r\n:2\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 6 {
		t.Fatalf("want 6 nodes, got %d: %+v", len(nodes), nodes)
	}
	if nodes[0].Kind != kind.Array || nodes[0].AggregateSize != 2 || nodes[0].Depth != 0 {
		t.Fatalf("bad outer header: %+v", nodes[0])
	}
	if nodes[1].Kind != kind.Array || nodes[1].AggregateSize != 1 || nodes[1].Depth != 1 {
		t.Fatalf("bad inner array header: %+v", nodes[1])
	}
	if nodes[2].Number != 1 || nodes[2].Depth != 2 {
		t.Fatalf("bad inner array element: %+v", nodes[2])
	}
	if nodes[3].Kind != kind.Map || nodes[3].AggregateSize != 1 || nodes[3].Depth != 1 {
		t.Fatalf("bad inner map header: %+v", nodes[3])
	}
	if string(nodes[4].Data) != "k" || nodes[4].Depth != 2 {
		t.Fatalf("bad map key: %+v", nodes[4])
	}
	if nodes[5].Number != 2 || nodes[5].Depth != 2 {
		t.Fatalf("bad map value: %+v", nodes[5])
	}
	if p.Depth() != 0 {
		t.Fatalf("parser should be back at depth 0 after a balanced nested reply, got %d", p.Depth())
	}
}

func TestFeedAcrossPartialBuffers(t *testing.T) {
	p := NewParser(0)
	first := []byte("*2\r\n:1\r\n")
	consumed, nodes, err := p.Feed(first)
	if !errors.Is(err, ErrNeedMore) {
		t.Fatalf("want ErrNeedMore, got %v", err)
	}
	if consumed != len(first) {
		t.Fatalf("want full prefix consumed, got %d/%d", consumed, len(first))
	}
	if len(nodes) != 2 {
		t.Fatalf("want 2 nodes so far, got %d: %+v", len(nodes), nodes)
	}

	second := []byte(":2\r\n")
	consumed2, nodes2, err2 := p.Feed(second)
	if err2 != nil {
		t.Fatalf("unexpected error: %v", err2)
	}
	if consumed2 != len(second) || len(nodes2) != 1 {
		t.Fatalf("got consumed=%d nodes=%+v", consumed2, nodes2)
	}
	if p.Depth() != 0 {
		t.Fatalf("parser should be back at depth 0, got %d", p.Depth())
	}
}

func TestFeedStreamedBlobString(t *testing.T) {
	p := NewParser(0)
	nodes, err := feedAll(t, p, "$?\r\n;4\r\nHell\r\n;1\r\no\r\n;0\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nodes[0].Kind != kind.BlobString || nodes[0].AggregateSize != StreamedAggregate {
		t.Fatalf("bad header: %+v", nodes[0])
	}
	if len(nodes) != 3 {
		t.Fatalf("want header + 2 chunks (terminal chunk emits no node), got %d: %+v", len(nodes), nodes)
	}
	if string(nodes[1].Data)+string(nodes[2].Data) != "Hello" {
		t.Fatalf("chunks did not reassemble: %q %q", nodes[1].Data, nodes[2].Data)
	}
}

func TestFeedAttributeBeforeValue(t *testing.T) {
	p := NewParser(0)
	nodes, err := feedAll(t, p, "|1\r\n+key\r\n:1\r\n:42\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nodes[0].Kind != kind.Attribute {
		t.Fatalf("want attribute header first, got %+v", nodes[0])
	}
	if nodes[len(nodes)-1].Number != 42 {
		t.Fatalf("want trailing real value 42, got %+v", nodes[len(nodes)-1])
	}
}

func TestFeedInvalidPrefix(t *testing.T) {
	p := NewParser(0)
	_, _, err := p.Feed([]byte("@nope\r\n"))
	if !IsParseErrorKind(err, ErrKindInvalidPrefix) {
		t.Fatalf("want invalid_prefix, got %v", err)
	}
}

func TestFeedNotANumber(t *testing.T) {
	p := NewParser(0)
	_, _, err := p.Feed([]byte(":abc\r\n"))
	if !IsParseErrorKind(err, ErrKindNotANumber) {
		t.Fatalf("want not_a_number, got %v", err)
	}
}

func TestFeedMissingCRLF(t *testing.T) {
	p := NewParser(0)
	_, _, err := p.Feed([]byte("+OK\n"))
	if err == nil {
		t.Fatalf("want an error for a bare LF")
	}
}

func TestFeedExceedsMaxDepth(t *testing.T) {
	p := NewParser(1)
	_, _, err := p.Feed([]byte("*1\r\n*1\r\n:1\r\n"))
	if !IsParseErrorKind(err, ErrKindExceedsMaxNestedDepth) {
		t.Fatalf("want exceeds_max_nested_depth, got %v", err)
	}
}

func TestFeedNullIsDistinctFromEmptyString(t *testing.T) {
	p := NewParser(0)
	nodes, err := feedAll(t, p, "_\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !nodes[0].IsNull {
		t.Fatalf("want IsNull, got %+v", nodes[0])
	}
}

func TestFeedBooleanRejectsAnythingOtherThanTF(t *testing.T) {
	p := NewParser(0)
	_, _, err := p.Feed([]byte("#yes\r\n"))
	if !IsParseErrorKind(err, ErrKindNotABoolean) {
		t.Fatalf("want not_a_boolean, got %v", err)
	}
}

func TestResetClearsInProgressAggregate(t *testing.T) {
	p := NewParser(0)
	p.Feed([]byte("*2\r\n:1\r\n"))
	if p.Depth() == 0 {
		t.Fatalf("expected in-progress frame before Reset")
	}
	p.Reset()
	if p.Depth() != 0 {
		t.Fatalf("Reset did not clear the stack")
	}
}
