package resp

import "github.com/awinterman/respmux/resp/kind"

// Cursor walks the complete, already-parsed Node slice for one
// top-level reply. Response adapters (resp/adapter) pull from a
// Cursor rather than being pushed individual nodes: by the time
// adapting starts, the read operation (spec.md section 4.E) has
// already driven Parser.Feed to completion for this reply, so the
// whole document is available and subtree boundaries (including
// streamed-string runs, which carry no explicit terminator node) can
// be resolved by simple lookahead instead of an enter/exit bookkeeping
// in every adapter.
type Cursor struct {
	nodes []Node
	pos   int
}

// NewCursor wraps a complete node slice for one top-level reply.
func NewCursor(nodes []Node) *Cursor {
	return &Cursor{nodes: nodes}
}

// Done reports whether every node of the reply has been consumed.
func (c *Cursor) Done() bool {
	return c.pos >= len(c.nodes)
}

// Peek returns the next unconsumed node without advancing.
func (c *Cursor) Peek() (Node, bool) {
	if c.pos >= len(c.nodes) {
		return Node{}, false
	}
	return c.nodes[c.pos], true
}

// Next returns the next unconsumed node and advances past it. It does
// not skip the node's descendants: callers that accept an aggregate
// header are responsible for then consuming its children.
func (c *Cursor) Next() (Node, bool) {
	n, ok := c.Peek()
	if ok {
		c.pos++
	}
	return n, ok
}

// SkipOne discards exactly one logical value rooted at the next node:
// a scalar is one node, an aggregate is its header plus all
// descendant subtrees (recursively), and a streamed blob string is its
// header plus every streamed_string_part chunk up to (but excluding)
// the next non-chunk node.
func (c *Cursor) SkipOne() {
	n, ok := c.Next()
	if !ok {
		return
	}
	c.skipChildrenOf(n)
}

func (c *Cursor) skipChildrenOf(n Node) {
	if n.Kind == kind.BlobString && n.AggregateSize == StreamedAggregate {
		for {
			p, ok := c.Peek()
			if !ok || p.Kind != kind.StreamedStringPart {
				return
			}
			c.Next()
		}
	}
	if !n.IsAggregate() {
		return
	}
	slots := n.AggregateSize * n.Kind.ElementMultiplier()
	for i := int64(0); i < slots; i++ {
		c.SkipOne()
	}
}

// SkipLeadingAttributes discards any run of attribute sub-trees
// preceding the next real value (spec.md section 4.B invariant 4: the
// default is that attributes are transparent / discarded).
func (c *Cursor) SkipLeadingAttributes() {
	for {
		n, ok := c.Peek()
		if !ok || n.Kind != kind.Attribute {
			return
		}
		c.SkipOne()
	}
}

// PeekValue skips any leading attribute sub-trees and returns the
// following real value without advancing past it.
func (c *Cursor) PeekValue() (Node, bool) {
	c.SkipLeadingAttributes()
	return c.Peek()
}

// nodeSpan returns how many nodes, starting at i, the logical value
// rooted at nodes[i] occupies (itself plus every descendant).
func (c *Cursor) nodeSpan(i int) int {
	n := c.nodes[i]
	if n.Kind == kind.BlobString && n.AggregateSize == StreamedAggregate {
		span := 1
		for i+span < len(c.nodes) && c.nodes[i+span].Kind == kind.StreamedStringPart {
			span++
		}
		return span
	}
	if !n.IsAggregate() {
		return 1
	}
	span := 1
	slots := n.AggregateSize * n.Kind.ElementMultiplier()
	for s := int64(0); s < slots; s++ {
		span += c.nodeSpan(i + span)
	}
	return span
}

// PeekAfterAttributes reports the node following every leading
// attribute sub-tree, without advancing the cursor — used by callers
// that need to tell whether a leading attribute merely precedes the
// value they actually want, or is itself the only thing there.
func (c *Cursor) PeekAfterAttributes() (Node, bool) {
	idx := c.pos
	for idx < len(c.nodes) && c.nodes[idx].Kind == kind.Attribute {
		idx += c.nodeSpan(idx)
	}
	if idx >= len(c.nodes) {
		return Node{}, false
	}
	return c.nodes[idx], true
}

// NextValue skips any leading attribute sub-trees and returns and
// advances past the following real value's header node. Callers that
// receive an aggregate header are responsible for consuming its
// children themselves.
func (c *Cursor) NextValue() (Node, bool) {
	c.SkipLeadingAttributes()
	return c.Next()
}

// CollectOne captures one logical value rooted at the next node,
// verbatim, including any attribute sub-trees preceding it: used by the
// tree adapter which deliberately does not hide attributes from its
// caller.
func (c *Cursor) CollectOne() []Node {
	start := c.pos
	c.SkipLeadingAttributes()
	c.SkipOne()
	return c.nodes[start:c.pos]
}
