package adapter

import (
	"math/big"
	"strconv"

	"github.com/awinterman/respmux/resp"
	"github.com/awinterman/respmux/resp/kind"
)

// Adapter is a stateful target that consumes exactly one logical
// value — a scalar or a whole nested subtree — from a Cursor
// positioned over the fully-parsed nodes of one top-level reply.
//
// Consume fails fast with a typed *Error the first time a node is
// unassignable, or with a *resp.ServerError when the node is a
// server-delivered error datum that this adapter does not accept as
// data.
type Adapter interface {
	Consume(c *resp.Cursor) error
}

// Ignore discards exactly one value, attributes and all.
type Ignore struct{}

func (Ignore) Consume(c *resp.Cursor) error {
	c.SkipLeadingAttributes()
	c.SkipOne()
	return nil
}

// Int64 binds a number, boolean, or (if null is tolerated by wrapping
// in Optional) null to an int64 destination.
type Int64 struct {
	Dst *int64
}

func (a Int64) Consume(c *resp.Cursor) error {
	n, ok := c.NextValue()
	if !ok {
		return newError(ErrKindSizeMismatch, "expected a number, got end of reply")
	}
	switch n.Kind {
	case kind.Number:
		*a.Dst = n.Number
		return nil
	case kind.Boolean:
		if n.Boolean {
			*a.Dst = 1
		} else {
			*a.Dst = 0
		}
		return nil
	case kind.SimpleError, kind.BlobError:
		return resp.NewServerError(n)
	default:
		return newError(ErrKindWrongType, "expected number or boolean, got %s", n.Kind)
	}
}

// Float64 binds a RESP3 double to a float64 destination.
type Float64 struct {
	Dst *float64
}

func (a Float64) Consume(c *resp.Cursor) error {
	n, ok := c.NextValue()
	if !ok {
		return newError(ErrKindSizeMismatch, "expected a double, got end of reply")
	}
	if n.Kind == kind.SimpleError || n.Kind == kind.BlobError {
		return resp.NewServerError(n)
	}
	if n.Kind != kind.Double {
		return newError(ErrKindWrongType, "expected double, got %s", n.Kind)
	}
	f, err := strconv.ParseFloat(string(n.Data), 64)
	if err != nil {
		return newError(ErrKindWrongType, "malformed double %q", n.Data)
	}
	*a.Dst = f
	return nil
}

// BigInt binds a RESP3 big_number to a *big.Int destination.
type BigInt struct {
	Dst **big.Int
}

func (a BigInt) Consume(c *resp.Cursor) error {
	n, ok := c.NextValue()
	if !ok {
		return newError(ErrKindSizeMismatch, "expected a big_number, got end of reply")
	}
	if n.Kind == kind.SimpleError || n.Kind == kind.BlobError {
		return resp.NewServerError(n)
	}
	if n.Kind != kind.BigNumber {
		return newError(ErrKindWrongType, "expected big_number, got %s", n.Kind)
	}
	v, ok := new(big.Int).SetString(string(n.Data), 10)
	if !ok {
		return newError(ErrKindWrongType, "malformed big_number %q", n.Data)
	}
	*a.Dst = v
	return nil
}

// Bool requires a RESP3 boolean.
type Bool struct {
	Dst *bool
}

func (a Bool) Consume(c *resp.Cursor) error {
	n, ok := c.NextValue()
	if !ok {
		return newError(ErrKindSizeMismatch, "expected a boolean, got end of reply")
	}
	if n.Kind == kind.SimpleError || n.Kind == kind.BlobError {
		return resp.NewServerError(n)
	}
	if n.Kind != kind.Boolean {
		return newError(ErrKindWrongType, "expected boolean, got %s", n.Kind)
	}
	*a.Dst = n.Boolean
	return nil
}

// String binds a simple_string, blob_string, verbatim_string,
// big_number, double, or a streamed blob string to a string
// destination, concatenating successive streamed_string_part chunks.
type String struct {
	Dst *string
}

func (a String) Consume(c *resp.Cursor) error {
	n, ok := c.NextValue()
	if !ok {
		return newError(ErrKindSizeMismatch, "expected a string, got end of reply")
	}
	switch n.Kind {
	case kind.SimpleString, kind.BigNumber, kind.Double:
		*a.Dst = string(n.Data)
		return nil
	case kind.VerbatimString:
		*a.Dst = verbatimPayload(n.Data)
		return nil
	case kind.BlobString:
		if n.AggregateSize != resp.StreamedAggregate {
			*a.Dst = string(n.Data)
			return nil
		}
		var sb []byte
		for {
			p, ok := c.Peek()
			if !ok || p.Kind != kind.StreamedStringPart {
				break
			}
			c.Next()
			sb = append(sb, p.Data...)
		}
		*a.Dst = string(sb)
		return nil
	case kind.SimpleError, kind.BlobError:
		return resp.NewServerError(n)
	default:
		return newError(ErrKindWrongType, "expected a string-shaped value, got %s", n.Kind)
	}
}

// verbatimPayload strips the 3-byte encoding prefix ("txt:"/"mkd:") a
// verbatim string carries on the wire.
func verbatimPayload(data []byte) string {
	if len(data) >= 4 && data[3] == ':' {
		return string(data[4:])
	}
	return string(data)
}

// Optional accepts RESP3 null as "absent" (setting Present to false
// and leaving Inner untouched) and otherwise defers entirely to Inner.
type Optional struct {
	Inner   Adapter
	Present *bool
}

func (a Optional) Consume(c *resp.Cursor) error {
	n, ok := c.PeekValue()
	if ok && n.Kind == kind.Null {
		c.NextValue()
		if a.Present != nil {
			*a.Present = false
		}
		return nil
	}
	if a.Present != nil {
		*a.Present = true
	}
	return a.Inner.Consume(c)
}

// Tree captures one entire sub-reply verbatim as a flattened node
// list, attributes included, without interpreting it.
type Tree struct {
	Dst *[]resp.Node
}

func (a Tree) Consume(c *resp.Cursor) error {
	*a.Dst = c.CollectOne()
	return nil
}
