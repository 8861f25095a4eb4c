package adapter

import (
	"github.com/awinterman/respmux/resp"
	"github.com/awinterman/respmux/resp/kind"
)

// Sequence binds an array or push root of declared size n to a slice
// of n elements, driving Element(&out[i]) for each.
type Sequence[T any] struct {
	Dst     *[]T
	Element func(dst *T) Adapter
}

func (s Sequence[T]) Consume(c *resp.Cursor) error {
	n, ok := c.NextValue()
	if !ok {
		return newError(ErrKindSizeMismatch, "expected array, got end of reply")
	}
	if n.Kind == kind.SimpleError || n.Kind == kind.BlobError {
		return resp.NewServerError(n)
	}
	if n.Kind != kind.Array && n.Kind != kind.Push {
		return newError(ErrKindWrongType, "expected array or push, got %s", n.Kind)
	}
	out := make([]T, n.AggregateSize)
	for i := range out {
		if err := s.Element(&out[i]).Consume(c); err != nil {
			return err
		}
	}
	*s.Dst = out
	return nil
}

// SetOf binds a RESP3 set root of declared size n to a slice of n
// elements, like Sequence but requiring the set kind specifically.
type SetOf[T any] struct {
	Dst     *[]T
	Element func(dst *T) Adapter
}

func (s SetOf[T]) Consume(c *resp.Cursor) error {
	n, ok := c.NextValue()
	if !ok {
		return newError(ErrKindSizeMismatch, "expected set, got end of reply")
	}
	if n.Kind == kind.SimpleError || n.Kind == kind.BlobError {
		return resp.NewServerError(n)
	}
	if n.Kind != kind.Set {
		return newError(ErrKindWrongType, "expected set, got %s", n.Kind)
	}
	out := make([]T, n.AggregateSize)
	for i := range out {
		if err := s.Element(&out[i]).Consume(c); err != nil {
			return err
		}
	}
	*s.Dst = out
	return nil
}

// MapOf binds a map (or, per spec.md section 4.C, an attribute) root
// of declared size 2n to a Go map of n pairs. Unlike the other
// composites it intentionally does not unconditionally skip a leading
// attribute: an attribute root is itself a valid target for map<K,V>.
// But when a real map follows the attribute, the attribute is merely
// annotating that map (the ordinary RESP3 shape) and must still be
// skipped transparently, per spec.md section 4.C's default.
type MapOf[K comparable, V any] struct {
	Dst   *map[K]V
	Key   func(dst *K) Adapter
	Value func(dst *V) Adapter
}

func (m MapOf[K, V]) Consume(c *resp.Cursor) error {
	n, ok := c.Peek()
	if ok && n.Kind == kind.Attribute {
		if after, aok := c.PeekAfterAttributes(); aok && after.Kind == kind.Map {
			n, ok = c.PeekValue()
		}
	}
	if !ok {
		return newError(ErrKindSizeMismatch, "expected map, got end of reply")
	}
	if n.Kind == kind.SimpleError || n.Kind == kind.BlobError {
		c.Next()
		return resp.NewServerError(n)
	}
	if n.Kind != kind.Map && n.Kind != kind.Attribute {
		return newError(ErrKindWrongType, "expected map or attribute, got %s", n.Kind)
	}
	c.Next()

	out := make(map[K]V, n.AggregateSize)
	for i := int64(0); i < n.AggregateSize; i++ {
		var key K
		var val V
		if err := m.Key(&key).Consume(c); err != nil {
			return err
		}
		if err := m.Value(&val).Consume(c); err != nil {
			return err
		}
		out[key] = val
	}
	*m.Dst = out
	return nil
}

// Transaction forwards the children of a single array reply (an
// EXEC's queued replies) to a fixed, heterogeneous list of adapters —
// one per queued command — matching them positionally.
type Transaction struct {
	Elems []Adapter
}

func (t Transaction) Consume(c *resp.Cursor) error {
	n, ok := c.NextValue()
	if !ok {
		return newError(ErrKindSizeMismatch, "expected transaction array, got end of reply")
	}
	if n.Kind == kind.SimpleError || n.Kind == kind.BlobError {
		return resp.NewServerError(n)
	}
	if n.Kind != kind.Array {
		return newError(ErrKindWrongType, "expected array for transaction reply, got %s", n.Kind)
	}
	if n.AggregateSize != int64(len(t.Elems)) {
		return newError(ErrKindSizeMismatch, "transaction reply has %d elements, expected %d", n.AggregateSize, len(t.Elems))
	}
	for _, e := range t.Elems {
		if err := e.Consume(c); err != nil {
			return err
		}
	}
	return nil
}
