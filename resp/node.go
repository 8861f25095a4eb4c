package resp

import "github.com/awinterman/respmux/resp/kind"

// Node is a single emitted unit of a parsed RESP3 reply tree (spec.md
// section 3, "Node"). String-shaped scalars carry Data; numbers and
// booleans carry the already-decoded Number/Boolean instead and leave
// Data nil. Aggregates carry AggregateSize: the
// declared element count, or StreamedAggregate if the header was the
// streamed sentinel '?'.
//
// Data is a borrowed slice into the buffer passed to Parser.Feed: it
// is only valid until the next call to Feed. Callers that need to
// retain it must copy.
type Node struct {
	Kind          kind.Kind
	Depth         int
	AggregateSize int64
	Data          []byte
	Number        int64
	Boolean       bool
	IsNull        bool
}

// StreamedAggregate marks an aggregate or blob header declared with
// the '?' sentinel rather than a fixed count.
const StreamedAggregate int64 = kind.StreamedSentinel

// IsAggregate reports whether n introduces a frame with children
// rather than carrying a complete scalar value.
func (n Node) IsAggregate() bool {
	return n.Kind.IsAggregateHeader()
}

// IsServerError reports whether n is a server-delivered error datum
// (resp3_simple_error / resp3_blob_error) as opposed to a parser
// failure: these are valid nodes, not ParseErrors.
func (n Node) IsServerError() bool {
	return n.Kind == kind.SimpleError || n.Kind == kind.BlobError
}

// String returns the scalar payload as a string. It is a convenience
// for callers that already know n carries string-shaped Data.
func (n Node) String() string {
	return string(n.Data)
}
