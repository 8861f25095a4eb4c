package resp

import (
	"fmt"

	"github.com/awinterman/respmux/resp/kind"
)

// ServerError wraps a server-delivered error datum (resp3_simple_error
// or resp3_blob_error, spec.md section 7). Unlike a *ParseError it
// never desynchronises the connection: the reader still advances past
// the rest of the current top-level reply normally.
type ServerError struct {
	Kind    kind.Kind // kind.SimpleError or kind.BlobError
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("resp: %s: %s", e.Kind, e.Message)
}

// NewServerError builds a ServerError from a Node carrying
// resp3_simple_error or resp3_blob_error data.
func NewServerError(n Node) *ServerError {
	return &ServerError{Kind: n.Kind, Message: string(n.Data)}
}
