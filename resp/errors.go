package resp

import (
	"errors"
	"fmt"

	"github.com/awinterman/respmux/resp/kind"
)

// ErrorKind names a parser failure condition (spec.md section 7,
// "Parser" category). Server errors (resp3_simple_error,
// resp3_blob_error) are delivered as data, not as ErrorKind failures;
// see Node.IsServerError.
type ErrorKind int

const (
	ErrKindNone ErrorKind = iota
	ErrKindInvalidPrefix
	ErrKindExpectsSimpleType
	ErrKindExpectsAggregateType
	ErrKindNoCRLF
	ErrKindExceedsMaxNestedDepth
	ErrKindNotANumber
	ErrKindNotADouble
	ErrKindNotABoolean
	ErrKindIncompatibleSize
	ErrKindEmptyField
	ErrKindUnexpectedReadSize
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindInvalidPrefix:
		return "invalid_prefix"
	case ErrKindExpectsSimpleType:
		return "expects_resp3_simple_type"
	case ErrKindExpectsAggregateType:
		return "expects_resp3_aggregate_type"
	case ErrKindNoCRLF:
		return "no_crlf"
	case ErrKindExceedsMaxNestedDepth:
		return "exceeds_max_nested_depth"
	case ErrKindNotANumber:
		return "not_a_number"
	case ErrKindNotADouble:
		return "not_a_double"
	case ErrKindNotABoolean:
		return "not_a_boolean"
	case ErrKindIncompatibleSize:
		return "incompatible_size"
	case ErrKindEmptyField:
		return "empty_field"
	case ErrKindUnexpectedReadSize:
		return "unexpected_read_size"
	default:
		return "none"
	}
}

// ParseError wraps an ErrorKind with context. The parser never panics;
// every failure is surfaced through a ParseError.
type ParseError struct {
	Kind    ErrorKind
	Prefix  kind.Kind
	Message string
}

func (e *ParseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("resp: %s", e.Kind)
	}
	return fmt.Sprintf("resp: %s: %s", e.Kind, e.Message)
}

func newParseError(k ErrorKind, prefix kind.Kind, msg string) error {
	return &ParseError{Kind: k, Prefix: prefix, Message: msg}
}

// ErrNeedMore is returned as is (unwrapped) by Parser.Feed when the supplied
// buffer ends mid-frame: the parser made no assumption about bytes
// not yet delivered and requires the caller to feed more before it can
// make further progress.
var ErrNeedMore = errors.New("resp: need more data")

// IsParseErrorKind reports whether err is a *ParseError of kind k.
func IsParseErrorKind(err error, k ErrorKind) bool {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind == k
	}
	return false
}
