package engine

import "github.com/awinterman/respmux/resp"

// PushMessage is one server-initiated push frame (pub/sub message,
// key-space invalidation): the flattened node stream of the reply,
// with the push header itself at index 0.
type PushMessage struct {
	Nodes []resp.Node
}

// Kind returns the push message's own sub-kind label: for pub/sub this
// is conventionally the first element's string payload ("message",
// "pmessage", "subscribe", "invalidate", ...), or "" if the push has
// no elements or its first element is not string-shaped.
func (p PushMessage) Kind() string {
	if len(p.Nodes) < 2 {
		return ""
	}
	return string(p.Nodes[1].Data)
}
