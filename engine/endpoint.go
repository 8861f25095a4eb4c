package engine

import (
	"github.com/awinterman/respmux/resp"
	"github.com/awinterman/respmux/resp/kind"
)

// Endpoint is the server-announced description parsed from the first
// reply to HELLO 3 (spec.md section 3). It is persisted on the engine
// and cleared on disconnect.
type Endpoint struct {
	ServerName    string
	ServerVersion string
	Proto         int64
	ID            int64
	Mode          string
	Role          string
	Modules       []string
}

// helloAdapter decodes the HELLO 3 reply map directly, rather than
// through the generic MapOf[K,V] adapter, because its values are
// heterogeneous (strings, numbers, and a nested array for "modules").
type helloAdapter struct {
	dst *Endpoint
}

func (h helloAdapter) Consume(c *resp.Cursor) error {
	n, ok := c.NextValue()
	if !ok {
		return newError(ErrKindHandshakeFailed, "empty HELLO reply", nil)
	}
	if n.Kind == kind.SimpleError || n.Kind == kind.BlobError {
		return resp.NewServerError(n)
	}
	if n.Kind != kind.Map {
		return newError(ErrKindHandshakeFailed, "HELLO reply was not a map", nil)
	}
	for i := int64(0); i < n.AggregateSize; i++ {
		key, ok := c.NextValue()
		if !ok {
			return newError(ErrKindHandshakeFailed, "truncated HELLO reply", nil)
		}
		switch string(key.Data) {
		case "server":
			v, _ := c.NextValue()
			h.dst.ServerName = string(v.Data)
		case "version":
			v, _ := c.NextValue()
			h.dst.ServerVersion = string(v.Data)
		case "proto":
			v, _ := c.NextValue()
			h.dst.Proto = v.Number
		case "id":
			v, _ := c.NextValue()
			h.dst.ID = v.Number
		case "mode":
			v, _ := c.NextValue()
			h.dst.Mode = string(v.Data)
		case "role":
			v, _ := c.NextValue()
			h.dst.Role = string(v.Data)
		case "modules":
			v, ok := c.NextValue()
			if !ok {
				break
			}
			mods := make([]string, 0, v.AggregateSize)
			for j := int64(0); j < v.AggregateSize; j++ {
				m, ok := c.NextValue()
				if !ok {
					break
				}
				mods = append(mods, string(m.Data))
			}
			h.dst.Modules = mods
		default:
			c.SkipOne()
		}
	}
	return nil
}
