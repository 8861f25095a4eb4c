package engine

import (
	"github.com/awinterman/respmux/resp"
	"github.com/awinterman/respmux/resp/adapter"
	"github.com/awinterman/respmux/request"
)

// slot is one pending in-flight request awaiting its reply(ies)
// (spec.md section 3, "Pending slot"). The engine owns a FIFO of
// slots; only the engine's own goroutines ever mutate one after it is
// enqueued, except for reading s.err/s.done from a submitter.
type slot struct {
	req      *request.Request
	adapters []adapter.Adapter
	cfg      request.Config
	done     chan struct{}
	err      error

	cmdIndex       int
	cmdRemaining   int
	totalRemaining int
	origTotal      int

	flushed   bool
	cancelled bool
}

func newSlot(req *request.Request, adapters []adapter.Adapter, cfg request.Config) *slot {
	total := 0
	for _, c := range req.Commands() {
		total += c.ExpectedReplies
	}
	s := &slot{
		req:            req,
		adapters:       adapters,
		cfg:            cfg,
		done:           make(chan struct{}),
		totalRemaining: total,
		origTotal:      total,
	}
	if len(req.Commands()) > 0 {
		s.cmdRemaining = req.Commands()[0].ExpectedReplies
	}
	return s
}

// consumeReply assigns one top-level reply's nodes to the adapter for
// the slot's current command, unless the slot has been cancelled after
// its bytes were already flushed — in which case the reply is read and
// discarded to keep the connection's framing in sync (spec.md section
// 4.F, cancellation granularity). It reports whether every reply the
// slot's request expects has now been consumed.
func (s *slot) consumeReply(nodes []resp.Node) (completed bool, adaptErr error) {
	if !s.cancelled && len(s.adapters) > s.cmdIndex {
		cursor := resp.NewCursor(nodes)
		adaptErr = s.adapters[s.cmdIndex].Consume(cursor)
		if adaptErr != nil && s.err == nil {
			s.err = adaptErr
		}
	}
	s.cmdRemaining--
	s.totalRemaining--
	if s.cmdRemaining == 0 && s.cmdIndex < len(s.req.Commands())-1 {
		s.cmdIndex++
		s.cmdRemaining = s.req.Commands()[s.cmdIndex].ExpectedReplies
	}
	completed = s.totalRemaining <= 0
	return completed, adaptErr
}

// finish records the slot's terminal error, if any, and wakes its
// submitter. It must only be called once.
func (s *slot) finish(err error) {
	if err != nil && s.err == nil {
		s.err = err
	}
	close(s.done)
}
