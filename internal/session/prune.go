package session

import (
	"fmt"
	"slices"
)

// PruneResult describes what a prune kept. Head counts messages kept from
// the start of the context, base context included; Tail counts messages
// kept from the end. Recent is set for results of PruneRecent, which only
// ever keeps a head.
type PruneResult struct {
	Total  int
	Head   int
	Tail   int
	Recent bool
}

// Kept returns the context length after pruning.
func (r PruneResult) Kept() int {
	return r.Head + r.Tail
}

// Removed returns the number of messages dropped.
func (r PruneResult) Removed() int {
	return r.Total - r.Kept()
}

// String renders the result the way the interactive loop reports it.
func (r PruneResult) String() string {
	if r.Recent {
		return fmt.Sprintf("keeping first %d of %d messages (pruning %d)", r.Head, r.Total, r.Removed())
	}
	return fmt.Sprintf("keeping first %d and last %d of %d messages (pruning %d, keeping %d)",
		r.Head, r.Tail, r.Total, r.Removed(), r.Kept())
}

// planRecent keeps the base context and the oldest exchanges after it:
// two exchanges when at least three were made, one when at least two.
func planRecent(total, base int) PruneResult {
	n := total - base
	head := base
	switch {
	case n >= 6:
		head += 4
	case n >= 4:
		head += 2
	}
	return PruneResult{Total: total, Head: min(head, total), Recent: true}
}

// plan keeps the base context, the oldest messages after it and the last
// exchange.
func plan(total, base int) PruneResult {
	n := total - base
	var head, tail int
	switch {
	case n >= 8:
		head, tail = base+4, 2
	case n >= 6:
		head, tail = base+2, 2
	case n > 2:
		head, tail = base, 2
	default:
		head = base
	}
	head = min(head, total)
	return PruneResult{Total: total, Head: head, Tail: min(tail, total-head)}
}

// PruneRecent drops the most recent messages, keeping the base context
// and up to the first four messages after it.
func (s *Session) PruneRecent() PruneResult {
	return s.apply(planRecent)
}

// Prune drops the middle of the conversation, keeping the base context,
// up to the first four messages after it and the last two.
func (s *Session) Prune() PruneResult {
	return s.apply(plan)
}

func (s *Session) apply(planner func(total, base int) PruneResult) PruneResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := planner(len(s.context), len(s.base))
	kept := slices.Clone(s.context[:r.Head])
	kept = append(kept, s.context[len(s.context)-r.Tail:]...)
	s.context = kept
	s.gen++
	s.metrics.SetContextSize(len(s.context))

	s.logger.Info("context pruned", "total", r.Total, "kept", r.Kept())
	return r
}
