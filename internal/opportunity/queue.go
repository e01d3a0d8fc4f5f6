package opportunity

import (
	"fmt"

	"whaleSnipeBot/internal/domain"
	"whaleSnipeBot/internal/ports"
)

// Queue holds candidate entries awaiting an execution attempt. It is owned
// exclusively by the scheduling loop and is not safe for concurrent use;
// the single-tick discipline is the synchronization mechanism.
type Queue struct {
	maxAttempts int
	logger      ports.Logger
	items       []*domain.Opportunity
	byPair      map[string]*domain.Opportunity
}

// NewQueue creates an empty queue. maxAttempts bounds how many failed
// execution attempts an opportunity survives before it is discarded.
func NewQueue(maxAttempts int, logger ports.Logger) (*Queue, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for opportunity queue")
	}
	if maxAttempts <= 0 {
		return nil, fmt.Errorf("maxAttempts must be positive")
	}
	return &Queue{
		maxAttempts: maxAttempts,
		logger:      logger,
		byPair:      make(map[string]*domain.Opportunity),
	}, nil
}

// Add enqueues an opportunity. At most one opportunity per (AssetIn,
// AssetOut) pair may be active; a duplicate is dropped and Add reports false.
func (q *Queue) Add(opp domain.Opportunity) bool {
	if _, exists := q.byPair[opp.PairKey()]; exists {
		return false
	}
	o := &opp
	q.items = append(q.items, o)
	q.byPair[o.PairKey()] = o
	return true
}

// Items returns a snapshot of the queued opportunities in arrival order.
// The snapshot is safe to iterate while Remove/Fail mutate the queue.
func (q *Queue) Items() []*domain.Opportunity {
	snapshot := make([]*domain.Opportunity, len(q.items))
	copy(snapshot, q.items)
	return snapshot
}

// Len returns the number of queued opportunities.
func (q *Queue) Len() int {
	return len(q.items)
}

// Remove consumes an opportunity after a successful execution.
func (q *Queue) Remove(opp *domain.Opportunity) {
	q.drop(opp)
}

// Fail records a failed attempt. The opportunity is retained for retry on
// the next tick unless the attempt bound is exceeded or the failure is
// terminal, in which case it is discarded. Returns true if discarded.
func (q *Queue) Fail(opp *domain.Opportunity, terminal bool) bool {
	opp.Attempts++
	if terminal || opp.Attempts >= q.maxAttempts {
		q.drop(opp)
		return true
	}
	return false
}

func (q *Queue) drop(opp *domain.Opportunity) {
	delete(q.byPair, opp.PairKey())
	for i, o := range q.items {
		if o == opp {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}
