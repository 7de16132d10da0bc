package payments

import (
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/DavidLeeR/golem/core/types"
)

// awaitingSet is the in-memory working set of payments not yet part of a
// submitted batch. It keeps insertion order so that payments sharing a
// processed timestamp are batched deterministically.
type awaitingSet struct {
	mu    sync.Mutex
	byID  map[string]*types.Payment
	queue []*types.Payment
}

func newAwaitingSet() *awaitingSet {
	return &awaitingSet{
		byID:  make(map[string]*types.Payment),
		queue: make([]*types.Payment, 0),
	}
}

// Add inserts a payment into the set. Re-adding an already queued subtask id
// replaces the entry without changing its queue position.
func (s *awaitingSet) Add(payment *types.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, exists := s.byID[payment.SubtaskID]; exists {
		for i, p := range s.queue {
			if p == old {
				s.queue[i] = payment
				break
			}
		}
		s.byID[payment.SubtaskID] = payment
		log.Trace("awaiting payment replaced", "subtask", payment.SubtaskID)
		return
	}
	s.byID[payment.SubtaskID] = payment
	s.queue = append(s.queue, payment)
	MetricsAwaitingInc(1)
	log.Trace("awaiting payment added", "subtask", payment.SubtaskID, "processedTs", payment.ProcessedTS)
}

// Contains checks if a payment with the given subtask id is in the set.
func (s *awaitingSet) Contains(subtaskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.byID[subtaskID]
	return exists
}

// Get returns the payment for the given subtask id, or nil.
func (s *awaitingSet) Get(subtaskID string) *types.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.byID[subtaskID]
}

// Remove removes the payment with the given subtask id.
func (s *awaitingSet) Remove(subtaskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payment, exists := s.byID[subtaskID]; exists {
		for i, p := range s.queue {
			if p == payment {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				break
			}
		}
		delete(s.byID, subtaskID)
		MetricsAwaitingDec(1)
		log.Trace("awaiting payment removed", "subtask", subtaskID)
	}
}

// Payments returns the queued payments in insertion order.
func (s *awaitingSet) Payments() []*types.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*types.Payment, len(s.queue))
	copy(result, s.queue)
	return result
}

// Sorted returns the queued payments ordered by ascending processed
// timestamp; ties keep insertion order.
func (s *awaitingSet) Sorted() []*types.Payment {
	result := s.Payments()
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ProcessedTS < result[j].ProcessedTS
	})
	return result
}

// Len returns the number of queued payments.
func (s *awaitingSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.byID)
}

// TotalValue returns the sum of all queued payment values.
func (s *awaitingSet) TotalValue() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := new(big.Int)
	for _, p := range s.queue {
		total.Add(total, p.Value)
	}
	return total
}
