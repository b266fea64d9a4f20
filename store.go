package tracking

import "sync"

// Query filters store lookups. Zero-value fields are not applied.
type Query struct {
	// Kind restricts results to one event kind.
	Kind EventKind

	// GoodsCode restricts results to events whose recursively-extracted
	// product identifier equals this value.
	GoodsCode string

	// Placement restricts results to events whose spm identifier equals
	// this value, scoping exposure queries to one on-page module.
	Placement string
}

// EventStore is an append-only sequence of captured events. Reads return
// copies, so validation can run while capture keeps appending.
type EventStore struct {
	mu     sync.RWMutex
	events []*CapturedEvent
}

// NewEventStore creates an empty store.
func NewEventStore() *EventStore {
	return &EventStore{}
}

// Record appends an event. Events are never mutated after this point.
func (s *EventStore) Record(event *CapturedEvent) {
	if event == nil {
		return
	}
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

// Len returns the number of recorded events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// All returns a snapshot of every recorded event in capture order.
func (s *EventStore) All() []*CapturedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make([]*CapturedEvent, len(s.events))
	copy(snapshot, s.events)
	return snapshot
}

// Find returns a snapshot of events matching the query, in capture order.
// Queries are idempotent and may be polled repeatedly while beacons are
// still arriving; a query that matches nothing returns an empty slice.
func (s *EventStore) Find(q Query) []*CapturedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*CapturedEvent, 0, len(s.events))
	for _, event := range s.events {
		if q.Kind != "" && event.Kind != q.Kind {
			continue
		}
		if q.GoodsCode != "" && event.GoodsCode() != q.GoodsCode {
			continue
		}
		if q.Placement != "" && event.Placement() != q.Placement {
			continue
		}
		matched = append(matched, event)
	}
	return matched
}

// FindKind returns all events of one kind.
func (s *EventStore) FindKind(kind EventKind) []*CapturedEvent {
	return s.Find(Query{Kind: kind})
}

// FindByGoodsCode returns events of one kind correlated to a product.
func (s *EventStore) FindByGoodsCode(kind EventKind, goodsCode string) []*CapturedEvent {
	return s.Find(Query{Kind: kind, GoodsCode: goodsCode})
}

// Clear drops all recorded events.
func (s *EventStore) Clear() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}
