// Package tracking captures analytics beacons emitted by a browser session
// and validates their deeply nested payloads against declarative
// expectation documents.
//
// A Session owns the capture pipeline: domain filtering, payload decoding,
// event classification, and an append-only event store. Validation is
// pull-based; a test drives the browser, then queries the store and runs
// the validator once the triggering action has settled.
package tracking

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PageSource is the browser collaborator contract: one page or tab whose
// network requests can be observed. The engine never drives the page; it
// only subscribes to its interception callback.
type PageSource interface {
	// ID identifies the page, used to keep subscription idempotent.
	ID() string

	// OnRequest registers a callback invoked for every outgoing request.
	OnRequest(handler func(*ObservedRequest))
}

// EventSink receives every recorded event, for archival outside the
// in-memory store. Sink failures are logged and never interrupt capture.
type EventSink interface {
	Archive(event *CapturedEvent) error
}

// Session owns one tracking capture session: a domain filter, the decode
// and classify pipeline, and its own event store. Sessions are passed
// explicitly to the expectation builder and validator; there is no ambient
// global state.
type Session struct {
	id     string
	filter *DomainFilter
	store  *EventStore
	sink   EventSink

	mu         sync.Mutex
	tracking   bool
	subscribed map[string]bool
}

// NewSession creates a session with the default domain filter and an empty
// store. Tracking starts stopped; call Start before driving the browser.
func NewSession() *Session {
	return &Session{
		id:         uuid.NewString(),
		filter:     NewDomainFilter(),
		store:      NewEventStore(),
		subscribed: make(map[string]bool),
	}
}

// WithDomainFilter replaces the domain filter.
func (s *Session) WithDomainFilter(filter *DomainFilter) *Session {
	s.filter = filter
	return s
}

// WithSink attaches an archive sink that receives every recorded event.
func (s *Session) WithSink(sink EventSink) *Session {
	s.sink = sink
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Store returns the session's event store.
func (s *Session) Store() *EventStore {
	return s.store
}

// Start begins recording intercepted requests. Starting an already started
// session is a no-op.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracking {
		log.Warn().Str("session", s.id).Msg("Tracking already started")
		return
	}
	s.tracking = true
	log.Info().Str("session", s.id).Msg("Tracking started")
}

// Stop stops recording. Requests observed while stopped are dropped.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tracking {
		log.Warn().Str("session", s.id).Msg("Tracking not started")
		return
	}
	s.tracking = false
	log.Info().Str("session", s.id).Int("events", s.store.Len()).Msg("Tracking stopped")
}

// Subscribe attaches the capture pipeline to a page. Subscription is
// additive and idempotent: tabs opened mid-session each get subscribed
// once, so cross-tab navigation does not lose events.
func (s *Session) Subscribe(page PageSource) {
	pageID := page.ID()
	if !s.TrackPage(pageID) {
		return
	}
	page.OnRequest(func(req *ObservedRequest) {
		s.handle(pageID, req)
	})
}

// TrackPage registers a page ID for capture and reports whether it was
// newly registered. Remote intake transports use this directly, since
// their pages live on the far side of the wire.
func (s *Session) TrackPage(pageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribed[pageID] {
		log.Debug().Str("session", s.id).Str("page", pageID).Msg("Page already subscribed")
		return false
	}
	s.subscribed[pageID] = true
	log.Info().Str("session", s.id).Str("page", pageID).Msg("Page subscribed")
	return true
}

// HandleRequest runs one intercepted request through the pipeline: domain
// filter, POST-only filter, payload decode, classification, store append.
// It reports whether the request was recorded and, if so, its kind.
func (s *Session) HandleRequest(pageID string, req *ObservedRequest) (bool, EventKind) {
	return s.handle(pageID, req)
}

func (s *Session) handle(pageID string, req *ObservedRequest) (bool, EventKind) {
	s.mu.Lock()
	tracking := s.tracking
	s.mu.Unlock()
	if !tracking {
		return false, EventUnknown
	}

	if !req.IsPost() {
		return false, EventUnknown
	}
	if !s.filter.Accepts(req.URL()) {
		return false, EventUnknown
	}

	decoded, err := Decode(req.Body())
	if err != nil {
		// Unreachable with the current decoder, kept so a future decode
		// failure degrades to a raw-body event instead of losing it.
		log.Warn().Err(err).Str("url", req.URL()).Msg("Payload decode failed")
	}

	kind := Classify(req.URL(), decoded)
	event := &CapturedEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		URL:        req.URL(),
		Method:     req.Method(),
		PageID:     pageID,
		RawBody:    req.Body(),
		Decoded:    decoded,
		CapturedAt: time.Now(),
	}
	s.store.Record(event)

	if s.sink != nil {
		if err := s.sink.Archive(event); err != nil {
			log.Warn().Err(err).Str("event", event.ID).Msg("Archive sink failed")
		}
	}

	log.Debug().
		Str("session", s.id).
		Str("kind", string(kind)).
		Str("url", req.URL()).
		Msg("Beacon recorded")
	return true, kind
}

// Clear drops all captured events, keeping subscriptions intact.
func (s *Session) Clear() {
	s.store.Clear()
	log.Info().Str("session", s.id).Msg("Captured events cleared")
}
