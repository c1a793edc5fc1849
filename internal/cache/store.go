// Package cache holds the in-memory snapshot of every view.
//
// Each view lives in its own Slot. A slot stores a pointer to an immutable
// Entry and replaces that pointer wholesale on Put, so readers never see a
// half-written record set and a slow refresh of one view never blocks
// reads of another.
package cache

import (
	"sync"
	"time"

	"github.com/bobmcallan/dsefeed/internal/common"
	"github.com/bobmcallan/dsefeed/internal/models"
)

// Entry is one cached record set. Entries are never mutated after Put.
type Entry[T any] struct {
	Records   []T
	FetchedAt time.Time
	TTL       time.Duration
}

// IsFresh reports whether the entry is still within its TTL at now.
func (e Entry[T]) IsFresh(now time.Time) bool {
	return common.IsFreshAt(e.FetchedAt, e.TTL, now)
}

// Age is how long ago the entry was fetched.
func (e Entry[T]) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// Slot is the cache cell for a single view.
type Slot[T any] struct {
	view  models.View
	ttl   time.Duration
	mu    sync.RWMutex
	entry *Entry[T]
}

// NewSlot creates an empty slot for view with the given TTL.
func NewSlot[T any](view models.View, ttl time.Duration) *Slot[T] {
	return &Slot[T]{view: view, ttl: ttl}
}

// View returns the view this slot caches.
func (s *Slot[T]) View() models.View { return s.view }

// TTL returns the freshness window of the slot.
func (s *Slot[T]) TTL() time.Duration { return s.ttl }

// Get returns a copy of the current entry. ok is false when the slot has
// never been populated.
func (s *Slot[T]) Get() (Entry[T], bool) {
	s.mu.RLock()
	e := s.entry
	s.mu.RUnlock()
	if e == nil {
		return Entry[T]{}, false
	}
	out := *e
	out.Records = append([]T(nil), e.Records...)
	return out, true
}

// Put replaces the slot contents with records fetched at fetchedAt. The
// caller must not modify records afterwards.
func (s *Slot[T]) Put(records []T, fetchedAt time.Time) {
	e := &Entry[T]{Records: records, FetchedAt: fetchedAt, TTL: s.ttl}
	s.mu.Lock()
	s.entry = e
	s.mu.Unlock()
}

// FetchedAt returns the timestamp of the current entry, or the zero time.
func (s *Slot[T]) FetchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.entry == nil {
		return time.Time{}
	}
	return s.entry.FetchedAt
}

// IsFresh reports whether the slot holds an entry within its TTL at now.
func (s *Slot[T]) IsFresh(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entry != nil && s.entry.IsFresh(now)
}

// Len returns the number of cached records.
func (s *Slot[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.entry == nil {
		return 0
	}
	return len(s.entry.Records)
}

// Status summarises the slot at now. State is derived from the cache
// alone; the refresh coordinator overrides it while a fetch is running.
func (s *Slot[T]) Status(now time.Time) models.ViewStatus {
	s.mu.RLock()
	e := s.entry
	s.mu.RUnlock()

	st := models.ViewStatus{
		View:  s.view,
		State: models.StateEmpty,
		TTL:   s.ttl.String(),
	}
	if e == nil {
		return st
	}
	fetched := e.FetchedAt
	st.State = models.StateReady
	st.FetchedAt = &fetched
	st.Fresh = e.IsFresh(now)
	st.Records = len(e.Records)
	return st
}

// TTLs holds the freshness window of every view.
type TTLs struct {
	Latest     time.Duration
	Dsex       time.Duration
	Top30      time.Duration
	Historical time.Duration
}

// DefaultTTLs returns the standard freshness windows.
func DefaultTTLs() TTLs {
	return TTLs{
		Latest:     common.FreshnessLatest,
		Dsex:       common.FreshnessDsex,
		Top30:      common.FreshnessTop30,
		Historical: common.FreshnessHistorical,
	}
}

// Store is the set of view slots shared by the coordinators and the query engine.
type Store struct {
	Latest     *Slot[models.StockRecord]
	Dsex       *Slot[models.DsexRecord]
	Top30      *Slot[models.Top30Entry]
	Historical *Slot[models.HistoricalRecord]
}

// NewStore creates a store with one empty slot per view.
func NewStore(ttls TTLs) *Store {
	return &Store{
		Latest:     NewSlot[models.StockRecord](models.ViewLatest, ttls.Latest),
		Dsex:       NewSlot[models.DsexRecord](models.ViewDsex, ttls.Dsex),
		Top30:      NewSlot[models.Top30Entry](models.ViewTop30, ttls.Top30),
		Historical: NewSlot[models.HistoricalRecord](models.ViewHistorical, ttls.Historical),
	}
}
