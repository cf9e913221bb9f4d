package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nostr-client/internal/types"
)

const (
	// StaleAfterSecs is how long a cached profile stays fresh (24 hours)
	StaleAfterSecs = 24 * 60 * 60

	// maxMemoryEvents bounds the hot event tier
	maxMemoryEvents = 1000

	// maxMemoryProfiles bounds the hot profile tier
	maxMemoryProfiles = 256
)

// EventStore is the two-tier local cache: a bounded in-memory hot tier
// plus the durable CacheBackend tier (Redis or memory).
type EventStore struct {
	mu         sync.RWMutex
	events     map[string]*types.CachedEvent
	profiles   map[string]*types.CachedProfile
	eventOrder []string // insertion order for oldest-first eviction
	profOrder  []string
}

var (
	storeOnce sync.Once
	storeInst *EventStore
)

// Store returns the process-wide event store singleton
func Store() *EventStore {
	storeOnce.Do(func() {
		storeInst = &EventStore{
			events:   make(map[string]*types.CachedEvent, maxMemoryEvents),
			profiles: make(map[string]*types.CachedProfile, maxMemoryProfiles),
		}
	})
	return storeInst
}

// IngestEvent stores an event in both tiers. Returns true if the event
// was newly seen, false if the hot tier already had it.
func (s *EventStore) IngestEvent(ev *types.Event) bool {
	if ev == nil || ev.ID == "" {
		return false
	}

	s.mu.RLock()
	_, have := s.events[ev.ID]
	s.mu.RUnlock()
	if have {
		return false
	}

	// Write-through to the durable tier
	if cacheBackend != nil {
		if data, err := json.Marshal(ev); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := cacheBackend.Set(ctx, "event:"+ev.ID, data, cacheConfig.EventTTL); err != nil {
				slog.Debug("durable event write failed", "event_id", ev.ID[:12], "error", err)
			}
			cancel()
		}
	}

	tagsJSON, _ := json.Marshal(ev.Tags)
	cached := &types.CachedEvent{
		ID:        ev.ID,
		PubKey:    ev.PubKey,
		Content:   ev.Content,
		Kind:      ev.Kind,
		CreatedAt: ev.CreatedAt,
		TagsJSON:  string(tagsJSON),
		CachedAt:  time.Now().Unix(),
	}

	s.mu.Lock()
	s.insertEventLocked(cached)
	s.mu.Unlock()

	cacheEventsIngested.Add(1)
	return true
}

// insertEventLocked adds an event to the hot tier, evicting the oldest
// entry when at capacity. Caller holds the write lock.
func (s *EventStore) insertEventLocked(ev *types.CachedEvent) {
	if _, exists := s.events[ev.ID]; !exists && len(s.events) >= maxMemoryEvents {
		if len(s.eventOrder) > 0 {
			oldest := s.eventOrder[0]
			s.eventOrder = s.eventOrder[1:]
			delete(s.events, oldest)
		}
	}

	// Re-insert moves the id to the newest position
	for i, id := range s.eventOrder {
		if id == ev.ID {
			s.eventOrder = append(s.eventOrder[:i], s.eventOrder[i+1:]...)
			break
		}
	}
	s.eventOrder = append(s.eventOrder, ev.ID)
	s.events[ev.ID] = ev
}

// IngestEvents ingests a batch, returning how many were newly seen
func (s *EventStore) IngestEvents(events []types.Event) int {
	newCount := 0
	for i := range events {
		if s.IngestEvent(&events[i]) {
			newCount++
		}
	}
	return newCount
}

// IngestProfile parses and stores a kind-0 metadata event. The durable
// write happens even when the content JSON is malformed; the hot-tier
// profile entry is only updated for parseable content and newer events.
func (s *EventStore) IngestProfile(ev *types.Event) error {
	if ev == nil || ev.Kind != KindMetadata {
		return fmt.Errorf("not a profile event (kind %d)", kindOf(ev))
	}

	s.IngestEvent(ev)

	var meta types.ProfileInfo
	if err := json.Unmarshal([]byte(ev.Content), &meta); err != nil {
		slog.Debug("unparseable profile content", "pubkey", ev.PubKey[:12])
		return nil
	}

	now := time.Now().Unix()
	cached := &types.CachedProfile{
		PubKey:      ev.PubKey,
		Name:        meta.Name,
		DisplayName: meta.DisplayName,
		Picture:     meta.Picture,
		Nip05:       meta.Nip05,
		About:       meta.About,
		Lud16:       meta.Lud16,
		Lud06:       meta.Lud06,
		CachedAt:    now,
		LastFetched: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[ev.PubKey]; !exists && len(s.profiles) >= maxMemoryProfiles {
		if len(s.profOrder) > 0 {
			oldest := s.profOrder[0]
			s.profOrder = s.profOrder[1:]
			delete(s.profiles, oldest)
		}
	}
	for i, pk := range s.profOrder {
		if pk == ev.PubKey {
			s.profOrder = append(s.profOrder[:i], s.profOrder[i+1:]...)
			break
		}
	}
	s.profOrder = append(s.profOrder, ev.PubKey)
	s.profiles[ev.PubKey] = cached

	return nil
}

// GetEvent returns a hot-tier event by id
func (s *EventStore) GetEvent(id string) (*types.CachedEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if ok {
		cacheHits.Add(1)
	} else {
		cacheMisses.Add(1)
	}
	return ev, ok
}

// HasEvent reports whether the hot tier holds the event
func (s *EventStore) HasEvent(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.events[id]
	return ok
}

// GetProfile returns a hot-tier profile by pubkey
func (s *EventStore) GetProfile(pubkey string) (*types.CachedProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[pubkey]
	return p, ok
}

// HasFreshProfile reports whether a non-stale profile is cached
func (s *EventStore) HasFreshProfile(pubkey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[pubkey]
	return ok && !profileStale(p)
}

// StaleProfilePubKeys returns the pubkeys whose profiles are stale or
// absent from the hot tier
func (s *EventStore) StaleProfilePubKeys(pubkeys []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []string
	for _, pk := range pubkeys {
		p, ok := s.profiles[pk]
		if !ok || profileStale(p) {
			stale = append(stale, pk)
		}
	}
	return stale
}

// ClearMemory drops the hot tier. The durable tier is untouched.
func (s *EventStore) ClearMemory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string]*types.CachedEvent, maxMemoryEvents)
	s.profiles = make(map[string]*types.CachedProfile, maxMemoryProfiles)
	s.eventOrder = nil
	s.profOrder = nil
	slog.Info("cleared in-memory event store")
}

// Stats returns a one-line summary for diagnostics
func (s *EventStore) Stats() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("store: %d events, %d profiles (durable tier: %s)",
		len(s.events), len(s.profiles), cacheBackendType)
}

func profileStale(p *types.CachedProfile) bool {
	return time.Now().Unix()-p.LastFetched > StaleAfterSecs
}

func kindOf(ev *types.Event) int {
	if ev == nil {
		return -1
	}
	return ev.Kind
}
