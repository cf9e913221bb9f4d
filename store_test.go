package main

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"nostr-client/internal/types"
)

func testEvent(id string, createdAt int64) types.Event {
	return types.Event{
		ID:        id,
		PubKey:    "aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899",
		CreatedAt: createdAt,
		Kind:      KindTextNote,
		Content:   "test note " + id,
	}
}

func TestIngestEventDedup(t *testing.T) {
	s := Store()
	s.ClearMemory()

	ev := testEvent("dedup-event-1", time.Now().Unix())
	if !s.IngestEvent(&ev) {
		t.Fatal("first ingest should report newly seen")
	}
	if s.IngestEvent(&ev) {
		t.Error("second ingest of the same id should report already seen")
	}
	if !s.HasEvent("dedup-event-1") {
		t.Error("event should be in the hot tier")
	}
}

func TestIngestEventIgnoresEmpty(t *testing.T) {
	s := Store()
	s.ClearMemory()

	if s.IngestEvent(nil) {
		t.Error("nil event should not count as newly seen")
	}
	empty := types.Event{}
	if s.IngestEvent(&empty) {
		t.Error("event without id should not count as newly seen")
	}
}

func TestEventEvictionOldestFirst(t *testing.T) {
	s := Store()
	s.ClearMemory()

	for i := 0; i < maxMemoryEvents; i++ {
		ev := testEvent(fmt.Sprintf("evict-%04d", i), int64(i))
		s.IngestEvent(&ev)
	}
	if !s.HasEvent("evict-0000") {
		t.Fatal("store should hold exactly its capacity before eviction")
	}

	overflow := testEvent("evict-overflow", time.Now().Unix())
	s.IngestEvent(&overflow)

	if s.HasEvent("evict-0000") {
		t.Error("oldest event should have been evicted")
	}
	if !s.HasEvent("evict-0001") {
		t.Error("second-oldest event should survive a single eviction")
	}
	if !s.HasEvent("evict-overflow") {
		t.Error("newly ingested event should be present")
	}
}

func TestIngestBatchCountsNew(t *testing.T) {
	s := Store()
	s.ClearMemory()

	events := []types.Event{
		testEvent("batch-1", 100),
		testEvent("batch-2", 200),
		testEvent("batch-1", 100), // duplicate
	}
	if got := s.IngestEvents(events); got != 2 {
		t.Errorf("expected 2 newly seen events, got %d", got)
	}
}

func TestIngestProfile(t *testing.T) {
	s := Store()
	s.ClearMemory()

	meta, _ := json.Marshal(map[string]string{
		"name":    "alice",
		"picture": "https://example.com/alice.png",
		"lud16":   "alice@wallet.example.com",
	})
	ev := types.Event{
		ID:        "profile-event-1",
		PubKey:    "1111111111111111111111111111111111111111111111111111111111111111",
		CreatedAt: time.Now().Unix(),
		Kind:      KindMetadata,
		Content:   string(meta),
	}
	if err := s.IngestProfile(&ev); err != nil {
		t.Fatalf("IngestProfile: %v", err)
	}

	p, ok := s.GetProfile(ev.PubKey)
	if !ok {
		t.Fatal("profile should be cached")
	}
	if p.Name != "alice" || p.Lud16 != "alice@wallet.example.com" {
		t.Errorf("profile fields not preserved: %+v", p)
	}
	if !s.HasFreshProfile(ev.PubKey) {
		t.Error("just-ingested profile should be fresh")
	}
}

func TestIngestProfileRejectsWrongKind(t *testing.T) {
	s := Store()
	s.ClearMemory()

	ev := testEvent("not-a-profile", time.Now().Unix())
	if err := s.IngestProfile(&ev); err == nil {
		t.Error("expected error for non-metadata kind")
	}
}

func TestIngestProfileMalformedContent(t *testing.T) {
	s := Store()
	s.ClearMemory()

	ev := types.Event{
		ID:        "bad-profile-1",
		PubKey:    "2222222222222222222222222222222222222222222222222222222222222222",
		CreatedAt: time.Now().Unix(),
		Kind:      KindMetadata,
		Content:   "{not json",
	}
	// Malformed content is not an error, the raw event is still cached
	if err := s.IngestProfile(&ev); err != nil {
		t.Fatalf("IngestProfile: %v", err)
	}
	if _, ok := s.GetProfile(ev.PubKey); ok {
		t.Error("malformed profile should not land in the profile tier")
	}
	if !s.HasEvent("bad-profile-1") {
		t.Error("the raw event should still be cached")
	}
}

func TestStaleProfilePubKeys(t *testing.T) {
	s := Store()
	s.ClearMemory()

	meta, _ := json.Marshal(map[string]string{"name": "bob"})
	fresh := types.Event{
		ID:        "stale-test-fresh",
		PubKey:    "3333333333333333333333333333333333333333333333333333333333333333",
		CreatedAt: time.Now().Unix(),
		Kind:      KindMetadata,
		Content:   string(meta),
	}
	if err := s.IngestProfile(&fresh); err != nil {
		t.Fatalf("IngestProfile: %v", err)
	}

	// Age one profile past the staleness window
	old := types.Event{
		ID:        "stale-test-old",
		PubKey:    "4444444444444444444444444444444444444444444444444444444444444444",
		CreatedAt: time.Now().Unix(),
		Kind:      KindMetadata,
		Content:   string(meta),
	}
	if err := s.IngestProfile(&old); err != nil {
		t.Fatalf("IngestProfile: %v", err)
	}
	p, _ := s.GetProfile(old.PubKey)
	p.LastFetched = time.Now().Unix() - StaleAfterSecs - 60

	missing := "5555555555555555555555555555555555555555555555555555555555555555"
	stale := s.StaleProfilePubKeys([]string{fresh.PubKey, old.PubKey, missing})

	if len(stale) != 2 {
		t.Fatalf("expected 2 stale pubkeys, got %d: %v", len(stale), stale)
	}
	for _, pk := range stale {
		if pk == fresh.PubKey {
			t.Error("fresh profile should not be reported stale")
		}
	}
	if s.HasFreshProfile(old.PubKey) {
		t.Error("aged profile should not be fresh")
	}
}
