package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"nostr-client/internal/nostr"
	"nostr-client/internal/types"
)

// Aliases for the shared wire types
type (
	Event            = types.Event
	Filter           = types.Filter
	NostrMessage     = types.NostrMessage
	ProfileInfo      = types.ProfileInfo
	ReactionsSummary = types.ReactionsSummary
	RelayList        = types.RelayList
)

// DefaultRelays is the relay set used when none are configured
var DefaultRelays = []string{
	"wss://relay.pleb.one",
	"wss://relay.primal.net",
	"wss://relay.damus.io",
	"wss://nos.lol",
}

const defaultQueryTimeout = 10 * time.Second

// ErrNotConnected is returned by query and publish operations before Connect
var ErrNotConnected = errors.New("relay pool not connected")

// RelayPool holds the set of relays queries fan out to. Connections are
// dialed per query; the pool itself only tracks membership and state.
type RelayPool struct {
	mu        sync.RWMutex
	relays    []string
	connected bool
}

func NewRelayPool() *RelayPool {
	return &RelayPool{}
}

// Connect joins the default relay set. Idempotent.
func (p *RelayPool) Connect(ctx context.Context) error {
	return p.ConnectTo(ctx, DefaultRelays)
}

// ConnectTo joins the given relays, probing each and requiring at least
// one to be reachable. Calling it again with the same set is a no-op.
func (p *RelayPool) ConnectTo(ctx context.Context, urls []string) error {
	var valid []string
	for _, u := range urls {
		if normalized := nostr.NormalizeRelayURL(u); normalized != "" {
			valid = append(valid, normalized)
		}
	}
	if len(valid) == 0 {
		return errors.New("no valid relay URLs")
	}

	p.mu.RLock()
	if p.connected && sameRelaySet(p.relays, valid) {
		p.mu.RUnlock()
		return nil
	}
	p.mu.RUnlock()

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	reachable := make(chan string, len(valid))
	for _, relay := range valid {
		wg.Add(1)
		go func(relayURL string) {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.DialContext(probeCtx, relayURL, nil)
			if err != nil {
				slog.Warn("relay unreachable", "relay", relayURL, "error", err)
				return
			}
			conn.Close()
			reachable <- relayURL
		}(relay)
	}
	wg.Wait()
	close(reachable)

	count := len(reachable)
	if count == 0 {
		return fmt.Errorf("none of %d relays reachable", len(valid))
	}

	p.mu.Lock()
	p.relays = valid
	p.connected = true
	p.mu.Unlock()

	slog.Info("relay pool connected", "relays", len(valid), "reachable", count)
	return nil
}

// Disconnect empties the pool; subsequent operations fail fast
func (p *RelayPool) Disconnect() {
	p.mu.Lock()
	p.relays = nil
	p.connected = false
	p.mu.Unlock()
}

// Relays returns a copy of the current relay set
func (p *RelayPool) Relays() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.relays))
	copy(out, p.relays)
	return out
}

// Connected reports whether the pool has been connected
func (p *RelayPool) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *RelayPool) ensureConnected() error {
	if !p.Connected() {
		return ErrNotConnected
	}
	return nil
}

func sameRelaySet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, r := range a {
		set[r] = true
	}
	for _, r := range b {
		if !set[r] {
			return false
		}
	}
	return true
}

// FetchEvents runs the filter against every relay in the pool and returns
// the deduplicated, newest-first result
func (p *RelayPool) FetchEvents(ctx context.Context, filter Filter) ([]Event, error) {
	if err := p.ensureConnected(); err != nil {
		return nil, err
	}
	events, _ := fetchEventsFromRelays(ctx, p.Relays(), filter, defaultQueryTimeout)
	return events, nil
}

// FetchEventsWithTimeout is FetchEvents with a per-call deadline
func (p *RelayPool) FetchEventsWithTimeout(ctx context.Context, filter Filter, timeout time.Duration) ([]Event, error) {
	if err := p.ensureConnected(); err != nil {
		return nil, err
	}
	events, _ := fetchEventsFromRelays(ctx, p.Relays(), filter, timeout)
	return events, nil
}

func fetchEventsFromRelays(ctx context.Context, relays []string, filter Filter, timeout time.Duration) ([]Event, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	relayQueriesTotal.Add(1)

	var wg sync.WaitGroup
	eventChan := make(chan Event, 1000)
	eoseChan := make(chan bool, len(relays))

	for _, relay := range relays {
		wg.Add(1)
		go func(relayURL string) {
			defer wg.Done()
			fetchFromRelay(ctx, relayURL, filter, eventChan, eoseChan)
		}(relay)
	}

	// Close channels when all goroutines complete
	go func() {
		wg.Wait()
		close(eventChan)
		close(eoseChan)
	}()

	// Collect events and dedupe - return early if we have enough
	seenIDs := make(map[string]bool)
	events := []Event{}
	targetCount := filter.Limit * 2 // Collect 2x limit to allow for deduplication

collectLoop:
	for {
		select {
		case evt, ok := <-eventChan:
			if !ok {
				break collectLoop
			}
			if !seenIDs[evt.ID] {
				seenIDs[evt.ID] = true
				events = append(events, evt)
				ingestEvent(&evt)
				// Early exit once we have enough events
				if targetCount > 0 && len(events) >= targetCount {
					slog.Debug("early exit with enough events", "count", len(events))
					cancel()
					break collectLoop
				}
			}
		case <-ctx.Done():
			slog.Debug("fetch timeout", "count", len(events))
			break collectLoop
		}
	}

	// Check if all relays sent EOSE (non-blocking drain)
	eoseCount := 0
drainLoop:
	for {
		select {
		case _, ok := <-eoseChan:
			if !ok {
				break drainLoop
			}
			eoseCount++
		default:
			break drainLoop
		}
	}
	allEOSE := eoseCount == len(relays)

	// Sort by created_at DESC, then by ID DESC for tie-break
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID > events[j].ID
	})

	// Apply limit
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}

	return events, allEOSE
}

// ingestEvent feeds every received event through the local store
func ingestEvent(evt *Event) {
	relayEventsReceived.Add(1)
	if evt.Kind == KindMetadata {
		Store().IngestProfile(evt)
		return
	}
	Store().IngestEvent(evt)
}

// buildFilterJSON converts a Filter to its NIP-01 wire representation.
// A zero limit is omitted: some relays treat "limit":0 as "return
// nothing" rather than "no limit".
func buildFilterJSON(filter Filter) map[string]interface{} {
	reqFilter := map[string]interface{}{}
	if filter.Limit > 0 {
		reqFilter["limit"] = filter.Limit
	}
	if len(filter.IDs) > 0 {
		reqFilter["ids"] = filter.IDs
	}
	if len(filter.Authors) > 0 {
		reqFilter["authors"] = filter.Authors
	}
	if len(filter.Kinds) > 0 {
		reqFilter["kinds"] = filter.Kinds
	}
	if len(filter.ETags) > 0 {
		reqFilter["#e"] = filter.ETags
	}
	if len(filter.PTags) > 0 {
		reqFilter["#p"] = filter.PTags
	}
	if filter.Since != nil {
		reqFilter["since"] = *filter.Since
	}
	if filter.Until != nil {
		reqFilter["until"] = *filter.Until
	}
	return reqFilter
}

func fetchFromRelay(ctx context.Context, relayURL string, filter Filter, eventChan chan<- Event, eoseChan chan<- bool) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		slog.Debug("relay dial failed", "relay", relayURL, "error", err)
		return
	}
	defer conn.Close()

	subID := "sub-" + randomString(8)
	req := []interface{}{"REQ", subID, buildFilterJSON(filter)}
	if err := conn.WriteJSON(req); err != nil {
		slog.Debug("REQ send failed", "relay", relayURL, "error", err)
		return
	}

	// Read events until EOSE or context timeout
	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg NostrMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}

			if len(msg) < 2 {
				continue
			}

			msgType, ok := msg[0].(string)
			if !ok {
				continue
			}

			switch msgType {
			case "EVENT":
				if len(msg) >= 3 {
					evt, ok := nostr.ParseEventFromInterface(msg[2])
					if !ok {
						continue
					}
					evt.RelaysSeen = []string{relayURL}

					select {
					case eventChan <- evt:
					default:
						droppedEventCount.Add(1)
					}
				}
			case "EOSE":
				eoseChan <- true
				return
			case "NOTICE":
				if len(msg) >= 2 {
					if notice, ok := msg[1].(string); ok {
						slog.Debug("relay notice", "relay", relayURL, "notice", notice)
					}
				}
			case "AUTH":
				if len(msg) >= 2 {
					if challenge, ok := msg[1].(string); ok {
						respondToAuthChallenge(conn, relayURL, challenge)
					}
				}
			case "OK":
				// Publish acks are handled by publishToRelay
			}
		}
	}
}

// respondToAuthChallenge answers a NIP-42 AUTH challenge with a kind
// 22242 event signed by the local key, when one is configured
func respondToAuthChallenge(conn *websocket.Conn, relayURL, challenge string) {
	signer := localSignerOrNil()
	if signer == nil {
		slog.Debug("AUTH challenge ignored, no local key", "relay", relayURL)
		return
	}

	authEvent := &Event{
		PubKey:    signer.PubKeyHex(),
		CreatedAt: time.Now().Unix(),
		Kind:      KindClientAuth,
		Tags: [][]string{
			{"relay", relayURL},
			{"challenge", challenge},
		},
	}
	if err := nostr.SignEvent(signer.privKey, authEvent); err != nil {
		slog.Warn("AUTH response signing failed", "relay", relayURL, "error", err)
		return
	}

	if err := conn.WriteJSON([]interface{}{"AUTH", authEvent}); err != nil {
		slog.Debug("AUTH response send failed", "relay", relayURL, "error", err)
	}
}

func randomString(n int) string {
	const chars = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	rand.Read(b)
	for i := range b {
		b[i] = chars[int(b[i])%len(chars)]
	}
	return string(b)
}

// PublishEvent sends a signed event to every relay in the pool. It
// succeeds when at least one relay acknowledges with OK.
func (p *RelayPool) PublishEvent(ctx context.Context, ev *Event) error {
	if err := p.ensureConnected(); err != nil {
		return err
	}
	if ev.ID == "" || ev.Sig == "" {
		return errors.New("event not signed")
	}

	relays := p.Relays()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	relayPublishesTotal.Add(1)

	var wg sync.WaitGroup
	accepted := make(chan string, len(relays))
	for _, relay := range relays {
		wg.Add(1)
		go func(relayURL string) {
			defer wg.Done()
			if publishToRelay(ctx, relayURL, ev) {
				accepted <- relayURL
			}
		}(relay)
	}
	wg.Wait()
	close(accepted)

	count := len(accepted)
	if count == 0 {
		return fmt.Errorf("no relay accepted event %s", nostr.ShortID(ev.ID))
	}

	slog.Debug("event published", "event_id", nostr.ShortID(ev.ID), "accepted", count)
	return nil
}

func publishToRelay(ctx context.Context, relayURL string, ev *Event) bool {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		slog.Debug("publish dial failed", "relay", relayURL, "error", err)
		return false
	}
	defer conn.Close()

	if err := conn.WriteJSON([]interface{}{"EVENT", ev}); err != nil {
		return false
	}

	// Wait for the OK ack for our event id
	for {
		select {
		case <-ctx.Done():
			return false
		default:
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			var msg NostrMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return false
			}
			if len(msg) < 3 {
				continue
			}
			msgType, _ := msg[0].(string)
			if msgType == "AUTH" {
				if challenge, ok := msg[1].(string); ok {
					respondToAuthChallenge(conn, relayURL, challenge)
				}
				continue
			}
			if msgType != "OK" {
				continue
			}
			id, _ := msg[1].(string)
			if id != ev.ID {
				continue
			}
			ok, _ := msg[2].(bool)
			if !ok && len(msg) >= 4 {
				if reason, isStr := msg[3].(string); isStr {
					slog.Debug("relay rejected event", "relay", relayURL, "reason", reason)
				}
			}
			return ok
		}
	}
}

// FetchEventByID looks up a single event by id across the pool
func (p *RelayPool) FetchEventByID(ctx context.Context, eventID string) (*Event, error) {
	if err := p.ensureConnected(); err != nil {
		return nil, err
	}

	// Hot tier first
	if cached, ok := Store().GetEvent(eventID); ok {
		var tags [][]string
		json.Unmarshal([]byte(cached.TagsJSON), &tags)
		return &Event{
			ID:        cached.ID,
			PubKey:    cached.PubKey,
			CreatedAt: cached.CreatedAt,
			Kind:      cached.Kind,
			Tags:      tags,
			Content:   cached.Content,
		}, nil
	}

	filter := Filter{IDs: []string{eventID}, Limit: 1}
	events, _ := fetchEventsFromRelays(ctx, p.Relays(), filter, 5*time.Second)
	if len(events) == 0 {
		return nil, fmt.Errorf("event %s: %w", nostr.ShortID(eventID), ErrEventNotFound)
	}
	return &events[0], nil
}

// FetchRelayList fetches a user's kind:10002 relay list metadata
func (p *RelayPool) FetchRelayList(ctx context.Context, pubkey string) (*RelayList, error) {
	if err := p.ensureConnected(); err != nil {
		return nil, err
	}

	if cached, notFound, inCache := relayListCache.Get(pubkey); inCache {
		if notFound {
			return nil, nil
		}
		return cached, nil
	}

	return fetchRelayListShared(ctx, p, pubkey), nil
}

// fetchRelayListDirect queries the pool for the kind 10002 event and
// parses its r-tags. Called through the singleflight group.
func (p *RelayPool) fetchRelayListDirect(ctx context.Context, pubkey string) *RelayList {
	filter := Filter{
		Authors: []string{pubkey},
		Kinds:   []int{KindRelayList},
		Limit:   1,
	}
	events, _ := fetchEventsFromRelays(ctx, p.Relays(), filter, 3*time.Second)
	if len(events) == 0 {
		relayListCache.Set(pubkey, nil)
		return nil
	}

	relayList := &RelayList{}
	for _, tag := range events[0].Tags {
		if len(tag) < 2 || tag[0] != "r" {
			continue
		}
		relayURL := tag[1]
		marker := ""
		if len(tag) >= 3 {
			marker = tag[2]
		}
		switch marker {
		case "read":
			relayList.Read = append(relayList.Read, relayURL)
		case "write":
			relayList.Write = append(relayList.Write, relayURL)
		default:
			// No marker means both read and write
			relayList.Read = append(relayList.Read, relayURL)
			relayList.Write = append(relayList.Write, relayURL)
		}
	}

	relayListCache.Set(pubkey, relayList)
	return relayList
}

// FetchContactList fetches a user's kind:3 contact list (who they follow)
func (p *RelayPool) FetchContactList(ctx context.Context, pubkey string) ([]string, error) {
	if err := p.ensureConnected(); err != nil {
		return nil, err
	}

	if cached, ok := contactCache.Get(pubkey); ok {
		return cached, nil
	}

	filter := Filter{
		Authors: []string{pubkey},
		Kinds:   []int{KindContacts},
		Limit:   1,
	}
	events, _ := fetchEventsFromRelays(ctx, p.Relays(), filter, 3*time.Second)
	if len(events) == 0 {
		slog.Debug("no contact list found", "pubkey", nostr.ShortID(pubkey))
		return nil, nil
	}

	var contacts []string
	for _, tag := range events[0].Tags {
		if len(tag) >= 2 && tag[0] == "p" {
			contacts = append(contacts, tag[1])
		}
	}

	contactCache.Set(pubkey, contacts)
	return contacts, nil
}
