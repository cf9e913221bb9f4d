package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"nostr-client/internal/types"
	"nostr-client/internal/util"
)

// fetchReactionsDirect fetches kind 7 reactions referencing the given
// event IDs and groups them per target event.
func fetchReactionsDirect(ctx context.Context, relays []string, eventIDs []string) map[string]*ReactionsSummary {
	if len(eventIDs) == 0 {
		return nil
	}

	filter := Filter{
		Kinds: []int{KindReaction},
		ETags: eventIDs,
		Limit: 500,
	}
	events, _ := fetchEventsFromRelays(ctx, relays, filter, 3*time.Second)
	return summarizeReactions(events, eventIDs)
}

// summarizeReactions groups kind 7 events per target, counting per
// reaction content. A reaction targets its last "e" tag.
func summarizeReactions(events []Event, eventIDs []string) map[string]*ReactionsSummary {
	wanted := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		wanted[id] = true
	}

	reactions := make(map[string]*ReactionsSummary)
	for i := range events {
		evt := &events[i]
		if evt.Kind != KindReaction {
			continue
		}

		targetEventID := util.GetLastTagValue(evt.Tags, "e")
		if targetEventID == "" || !wanted[targetEventID] {
			continue
		}

		summary, ok := reactions[targetEventID]
		if !ok {
			summary = &ReactionsSummary{ByType: make(map[string]int)}
			reactions[targetEventID] = summary
		}

		summary.Total++
		reactionType := evt.Content
		// Normalize "+" and empty to "❤️" (like/heart)
		if reactionType == "" || reactionType == "+" {
			reactionType = "❤️"
		}
		summary.ByType[reactionType]++
	}

	return reactions
}

// fetchReplyCountsDirect counts kind 1 replies per target event ID.
// A note counts as a reply to whatever its last "e" tag points at.
func fetchReplyCountsDirect(ctx context.Context, relays []string, eventIDs []string) map[string]int {
	if len(eventIDs) == 0 {
		return nil
	}

	filter := Filter{
		Kinds: []int{KindTextNote},
		ETags: eventIDs,
		Limit: 100,
	}
	events, _ := fetchEventsFromRelays(ctx, relays, filter, 2*time.Second)

	replyCounts := make(map[string]int)
	for i := range events {
		targetEventID := util.GetLastTagValue(events[i].Tags, "e")
		if targetEventID != "" {
			replyCounts[targetEventID]++
		}
	}

	return replyCounts
}

// fetchRepostCountsDirect counts kind 6 reposts per target event ID.
func fetchRepostCountsDirect(ctx context.Context, relays []string, eventIDs []string) map[string]int {
	if len(eventIDs) == 0 {
		return nil
	}

	filter := Filter{
		Kinds: []int{KindRepost},
		ETags: eventIDs,
		Limit: 100,
	}
	events, _ := fetchEventsFromRelays(ctx, relays, filter, 2*time.Second)

	repostCounts := make(map[string]int)
	for i := range events {
		targetEventID := util.GetLastTagValue(events[i].Tags, "e")
		if targetEventID != "" {
			repostCounts[targetEventID]++
		}
	}

	return repostCounts
}

// fetchZapTotalsDirect sums zap receipt amounts in sats per target event ID.
func fetchZapTotalsDirect(ctx context.Context, relays []string, eventIDs []string) map[string]int64 {
	if len(eventIDs) == 0 {
		return nil
	}

	filter := Filter{
		Kinds: []int{KindZapReceipt},
		ETags: eventIDs,
		Limit: 500,
	}
	events, _ := fetchEventsFromRelays(ctx, relays, filter, 3*time.Second)

	zapTotals := make(map[string]int64)
	for i := range events {
		evt := &events[i]
		targetEventID := util.GetLastTagValue(evt.Tags, "e")
		if targetEventID == "" {
			continue
		}
		if sats := extractZapAmountSats(evt); sats > 0 {
			zapTotals[targetEventID] += sats
		}
	}

	return zapTotals
}

// NoteStats fetches engagement counts for a batch of notes: reactions,
// replies, reposts, and total sats zapped. The four queries run in
// parallel and partial results are returned as-is.
func (p *RelayPool) NoteStats(ctx context.Context, eventIDs []string) (map[string]*types.NoteStats, error) {
	if err := p.ensureConnected(); err != nil {
		return nil, err
	}
	if len(eventIDs) == 0 {
		return nil, nil
	}

	relays := p.Relays()
	var (
		reactions map[string]*ReactionsSummary
		replies   map[string]int
		reposts   map[string]int
		zaps      map[string]int64
	)

	done := make(chan struct{}, 4)
	go func() { reactions = fetchReactionsShared(ctx, relays, eventIDs); done <- struct{}{} }()
	go func() { replies = fetchReplyCountsShared(ctx, relays, eventIDs); done <- struct{}{} }()
	go func() { reposts = fetchRepostCountsDirect(ctx, relays, eventIDs); done <- struct{}{} }()
	go func() { zaps = fetchZapTotalsDirect(ctx, relays, eventIDs); done <- struct{}{} }()
	for i := 0; i < 4; i++ {
		<-done
	}

	stats := make(map[string]*types.NoteStats, len(eventIDs))
	for _, id := range eventIDs {
		s := &types.NoteStats{
			Replies: replies[id],
			Reposts: reposts[id],
			ZapSats: zaps[id],
		}
		if summary, ok := reactions[id]; ok {
			s.Reactions = *summary
		} else {
			s.Reactions = ReactionsSummary{ByType: map[string]int{}}
		}
		stats[id] = s
	}

	return stats, nil
}

// parseBolt11AmountSats extracts the amount in sats from a bolt11
// invoice's human-readable part. Returns false for amountless invoices
// and unrecognized network prefixes.
func parseBolt11AmountSats(invoice string) (int64, bool) {
	inv := strings.ToLower(strings.TrimSpace(invoice))

	var rest string
	switch {
	case strings.HasPrefix(inv, "lnbcrt"):
		rest = inv[len("lnbcrt"):]
	case strings.HasPrefix(inv, "lnbc"):
		rest = inv[len("lnbc"):]
	case strings.HasPrefix(inv, "lntb"):
		rest = inv[len("lntb"):]
	default:
		return 0, false
	}

	var amount int64
	digits := 0
	for _, c := range rest {
		if c < '0' || c > '9' {
			break
		}
		amount = amount*10 + int64(c-'0')
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	if digits >= len(rest) {
		return amount * 100_000_000, true
	}

	// Multiplier follows the digits: milli, micro, nano, pico BTC
	switch rest[digits] {
	case 'm':
		return amount * 100_000, true
	case 'u':
		return amount * 100, true
	case 'n':
		return amount / 10, true
	case 'p':
		return amount / 10_000, true
	default:
		// No multiplier means the amount is whole BTC
		return amount * 100_000_000, true
	}
}

// extractZapAmountSats pulls the zap amount from a kind 9735 receipt.
// The bolt11 tag is authoritative. When it's missing or amountless we
// fall back to the amount tag of the embedded zap request (in msats).
func extractZapAmountSats(evt *Event) int64 {
	if bolt11 := util.GetTagValue(evt.Tags, "bolt11"); bolt11 != "" {
		if sats, ok := parseBolt11AmountSats(bolt11); ok {
			return sats
		}
	}

	description := util.GetTagValue(evt.Tags, "description")
	if description == "" {
		return 0
	}
	var zapRequest Event
	if err := json.Unmarshal([]byte(description), &zapRequest); err != nil {
		slog.Debug("unparseable zap receipt description", "event", evt.ID)
		return 0
	}
	amountStr := util.GetTagValue(zapRequest.Tags, "amount")
	if amountStr == "" {
		return 0
	}
	var msats int64
	for _, c := range amountStr {
		if c < '0' || c > '9' {
			return 0
		}
		msats = msats*10 + int64(c-'0')
	}
	return msats / 1000
}

// extractZapSender returns the pubkey that initiated a zap. The embedded
// zap request's author is preferred, falling back to the receipt's
// uppercase "P" tag.
func extractZapSender(evt *Event) string {
	if description := util.GetTagValue(evt.Tags, "description"); description != "" {
		var zapRequest Event
		if err := json.Unmarshal([]byte(description), &zapRequest); err == nil && zapRequest.PubKey != "" {
			return zapRequest.PubKey
		}
	}
	return util.GetTagValue(evt.Tags, "P")
}
