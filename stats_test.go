package main

import (
	"context"
	"encoding/json"
	"testing"
)

func TestParseBolt11AmountSats(t *testing.T) {
	tests := []struct {
		invoice string
		sats    int64
		ok      bool
	}{
		// 10 milli-BTC = 1,000,000 sats
		{"lnbc10m1pexample", 1_000_000, true},
		// 2500 micro-BTC = 250,000 sats
		{"lnbc2500u1pexample", 250_000, true},
		// 100 nano-BTC = 10 sats
		{"lnbc100n1pexample", 10, true},
		// 10000 pico-BTC = 1 sat
		{"lnbc10000p1pexample", 1, true},
		// testnet and regtest prefixes
		{"lntb21u1pexample", 2_100, true},
		{"lnbcrt1m1pexample", 100_000, true},
		// uppercase input is normalized
		{"LNBC10M1PEXAMPLE", 1_000_000, true},
		// unknown network prefix
		{"lnxx10m1pexample", 0, false},
		// no digits after the prefix
		{"lnbcxyz", 0, false},
		{"", 0, false},
	}

	for _, tc := range tests {
		sats, ok := parseBolt11AmountSats(tc.invoice)
		if ok != tc.ok || sats != tc.sats {
			t.Errorf("parseBolt11AmountSats(%q) = (%d, %v), want (%d, %v)",
				tc.invoice, sats, ok, tc.sats, tc.ok)
		}
	}
}

func zapReceipt(t *testing.T, bolt11 string, requestAmountMsats string, senderPubkey string) *Event {
	t.Helper()

	var tags [][]string
	if bolt11 != "" {
		tags = append(tags, []string{"bolt11", bolt11})
	}
	if requestAmountMsats != "" || senderPubkey != "" {
		request := Event{
			PubKey: senderPubkey,
			Kind:   KindZapRequest,
		}
		if requestAmountMsats != "" {
			request.Tags = [][]string{{"amount", requestAmountMsats}}
		}
		data, err := json.Marshal(&request)
		if err != nil {
			t.Fatal(err)
		}
		tags = append(tags, []string{"description", string(data)})
	}

	return &Event{
		ID:   "receipt-1",
		Kind: KindZapReceipt,
		Tags: tags,
	}
}

func TestExtractZapAmountSats(t *testing.T) {
	// bolt11 tag wins
	evt := zapReceipt(t, "lnbc21u1pexample", "99000", "")
	if got := extractZapAmountSats(evt); got != 2_100 {
		t.Errorf("bolt11 amount = %d, want 2100", got)
	}

	// fall back to the embedded zap request amount (msats)
	evt = zapReceipt(t, "", "21000", "")
	if got := extractZapAmountSats(evt); got != 21 {
		t.Errorf("fallback amount = %d, want 21", got)
	}

	// amountless invoice plus request amount
	evt = zapReceipt(t, "lnxx0", "5000", "")
	if got := extractZapAmountSats(evt); got != 5 {
		t.Errorf("amountless fallback = %d, want 5", got)
	}

	// nothing to go on
	evt = &Event{Kind: KindZapReceipt}
	if got := extractZapAmountSats(evt); got != 0 {
		t.Errorf("empty receipt amount = %d, want 0", got)
	}
}

func TestExtractZapSender(t *testing.T) {
	sender := "6666666666666666666666666666666666666666666666666666666666666666"

	evt := zapReceipt(t, "", "1000", sender)
	if got := extractZapSender(evt); got != sender {
		t.Errorf("sender from request = %q, want %q", got, sender)
	}

	// uppercase P tag fallback
	evt = &Event{
		Kind: KindZapReceipt,
		Tags: [][]string{{"P", sender}},
	}
	if got := extractZapSender(evt); got != sender {
		t.Errorf("sender from P tag = %q, want %q", got, sender)
	}
}

func TestNoteStatsQueriesCarryLimits(t *testing.T) {
	target := "stat-target-1"
	fr, url := newFakeRelay(t, []Event{reaction("stat-r1", target, "+")})
	pool := newTestPool(t, fr, url)

	stats, err := pool.NoteStats(context.Background(), []string{target})
	if err != nil {
		t.Fatalf("NoteStats: %v", err)
	}
	if stats[target] == nil || stats[target].Reactions.Total != 1 {
		t.Errorf("expected one reaction for the target, got %+v", stats[target])
	}

	// Relays drop "limit":0 queries, so every stats filter needs a real one
	for _, kind := range []int{KindReaction, KindTextNote, KindRepost, KindZapReceipt} {
		filter := fr.recordedFilter(kind)
		if filter == nil {
			t.Errorf("no filter recorded for kind %d", kind)
			continue
		}
		if limit, ok := filter["limit"].(float64); !ok || limit <= 0 {
			t.Errorf("kind %d filter limit = %v, want > 0", kind, filter["limit"])
		}
	}
}

func reaction(id, target, content string) Event {
	return Event{
		ID:      id,
		Kind:    KindReaction,
		Tags:    [][]string{{"e", target}},
		Content: content,
	}
}

func TestSummarizeReactions(t *testing.T) {
	target := "feed-event-1"
	events := []Event{
		reaction("r1", target, ""),
		reaction("r2", target, "+"),
		reaction("r3", target, "🔥"),
		reaction("r4", target, "+"),
		reaction("r5", "some-other-event", "+"), // not in the wanted set
		{ID: "r6", Kind: KindTextNote, Tags: [][]string{{"e", target}}},
	}

	reactions := summarizeReactions(events, []string{target})
	got := reactions[target]
	if got == nil {
		t.Fatal("expected a summary for the target event")
	}
	if got.Total != 4 {
		t.Errorf("total = %d, want 4", got.Total)
	}
	if got.ByType["❤️"] != 3 {
		t.Errorf("hearts = %d, want 3 (empty and + normalize to like)", got.ByType["❤️"])
	}
	if got.ByType["🔥"] != 1 {
		t.Errorf("fire = %d, want 1", got.ByType["🔥"])
	}
	if _, ok := reactions["some-other-event"]; ok {
		t.Error("events outside the wanted set should be ignored")
	}
}
