package main

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"nostr-client/internal/nostr"
	"nostr-client/internal/types"
	"nostr-client/internal/util"
)

// Singleflight groups for deduplicating concurrent requests.
// When multiple goroutines request the same data simultaneously,
// only one actually fetches while others wait and share the result.
var (
	profilesGroup    singleflight.Group
	relayListGroup   singleflight.Group
	reactionsGroup   singleflight.Group
	replyCountsGroup singleflight.Group
)

// buildBatchKey creates a stable key for singleflight deduplication.
// Sorts both slices to ensure identical batches produce identical keys.
func buildBatchKey(prefix string, relays, ids []string) string {
	sortedRelays := util.SortedCopy(relays)
	sortedIDs := util.SortedCopy(ids)
	return prefix + ":" + strings.Join(sortedRelays, "|") + ":" + strings.Join(sortedIDs, ",")
}

// fetchProfilesShared fetches profiles with singleflight deduplication.
func fetchProfilesShared(ctx context.Context, relays []string, pubkeys []string) map[string]*ProfileInfo {
	if len(pubkeys) == 0 {
		return nil
	}

	batchKey := buildBatchKey("profiles", relays, pubkeys)

	result, _, shared := profilesGroup.Do(batchKey, func() (interface{}, error) {
		return fetchProfilesDirect(ctx, relays, pubkeys), nil
	})

	if shared {
		slog.Debug("singleflight: shared profile fetch", "count", len(pubkeys))
	}

	if result == nil {
		return nil
	}
	return result.(map[string]*ProfileInfo)
}

// fetchRelayListShared deduplicates concurrent relay list fetches per pubkey.
func fetchRelayListShared(ctx context.Context, p *RelayPool, pubkey string) *types.RelayList {
	result, _, shared := relayListGroup.Do(pubkey, func() (interface{}, error) {
		return p.fetchRelayListDirect(ctx, pubkey), nil
	})

	if shared {
		slog.Debug("singleflight: shared relay list fetch", "pubkey", nostr.ShortID(pubkey))
	}

	if result == nil {
		return nil
	}
	return result.(*types.RelayList)
}

// fetchReactionsShared fetches reactions with singleflight deduplication.
func fetchReactionsShared(ctx context.Context, relays []string, eventIDs []string) map[string]*ReactionsSummary {
	if len(eventIDs) == 0 {
		return nil
	}

	batchKey := buildBatchKey("reactions", relays, eventIDs)

	result, _, shared := reactionsGroup.Do(batchKey, func() (interface{}, error) {
		return fetchReactionsDirect(ctx, relays, eventIDs), nil
	})

	if shared {
		slog.Debug("singleflight: shared reactions fetch", "count", len(eventIDs))
	}

	return result.(map[string]*ReactionsSummary)
}

// fetchReplyCountsShared fetches reply counts with singleflight deduplication.
func fetchReplyCountsShared(ctx context.Context, relays []string, eventIDs []string) map[string]int {
	if len(eventIDs) == 0 {
		return nil
	}

	batchKey := buildBatchKey("replies", relays, eventIDs)

	result, _, shared := replyCountsGroup.Do(batchKey, func() (interface{}, error) {
		return fetchReplyCountsDirect(ctx, relays, eventIDs), nil
	})

	if shared {
		slog.Debug("singleflight: shared reply counts fetch", "count", len(eventIDs))
	}

	return result.(map[string]int)
}
