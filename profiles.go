package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"nostr-client/internal/types"
)

// Profiles returns profile info for the given pubkeys. Resolution order:
// fresh hot-tier entries, then the durable tier, then a relay fetch for
// whatever is still stale or missing.
func (p *RelayPool) Profiles(ctx context.Context, pubkeys []string) (map[string]*ProfileInfo, error) {
	if err := p.ensureConnected(); err != nil {
		return nil, err
	}
	if len(pubkeys) == 0 {
		return nil, nil
	}

	result := make(map[string]*ProfileInfo, len(pubkeys))

	var needDurable []string
	store := Store()
	for _, pk := range pubkeys {
		if cached, ok := store.GetProfile(pk); ok && !profileStale(cached) {
			result[pk] = profileFromCached(cached)
			cacheHits.Add(1)
		} else {
			needDurable = append(needDurable, pk)
		}
	}
	if len(needDurable) == 0 {
		return result, nil
	}

	durable, missing := profileCache.GetMultiple(needDurable)
	for pk, prof := range durable {
		result[pk] = prof
	}
	if len(missing) == 0 {
		return result, nil
	}
	cacheMisses.Add(1)

	fresh := fetchProfilesShared(ctx, p.Relays(), missing)
	for pk, prof := range fresh {
		result[pk] = prof
	}

	return result, nil
}

// RefreshStaleProfiles refetches profiles that the store considers stale
// or has never seen. Returns how many profiles were refreshed.
func (p *RelayPool) RefreshStaleProfiles(ctx context.Context, pubkeys []string) (int, error) {
	if err := p.ensureConnected(); err != nil {
		return 0, err
	}
	stale := Store().StaleProfilePubKeys(pubkeys)
	if len(stale) == 0 {
		return 0, nil
	}
	fresh := fetchProfilesShared(ctx, p.Relays(), stale)
	return len(fresh), nil
}

// fetchProfilesDirect queries relays for kind 0 metadata and stores the
// results in both cache tiers. Only the newest event per pubkey counts.
func fetchProfilesDirect(ctx context.Context, relays []string, pubkeys []string) map[string]*ProfileInfo {
	if len(pubkeys) == 0 {
		return nil
	}

	filter := Filter{
		Authors: pubkeys,
		Kinds:   []int{KindMetadata},
		Limit:   len(pubkeys),
	}

	events, _ := fetchEventsFromRelays(ctx, relays, filter, 3*time.Second)

	// Events arrive sorted newest-first, so the first hit per pubkey wins
	freshProfiles := make(map[string]*ProfileInfo)
	for i := range events {
		evt := &events[i]
		if evt.Kind != KindMetadata {
			continue
		}
		if _, ok := freshProfiles[evt.PubKey]; ok {
			continue
		}

		var profile ProfileInfo
		if err := json.Unmarshal([]byte(evt.Content), &profile); err != nil {
			continue
		}
		freshProfiles[evt.PubKey] = &profile
	}

	if len(freshProfiles) > 0 {
		profileCache.SetMultiple(freshProfiles)
		slog.Debug("cached new profiles", "count", len(freshProfiles))
	}

	// Kick off identifier verification for profiles that claim one
	for pk, prof := range freshProfiles {
		if prof.Nip05 != "" && GetCachedNIP05(prof.Nip05, pk) == nil {
			VerifyNIP05Async(prof.Nip05, pk)
		}
	}

	// Remember which pubkeys returned nothing so we don't hammer relays
	var notFound []string
	for _, pk := range pubkeys {
		if _, ok := freshProfiles[pk]; !ok {
			notFound = append(notFound, pk)
		}
	}
	if len(notFound) > 0 {
		profileCache.SetNotFound(notFound)
	}

	return freshProfiles
}

func profileFromCached(cp *types.CachedProfile) *ProfileInfo {
	return &ProfileInfo{
		Name:        cp.Name,
		DisplayName: cp.DisplayName,
		Picture:     cp.Picture,
		Nip05:       cp.Nip05,
		About:       cp.About,
		Lud16:       cp.Lud16,
		Lud06:       cp.Lud06,
	}
}
