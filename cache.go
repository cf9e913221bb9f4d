package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"nostr-client/internal/cache"
	"nostr-client/internal/types"
)

// Global cache instances
var (
	profileCache   *ProfileCacheWrapper
	contactCache   *ContactCacheWrapper
	relayListCache *RelayListCacheWrapper

	// Cache backend (memory or redis)
	cacheBackend cache.CacheBackend

	// Cache configuration
	cacheConfig cache.CacheConfig

	// Cache backend type for stats reporting
	cacheBackendType string // "redis" or "memory"
)

// InitCaches initializes the durable tier with Redis if REDIS_URL is set,
// otherwise an in-memory backend
func InitCaches() error {
	cacheConfig = cache.DefaultCacheConfig()
	redisURL := os.Getenv("REDIS_URL")

	if redisURL != "" {
		slog.Info("initializing Redis cache")
		redisCache, err := NewRedisCache(redisURL, "nostr:")
		if err != nil {
			slog.Warn("Redis connection failed, using memory cache", "error", err)
			initMemoryBackend()
		} else {
			cacheBackend = redisCache
			cacheBackendType = "redis"
			lnurlCache = NewRedisLNURLCache(redisCache.GetClient(), "nostr:", 1*time.Hour)
			slog.Info("Redis cache initialized")
		}
	} else {
		initMemoryBackend()
	}

	// Initialize typed wrappers
	profileCache = NewProfileCacheWrapper(cacheBackend, cacheConfig)
	contactCache = NewContactCacheWrapper(cacheBackend, cacheConfig)
	relayListCache = NewRelayListCacheWrapper(cacheBackend, cacheConfig)

	return nil
}

func initMemoryBackend() {
	slog.Info("initializing in-memory cache")
	cacheBackend = cache.NewMemoryCache(10000, 2*time.Minute)
	cacheBackendType = "memory"
}

// ProfileCacheWrapper provides typed access to the profile durable tier
type ProfileCacheWrapper struct {
	backend cache.CacheBackend
	config  cache.CacheConfig
}

func NewProfileCacheWrapper(backend cache.CacheBackend, config cache.CacheConfig) *ProfileCacheWrapper {
	return &ProfileCacheWrapper{backend: backend, config: config}
}

// Get retrieves a profile from cache if it exists and isn't expired
// Returns (profile, notFound, inCache) - if inCache is true but notFound is true, we know it doesn't exist
func (c *ProfileCacheWrapper) Get(pubkey string) (*types.ProfileInfo, bool, bool) {
	ctx := context.Background()
	data, found, err := c.backend.Get(ctx, "profile:"+pubkey)
	if err != nil || !found {
		return nil, false, false
	}

	var cached types.ProfileRecord
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, false
	}

	return cached.Profile, cached.NotFound, true
}

// Delete removes a profile from the cache
func (c *ProfileCacheWrapper) Delete(pubkey string) {
	ctx := context.Background()
	c.backend.Delete(ctx, "profile:"+pubkey)
}

// SetMultiple stores multiple profiles at once (nil profiles are stored as "not found")
func (c *ProfileCacheWrapper) SetMultiple(profiles map[string]*types.ProfileInfo) {
	ctx := context.Background()
	now := time.Now().Unix()

	for pubkey, profile := range profiles {
		cached := types.ProfileRecord{
			Profile:   profile,
			FetchedAt: now,
			NotFound:  profile == nil,
		}
		data, err := json.Marshal(cached)
		if err != nil {
			continue
		}

		ttl := c.config.ProfileTTL
		if profile == nil {
			ttl = c.config.ProfileNotFoundTTL
		}
		c.backend.Set(ctx, "profile:"+pubkey, data, ttl)
	}
}

// SetNotFound marks multiple pubkeys as "not found" in cache
func (c *ProfileCacheWrapper) SetNotFound(pubkeys []string) {
	ctx := context.Background()
	now := time.Now().Unix()

	for _, pubkey := range pubkeys {
		cached := types.ProfileRecord{
			FetchedAt: now,
			NotFound:  true,
		}
		data, err := json.Marshal(cached)
		if err != nil {
			continue
		}
		c.backend.Set(ctx, "profile:"+pubkey, data, c.config.ProfileNotFoundTTL)
	}
}

// GetMultiple retrieves multiple profiles, returning found ones and list of missing pubkeys
// Pubkeys with cached "not found" status are NOT included in missing (they're known to not exist)
func (c *ProfileCacheWrapper) GetMultiple(pubkeys []string) (found map[string]*types.ProfileInfo, missing []string) {
	found = make(map[string]*types.ProfileInfo)
	ctx := context.Background()

	keys := make([]string, len(pubkeys))
	for i, pk := range pubkeys {
		keys[i] = "profile:" + pk
	}

	results, err := c.backend.GetMultiple(ctx, keys)
	if err != nil {
		return found, pubkeys
	}

	for i, pubkey := range pubkeys {
		data, ok := results[keys[i]]
		if !ok {
			missing = append(missing, pubkey)
			continue
		}

		var cached types.ProfileRecord
		if err := json.Unmarshal(data, &cached); err != nil {
			missing = append(missing, pubkey)
			continue
		}

		// If it's a "not found" entry, don't add to found but also don't add to missing
		if !cached.NotFound && cached.Profile != nil {
			found[pubkey] = cached.Profile
		}
	}

	return found, missing
}

// ContactCacheWrapper provides typed access to contact list cache
type ContactCacheWrapper struct {
	backend cache.CacheBackend
	config  cache.CacheConfig
}

func NewContactCacheWrapper(backend cache.CacheBackend, config cache.CacheConfig) *ContactCacheWrapper {
	return &ContactCacheWrapper{backend: backend, config: config}
}

// Get retrieves contacts from cache if not expired
func (c *ContactCacheWrapper) Get(pubkey string) ([]string, bool) {
	ctx := context.Background()
	data, found, err := c.backend.Get(ctx, "contacts:"+pubkey)
	if err != nil || !found {
		return nil, false
	}

	var cached types.ContactsRecord
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false
	}

	return cached.Pubkeys, true
}

// Set stores contacts in the cache
func (c *ContactCacheWrapper) Set(pubkey string, contacts []string) {
	ctx := context.Background()
	cached := types.ContactsRecord{
		Pubkeys:   contacts,
		FetchedAt: time.Now().Unix(),
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return
	}
	c.backend.Set(ctx, "contacts:"+pubkey, data, c.config.ContactTTL)
}

// RelayListCacheWrapper provides typed access to relay list cache
type RelayListCacheWrapper struct {
	backend cache.CacheBackend
	config  cache.CacheConfig
}

func NewRelayListCacheWrapper(backend cache.CacheBackend, config cache.CacheConfig) *RelayListCacheWrapper {
	return &RelayListCacheWrapper{backend: backend, config: config}
}

// Get retrieves a relay list from cache if not expired
func (c *RelayListCacheWrapper) Get(pubkey string) (*types.RelayList, bool, bool) {
	ctx := context.Background()
	data, found, err := c.backend.Get(ctx, "relaylist:"+pubkey)
	if err != nil || !found {
		return nil, false, false
	}

	var cached types.RelayListRecord
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, false
	}

	return cached.RelayList, cached.NotFound, true
}

// Set stores a relay list in the cache
func (c *RelayListCacheWrapper) Set(pubkey string, relayList *types.RelayList) {
	ctx := context.Background()
	cached := types.RelayListRecord{
		RelayList: relayList,
		FetchedAt: time.Now().Unix(),
		NotFound:  relayList == nil,
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return
	}

	ttl := c.config.RelayListTTL
	if relayList == nil {
		ttl = c.config.RelayListNotFoundTTL
	}
	c.backend.Set(ctx, "relaylist:"+pubkey, data, ttl)
}
