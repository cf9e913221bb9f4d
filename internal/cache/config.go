package cache

import "time"

// CacheConfig holds cache TTL configuration
type CacheConfig struct {
	EventTTL             time.Duration
	ProfileTTL           time.Duration
	ProfileNotFoundTTL   time.Duration
	ContactTTL           time.Duration
	RelayListTTL         time.Duration
	RelayListNotFoundTTL time.Duration
}

// DefaultCacheConfig returns sensible defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		EventTTL:             24 * time.Hour,
		ProfileTTL:           24 * time.Hour, // Matches the staleness window for refetch
		ProfileNotFoundTTL:   30 * time.Second,
		ContactTTL:           10 * time.Minute,
		RelayListTTL:         1 * time.Hour,
		RelayListNotFoundTTL: 5 * time.Minute,
	}
}
