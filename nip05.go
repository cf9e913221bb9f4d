package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nostr-client/internal/nostr"
	"nostr-client/internal/util"
)

// NIP-05 verification with caching
// Verifies nip05 identifiers (user@domain.com) against .well-known/nostr.json

var nip05HTTPClient = &http.Client{
	Timeout: 5 * time.Second,
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) >= 3 {
			return fmt.Errorf("too many redirects")
		}
		return nil
	},
}

// NIP05Result contains the verification result for a nip05 identifier
type NIP05Result struct {
	Verified  bool      `json:"verified"`
	Pubkey    string    `json:"pubkey,omitempty"` // the verified pubkey (hex)
	Domain    string    `json:"domain,omitempty"` // display domain
	Relays    []string  `json:"relays,omitempty"` // relay hints
	CheckedAt time.Time `json:"checked_at"`
}

// nip05CacheTTL is the TTL for NIP-05 cache entries
var nip05CacheTTL = 24 * time.Hour

// nip05CacheGet reads a verification result from the durable tier.
func nip05CacheGet(nip05 string) (*NIP05Result, bool) {
	if cacheBackend == nil {
		return nil, false
	}
	data, found, err := cacheBackend.Get(context.Background(), "nip05:"+nip05)
	if err != nil || !found {
		return nil, false
	}
	var result NIP05Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func nip05CacheSet(nip05 string, result *NIP05Result) {
	if cacheBackend == nil || result == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	cacheBackend.Set(context.Background(), "nip05:"+nip05, data, nip05CacheTTL)
}

// GetCachedNIP05 checks if we have a valid cached verification for this
// identifier/pubkey pair. Returns nil if not cached or expired.
func GetCachedNIP05(nip05 string, pubkey string) *NIP05Result {
	if nip05 == "" || pubkey == "" {
		return nil
	}
	cached, ok := nip05CacheGet(nip05)
	if ok && cached.Verified && cached.Pubkey == pubkey {
		return cached
	}
	return nil
}

// VerifyNIP05 verifies a nip05 identifier for a given pubkey
// Returns the verification result (from cache if available)
func VerifyNIP05(nip05 string, pubkey string) *NIP05Result {
	if nip05 == "" || pubkey == "" {
		return nil
	}

	if cached, ok := nip05CacheGet(nip05); ok {
		if cached.Verified && cached.Pubkey == pubkey {
			return cached
		}
		// Cached but verified for someone else
		if cached.Verified && cached.Pubkey != pubkey {
			return &NIP05Result{Verified: false}
		}
		return cached
	}

	result := fetchAndVerifyNIP05(nip05, pubkey)
	nip05CacheSet(nip05, result)
	return result
}

// VerifyNIP05Async verifies a nip05 identifier in the background and
// updates the cached profile with the result.
func VerifyNIP05Async(nip05 string, pubkey string) {
	Go("nip05-verify", func() {
		result := VerifyNIP05(nip05, pubkey)
		if result != nil && result.Verified {
			updateProfileWithNIP05(pubkey, result)
		}
	})
}

// updateProfileWithNIP05 stamps verification data onto the cached profile
func updateProfileWithNIP05(pubkey string, result *NIP05Result) {
	if profileCache == nil {
		return
	}
	profile, notFound, inCache := profileCache.Get(pubkey)
	if !inCache || notFound || profile == nil {
		return
	}

	profile.NIP05Verified = result.Verified
	profile.NIP05Domain = result.Domain
	profileCache.SetMultiple(map[string]*ProfileInfo{pubkey: profile})

	slog.Debug("updated profile with NIP-05 verification",
		"pubkey", nostr.ShortID(pubkey),
		"domain", result.Domain)
}

// fetchAndVerifyNIP05 fetches the .well-known/nostr.json and verifies the pubkey
func fetchAndVerifyNIP05(nip05 string, pubkey string) *NIP05Result {
	result := &NIP05Result{
		Verified:  false,
		CheckedAt: time.Now(),
	}

	// Parse nip05: name@domain
	parts := strings.SplitN(nip05, "@", 2)
	if len(parts) != 2 {
		slog.Debug("invalid nip05 format", "nip05", nip05)
		return result
	}

	name := strings.ToLower(parts[0])
	domain := strings.ToLower(parts[1])

	// Validate domain
	if domain == "" || strings.Contains(domain, "/") || strings.Contains(domain, "\\") {
		slog.Debug("invalid nip05 domain", "domain", domain)
		return result
	}

	// Block internal/private hosts
	if util.IsPrivateHost(domain) {
		slog.Debug("nip05 domain is private/internal", "domain", domain)
		return result
	}

	// Set display domain (for "_@domain", show just "domain")
	if name == "_" {
		result.Domain = domain
	} else {
		result.Domain = nip05
	}

	url := fmt.Sprintf("https://%s/.well-known/nostr.json?name=%s", domain, name)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		slog.Debug("failed to create nip05 request", "url", url, "error", err)
		return result
	}
	req.Header.Set("Accept", "application/json")

	resp, err := nip05HTTPClient.Do(req)
	if err != nil {
		slog.Debug("nip05 fetch failed", "url", url, "error", err)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Debug("nip05 fetch returned non-200", "url", url, "status", resp.StatusCode)
		return result
	}

	var data struct {
		Names  map[string]string   `json:"names"`
		Relays map[string][]string `json:"relays"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		slog.Debug("failed to parse nip05 response", "url", url, "error", err)
		return result
	}

	// Verify pubkey matches
	verifiedPubkey, ok := data.Names[name]
	if !ok {
		slog.Debug("nip05 name not found in response", "name", name, "url", url)
		return result
	}

	verifiedPubkey = strings.ToLower(verifiedPubkey)
	if verifiedPubkey != strings.ToLower(pubkey) {
		slog.Debug("nip05 pubkey mismatch",
			"expected", nostr.ShortID(pubkey),
			"got", nostr.ShortID(verifiedPubkey))
		return result
	}

	result.Verified = true
	result.Pubkey = verifiedPubkey

	// Extract relay hints if available
	if relays, ok := data.Relays[verifiedPubkey]; ok {
		for _, relay := range relays {
			if normalized := nostr.NormalizeRelayURL(relay); normalized != "" {
				result.Relays = append(result.Relays, normalized)
			}
		}
	}

	slog.Debug("nip05 verified",
		"nip05", nip05,
		"pubkey", nostr.ShortID(pubkey),
		"relays", len(result.Relays))

	return result
}

// GetNIP05VerificationURL returns the .well-known URL for a nip05 identifier
func GetNIP05VerificationURL(nip05 string) string {
	parts := strings.SplitN(nip05, "@", 2)
	if len(parts) != 2 {
		return ""
	}
	name := strings.ToLower(parts[0])
	domain := strings.ToLower(parts[1])
	return fmt.Sprintf("https://%s/.well-known/nostr.json?name=%s", domain, name)
}
