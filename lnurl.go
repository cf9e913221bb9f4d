package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nostr-client/internal/nips"
	"nostr-client/internal/util"
)

// LNURL-pay resolution for Lightning addresses and NIP-57 zap invoices.

const (
	lnurlHTTPTimeout = 10 * time.Second
)

// lnurlCache is set by InitCaches when Redis is available. All lookups
// degrade to direct fetches when it stays nil.
var lnurlCache *RedisLNURLCache

// validateExternalURL rejects URLs this client should never fetch:
// non-HTTP schemes, loopback, and private address ranges.
func validateExternalURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}

	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("invalid scheme: %s (expected https)", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "0.0.0.0" || util.IsPrivateHost(host) {
		return errors.New("internal hosts not allowed")
	}

	if strings.HasPrefix(host, "10.") ||
		strings.HasPrefix(host, "192.168.") ||
		strings.HasPrefix(host, "172.16.") ||
		strings.HasPrefix(host, "172.17.") ||
		strings.HasPrefix(host, "172.18.") ||
		strings.HasPrefix(host, "172.19.") ||
		strings.HasPrefix(host, "172.2") ||
		strings.HasPrefix(host, "172.30.") ||
		strings.HasPrefix(host, "172.31.") ||
		strings.HasPrefix(host, "169.254.") {
		return errors.New("private IP ranges not allowed")
	}

	return nil
}

// LNURLPayInfo is the payment endpoint descriptor from the initial
// .well-known/lnurlp fetch. Amounts are millisats.
type LNURLPayInfo struct {
	Callback       string `json:"callback"`
	MinSendable    int64  `json:"minSendable"`
	MaxSendable    int64  `json:"maxSendable"`
	Metadata       string `json:"metadata"`
	Tag            string `json:"tag"` // must be "payRequest"
	AllowsNostr    bool   `json:"allowsNostr"`
	NostrPubkey    string `json:"nostrPubkey"`
	CommentAllowed int    `json:"commentAllowed"`
}

// LNURLPayResponse carries the BOLT11 invoice back from the callback.
type LNURLPayResponse struct {
	PR     string `json:"pr"`
	Routes []any  `json:"routes"` // ignored
}

// LNURLError is the error shape LNURL endpoints return in-band.
type LNURLError struct {
	Status string `json:"status"` // "ERROR"
	Reason string `json:"reason"`
}

// ResolveLNURLFromProfile resolves a profile's lud16 or lud06 to pay
// info, preferring lud16.
func ResolveLNURLFromProfile(profile *ProfileInfo) (*LNURLPayInfo, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	if profile.Lud16 != "" {
		return ResolveLud16(profile.Lud16)
	}
	if profile.Lud06 != "" {
		return ResolveLud06(profile.Lud06)
	}

	return nil, errors.New("no Lightning address configured")
}

// ResolveLNURLForPubkey resolves a profile's payment endpoint with the
// Redis-backed cache in front. Resolution failures are cached too so
// repeated zap attempts don't hammer dead endpoints.
func ResolveLNURLForPubkey(pubkey string, profile *ProfileInfo) (*LNURLPayInfo, error) {
	if lnurlCache != nil {
		if info, cached := lnurlCache.Get(pubkey); cached {
			if info == nil {
				return nil, errors.New("no Lightning address configured")
			}
			return info, nil
		}
	}

	info, err := ResolveLNURLFromProfile(profile)
	if lnurlCache != nil {
		if err != nil {
			lnurlCache.SetNotFound(pubkey)
		} else {
			lnurlCache.Set(pubkey, info)
		}
	}
	return info, err
}

// ResolveLud16 maps a Lightning address (user@domain) to its
// .well-known/lnurlp endpoint and fetches the pay info.
func ResolveLud16(lud16 string) (*LNURLPayInfo, error) {
	parts := strings.SplitN(lud16, "@", 2)
	if len(parts) != 2 {
		return nil, errors.New("invalid lud16 format: expected user@domain")
	}
	username := parts[0]
	domain := parts[1]

	if username == "" || domain == "" {
		return nil, errors.New("invalid lud16: empty username or domain")
	}

	lnurlURL := fmt.Sprintf("https://%s/.well-known/lnurlp/%s", domain, strings.ToLower(username))

	return fetchLNURLPayInfo(lnurlURL)
}

// ResolveLud06 decodes a bech32 lnurl1... string and fetches the pay
// info from the URL inside.
func ResolveLud06(lud06 string) (*LNURLPayInfo, error) {
	if !strings.HasPrefix(strings.ToLower(lud06), "lnurl1") {
		return nil, errors.New("invalid lud06: must start with lnurl1")
	}

	hrp, data, err := nips.Bech32Decode(strings.ToLower(lud06))
	if err != nil {
		return nil, fmt.Errorf("failed to decode lnurl: %v", err)
	}
	if hrp != "lnurl" {
		return nil, errors.New("invalid lnurl hrp")
	}

	urlBytes, err := nips.Bech32ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("failed to convert lnurl bits: %v", err)
	}

	return fetchLNURLPayInfo(string(urlBytes))
}

func fetchLNURLPayInfo(lnurlURL string) (*LNURLPayInfo, error) {
	if err := validateExternalURL(lnurlURL); err != nil {
		return nil, fmt.Errorf("invalid lnurl: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lnurlHTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", lnurlURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lnurl: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lnurl returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}

	// Endpoints signal errors with 200 + {"status":"ERROR"}.
	var lnurlErr LNURLError
	if err := json.Unmarshal(body, &lnurlErr); err == nil && lnurlErr.Status == "ERROR" {
		return nil, fmt.Errorf("lnurl error: %s", lnurlErr.Reason)
	}

	var info LNURLPayInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse lnurl response: %v", err)
	}

	if info.Tag != "payRequest" {
		return nil, fmt.Errorf("unexpected lnurl tag: %s (expected payRequest)", info.Tag)
	}
	if info.Callback == "" {
		return nil, errors.New("lnurl missing callback")
	}
	if info.MinSendable <= 0 || info.MaxSendable <= 0 {
		return nil, errors.New("lnurl missing amount limits")
	}

	return &info, nil
}

// RequestInvoice asks the LNURL callback for a BOLT11 invoice.
// zapRequestJSON, when non-empty, is a signed kind 9734 event that
// turns the payment into a zap; callers should check AllowsNostr
// first. lnurl rides along for receipt verification.
func RequestInvoice(info *LNURLPayInfo, amountMsats int64, zapRequestJSON string, lnurl string) (string, error) {
	if err := validateExternalURL(info.Callback); err != nil {
		return "", fmt.Errorf("invalid callback URL: %v", err)
	}

	if amountMsats < info.MinSendable {
		return "", fmt.Errorf("amount %d msats below minimum %d", amountMsats, info.MinSendable)
	}
	if amountMsats > info.MaxSendable {
		return "", fmt.Errorf("amount %d msats above maximum %d", amountMsats, info.MaxSendable)
	}

	callbackURL, err := url.Parse(info.Callback)
	if err != nil {
		return "", fmt.Errorf("invalid callback URL: %v", err)
	}

	query := callbackURL.Query()
	query.Set("amount", fmt.Sprintf("%d", amountMsats))
	if zapRequestJSON != "" {
		query.Set("nostr", zapRequestJSON)
		if lnurl != "" {
			query.Set("lnurl", lnurl)
		}
	}
	callbackURL.RawQuery = query.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), lnurlHTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", callbackURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create callback request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch invoice: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("callback returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read callback response: %v", err)
	}

	var lnurlErr LNURLError
	if err := json.Unmarshal(body, &lnurlErr); err == nil && lnurlErr.Status == "ERROR" {
		return "", fmt.Errorf("callback error: %s", lnurlErr.Reason)
	}

	var payResp LNURLPayResponse
	if err := json.Unmarshal(body, &payResp); err != nil {
		return "", fmt.Errorf("failed to parse callback response: %v", err)
	}
	if payResp.PR == "" {
		return "", errors.New("callback returned empty invoice")
	}

	return payResp.PR, nil
}

// CanReceiveZaps reports whether the profile has any Lightning address.
func CanReceiveZaps(profile *ProfileInfo) bool {
	if profile == nil {
		return false
	}
	return profile.Lud16 != "" || profile.Lud06 != ""
}

// SatsToMsats converts satoshis to millisatoshis.
func SatsToMsats(sats int64) int64 {
	return sats * 1000
}

// MsatsToSats converts millisatoshis to satoshis, rounding down.
func MsatsToSats(msats int64) int64 {
	return msats / 1000
}
