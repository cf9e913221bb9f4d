package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// rewriteTransport sends every request to the test server regardless of
// the host in the URL, so verification code can keep building real
// https URLs.
type rewriteTransport struct{ host string }

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = t.host
	return http.DefaultTransport.RoundTrip(req)
}

func nip05Server(t *testing.T, names map[string]string, relays map[string][]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/nostr.json" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"names":  names,
			"relays": relays,
		})
	}))
	t.Cleanup(srv.Close)

	old := nip05HTTPClient
	nip05HTTPClient = &http.Client{Transport: rewriteTransport{host: srv.Listener.Addr().String()}}
	t.Cleanup(func() { nip05HTTPClient = old })
	return srv
}

func TestVerifyNIP05Success(t *testing.T) {
	if err := InitCaches(); err != nil {
		t.Fatal(err)
	}
	pubkey := "4242424242424242424242424242424242424242424242424242424242424242"
	nip05Server(t,
		map[string]string{"alice": pubkey},
		map[string][]string{pubkey: {"wss://relay.example.com"}})

	result := VerifyNIP05("alice@alice-test.example", pubkey)
	if result == nil || !result.Verified {
		t.Fatalf("verification failed: %+v", result)
	}
	if result.Pubkey != pubkey {
		t.Errorf("verified pubkey = %q", result.Pubkey)
	}
	if result.Domain != "alice@alice-test.example" {
		t.Errorf("display domain = %q", result.Domain)
	}
	if len(result.Relays) != 1 || result.Relays[0] != "wss://relay.example.com" {
		t.Errorf("relay hints = %v", result.Relays)
	}

	// Second lookup comes from cache
	if cached := GetCachedNIP05("alice@alice-test.example", pubkey); cached == nil {
		t.Error("verified result should be cached")
	}
}

func TestVerifyNIP05PubkeyMismatch(t *testing.T) {
	claimed := "5353535353535353535353535353535353535353535353535353535353535353"
	actual := "6464646464646464646464646464646464646464646464646464646464646464"
	nip05Server(t, map[string]string{"bob": actual}, nil)

	result := VerifyNIP05("bob@bob-test.example", claimed)
	if result == nil || result.Verified {
		t.Errorf("mismatched pubkey should not verify: %+v", result)
	}
}

func TestVerifyNIP05RootIdentifier(t *testing.T) {
	pubkey := "7575757575757575757575757575757575757575757575757575757575757575"
	nip05Server(t, map[string]string{"_": pubkey}, nil)

	result := VerifyNIP05("_@root-test.example", pubkey)
	if result == nil || !result.Verified {
		t.Fatalf("verification failed: %+v", result)
	}
	// "_@domain" displays as just the domain
	if result.Domain != "root-test.example" {
		t.Errorf("display domain = %q", result.Domain)
	}
}

func TestVerifyNIP05BadIdentifier(t *testing.T) {
	pubkey := "8686868686868686868686868686868686868686868686868686868686868686"
	for _, nip05 := range []string{"noatsign", "user@", "user@bad/domain"} {
		result := VerifyNIP05(nip05, pubkey)
		if result != nil && result.Verified {
			t.Errorf("VerifyNIP05(%q) should not verify", nip05)
		}
	}
	if result := VerifyNIP05("", pubkey); result != nil {
		t.Error("empty identifier should return nil")
	}
}

func TestGetNIP05VerificationURL(t *testing.T) {
	got := GetNIP05VerificationURL("Alice@Example.COM")
	want := "https://example.com/.well-known/nostr.json?name=alice"
	if got != want {
		t.Errorf("url = %q, want %q", got, want)
	}
	if GetNIP05VerificationURL("noatsign") != "" {
		t.Error("invalid identifier should yield empty url")
	}
}
