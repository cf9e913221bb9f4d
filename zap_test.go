package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"
)

func TestZapFailureCarriesStage(t *testing.T) {
	result := zapFailure(ZapStageBounds, 21, ErrWalletNotConnected)
	if result.Success {
		t.Error("failure result should not be successful")
	}
	if result.Stage != ZapStageBounds {
		t.Errorf("stage = %q, want bounds", result.Stage)
	}
	if result.AmountSats != 21 || result.Err == "" {
		t.Errorf("failure should keep amount and error: %+v", result)
	}
}

func TestZapUnconnectedPoolFailsAtResolve(t *testing.T) {
	pool := NewRelayPool()
	result := Zap(context.Background(), pool, nil, testHexPubkey, "", 21, "")
	if result.Success {
		t.Fatal("zap through an unconnected pool should fail")
	}
	if result.Stage != ZapStageResolve {
		t.Errorf("stage = %q, want resolve", result.Stage)
	}
}

func TestZapNoLightningAddressFailsAtResolve(t *testing.T) {
	recipient := "9a9a9a9a9a9a9a9a9a9a9a9a9a9a9a9a9a9a9a9a9a9a9a9a9a9a9a9a9a9a9a9a"
	meta, _ := json.Marshal(map[string]string{"name": "no-wallet-user"})
	profile := Event{
		ID:        "profile-no-ln",
		PubKey:    recipient,
		CreatedAt: 1000,
		Kind:      KindMetadata,
		Content:   string(meta),
	}
	fr, url := newFakeRelay(t, []Event{profile})
	pool := newTestPool(t, fr, url)

	result := Zap(context.Background(), pool, nil, recipient, "", 21, "")
	if result.Success {
		t.Fatal("zap without a lightning address should fail")
	}
	if result.Stage != ZapStageResolve {
		t.Errorf("stage = %q, want resolve", result.Stage)
	}
}

func TestBuildZapRequest(t *testing.T) {
	priv, _ := GeneratePrivateKey()
	if err := SetLocalKey(hex.EncodeToString(priv)); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		signerMu.Lock()
		localSigner = nil
		signerMu.Unlock()
	})

	relays := []string{"wss://relay.example.com"}
	recipient := testHexPubkey
	noteID := "b9fead6eef87d8400cbc1a5621600b360438affb9760a6a043cc0bddea21dab6"

	raw, err := buildZapRequest(context.Background(), relays, recipient, noteID, 21_000, "great post")
	if err != nil {
		t.Fatalf("buildZapRequest: %v", err)
	}

	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("zap request is not valid event JSON: %v", err)
	}
	if ev.Kind != KindZapRequest {
		t.Errorf("kind = %d, want %d", ev.Kind, KindZapRequest)
	}
	if ev.ID == "" || ev.Sig == "" {
		t.Error("zap request must be signed")
	}
	if ev.Content != "great post" {
		t.Errorf("comment = %q", ev.Content)
	}

	var gotP, gotE, gotAmount string
	for _, tag := range ev.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "p":
			gotP = tag[1]
		case "e":
			gotE = tag[1]
		case "amount":
			gotAmount = tag[1]
		}
	}
	if gotP != recipient {
		t.Errorf("p tag = %q", gotP)
	}
	if gotE != noteID {
		t.Errorf("e tag = %q", gotE)
	}
	if gotAmount != "21000" {
		t.Errorf("amount tag = %q, want msats", gotAmount)
	}
}
