package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"
)

func TestNip44RoundTrip(t *testing.T) {
	alicePriv, err := GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	bobPriv, err := GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	alicePub, err := GetPublicKey(alicePriv)
	if err != nil {
		t.Fatal(err)
	}
	bobPub, err := GetPublicKey(bobPriv)
	if err != nil {
		t.Fatal(err)
	}

	// Conversation keys are symmetric between the two parties
	aliceKey, err := GetConversationKey(alicePriv, bobPub)
	if err != nil {
		t.Fatal(err)
	}
	bobKey, err := GetConversationKey(bobPriv, alicePub)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(aliceKey, bobKey) {
		t.Fatal("conversation keys must match in both directions")
	}

	plaintext := "hello from alice 🤙"
	ciphertext, err := Nip44Encrypt(plaintext, aliceKey)
	if err != nil {
		t.Fatal(err)
	}
	if ciphertext == plaintext {
		t.Fatal("ciphertext should not equal plaintext")
	}

	decrypted, err := Nip44Decrypt(ciphertext, bobKey)
	if err != nil {
		t.Fatalf("Nip44Decrypt: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("decrypted = %q, want %q", decrypted, plaintext)
	}
}

func TestNip44DecryptWrongKey(t *testing.T) {
	alicePriv, _ := GeneratePrivateKey()
	bobPriv, _ := GeneratePrivateKey()
	mallory, _ := GeneratePrivateKey()
	bobPub, _ := GetPublicKey(bobPriv)
	malloryPub, _ := GetPublicKey(mallory)

	key, err := GetConversationKey(alicePriv, bobPub)
	if err != nil {
		t.Fatal(err)
	}
	wrongKey, err := GetConversationKey(alicePriv, malloryPub)
	if err != nil {
		t.Fatal(err)
	}

	ciphertext, err := Nip44Encrypt("secret", key)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Nip44Decrypt(ciphertext, wrongKey); err == nil {
		t.Error("decrypting with the wrong conversation key should fail")
	}
}

func TestNip04RoundTripViaSigner(t *testing.T) {
	alicePriv, _ := GeneratePrivateKey()
	bobPriv, _ := GeneratePrivateKey()
	alicePub, _ := GetPublicKey(alicePriv)
	bobPub, _ := GetPublicKey(bobPriv)

	alice, err := NewLocalSigner(hex.EncodeToString(alicePriv))
	if err != nil {
		t.Fatal(err)
	}
	bob, err := NewLocalSigner(hex.EncodeToString(bobPriv))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	ciphertext, err := alice.Nip04Encrypt(ctx, hex.EncodeToString(bobPub), "legacy dm")
	if err != nil {
		t.Fatal(err)
	}
	plaintext, err := bob.Nip04Decrypt(ctx, hex.EncodeToString(alicePub), ciphertext)
	if err != nil {
		t.Fatalf("Nip04Decrypt: %v", err)
	}
	if plaintext != "legacy dm" {
		t.Errorf("decrypted = %q", plaintext)
	}
}

func TestLocalSignerSignsEvents(t *testing.T) {
	priv, _ := GeneratePrivateKey()
	signer, err := NewLocalSigner(hex.EncodeToString(priv))
	if err != nil {
		t.Fatal(err)
	}

	ev := &Event{
		Kind:      KindTextNote,
		CreatedAt: 1700000000,
		Tags:      [][]string{},
		Content:   "signed note",
	}
	if err := signer.SignEvent(context.Background(), ev); err != nil {
		t.Fatalf("SignEvent: %v", err)
	}
	if ev.ID == "" || ev.Sig == "" {
		t.Error("signing should fill in id and sig")
	}
	if ev.PubKey != signer.PubKeyHex() {
		t.Errorf("event pubkey = %q, want the signer's", ev.PubKey)
	}
}

func TestNewLocalSignerRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "abcd", "zz" + testWalletSecret[2:]} {
		if _, err := NewLocalSigner(key); err == nil {
			t.Errorf("NewLocalSigner(%q) should fail", key)
		}
	}
}
