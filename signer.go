package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"nostr-client/internal/nips"
	"nostr-client/internal/nostr"
)

// Signer abstracts event signing and DM encryption so keys can live
// outside the process. Implementations must be safe for concurrent use.
type Signer interface {
	// Ready reports whether the signer can serve requests right now
	Ready(ctx context.Context) bool

	// PublicKey returns the hex public key of the active identity
	PublicKey(ctx context.Context) (string, error)

	// SignEvent fills in ID and Sig on the event
	SignEvent(ctx context.Context, ev *Event) error

	Nip04Encrypt(ctx context.Context, peerPubkey, plaintext string) (string, error)
	Nip04Decrypt(ctx context.Context, peerPubkey, ciphertext string) (string, error)
	Nip44Encrypt(ctx context.Context, peerPubkey, plaintext string) (string, error)
	Nip44Decrypt(ctx context.Context, peerPubkey, ciphertext string) (string, error)
}

// ErrNoSigner is returned when neither an external signer nor a local
// key is available
var ErrNoSigner = errors.New("no signer available")

var (
	signerMu       sync.RWMutex
	externalSigner Signer
	localSigner    *LocalSigner
)

// SetExternalSigner registers an out-of-process signer. Pass nil to clear.
func SetExternalSigner(s Signer) {
	signerMu.Lock()
	externalSigner = s
	signerMu.Unlock()
}

// SetLocalKey installs a local hex private key as the fallback signer
func SetLocalKey(privKeyHex string) error {
	s, err := NewLocalSigner(privKeyHex)
	if err != nil {
		return err
	}
	signerMu.Lock()
	localSigner = s
	signerMu.Unlock()
	return nil
}

// ActiveSigner resolves the signer preference order: the external signer
// when configured and ready, else the local key, else an error.
func ActiveSigner(ctx context.Context) (Signer, error) {
	signerMu.RLock()
	ext := externalSigner
	local := localSigner
	signerMu.RUnlock()

	if ext != nil && ext.Ready(ctx) {
		return ext, nil
	}
	if local != nil {
		return local, nil
	}
	return nil, ErrNoSigner
}

func localSignerOrNil() *LocalSigner {
	signerMu.RLock()
	defer signerMu.RUnlock()
	return localSigner
}

// LocalSigner signs with an in-process secp256k1 key
type LocalSigner struct {
	privKey []byte
	pubKey  string
}

// NewLocalSigner builds a signer from a 64-char hex private key
func NewLocalSigner(privKeyHex string) (*LocalSigner, error) {
	privKey, err := hex.DecodeString(privKeyHex)
	if err != nil || len(privKey) != 32 {
		return nil, errors.New("private key must be 64 hex chars")
	}
	pubKey, err := GetPublicKey(privKey)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	return &LocalSigner{privKey: privKey, pubKey: hex.EncodeToString(pubKey)}, nil
}

// PubKeyHex returns the hex public key without a context
func (s *LocalSigner) PubKeyHex() string {
	return s.pubKey
}

// Npub returns the bech32 npub encoding of the public key
func (s *LocalSigner) Npub() (string, error) {
	return nips.EncodePubkey(s.pubKey)
}

func (s *LocalSigner) Ready(ctx context.Context) bool {
	return true
}

func (s *LocalSigner) PublicKey(ctx context.Context) (string, error) {
	return s.pubKey, nil
}

func (s *LocalSigner) SignEvent(ctx context.Context, ev *Event) error {
	if ev.PubKey == "" {
		ev.PubKey = s.pubKey
	}
	return nostr.SignEvent(s.privKey, ev)
}

func (s *LocalSigner) Nip04Encrypt(ctx context.Context, peerPubkey, plaintext string) (string, error) {
	peer, err := hex.DecodeString(peerPubkey)
	if err != nil {
		return "", fmt.Errorf("invalid peer pubkey: %w", err)
	}
	shared, err := GetNip04SharedSecret(s.privKey, peer)
	if err != nil {
		return "", err
	}
	return Nip04Encrypt(plaintext, shared)
}

func (s *LocalSigner) Nip04Decrypt(ctx context.Context, peerPubkey, ciphertext string) (string, error) {
	peer, err := hex.DecodeString(peerPubkey)
	if err != nil {
		return "", fmt.Errorf("invalid peer pubkey: %w", err)
	}
	shared, err := GetNip04SharedSecret(s.privKey, peer)
	if err != nil {
		return "", err
	}
	return Nip04Decrypt(ciphertext, shared)
}

func (s *LocalSigner) Nip44Encrypt(ctx context.Context, peerPubkey, plaintext string) (string, error) {
	peer, err := hex.DecodeString(peerPubkey)
	if err != nil {
		return "", fmt.Errorf("invalid peer pubkey: %w", err)
	}
	convKey, err := GetConversationKey(s.privKey, peer)
	if err != nil {
		return "", err
	}
	return Nip44Encrypt(plaintext, convKey)
}

func (s *LocalSigner) Nip44Decrypt(ctx context.Context, peerPubkey, ciphertext string) (string, error) {
	peer, err := hex.DecodeString(peerPubkey)
	if err != nil {
		return "", fmt.Errorf("invalid peer pubkey: %w", err)
	}
	convKey, err := GetConversationKey(s.privKey, peer)
	if err != nil {
		return "", err
	}
	return Nip44Decrypt(ciphertext, convKey)
}
