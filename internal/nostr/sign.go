package nostr

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"nostr-client/internal/types"
)

// CalculateEventID returns the canonical event id:
// sha256 of [0, pubkey, created_at, kind, tags, content]
func CalculateEventID(event *types.Event) string {
	serialized := fmt.Sprintf(`[0,"%s",%d,%d,%s,"%s"]`,
		event.PubKey,
		event.CreatedAt,
		event.Kind,
		mustJSON(event.Tags),
		escapeJSON(event.Content),
	)

	hash := sha256.Sum256([]byte(serialized))
	return hex.EncodeToString(hash[:])
}

// SignEvent fills in ID and Sig on the event using the given private key.
// PubKey, CreatedAt, Kind, Tags and Content must already be set.
func SignEvent(privKeyBytes []byte, event *types.Event) error {
	if len(privKeyBytes) != 32 {
		return fmt.Errorf("invalid private key length %d", len(privKeyBytes))
	}

	privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)
	if privKey == nil {
		return fmt.Errorf("invalid private key")
	}

	event.ID = CalculateEventID(event)

	idBytes, err := hex.DecodeString(event.ID)
	if err != nil {
		return fmt.Errorf("invalid event id hex: %w", err)
	}

	sig, err := schnorr.Sign(privKey, idBytes)
	if err != nil {
		return fmt.Errorf("schnorr sign: %w", err)
	}

	event.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

func mustJSON(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func escapeJSON(s string) string {
	b, err := json.Marshal(s)
	if err != nil || len(b) < 2 {
		return s
	}
	return string(b[1 : len(b)-1])
}
