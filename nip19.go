package main

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"

	"nostr-client/internal/nips"
)

// NIP-19 TLV identifiers: nevent, naddr, nprofile. Bare npub/note
// strings are handled by the bech32 helpers directly.

// NEvent is a decoded nevent1... identifier.
type NEvent struct {
	EventID    string
	Author     string // optional
	RelayHints []string
}

// NAddr is a decoded naddr1... identifier for addressable events.
type NAddr struct {
	Kind       uint32
	Author     string
	DTag       string
	RelayHints []string
}

// NProfile is a decoded nprofile1... identifier.
type NProfile struct {
	Pubkey     string
	RelayHints []string
}

const (
	tlvTypeSpecial = 0 // event id for nevent, pubkey for nprofile, d-tag for naddr
	tlvTypeRelay   = 1
	tlvTypeAuthor  = 2
	tlvTypeKind    = 3
	tlvTypeDTag    = 4
)

// decodeBech32Payload checks the prefix, decodes the bech32 string, and
// regroups the payload back into bytes.
func decodeBech32Payload(s, hrp string) ([]byte, error) {
	if !strings.HasPrefix(s, hrp+"1") {
		return nil, errors.New("not a " + hrp)
	}

	gotHrp, data, err := nips.Bech32Decode(s)
	if err != nil {
		return nil, err
	}
	if gotHrp != hrp {
		return nil, errors.New("invalid hrp for " + hrp)
	}

	return nips.Bech32ConvertBits(data, 5, 8, false)
}

// eachTLV walks type-length-value records, stopping at the first
// truncated one.
func eachTLV(data []byte, fn func(tlvType byte, value []byte)) {
	for i := 0; i < len(data); {
		if i+2 > len(data) {
			return
		}
		tlvType := data[i]
		tlvLen := int(data[i+1])
		i += 2
		if i+tlvLen > len(data) {
			return
		}
		fn(tlvType, data[i:i+tlvLen])
		i += tlvLen
	}
}

// DecodeNEvent decodes a nevent1... string.
func DecodeNEvent(nevent string) (*NEvent, error) {
	payload, err := decodeBech32Payload(nevent, "nevent")
	if err != nil {
		return nil, err
	}

	n := &NEvent{RelayHints: []string{}}
	eachTLV(payload, func(tlvType byte, value []byte) {
		switch tlvType {
		case tlvTypeSpecial:
			if len(value) == 32 {
				n.EventID = hex.EncodeToString(value)
			}
		case tlvTypeRelay:
			n.RelayHints = append(n.RelayHints, string(value))
		case tlvTypeAuthor:
			if len(value) == 32 {
				n.Author = hex.EncodeToString(value)
			}
		}
	})

	if n.EventID == "" {
		return nil, errors.New("nevent missing event ID")
	}
	return n, nil
}

// DecodeNAddr decodes a naddr1... string.
func DecodeNAddr(naddr string) (*NAddr, error) {
	payload, err := decodeBech32Payload(naddr, "naddr")
	if err != nil {
		return nil, err
	}

	n := &NAddr{RelayHints: []string{}}
	hasKind := false
	hasAuthor := false
	eachTLV(payload, func(tlvType byte, value []byte) {
		switch tlvType {
		case tlvTypeAuthor:
			if len(value) == 32 {
				n.Author = hex.EncodeToString(value)
				hasAuthor = true
			}
		case tlvTypeKind:
			if len(value) == 4 {
				n.Kind = binary.BigEndian.Uint32(value)
				hasKind = true
			}
		case tlvTypeDTag:
			n.DTag = string(value)
		case tlvTypeRelay:
			n.RelayHints = append(n.RelayHints, string(value))
		}
	})

	if !hasKind || !hasAuthor {
		return nil, errors.New("naddr missing required fields")
	}
	return n, nil
}

// DecodeNProfile decodes a nprofile1... string.
func DecodeNProfile(nprofile string) (*NProfile, error) {
	payload, err := decodeBech32Payload(nprofile, "nprofile")
	if err != nil {
		return nil, err
	}

	n := &NProfile{RelayHints: []string{}}
	eachTLV(payload, func(tlvType byte, value []byte) {
		switch tlvType {
		case tlvTypeSpecial:
			if len(value) == 32 {
				n.Pubkey = hex.EncodeToString(value)
			}
		case tlvTypeRelay:
			n.RelayHints = append(n.RelayHints, string(value))
		}
	})

	if n.Pubkey == "" {
		return nil, errors.New("nprofile missing pubkey")
	}
	return n, nil
}

// DecodeNote decodes a note1... string to a hex event ID.
func DecodeNote(note string) (string, error) {
	payload, err := decodeBech32Payload(note, "note")
	if err != nil {
		return "", err
	}
	if len(payload) != 32 {
		return "", errors.New("invalid note length")
	}
	return hex.EncodeToString(payload), nil
}

// EncodeNAddr builds a naddr from kind, author pubkey, and d-tag.
// For naddr the special record carries the d-tag and must come first.
func EncodeNAddr(kind uint32, pubkeyHex string, dTag string) (string, error) {
	pubkeyBytes, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return "", err
	}
	if len(pubkeyBytes) != 32 {
		return "", errors.New("invalid pubkey length")
	}

	var tlvData []byte

	dTagBytes := []byte(dTag)
	tlvData = append(tlvData, tlvTypeSpecial, byte(len(dTagBytes)))
	tlvData = append(tlvData, dTagBytes...)

	tlvData = append(tlvData, tlvTypeAuthor, 32)
	tlvData = append(tlvData, pubkeyBytes...)

	kindBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(kindBytes, kind)
	tlvData = append(tlvData, tlvTypeKind, 4)
	tlvData = append(tlvData, kindBytes...)

	data5bit, err := nips.Bech32ConvertBits(tlvData, 8, 5, true)
	if err != nil {
		return "", err
	}

	return nips.Bech32Encode("naddr", data5bit)
}
