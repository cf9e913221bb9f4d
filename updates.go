package main

import (
	"log/slog"
	"sync"
)

// UpdateKind labels what changed for consumers of the update stream
type UpdateKind string

const (
	UpdateFeed        UpdateKind = "feed-updated"
	UpdateNewItems    UpdateKind = "new-items-count"
	UpdateDmReceived  UpdateKind = "dm-received"
	UpdateZapSuccess  UpdateKind = "zap-success"
	UpdateWalletState UpdateKind = "wallet-state"
	UpdateError       UpdateKind = "error"
)

// Update is one read-model notification. Payload shape depends on Kind.
type Update struct {
	Kind    UpdateKind  `json:"kind"`
	Payload interface{} `json:"payload,omitempty"`
}

var (
	updatesMu sync.RWMutex
	updatesCh chan Update
)

// EnableUpdates switches on the update stream and returns the receive
// side. Call once; later calls return the same channel.
func EnableUpdates() <-chan Update {
	updatesMu.Lock()
	defer updatesMu.Unlock()
	if updatesCh == nil {
		updatesCh = make(chan Update, 64)
	}
	return updatesCh
}

// publishUpdate drops the update when nobody enabled the stream or the
// buffer is full. Producers never block on slow consumers.
func publishUpdate(kind UpdateKind, payload interface{}) {
	updatesMu.RLock()
	ch := updatesCh
	updatesMu.RUnlock()
	if ch == nil {
		return
	}
	select {
	case ch <- Update{Kind: kind, Payload: payload}:
	default:
		slog.Debug("update dropped, consumer too slow", "kind", kind)
	}
}
