package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"nostr-client/internal/nostr"
)

// ZapStage names the saga step where a zap failed
type ZapStage string

const (
	ZapStageResolve ZapStage = "resolve"
	ZapStageBounds  ZapStage = "bounds"
	ZapStageInvoice ZapStage = "invoice"
	ZapStagePayment ZapStage = "payment"
)

// ZapResult reports the outcome of one zap attempt. Stage is set only
// on failure and names the step that failed; there is no retry or
// rollback, a failed zap is simply reported.
type ZapResult struct {
	Success    bool     `json:"success"`
	Preimage   string   `json:"preimage,omitempty"`
	AmountSats int64    `json:"amount_sats"`
	Stage      ZapStage `json:"stage,omitempty"`
	Err        string   `json:"error,omitempty"`
}

func zapFailure(stage ZapStage, amountSats int64, err error) ZapResult {
	return ZapResult{AmountSats: amountSats, Stage: stage, Err: err.Error()}
}

// Zap sends amountSats to the recipient, optionally attached to a note.
// Stages: resolve the recipient's Lightning endpoint, build and sign a
// zap request when the endpoint supports NIP-57, request an invoice,
// pay it through the connected wallet.
func Zap(ctx context.Context, pool *RelayPool, wallet *WalletClient, recipientPubkey, noteID string, amountSats int64, comment string) ZapResult {
	zapAttemptsTotal.Add(1)
	amountMsats := SatsToMsats(amountSats)

	// Stage 1: resolve the recipient's payment endpoint
	profiles, err := pool.Profiles(ctx, []string{recipientPubkey})
	if err != nil {
		return zapFailure(ZapStageResolve, amountSats, err)
	}
	info, err := ResolveLNURLForPubkey(recipientPubkey, profiles[recipientPubkey])
	if err != nil {
		return zapFailure(ZapStageResolve, amountSats, err)
	}

	// Stage 2: signed zap request, when the endpoint understands NIP-57
	var zapRequestJSON string
	if info.AllowsNostr {
		zapRequestJSON, err = buildZapRequest(ctx, pool.Relays(), recipientPubkey, noteID, amountMsats, comment)
		if err != nil {
			// A receipt-less zap still pays; keep going without the request
			slog.Debug("zap request signing failed, sending plain payment", "error", err)
			zapRequestJSON = ""
		}
	}

	// Stage 3: bounds check strictly before the callback request
	if amountMsats < info.MinSendable || amountMsats > info.MaxSendable {
		return zapFailure(ZapStageBounds, amountSats,
			fmt.Errorf("amount %d msats outside sendable range [%d, %d]",
				amountMsats, info.MinSendable, info.MaxSendable))
	}
	invoice, err := RequestInvoice(info, amountMsats, zapRequestJSON, "")
	if err != nil {
		return zapFailure(ZapStageInvoice, amountSats, err)
	}

	// Stage 4: pay through the wallet
	if wallet == nil || !wallet.Connected() {
		return zapFailure(ZapStagePayment, amountSats, ErrWalletNotConnected)
	}
	preimage, err := wallet.PayInvoice(ctx, invoice)
	if err != nil {
		return zapFailure(ZapStagePayment, amountSats, err)
	}

	slog.Info("zap sent", "recipient", nostr.ShortID(recipientPubkey), "sats", amountSats)
	publishUpdate(UpdateZapSuccess, map[string]interface{}{
		"note_id":     noteID,
		"amount_sats": amountSats,
	})
	return ZapResult{Success: true, Preimage: preimage, AmountSats: amountSats}
}

// buildZapRequest creates and signs a kind 9734 event and returns its
// JSON encoding for the LNURL callback.
func buildZapRequest(ctx context.Context, relays []string, recipientPubkey, noteID string, amountMsats int64, comment string) (string, error) {
	signer, err := ActiveSigner(ctx)
	if err != nil {
		return "", err
	}

	tags := [][]string{
		{"p", recipientPubkey},
		append([]string{"relays"}, relays...),
		{"amount", fmt.Sprintf("%d", amountMsats)},
	}
	if noteID != "" {
		tags = append(tags, []string{"e", noteID})
	}

	ev := &Event{
		Kind:      KindZapRequest,
		CreatedAt: time.Now().Unix(),
		Tags:      tags,
		Content:   comment,
	}
	if err := signer.SignEvent(ctx, ev); err != nil {
		return "", fmt.Errorf("sign zap request: %w", err)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
