package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"

	"nostr-client/internal/nostr"
)

// NWC (Nostr Wallet Connect) client implementation - NIP-47

const (
	nwcBalanceTimeout = 30 * time.Second
	nwcPayTimeout     = 60 * time.Second // payments can take a while to route
	nwcInvoiceTimeout = 30 * time.Second
	nwcListTimeout    = 30 * time.Second
	nwcPollInterval   = 1 * time.Second
)

// ErrWalletNotConnected is returned for wallet operations before a
// successful Connect
var ErrWalletNotConnected = errors.New("wallet not connected")

// WalletState tracks the connection lifecycle
type WalletState int

const (
	WalletDisconnected WalletState = iota
	WalletConnecting
	WalletConnected
	WalletError
)

func (s WalletState) String() string {
	switch s {
	case WalletDisconnected:
		return "disconnected"
	case WalletConnecting:
		return "connecting"
	case WalletConnected:
		return "connected"
	case WalletError:
		return "error"
	}
	return "unknown"
}

// WalletStatus is a readable snapshot of the client state
type WalletStatus struct {
	State        WalletState
	Err          string // set when State is WalletError
	BalanceMsats int64
}

// NWCConfig holds wallet connection parameters extracted from the URI
type NWCConfig struct {
	URI             string // original pairing URI, kept for QR display
	WalletPubKey    []byte // wallet's public key (32 bytes)
	Relay           string // relay URL for communication
	Secret          []byte // secret key for signing requests (32 bytes)
	ClientPubKey    []byte // derived public key from secret
	ConversationKey []byte // pre-computed conversation key (NIP-44)
	Nip04SharedKey  []byte // pre-computed shared secret (NIP-04)
	Lud16           string // optional lightning address from the URI
}

// WalletPubKeyHex returns the wallet pubkey as hex
func (c *NWCConfig) WalletPubKeyHex() string {
	return hex.EncodeToString(c.WalletPubKey)
}

// ClientPubKeyHex returns the derived client pubkey as hex
func (c *NWCConfig) ClientPubKeyHex() string {
	return hex.EncodeToString(c.ClientPubKey)
}

// NWCRequest is a JSON-RPC request to the wallet
type NWCRequest struct {
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// NWCResponse is a JSON-RPC response from the wallet
type NWCResponse struct {
	ResultType string          `json:"result_type"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *NWCError       `json:"error,omitempty"`
}

// NWCError represents an error from the wallet
type NWCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NWCTransaction represents a single transaction from list_transactions
type NWCTransaction struct {
	Type            string `json:"type"` // "incoming" or "outgoing"
	Invoice         string `json:"invoice,omitempty"`
	Description     string `json:"description,omitempty"`
	DescriptionHash string `json:"description_hash,omitempty"`
	Preimage        string `json:"preimage,omitempty"`
	PaymentHash     string `json:"payment_hash,omitempty"`
	Amount          int64  `json:"amount"` // millisatoshis
	FeesPaid        int64  `json:"fees_paid,omitempty"`
	CreatedAt       int64  `json:"created_at"`
	SettledAt       int64  `json:"settled_at,omitempty"`
}

// ParseWalletURI parses a nostr+walletconnect:// (or nostr://) pairing
// URI into an NWCConfig.
// Format: nostr+walletconnect://<wallet-pubkey>?relay=<wss://...>&secret=<hex>[&lud16=<addr>]
func ParseWalletURI(walletURI string) (*NWCConfig, error) {
	walletURI = strings.TrimSpace(walletURI)

	var rest string
	switch {
	case strings.HasPrefix(walletURI, "nostr+walletconnect://"):
		rest = strings.TrimPrefix(walletURI, "nostr+walletconnect://")
	case strings.HasPrefix(walletURI, "nostr://"):
		rest = strings.TrimPrefix(walletURI, "nostr://")
	default:
		return nil, errors.New("invalid wallet URI: must start with nostr+walletconnect://")
	}

	// Re-scheme so url.Parse accepts it
	u, err := url.Parse("https://" + rest)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet URI: %v", err)
	}

	walletPubKeyHex := u.Host
	if walletPubKeyHex == "" {
		walletPubKeyHex = strings.Trim(u.Path, "/")
	}
	if len(walletPubKeyHex) != 64 {
		return nil, errors.New("invalid wallet pubkey: must be 64 hex characters")
	}
	walletPubKey, err := hex.DecodeString(walletPubKeyHex)
	if err != nil {
		return nil, errors.New("invalid wallet pubkey: not valid hex")
	}

	relay := u.Query().Get("relay")
	if relay == "" {
		return nil, errors.New("wallet URI must include relay parameter")
	}
	if !strings.HasPrefix(relay, "wss://") && !strings.HasPrefix(relay, "ws://") {
		return nil, errors.New("invalid relay URL: must start with wss:// or ws://")
	}

	secretHex := u.Query().Get("secret")
	if secretHex == "" {
		return nil, errors.New("wallet URI must include secret parameter")
	}
	if len(secretHex) != 64 {
		return nil, errors.New("invalid secret: must be 64 hex characters")
	}
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, errors.New("invalid secret: not valid hex")
	}

	clientPubKey, err := GetPublicKey(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %v", err)
	}

	conversationKey, err := GetConversationKey(secret, walletPubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to compute conversation key: %v", err)
	}

	// NIP-04 shared secret - most deployed wallets still speak NIP-04
	nip04SharedKey, err := GetNip04SharedSecret(secret, walletPubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to compute NIP-04 shared key: %v", err)
	}

	return &NWCConfig{
		URI:             walletURI,
		WalletPubKey:    walletPubKey,
		Relay:           relay,
		Secret:          secret,
		ClientPubKey:    clientPubKey,
		ConversationKey: conversationKey,
		Nip04SharedKey:  nip04SharedKey,
		Lud16:           u.Query().Get("lud16"),
	}, nil
}

// WalletClient talks NIP-47 to one wallet service. Requests are
// stateless: each RPC publishes a kind 23194 event and polls the wallet
// relay for the matching kind 23195 response, so no subscription state
// survives between calls.
type WalletClient struct {
	config *NWCConfig

	mu           sync.Mutex
	state        WalletState
	stateErr     string
	balanceMsats int64
}

// NewWalletClient creates a client in the Disconnected state
func NewWalletClient(config *NWCConfig) *WalletClient {
	return &WalletClient{config: config, state: WalletDisconnected}
}

// State returns a snapshot of the connection state and last known balance.
func (c *WalletClient) State() WalletStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return WalletStatus{State: c.state, Err: c.stateErr, BalanceMsats: c.balanceMsats}
}

func (c *WalletClient) setState(s WalletState, errMsg string) {
	c.mu.Lock()
	c.state = s
	c.stateErr = errMsg
	c.mu.Unlock()
}

// Connect verifies the wallet relay is reachable and fetches the
// initial balance. A failed balance fetch is logged but doesn't fail
// the connection; a failed dial does.
func (c *WalletClient) Connect(ctx context.Context) error {
	c.setState(WalletConnecting, "")

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.config.Relay, nil)
	if err != nil {
		msg := fmt.Sprintf("dial %s: %v", c.config.Relay, err)
		c.setState(WalletError, msg)
		return errors.New(msg)
	}
	conn.Close()

	c.setState(WalletConnected, "")
	slog.Info("wallet connected", "relay", c.config.Relay)

	if _, err := c.GetBalance(ctx); err != nil {
		slog.Warn("initial balance fetch failed", "error", err)
	}
	return nil
}

// Disconnect drops back to the Disconnected state.
func (c *WalletClient) Disconnect() {
	c.mu.Lock()
	c.state = WalletDisconnected
	c.stateErr = ""
	c.balanceMsats = 0
	c.mu.Unlock()
}

// Connected reports whether the client reached the Connected state.
func (c *WalletClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == WalletConnected
}

// GetBalance asks the wallet for its balance and returns sats. The raw
// msats value is kept in the status snapshot.
func (c *WalletClient) GetBalance(ctx context.Context) (int64, error) {
	resp, err := c.rpc(ctx, "get_balance", nil, nwcBalanceTimeout)
	if err != nil {
		return 0, err
	}
	var result struct {
		Balance int64 `json:"balance"` // msats
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return 0, fmt.Errorf("parse balance result: %w", err)
	}
	c.mu.Lock()
	c.balanceMsats = result.Balance
	c.mu.Unlock()
	return result.Balance / 1000, nil
}

// PayInvoice pays a bolt11 invoice and returns the preimage. The cached
// balance is refreshed after a successful payment.
func (c *WalletClient) PayInvoice(ctx context.Context, invoice string) (string, error) {
	params := map[string]string{"invoice": invoice}
	resp, err := c.rpc(ctx, "pay_invoice", params, nwcPayTimeout)
	if err != nil {
		return "", err
	}
	var result struct {
		Preimage string `json:"preimage"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("parse payment result: %w", err)
	}
	if result.Preimage == "" {
		return "", errors.New("wallet returned no preimage")
	}

	if _, err := c.GetBalance(ctx); err != nil {
		slog.Debug("balance refresh after payment failed", "error", err)
	}
	return result.Preimage, nil
}

// MakeInvoice creates a bolt11 invoice for the given amount in sats.
func (c *WalletClient) MakeInvoice(ctx context.Context, amountSats int64, description string) (string, error) {
	params := map[string]interface{}{
		"amount":      amountSats * 1000, // wire amounts are msats
		"description": description,
	}
	resp, err := c.rpc(ctx, "make_invoice", params, nwcInvoiceTimeout)
	if err != nil {
		return "", err
	}
	var result struct {
		Invoice string `json:"invoice"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("parse invoice result: %w", err)
	}
	if result.Invoice == "" {
		return "", errors.New("wallet returned no invoice")
	}
	return result.Invoice, nil
}

// ListTransactions returns recent wallet transactions.
func (c *WalletClient) ListTransactions(ctx context.Context, limit int) ([]NWCTransaction, error) {
	if limit <= 0 {
		limit = 20
	}
	params := map[string]int{"limit": limit}
	resp, err := c.rpc(ctx, "list_transactions", params, nwcListTimeout)
	if err != nil {
		return nil, err
	}
	var result struct {
		Transactions []NWCTransaction `json:"transactions"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("parse transactions result: %w", err)
	}
	return result.Transactions, nil
}

// PairingQR renders the pairing URI as a PNG QR code.
func (c *WalletClient) PairingQR() ([]byte, error) {
	return qrcode.Encode(c.config.URI, qrcode.Medium, 256)
}

// rpc publishes one encrypted request event and polls for the wallet's
// response until the deadline.
func (c *WalletClient) rpc(ctx context.Context, method string, params interface{}, timeout time.Duration) (*NWCResponse, error) {
	if !c.Connected() {
		return nil, ErrWalletNotConnected
	}
	nwcRequestsTotal.Add(1)

	reqJSON, err := json.Marshal(NWCRequest{Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	encrypted, err := Nip04Encrypt(string(reqJSON), c.config.Nip04SharedKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt request: %w", err)
	}

	ev := &Event{
		Kind:      KindNWCRequest,
		CreatedAt: time.Now().Unix(),
		Tags:      [][]string{{"p", c.config.WalletPubKeyHex()}},
		Content:   encrypted,
	}
	if err := nostr.SignEvent(c.config.Secret, ev); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.config.Relay, nil)
	if err != nil {
		return nil, fmt.Errorf("dial wallet relay: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON([]interface{}{"EVENT", ev}); err != nil {
		return nil, fmt.Errorf("publish request: %w", err)
	}
	slog.Debug("nwc request sent", "method", method, "event", nostr.ShortID(ev.ID))

	responseEvent, err := c.pollResponse(ctx, conn, ev.ID)
	if err != nil {
		return nil, err
	}

	decrypted, err := Nip04Decrypt(responseEvent.Content, c.config.Nip04SharedKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt response: %w", err)
	}
	var resp NWCResponse
	if err := json.Unmarshal([]byte(decrypted), &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("wallet error %s: %s", resp.Error.Code, resp.Error.Message)
	}
	return &resp, nil
}

// pollResponse repeatedly asks the relay for the kind 23195 response
// correlated to the request id, re-issuing the query until the context
// expires. Each poll is a fresh REQ so nothing depends on relay-side
// subscription state.
func (c *WalletClient) pollResponse(ctx context.Context, conn *websocket.Conn, requestID string) (*Event, error) {
	filter := map[string]interface{}{
		"kinds":   []int{KindNWCResponse},
		"authors": []string{c.config.WalletPubKeyHex()},
		"#e":      []string{requestID},
		"limit":   1,
	}

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("wallet response: %w", ctx.Err())
		}

		subID := fmt.Sprintf("nwc-%s", randomString(8))
		if err := conn.WriteJSON([]interface{}{"REQ", subID, filter}); err != nil {
			return nil, fmt.Errorf("poll request: %w", err)
		}

		found, err := c.readUntilEOSE(ctx, conn, subID)
		if err != nil {
			return nil, err
		}
		conn.WriteJSON([]interface{}{"CLOSE", subID})
		if found != nil {
			return found, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wallet response: %w", ctx.Err())
		case <-time.After(nwcPollInterval):
		}
	}
}

// readUntilEOSE drains one subscription round. Returns the first event
// authored by the wallet, or nil at EOSE. The author check does not
// trust the relay to have honored the authors filter.
func (c *WalletClient) readUntilEOSE(ctx context.Context, conn *websocket.Conn, subID string) (*Event, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(nwcBalanceTimeout)
	}
	conn.SetReadDeadline(deadline)

	var found *Event
	for {
		var msg []json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return nil, fmt.Errorf("read wallet relay: %w", err)
		}
		if len(msg) < 2 {
			continue
		}
		var msgType string
		if err := json.Unmarshal(msg[0], &msgType); err != nil {
			continue
		}

		switch msgType {
		case "EVENT":
			if len(msg) < 3 {
				continue
			}
			var sid string
			json.Unmarshal(msg[1], &sid)
			if sid != subID {
				continue
			}
			var ev Event
			if err := json.Unmarshal(msg[2], &ev); err != nil {
				slog.Debug("malformed wallet response event")
				continue
			}
			if ev.PubKey != c.config.WalletPubKeyHex() {
				slog.Debug("wallet response from unexpected author", "event", nostr.ShortID(ev.ID))
				continue
			}
			found = &ev
		case "EOSE":
			var sid string
			json.Unmarshal(msg[1], &sid)
			if sid == subID {
				return found, nil
			}
		case "OK", "NOTICE":
			// publish acks and notices share the connection
		}
	}
}
