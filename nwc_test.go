package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"nostr-client/internal/nostr"
)

const (
	testWalletPubkey = "82341f882b6eabcd2ba7f1ef90aad961cf074af15b9ef44a09f9d2a8fbfbe6a2"
	testWalletSecret = "0000000000000000000000000000000000000000000000000000000000000001"
)

func TestParseWalletURI(t *testing.T) {
	uri := "nostr+walletconnect://" + testWalletPubkey +
		"?relay=wss://relay.wallet.example.com&secret=" + testWalletSecret +
		"&lud16=user@wallet.example.com"

	config, err := ParseWalletURI(uri)
	if err != nil {
		t.Fatalf("ParseWalletURI: %v", err)
	}
	if config.WalletPubKeyHex() != testWalletPubkey {
		t.Errorf("wallet pubkey = %q", config.WalletPubKeyHex())
	}
	if config.Relay != "wss://relay.wallet.example.com" {
		t.Errorf("relay = %q", config.Relay)
	}
	if config.Lud16 != "user@wallet.example.com" {
		t.Errorf("lud16 = %q", config.Lud16)
	}
	if len(config.ClientPubKey) != 32 {
		t.Errorf("client pubkey should be derived, got %d bytes", len(config.ClientPubKey))
	}
	if len(config.ConversationKey) == 0 || len(config.Nip04SharedKey) == 0 {
		t.Error("both encryption keys should be precomputed")
	}
	if config.URI != uri {
		t.Error("original URI should be preserved for pairing display")
	}
}

func TestParseWalletURIShortScheme(t *testing.T) {
	uri := "nostr://" + testWalletPubkey +
		"?relay=ws://localhost:7777&secret=" + testWalletSecret

	config, err := ParseWalletURI(uri)
	if err != nil {
		t.Fatalf("ParseWalletURI with nostr:// scheme: %v", err)
	}
	if config.Relay != "ws://localhost:7777" {
		t.Errorf("relay = %q", config.Relay)
	}
	if config.Lud16 != "" {
		t.Errorf("lud16 should be empty when absent, got %q", config.Lud16)
	}
}

func TestParseWalletURIErrors(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want string
	}{
		{
			name: "wrong scheme",
			uri:  "https://" + testWalletPubkey + "?relay=wss://r.example.com&secret=" + testWalletSecret,
			want: "must start with",
		},
		{
			name: "short pubkey",
			uri:  "nostr+walletconnect://abc123?relay=wss://r.example.com&secret=" + testWalletSecret,
			want: "pubkey",
		},
		{
			name: "missing relay",
			uri:  "nostr+walletconnect://" + testWalletPubkey + "?secret=" + testWalletSecret,
			want: "relay",
		},
		{
			name: "http relay",
			uri:  "nostr+walletconnect://" + testWalletPubkey + "?relay=https://r.example.com&secret=" + testWalletSecret,
			want: "relay",
		},
		{
			name: "missing secret",
			uri:  "nostr+walletconnect://" + testWalletPubkey + "?relay=wss://r.example.com",
			want: "secret",
		},
		{
			name: "short secret",
			uri:  "nostr+walletconnect://" + testWalletPubkey + "?relay=wss://r.example.com&secret=abcd",
			want: "secret",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseWalletURI(tc.uri)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q should mention %q", err, tc.want)
			}
		})
	}
}

func TestWalletStateTransitions(t *testing.T) {
	config, err := ParseWalletURI("nostr+walletconnect://" + testWalletPubkey +
		"?relay=wss://relay.wallet.example.com&secret=" + testWalletSecret)
	if err != nil {
		t.Fatal(err)
	}

	wallet := NewWalletClient(config)
	if status := wallet.State(); status.State != WalletDisconnected {
		t.Errorf("new wallet state = %v, want disconnected", status.State)
	}
	if wallet.Connected() {
		t.Error("new wallet should not report connected")
	}

	wallet.Disconnect()
	if status := wallet.State(); status.State != WalletDisconnected {
		t.Errorf("state after disconnect = %v", status.State)
	}
}

func TestWalletRPCRequiresConnection(t *testing.T) {
	config, err := ParseWalletURI("nostr+walletconnect://" + testWalletPubkey +
		"?relay=wss://relay.wallet.example.com&secret=" + testWalletSecret)
	if err != nil {
		t.Fatal(err)
	}

	wallet := NewWalletClient(config)
	if _, err := wallet.GetBalance(context.Background()); err == nil {
		t.Error("GetBalance on a disconnected wallet should fail")
	}
	if _, err := wallet.PayInvoice(context.Background(), "lnbc1fake"); err == nil {
		t.Error("PayInvoice on a disconnected wallet should fail")
	}
}

// fakeWalletRelay is an in-process relay with a wallet service behind
// it: published kind 23194 requests are decrypted, answered per method,
// and the signed kind 23195 response is served on the next poll.
type fakeWalletRelay struct {
	t      *testing.T
	secret []byte // wallet service key

	mu        sync.Mutex
	errCode   string // when set, every request fails with this code
	forge     bool   // when set, a response from a stranger key is served first
	requests  []NWCRequest
	responses map[string]*Event // keyed by request event id
	decoys    map[string]*Event
}

func newFakeWalletRelay(t *testing.T) (*fakeWalletRelay, string) {
	t.Helper()
	walletSecret, err := GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	fw := &fakeWalletRelay{
		t:         t,
		secret:    walletSecret,
		responses: make(map[string]*Event),
		decoys:    make(map[string]*Event),
	}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fw.serve(conn)
	}))
	t.Cleanup(srv.Close)

	return fw, "ws" + strings.TrimPrefix(srv.URL, "http")
}

// pairingURI builds a wallet URI for this relay with a fresh client
// secret.
func (fw *fakeWalletRelay) pairingURI(relayURL string) string {
	walletPub, err := GetPublicKey(fw.secret)
	if err != nil {
		fw.t.Fatal(err)
	}
	clientSecret, err := GeneratePrivateKey()
	if err != nil {
		fw.t.Fatal(err)
	}
	return "nostr+walletconnect://" + hex.EncodeToString(walletPub) +
		"?relay=" + url.QueryEscape(relayURL) +
		"&secret=" + hex.EncodeToString(clientSecret)
}

func (fw *fakeWalletRelay) setErrCode(code string) {
	fw.mu.Lock()
	fw.errCode = code
	fw.mu.Unlock()
}

func (fw *fakeWalletRelay) setForge(on bool) {
	fw.mu.Lock()
	fw.forge = on
	fw.mu.Unlock()
}

func (fw *fakeWalletRelay) serve(conn *websocket.Conn) {
	for {
		var msg []json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if len(msg) < 2 {
			continue
		}
		var msgType string
		json.Unmarshal(msg[0], &msgType)

		switch msgType {
		case "EVENT":
			var ev Event
			if err := json.Unmarshal(msg[1], &ev); err != nil {
				continue
			}
			if ev.Kind == KindNWCRequest {
				fw.handleRequest(&ev)
			}
			conn.WriteJSON([]interface{}{"OK", ev.ID, true, ""})
		case "REQ":
			if len(msg) < 3 {
				continue
			}
			var subID string
			json.Unmarshal(msg[1], &subID)
			var filter struct {
				ETags []string `json:"#e"`
			}
			json.Unmarshal(msg[2], &filter)

			fw.mu.Lock()
			for _, id := range filter.ETags {
				if decoy, ok := fw.decoys[id]; ok {
					conn.WriteJSON([]interface{}{"EVENT", subID, decoy})
				}
				if resp, ok := fw.responses[id]; ok {
					conn.WriteJSON([]interface{}{"EVENT", subID, resp})
				}
			}
			fw.mu.Unlock()
			conn.WriteJSON([]interface{}{"EOSE", subID})
		}
	}
}

// handleRequest decrypts one RPC request and stores the encrypted,
// signed response for later polls.
func (fw *fakeWalletRelay) handleRequest(ev *Event) {
	clientPub, err := hex.DecodeString(ev.PubKey)
	if err != nil {
		return
	}
	shared, err := GetNip04SharedSecret(fw.secret, clientPub)
	if err != nil {
		fw.t.Errorf("shared secret: %v", err)
		return
	}
	plain, err := Nip04Decrypt(ev.Content, shared)
	if err != nil {
		fw.t.Errorf("decrypt request: %v", err)
		return
	}
	var req NWCRequest
	if err := json.Unmarshal([]byte(plain), &req); err != nil {
		fw.t.Errorf("parse request: %v", err)
		return
	}

	fw.mu.Lock()
	fw.requests = append(fw.requests, req)
	errCode := fw.errCode
	forge := fw.forge
	fw.mu.Unlock()

	if forge {
		fw.storeDecoy(ev, req.Method, shared)
	}

	resp := map[string]interface{}{"result_type": req.Method}
	if errCode != "" {
		resp["error"] = map[string]string{"code": errCode, "message": "request refused"}
	} else {
		switch req.Method {
		case "get_balance":
			resp["result"] = map[string]int64{"balance": 21_000_000}
		case "pay_invoice":
			resp["result"] = map[string]string{"preimage": "00ab00ab00ab00ab"}
		case "make_invoice":
			resp["result"] = map[string]string{"invoice": "lnbc210n1fakewalletinvoice"}
		case "list_transactions":
			resp["result"] = map[string]interface{}{
				"transactions": []NWCTransaction{
					{Type: "incoming", Amount: 21_000, CreatedAt: 1_700_000_000},
				},
			}
		}
	}
	respJSON, err := json.Marshal(resp)
	if err != nil {
		fw.t.Fatal(err)
	}
	encrypted, err := Nip04Encrypt(string(respJSON), shared)
	if err != nil {
		fw.t.Fatal(err)
	}

	respEv := &Event{
		Kind:      KindNWCResponse,
		CreatedAt: time.Now().Unix(),
		Tags:      [][]string{{"e", ev.ID}, {"p", ev.PubKey}},
		Content:   encrypted,
	}
	if err := nostr.SignEvent(fw.secret, respEv); err != nil {
		fw.t.Fatal(err)
	}

	fw.mu.Lock()
	fw.responses[ev.ID] = respEv
	fw.mu.Unlock()
}

// storeDecoy stores a well-formed response signed by a key that is not
// the wallet's, queued ahead of the real one.
func (fw *fakeWalletRelay) storeDecoy(ev *Event, method string, shared []byte) {
	decoyJSON, err := json.Marshal(map[string]interface{}{
		"result_type": method,
		"result":      map[string]int64{"balance": 1_000_000},
	})
	if err != nil {
		fw.t.Fatal(err)
	}
	encrypted, err := Nip04Encrypt(string(decoyJSON), shared)
	if err != nil {
		fw.t.Fatal(err)
	}

	strangerSecret, err := GeneratePrivateKey()
	if err != nil {
		fw.t.Fatal(err)
	}
	decoy := &Event{
		Kind:      KindNWCResponse,
		CreatedAt: time.Now().Unix(),
		Tags:      [][]string{{"e", ev.ID}, {"p", ev.PubKey}},
		Content:   encrypted,
	}
	if err := nostr.SignEvent(strangerSecret, decoy); err != nil {
		fw.t.Fatal(err)
	}

	fw.mu.Lock()
	fw.decoys[ev.ID] = decoy
	fw.mu.Unlock()
}

func (fw *fakeWalletRelay) lastRequest() *NWCRequest {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if len(fw.requests) == 0 {
		return nil
	}
	req := fw.requests[len(fw.requests)-1]
	return &req
}

func TestWalletRPCRoundTrip(t *testing.T) {
	fw, relayURL := newFakeWalletRelay(t)
	config, err := ParseWalletURI(fw.pairingURI(relayURL))
	if err != nil {
		t.Fatal(err)
	}
	wallet := NewWalletClient(config)
	ctx := context.Background()

	if err := wallet.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !wallet.Connected() {
		t.Fatal("wallet should be connected")
	}
	// Connect already fetched the balance
	if status := wallet.State(); status.BalanceMsats != 21_000_000 {
		t.Errorf("initial balance = %d msats, want 21000000", status.BalanceMsats)
	}

	sats, err := wallet.GetBalance(ctx)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if sats != 21_000 {
		t.Errorf("balance = %d sats, want 21000", sats)
	}

	invoice, err := wallet.MakeInvoice(ctx, 210, "coffee")
	if err != nil {
		t.Fatalf("MakeInvoice: %v", err)
	}
	if !strings.HasPrefix(invoice, "lnbc") {
		t.Errorf("invoice = %q", invoice)
	}
	// Wire amounts are msats
	if req := fw.lastRequest(); req != nil {
		params, _ := req.Params.(map[string]interface{})
		if amount, _ := params["amount"].(float64); int64(amount) != 210_000 {
			t.Errorf("make_invoice amount = %v msats, want 210000", params["amount"])
		}
	}

	txs, err := wallet.ListTransactions(ctx, 5)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Type != "incoming" || txs[0].Amount != 21_000 {
		t.Errorf("transactions = %+v", txs)
	}

	preimage, err := wallet.PayInvoice(ctx, "lnbc21u1fakeinvoice")
	if err != nil {
		t.Fatalf("PayInvoice: %v", err)
	}
	if preimage != "00ab00ab00ab00ab" {
		t.Errorf("preimage = %q", preimage)
	}
}

func TestWalletRPCWalletError(t *testing.T) {
	fw, relayURL := newFakeWalletRelay(t)
	fw.setErrCode("INSUFFICIENT_BALANCE")

	config, err := ParseWalletURI(fw.pairingURI(relayURL))
	if err != nil {
		t.Fatal(err)
	}
	wallet := NewWalletClient(config)
	ctx := context.Background()

	// A failed initial balance fetch doesn't fail the connection
	if err := wallet.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if status := wallet.State(); status.State != WalletConnected {
		t.Errorf("state = %v, want connected despite the balance failure", status.State)
	}

	_, err = wallet.PayInvoice(ctx, "lnbc21u1fakeinvoice")
	if err == nil {
		t.Fatal("wallet-side error should surface")
	}
	if !strings.Contains(err.Error(), "INSUFFICIENT_BALANCE") {
		t.Errorf("error %q should carry the wallet error code", err)
	}
}

func TestWalletIgnoresResponsesFromOtherAuthors(t *testing.T) {
	fw, relayURL := newFakeWalletRelay(t)
	fw.setForge(true)

	config, err := ParseWalletURI(fw.pairingURI(relayURL))
	if err != nil {
		t.Fatal(err)
	}
	wallet := NewWalletClient(config)
	ctx := context.Background()

	if err := wallet.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// The decoy arrives first and claims a 1000-sat balance. Only the
	// event authored by the wallet key counts.
	sats, err := wallet.GetBalance(ctx)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if sats != 21_000 {
		t.Errorf("balance = %d sats, want 21000 from the wallet-authored response", sats)
	}
}

func TestPairingQRProducesPNG(t *testing.T) {
	config, err := ParseWalletURI("nostr+walletconnect://" + testWalletPubkey +
		"?relay=wss://relay.wallet.example.com&secret=" + testWalletSecret)
	if err != nil {
		t.Fatal(err)
	}
	png, err := NewWalletClient(config).PairingQR()
	if err != nil {
		t.Fatalf("PairingQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Errorf("output does not look like a PNG (%d bytes)", len(png))
	}
}

func TestWalletStateString(t *testing.T) {
	cases := map[WalletState]string{
		WalletDisconnected: "disconnected",
		WalletConnecting:   "connecting",
		WalletConnected:    "connected",
		WalletError:        "error",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("WalletState(%d).String() = %q, want %q", state, got, want)
		}
	}
}
