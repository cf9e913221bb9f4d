package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"nostr-client/internal/config"
	"nostr-client/internal/types"
)

const commandTimeout = 30 * time.Second

func main() {
	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	InitLogger()

	cfg := config.GetClientConfig()

	if err := InitCaches(); err != nil {
		slog.Error("cache initialization failed", "error", err)
		os.Exit(1)
	}

	if cfg.PrivateKey != "" {
		if err := SetLocalKey(cfg.PrivateKey); err != nil {
			slog.Error("invalid NOSTR_PRIVATE_KEY", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	pool := NewRelayPool()
	relays := cfg.Relays
	if len(relays) == 0 {
		relays = DefaultRelays
	}
	if err := pool.ConnectTo(ctx, relays); err != nil {
		slog.Error("relay connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Disconnect()

	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	if err := runCommand(ctx, cfg, pool, args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, cfg *config.ClientConfig, pool *RelayPool, args []string) error {
	switch args[0] {
	case "feed":
		return cmdFeed(ctx, pool, args[1:])
	case "global":
		return cmdGlobal(ctx, pool, args[1:])
	case "thread":
		return cmdThread(ctx, pool, args[1:])
	case "notifications":
		return cmdNotifications(ctx, pool)
	case "watch":
		return cmdWatch(pool, args[1:])
	case "dm":
		return cmdDm(ctx, cfg, pool, args[1:])
	case "wallet":
		return cmdWallet(ctx, cfg, args[1:])
	case "zap":
		return cmdZap(ctx, cfg, pool, args[1:])
	case "metrics":
		fmt.Println(MetricsSnapshot())
		fmt.Println(Store().Stats())
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: nostr-client <command>

commands:
  feed [limit]              following feed for the configured identity
  global [limit]            global feed across connected relays
  thread <nevent|note|hex>  thread view around an event
  notifications             recent mentions, reactions, zaps and reposts
  watch [limit]             follow the global feed live until interrupted
  dm list [category]        conversation list
  dm send <pubkey> <text>   send with the conversation's protocol
  dm send-with <nip04|nip17> <pubkey> <text>
                            pick the protocol for this conversation
  wallet balance            wallet balance over Nostr Wallet Connect
  wallet pay <invoice>      pay a BOLT11 invoice
  wallet qr <file>          write the pairing QR code as PNG
  zap <pubkey> [sats]       zap a user
  metrics                   internal counters`)
}

func cmdFeed(ctx context.Context, pool *RelayPool, args []string) error {
	signer := localSignerOrNil()
	if signer == nil {
		return fmt.Errorf("feed requires NOSTR_PRIVATE_KEY")
	}
	contacts, err := pool.FetchContactList(ctx, signer.PubKeyHex())
	if err != nil {
		return err
	}
	notes, err := pool.FollowingFeed(ctx, contacts, parseLimit(args, 20))
	if err != nil {
		return err
	}
	printNotes(notes)
	return nil
}

func cmdGlobal(ctx context.Context, pool *RelayPool, args []string) error {
	notes, err := pool.GlobalFeed(ctx, parseLimit(args, 20), false)
	if err != nil {
		return err
	}
	printNotes(notes)
	return nil
}

func cmdThread(ctx context.Context, pool *RelayPool, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("thread requires an event reference")
	}
	eventID, err := resolveEventRef(args[0])
	if err != nil {
		return err
	}
	view, err := pool.Thread(ctx, eventID)
	if err != nil {
		return err
	}
	printNotes(view.Ancestry)
	fmt.Println("---")
	printNotes([]types.DisplayNote{view.Target})
	fmt.Println("---")
	printNotes(view.Replies)
	return nil
}

// resolveEventRef accepts nevent, note or raw hex event IDs
func resolveEventRef(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "nevent1"):
		ne, err := DecodeNEvent(ref)
		if err != nil {
			return "", err
		}
		return ne.EventID, nil
	case strings.HasPrefix(ref, "note1"):
		return DecodeNote(ref)
	default:
		if _, err := hex.DecodeString(ref); err != nil || len(ref) != 64 {
			return "", fmt.Errorf("not an event reference: %s", ref)
		}
		return ref, nil
	}
}

func cmdNotifications(ctx context.Context, pool *RelayPool) error {
	signer := localSignerOrNil()
	if signer == nil {
		return fmt.Errorf("notifications require NOSTR_PRIVATE_KEY")
	}
	items, err := pool.DisplayNotifications(ctx, signer.PubKeyHex(), 50)
	if err != nil {
		return err
	}
	for _, n := range items {
		fmt.Printf("[%s] %s: %s\n", n.Type, n.AuthorName, n.Content)
	}
	return nil
}

// cmdWatch prints the global feed and then keeps polling for newer
// notes until interrupted. Polls run on a dispatcher so the cursor
// state needs no locking.
func cmdWatch(pool *RelayPool, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	q := FeedQuery{Kind: FeedGlobal, Limit: parseLimit(args, 20)}
	notes, err := pool.Feed(ctx, q)
	if err != nil {
		return err
	}
	printNotes(notes)

	var newest int64
	known := make([]string, 0, len(notes))
	for _, n := range notes {
		known = append(known, n.ID)
		if n.CreatedAt > newest {
			newest = n.CreatedAt
		}
	}

	updates := EnableUpdates()
	dispatcher := NewDispatcher(16)
	defer dispatcher.Shutdown()

	poll := func() {
		pollCtx, pollCancel := context.WithTimeout(ctx, commandTimeout)
		defer pollCancel()
		fresh, err := pool.CheckForNew(pollCtx, q, newest, known)
		if err != nil {
			publishUpdate(UpdateError, err.Error())
			return
		}
		if len(fresh) == 0 {
			return
		}
		printNotes(fresh)
		publishUpdate(UpdateNewItems, len(fresh))
		for _, n := range fresh {
			known = append(known, n.ID)
			if n.CreatedAt > newest {
				newest = n.CreatedAt
			}
		}
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-updates:
			if u.Kind == UpdateError {
				fmt.Fprintln(os.Stderr, "background error:", u.Payload)
			}
		case <-ticker.C:
			if err := dispatcher.Submit(ctx, poll); err != nil {
				return err
			}
		}
	}
}

func cmdDm(ctx context.Context, cfg *config.ClientConfig, pool *RelayPool, args []string) error {
	signer := localSignerOrNil()
	if signer == nil {
		return fmt.Errorf("dm requires NOSTR_PRIVATE_KEY")
	}
	mgr := NewDmManager(signer.PubKeyHex(), cfg.DataDir)
	if len(args) == 0 {
		args = []string{"list"}
	}

	switch args[0] {
	case "list":
		if err := mgr.FetchMessages(ctx, pool); err != nil {
			return err
		}
		convos := mgr.Conversations()
		if len(args) > 1 {
			convos = mgr.ConversationsByCategory(ParseConversationCategory(args[1]))
		}
		for _, c := range convos {
			fmt.Printf("%s [%s] %s (%d unread)\n", c.Peer, c.EffectiveCategory(), c.LastMessage, c.Unread)
		}
		return nil
	case "send":
		if len(args) < 3 {
			return fmt.Errorf("dm send requires <pubkey> <text>")
		}
		if err := mgr.FetchMessages(ctx, pool); err != nil {
			return err
		}
		return mgr.SendMessage(ctx, pool, args[1], strings.Join(args[2:], " "))
	case "send-with":
		if len(args) < 4 {
			return fmt.Errorf("dm send-with requires <nip04|nip17> <pubkey> <text>")
		}
		proto, err := parseDmProtocol(args[1])
		if err != nil {
			return err
		}
		mgr.SetProtocol(args[2], proto)
		return mgr.SendMessage(ctx, pool, args[2], strings.Join(args[3:], " "))
	default:
		return fmt.Errorf("unknown dm subcommand %q", args[0])
	}
}

func connectWallet(ctx context.Context, cfg *config.ClientConfig) (*WalletClient, error) {
	if cfg.WalletURI == "" {
		return nil, fmt.Errorf("no wallet configured, set NWC_URI")
	}
	nwcConfig, err := ParseWalletURI(cfg.WalletURI)
	if err != nil {
		return nil, err
	}
	wallet := NewWalletClient(nwcConfig)
	if err := wallet.Connect(ctx); err != nil {
		return nil, err
	}
	return wallet, nil
}

func parseDmProtocol(s string) (DmProtocol, error) {
	switch strings.ToLower(s) {
	case "nip04", "nip-04":
		return DmNip04, nil
	case "nip17", "nip-17":
		return DmNip17, nil
	}
	return 0, fmt.Errorf("unknown dm protocol %q", s)
}

func cmdWallet(ctx context.Context, cfg *config.ClientConfig, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("wallet requires a subcommand (balance, pay, qr)")
	}

	// The QR code only needs the pairing URI, not a live connection
	if args[0] == "qr" {
		if len(args) < 2 {
			return fmt.Errorf("wallet qr requires an output file")
		}
		if cfg.WalletURI == "" {
			return fmt.Errorf("no wallet configured, set NWC_URI")
		}
		nwcConfig, err := ParseWalletURI(cfg.WalletURI)
		if err != nil {
			return err
		}
		png, err := NewWalletClient(nwcConfig).PairingQR()
		if err != nil {
			return err
		}
		return os.WriteFile(args[1], png, 0o600)
	}

	wallet, err := connectWallet(ctx, cfg)
	if err != nil {
		return err
	}
	defer wallet.Disconnect()

	switch args[0] {
	case "balance":
		sats, err := wallet.GetBalance(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d sats\n", sats)
		return nil
	case "pay":
		if len(args) < 2 {
			return fmt.Errorf("wallet pay requires an invoice")
		}
		preimage, err := wallet.PayInvoice(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Println("paid, preimage:", preimage)
		return nil
	default:
		return fmt.Errorf("unknown wallet subcommand %q", args[0])
	}
}

func cmdZap(ctx context.Context, cfg *config.ClientConfig, pool *RelayPool, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("zap requires a recipient pubkey")
	}
	sats := cfg.DefaultZapSats
	if len(args) > 1 {
		parsed, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || parsed <= 0 {
			return fmt.Errorf("invalid zap amount %q", args[1])
		}
		sats = parsed
	}

	wallet, err := connectWallet(ctx, cfg)
	if err != nil {
		return err
	}
	defer wallet.Disconnect()

	result := Zap(ctx, pool, wallet, args[0], "", sats, "")
	if !result.Success {
		return fmt.Errorf("zap failed at %s stage: %s", result.Stage, result.Err)
	}
	fmt.Printf("zapped %d sats, preimage %s\n", result.AmountSats, result.Preimage)
	return nil
}

func parseLimit(args []string, fallback int) int {
	if len(args) == 0 {
		return fallback
	}
	if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
		return n
	}
	return fallback
}

func printNotes(notes []types.DisplayNote) {
	for _, n := range notes {
		ts := time.Unix(n.CreatedAt, 0).Format("2006-01-02 15:04")
		fmt.Printf("%s  %s\n%s\n\n", ts, n.AuthorName, n.Content)
	}
}
