package main

import (
	"testing"

	"nostr-client/internal/types"
)

func TestClassifyNotification(t *testing.T) {
	author := "1212121212121212121212121212121212121212121212121212121212121212"

	// Kind 1 with an e-tag is a reply
	n := classifyNotification(&Event{
		Kind:   KindTextNote,
		PubKey: author,
		Tags:   [][]string{{"e", "parent-id"}, {"p", "me"}},
	})
	if n.Type != types.NotificationReply || n.TargetEventID != "parent-id" {
		t.Errorf("reply classified as %v target %q", n.Type, n.TargetEventID)
	}

	// Kind 1 without e-tags is a plain mention
	n = classifyNotification(&Event{
		Kind:   KindTextNote,
		PubKey: author,
		Tags:   [][]string{{"p", "me"}},
	})
	if n.Type != types.NotificationMention {
		t.Errorf("mention classified as %v", n.Type)
	}

	n = classifyNotification(&Event{
		Kind:   KindReaction,
		PubKey: author,
		Tags:   [][]string{{"e", "liked-id"}},
	})
	if n.Type != types.NotificationReaction {
		t.Errorf("reaction classified as %v", n.Type)
	}

	n = classifyNotification(&Event{
		Kind:   KindRepost,
		PubKey: author,
		Tags:   [][]string{{"e", "boosted-id"}},
	})
	if n.Type != types.NotificationRepost {
		t.Errorf("repost classified as %v", n.Type)
	}
}

func TestClassifyNotificationZap(t *testing.T) {
	sender := "3434343434343434343434343434343434343434343434343434343434343434"
	receipt := zapReceipt(t, "lnbc21u1pexample", "", sender)
	receipt.Tags = append(receipt.Tags, []string{"e", "zapped-note"})

	n := classifyNotification(receipt)
	if n.Type != types.NotificationZap {
		t.Fatalf("zap classified as %v", n.Type)
	}
	if n.ZapAmountSats != 2_100 {
		t.Errorf("zap amount = %d, want 2100", n.ZapAmountSats)
	}
	if n.ZapSenderPubkey != sender {
		t.Errorf("zap sender = %q, want the request author", n.ZapSenderPubkey)
	}
	if n.TargetEventID != "zapped-note" {
		t.Errorf("zap target = %q", n.TargetEventID)
	}
}

func TestNotificationAuthorCreditsZapSender(t *testing.T) {
	provider := "5656565656565656565656565656565656565656565656565656565656565656"
	sender := "7878787878787878787878787878787878787878787878787878787878787878"

	n := types.Notification{
		Event:           Event{PubKey: provider},
		Type:            types.NotificationZap,
		ZapSenderPubkey: sender,
	}
	if got := notificationAuthor(&n); got != sender {
		t.Errorf("zap author = %q, want the sender not the LNURL provider", got)
	}

	// Without an extractable sender, fall back to the receipt author
	n.ZapSenderPubkey = ""
	if got := notificationAuthor(&n); got != provider {
		t.Errorf("fallback author = %q", got)
	}
}
