package main

import (
	"context"
	"sort"
	"sync"

	"nostr-client/internal/types"
	"nostr-client/internal/util"
)

// Notifications fetches everything that references the user: mentions
// and replies (kind 1), reactions (kind 7), zap receipts (kind 9735),
// and reposts (kind 6). Four filters fan out in parallel and merge into
// one list, newest first, with the user's own events dropped.
func (p *RelayPool) Notifications(ctx context.Context, userPubkey string, limit int) ([]types.Notification, error) {
	if err := p.ensureConnected(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	relays := p.Relays()

	filters := []Filter{
		{Kinds: []int{KindTextNote}, PTags: []string{userPubkey}, Limit: limit},
		{Kinds: []int{KindReaction}, PTags: []string{userPubkey}, Limit: limit},
		{Kinds: []int{KindZapReceipt}, PTags: []string{userPubkey}, Limit: limit},
		{Kinds: []int{KindRepost}, PTags: []string{userPubkey}, Limit: limit},
	}

	results := make([][]Event, len(filters))
	var wg sync.WaitGroup
	for i, f := range filters {
		wg.Add(1)
		go func(i int, f Filter) {
			defer wg.Done()
			results[i], _ = fetchEventsFromRelays(ctx, relays, f, defaultQueryTimeout)
		}(i, f)
	}
	wg.Wait()

	seen := make(map[string]bool)
	var notifications []types.Notification
	for _, batch := range results {
		for i := range batch {
			evt := &batch[i]
			if seen[evt.ID] || evt.PubKey == userPubkey {
				continue
			}
			seen[evt.ID] = true
			notifications = append(notifications, classifyNotification(evt))
		}
	}

	sort.Slice(notifications, func(i, j int) bool {
		a, b := &notifications[i].Event, &notifications[j].Event
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		return a.ID < b.ID
	})
	return util.LimitSlice(notifications, limit), nil
}

func classifyNotification(evt *Event) types.Notification {
	n := types.Notification{
		Event:         *evt,
		TargetEventID: util.GetLastTagValue(evt.Tags, "e"),
	}

	switch evt.Kind {
	case KindTextNote:
		if n.TargetEventID != "" {
			n.Type = types.NotificationReply
		} else {
			n.Type = types.NotificationMention
		}
	case KindReaction:
		n.Type = types.NotificationReaction
	case KindZapReceipt:
		n.Type = types.NotificationZap
		n.ZapAmountSats = extractZapAmountSats(evt)
		n.ZapSenderPubkey = extractZapSender(evt)
	case KindRepost:
		n.Type = types.NotificationRepost
	default:
		n.Type = types.NotificationMention
	}
	return n
}

// DisplayNotifications hydrates notifications with author names for
// rendering. The zap sender, not the LNURL provider, is credited for
// zap receipts.
func (p *RelayPool) DisplayNotifications(ctx context.Context, userPubkey string, limit int) ([]types.DisplayNotification, error) {
	notifications, err := p.Notifications(ctx, userPubkey, limit)
	if err != nil {
		return nil, err
	}
	if len(notifications) == 0 {
		return nil, nil
	}

	pubkeySet := make(map[string]bool, len(notifications))
	for i := range notifications {
		pubkeySet[notificationAuthor(&notifications[i])] = true
	}
	profiles, err := p.Profiles(ctx, util.MapKeys(pubkeySet))
	if err != nil {
		profiles = nil
	}

	out := make([]types.DisplayNotification, 0, len(notifications))
	for i := range notifications {
		n := &notifications[i]
		author := notificationAuthor(n)
		d := types.DisplayNotification{
			ID:            n.Event.ID,
			Type:          n.Type,
			PubKey:        author,
			CreatedAt:     n.Event.CreatedAt,
			Content:       util.TruncateStringRunes(n.Event.Content, 100),
			TargetEventID: n.TargetEventID,
			ZapAmountSats: n.ZapAmountSats,
		}
		if profile := profiles[author]; profile != nil {
			d.AuthorName = profile.BestName()
		}
		if d.AuthorName == "" {
			d.AuthorName = formatNpubShort(author)
		}
		out = append(out, d)
	}
	return out, nil
}

func notificationAuthor(n *types.Notification) string {
	if n.Type == types.NotificationZap && n.ZapSenderPubkey != "" {
		return n.ZapSenderPubkey
	}
	return n.Event.PubKey
}
