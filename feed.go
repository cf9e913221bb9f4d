package main

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"nostr-client/internal/nips"
	"nostr-client/internal/types"
	"nostr-client/internal/util"
)

// FeedKind selects which timeline a FeedQuery targets
type FeedKind int

const (
	FeedFollowing FeedKind = iota
	FeedHome
	FeedReplies
	FeedGlobal
)

func (k FeedKind) String() string {
	switch k {
	case FeedFollowing:
		return "following"
	case FeedHome:
		return "home"
	case FeedReplies:
		return "replies"
	case FeedGlobal:
		return "global"
	}
	return "unknown"
}

// FeedQuery describes a timeline request so pagination can re-issue it
// with shifted time windows.
type FeedQuery struct {
	Kind     FeedKind
	Contacts []string // authors for following/home/replies
	Limit    int
	LongForm bool // global only: include kind 30023 articles
}

// FollowingFeed returns kind 1 notes merged with kind 6 reposts from the
// contact set, newest first.
func (p *RelayPool) FollowingFeed(ctx context.Context, contacts []string, limit int) ([]types.DisplayNote, error) {
	return p.Feed(ctx, FeedQuery{Kind: FeedFollowing, Contacts: contacts, Limit: limit})
}

// HomeFeed returns following posts plus replies to the most recent of
// those posts.
func (p *RelayPool) HomeFeed(ctx context.Context, contacts []string, limit int) ([]types.DisplayNote, error) {
	return p.Feed(ctx, FeedQuery{Kind: FeedHome, Contacts: contacts, Limit: limit})
}

// RepliesFeed returns only replies to recent posts from the contact set.
func (p *RelayPool) RepliesFeed(ctx context.Context, contacts []string, limit int) ([]types.DisplayNote, error) {
	return p.Feed(ctx, FeedQuery{Kind: FeedReplies, Contacts: contacts, Limit: limit})
}

// GlobalFeed returns recent kind 1 notes with no author filter.
func (p *RelayPool) GlobalFeed(ctx context.Context, limit int, longForm bool) ([]types.DisplayNote, error) {
	return p.Feed(ctx, FeedQuery{Kind: FeedGlobal, Limit: limit, LongForm: longForm})
}

// Feed executes a timeline query and hydrates the results.
func (p *RelayPool) Feed(ctx context.Context, q FeedQuery) ([]types.DisplayNote, error) {
	events, err := p.fetchFeedEvents(ctx, q, nil, nil)
	if err != nil {
		return nil, err
	}
	return p.displayNotes(ctx, events), nil
}

// LoadMore re-issues the query for the page below the caller's oldest
// note (until = oldest-1). Notes the caller already holds are dropped.
func (p *RelayPool) LoadMore(ctx context.Context, q FeedQuery, oldest int64, knownIDs []string) ([]types.DisplayNote, error) {
	if oldest <= 0 {
		return nil, nil
	}
	until := oldest - 1
	events, err := p.fetchFeedEvents(ctx, q, nil, &until)
	if err != nil {
		return nil, err
	}
	events = dropKnownEvents(events, knownIDs)
	return p.displayNotes(ctx, events), nil
}

// CheckForNew re-issues the query for anything newer than the caller's
// newest note (since = newest+1). Notes the caller already holds are
// dropped.
func (p *RelayPool) CheckForNew(ctx context.Context, q FeedQuery, newest int64, knownIDs []string) ([]types.DisplayNote, error) {
	since := newest + 1
	events, err := p.fetchFeedEvents(ctx, q, &since, nil)
	if err != nil {
		return nil, err
	}
	events = dropKnownEvents(events, knownIDs)
	return p.displayNotes(ctx, events), nil
}

func dropKnownEvents(events []Event, knownIDs []string) []Event {
	if len(knownIDs) == 0 || len(events) == 0 {
		return events
	}
	known := make(map[string]bool, len(knownIDs))
	for _, id := range knownIDs {
		known[id] = true
	}
	fresh := events[:0]
	for i := range events {
		if !known[events[i].ID] {
			fresh = append(fresh, events[i])
		}
	}
	return fresh
}

// fetchFeedEvents runs the relay queries for one timeline page. Since
// and until bound the window for pagination; nil means unbounded.
func (p *RelayPool) fetchFeedEvents(ctx context.Context, q FeedQuery, since, until *int64) ([]Event, error) {
	if err := p.ensureConnected(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	relays := p.Relays()

	switch q.Kind {
	case FeedFollowing:
		if len(q.Contacts) == 0 {
			return nil, nil
		}
		noteFilter := Filter{
			Kinds:   []int{KindTextNote},
			Authors: q.Contacts,
			Limit:   limit,
			Since:   since,
			Until:   until,
		}
		repostFilter := Filter{
			Kinds:   []int{KindRepost},
			Authors: q.Contacts,
			Limit:   limit / 2,
			Since:   since,
			Until:   until,
		}

		var notes, reposts []Event
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			notes, _ = fetchEventsFromRelays(ctx, relays, noteFilter, defaultQueryTimeout)
		}()
		go func() {
			defer wg.Done()
			reposts, _ = fetchEventsFromRelays(ctx, relays, repostFilter, defaultQueryTimeout)
		}()
		wg.Wait()

		return mergeEventsDesc(notes, reposts), nil

	case FeedHome:
		if len(q.Contacts) == 0 {
			return nil, nil
		}
		postFilter := Filter{
			Kinds:   []int{KindTextNote},
			Authors: q.Contacts,
			Limit:   limit,
			Since:   since,
			Until:   until,
		}
		posts, _ := fetchEventsFromRelays(ctx, relays, postFilter, defaultQueryTimeout)

		var postIDs []string
		for i := range posts {
			if i >= 50 {
				break
			}
			postIDs = append(postIDs, posts[i].ID)
		}
		if len(postIDs) == 0 {
			return posts, nil
		}

		replyFilter := Filter{
			Kinds: []int{KindTextNote},
			ETags: postIDs,
			Limit: limit / 2,
			Since: since,
			Until: until,
		}
		replies, _ := fetchEventsFromRelays(ctx, relays, replyFilter, defaultQueryTimeout)

		return mergeEventsDesc(posts, replies), nil

	case FeedReplies:
		if len(q.Contacts) == 0 {
			return nil, nil
		}
		// Recent posts first, then replies pointing at them
		postFilter := Filter{
			Kinds:   []int{KindTextNote},
			Authors: q.Contacts,
			Limit:   100,
		}
		posts, _ := fetchEventsFromRelays(ctx, relays, postFilter, defaultQueryTimeout)
		if len(posts) == 0 {
			return nil, nil
		}

		postIDs := make([]string, len(posts))
		for i := range posts {
			postIDs[i] = posts[i].ID
		}
		replyFilter := Filter{
			Kinds: []int{KindTextNote},
			ETags: postIDs,
			Limit: limit,
			Since: since,
			Until: until,
		}
		replies, _ := fetchEventsFromRelays(ctx, relays, replyFilter, defaultQueryTimeout)
		return replies, nil

	case FeedGlobal:
		kinds := []int{KindTextNote}
		if q.LongForm {
			kinds = append(kinds, KindLongForm)
		}
		filter := Filter{
			Kinds: kinds,
			Limit: limit,
			Since: since,
			Until: until,
		}
		events, _ := fetchEventsFromRelays(ctx, relays, filter, defaultQueryTimeout)
		return events, nil
	}

	return nil, fmt.Errorf("unknown feed kind %d", q.Kind)
}

// mergeEventsDesc combines two event slices, dedups by id, and sorts
// newest first.
func mergeEventsDesc(a, b []Event) []Event {
	seen := make(map[string]bool, len(a)+len(b))
	merged := make([]Event, 0, len(a)+len(b))
	for _, batch := range [][]Event{a, b} {
		for i := range batch {
			if seen[batch[i].ID] {
				continue
			}
			seen[batch[i].ID] = true
			merged = append(merged, batch[i])
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].CreatedAt != merged[j].CreatedAt {
			return merged[i].CreatedAt > merged[j].CreatedAt
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}

// ErrEventNotFound is returned when a thread target can't be located on
// any connected relay
var ErrEventNotFound = errors.New("event not found")

// ThreadView is a reconstructed conversation around one note. Ancestry
// runs oldest first down to the target's direct parent; replies are
// ascending by time.
type ThreadView struct {
	Ancestry []types.DisplayNote `json:"ancestry,omitempty"`
	Target   types.DisplayNote   `json:"target"`
	Replies  []types.DisplayNote `json:"replies,omitempty"`
}

// Thread fetches the target note, up to two hops of ancestors, and
// direct replies. Missing ancestors are tolerated; a missing target is
// an error.
func (p *RelayPool) Thread(ctx context.Context, eventID string) (*ThreadView, error) {
	if err := p.ensureConnected(); err != nil {
		return nil, err
	}

	target, err := p.FetchEventByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("thread root: %w", err)
	}

	// Hop one: events the target references
	parents := p.fetchEventBatch(ctx, util.GetTagValues(target.Tags, "e"))

	// Hop two: events the parents reference. No recursion past this.
	var grandparentIDs []string
	have := map[string]bool{target.ID: true}
	for i := range parents {
		have[parents[i].ID] = true
	}
	for i := range parents {
		for _, id := range util.GetTagValues(parents[i].Tags, "e") {
			if !have[id] {
				grandparentIDs = append(grandparentIDs, id)
				have[id] = true
			}
		}
	}
	ancestors := append(parents, p.fetchEventBatch(ctx, grandparentIDs)...)
	sort.Slice(ancestors, func(i, j int) bool {
		return ancestors[i].CreatedAt < ancestors[j].CreatedAt
	})

	replyFilter := Filter{
		Kinds: []int{KindTextNote},
		ETags: []string{eventID},
		Limit: 50,
	}
	replies, _ := fetchEventsFromRelays(ctx, p.Relays(), replyFilter, defaultQueryTimeout)
	sort.Slice(replies, func(i, j int) bool {
		return replies[i].CreatedAt < replies[j].CreatedAt
	})

	all := make([]Event, 0, len(ancestors)+1+len(replies))
	all = append(all, ancestors...)
	all = append(all, *target)
	all = append(all, replies...)
	notes := p.displayNotes(ctx, all)

	view := &ThreadView{
		Ancestry: notes[:len(ancestors)],
		Target:   notes[len(ancestors)],
		Replies:  notes[len(ancestors)+1:],
	}
	return view, nil
}

// fetchEventBatch fetches a set of events by id, silently skipping any
// that no relay returns.
func (p *RelayPool) fetchEventBatch(ctx context.Context, ids []string) []Event {
	if len(ids) == 0 {
		return nil
	}
	filter := Filter{
		IDs:   ids,
		Limit: len(ids),
	}
	events, _ := fetchEventsFromRelays(ctx, p.Relays(), filter, 5*time.Second)
	return events
}

// displayNotes hydrates raw events into the read model: author profile
// fields, repost unwrapping, reply classification, media extraction,
// and long-form rendering.
func (p *RelayPool) displayNotes(ctx context.Context, events []Event) []types.DisplayNote {
	if len(events) == 0 {
		return nil
	}

	pubkeySet := make(map[string]bool, len(events))
	for i := range events {
		pubkeySet[events[i].PubKey] = true
		if events[i].Kind == KindRepost {
			if orig := util.ExtractEmbeddedEventPubkey(events[i].Content); orig != "" {
				pubkeySet[orig] = true
			}
		}
	}
	profiles, err := p.Profiles(ctx, util.MapKeys(pubkeySet))
	if err != nil {
		profiles = nil
	}

	notes := make([]types.DisplayNote, 0, len(events))
	for i := range events {
		notes = append(notes, buildDisplayNote(&events[i], profiles))
	}
	return notes
}

func buildDisplayNote(evt *Event, profiles map[string]*ProfileInfo) types.DisplayNote {
	note := types.DisplayNote{
		ID:        evt.ID,
		PubKey:    evt.PubKey,
		CreatedAt: evt.CreatedAt,
		Kind:      evt.Kind,
		Content:   evt.Content,
	}

	if evt.Kind == KindRepost {
		note.IsRepost = true
		note.RepostedBy = evt.PubKey
		if orig := util.ExtractEmbeddedEventPubkey(evt.Content); orig != "" {
			note.PubKey = orig
		}
		if content := util.ExtractEmbeddedEventContent(evt.Content); content != "" {
			note.Content = content
		} else if evt.Content == "" {
			note.Content = "🔁 Reposted"
		}
	}

	if reply, parent := classifyReply(evt); reply {
		note.IsReply = true
		note.ReplyTo = parent
	}

	note.MediaURLs = extractMediaURLs(note.Content)

	if evt.Kind == KindLongForm {
		note.ContentHTML = RenderLongForm(note.Content)
	}

	if profile := profiles[note.PubKey]; profile != nil {
		note.AuthorName = profile.BestName()
		note.AuthorNip05 = profile.Nip05
		note.AuthorPic = profile.Picture
	}
	if note.AuthorName == "" {
		note.AuthorName = formatNpubShort(note.PubKey)
	}

	return note
}

// classifyReply decides whether a note is a reply rather than a quote
// post or root note, and returns the direct parent id when it is.
// NIP-10 markers are checked first; unmarked e-tags fall back to
// content-shape heuristics so quote posts stay in the main feed.
func classifyReply(evt *Event) (bool, string) {
	var parent string
	var hasMarker bool
	var eTagCount int
	var firstTagIsE bool

	for i, tag := range evt.Tags {
		if len(tag) < 2 || tag[0] != "e" {
			continue
		}
		eTagCount++
		parent = tag[1]
		if i == 0 {
			firstTagIsE = true
		}
		if len(tag) >= 4 && (tag[3] == "reply" || tag[3] == "root") {
			hasMarker = true
		}
	}
	if eTagCount == 0 {
		return false, ""
	}

	contentLen := len(evt.Content)
	if hasMarker && contentLen < 50 {
		return true, parent
	}

	if eTagCount > 1 || contentLen < 100 {
		if strings.HasPrefix(evt.Content, "@") || strings.HasPrefix(evt.Content, "nostr:npub") {
			return true, parent
		}
		if firstTagIsE && contentLen < 100 {
			return true, parent
		}
	}

	return false, ""
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>\[\]]+`)

var mediaExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp",
	".mp4", ".webm", ".mov",
}

// extractMediaURLs pulls image and video links out of note content.
func extractMediaURLs(content string) []string {
	var media []string
	for _, rawURL := range urlPattern.FindAllString(content, -1) {
		lower := strings.ToLower(rawURL)
		for _, ext := range mediaExtensions {
			if strings.HasSuffix(lower, ext) {
				media = append(media, rawURL)
				break
			}
		}
	}
	return media
}

// formatNpubShort renders a pubkey as an abbreviated npub for display
// when no profile name is available.
func formatNpubShort(pubkey string) string {
	npub, err := nips.EncodePubkey(pubkey)
	if err != nil || len(npub) <= 16 {
		if len(pubkey) > 8 {
			return pubkey[:8] + "..."
		}
		return pubkey
	}
	return npub[:8] + "..." + npub[len(npub)-4:]
}
