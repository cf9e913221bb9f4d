package main

import (
	"strings"
	"testing"
)

func TestMergeEventsDesc(t *testing.T) {
	a := []Event{
		{ID: "aa", CreatedAt: 300},
		{ID: "bb", CreatedAt: 100},
	}
	b := []Event{
		{ID: "cc", CreatedAt: 200},
		{ID: "aa", CreatedAt: 300}, // duplicate across batches
	}

	merged := mergeEventsDesc(a, b)
	if len(merged) != 3 {
		t.Fatalf("expected 3 events after dedup, got %d", len(merged))
	}
	for i := 1; i < len(merged); i++ {
		if merged[i-1].CreatedAt < merged[i].CreatedAt {
			t.Errorf("events not sorted newest first: %v before %v", merged[i-1], merged[i])
		}
	}
	if merged[0].ID != "aa" || merged[2].ID != "bb" {
		t.Errorf("unexpected order: %v", merged)
	}
}

func TestMergeEventsDescTieBreak(t *testing.T) {
	a := []Event{{ID: "zz", CreatedAt: 100}}
	b := []Event{{ID: "aa", CreatedAt: 100}}

	merged := mergeEventsDesc(a, b)
	if merged[0].ID != "aa" {
		t.Errorf("equal timestamps should order by id ascending, got %v first", merged[0].ID)
	}
}

func TestDropKnownEvents(t *testing.T) {
	events := []Event{
		{ID: "e1"}, {ID: "e2"}, {ID: "e3"},
	}

	fresh := dropKnownEvents(events, []string{"e2"})
	if len(fresh) != 2 {
		t.Fatalf("expected 2 fresh events, got %d", len(fresh))
	}
	for _, ev := range fresh {
		if ev.ID == "e2" {
			t.Error("known event should have been dropped")
		}
	}

	// No known ids means no filtering
	all := dropKnownEvents([]Event{{ID: "e1"}}, nil)
	if len(all) != 1 {
		t.Errorf("nil known list should pass everything through")
	}
}

func TestClassifyReply(t *testing.T) {
	parent := "parent-event-id"

	tests := []struct {
		name    string
		evt     Event
		isReply bool
	}{
		{
			name:    "no e-tags is never a reply",
			evt:     Event{Content: "hello world"},
			isReply: false,
		},
		{
			name: "marked reply with short content",
			evt: Event{
				Tags:    [][]string{{"e", parent, "", "reply"}},
				Content: "yes, agreed",
			},
			isReply: true,
		},
		{
			name: "root marker counts too",
			evt: Event{
				Tags:    [][]string{{"e", parent, "", "root"}},
				Content: "nice",
			},
			isReply: true,
		},
		{
			name: "marked but long content is a quote post",
			evt: Event{
				Tags:    [][]string{{"e", parent, "", "reply"}},
				Content: strings.Repeat("a long opinion about this note ", 5),
			},
			isReply: false,
		},
		{
			name: "unmarked mention-style reply",
			evt: Event{
				Tags:    [][]string{{"p", "someone"}, {"e", parent}},
				Content: "@jack sure thing",
			},
			isReply: true,
		},
		{
			name: "unmarked nostr:npub prefix",
			evt: Event{
				Tags:    [][]string{{"e", parent}, {"e", "root-id"}},
				Content: "nostr:npub1xyz replying to this",
			},
			isReply: true,
		},
		{
			name: "first tag e with short content",
			evt: Event{
				Tags:    [][]string{{"e", parent}},
				Content: "short comment",
			},
			isReply: true,
		},
		{
			name: "long content with one unmarked e-tag is a quote",
			evt: Event{
				Tags:    [][]string{{"e", parent}},
				Content: strings.Repeat("sharing this interesting note with my thoughts ", 4),
			},
			isReply: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			isReply, gotParent := classifyReply(&tc.evt)
			if isReply != tc.isReply {
				t.Errorf("classifyReply = %v, want %v", isReply, tc.isReply)
			}
			if isReply && gotParent == "" {
				t.Error("reply should carry its parent id")
			}
		})
	}
}

func TestClassifyReplyParentIsLastETag(t *testing.T) {
	evt := Event{
		Tags: [][]string{
			{"e", "root-id", "", "root"},
			{"e", "direct-parent", "", "reply"},
		},
		Content: "replying here",
	}
	isReply, parent := classifyReply(&evt)
	if !isReply {
		t.Fatal("expected a reply")
	}
	if parent != "direct-parent" {
		t.Errorf("parent = %q, want the last e-tag", parent)
	}
}

func TestExtractMediaURLs(t *testing.T) {
	content := "check this https://img.example.com/cat.JPG and this " +
		"https://vid.example.com/clip.mp4 but not https://example.com/page.html"

	media := extractMediaURLs(content)
	if len(media) != 2 {
		t.Fatalf("expected 2 media urls, got %d: %v", len(media), media)
	}
	if media[0] != "https://img.example.com/cat.JPG" {
		t.Errorf("image url mismatch: %q", media[0])
	}
	if media[1] != "https://vid.example.com/clip.mp4" {
		t.Errorf("video url mismatch: %q", media[1])
	}
}

func TestBuildDisplayNoteRepost(t *testing.T) {
	embedded := `{"id":"orig-id","pubkey":"7777777777777777777777777777777777777777777777777777777777777777","kind":1,"content":"the original note","tags":[]}`
	evt := Event{
		ID:        "repost-id",
		PubKey:    "8888888888888888888888888888888888888888888888888888888888888888",
		Kind:      KindRepost,
		CreatedAt: 1000,
		Content:   embedded,
	}

	note := buildDisplayNote(&evt, nil)
	if !note.IsRepost {
		t.Fatal("kind 6 should be flagged as repost")
	}
	if note.RepostedBy != evt.PubKey {
		t.Errorf("reposted-by = %q, want the reposter", note.RepostedBy)
	}
	if note.PubKey != "7777777777777777777777777777777777777777777777777777777777777777" {
		t.Errorf("note author should be the embedded original author, got %q", note.PubKey)
	}
	if note.Content != "the original note" {
		t.Errorf("content should be unwrapped, got %q", note.Content)
	}
}

func TestBuildDisplayNoteEmptyRepost(t *testing.T) {
	evt := Event{
		ID:     "repost-empty",
		PubKey: "9999999999999999999999999999999999999999999999999999999999999999",
		Kind:   KindRepost,
	}
	note := buildDisplayNote(&evt, nil)
	if note.Content != "🔁 Reposted" {
		t.Errorf("empty repost should get the fallback label, got %q", note.Content)
	}
}

func TestFormatNpubShort(t *testing.T) {
	pubkey := "82341f882b6eabcd2ba7f1ef90aad961cf074af15b9ef44a09f9d2a8fbfbe6a2"
	short := formatNpubShort(pubkey)
	if !strings.HasPrefix(short, "npub1") {
		t.Errorf("short form should start with npub1, got %q", short)
	}
	if !strings.Contains(short, "...") {
		t.Errorf("short form should be abbreviated, got %q", short)
	}

	// Invalid input falls back to truncated hex
	if got := formatNpubShort("deadbeef00"); !strings.HasPrefix(got, "deadbeef") {
		t.Errorf("fallback = %q", got)
	}
}
