package types

// DisplayNote is the JSON-ready read model for a feed or thread item.
// Author fields are hydrated from cached profiles.
type DisplayNote struct {
	ID          string   `json:"id"`
	PubKey      string   `json:"pubkey"`
	CreatedAt   int64    `json:"created_at"`
	Kind        int      `json:"kind"`
	Content     string   `json:"content"`
	ContentHTML string   `json:"content_html,omitempty"` // long-form only, sanitized
	AuthorName  string   `json:"author_name,omitempty"`
	AuthorNip05 string   `json:"author_nip05,omitempty"`
	AuthorPic   string   `json:"author_picture,omitempty"`
	IsReply     bool     `json:"is_reply,omitempty"`
	IsRepost    bool     `json:"is_repost,omitempty"`
	RepostedBy  string   `json:"reposted_by,omitempty"` // pubkey of the reposter
	ReplyTo     string   `json:"reply_to,omitempty"`    // parent event id
	MediaURLs   []string `json:"media_urls,omitempty"`
}

// DisplayNotification is the JSON-ready read model for a notification.
type DisplayNotification struct {
	ID            string           `json:"id"`
	Type          NotificationType `json:"type"`
	PubKey        string           `json:"pubkey"`
	AuthorName    string           `json:"author_name,omitempty"`
	CreatedAt     int64            `json:"created_at"`
	Content       string           `json:"content,omitempty"`
	TargetEventID string           `json:"target_event_id,omitempty"`
	ZapAmountSats int64            `json:"zap_amount_sats,omitempty"`
}
