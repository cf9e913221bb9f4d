package types

// CachedEvent is a hot-tier cache entry for an ingested event
type CachedEvent struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	Content   string `json:"content"`
	Kind      int    `json:"kind"`
	CreatedAt int64  `json:"created_at"`
	TagsJSON  string `json:"tags_json"`
	CachedAt  int64  `json:"cached_at"`
}

// CachedProfile is a hot-tier cache entry for profile metadata
type CachedProfile struct {
	PubKey      string `json:"pubkey"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Nip05       string `json:"nip05,omitempty"`
	About       string `json:"about,omitempty"`
	Lud16       string `json:"lud16,omitempty"`
	Lud06       string `json:"lud06,omitempty"`
	CachedAt    int64  `json:"cached_at"`
	LastFetched int64  `json:"last_fetched"`
}

// BestName returns display_name if set, then name, else "".
func (p *CachedProfile) BestName() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

// ProfileRecord wraps profile data for durable-tier serialization
type ProfileRecord struct {
	Profile   *ProfileInfo `json:"profile,omitempty"`
	FetchedAt int64        `json:"fetched_at"`
	NotFound  bool         `json:"not_found"`
}

// ContactsRecord wraps a contact list for durable-tier serialization
type ContactsRecord struct {
	Pubkeys   []string `json:"pubkeys"`
	FetchedAt int64    `json:"fetched_at"`
}

// RelayListRecord wraps a relay list for durable-tier serialization
type RelayListRecord struct {
	RelayList *RelayList `json:"relay_list,omitempty"`
	FetchedAt int64      `json:"fetched_at"`
	NotFound  bool       `json:"not_found"`
}
