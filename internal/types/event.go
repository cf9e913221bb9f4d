// Package types provides shared type definitions used across internal packages.
package types

// Event represents a Nostr event (NIP-01)
type Event struct {
	ID         string     `json:"id"`
	PubKey     string     `json:"pubkey"`
	CreatedAt  int64      `json:"created_at"`
	Kind       int        `json:"kind"`
	Tags       [][]string `json:"tags"`
	Content    string     `json:"content"`
	Sig        string     `json:"sig"`
	RelaysSeen []string   `json:"-"`
}

// TagValues returns the second element of every tag with the given name.
func (e *Event) TagValues(name string) []string {
	var vals []string
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			vals = append(vals, tag[1])
		}
	}
	return vals
}

// LastTagValue returns the second element of the last tag with the given
// name, or "" if none. Reactions and zap receipts reference their target
// with the last e-tag.
func (e *Event) LastTagValue(name string) string {
	for i := len(e.Tags) - 1; i >= 0; i-- {
		if len(e.Tags[i]) >= 2 && e.Tags[i][0] == name {
			return e.Tags[i][1]
		}
	}
	return ""
}

// Filter represents a Nostr subscription filter (NIP-01)
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Limit   int
	Since   *int64
	Until   *int64
	ETags   []string // #e tag filter (event references)
	PTags   []string // #p tag filter (mentions)
}

// NostrMessage represents a raw Nostr protocol message
type NostrMessage []interface{}
