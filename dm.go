package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"nostr-client/internal/nostr"
	"nostr-client/internal/util"
)

// DmProtocol selects how a direct message is encrypted on the wire
type DmProtocol int

const (
	// DmNip04 is the legacy kind 4 AES-CBC scheme
	DmNip04 DmProtocol = iota
	// DmNip17 is the gift-wrapped kind 1059 scheme
	DmNip17
)

func (p DmProtocol) String() string {
	if p == DmNip04 {
		return "NIP-04"
	}
	return "NIP-17"
}

func (p DmProtocol) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// ConversationCategory organizes conversations into inbox tabs
type ConversationCategory int

const (
	CategoryRegular ConversationCategory = iota
	CategoryFavorites
	CategoryArchive
	CategoryUnfiltered
)

func (c ConversationCategory) String() string {
	switch c {
	case CategoryFavorites:
		return "favorites"
	case CategoryArchive:
		return "archive"
	case CategoryUnfiltered:
		return "unfiltered"
	}
	return "regular"
}

func (c ConversationCategory) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// ParseConversationCategory maps a stored category string back to its
// value. Unknown strings fall back to regular.
func ParseConversationCategory(s string) ConversationCategory {
	switch s {
	case "favorites":
		return CategoryFavorites
	case "archive":
		return CategoryArchive
	case "unfiltered":
		return CategoryUnfiltered
	}
	return CategoryRegular
}

// DmMessage is one decrypted direct message. Peer is the other side of
// the conversation regardless of direction.
type DmMessage struct {
	ID        string     `json:"id"`
	Peer      string     `json:"peer"`
	Content   string     `json:"content"`
	CreatedAt int64      `json:"created_at"`
	Outgoing  bool       `json:"outgoing"`
	Protocol  DmProtocol `json:"protocol"`
}

// DmConversation groups messages with a single peer
type DmConversation struct {
	Peer         string               `json:"peer"`
	PeerName     string               `json:"peer_name,omitempty"`
	PeerPicture  string               `json:"peer_picture,omitempty"`
	LastMessage  string               `json:"last_message,omitempty"`
	LastActivity int64                `json:"last_activity"`
	Unread       int                  `json:"unread"`
	Protocol     DmProtocol           `json:"protocol"`
	Messages     []DmMessage          `json:"messages,omitempty"`
	Category     ConversationCategory `json:"category"`
	HasOutgoing  bool                 `json:"has_outgoing"`
}

// EffectiveCategory is the category used for listing and counts. A
// regular conversation the user never replied to surfaces as unfiltered
// so strangers don't crowd the inbox.
func (c *DmConversation) EffectiveCategory() ConversationCategory {
	if c.Category == CategoryRegular && !c.HasOutgoing {
		return CategoryUnfiltered
	}
	return c.Category
}

// DmManager holds decrypted conversations for one user and persists
// category assignments across sessions. Safe for concurrent use.
type DmManager struct {
	mu            sync.RWMutex
	userPubkey    string
	dataDir       string
	conversations map[string]*DmConversation
}

// NewDmManager creates a manager for the given user and loads any saved
// category assignments from the data dir.
func NewDmManager(userPubkey, dataDir string) *DmManager {
	m := &DmManager{
		userPubkey:    userPubkey,
		dataDir:       dataDir,
		conversations: make(map[string]*DmConversation),
	}
	m.loadCategories()
	return m
}

func (m *DmManager) categoriesPath() string {
	if m.dataDir == "" || len(m.userPubkey) < 16 {
		return ""
	}
	return filepath.Join(m.dataDir, fmt.Sprintf("dm_categories_%s.json", m.userPubkey[:16]))
}

// loadCategories reads saved category assignments. A missing file is
// normal for first run.
func (m *DmManager) loadCategories() {
	path := m.categoriesPath()
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var saved map[string]string
	if err := json.Unmarshal(data, &saved); err != nil {
		slog.Warn("unreadable dm categories file", "path", path, "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for peer, cat := range saved {
		convo := m.getOrCreateLocked(peer, DmNip17)
		convo.Category = ParseConversationCategory(cat)
	}
	slog.Debug("loaded dm categories", "count", len(saved))
}

// saveCategoriesLocked writes non-regular assignments to disk. Caller
// holds the lock.
func (m *DmManager) saveCategoriesLocked() {
	path := m.categoriesPath()
	if path == "" {
		return
	}

	saved := make(map[string]string)
	for peer, convo := range m.conversations {
		if convo.Category != CategoryRegular {
			saved[peer] = convo.Category.String()
		}
	}

	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Error("failed to create dm data dir", "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		slog.Error("failed to save dm categories", "error", err)
	}
}

func (m *DmManager) getOrCreateLocked(peer string, protocol DmProtocol) *DmConversation {
	convo, ok := m.conversations[peer]
	if !ok {
		convo = &DmConversation{Peer: peer, Protocol: protocol}
		m.conversations[peer] = convo
	}
	return convo
}

// AddMessage inserts a message into its peer conversation. Duplicate
// event ids are ignored; messages stay sorted ascending by time.
func (m *DmManager) AddMessage(msg DmMessage) {
	if msg.Peer == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	convo := m.getOrCreateLocked(msg.Peer, msg.Protocol)
	for i := range convo.Messages {
		if convo.Messages[i].ID == msg.ID {
			return
		}
	}

	if msg.Outgoing {
		convo.HasOutgoing = true
	} else {
		convo.Unread++
	}
	if msg.CreatedAt > convo.LastActivity {
		convo.LastMessage = util.TruncateStringRunes(msg.Content, 50)
		convo.LastActivity = msg.CreatedAt
	}
	convo.Messages = append(convo.Messages, msg)
	sort.Slice(convo.Messages, func(i, j int) bool {
		return convo.Messages[i].CreatedAt < convo.Messages[j].CreatedAt
	})

	if !msg.Outgoing {
		publishUpdate(UpdateDmReceived, msg.Peer)
	}
}

// Conversations returns all conversations sorted by most recent activity.
func (m *DmManager) Conversations() []*DmConversation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked(func(*DmConversation) bool { return true })
}

// ConversationsByCategory filters by effective category.
func (m *DmManager) ConversationsByCategory(cat ConversationCategory) []*DmConversation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked(func(c *DmConversation) bool {
		return c.EffectiveCategory() == cat
	})
}

func (m *DmManager) sortedLocked(keep func(*DmConversation) bool) []*DmConversation {
	var convos []*DmConversation
	for _, c := range m.conversations {
		if keep(c) {
			convos = append(convos, c)
		}
	}
	sort.Slice(convos, func(i, j int) bool {
		return convos[i].LastActivity > convos[j].LastActivity
	})
	return convos
}

// CategoryCounts tallies conversations per effective category.
func (m *DmManager) CategoryCounts() map[ConversationCategory]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[ConversationCategory]int)
	for _, c := range m.conversations {
		counts[c.EffectiveCategory()]++
	}
	return counts
}

// SetCategory assigns a conversation to a category and persists the
// assignment.
func (m *DmManager) SetCategory(peer string, cat ConversationCategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	convo, ok := m.conversations[peer]
	if !ok {
		return fmt.Errorf("no conversation with %s", nostr.ShortID(peer))
	}
	convo.Category = cat
	m.saveCategoriesLocked()
	return nil
}

// SetProtocol selects the wire protocol for future sends to a peer,
// creating the conversation if none exists yet. Messages already
// decrypted keep the protocol they arrived with.
func (m *DmManager) SetProtocol(peer string, protocol DmProtocol) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreateLocked(peer, protocol).Protocol = protocol
}

// protocolFor returns the conversation's selected protocol. New peers
// default to gift wrapping.
func (m *DmManager) protocolFor(peer string) DmProtocol {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if convo, ok := m.conversations[peer]; ok {
		return convo.Protocol
	}
	return DmNip17
}

// Conversation returns the conversation with the given peer.
func (m *DmManager) Conversation(peer string) (*DmConversation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	convo, ok := m.conversations[peer]
	return convo, ok
}

// MarkRead clears the unread counter for a peer.
func (m *DmManager) MarkRead(peer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if convo, ok := m.conversations[peer]; ok {
		convo.Unread = 0
	}
}

// TotalUnread sums unread counters across conversations.
func (m *DmManager) TotalUnread() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, c := range m.conversations {
		total += c.Unread
	}
	return total
}

// UpdatePeerProfile attaches display info to a conversation.
func (m *DmManager) UpdatePeerProfile(peer, name, picture string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if convo, ok := m.conversations[peer]; ok {
		convo.PeerName = name
		convo.PeerPicture = picture
	}
}

const (
	nip04FetchTimeout = 8 * time.Second
	nip17FetchTimeout = 15 * time.Second
	dmFetchLimit      = 100
)

// FetchMessages pulls both DM generations from the pool: kind 4 in both
// directions and kind 1059 gift wraps addressed to the user. Decrypted
// messages land in the manager; undecryptable ones get a placeholder.
func (m *DmManager) FetchMessages(ctx context.Context, p *RelayPool) error {
	if err := p.ensureConnected(); err != nil {
		return err
	}
	relays := p.Relays()

	var nip04Incoming, nip04Outgoing, giftWraps []Event
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		f := Filter{Kinds: []int{KindEncryptedDM}, PTags: []string{m.userPubkey}, Limit: dmFetchLimit}
		nip04Incoming, _ = fetchEventsFromRelays(ctx, relays, f, nip04FetchTimeout)
	}()
	go func() {
		defer wg.Done()
		f := Filter{Kinds: []int{KindEncryptedDM}, Authors: []string{m.userPubkey}, Limit: dmFetchLimit}
		nip04Outgoing, _ = fetchEventsFromRelays(ctx, relays, f, nip04FetchTimeout)
	}()
	go func() {
		defer wg.Done()
		f := Filter{Kinds: []int{KindGiftWrap}, PTags: []string{m.userPubkey}, Limit: dmFetchLimit}
		giftWraps, _ = fetchEventsFromRelays(ctx, relays, f, nip17FetchTimeout)
	}()
	wg.Wait()

	for _, batch := range [][]Event{nip04Incoming, nip04Outgoing} {
		for i := range batch {
			m.ingestNip04(ctx, &batch[i])
		}
	}
	for i := range giftWraps {
		m.ingestGiftWrap(ctx, &giftWraps[i])
	}

	slog.Info("fetched dms",
		"nip04", len(nip04Incoming)+len(nip04Outgoing),
		"nip17", len(giftWraps))
	return nil
}

// ingestNip04 decrypts a kind 4 event and adds it to the right
// conversation. Peer is the author for incoming, the p-tag for outgoing.
func (m *DmManager) ingestNip04(ctx context.Context, evt *Event) {
	outgoing := evt.PubKey == m.userPubkey
	peer := evt.PubKey
	if outgoing {
		peer = util.GetTagValue(evt.Tags, "p")
	}
	if peer == "" {
		return
	}

	m.AddMessage(DmMessage{
		ID:        evt.ID,
		Peer:      peer,
		Content:   m.decryptNip04(ctx, peer, evt.Content),
		CreatedAt: evt.CreatedAt,
		Outgoing:  outgoing,
		Protocol:  DmNip04,
	})
}

// ingestGiftWrap unwraps kind 1059 → seal → rumor and adds the rumor as
// a chat message. Any decryption failure downgrades to the placeholder
// rather than dropping the conversation.
func (m *DmManager) ingestGiftWrap(ctx context.Context, wrap *Event) {
	signer, err := ActiveSigner(ctx)
	if err != nil {
		return
	}

	sealJSON, err := signer.Nip44Decrypt(ctx, wrap.PubKey, wrap.Content)
	if err != nil {
		slog.Debug("gift wrap decrypt failed", "event", nostr.ShortID(wrap.ID))
		m.addEncryptedPlaceholder(wrap)
		return
	}
	var seal Event
	if err := json.Unmarshal([]byte(sealJSON), &seal); err != nil || seal.Kind != KindSeal {
		return
	}

	rumorJSON, err := signer.Nip44Decrypt(ctx, seal.PubKey, seal.Content)
	if err != nil {
		m.addEncryptedPlaceholder(wrap)
		return
	}
	var rumor Event
	if err := json.Unmarshal([]byte(rumorJSON), &rumor); err != nil || rumor.Kind != KindChatMessage {
		return
	}

	outgoing := rumor.PubKey == m.userPubkey
	peer := rumor.PubKey
	if outgoing {
		peer = util.GetTagValue(rumor.Tags, "p")
	}
	if peer == "" {
		return
	}

	id := rumor.ID
	if id == "" {
		id = wrap.ID
	}
	m.AddMessage(DmMessage{
		ID:        id,
		Peer:      peer,
		Content:   rumor.Content,
		CreatedAt: rumor.CreatedAt,
		Outgoing:  outgoing,
		Protocol:  DmNip17,
	})
}

func (m *DmManager) addEncryptedPlaceholder(wrap *Event) {
	m.AddMessage(DmMessage{
		ID:        wrap.ID,
		Peer:      wrap.PubKey,
		Content:   "[Encrypted message]",
		CreatedAt: wrap.CreatedAt,
		Outgoing:  false,
		Protocol:  DmNip17,
	})
}

// decryptNip04 tries the active signer; failures yield a placeholder so
// the conversation still renders.
func (m *DmManager) decryptNip04(ctx context.Context, peer, ciphertext string) string {
	signer, err := ActiveSigner(ctx)
	if err != nil {
		return "[Encrypted message]"
	}
	plaintext, err := signer.Nip04Decrypt(ctx, peer, ciphertext)
	if err != nil {
		return "[Encrypted message]"
	}
	return plaintext
}

// SendMessage publishes a DM with the conversation's selected protocol.
func (m *DmManager) SendMessage(ctx context.Context, p *RelayPool, peer, content string) error {
	return m.SendMessageWith(ctx, p, peer, content, m.protocolFor(peer))
}

// SendMessageWith encrypts, signs, and publishes a DM with an explicit
// protocol, then appends it locally without waiting for the relays to
// echo it back.
func (m *DmManager) SendMessageWith(ctx context.Context, p *RelayPool, peer, content string, protocol DmProtocol) error {
	signer, err := ActiveSigner(ctx)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	var ev *Event
	switch protocol {
	case DmNip04:
		ev, err = buildNip04DM(ctx, signer, peer, content, now)
	case DmNip17:
		ev, err = buildGiftWrappedDM(ctx, signer, m.userPubkey, peer, content, now)
	default:
		return fmt.Errorf("unknown dm protocol %d", protocol)
	}
	if err != nil {
		return err
	}

	if err := p.PublishEvent(ctx, ev); err != nil {
		return fmt.Errorf("publish dm: %w", err)
	}

	m.AddMessage(DmMessage{
		ID:        ev.ID,
		Peer:      peer,
		Content:   content,
		CreatedAt: now,
		Outgoing:  true,
		Protocol:  protocol,
	})
	return nil
}

func buildNip04DM(ctx context.Context, signer Signer, peer, content string, now int64) (*Event, error) {
	encrypted, err := signer.Nip04Encrypt(ctx, peer, content)
	if err != nil {
		return nil, fmt.Errorf("nip04 encrypt: %w", err)
	}
	ev := &Event{
		Kind:      KindEncryptedDM,
		CreatedAt: now,
		Tags:      [][]string{{"p", peer}},
		Content:   encrypted,
	}
	if err := signer.SignEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("sign dm: %w", err)
	}
	return ev, nil
}

// buildGiftWrappedDM runs the NIP-17 layering: unsigned kind 14 rumor,
// NIP-44 sealed as kind 13 by the sender, then wrapped in kind 1059
// signed by a throwaway key. Seal and wrap timestamps are backdated up
// to two days so relay metadata doesn't leak send times.
func buildGiftWrappedDM(ctx context.Context, signer Signer, userPubkey, peer, content string, now int64) (*Event, error) {
	rumor := &Event{
		PubKey:    userPubkey,
		Kind:      KindChatMessage,
		CreatedAt: now,
		Tags:      [][]string{{"p", peer}},
		Content:   content,
	}
	rumor.ID = nostr.CalculateEventID(rumor)
	rumorJSON, err := json.Marshal(rumor)
	if err != nil {
		return nil, err
	}

	sealedContent, err := signer.Nip44Encrypt(ctx, peer, string(rumorJSON))
	if err != nil {
		return nil, fmt.Errorf("seal encrypt: %w", err)
	}
	seal := &Event{
		Kind:      KindSeal,
		CreatedAt: backdatedTimestamp(now),
		Tags:      [][]string{},
		Content:   sealedContent,
	}
	if err := signer.SignEvent(ctx, seal); err != nil {
		return nil, fmt.Errorf("sign seal: %w", err)
	}
	sealJSON, err := json.Marshal(seal)
	if err != nil {
		return nil, err
	}

	wrapKey, err := GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("wrap key: %w", err)
	}
	peerKey, err := hex.DecodeString(peer)
	if err != nil || len(peerKey) != 32 {
		return nil, fmt.Errorf("invalid peer pubkey %q", nostr.ShortID(peer))
	}
	convKey, err := GetConversationKey(wrapKey, peerKey)
	if err != nil {
		return nil, fmt.Errorf("wrap conversation key: %w", err)
	}
	wrappedContent, err := Nip44Encrypt(string(sealJSON), convKey)
	if err != nil {
		return nil, fmt.Errorf("wrap encrypt: %w", err)
	}

	wrap := &Event{
		Kind:      KindGiftWrap,
		CreatedAt: backdatedTimestamp(now),
		Tags:      [][]string{{"p", peer}},
		Content:   wrappedContent,
	}
	if err := nostr.SignEvent(wrapKey, wrap); err != nil {
		return nil, fmt.Errorf("sign wrap: %w", err)
	}
	return wrap, nil
}

// backdatedTimestamp returns a timestamp up to two days before now.
func backdatedTimestamp(now int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(2*86400))
	if err != nil {
		return now
	}
	return now - n.Int64()
}
