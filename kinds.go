package main

// Nostr event kinds handled by the client
const (
	KindMetadata    = 0
	KindTextNote    = 1
	KindContacts    = 3
	KindEncryptedDM = 4 // NIP-04
	KindRepost      = 6
	KindReaction    = 7
	KindSeal        = 13 // NIP-59
	KindChatMessage = 14 // NIP-17 rumor
	KindGiftWrap    = 1059
	KindZapRequest  = 9734
	KindZapReceipt  = 9735
	KindRelayList   = 10002 // NIP-65
	KindClientAuth  = 22242 // NIP-42
	KindNWCRequest  = 23194
	KindNWCResponse = 23195
	KindLongForm    = 30023
)
