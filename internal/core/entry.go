package core

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// LedgerEntry is a canonical, immutable financial transaction. Corrections are
// modeled as new offsetting entries; an entry is never mutated after creation.
type LedgerEntry struct {
	EntryID  string    `json:"entry_id"`
	Date     time.Time `json:"date"`
	Amount   Money     `json:"amount"`
	Category Category  `json:"category"`
	Vendor   string    `json:"vendor,omitempty"`
	Source   string    `json:"source"`
	RawRef   string    `json:"raw_ref"`
}

// EntryID derives the stable ledger identity for a record. It is a pure
// function of the source name and the source-native transaction id, so
// re-ingesting the same extract always yields the same identity and the
// ledger append naturally deduplicates.
func EntryID(source, nativeID string) string {
	sum := sha256.Sum256([]byte(source + ":" + nativeID))
	return hex.EncodeToString(sum[:])[:32]
}

// RawRef formats the audit back-reference to the originating record. It is
// never used for computation.
func RawRef(source, nativeID string) string {
	return source + ":" + nativeID
}
