package capsule

import (
	"time"

	"github.com/hpungsan/heritage/internal/identity"
)

// Entry is one key/value pair of capsule contents or token metadata.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Capsule is a sealed content record with a future unlock time and visibility rule.
// Owner and UnlockTime are fixed at creation.
type Capsule struct {
	ID         uint64              `json:"id"`
	Owner      identity.Identity   `json:"owner"`
	Contents   []Entry             `json:"contents"`
	UnlockTime uint64              `json:"unlock_time"` // nanoseconds since epoch
	Recipients []identity.Identity `json:"recipients"`
	IsPublic   bool                `json:"is_public"`
}

// Token is the heritage token minted for a paid capsule.
// Owner is the only field that ever changes.
type Token struct {
	TokenID   uint64            `json:"token_id"`
	CapsuleID uint64            `json:"capsule_id"`
	Owner     identity.Identity `json:"owner"`
	Metadata  []Entry           `json:"metadata"`
}

// Purchase is an immutable record of a payment tied to a capsule id.
type Purchase struct {
	PurchaseID uint64            `json:"purchase_id"`
	Buyer      identity.Identity `json:"buyer"`
	Timestamp  uint64            `json:"timestamp"` // nanoseconds since epoch
	Amount     uint64            `json:"amount"`
	BlockIndex uint64            `json:"block_index"`
}

// UnixNanos converts t to nanoseconds since epoch, clamping pre-epoch times to zero.
func UnixNanos(t time.Time) uint64 {
	n := t.UnixNano()
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// HasRecipient reports whether id is one of the capsule's designated recipients.
func (c *Capsule) HasRecipient(id identity.Identity) bool {
	for _, r := range c.Recipients {
		if r == id {
			return true
		}
	}
	return false
}

// Normalize replaces nil slices with empty ones so every record
// serializes with the same shape.
func (c *Capsule) Normalize() {
	if c.Contents == nil {
		c.Contents = []Entry{}
	}
	if c.Recipients == nil {
		c.Recipients = []identity.Identity{}
	}
}

// Normalize replaces a nil metadata slice with an empty one.
func (t *Token) Normalize() {
	if t.Metadata == nil {
		t.Metadata = []Entry{}
	}
}
