package capsule

import "fmt"

// Record kinds in a snapshot file.
const (
	KindCapsule  = "capsule"
	KindToken    = "token"
	KindPurchase = "purchase"
)

// SnapshotRecord represents one line of a JSONL snapshot.
// Exactly one of Capsule, Token, or Purchase is set, matching Kind.
type SnapshotRecord struct {
	// Header detection field - true only for header line
	HeritageSnapshot bool `json:"_heritage_snapshot,omitempty"`

	// Header fields (only present in header line)
	SchemaVersion string `json:"schema_version,omitempty"`
	ExportedAt    int64  `json:"exported_at,omitempty"`

	Kind     string    `json:"kind,omitempty"`
	Capsule  *Capsule  `json:"capsule,omitempty"`
	Token    *Token    `json:"token,omitempty"`
	Purchase *Purchase `json:"purchase,omitempty"`
}

// Validate checks that the record's payload matches its kind.
func (r *SnapshotRecord) Validate() error {
	switch r.Kind {
	case KindCapsule:
		if r.Capsule == nil {
			return fmt.Errorf("capsule record has no capsule")
		}
		if r.Capsule.ID == 0 {
			return fmt.Errorf("capsule record has no id")
		}
	case KindToken:
		if r.Token == nil {
			return fmt.Errorf("token record has no token")
		}
		if r.Token.TokenID != r.Token.CapsuleID {
			return fmt.Errorf("token %d does not match capsule %d", r.Token.TokenID, r.Token.CapsuleID)
		}
	case KindPurchase:
		if r.Purchase == nil {
			return fmt.Errorf("purchase record has no purchase")
		}
	default:
		return fmt.Errorf("unknown record kind %q", r.Kind)
	}
	return nil
}

// CapsuleRecord wraps a capsule for export.
func CapsuleRecord(c *Capsule) *SnapshotRecord {
	return &SnapshotRecord{Kind: KindCapsule, Capsule: c}
}

// TokenRecord wraps a token for export.
func TokenRecord(t *Token) *SnapshotRecord {
	return &SnapshotRecord{Kind: KindToken, Token: t}
}

// PurchaseRecord wraps a purchase for export.
func PurchaseRecord(p *Purchase) *SnapshotRecord {
	return &SnapshotRecord{Kind: KindPurchase, Purchase: p}
}
