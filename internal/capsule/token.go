package capsule

import (
	"fmt"
	"strconv"

	"github.com/hpungsan/heritage/internal/identity"
)

// NewToken builds the heritage token minted for a paid capsule.
// The token id is the capsule id.
func NewToken(c *Capsule, owner identity.Identity, mintedAt uint64) *Token {
	return &Token{
		TokenID:   c.ID,
		CapsuleID: c.ID,
		Owner:     owner,
		Metadata: []Entry{
			{Key: "name", Value: fmt.Sprintf("Heritage Capsule #%d", c.ID)},
			{Key: "capsule_id", Value: strconv.FormatUint(c.ID, 10)},
			{Key: "unlock_time", Value: strconv.FormatUint(c.UnlockTime, 10)},
			{Key: "minted_at", Value: strconv.FormatUint(mintedAt, 10)},
		},
	}
}
