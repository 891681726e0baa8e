package capsule

import (
	"time"

	"github.com/hpungsan/heritage/internal/identity"
)

// Decision is the outcome of the access gate.
type Decision int

const (
	Denied Decision = iota
	Allowed
)

func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "denied"
}

// Decide evaluates whether caller may read c at time now.
//
// Anonymous callers are always denied. Once the unlock time has passed anyone
// else may read; before that only the owner and designated recipients may.
// A nil capsule is denied.
func Decide(c *Capsule, caller identity.Identity, now time.Time) Decision {
	if c == nil || caller.IsAnonymous() {
		return Denied
	}
	if UnixNanos(now) >= c.UnlockTime {
		return Allowed
	}
	if caller == c.Owner {
		return Allowed
	}
	if c.HasRecipient(caller) {
		return Allowed
	}
	return Denied
}

// Redacted returns the sentinel record reported for both denied and missing
// capsules. The two cases must be indistinguishable to the caller.
func Redacted() Capsule {
	return Capsule{
		ID:         0,
		Owner:      identity.Placeholder,
		Contents:   []Entry{},
		UnlockTime: 0,
		Recipients: []identity.Identity{},
		IsPublic:   false,
	}
}

// View returns a copy of c if caller is allowed to read it, otherwise the sentinel.
func View(c *Capsule, caller identity.Identity, now time.Time) Capsule {
	if Decide(c, caller, now) == Denied {
		return Redacted()
	}
	out := *c
	out.Normalize()
	return out
}

// PubliclyVisible reports whether c belongs in the public listing.
// Listing is time-gated only; owners and recipients get no bypass.
func PubliclyVisible(c *Capsule, now time.Time) bool {
	return c != nil && c.IsPublic && UnixNanos(now) >= c.UnlockTime
}
