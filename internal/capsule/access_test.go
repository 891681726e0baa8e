package capsule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/heritage/internal/identity"
)

var (
	owner     = identity.FromBytes([]byte{1})
	recipient = identity.FromBytes([]byte{2})
	stranger  = identity.FromBytes([]byte{3})
)

// sealedAt returns a capsule that unlocks at the given time.
func sealedAt(unlock time.Time) *Capsule {
	return &Capsule{
		ID:         2,
		Owner:      owner,
		Contents:   []Entry{{Key: "m", Value: "hi"}},
		UnlockTime: UnixNanos(unlock),
		Recipients: []identity.Identity{recipient},
	}
}

func TestDecide(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	locked := sealedAt(now.Add(time.Hour))
	unlocked := sealedAt(now.Add(-time.Hour))
	exact := sealedAt(now)

	tests := []struct {
		name    string
		capsule *Capsule
		caller  identity.Identity
		want    Decision
	}{
		{"anonymous before unlock", locked, identity.Anonymous, Denied},
		{"anonymous after unlock", unlocked, identity.Anonymous, Denied},
		{"absent caller", unlocked, "", Denied},
		{"owner before unlock", locked, owner, Allowed},
		{"recipient before unlock", locked, recipient, Allowed},
		{"stranger before unlock", locked, stranger, Denied},
		{"stranger after unlock", unlocked, stranger, Allowed},
		{"stranger at unlock instant", exact, stranger, Allowed},
		{"nil capsule", nil, owner, Denied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.capsule, tt.caller, now))
		})
	}
}

func TestDecide_OwnerAlwaysAllowed(t *testing.T) {
	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c := sealedAt(base)
	for _, offset := range []time.Duration{-24 * time.Hour, -time.Nanosecond, 0, time.Nanosecond, 24 * time.Hour} {
		assert.Equal(t, Allowed, Decide(c, owner, base.Add(offset)), "offset %v", offset)
	}
}

func TestView_RedactsDenied(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c := sealedAt(now.Add(time.Second))

	got := View(c, stranger, now)
	assert.Equal(t, Redacted(), got)

	got = View(c, owner, now)
	assert.Equal(t, *c, got)
}

func TestView_DeniedMatchesNotFound(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	denied, err := json.Marshal(View(sealedAt(now.Add(time.Hour)), stranger, now))
	require.NoError(t, err)
	missing, err := json.Marshal(View(nil, stranger, now))
	require.NoError(t, err)

	assert.Equal(t, string(missing), string(denied))
}

func TestView_NormalizesEmptySlices(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Capsule{ID: 9, Owner: owner, UnlockTime: 0}

	got := View(c, stranger, now)
	assert.NotNil(t, got.Contents)
	assert.NotNil(t, got.Recipients)
	assert.Nil(t, c.Contents, "View must not mutate the stored record")
}

func TestRedacted_Golden(t *testing.T) {
	data, err := json.MarshalIndent(Redacted(), "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "redacted", data)
}

func TestPubliclyVisible(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	public := sealedAt(now.Add(-time.Minute))
	public.IsPublic = true
	assert.True(t, PubliclyVisible(public, now))

	future := sealedAt(now.Add(time.Minute))
	future.IsPublic = true
	assert.False(t, PubliclyVisible(future, now), "not yet unlocked")

	private := sealedAt(now.Add(-time.Minute))
	assert.False(t, PubliclyVisible(private, now), "not public")

	assert.False(t, PubliclyVisible(nil, now))
}

func TestUnixNanos_ClampsPreEpoch(t *testing.T) {
	assert.Equal(t, uint64(0), UnixNanos(time.Unix(-10, 0)))
	assert.Equal(t, uint64(1_500_000_000), UnixNanos(time.Unix(1, 500_000_000)))
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "allowed", Allowed.String())
	assert.Equal(t, "denied", Denied.String())
}
