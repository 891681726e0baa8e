package ops

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/heritage/internal/config"
	"github.com/hpungsan/heritage/internal/db"
	"github.com/hpungsan/heritage/internal/identity"
	"github.com/hpungsan/heritage/internal/ledger"
)

var (
	alice    = identity.FromBytes([]byte{0xA1})
	bob      = identity.FromBytes([]byte{0xB0})
	carol    = identity.FromBytes([]byte{0xC0})
	treasury = identity.FromBytes([]byte{0x7E, 0x45})
)

const (
	startingBalance = 1_000_000_000
	testContents    = `[{"key":"letter","value":"open me later"}]`
)

var testStart = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeClock is a settable clock for Service.Now.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type testEnv struct {
	svc    *Service
	ledger *ledger.Memory
	clock  *fakeClock
}

// newTestEnv opens a fresh database and an in-process ledger where alice holds funds.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	baseDir := t.TempDir()
	database, err := db.Init(baseDir)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.BaseDir = baseDir
	cfg.TreasuryAccount = treasury.String()

	mem := ledger.NewMemory(ledger.MemoryOptions{
		Balances: map[identity.Identity]uint64{alice: startingBalance},
	})
	clock := &fakeClock{t: testStart}

	svc := NewService(database, mem, cfg, nil)
	svc.Now = clock.Now
	return &testEnv{svc: svc, ledger: mem, clock: clock}
}

// unlockIn returns an unlock_time_ms string d after the test start.
func unlockIn(d time.Duration) string {
	return strconv.FormatInt(testStart.Add(d).UnixMilli(), 10)
}

func createInput(caller identity.Identity) CreateInput {
	return CreateInput{
		Caller:       caller,
		Contents:     testContents,
		UnlockTimeMs: unlockIn(time.Hour),
		Recipients:   []string{carol.String()},
	}
}
