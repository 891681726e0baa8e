package ops

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/heritage/internal/config"
	"github.com/hpungsan/heritage/internal/db"
	"github.com/hpungsan/heritage/internal/errors"
	"github.com/hpungsan/heritage/internal/identity"
	"github.com/hpungsan/heritage/internal/ledger"
)

func purchaseInput(caller identity.Identity) PurchaseInput {
	return PurchaseInput{CreateInput: createInput(caller)}
}

func TestPurchaseCapsule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	price := config.DefaultCapsulePrice

	out, err := PurchaseCapsule(ctx, env.svc, purchaseInput(alice))
	require.NoError(t, err)
	assert.Equal(t, uint64(db.SequenceSeed+1), out.ID)
	assert.Equal(t, uint64(price), out.Amount)
	assert.NotEmpty(t, out.AttemptID)

	// Capsule, token and purchase share the id
	c, err := db.GetCapsule(ctx, env.svc.DB, out.ID)
	require.NoError(t, err)
	assert.Equal(t, alice, c.Owner)

	tok, err := db.GetToken(ctx, env.svc.DB, out.ID)
	require.NoError(t, err)
	assert.Equal(t, out.ID, tok.CapsuleID)
	assert.Equal(t, alice, tok.Owner)

	purchases, err := GetUserPurchases(ctx, env.svc, alice)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, out.ID, purchases[0].PurchaseID)
	assert.Equal(t, out.BlockIndex, purchases[0].BlockIndex)
	assert.Equal(t, uint64(price), purchases[0].Amount)

	// Payment went to the treasury, tagged with the attempt id
	transfers := env.ledger.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, alice, transfers[0].From)
	assert.Equal(t, treasury, transfers[0].To)
	assert.Equal(t, out.AttemptID, string(transfers[0].Memo))

	bal, err := env.ledger.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(startingBalance-price-ledger.DefaultFee), bal)
	bal, err = env.ledger.BalanceOf(ctx, treasury)
	require.NoError(t, err)
	assert.Equal(t, uint64(price), bal)
}

func TestPurchaseCapsule_InsufficientFundsWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := PurchaseCapsule(ctx, env.svc, purchaseInput(bob))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLedgerTransferFailed), "got %v", err)
	assert.Contains(t, err.Error(), "insufficient funds")

	n, err := db.CountCapsules(ctx, env.svc.DB)
	require.NoError(t, err)
	assert.Zero(t, n)
	tokens, err := db.ListTokens(ctx, env.svc.DB)
	require.NoError(t, err)
	assert.Empty(t, tokens)
	purchases, err := GetUserPurchases(ctx, env.svc, bob)
	require.NoError(t, err)
	assert.Empty(t, purchases)

	bal, err := env.ledger.BalanceOf(ctx, bob)
	require.NoError(t, err)
	assert.Zero(t, bal)

	// The reserved id is burned, not handed out again
	out, err := CreateCapsule(ctx, env.svc, createInput(alice))
	require.NoError(t, err)
	assert.Equal(t, uint64(db.SequenceSeed+2), out.ID)
}

func TestPurchaseCapsule_LedgerRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ledger.FailNextTransfer(ledger.NewTransferError(ledger.KindTemporarilyUnavailable, "try later"))
	_, err := PurchaseCapsule(ctx, env.svc, purchaseInput(alice))
	assert.True(t, errors.Is(err, errors.ErrLedgerTransferFailed), "got %v", err)

	env.ledger.SetUnavailable(stderrors.New("connection refused"))
	_, err = PurchaseCapsule(ctx, env.svc, purchaseInput(alice))
	assert.True(t, errors.Is(err, errors.ErrLedgerTransferFailed), "got %v", err)

	n, err := db.CountCapsules(ctx, env.svc.DB)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.ledger.SetUnavailable(nil)
	bal, err := env.ledger.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(startingBalance), bal)
}

func TestPurchaseCapsule_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Service, in *PurchaseInput)
		code   errors.ErrorCode
	}{
		{"anonymous caller", func(_ *Service, in *PurchaseInput) { in.Caller = identity.Anonymous }, errors.ErrUnauthenticated},
		{"bad contents", func(_ *Service, in *PurchaseInput) { in.Contents = "" }, errors.ErrInvalidRequest},
		{"target not treasury", func(_ *Service, in *PurchaseInput) { in.PaymentTarget = bob.String() }, errors.ErrInvalidRequest},
		{"malformed target", func(_ *Service, in *PurchaseInput) { in.PaymentTarget = "treasury" }, errors.ErrInvalidRequest},
		{"no target configured", func(s *Service, _ *PurchaseInput) { s.Config.TreasuryAccount = "" }, errors.ErrInvalidRequest},
		{"anonymous target", func(s *Service, in *PurchaseInput) {
			s.Config.TreasuryAccount = ""
			in.PaymentTarget = identity.Anonymous.String()
		}, errors.ErrInvalidRequest},
		{"ledger ref mismatch", func(s *Service, in *PurchaseInput) {
			s.Config.LedgerRef = "ryjl3-tyaaa-aaaaa-aaaba-cai"
			in.LedgerRef = "mxzaz-hqaaa-aaaar-qaada-cai"
		}, errors.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			in := purchaseInput(alice)
			tt.mutate(env.svc, &in)

			_, err := PurchaseCapsule(context.Background(), env.svc, in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.code), "got %v, want %s", err, tt.code)
			assert.Empty(t, env.ledger.Transfers(), "no payment on validation failure")
		})
	}
}

func TestPurchaseCapsule_ExplicitTargetWithoutTreasury(t *testing.T) {
	env := newTestEnv(t)
	env.svc.Config.TreasuryAccount = ""
	env.svc.Config.LedgerRef = "ryjl3-tyaaa-aaaaa-aaaba-cai"

	in := purchaseInput(alice)
	in.PaymentTarget = bob.String()
	in.LedgerRef = "ryjl3-tyaaa-aaaaa-aaaba-cai"
	_, err := PurchaseCapsule(context.Background(), env.svc, in)
	require.NoError(t, err)

	bal, err := env.ledger.BalanceOf(context.Background(), bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(config.DefaultCapsulePrice), bal)
}

// newMockService runs the service against sqlmock so the local commit can be made to fail.
func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock, *ledger.Memory) {
	t.Helper()
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.TreasuryAccount = treasury.String()
	mem := ledger.NewMemory(ledger.MemoryOptions{
		Balances: map[identity.Identity]uint64{alice: startingBalance},
	})
	clock := &fakeClock{t: testStart}
	svc := NewService(database, mem, cfg, nil)
	svc.Now = clock.Now
	return svc, mock, mem
}

func expectPurchaseWrites(mock sqlmock.Sqlmock, id int64) {
	mock.ExpectQuery("UPDATE id_sequence").
		WillReturnRows(sqlmock.NewRows([]string{"last_id"}).AddRow(id))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO purchases").WillReturnResult(sqlmock.NewResult(id, 1))
	mock.ExpectExec("INSERT INTO capsules").WillReturnResult(sqlmock.NewResult(id, 1))
	mock.ExpectExec("INSERT INTO heritage_tokens").WillReturnResult(sqlmock.NewResult(id, 1))
}

func TestPurchaseCapsule_CommitFailsAfterPayment(t *testing.T) {
	svc, mock, mem := newMockService(t)
	ctx := context.Background()

	expectPurchaseWrites(mock, 7)
	mock.ExpectCommit().WillReturnError(stderrors.New("disk I/O error"))

	_, err := PurchaseCapsule(ctx, svc, purchaseInput(alice))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPurchaseInconsistent), "got %v", err)

	var hErr *errors.HeritageError
	require.True(t, stderrors.As(err, &hErr))
	assert.Equal(t, uint64(7), hErr.Details["id"])
	assert.Equal(t, false, hErr.Details["refunded"])
	require.NoError(t, mock.ExpectationsWereMet())

	// Payment stays with the treasury for reconciliation
	assert.Len(t, mem.Transfers(), 1)
	bal, err := mem.BalanceOf(ctx, treasury)
	require.NoError(t, err)
	assert.Equal(t, uint64(config.DefaultCapsulePrice), bal)
}

func TestPurchaseCapsule_CommitFailsRefunds(t *testing.T) {
	svc, mock, mem := newMockService(t)
	svc.Config.RefundOnFailure = true
	ctx := context.Background()

	expectPurchaseWrites(mock, 7)
	mock.ExpectCommit().WillReturnError(stderrors.New("disk I/O error"))

	_, err := PurchaseCapsule(ctx, svc, purchaseInput(alice))
	require.Error(t, err)

	var hErr *errors.HeritageError
	require.True(t, stderrors.As(err, &hErr))
	assert.Equal(t, errors.ErrPurchaseInconsistent, hErr.Code)
	assert.Equal(t, true, hErr.Details["refunded"])
	require.NoError(t, mock.ExpectationsWereMet())

	transfers := mem.Transfers()
	require.Len(t, transfers, 2)
	refund := transfers[1]
	assert.Equal(t, treasury, refund.From)
	assert.Equal(t, alice, refund.To)
	assert.Equal(t, uint64(config.DefaultCapsulePrice-ledger.DefaultFee), refund.Amount)
	assert.Equal(t, "refund:"+string(transfers[0].Memo), string(refund.Memo))

	// The buyer is out two fees; the treasury keeps nothing
	bal, err := mem.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(startingBalance-2*ledger.DefaultFee), bal)
	bal, err = mem.BalanceOf(ctx, treasury)
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestPurchaseCapsule_InsertFailsRollsBack(t *testing.T) {
	svc, mock, _ := newMockService(t)

	mock.ExpectQuery("UPDATE id_sequence").
		WillReturnRows(sqlmock.NewRows([]string{"last_id"}).AddRow(int64(3)))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO purchases").WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec("INSERT INTO capsules").WillReturnError(stderrors.New("database is locked"))
	mock.ExpectRollback()

	_, err := PurchaseCapsule(context.Background(), svc, purchaseInput(alice))
	assert.True(t, errors.Is(err, errors.ErrPurchaseInconsistent), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}
