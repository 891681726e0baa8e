package ops

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hpungsan/heritage/internal/capsule"
	"github.com/hpungsan/heritage/internal/db"
	"github.com/hpungsan/heritage/internal/errors"
	"github.com/hpungsan/heritage/internal/identity"
	"github.com/hpungsan/heritage/internal/ledger"
	"github.com/hpungsan/heritage/internal/metrics"
)

// PurchaseState is a step of one purchase attempt.
type PurchaseState string

const (
	StateStarted          PurchaseState = "started"
	StateTransferred      PurchaseState = "transferred"
	StateCommitted        PurchaseState = "committed"
	StateTransferFailed   PurchaseState = "transfer_failed"
	StateAborted          PurchaseState = "aborted"
	StateLocalWriteFailed PurchaseState = "local_write_failed"
	StateInconsistent     PurchaseState = "inconsistent"
	StateRefunded         PurchaseState = "refunded"
)

// PurchaseInput contains parameters for the PurchaseCapsule operation.
type PurchaseInput struct {
	CreateInput

	// PaymentTarget is the account receiving the payment (principal text).
	// Defaults to the configured treasury account.
	PaymentTarget string

	// LedgerRef names the ledger the caller intends to pay through.
	// Must match the configured ledger_ref when one is configured.
	LedgerRef string
}

// PurchaseOutput contains the result of the PurchaseCapsule operation.
type PurchaseOutput struct {
	ID         uint64 `json:"id"`
	BlockIndex uint64 `json:"block_index"`
	Amount     uint64 `json:"amount"`
	AttemptID  string `json:"attempt_id"`
}

// PurchaseCapsule takes payment through the ledger, then records the purchase,
// the capsule and its heritage token under one id.
//
// Failures before the transfer leave no trace. A rejected transfer returns
// LEDGER_TRANSFER_FAILED and writes nothing. If the local commit fails after
// the transfer succeeded, the attempt is logged for reconciliation, a refund is
// tried when refund_on_failure is set, and PURCHASE_INCONSISTENT is returned.
func PurchaseCapsule(ctx context.Context, s *Service, input PurchaseInput) (*PurchaseOutput, error) {
	d, err := validateDraft(s, input.CreateInput)
	if err != nil {
		return nil, err
	}
	target, err := resolvePaymentTarget(s, input.PaymentTarget)
	if err != nil {
		return nil, err
	}
	if err := checkLedgerRef(s, input.LedgerRef); err != nil {
		return nil, err
	}
	if s.Ledger == nil {
		return nil, errors.NewLedgerUnavailable(fmt.Errorf("no ledger configured"))
	}

	buyer := input.Caller
	price := s.Config.CapsulePrice
	started := s.now()

	attemptID, err := generateULID(started)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	log := s.logger().With(
		zap.String("attempt", attemptID),
		zap.Stringer("buyer", buyer),
		zap.Uint64("amount", price),
	)

	id, err := db.NextID(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.Uint64("id", id))
	log.Debug("purchase state", zap.String("state", string(StateStarted)))

	timer := prometheus.NewTimer(metrics.LedgerTransferDuration)
	blockIndex, err := s.Ledger.Transfer(ctx, ledger.TransferArgs{
		From:      buyer,
		To:        target,
		Amount:    price,
		Memo:      []byte(attemptID),
		CreatedAt: capsule.UnixNanos(started),
	})
	timer.ObserveDuration()
	if err != nil {
		metrics.PurchasesTotal.WithLabelValues(metrics.OutcomeTransferFailed).Inc()
		log.Warn("purchase aborted",
			zap.String("state", string(StateAborted)),
			zap.String("ledger_error_kind", string(ledger.KindOf(err))),
			zap.Error(err),
		)
		return nil, errors.NewLedgerTransferFailed(transferReason(err))
	}
	log = log.With(zap.Uint64("block_index", blockIndex))
	log.Debug("purchase state", zap.String("state", string(StateTransferred)))

	// Payment is taken; local writes must not be abandoned because the caller went away.
	writeCtx := context.WithoutCancel(ctx)
	c := d.capsule(id, buyer)
	err = db.WithTx(writeCtx, s.DB, func(q db.Querier) error {
		purchase := &capsule.Purchase{
			PurchaseID: id,
			Buyer:      buyer,
			Timestamp:  capsule.UnixNanos(s.now()),
			Amount:     price,
			BlockIndex: blockIndex,
		}
		if err := db.RecordPurchase(writeCtx, q, purchase); err != nil {
			return err
		}
		if err := db.InsertCapsule(writeCtx, q, c); err != nil {
			return err
		}
		return db.MintToken(writeCtx, q, capsule.NewToken(c, buyer, purchase.Timestamp))
	})
	if err != nil {
		log.Error("purchase inconsistent: payment taken but records not committed",
			zap.String("state", string(StateInconsistent)),
			zap.Stringer("payment_target", target),
			zap.Error(err),
		)
		refunded := false
		if s.Config.RefundOnFailure {
			refunded = refund(writeCtx, s, log, target, buyer, price, attemptID)
		}
		outcome := metrics.OutcomeInconsistent
		if refunded {
			outcome = metrics.OutcomeRefunded
		}
		metrics.PurchasesTotal.WithLabelValues(outcome).Inc()
		return nil, errors.NewPurchaseInconsistent(id, blockIndex, refunded)
	}

	metrics.PurchasesTotal.WithLabelValues(metrics.OutcomeCommitted).Inc()
	metrics.CapsulesCreatedTotal.WithLabelValues("paid").Inc()
	log.Info("capsule purchased", zap.String("state", string(StateCommitted)))
	return &PurchaseOutput{
		ID:         id,
		BlockIndex: blockIndex,
		Amount:     price,
		AttemptID:  attemptID,
	}, nil
}

// refund returns the payment minus the ledger fee to the buyer. It reports whether the refund landed.
func refund(ctx context.Context, s *Service, log *zap.Logger, from, to identity.Identity, price uint64, attemptID string) bool {
	fee, err := s.Ledger.Fee(ctx)
	if err != nil {
		log.Error("refund skipped: ledger fee unavailable", zap.Error(err))
		return false
	}
	if fee >= price {
		log.Error("refund skipped: fee exceeds payment", zap.Uint64("fee", fee))
		return false
	}

	block, err := s.Ledger.Transfer(ctx, ledger.TransferArgs{
		From:      from,
		To:        to,
		Amount:    price - fee,
		Memo:      []byte("refund:" + attemptID),
		CreatedAt: capsule.UnixNanos(s.now()),
	})
	if err != nil {
		log.Error("refund failed", zap.Error(err))
		return false
	}
	log.Warn("purchase refunded",
		zap.String("state", string(StateRefunded)),
		zap.Uint64("refund_block_index", block),
		zap.Uint64("refund_amount", price-fee),
	)
	return true
}

// resolvePaymentTarget validates the payment account against the configured treasury.
func resolvePaymentTarget(s *Service, text string) (identity.Identity, error) {
	treasury := strings.TrimSpace(s.Config.TreasuryAccount)
	if strings.TrimSpace(text) == "" {
		text = treasury
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.NewInvalidRequest("payment_target is required")
	}

	target, err := identity.Parse(text)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid payment_target: %v", err))
	}
	if target.IsAnonymous() {
		return "", errors.NewInvalidRequest("payment_target must not be the anonymous identity")
	}
	if treasury != "" && target.String() != treasury {
		return "", errors.NewInvalidRequest("payment_target does not match the configured treasury account")
	}
	return target, nil
}

func checkLedgerRef(s *Service, ref string) error {
	want := strings.TrimSpace(s.Config.LedgerRef)
	ref = strings.TrimSpace(ref)
	if want == "" || ref == "" || ref == want {
		return nil
	}
	return errors.NewInvalidRequest(fmt.Sprintf("ledger_ref %q does not match the configured ledger", ref))
}

// transferReason is the caller-facing reason for a failed transfer.
func transferReason(err error) string {
	var te *ledger.TransferError
	if stderrors.As(err, &te) {
		return te.Error()
	}
	return err.Error()
}
