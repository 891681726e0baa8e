package ops

import (
	"context"
	"fmt"

	"github.com/hpungsan/heritage/internal/errors"
	"github.com/hpungsan/heritage/internal/identity"
	"github.com/hpungsan/heritage/internal/ledger"
)

// GetCapsulePrice returns the fixed price of a paid capsule in ledger base units.
func GetCapsulePrice(s *Service) uint64 {
	return s.Config.CapsulePrice
}

// LedgerInfoOutput describes the configured ledger and the capsule price in its units.
type LedgerInfoOutput struct {
	*ledger.Metadata
	LedgerRef    string `json:"ledger_ref,omitempty"`
	CapsulePrice uint64 `json:"capsule_price"`
	// PriceDisplay is the price in token units, e.g. "0.1 ICP".
	PriceDisplay string `json:"price_display"`
}

// LedgerInfo fetches the ledger's read-only metadata.
func LedgerInfo(ctx context.Context, s *Service) (*LedgerInfoOutput, error) {
	if s.Ledger == nil {
		return nil, errors.NewLedgerUnavailable(fmt.Errorf("no ledger configured"))
	}
	md, err := ledger.FetchMetadata(ctx, s.Ledger)
	if err != nil {
		return nil, errors.NewLedgerUnavailable(err)
	}
	price := GetCapsulePrice(s)
	return &LedgerInfoOutput{
		Metadata:     md,
		LedgerRef:    s.Config.LedgerRef,
		CapsulePrice: price,
		PriceDisplay: ledger.FormatAmount(price, md.Decimals) + " " + md.Symbol,
	}, nil
}

// BalanceOutput contains the result of the Balance operation.
type BalanceOutput struct {
	Account identity.Identity `json:"account"`
	Balance uint64            `json:"balance"`
}

// Balance queries the ledger balance of account.
func Balance(ctx context.Context, s *Service, account identity.Identity) (*BalanceOutput, error) {
	if s.Ledger == nil {
		return nil, errors.NewLedgerUnavailable(fmt.Errorf("no ledger configured"))
	}
	bal, err := s.Ledger.BalanceOf(ctx, account)
	if err != nil {
		return nil, errors.NewLedgerUnavailable(err)
	}
	return &BalanceOutput{Account: account, Balance: bal}, nil
}
