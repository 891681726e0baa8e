package ops

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hpungsan/heritage/internal/capsule"
	"github.com/hpungsan/heritage/internal/db"
	"github.com/hpungsan/heritage/internal/errors"
	"github.com/hpungsan/heritage/internal/identity"
	"github.com/hpungsan/heritage/internal/metrics"
)

// GetHeritageToken returns the token, or nil if it does not exist.
func GetHeritageToken(ctx context.Context, s *Service, tokenID uint64) (*capsule.Token, error) {
	t, err := db.GetToken(ctx, s.DB, tokenID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// TransferHeritageToken hands the token to newOwner.
// Returns false when the token does not exist or the caller does not own it.
func TransferHeritageToken(ctx context.Context, s *Service, caller identity.Identity, tokenID uint64, newOwner string) (bool, error) {
	to, err := identity.Parse(newOwner)
	if err != nil {
		return false, errors.NewInvalidRequest(fmt.Sprintf("invalid new_owner: %v", err))
	}
	if to.IsAnonymous() {
		return false, errors.NewInvalidRequest("new_owner must not be the anonymous identity")
	}
	if caller.IsAnonymous() {
		return false, nil
	}

	ok, err := db.TransferToken(ctx, s.DB, tokenID, to, caller)
	if err != nil {
		return false, err
	}
	if ok {
		metrics.TokenTransfersTotal.Inc()
		s.logger().Info("heritage token transferred",
			zap.Uint64("token_id", tokenID),
			zap.Stringer("from", caller),
			zap.Stringer("to", to),
		)
	}
	return ok, nil
}

// GetMyTokens returns the tokens the caller currently owns.
func GetMyTokens(ctx context.Context, s *Service, caller identity.Identity) ([]capsule.Token, error) {
	if caller.IsAnonymous() {
		return []capsule.Token{}, nil
	}
	return db.ListTokensByOwner(ctx, s.DB, caller)
}

// GetUserPurchases returns every purchase made by buyer.
func GetUserPurchases(ctx context.Context, s *Service, buyer identity.Identity) ([]capsule.Purchase, error) {
	return db.ListPurchasesByBuyer(ctx, s.DB, buyer)
}
