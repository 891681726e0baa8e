package ops

import (
	"context"

	"github.com/samber/lo"

	"github.com/hpungsan/heritage/internal/capsule"
	"github.com/hpungsan/heritage/internal/db"
	"github.com/hpungsan/heritage/internal/errors"
	"github.com/hpungsan/heritage/internal/identity"
)

// GetCapsule returns the capsule if the caller may see it, otherwise the redacted record.
// A missing capsule and a denied one produce the same result.
func GetCapsule(ctx context.Context, s *Service, caller identity.Identity, id uint64) (capsule.Capsule, error) {
	c, err := db.GetCapsule(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return capsule.Redacted(), nil
		}
		return capsule.Capsule{}, err
	}
	return capsule.View(c, caller, s.now()), nil
}

// GetPublicCapsules returns public capsules whose unlock time has passed, in id order.
// The caller's identity plays no part.
func GetPublicCapsules(ctx context.Context, s *Service) ([]capsule.Capsule, error) {
	now := s.now()
	candidates, err := db.ListPublicCandidates(ctx, s.DB, capsule.UnixNanos(now))
	if err != nil {
		return nil, err
	}
	return lo.Filter(candidates, func(c capsule.Capsule, _ int) bool {
		return capsule.PubliclyVisible(&c, now)
	}), nil
}
