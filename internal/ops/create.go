package ops

import (
	"context"

	"go.uber.org/zap"

	"github.com/hpungsan/heritage/internal/db"
	"github.com/hpungsan/heritage/internal/identity"
	"github.com/hpungsan/heritage/internal/metrics"
)

// CreateInput contains parameters for CreateCapsule and the capsule part of PurchaseCapsule.
type CreateInput struct {
	Caller       identity.Identity
	Contents     string   // JSON array of {"key","value"} objects
	UnlockTimeMs string   // milliseconds since epoch, decimal
	Recipients   []string // principal text
	IsPublic     bool
}

// CreateOutput contains the result of CreateCapsule and PurchaseCapsule.
type CreateOutput struct {
	ID uint64 `json:"id"`
}

// CreateCapsule stores a capsule owned by the caller without payment.
func CreateCapsule(ctx context.Context, s *Service, input CreateInput) (*CreateOutput, error) {
	d, err := validateDraft(s, input)
	if err != nil {
		return nil, err
	}

	var id uint64
	err = db.WithTx(ctx, s.DB, func(q db.Querier) error {
		var err error
		if id, err = db.NextID(ctx, q); err != nil {
			return err
		}
		return db.InsertCapsule(ctx, q, d.capsule(id, input.Caller))
	})
	if err != nil {
		return nil, err
	}

	metrics.CapsulesCreatedTotal.WithLabelValues("free").Inc()
	s.logger().Info("capsule created",
		zap.Uint64("id", id),
		zap.Stringer("owner", input.Caller),
		zap.Bool("is_public", d.isPublic),
	)
	return &CreateOutput{ID: id}, nil
}
