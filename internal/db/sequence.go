package db

import (
	"context"
	"fmt"

	"github.com/hpungsan/heritage/internal/errors"
)

// SequenceSeed is the floor of the id sequence. The first id ever handed out is SequenceSeed+1.
const SequenceSeed = 1

const capsuleSequence = "capsule"

// NextID reserves the next capsule id.
//
// The new id is max(last reserved id, highest stored capsule id, SequenceSeed) + 1,
// computed and recorded by a single statement, so two callers never receive the
// same id. A reserved id is never reused, even when the caller abandons it.
func NextID(ctx context.Context, q Querier) (uint64, error) {
	query := `
		UPDATE id_sequence
		SET last_id = MAX(last_id, (SELECT COALESCE(MAX(id), 0) FROM capsules), ?) + 1
		WHERE name = ?
		RETURNING last_id
	`

	var id int64
	if err := q.QueryRowContext(ctx, query, SequenceSeed, capsuleSequence).Scan(&id); err != nil {
		return 0, errors.NewInternal(fmt.Errorf("reserve id: %w", err))
	}
	return fromInt64(id, "id")
}

// LastID returns the most recently reserved id, or 0 if none has been reserved.
func LastID(ctx context.Context, q Querier) (uint64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT last_id FROM id_sequence WHERE name = ?`, capsuleSequence).Scan(&id)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return fromInt64(id, "id")
}
