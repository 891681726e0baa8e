package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/hpungsan/heritage/internal/capsule"
	"github.com/hpungsan/heritage/internal/errors"
	"github.com/hpungsan/heritage/internal/identity"
)

const capsuleColumns = `id, owner, contents_json, unlock_time, recipients_json, is_public`

// InsertCapsule stores a new capsule. Capsules are never updated or deleted.
func InsertCapsule(ctx context.Context, q Querier, c *capsule.Capsule) error {
	id, err := toInt64(c.ID, "capsule id")
	if err != nil {
		return err
	}
	unlock, err := toInt64(c.UnlockTime, "unlock time")
	if err != nil {
		return err
	}

	contents := c.Contents
	if contents == nil {
		contents = []capsule.Entry{}
	}
	contentsJSON, err := marshalJSON(contents)
	if err != nil {
		return err
	}

	recipients := c.Recipients
	if recipients == nil {
		recipients = []identity.Identity{}
	}
	recipientsJSON, err := marshalJSON(recipients)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO capsules (` + capsuleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = q.ExecContext(ctx, query,
		id, string(c.Owner), contentsJSON, unlock, recipientsJSON, c.IsPublic,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewDuplicateID("capsule", c.ID)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetCapsule retrieves a capsule by id.
func GetCapsule(ctx context.Context, q Querier, id uint64) (*capsule.Capsule, error) {
	key, err := toInt64(id, "capsule id")
	if err != nil {
		// Ids beyond the storage range were never stored.
		return nil, errors.NewNotFound("capsule", id)
	}

	row := q.QueryRowContext(ctx, `SELECT `+capsuleColumns+` FROM capsules WHERE id = ?`, key)
	c, err := scanCapsule(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("capsule", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return c, nil
}

// ListCapsules returns every capsule in ascending id order.
func ListCapsules(ctx context.Context, q Querier) ([]capsule.Capsule, error) {
	return queryCapsules(ctx, q, `SELECT `+capsuleColumns+` FROM capsules ORDER BY id`)
}

// ListPublicCandidates returns public capsules whose unlock time is at or before nowNanos,
// in ascending id order.
func ListPublicCandidates(ctx context.Context, q Querier, nowNanos uint64) ([]capsule.Capsule, error) {
	now, err := toInt64(nowNanos, "time")
	if err != nil {
		return nil, err
	}
	query := `
		SELECT ` + capsuleColumns + `
		FROM capsules
		WHERE is_public = 1 AND unlock_time <= ?
		ORDER BY id
	`
	return queryCapsules(ctx, q, query, now)
}

// CountCapsules returns the number of stored capsules.
func CountCapsules(ctx context.Context, q Querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM capsules`).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

func queryCapsules(ctx context.Context, q Querier, query string, args ...any) ([]capsule.Capsule, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	result := []capsule.Capsule{}
	for rows.Next() {
		c, err := scanCapsule(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return result, nil
}

// scanCapsule scans a single row into a Capsule struct.
func scanCapsule(row scanner) (*capsule.Capsule, error) {
	var (
		id             int64
		owner          string
		contentsJSON   string
		unlock         int64
		recipientsJSON string
		isPublic       bool
	)
	if err := row.Scan(&id, &owner, &contentsJSON, &unlock, &recipientsJSON, &isPublic); err != nil {
		return nil, err
	}

	c := &capsule.Capsule{
		Owner:    identity.Identity(owner),
		IsPublic: isPublic,
	}
	var err error
	if c.ID, err = fromInt64(id, "capsule id"); err != nil {
		return nil, err
	}
	if c.UnlockTime, err = fromInt64(unlock, "unlock time"); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(contentsJSON), &c.Contents); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(recipientsJSON), &c.Recipients); err != nil {
		return nil, err
	}
	c.Normalize()
	return c, nil
}
