package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/hpungsan/heritage/internal/capsule"
	"github.com/hpungsan/heritage/internal/errors"
	"github.com/hpungsan/heritage/internal/identity"
)

const tokenColumns = `token_id, capsule_id, owner, metadata_json`

// MintToken stores a new heritage token. The referenced capsule must already exist.
func MintToken(ctx context.Context, q Querier, t *capsule.Token) error {
	tokenID, err := toInt64(t.TokenID, "token id")
	if err != nil {
		return err
	}
	capsuleID, err := toInt64(t.CapsuleID, "capsule id")
	if err != nil {
		return err
	}

	metadata := t.Metadata
	if metadata == nil {
		metadata = []capsule.Entry{}
	}
	metadataJSON, err := marshalJSON(metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO heritage_tokens (` + tokenColumns + `)
		VALUES (?, ?, ?, ?)
	`
	if _, err := q.ExecContext(ctx, query, tokenID, capsuleID, string(t.Owner), metadataJSON); err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewDuplicateID("token", t.TokenID)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetToken retrieves a token by id.
func GetToken(ctx context.Context, q Querier, tokenID uint64) (*capsule.Token, error) {
	key, err := toInt64(tokenID, "token id")
	if err != nil {
		return nil, errors.NewNotFound("token", tokenID)
	}

	row := q.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM heritage_tokens WHERE token_id = ?`, key)
	t, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("token", tokenID)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return t, nil
}

// TransferToken moves a token to newOwner if requestedBy currently owns it.
// Returns false, without error, when the token does not exist or requestedBy is not the owner.
// The ownership check and the update are one statement.
func TransferToken(ctx context.Context, q Querier, tokenID uint64, newOwner, requestedBy identity.Identity) (bool, error) {
	key, err := toInt64(tokenID, "token id")
	if err != nil {
		return false, nil
	}

	result, err := q.ExecContext(ctx,
		`UPDATE heritage_tokens SET owner = ? WHERE token_id = ? AND owner = ?`,
		string(newOwner), key, string(requestedBy),
	)
	if err != nil {
		return false, errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return rowsAffected == 1, nil
}

// ListTokensByOwner returns tokens currently owned by owner, in ascending token id order.
func ListTokensByOwner(ctx context.Context, q Querier, owner identity.Identity) ([]capsule.Token, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM heritage_tokens
		WHERE owner = ?
		ORDER BY token_id
	`
	return queryTokens(ctx, q, query, string(owner))
}

// ListTokens returns every token in ascending token id order.
func ListTokens(ctx context.Context, q Querier) ([]capsule.Token, error) {
	return queryTokens(ctx, q, `SELECT `+tokenColumns+` FROM heritage_tokens ORDER BY token_id`)
}

func queryTokens(ctx context.Context, q Querier, query string, args ...any) ([]capsule.Token, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	result := []capsule.Token{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		result = append(result, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return result, nil
}

func scanToken(row scanner) (*capsule.Token, error) {
	var (
		tokenID      int64
		capsuleID    int64
		owner        string
		metadataJSON string
	)
	if err := row.Scan(&tokenID, &capsuleID, &owner, &metadataJSON); err != nil {
		return nil, err
	}

	t := &capsule.Token{Owner: identity.Identity(owner)}
	var err error
	if t.TokenID, err = fromInt64(tokenID, "token id"); err != nil {
		return nil, err
	}
	if t.CapsuleID, err = fromInt64(capsuleID, "capsule id"); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadataJSON), &t.Metadata); err != nil {
		return nil, err
	}
	t.Normalize()
	return t, nil
}
