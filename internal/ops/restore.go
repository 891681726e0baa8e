package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/hpungsan/heritage/internal/capsule"
	"github.com/hpungsan/heritage/internal/db"
	"github.com/hpungsan/heritage/internal/errors"
)

// maxSnapshotLine bounds a single JSONL record.
const maxSnapshotLine = 4 << 20

// RestoreInput contains parameters for the Restore operation.
type RestoreInput struct {
	Path string // required
}

// RestoreOutput contains the result of the Restore operation.
type RestoreOutput struct {
	Capsules  int `json:"capsules"`
	Tokens    int `json:"tokens"`
	Purchases int `json:"purchases"`
}

// Restore loads a snapshot in one transaction. Any malformed line, duplicate id,
// or token without its capsule aborts the whole restore.
func Restore(ctx context.Context, s *Service, input RestoreInput) (*RestoreOutput, error) {
	if err := ValidatePath(input.Path, PathCheckRead, s.Config); err != nil {
		return nil, err
	}
	file, err := openFileNoFollow(input.Path, 0, 0)
	if err != nil {
		if _, ok := err.(*errors.HeritageError); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open snapshot: %w", err))
	}
	defer file.Close()

	snap, err := parseSnapshot(file)
	if err != nil {
		return nil, err
	}

	err = db.WithTx(ctx, s.DB, func(q db.Querier) error {
		for i := range snap.capsules {
			if ctx.Err() != nil {
				return errors.NewCancelled("restore")
			}
			if err := db.InsertCapsule(ctx, q, &snap.capsules[i]); err != nil {
				return err
			}
		}
		for i := range snap.tokens {
			t := &snap.tokens[i]
			if _, err := db.GetCapsule(ctx, q, t.CapsuleID); err != nil {
				if errors.Is(err, errors.ErrNotFound) {
					return errors.NewInvalidRequest(fmt.Sprintf("token %d references missing capsule %d", t.TokenID, t.CapsuleID))
				}
				return err
			}
			if err := db.MintToken(ctx, q, t); err != nil {
				return err
			}
		}
		for i := range snap.purchases {
			if err := db.RecordPurchase(ctx, q, &snap.purchases[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &RestoreOutput{
		Capsules:  len(snap.capsules),
		Tokens:    len(snap.tokens),
		Purchases: len(snap.purchases),
	}
	s.logger().Info("snapshot restored",
		zap.String("path", input.Path),
		zap.Int("capsules", out.Capsules),
		zap.Int("tokens", out.Tokens),
		zap.Int("purchases", out.Purchases),
	)
	return out, nil
}

type parsedSnapshot struct {
	capsules  []capsule.Capsule
	tokens    []capsule.Token
	purchases []capsule.Purchase
}

// parseSnapshot reads and validates every line. The first non-empty line must be the header.
func parseSnapshot(r io.Reader) (*parsedSnapshot, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSnapshotLine)

	snap := &parsedSnapshot{}
	lineNum := 0
	sawHeader := false
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record capsule.SnapshotRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("line %d: invalid JSON: %v", lineNum, err))
		}

		if !sawHeader {
			if !record.HeritageSnapshot {
				return nil, errors.NewInvalidRequest("not a heritage snapshot (missing header line)")
			}
			if record.SchemaVersion != SnapshotSchemaVersion {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("unsupported snapshot schema version %q", record.SchemaVersion))
			}
			sawHeader = true
			continue
		}

		if err := record.Validate(); err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("line %d: %v", lineNum, err))
		}
		switch record.Kind {
		case capsule.KindCapsule:
			record.Capsule.Normalize()
			snap.capsules = append(snap.capsules, *record.Capsule)
		case capsule.KindToken:
			record.Token.Normalize()
			snap.tokens = append(snap.tokens, *record.Token)
		case capsule.KindPurchase:
			snap.purchases = append(snap.purchases, *record.Purchase)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("failed to read snapshot at line %d: %v", lineNum+1, err))
	}
	if !sawHeader {
		return nil, errors.NewInvalidRequest("snapshot is empty")
	}
	return snap, nil
}
