package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"

	"github.com/hpungsan/heritage/internal/capsule"
	"github.com/hpungsan/heritage/internal/db"
	"github.com/hpungsan/heritage/internal/errors"
)

// SnapshotSchemaVersion is written in the header line of every snapshot.
const SnapshotSchemaVersion = "1"

// SnapshotInput contains parameters for the Snapshot operation.
type SnapshotInput struct {
	Path string // optional, default: <base>/snapshots/heritage-<timestamp>.jsonl
}

// SnapshotOutput contains the result of the Snapshot operation.
type SnapshotOutput struct {
	Path       string `json:"path"`
	Capsules   int    `json:"capsules"`
	Tokens     int    `json:"tokens"`
	Purchases  int    `json:"purchases"`
	ExportedAt int64  `json:"exported_at"`
}

// Snapshot writes every capsule, token and purchase to a JSONL file:
// a header line, then capsules, tokens and purchases in id order.
func Snapshot(ctx context.Context, s *Service, input SnapshotInput) (*SnapshotOutput, error) {
	now := s.now()

	path := input.Path
	if path == "" {
		dir, err := SnapshotsDir(s.Config)
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "heritage-"+now.UTC().Format("2006-01-02T150405")+".jsonl")
	}
	if err := ValidatePath(path, PathCheckWrite, s.Config); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create snapshot directory: %w", err))
	}

	// Read all three stores from one transaction so the snapshot is consistent.
	var (
		capsules  []capsule.Capsule
		tokens    []capsule.Token
		purchases []capsule.Purchase
	)
	err := db.WithTx(ctx, s.DB, func(q db.Querier) error {
		var err error
		if capsules, err = db.ListCapsules(ctx, q); err != nil {
			return err
		}
		if tokens, err = db.ListTokens(ctx, q); err != nil {
			return err
		}
		purchases, err = db.ListPurchases(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}

	records := make([]*capsule.SnapshotRecord, 0, 1+len(capsules)+len(tokens)+len(purchases))
	records = append(records, &capsule.SnapshotRecord{
		HeritageSnapshot: true,
		SchemaVersion:    SnapshotSchemaVersion,
		ExportedAt:       now.Unix(),
	})
	for i := range capsules {
		records = append(records, capsule.CapsuleRecord(&capsules[i]))
	}
	for i := range tokens {
		records = append(records, capsule.TokenRecord(&tokens[i]))
	}
	for i := range purchases {
		records = append(records, capsule.PurchaseRecord(&purchases[i]))
	}

	if err := writeRecordsAtomic(ctx, path, records); err != nil {
		return nil, err
	}

	s.logger().Info("snapshot written",
		zap.String("path", path),
		zap.Int("capsules", len(capsules)),
		zap.Int("tokens", len(tokens)),
		zap.Int("purchases", len(purchases)),
	)
	return &SnapshotOutput{
		Path:       path,
		Capsules:   len(capsules),
		Tokens:     len(tokens),
		Purchases:  len(purchases),
		ExportedAt: now.Unix(),
	}, nil
}

// writeRecordsAtomic writes records to a temp file beside path and renames it into place,
// so an existing snapshot survives a failed write.
func writeRecordsAtomic(ctx context.Context, path string, records []*capsule.SnapshotRecord) error {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"

	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create snapshot file: %w", err))
	}
	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if ctx.Err() != nil {
			return errors.NewCancelled("snapshot")
		}
		if err := enc.Encode(r); err != nil {
			return errors.NewInternal(err)
		}
	}
	if err := w.Flush(); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close snapshot file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink placed at the destination after validation.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("snapshot path must not be a symlink")
	}
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("snapshot destination already exists; choose a new path")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize snapshot: %w", err))
	}

	success = true
	return nil
}
