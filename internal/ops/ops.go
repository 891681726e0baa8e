package ops

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/heritage/internal/capsule"
	"github.com/hpungsan/heritage/internal/config"
	"github.com/hpungsan/heritage/internal/errors"
	"github.com/hpungsan/heritage/internal/identity"
	"github.com/hpungsan/heritage/internal/ledger"
)

// Service owns the state every operation runs against.
type Service struct {
	DB     *sql.DB
	Ledger ledger.Client
	Config *config.Config
	Log    *zap.Logger

	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// NewService wires a Service. A nil logger discards logs.
func NewService(database *sql.DB, client ledger.Client, cfg *config.Config, log *zap.Logger) *Service {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{DB: database, Ledger: client, Config: cfg, Log: log}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// ParseCaller converts the caller text supplied by a transport into an Identity.
// Empty text is the anonymous caller.
func ParseCaller(text string) (identity.Identity, error) {
	if strings.TrimSpace(text) == "" {
		return identity.Anonymous, nil
	}
	id, err := identity.Parse(text)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid caller identity: %v", err))
	}
	return id, nil
}

// requireCaller rejects anonymous callers for operations that create owned records.
func requireCaller(caller identity.Identity) error {
	if caller.IsAnonymous() {
		return errors.NewUnauthenticated("an authenticated caller is required")
	}
	return nil
}

// draft holds a validated capsule before an id is assigned.
type draft struct {
	contents   []capsule.Entry
	unlockTime uint64
	recipients []identity.Identity
	isPublic   bool
}

// validateDraft checks capsule input shared by the free and paid creation paths.
func validateDraft(s *Service, in CreateInput) (*draft, error) {
	if err := requireCaller(in.Caller); err != nil {
		return nil, err
	}

	contents, err := capsule.ParseContents(in.Contents)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("contents: %v", err))
	}
	if limit := s.Config.CapsuleMaxChars; limit > 0 {
		if n := capsule.ContentChars(contents); n > limit {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("contents too large: %d chars (max %d)", n, limit))
		}
	}

	unlock, err := capsule.ParseUnlockTime(in.UnlockTimeMs)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unlock_time_ms: %v", err))
	}
	if unlock <= capsule.UnixNanos(s.now()) {
		return nil, errors.NewInvalidRequest("unlock_time_ms must be in the future")
	}

	recipients, err := parseRecipients(in.Recipients)
	if err != nil {
		return nil, err
	}

	return &draft{
		contents:   contents,
		unlockTime: unlock,
		recipients: recipients,
		isPublic:   in.IsPublic,
	}, nil
}

// parseRecipients validates recipient identities and removes duplicates, keeping first-seen order.
func parseRecipients(texts []string) ([]identity.Identity, error) {
	result := make([]identity.Identity, 0, len(texts))
	seen := make(map[identity.Identity]bool, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		id, err := identity.Parse(text)
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid recipient %q: %v", text, err))
		}
		if id.IsAnonymous() {
			return nil, errors.NewInvalidRequest("recipients must not include the anonymous identity")
		}
		if !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}
	return result, nil
}

func (d *draft) capsule(id uint64, owner identity.Identity) *capsule.Capsule {
	return &capsule.Capsule{
		ID:         id,
		Owner:      owner,
		Contents:   d.contents,
		UnlockTime: d.unlockTime,
		Recipients: d.recipients,
		IsPublic:   d.isPublic,
	}
}

// generateULID generates a new ULID.
func generateULID(now time.Time) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
