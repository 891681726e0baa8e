package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Ledger kinds.
const (
	LedgerMemory = "memory"
	LedgerHTTP   = "http"
)

// DefaultCapsulePrice is the price of a paid capsule in ledger base units (e8s).
const DefaultCapsulePrice = 10_000_000

// Config holds application configuration.
type Config struct {
	// CapsuleMaxChars is the maximum character count across all content keys and values
	CapsuleMaxChars int `json:"capsule_max_chars"`

	// CapsulePrice is the fixed price of purchaseCapsule in ledger base units.
	CapsulePrice uint64 `json:"capsule_price"`

	// LedgerKind selects the ledger client: "memory" (in-process) or "http".
	LedgerKind string `json:"ledger_kind,omitempty"`

	// LedgerRef identifies the ledger purchases must reference (e.g. its canister id).
	LedgerRef string `json:"ledger_ref,omitempty"`

	// LedgerURL is the base URL of the ledger gateway when LedgerKind is "http".
	LedgerURL string `json:"ledger_url,omitempty"`

	// LedgerTimeoutMS bounds each ledger call. 0 means the client default.
	LedgerTimeoutMS int `json:"ledger_timeout_ms,omitempty"`

	// TreasuryAccount receives capsule payments. When set, purchases must target it.
	TreasuryAccount string `json:"treasury_account,omitempty"`

	// RefundOnFailure attempts a compensating transfer back to the buyer when
	// local records cannot be committed after payment.
	RefundOnFailure bool `json:"refund_on_failure,omitempty"`

	// MemoryLedgerBalances seeds the in-process ledger (principal text -> balance).
	MemoryLedgerBalances map[string]uint64 `json:"memory_ledger_balances,omitempty"`

	// Caller is the identity used by CLI and MCP modes (principal text).
	// Empty means anonymous.
	Caller string `json:"caller,omitempty"`

	// JWTSecret is the HMAC secret used to verify bearer tokens in HTTP mode.
	JWTSecret string `json:"jwt_secret,omitempty"`

	// AllowedPaths is an allowlist of directories for snapshot/restore operations.
	// Paths outside <base>/snapshots require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for snapshot/restore.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// LogDebug enables debug-level logging.
	LogDebug bool `json:"log_debug,omitempty"`

	// BaseDir is the directory the config was loaded from. Not read from JSON.
	BaseDir string `json:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		CapsuleMaxChars: 12000,
		CapsulePrice:    DefaultCapsulePrice,
		LedgerKind:      LedgerMemory,
	}
}

// Load loads configuration from baseDir/config.json, then applies environment
// overrides from baseDir/.env and the process environment.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.heritage.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}

	// .env never overrides variables already set in the process environment
	envPath := filepath.Join(baseDir, ".env")
	if _, statErr := os.Stat(envPath); statErr == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.BaseDir = baseDir
	return cfg, nil
}

// ApplyEnv overlays HERITAGE_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("HERITAGE_CALLER")); v != "" {
		cfg.Caller = v
	}
	if v := strings.TrimSpace(os.Getenv("HERITAGE_LEDGER_URL")); v != "" {
		cfg.LedgerURL = v
		cfg.LedgerKind = LedgerHTTP
	}
	if v := strings.TrimSpace(os.Getenv("HERITAGE_LEDGER_REF")); v != "" {
		cfg.LedgerRef = v
	}
	if v := strings.TrimSpace(os.Getenv("HERITAGE_TREASURY")); v != "" {
		cfg.TreasuryAccount = v
	}
	if v := os.Getenv("HERITAGE_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("HERITAGE_CAPSULE_PRICE")); v != "" {
		price, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid HERITAGE_CAPSULE_PRICE %q: %w", v, err)
		}
		cfg.CapsulePrice = price
	}
	return nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.CapsuleMaxChars = pick(overlay.CapsuleMaxChars, base.CapsuleMaxChars)
	result.CapsulePrice = pick(overlay.CapsulePrice, base.CapsulePrice)
	result.LedgerKind = pick(overlay.LedgerKind, base.LedgerKind)
	result.LedgerRef = pick(overlay.LedgerRef, base.LedgerRef)
	result.LedgerURL = pick(overlay.LedgerURL, base.LedgerURL)
	result.LedgerTimeoutMS = pick(overlay.LedgerTimeoutMS, base.LedgerTimeoutMS)
	result.TreasuryAccount = pick(overlay.TreasuryAccount, base.TreasuryAccount)
	result.Caller = pick(overlay.Caller, base.Caller)
	result.JWTSecret = pick(overlay.JWTSecret, base.JWTSecret)
	result.DBMaxOpenConns = pick(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pick(overlay.DBMaxIdleConns, base.DBMaxIdleConns)
	result.BaseDir = pick(overlay.BaseDir, base.BaseDir)

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths
	result.RefundOnFailure = base.RefundOnFailure || overlay.RefundOnFailure
	result.LogDebug = base.LogDebug || overlay.LogDebug

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	// Maps: overlay entries replace base entries
	if len(base.MemoryLedgerBalances)+len(overlay.MemoryLedgerBalances) > 0 {
		result.MemoryLedgerBalances = make(map[string]uint64)
		for k, v := range base.MemoryLedgerBalances {
			result.MemoryLedgerBalances[k] = v
		}
		for k, v := range overlay.MemoryLedgerBalances {
			result.MemoryLedgerBalances[k] = v
		}
	}

	return result
}

// pick returns overlay unless it is the zero value.
func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
