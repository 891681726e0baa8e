package config

import (
	"os"
	"path/filepath"
	"testing"
)

// clearEnv unsets HERITAGE_* variables for the duration of the test.
// godotenv only fills variables that are absent, so they must be unset, not empty.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HERITAGE_CALLER",
		"HERITAGE_LEDGER_URL",
		"HERITAGE_LEDGER_REF",
		"HERITAGE_TREASURY",
		"HERITAGE_JWT_SECRET",
		"HERITAGE_CAPSULE_PRICE",
	} {
		if old, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { _ = os.Setenv(key, old) })
		} else {
			t.Cleanup(func() { _ = os.Unsetenv(key) })
		}
		_ = os.Unsetenv(key)
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CapsuleMaxChars != DefaultConfig().CapsuleMaxChars {
		t.Fatalf("CapsuleMaxChars = %d, want %d", cfg.CapsuleMaxChars, DefaultConfig().CapsuleMaxChars)
	}
	if cfg.CapsulePrice != DefaultCapsulePrice {
		t.Errorf("CapsulePrice = %d, want %d", cfg.CapsulePrice, DefaultCapsulePrice)
	}
	if cfg.LedgerKind != LedgerMemory {
		t.Errorf("LedgerKind = %q, want %q", cfg.LedgerKind, LedgerMemory)
	}
	if cfg.BaseDir != tmpDir {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, tmpDir)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	data := `{"capsule_max_chars": 500, "capsule_price": 42, "refund_on_failure": true,
		"memory_ledger_balances": {"2vxsx-fae": 7}}`
	if err := os.WriteFile(configPath, []byte(data), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CapsuleMaxChars != 500 {
		t.Fatalf("CapsuleMaxChars = %d, want %d", cfg.CapsuleMaxChars, 500)
	}
	if cfg.CapsulePrice != 42 {
		t.Errorf("CapsulePrice = %d, want 42", cfg.CapsulePrice)
	}
	if !cfg.RefundOnFailure {
		t.Error("RefundOnFailure should be true")
	}
	if cfg.MemoryLedgerBalances["2vxsx-fae"] != 7 {
		t.Errorf("MemoryLedgerBalances = %v", cfg.MemoryLedgerBalances)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"disabled_tools": ["heritage_purchase", "heritage_restore"]}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "heritage_purchase" {
		t.Errorf("DisabledTools[0] = %q, want %q", cfg.DisabledTools[0], "heritage_purchase")
	}
	if cfg.DisabledTools[1] != "heritage_restore" {
		t.Errorf("DisabledTools[1] = %q, want %q", cfg.DisabledTools[1], "heritage_restore")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(`{"caller": "aaaaa-aa"}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("HERITAGE_CALLER", "2vxsx-fae")
	t.Setenv("HERITAGE_LEDGER_URL", "http://ledger.local")
	t.Setenv("HERITAGE_CAPSULE_PRICE", "99")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Caller != "2vxsx-fae" {
		t.Errorf("Caller = %q, want env value", cfg.Caller)
	}
	if cfg.LedgerKind != LedgerHTTP || cfg.LedgerURL != "http://ledger.local" {
		t.Errorf("LedgerKind/URL = %q/%q, want http ledger", cfg.LedgerKind, cfg.LedgerURL)
	}
	if cfg.CapsulePrice != 99 {
		t.Errorf("CapsulePrice = %d, want 99", cfg.CapsulePrice)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()

	env := "HERITAGE_TREASURY=rrkah-fqaaa-aaaaa-aaaaq-cai\nHERITAGE_JWT_SECRET=s3cret\n"
	if err := os.WriteFile(filepath.Join(tmpDir, ".env"), []byte(env), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TreasuryAccount != "rrkah-fqaaa-aaaaa-aaaaq-cai" {
		t.Errorf("TreasuryAccount = %q", cfg.TreasuryAccount)
	}
	if cfg.JWTSecret != "s3cret" {
		t.Errorf("JWTSecret = %q", cfg.JWTSecret)
	}
}

func TestLoad_InvalidPriceEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HERITAGE_CAPSULE_PRICE", "ten")

	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("Load() expected error for non-numeric price")
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{CapsuleMaxChars: 10000, DBMaxOpenConns: 5, LedgerKind: LedgerMemory}
	overlay := &Config{CapsuleMaxChars: 5000, LedgerKind: LedgerHTTP} // DBMaxOpenConns is 0 (zero value)

	result := Merge(base, overlay)

	if result.CapsuleMaxChars != 5000 {
		t.Errorf("CapsuleMaxChars = %d, want 5000 (overlay)", result.CapsuleMaxChars)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
	if result.LedgerKind != LedgerHTTP {
		t.Errorf("LedgerKind = %q, want %q", result.LedgerKind, LedgerHTTP)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	base := &Config{AllowUnsafePaths: true}
	overlay := &Config{AllowUnsafePaths: false, RefundOnFailure: true}

	result := Merge(base, overlay)

	if !result.AllowUnsafePaths {
		t.Error("AllowUnsafePaths should be true (base OR overlay)")
	}
	if !result.RefundOnFailure {
		t.Error("RefundOnFailure should be true (base OR overlay)")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTools: []string{"heritage_purchase", "heritage_restore"}}
	overlay := &Config{DisabledTools: []string{"heritage_restore", " heritage_snapshot "}}

	result := Merge(base, overlay)

	if len(result.DisabledTools) != 3 {
		t.Errorf("DisabledTools length = %d, want 3 (merged, deduped)", len(result.DisabledTools))
	}

	has := make(map[string]bool)
	for _, s := range result.DisabledTools {
		has[s] = true
	}
	for _, want := range []string{"heritage_purchase", "heritage_restore", "heritage_snapshot"} {
		if !has[want] {
			t.Errorf("DisabledTools missing %q", want)
		}
	}
}

func TestMerge_BalancesOverlay(t *testing.T) {
	base := &Config{MemoryLedgerBalances: map[string]uint64{"a": 1, "b": 2}}
	overlay := &Config{MemoryLedgerBalances: map[string]uint64{"b": 20}}

	result := Merge(base, overlay)

	if result.MemoryLedgerBalances["a"] != 1 || result.MemoryLedgerBalances["b"] != 20 {
		t.Errorf("MemoryLedgerBalances = %v, want a=1 b=20", result.MemoryLedgerBalances)
	}
	if base.MemoryLedgerBalances["b"] != 2 {
		t.Error("Merge must not mutate base")
	}
}
