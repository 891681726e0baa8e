package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/heritage/internal/config"
	"github.com/hpungsan/heritage/internal/errors"
)

// pathConfig returns a config whose snapshots directory exists under a temp base dir.
func pathConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseDir = t.TempDir()
	dir := filepath.Join(cfg.BaseDir, "snapshots")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("failed to create snapshots dir: %v", err)
	}
	return cfg, dir
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("{}"), 0600); err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
}

func TestValidatePath_Rejected(t *testing.T) {
	cfg, dir := pathConfig(t)

	tests := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"parent traversal", "../backup.jsonl"},
		{"mid-path traversal", "/tmp/../etc/backup.jsonl"},
		{"traversal inside snapshots dir", filepath.Join(dir, "..", "snapshots", "x.jsonl")},
		{"no extension", filepath.Join(dir, "backup")},
		{"wrong extension", filepath.Join(dir, "backup.json")},
		{"outside snapshots dir", filepath.Join(t.TempDir(), "backup.jsonl")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePath(tc.path, PathCheckWrite, cfg)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidatePath_SnapshotsDirAllowed(t *testing.T) {
	cfg, dir := pathConfig(t)

	if err := ValidatePath(filepath.Join(dir, "new.jsonl"), PathCheckWrite, cfg); err != nil {
		t.Errorf("write in snapshots dir: %v", err)
	}

	existing := filepath.Join(dir, "old.jsonl")
	writeFile(t, existing)
	if err := ValidatePath(existing, PathCheckRead, cfg); err != nil {
		t.Errorf("read in snapshots dir: %v", err)
	}
}

func TestValidatePath_AllowUnsafePaths(t *testing.T) {
	cfg, _ := pathConfig(t)
	cfg.AllowUnsafePaths = true
	elsewhere := t.TempDir()

	testFile := filepath.Join(elsewhere, "test.jsonl")
	writeFile(t, testFile)
	if err := ValidatePath(testFile, PathCheckRead, cfg); err != nil {
		t.Errorf("expected success with AllowUnsafePaths=true, got: %v", err)
	}
	if err := ValidatePath(filepath.Join(elsewhere, "nested", "out.jsonl"), PathCheckWrite, cfg); err != nil {
		t.Errorf("expected nested write to pass with AllowUnsafePaths=true, got: %v", err)
	}
	if err := ValidatePath(filepath.Join(elsewhere, "out.txt"), PathCheckWrite, cfg); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("extension check must still apply, got: %v", err)
	}
}

func TestValidatePath_AllowedPaths(t *testing.T) {
	cfg, _ := pathConfig(t)
	allowed := t.TempDir()
	cfg.AllowedPaths = []string{allowed, "relative/ignored"}

	testFile := filepath.Join(allowed, "test.jsonl")
	writeFile(t, testFile)
	if err := ValidatePath(testFile, PathCheckRead, cfg); err != nil {
		t.Errorf("expected success for path in AllowedPaths, got: %v", err)
	}

	otherFile := filepath.Join(t.TempDir(), "other.jsonl")
	writeFile(t, otherFile)
	if err := ValidatePath(otherFile, PathCheckRead, cfg); err == nil {
		t.Error("expected error for path outside AllowedPaths, got nil")
	}
}

func TestValidatePath_FileNotFound_ReadMode(t *testing.T) {
	cfg, dir := pathConfig(t)

	missing := filepath.Join(dir, "missing.jsonl")
	err := ValidatePath(missing, PathCheckRead, cfg)
	if !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got: %v", err)
	}

	// Write mode does not require the file to exist
	if err := ValidatePath(missing, PathCheckWrite, cfg); err != nil {
		t.Errorf("write to missing file: %v", err)
	}
}

func TestValidatePath_NestedPathRejected(t *testing.T) {
	cfg, dir := pathConfig(t)

	subDir := filepath.Join(dir, "subdir")
	if err := os.MkdirAll(subDir, 0700); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}
	nested := filepath.Join(subDir, "test.jsonl")
	writeFile(t, nested)

	for _, mode := range []PathCheckMode{PathCheckRead, PathCheckWrite} {
		if err := ValidatePath(nested, mode, cfg); !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("mode %d: expected ErrInvalidRequest for nested path, got: %v", mode, err)
		}
	}
}

func TestValidatePath_SymlinkRejected(t *testing.T) {
	cfg, dir := pathConfig(t)

	targetFile := filepath.Join(t.TempDir(), "secret.jsonl")
	writeFile(t, targetFile)

	symlink := filepath.Join(dir, "link.jsonl")
	if err := os.Symlink(targetFile, symlink); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	for _, mode := range []PathCheckMode{PathCheckRead, PathCheckWrite} {
		if err := ValidatePath(symlink, mode, cfg); !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("mode %d: expected ErrInvalidRequest for symlink, got: %v", mode, err)
		}
	}

	// AllowUnsafePaths lifts the directory restriction, not the symlink one.
	cfg.AllowUnsafePaths = true
	if err := ValidatePath(symlink, PathCheckRead, cfg); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for symlink with AllowUnsafePaths, got: %v", err)
	}
}

func TestValidatePath_SymlinkedAllowedDirResolved(t *testing.T) {
	cfg, _ := pathConfig(t)
	realDir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	linkDir := filepath.Join(t.TempDir(), "snapshots-link")
	if err := os.Symlink(realDir, linkDir); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}
	cfg.AllowedPaths = []string{linkDir}

	// The allowed entry resolves to its target, so files in the target are accepted.
	if err := ValidatePath(filepath.Join(realDir, "out.jsonl"), PathCheckWrite, cfg); err != nil {
		t.Errorf("expected success in resolved allowed dir, got: %v", err)
	}
}

func TestSnapshotsDir(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BaseDir = "/var/lib/heritage"

	dir, err := SnapshotsDir(cfg)
	if err != nil {
		t.Fatalf("SnapshotsDir: %v", err)
	}
	if dir != filepath.Join("/var/lib/heritage", "snapshots") {
		t.Errorf("SnapshotsDir = %q", dir)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	dir, err = SnapshotsDir(config.DefaultConfig())
	if err != nil {
		t.Fatalf("SnapshotsDir: %v", err)
	}
	if dir != filepath.Join(home, ".heritage", "snapshots") {
		t.Errorf("SnapshotsDir fallback = %q", dir)
	}
}

func TestContainsTraversal(t *testing.T) {
	tests := []struct {
		path     string
		contains bool
	}{
		{"/home/user/file.jsonl", false},
		{"../file.jsonl", true},
		{"/home/../etc/passwd", true},
		{"./file.jsonl", false},
		{"/home/user/.hidden/file.jsonl", false},
		{"file..name.jsonl", false},
		{"/tmp/a/b/../c.jsonl", true},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			if got := containsTraversal(tc.path); got != tc.contains {
				t.Errorf("containsTraversal(%q) = %v, want %v", tc.path, got, tc.contains)
			}
		})
	}
}
