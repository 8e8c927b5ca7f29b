package walker

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWalkPrunesIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "a.md"), "# hi\n")
	mustWriteFile(t, filepath.Join(root, "b.bin"), "raw")
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}
	mustWriteFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main\n")

	ignore, err := CompileAll([]string{`/\.git/`})
	if err != nil {
		t.Fatalf("CompileAll: %v", err)
	}

	var files []string
	err = Walk([]string{root}, Options{IgnorePatterns: ignore}, func(e Entry) error {
		if e.Err != nil {
			t.Fatalf("unexpected diagnostic entry for %s: %v", e.AbsPath, e.Err)
		}
		files = append(files, e.RelPath)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if len(files) != 2 {
		t.Fatalf("expected 2 entries (.git pruned), got %d: %v", len(files), files)
	}
}

func TestWalkBreaksSymlinkCycles(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink(root, filepath.Join(sub, "loop")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	visited := 0
	err := Walk([]string{root}, Options{FollowSymlinks: true}, func(e Entry) error {
		visited++
		if visited > 1000 {
			t.Fatalf("walk did not terminate: suspected infinite symlink cycle")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
}

func TestWalkRecordsUnreadableDirectoryAsDiagnostic(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root, permission denial does not apply")
	}
	root := t.TempDir()
	locked := filepath.Join(root, "locked")
	if err := os.MkdirAll(locked, 0o000); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	var diagnostics int
	err := Walk([]string{root}, Options{}, func(e Entry) error {
		if e.Err != nil {
			diagnostics++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if diagnostics == 0 {
		t.Fatalf("expected at least one diagnostic entry for the unreadable directory")
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}
