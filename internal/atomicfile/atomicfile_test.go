package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteFileRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")

	if err := WriteFile(path, []byte("first"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := WriteFile(path, []byte("second"), 0644); err != nil {
		t.Fatalf("WriteFile 2: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("content = %q, want %q", got, "second")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("perm = %v, want 0644", info.Mode().Perm())
	}
	assertNoTemps(t, dir)
}

func TestReplaceKeepsExistingPerm(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "box.zip")
	if err := WriteFile(path, []byte("first"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		t.Fatal(err)
	}

	if err := WriteFile(path, []byte("second"), 0644); err != nil {
		t.Fatalf("WriteFile 2: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("perm = %v, want 0600 kept", info.Mode().Perm())
	}
}

func TestReplaceFailureKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "box.zip")
	if err := os.WriteFile(path, []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := Replace(path, 0644, func(w io.Writer) error {
		w.Write([]byte("partial"))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "original" {
		t.Errorf("content = %q, want original untouched", got)
	}
	assertNoTemps(t, dir)
}

func TestIsTemp(t *testing.T) {
	cases := map[string]bool{
		".box.zip.tmp-123456": true,
		"box.zip":             false,
		"box.zip.tmp-1":       false,
		".hidden":             false,
	}
	for name, want := range cases {
		if got := IsTemp(name); got != want {
			t.Errorf("IsTemp(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestCleanStale(t *testing.T) {
	dir := t.TempDir()

	stale := filepath.Join(dir, ".box.zip.tmp-111")
	os.WriteFile(stale, []byte("x"), 0644)
	old := time.Now().Add(-3 * time.Hour)
	os.Chtimes(stale, old, old)

	fresh := filepath.Join(dir, ".box.zip.tmp-222")
	os.WriteFile(fresh, []byte("x"), 0644)

	keep := filepath.Join(dir, "box.zip")
	os.WriteFile(keep, []byte("x"), 0644)
	os.Chtimes(keep, old, old)

	removed, err := CleanStale(dir, time.Hour)
	if err != nil {
		t.Fatalf("CleanStale: %v", err)
	}
	if len(removed) != 1 || removed[0] != ".box.zip.tmp-111" {
		t.Errorf("removed = %v, want [.box.zip.tmp-111]", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale temp file should have been removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh temp file should still exist")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("regular file must never be cleaned")
	}

	// Zero age removes everything that is a temp file.
	if _, err := CleanStale(dir, 0); err != nil {
		t.Fatalf("CleanStale(0): %v", err)
	}
	assertNoTemps(t, dir)
}

func assertNoTemps(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if IsTemp(e.Name()) {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}
