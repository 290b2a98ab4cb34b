package extract

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func buildZip(t *testing.T, dir, name string, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for entry, body := range entries {
		ew, err := w.Create(entry)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := ew.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAndCleanupExtractsAndTidies(t *testing.T) {
	dir := t.TempDir()
	archive := buildZip(t, dir, "game.zip", map[string]string{
		"012 3456_mario kart ds.nds": "rom data",
		"Vimm's Lair.txt":            "visit the site",
	})

	if err := AndCleanup(archive, dir, nil); err != nil {
		t.Fatalf("AndCleanup failed: %v", err)
	}

	if _, err := os.Stat(archive); !os.IsNotExist(err) {
		t.Error("archive not deleted")
	}
	if _, err := os.Stat(filepath.Join(dir, "Vimm's Lair.txt")); !os.IsNotExist(err) {
		t.Error("site readme not deleted")
	}
	data, err := os.ReadFile(filepath.Join(dir, "mario kart DS.nds"))
	if err != nil {
		t.Fatalf("cleaned ROM missing: %v", err)
	}
	if string(data) != "rom data" {
		t.Errorf("ROM content = %q", data)
	}
}

func TestAndCleanupFlattensTitleFolder(t *testing.T) {
	dir := t.TempDir()
	archive := buildZip(t, dir, "game.zip", map[string]string{
		"Some Game (USA)/game.nds": "payload",
		"Some Game (USA)/notes.nfo": "scene notes",
	})

	if err := AndCleanup(archive, dir, nil); err != nil {
		t.Fatalf("AndCleanup failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "game.nds")); err != nil {
		t.Fatalf("flattened ROM missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Some Game (USA)")); !os.IsNotExist(err) {
		t.Error("emptied title folder not removed")
	}
}

func TestAndCleanupNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "game.nds")
	if err := os.WriteFile(existing, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}
	archive := buildZip(t, dir, "game.zip", map[string]string{
		"Some Game/game.nds": "new copy",
	})

	if err := AndCleanup(archive, dir, nil); err != nil {
		t.Fatalf("AndCleanup failed: %v", err)
	}
	data, err := os.ReadFile(existing)
	if err != nil || string(data) != "original" {
		t.Fatalf("existing file clobbered: %q, err %v", data, err)
	}
}

func TestAndCleanupRejectsNonZip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "game.7z")
	if err := os.WriteFile(path, []byte("sevenzip"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := AndCleanup(path, dir, nil)
	if !errors.Is(err, ErrUnsupportedArchive) {
		t.Fatalf("got %v, want ErrUnsupportedArchive", err)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Error("unsupported archive must be kept on disk")
	}
}

func TestAndCleanupRejectsEscapingPaths(t *testing.T) {
	dir := t.TempDir()
	archive := buildZip(t, dir, "evil.zip", map[string]string{
		"../evil.nds": "nope",
	})

	if err := AndCleanup(archive, dir, nil); err == nil {
		t.Fatal("expected an error for a path-escaping entry")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "evil.nds")); err == nil {
		t.Error("escaping entry was written")
	}
}
