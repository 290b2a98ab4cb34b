// Package extract unpacks downloaded zip archives into the collection and
// tidies up afterwards: the archive and the site's readme are removed,
// single-title subfolders are flattened, and extracted ROM filenames are
// cleaned. Only zip is supported; .7z archives are left on disk untouched.
package extract

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Another0Noob/vault-downloader/internal/index"
	"github.com/Another0Noob/vault-downloader/internal/romname"
)

// The vault bundles this readme into every archive.
const siteReadme = "Vimm's Lair.txt"

// ErrUnsupportedArchive is returned for archives we deliberately keep as-is.
var ErrUnsupportedArchive = errors.New("extract: unsupported archive type")

// AndCleanup extracts archivePath into destDir and cleans up. A corrupt or
// unsupported archive is kept on disk for manual handling and reported as an
// error.
func AndCleanup(archivePath, destDir string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if strings.ToLower(filepath.Ext(archivePath)) != ".zip" {
		return fmt.Errorf("%w: %s", ErrUnsupportedArchive, filepath.Ext(archivePath))
	}

	n, err := unzip(archivePath, destDir)
	if err != nil {
		return fmt.Errorf("extract %s: %w", archivePath, err)
	}
	logger.Info("extracted archive", "archive", filepath.Base(archivePath), "files", n)

	if err := os.Remove(archivePath); err != nil {
		logger.Warn("could not delete archive", "archive", archivePath, "error", err)
	}
	if err := os.Remove(filepath.Join(destDir, siteReadme)); err == nil {
		logger.Debug("deleted site readme")
	}

	flattenSingleROMFolders(destDir, logger)
	cleanROMFilenames(destDir, logger)
	return nil
}

func unzip(archivePath, destDir string) (int, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	extracted := 0
	for _, f := range r.File {
		dest := filepath.Join(destDir, f.Name)
		// Reject entries escaping the destination.
		if !strings.HasPrefix(dest, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return extracted, fmt.Errorf("illegal path in archive: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return extracted, err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return extracted, err
		}
		if err := writeZipEntry(f, dest); err != nil {
			return extracted, err
		}
		extracted++
	}
	return extracted, nil
}

func writeZipEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// flattenSingleROMFolders moves ROM files out of per-title subfolders the
// archive may have created and removes the emptied folder.
func flattenSingleROMFolders(destDir string, logger *slog.Logger) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(destDir, e.Name())
		roms := romFilesIn(dir)
		if len(roms) == 0 {
			continue
		}
		for _, rom := range roms {
			cleaned := romname.Clean(filepath.Base(rom))
			dest := filepath.Join(destDir, cleaned)
			if _, err := os.Stat(dest); err == nil {
				continue // never overwrite
			}
			if err := os.Rename(rom, dest); err != nil {
				logger.Warn("could not move extracted ROM", "file", rom, "error", err)
				continue
			}
			logger.Debug("moved extracted ROM", "from", filepath.Base(rom), "to", cleaned)
		}
		if err := os.RemoveAll(dir); err == nil {
			logger.Debug("removed extracted folder", "folder", e.Name())
		}
	}
}

func romFilesIn(dir string) []string {
	var roms []string
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if e.Type().IsRegular() && index.Eligible(filepath.Ext(e.Name()), false) {
			roms = append(roms, filepath.Join(dir, e.Name()))
		}
	}
	return roms
}

// cleanROMFilenames renames ROM files sitting directly in destDir to their
// cleaned form.
func cleanROMFilenames(destDir string, logger *slog.Logger) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !index.Eligible(filepath.Ext(e.Name()), false) {
			continue
		}
		cleaned := romname.Clean(e.Name())
		if cleaned == e.Name() {
			continue
		}
		dest := filepath.Join(destDir, cleaned)
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		if err := os.Rename(filepath.Join(destDir, e.Name()), dest); err != nil {
			logger.Warn("could not clean filename", "file", e.Name(), "error", err)
			continue
		}
		logger.Debug("cleaned filename", "from", e.Name(), "to", cleaned)
	}
}
