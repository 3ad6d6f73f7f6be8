package utils

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/username/folioimport/src/logger"
)

// ExtractZip unpacks every CSV inside a zip archive into destDir and
// returns the extracted paths. Archive entries that are not CSVs are
// skipped; entry paths are flattened and sanitized so a crafted archive
// cannot write outside destDir.
func ExtractZip(zipPath, destDir string) ([]string, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create extraction dir: %w", err)
	}

	var extracted []string
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(entry.Name)
		if strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".csv") {
			logger.L.Debug("Skipping non-CSV zip entry", "entry", entry.Name)
			continue
		}
		destPath := filepath.Join(destDir, name)
		if err := extractEntry(entry, destPath); err != nil {
			return nil, fmt.Errorf("failed to extract %q: %w", entry.Name, err)
		}
		extracted = append(extracted, destPath)
	}
	if len(extracted) == 0 {
		return nil, fmt.Errorf("zip archive contains no CSV files")
	}
	logger.L.Info("Zip archive extracted", "path", zipPath, "csvFiles", len(extracted))
	return extracted, nil
}

func extractEntry(entry *zip.File, destPath string) error {
	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// CollectCSVFiles walks a directory recursively and returns every CSV path
// found, sorted by the walk order.
func CollectCSVFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".csv") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %q: %w", root, err)
	}
	return paths, nil
}
