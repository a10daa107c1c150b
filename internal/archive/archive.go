package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ArchiveExport moves a previous export directory into an "archive"
// directory next to it, named after the directory and the current time.
// It returns the path of the archived directory.
func ArchiveExport(exportDir string) (string, error) {
	// Check if export directory exists
	if _, err := os.Stat(exportDir); os.IsNotExist(err) {
		return "", fmt.Errorf("export directory does not exist: %s", exportDir)
	}

	exportDir = filepath.Clean(exportDir)
	parentDir := filepath.Dir(exportDir)
	archiveDir := filepath.Join(parentDir, "archive")

	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	base := filepath.Base(exportDir)
	timestamp := time.Now().Format("20060102-150405")
	archivePath := filepath.Join(archiveDir, fmt.Sprintf("%s-%s", base, timestamp))

	// Check if archive already exists (unlikely but possible)
	if _, err := os.Stat(archivePath); err == nil {
		// Add microseconds to make it unique
		timestamp = time.Now().Format("20060102-150405.000000")
		archivePath = filepath.Join(archiveDir, fmt.Sprintf("%s-%s", base, timestamp))
	}

	if err := os.Rename(exportDir, archivePath); err != nil {
		return "", fmt.Errorf("failed to archive export directory: %w", err)
	}

	return archivePath, nil
}
