// =============================================================================
// Billing Status Reconciler - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the reconciler:
//   - Directory management
//   - Feed file discovery by glob pattern
//   - Output file naming
//   - Writing export artifacts
//
// =============================================================================

package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is the layout of the {timestamp} placeholder.
const TimestampLayout = "20060102_150405"

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for the reconciler.
type FileManager struct {
	// InputDir is scanned for feed files.
	InputDir string

	// OutputDir receives export artifacts.
	OutputDir string
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(inputDir, outputDir string) *FileManager {
	return &FileManager{
		InputDir:  inputDir,
		OutputDir: outputDir,
	}
}

// EnsureDirectories creates the output directory if it doesn't exist. The
// input directory is only read, so it is left alone.
func (fm *FileManager) EnsureDirectories() error {
	if err := os.MkdirAll(fm.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", fm.OutputDir, err)
	}
	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverInputFiles scans the input directory for files matching any of the
// patterns.
//
// PARAMETERS:
//   - patterns: Glob patterns relative to the input directory
//     (e.g., "*np*.csv"). A file matching several patterns is listed once.
//
// RETURNS:
//   - A sorted slice of file paths. A missing input directory yields none.
//   - An error if a pattern is malformed.
func (fm *FileManager) DiscoverInputFiles(patterns ...string) ([]string, error) {
	if _, err := os.Stat(fm.InputDir); os.IsNotExist(err) {
		return nil, nil
	}

	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(fm.InputDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to scan input directory with %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() || seen[m] {
				continue
			}
			seen[m] = true
			files = append(files, m)
		}
	}

	sort.Strings(files)
	return files, nil
}

// =============================================================================
// OUTPUT
// =============================================================================

// WriteArtifact writes data under the output directory and returns its path.
func (fm *FileManager) WriteArtifact(fileName string, data []byte) (string, error) {
	if err := fm.EnsureDirectories(); err != nil {
		return "", err
	}
	outputPath := filepath.Join(fm.OutputDir, fileName)
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return outputPath, nil
}

// GenerateOutputFileName generates a file name from a pattern.
//
// PARAMETERS:
//   - format: The pattern. Placeholders:
//     {uuid}      - A random UUID
//     {timestamp} - now as YYYYMMDD_HHMMSS
//     {date}      - now as YYYYMMDD
//     plus one placeholder per params key (e.g., {label}).
//   - ext: The extension to ensure, without the dot (e.g., "xlsx").
//   - now: The time used for the time placeholders.
//   - params: Additional placeholder values.
//
// EXAMPLE:
//
//	format: "{label}_{timestamp}"
//	params: {"label": "ご請求およびご入金状況一覧"}
//	output: "ご請求およびご入金状況一覧_20240615_093000.xlsx"
func GenerateOutputFileName(format, ext string, now time.Time, params map[string]string) string {
	replacements := []string{
		"{timestamp}", now.Format(TimestampLayout),
		"{date}", now.Format("20060102"),
	}
	if strings.Contains(format, "{uuid}") {
		replacements = append(replacements, "{uuid}", uuid.New().String())
	}
	for key, value := range params {
		replacements = append(replacements, "{"+key+"}", SanitizeFileName(value))
	}

	result := strings.NewReplacer(replacements...).Replace(format)

	if ext != "" && !strings.HasSuffix(strings.ToLower(result), "."+strings.ToLower(ext)) {
		result += "." + ext
	}
	return result
}

// SanitizeFileName replaces characters that are not allowed in file names.
func SanitizeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
