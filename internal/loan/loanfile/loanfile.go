// Package loanfile reads and writes the on-disk loan file shape: one JSON
// document per loan in a directory.
package loanfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"loanops/internal/loan/models"
	dErrors "loanops/pkg/domain-errors"
)

// Read loads and validates one loan file.
func Read(path string) (*models.LoanRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, fmt.Sprintf("loan file not found: %s", path))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("read loan file %s", path))
	}
	record, err := models.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return record, nil
}

// Write serializes the record into dir as <loan_id>.json.
func Write(dir string, record *models.LoanRecord) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "create output directory")
	}
	data, err := models.Encode(record)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, record.LoanID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("write loan file %s", path))
	}
	return path, nil
}

// List returns the loan JSON files in dir, sorted by name. A missing
// directory is an empty listing, not an error.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("read loan directory %s", dir))
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}
