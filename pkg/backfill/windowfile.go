// Package backfill ingests directories of historical window files through
// the memory pipeline.
package backfill

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/engramlabs/engram/pkg/conversation"
)

// WindowFile is one conversation window as dropped on disk.
type WindowFile struct {
	Owner string              `json:"owner"`
	Turns conversation.Window `json:"turns"`
}

// ScanWindowDir finds all JSON window files under the given directory.
func ScanWindowDir(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".json") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// ParseWindowFile reads and validates a single window file.
func ParseWindowFile(path string) (WindowFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return WindowFile{}, err
	}

	var wf WindowFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return WindowFile{}, fmt.Errorf("decoding window file: %w", err)
	}
	if wf.Owner == "" {
		return WindowFile{}, errors.New("window file has no owner")
	}
	if err := wf.Turns.Validate(); err != nil {
		return WindowFile{}, fmt.Errorf("validating window file: %w", err)
	}
	return wf, nil
}
