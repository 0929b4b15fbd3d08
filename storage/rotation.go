package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// YYYYMMDDhhmmss with nanoseconds, so exports in the same second sort correctly
const timestampLayout = "20060102150405.000000000"

type chainFile struct {
	path      string
	timestamp time.Time
}

type chainFiles []chainFile

func (f chainFiles) Len() int           { return len(f) }
func (f chainFiles) Less(i, j int) bool { return f[i].timestamp.Before(f[j].timestamp) }
func (f chainFiles) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }

// listFiles returns the exports sharing prefix, oldest first. Files whose
// names do not carry a parseable timestamp are skipped.
func (s *JSONStore) listFiles(prefix string) (chainFiles, error) {
	files, err := filepath.Glob(filepath.Join(s.basePath, prefix+"*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	var result chainFiles
	for _, file := range files {
		base := filepath.Base(file)
		timestampStr := strings.TrimSuffix(strings.TrimPrefix(base, prefix), ".json")
		timestamp, err := time.Parse(timestampLayout, timestampStr)
		if err != nil {
			s.logger.Warn("invalid timestamp in filename", "file", base, "err", err)
			continue
		}
		result = append(result, chainFile{path: file, timestamp: timestamp})
	}
	sort.Sort(result)
	return result, nil
}

func (s *JSONStore) cleanupOldFiles(prefix string, keep int) error {
	files, err := s.listFiles(prefix)
	if err != nil {
		return err
	}
	if len(files) <= keep {
		return nil
	}

	for i := 0; i < len(files)-keep; i++ {
		if err := os.Remove(files[i].path); err != nil {
			s.logger.Warn("failed to remove old chain file", "path", files[i].path, "err", err)
		} else {
			s.logger.Debug("removed old chain file", "path", files[i].path)
		}
	}
	return nil
}
