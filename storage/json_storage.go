package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"voting-ledger/models"
)

const DefaultKeep = 5

// ChainExport is the on-disk form of an audit chain snapshot
type ChainExport struct {
	SessionID  string          `json:"session_id"`
	ExportedAt time.Time       `json:"exported_at"`
	BlockCount int             `json:"block_count"`
	Valid      bool            `json:"valid"`
	Blocks     []*models.Block `json:"blocks"`
}

// JSONStore writes timestamped audit chain exports to a directory and keeps
// only the newest few per session
type JSONStore struct {
	basePath string
	keep     int
	logger   *slog.Logger
	now      func() time.Time
	mu       sync.Mutex
}

func NewJSONStore(basePath string, keep int, logger *slog.Logger) (*JSONStore, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if keep <= 0 {
		keep = DefaultKeep
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONStore{
		basePath: absPath,
		keep:     keep,
		logger:   logger.With("component", "storage"),
		now:      time.Now,
	}, nil
}

func (s *JSONStore) Dir() string {
	return s.basePath
}

// SaveChain writes blocks to a new export file and returns its path. The file
// appears atomically: it is written under a temporary name and renamed.
func (s *JSONStore) SaveChain(sessionID string, blocks []*models.Block) (string, error) {
	if len(blocks) == 0 {
		return "", errors.New("cannot save empty chain")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exportedAt := s.now().UTC()
	export := ChainExport{
		SessionID:  sessionID,
		ExportedAt: exportedAt,
		BlockCount: len(blocks),
		Valid:      models.ValidateChain(blocks) == nil,
		Blocks:     blocks,
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal chain: %w", err)
	}

	prefix := filePrefix(sessionID)
	path := filepath.Join(s.basePath, prefix+exportedAt.Format(timestampLayout)+".json")
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write chain file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to save chain file: %w", err)
	}

	if err := s.cleanupOldFiles(prefix, s.keep); err != nil {
		s.logger.Warn("failed to clean up old exports", "err", err)
	}

	s.logger.Info(
		"saved audit chain",
		"session", sessionID,
		"blocks", len(blocks),
		"valid", export.Valid,
		"path", path,
	)
	return path, nil
}

// LatestPath returns the newest export for sessionID, or "" when none exist
func (s *JSONStore) LatestPath(sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files, err := s.listFiles(filePrefix(sessionID))
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}
	return files[len(files)-1].path, nil
}

// LoadChain reads an export file written by SaveChain. It does not validate
// the chain; callers decide what to do with a broken one.
func LoadChain(path string) (*ChainExport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain file: %w", err)
	}
	var export ChainExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chain from %s: %w", path, err)
	}
	if export.BlockCount != len(export.Blocks) {
		return nil, fmt.Errorf("%w: header says %d blocks, file has %d",
			models.ErrInvalidChain, export.BlockCount, len(export.Blocks))
	}
	return &export, nil
}

func filePrefix(sessionID string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, sessionID)
	if clean == "" {
		clean = "session"
	}
	return clean + "_chain_"
}
