package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voting-ledger/models"
)

func testChain(t *testing.T, votes int) []*models.Block {
	t.Helper()
	genesis := models.NewGenesisBlock(1_000, 0)
	blocks := []*models.Block{genesis}
	for i := range votes {
		vote := models.Vote{
			ID:           "vote",
			CandidateID:  "candidate-1",
			VoterAddress: "0xvoter",
			BlockNumber:  uint64(i + 1),
			Timestamp:    time.Unix(0, int64(2_000+i)).UTC(),
			Verified:     true,
		}
		block, err := models.NewVoteBlock(blocks[len(blocks)-1], int64(2_000+i), vote, 0)
		require.NoError(t, err)
		blocks = append(blocks, block)
	}
	return blocks
}

func newTestStore(t *testing.T, keep int) (*JSONStore, *time.Time) {
	t.Helper()
	store, err := NewJSONStore(t.TempDir(), keep, nil)
	require.NoError(t, err)
	now := time.Date(2025, time.November, 5, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, &now
}

func TestSaveAndLoadChain(t *testing.T) {
	store, _ := newTestStore(t, 0)
	blocks := testChain(t, 3)

	path, err := store.SaveChain("election-2024", blocks)
	require.NoError(t, err)
	assert.Equal(t, "election-2024_chain_20251105120000.000000000.json", filepath.Base(path))

	export, err := LoadChain(path)
	require.NoError(t, err)
	assert.Equal(t, "election-2024", export.SessionID)
	assert.True(t, export.Valid)
	require.Len(t, export.Blocks, 4)
	require.NoError(t, models.ValidateChain(export.Blocks))

	vote, err := export.Blocks[2].Vote()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), vote.BlockNumber)

	latest, err := store.LatestPath("election-2024")
	require.NoError(t, err)
	assert.Equal(t, path, latest)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSaveChainRejectsEmpty(t *testing.T) {
	store, _ := newTestStore(t, 0)
	_, err := store.SaveChain("s", nil)
	require.Error(t, err)
}

func TestSaveChainRotation(t *testing.T) {
	store, now := newTestStore(t, 3)
	blocks := testChain(t, 1)

	var paths []string
	for i := range 6 {
		*now = now.Add(time.Duration(i+1) * time.Millisecond)
		path, err := store.SaveChain("rotate", blocks)
		require.NoError(t, err)
		paths = append(paths, path)
	}
	// An unrelated session is left alone
	_, err := store.SaveChain("other", blocks)
	require.NoError(t, err)

	files, err := store.listFiles(filePrefix("rotate"))
	require.NoError(t, err)
	require.Len(t, files, 3)
	for i, f := range files {
		assert.Equal(t, paths[3+i], f.path)
	}

	others, err := store.listFiles(filePrefix("other"))
	require.NoError(t, err)
	assert.Len(t, others, 1)

	latest, err := store.LatestPath("rotate")
	require.NoError(t, err)
	assert.Equal(t, paths[5], latest)
}

func TestLatestPathEmpty(t *testing.T) {
	store, _ := newTestStore(t, 0)
	latest, err := store.LatestPath("nothing")
	require.NoError(t, err)
	assert.Empty(t, latest)
}

func TestLoadChainDetectsTruncation(t *testing.T) {
	store, _ := newTestStore(t, 0)
	path, err := store.SaveChain("s", testChain(t, 2))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	broken := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(broken, data[:len(data)/2], 0o644))
	_, err = LoadChain(broken)
	require.Error(t, err)

	_, err = LoadChain(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestFilePrefixSanitizes(t *testing.T) {
	assert.Equal(t, "a-b-c_chain_", filePrefix("a/b c"))
	assert.Equal(t, "session_chain_", filePrefix(""))
}
