package main

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voting-ledger/identity"
	"voting-ledger/models"
	"voting-ledger/registry"
	"voting-ledger/service"
	"voting-ledger/storage"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func exportTestChain(t *testing.T) string {
	t.Helper()
	reg, err := registry.New(registry.DefaultCatalog(time.Now().Add(-time.Minute), time.Hour))
	require.NoError(t, err)
	ledger, err := service.NewVotingService(reg)
	require.NoError(t, err)

	for i, voter := range []string{"0xaaa", "0xbbb", "0xccc"} {
		candidate := "candidate-1"
		if i == 2 {
			candidate = "candidate-2"
		}
		_, err := ledger.CastVote(candidate, voter)
		require.NoError(t, err)
	}

	store, err := storage.NewJSONStore(t.TempDir(), storage.DefaultKeep, nil)
	require.NoError(t, err)
	path, err := store.SaveChain(ledger.GetSession().ID, ledger.Chain())
	require.NoError(t, err)
	return path
}

func TestVerifyLedger(t *testing.T) {
	path := exportTestChain(t)

	out, err := runCommand(t, "verify-ledger", path)
	require.NoError(t, err)
	assert.Contains(t, out, "blocks:   4")
	assert.Contains(t, out, "votes:    3")
	assert.Contains(t, out, "chain OK")

	out, err = runCommand(t, "verify-ledger", "--json", path)
	require.NoError(t, err)
	var report service.AuditReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Votes)
	assert.Equal(t, 2, report.Counts["candidate-1"])
	assert.Equal(t, 1, report.Counts["candidate-2"])
}

func TestVerifyLedgerDetectsTampering(t *testing.T) {
	path := exportTestChain(t)
	export, err := storage.LoadChain(path)
	require.NoError(t, err)

	vote, err := export.Blocks[1].Vote()
	require.NoError(t, err)
	vote.CandidateID = "candidate-3"
	data, err := json.Marshal(vote)
	require.NoError(t, err)
	export.Blocks[1].Data = data

	raw, err := json.Marshal(export)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = runCommand(t, "verify-ledger", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidChain)
}

func TestVerifyLedgerRequiresPath(t *testing.T) {
	_, err := runCommand(t, "verify-ledger")
	require.Error(t, err)
}

func TestWalletFromSeed(t *testing.T) {
	out, err := runCommand(t, "wallet", "--seed", "voter-1")
	require.NoError(t, err)

	var got walletOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	want, err := identity.WalletFromSeed("voter-1")
	require.NoError(t, err)
	assert.Equal(t, want.Address.Hex(), got.Address)
	assert.Equal(t, want.PublicKeyHex(), got.PublicKey)
	assert.Empty(t, got.PrivateKey)

	out, err = runCommand(t, "wallet", "--seed", "voter-1", "--show-private")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, want.PrivateKeyHex(), got.PrivateKey)
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, programName)
	assert.Contains(t, out, version)
}
