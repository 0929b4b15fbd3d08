package service_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voting-ledger/event"
	"voting-ledger/models"
	"voting-ledger/registry"
	"voting-ledger/service"
)

var electionStart = time.Date(2025, time.November, 5, 8, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestService(t *testing.T, opts ...service.Option) (*service.VotingService, *testClock) {
	t.Helper()
	clock := &testClock{now: electionStart.Add(time.Hour)}
	reg, err := registry.New(registry.DefaultCatalog(electionStart, 12*time.Hour))
	require.NoError(t, err)
	vs, err := service.NewVotingService(reg, append([]service.Option{service.WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return vs, clock
}

func TestCastVoteReceipt(t *testing.T) {
	vs, clock := newTestService(t)

	receipt, err := vs.CastVote("candidate-1", "0xvoter")
	require.NoError(t, err)
	require.NotNil(t, receipt)

	assert.Equal(t, models.GasUsed, receipt.GasUsed)
	assert.Equal(t, uint64(1), receipt.BlockNumber)
	assert.Equal(t, receipt.TransactionHash, receipt.Vote.BlockchainTxHash)
	assert.Len(t, receipt.TransactionHash, 66)
	assert.Equal(t, "candidate-1", receipt.Vote.CandidateID)
	assert.Equal(t, "0xvoter", receipt.Vote.VoterAddress)
	assert.True(t, receipt.Vote.Verified)
	assert.Equal(t, clock.Now(), receipt.Vote.Timestamp)

	stored, ok := vs.Vote(receipt.Vote.ID)
	require.True(t, ok)
	assert.Equal(t, receipt.Vote, stored)

	second, err := vs.CastVote("candidate-2", "0xother")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.BlockNumber)
	assert.NotEqual(t, receipt.TransactionHash, second.TransactionHash)
}

func TestCastVoteInvalidRequest(t *testing.T) {
	vs, _ := newTestService(t)

	for _, tc := range []struct{ candidate, voter string }{
		{"", "0xvoter"},
		{"candidate-1", ""},
		{"   ", "0xvoter"},
		{"candidate-1", "\t\n"},
	} {
		_, err := vs.CastVote(tc.candidate, tc.voter)
		require.ErrorIs(t, err, service.ErrInvalidRequest, "candidate=%q voter=%q", tc.candidate, tc.voter)
	}
	assert.Equal(t, 0, vs.Size())
}

func TestConcurrentCastsSameVoter(t *testing.T) {
	vs, _ := newTestService(t)

	const attempts = 64
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dups      int
	)
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			candidate := fmt.Sprintf("candidate-%d", i%3+1)
			_, err := vs.CastVote(candidate, "0xsame")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, service.ErrDuplicateVoter):
				dups++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, dups)
	assert.Equal(t, 1, vs.Size())
	assert.Len(t, vs.GetHistory("0xsame"), 1)
}

func TestConservationUnderConcurrency(t *testing.T) {
	vs, _ := newTestService(t)
	counter := service.NewVoteCountingService(vs)

	const voters = 90
	var wg sync.WaitGroup
	for i := range voters {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			voter := fmt.Sprintf("0xvoter-%d", i%60)
			_, _ = vs.CastVote(fmt.Sprintf("candidate-%d", i%3+1), voter)
			_ = counter.Tally()
		}(i)
	}
	wg.Wait()

	tally := counter.Tally()
	sum := 0
	for _, c := range tally.Results {
		sum += c.VoteCount
	}
	assert.Equal(t, 60, vs.Size())
	assert.Equal(t, vs.Size(), tally.TotalVotes)
	assert.Equal(t, tally.TotalVotes, sum)
	assert.Equal(t, sum, counter.TotalVotes())
	assert.Len(t, vs.Votes(), sum)

	session := vs.GetSession()
	assert.Equal(t, sum, session.TotalVotes)

	verifier := service.NewVoteVerificationService(vs)
	require.NoError(t, verifier.VerifyChain())
	assert.Len(t, vs.Chain(), sum+1)
}

func TestClosedElectionRejection(t *testing.T) {
	vs, clock := newTestService(t)
	start, end := vs.Gate().Window()

	for _, at := range []time.Time{start.Add(-time.Nanosecond), end.Add(time.Nanosecond)} {
		clock.Set(at)
		_, err := vs.CastVote("candidate-1", "0xearly-or-late")
		require.ErrorIs(t, err, service.ErrElectionClosed)
		// Closed is checked before candidate existence
		_, err = vs.CastVote("no-such-id", "0xearly-or-late")
		require.ErrorIs(t, err, service.ErrElectionClosed)
	}
	assert.Equal(t, 0, vs.Size())

	// Both bounds are inclusive
	clock.Set(start)
	_, err := vs.CastVote("candidate-1", "0xat-start")
	require.NoError(t, err)
	clock.Set(end)
	_, err = vs.CastVote("candidate-1", "0xat-end")
	require.NoError(t, err)

	clock.Set(start.Add(time.Minute))
	require.True(t, vs.EndSession())
	require.False(t, vs.EndSession())
	assert.False(t, vs.IsVotingOpen())
	assert.False(t, vs.GetSession().IsActive)

	_, err = vs.CastVote("candidate-2", "0xafter-end")
	require.ErrorIs(t, err, service.ErrElectionClosed)
	// Malformed input still wins over a closed election
	_, err = vs.CastVote("", "0xafter-end")
	require.ErrorIs(t, err, service.ErrInvalidRequest)
	assert.Equal(t, 2, vs.Size())
}

func TestInactiveCatalogIsClosed(t *testing.T) {
	catalog := registry.DefaultCatalog(electionStart, time.Hour)
	catalog.Session.Inactive = true
	reg, err := registry.New(catalog)
	require.NoError(t, err)
	vs, err := service.NewVotingService(reg, service.WithClock(func() time.Time {
		return electionStart.Add(time.Minute)
	}))
	require.NoError(t, err)

	_, err = vs.CastVote("candidate-1", "0xvoter")
	require.ErrorIs(t, err, service.ErrElectionClosed)
	assert.False(t, vs.EndSession())
}

func TestUnknownCandidateRejection(t *testing.T) {
	vs, _ := newTestService(t)

	_, err := vs.CastVote("no-such-id", "voter-1")
	require.ErrorIs(t, err, service.ErrCandidateNotFound)
	assert.Equal(t, 0, vs.Size())
	assert.Empty(t, vs.GetHistory("voter-1"))

	// Unknown candidate is reported before a repeat voter
	_, err = vs.CastVote("candidate-1", "voter-1")
	require.NoError(t, err)
	_, err = vs.CastVote("no-such-id", "voter-1")
	require.ErrorIs(t, err, service.ErrCandidateNotFound)
}

func TestHistoryScoping(t *testing.T) {
	vs, _ := newTestService(t)

	_, err := vs.CastVote("candidate-1", "0xaaa")
	require.NoError(t, err)
	_, err = vs.CastVote("candidate-2", "0xbbb")
	require.NoError(t, err)

	history := vs.GetHistory("0xaaa")
	require.Len(t, history, 1)
	assert.Equal(t, "0xaaa", history[0].VoterAddress)
	assert.Equal(t, "candidate-1", history[0].CandidateID)

	empty := vs.GetHistory("0xnever")
	require.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestListCandidatesOverlaysCounts(t *testing.T) {
	vs, _ := newTestService(t)

	_, err := vs.CastVote("candidate-3", "0x1")
	require.NoError(t, err)

	candidates := vs.ListCandidates()
	require.Len(t, candidates, 3)
	assert.Equal(t, "candidate-1", candidates[0].ID)
	assert.Equal(t, 0, candidates[0].VoteCount)
	assert.Equal(t, 1, candidates[2].VoteCount)

	// Registry copies stay at zero
	fresh := vs.Registry().ListCandidates()
	assert.Equal(t, 0, fresh[2].VoteCount)
}

func TestEventsPublished(t *testing.T) {
	bus := event.NewEventBus(nil, nil)
	defer bus.Stop()
	vs, _ := newTestService(t, service.WithEventBus(bus))

	_, castCh := bus.Subscribe(service.VoteCastEventType)
	_, rejectCh := bus.Subscribe(service.VoteRejectedEventType)
	_, endCh := bus.Subscribe(service.SessionEndedEventType)

	receipt, err := vs.CastVote("candidate-1", "0xvoter")
	require.NoError(t, err)

	select {
	case evt := <-castCh:
		data, ok := evt.Data.(service.VoteCastEvent)
		require.True(t, ok)
		assert.Equal(t, receipt.Vote.ID, data.Vote.ID)
		assert.Equal(t, 1, data.TotalVotes)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for vote.cast")
	}

	_, err = vs.CastVote("candidate-1", "0xvoter")
	require.ErrorIs(t, err, service.ErrDuplicateVoter)
	select {
	case evt := <-rejectCh:
		data, ok := evt.Data.(service.VoteRejectedEvent)
		require.True(t, ok)
		assert.Equal(t, "duplicate_voter", data.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for vote.rejected")
	}

	require.True(t, vs.EndSession())
	select {
	case evt := <-endCh:
		data, ok := evt.Data.(service.SessionEndedEvent)
		require.True(t, ok)
		assert.Equal(t, "election-2024", data.SessionID)
		assert.Equal(t, 1, data.TotalVotes)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session.ended")
	}
}

func TestMetricsRecorded(t *testing.T) {
	promRegistry := prometheus.NewRegistry()
	vs, _ := newTestService(t, service.WithPromRegistry(promRegistry))

	_, err := vs.CastVote("candidate-1", "0x1")
	require.NoError(t, err)
	_, err = vs.CastVote("candidate-1", "0x1")
	require.Error(t, err)
	_, err = vs.CastVote("nope", "0x2")
	require.Error(t, err)

	count, err := testutil.GatherAndCount(promRegistry,
		"voting_votes_cast_total",
		"voting_vote_rejections_total",
		"voting_ledger_size",
	)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestDifficultyBounds(t *testing.T) {
	reg, err := registry.New(registry.DefaultCatalog(time.Now(), time.Hour))
	require.NoError(t, err)

	_, err = service.NewVotingService(reg, service.WithDifficulty(service.MaxDifficulty+1))
	require.Error(t, err)

	vs, err := service.NewVotingService(reg, service.WithDifficulty(1))
	require.NoError(t, err)
	_, err = vs.CastVote("candidate-2", "0xminer")
	require.NoError(t, err)
	for _, b := range vs.Chain() {
		assert.Equal(t, byte(0), b.Hash[0])
	}
}

func TestNewVotingServiceRequiresRegistry(t *testing.T) {
	_, err := service.NewVotingService(nil)
	require.Error(t, err)
}

func TestRejectionReason(t *testing.T) {
	assert.Equal(t, "", service.RejectionReason(nil))
	assert.Equal(t, "election_closed", service.RejectionReason(fmt.Errorf("wrap: %w", service.ErrElectionClosed)))
	assert.Equal(t, "internal", service.RejectionReason(errors.New("boom")))
}
