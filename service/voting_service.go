package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"voting-ledger/event"
	"voting-ledger/identity"
	"voting-ledger/models"
	"voting-ledger/registry"
)

const (
	VoteCastEventType     event.EventType = "vote.cast"
	VoteRejectedEventType event.EventType = "vote.rejected"
	SessionEndedEventType event.EventType = "session.ended"
)

// MaxDifficulty bounds audit block mining; each extra byte multiplies the work by 256
const MaxDifficulty = 3

type VoteCastEvent struct {
	Vote       models.Vote
	TotalVotes int
}

type VoteRejectedEvent struct {
	CandidateID  string
	VoterAddress string
	Reason       string
}

type SessionEndedEvent struct {
	SessionID  string
	TotalVotes int
	EndedAt    time.Time
}

// VotingService is the vote ledger. It owns every recorded vote and the audit
// chain that mirrors them. A single RWMutex guards both, so admission checks
// and the insert happen atomically and reads see a consistent snapshot.
type VotingService struct {
	registry   *registry.Registry
	gate       *SessionGate
	generator  identity.Generator
	eventBus   *event.EventBus
	metrics    *ledgerMetrics
	clock      Clock
	difficulty uint8

	mu      sync.RWMutex
	votes   map[string]models.Vote
	order   []string
	byVoter map[string]string
	chain   []*models.Block
}

type Option func(*VotingService)

func WithClock(clock Clock) Option {
	return func(vs *VotingService) {
		vs.clock = clock
	}
}

func WithGenerator(generator identity.Generator) Option {
	return func(vs *VotingService) {
		vs.generator = generator
	}
}

func WithEventBus(eventBus *event.EventBus) Option {
	return func(vs *VotingService) {
		vs.eventBus = eventBus
	}
}

func WithPromRegistry(registry prometheus.Registerer) Option {
	return func(vs *VotingService) {
		vs.metrics = newLedgerMetrics(registry)
	}
}

// WithDifficulty sets the number of leading zero bytes each audit block must
// be mined to
func WithDifficulty(difficulty uint8) Option {
	return func(vs *VotingService) {
		vs.difficulty = difficulty
	}
}

func NewVotingService(reg *registry.Registry, opts ...Option) (*VotingService, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	vs := &VotingService{
		registry: reg,
		votes:    make(map[string]models.Vote),
		byVoter:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(vs)
	}
	if vs.clock == nil {
		vs.clock = time.Now
	}
	if vs.generator == nil {
		vs.generator = identity.NewKeccakGenerator()
	}
	if vs.difficulty > MaxDifficulty {
		return nil, fmt.Errorf("difficulty %d is too high, maximum is %d", vs.difficulty, MaxDifficulty)
	}
	vs.gate = NewSessionGate(reg.Session(), vs.clock)
	vs.chain = []*models.Block{
		models.NewGenesisBlock(vs.clock().UnixNano(), vs.difficulty),
	}
	return vs, nil
}

// CastVote records one vote for candidateID on behalf of voterAddress. Checks
// run in a fixed order and the first failure wins: malformed input, closed
// election, unknown candidate, repeat voter.
func (vs *VotingService) CastVote(candidateID, voterAddress string) (*models.VoteReceipt, error) {
	start := time.Now()

	receipt, total, err := vs.castVote(candidateID, voterAddress)
	if err != nil {
		reason := RejectionReason(err)
		vs.metrics.recordRejection(reason, time.Since(start))
		vs.publish(VoteRejectedEventType, VoteRejectedEvent{
			CandidateID:  candidateID,
			VoterAddress: voterAddress,
			Reason:       reason,
		})
		return nil, err
	}

	vs.metrics.recordCast(time.Since(start), total)
	vs.publish(VoteCastEventType, VoteCastEvent{
		Vote:       receipt.Vote,
		TotalVotes: total,
	})
	return receipt, nil
}

func (vs *VotingService) castVote(candidateID, voterAddress string) (*models.VoteReceipt, int, error) {
	if strings.TrimSpace(candidateID) == "" {
		return nil, 0, fmt.Errorf("%w: candidate id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(voterAddress) == "" {
		return nil, 0, fmt.Errorf("%w: voter address is required", ErrInvalidRequest)
	}

	vs.mu.Lock()
	defer vs.mu.Unlock()

	now := vs.clock()
	if !vs.gate.IsOpen(now) {
		return nil, 0, fmt.Errorf("%w: session %s", ErrElectionClosed, vs.registry.Session().ID)
	}
	if !vs.registry.HasCandidate(candidateID) {
		return nil, 0, fmt.Errorf("%w: %q", ErrCandidateNotFound, candidateID)
	}
	if _, voted := vs.byVoter[voterAddress]; voted {
		return nil, 0, fmt.Errorf("%w: %s", ErrDuplicateVoter, voterAddress)
	}

	prev := vs.chain[len(vs.chain)-1]
	blockNumber := prev.Index + 1
	vote := models.Vote{
		ID:               vs.generator.VoteID(candidateID, voterAddress, now),
		CandidateID:      candidateID,
		VoterAddress:     voterAddress,
		BlockchainTxHash: vs.generator.TransactionHash(now, blockNumber),
		BlockNumber:      blockNumber,
		Timestamp:        now,
		Verified:         true,
	}
	if _, exists := vs.votes[vote.ID]; exists {
		return nil, 0, fmt.Errorf("vote id collision: %s", vote.ID)
	}

	// Everything that can fail happens before the ledger is touched
	block, err := models.NewVoteBlock(prev, now.UnixNano(), vote, vs.difficulty)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build audit block: %w", err)
	}

	vs.chain = append(vs.chain, block)
	vs.votes[vote.ID] = vote
	vs.order = append(vs.order, vote.ID)
	vs.byVoter[voterAddress] = vote.ID

	return &models.VoteReceipt{
		TransactionHash: vote.BlockchainTxHash,
		BlockNumber:     blockNumber,
		GasUsed:         models.GasUsed,
		Vote:            vote,
	}, len(vs.order), nil
}

// EndSession closes the election. Only the call that actually closes it
// publishes a session.ended event.
func (vs *VotingService) EndSession() bool {
	if !vs.gate.End() {
		return false
	}
	vs.publish(SessionEndedEventType, SessionEndedEvent{
		SessionID:  vs.registry.Session().ID,
		TotalVotes: vs.Size(),
		EndedAt:    vs.clock(),
	})
	return true
}

func (vs *VotingService) publish(eventType event.EventType, data any) {
	if vs.eventBus == nil {
		return
	}
	vs.eventBus.PublishAsync(eventType, event.NewEvent(eventType, data))
}

func (vs *VotingService) Vote(id string) (models.Vote, bool) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	vote, ok := vs.votes[id]
	return vote, ok
}

// Votes returns every vote in the order it was recorded
func (vs *VotingService) Votes() []models.Vote {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	votes := make([]models.Vote, 0, len(vs.order))
	for _, id := range vs.order {
		votes = append(votes, vs.votes[id])
	}
	return votes
}

func (vs *VotingService) Size() int {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return len(vs.order)
}

// Chain returns a copy of the audit chain, genesis first
func (vs *VotingService) Chain() []*models.Block {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	blocks := make([]*models.Block, len(vs.chain))
	for i, b := range vs.chain {
		cp := *b
		blocks[i] = &cp
	}
	return blocks
}

// GetHistory returns the votes cast by voterAddress in recording order. The
// result is empty, never nil, for an address that has not voted.
func (vs *VotingService) GetHistory(voterAddress string) []models.Vote {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	history := make([]models.Vote, 0)
	for _, id := range vs.order {
		if vote := vs.votes[id]; vote.VoterAddress == voterAddress {
			history = append(history, vote)
		}
	}
	return history
}

// ListCandidates returns the catalog in registry order with counts derived
// from the ledger
func (vs *VotingService) ListCandidates() []models.Candidate {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	candidates, _ := vs.snapshotLocked()
	return candidates
}

// GetSession returns the session with fresh candidate counts and totals
func (vs *VotingService) GetSession() models.VotingSession {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	candidates, total := vs.snapshotLocked()
	session := vs.registry.Session()
	session.IsActive = vs.gate.Active()
	session.Candidates = candidates
	session.TotalVotes = total
	return session
}

func (vs *VotingService) IsVotingOpen() bool {
	return vs.gate.IsVotingOpen()
}

func (vs *VotingService) Gate() *SessionGate {
	return vs.gate
}

func (vs *VotingService) Registry() *registry.Registry {
	return vs.registry
}

// snapshot takes the candidate list and total under one read lock
func (vs *VotingService) snapshot() ([]models.Candidate, int) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.snapshotLocked()
}

func (vs *VotingService) snapshotLocked() ([]models.Candidate, int) {
	counts := make(map[string]int, vs.registry.Len())
	for _, vote := range vs.votes {
		counts[vote.CandidateID]++
	}
	candidates := vs.registry.ListCandidates()
	for i := range candidates {
		candidates[i].VoteCount = counts[candidates[i].ID]
	}
	return candidates, len(vs.order)
}
