package service

import (
	"sort"

	"voting-ledger/models"
)

// VoteCountingService derives tallies from the ledger on every call. Nothing is
// cached, so results can never drift from the recorded votes.
type VoteCountingService struct {
	ledger *VotingService
}

// Tally is a ranked result set and the total it was computed from, taken from
// a single ledger snapshot
type Tally struct {
	Results    []models.Candidate `json:"results"`
	TotalVotes int                `json:"totalVotes"`
}

func NewVoteCountingService(ledger *VotingService) *VoteCountingService {
	return &VoteCountingService{ledger: ledger}
}

// Results ranks candidates by vote count, highest first. Ties keep registry
// order.
func (vcs *VoteCountingService) Results() []models.Candidate {
	return vcs.Tally().Results
}

func (vcs *VoteCountingService) TotalVotes() int {
	return vcs.ledger.Size()
}

func (vcs *VoteCountingService) Tally() Tally {
	candidates, total := vcs.ledger.snapshot()
	return Tally{
		Results:    rank(candidates),
		TotalVotes: total,
	}
}

// Summary returns the ranked tally together with the session it was computed
// from, so the two always agree
func (vcs *VoteCountingService) Summary() (Tally, models.VotingSession) {
	session := vcs.ledger.GetSession()
	results := make([]models.Candidate, len(session.Candidates))
	copy(results, session.Candidates)
	return Tally{
		Results:    rank(results),
		TotalVotes: session.TotalVotes,
	}, session
}

func rank(candidates []models.Candidate) []models.Candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].VoteCount > candidates[j].VoteCount
	})
	return candidates
}

// Leader returns the first ranked candidate. ok is false while no votes exist
// or when the top two are tied.
func (t Tally) Leader() (models.Candidate, bool) {
	if len(t.Results) == 0 || t.Results[0].VoteCount == 0 {
		return models.Candidate{}, false
	}
	if len(t.Results) > 1 && t.Results[1].VoteCount == t.Results[0].VoteCount {
		return models.Candidate{}, false
	}
	return t.Results[0], true
}
