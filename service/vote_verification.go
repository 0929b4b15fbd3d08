package service

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"voting-ledger/models"
)

type VoteVerificationService struct {
	ledger *VotingService
}

// VoteProof ties a recorded vote to the audit block that carries it
type VoteProof struct {
	Vote       models.Vote   `json:"vote"`
	BlockIndex uint64        `json:"blockIndex"`
	BlockHash  hexutil.Bytes `json:"blockHash"`
	PrevHash   hexutil.Bytes `json:"prevHash"`
	ChainValid bool          `json:"chainValid"`
}

func NewVoteVerificationService(ledger *VotingService) *VoteVerificationService {
	return &VoteVerificationService{ledger: ledger}
}

// Verify reports whether voteID is a recorded, finalized vote. Unknown ids are
// simply unverified.
func (vvs *VoteVerificationService) Verify(voteID string) bool {
	vote, ok := vvs.ledger.Vote(voteID)
	return ok && vote.Verified
}

// VerifyChain re-validates every block of the audit chain
func (vvs *VoteVerificationService) VerifyChain() error {
	return models.ValidateChain(vvs.ledger.Chain())
}

// Proof locates the audit block for voteID and checks that it still decodes
// to the recorded vote. found is false for unknown ids.
func (vvs *VoteVerificationService) Proof(voteID string) (proof *VoteProof, found bool, err error) {
	vote, ok := vvs.ledger.Vote(voteID)
	if !ok {
		return nil, false, nil
	}
	chain := vvs.ledger.Chain()
	if vote.BlockNumber >= uint64(len(chain)) {
		return nil, true, fmt.Errorf("%w: vote %s references missing block %d",
			models.ErrInvalidChain, voteID, vote.BlockNumber)
	}
	block := chain[vote.BlockNumber]
	recorded, err := block.Vote()
	if err != nil {
		return nil, true, err
	}
	if recorded.ID != vote.ID {
		return nil, true, fmt.Errorf("%w: block %d carries vote %s, expected %s",
			models.ErrInvalidChain, block.Index, recorded.ID, vote.ID)
	}
	return &VoteProof{
		Vote:       vote,
		BlockIndex: block.Index,
		BlockHash:  block.Hash,
		PrevHash:   block.PrevHash,
		ChainValid: models.ValidateChain(chain) == nil,
	}, true, nil
}

// AuditReport summarizes an audit chain recounted from scratch
type AuditReport struct {
	Blocks     int            `json:"blocks"`
	Votes      int            `json:"votes"`
	Counts     map[string]int `json:"counts"`
	FirstBlock time.Time      `json:"firstBlock"`
	LastBlock  time.Time      `json:"lastBlock"`
}

// AuditChain validates blocks and recounts the votes they carry without any
// ledger state. Beyond hash links it checks that every block after genesis
// holds exactly one vote recorded at that block number, and that no voter or
// vote id appears twice.
func AuditChain(blocks []*models.Block) (*AuditReport, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: chain is empty", models.ErrInvalidChain)
	}
	if err := models.ValidateChain(blocks); err != nil {
		return nil, err
	}

	report := &AuditReport{
		Blocks:     len(blocks),
		Counts:     make(map[string]int),
		FirstBlock: time.Unix(0, blocks[0].Timestamp).UTC(),
		LastBlock:  time.Unix(0, blocks[len(blocks)-1].Timestamp).UTC(),
	}
	voters := make(map[string]uint64)
	ids := make(map[string]uint64)
	for _, block := range blocks[1:] {
		vote, err := block.Vote()
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %w", models.ErrInvalidChain, block.Index, err)
		}
		if vote.BlockNumber != block.Index {
			return nil, fmt.Errorf("%w: block %d carries vote for block %d",
				models.ErrInvalidChain, block.Index, vote.BlockNumber)
		}
		if prev, seen := voters[vote.VoterAddress]; seen {
			return nil, fmt.Errorf("%w: voter %s appears in blocks %d and %d",
				ErrDuplicateVoter, vote.VoterAddress, prev, block.Index)
		}
		if prev, seen := ids[vote.ID]; seen {
			return nil, fmt.Errorf("%w: vote id %s appears in blocks %d and %d",
				models.ErrInvalidChain, vote.ID, prev, block.Index)
		}
		voters[vote.VoterAddress] = block.Index
		ids[vote.ID] = block.Index
		report.Counts[vote.CandidateID]++
		report.Votes++
	}
	return report, nil
}
