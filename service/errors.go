package service

import "errors"

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrElectionClosed    = errors.New("election is not active")
	ErrCandidateNotFound = errors.New("candidate not found")
	ErrDuplicateVoter    = errors.New("voter has already voted")
)

// RejectionReason maps a cast error to a short label used in metrics and
// rejection events
func RejectionReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrElectionClosed):
		return "election_closed"
	case errors.Is(err, ErrCandidateNotFound):
		return "candidate_not_found"
	case errors.Is(err, ErrDuplicateVoter):
		return "duplicate_voter"
	default:
		return "internal"
	}
}
