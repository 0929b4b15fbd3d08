package models

// Candidate is an entry in the election catalog. VoteCount is never stored by
// the ledger; it is filled in from the vote collection whenever a candidate is
// read.
type Candidate struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	Party             string `json:"party"`
	ImageURL          string `json:"imageUrl,omitempty"`
	VoteCount         int    `json:"voteCount"`
	BlockchainAddress string `json:"blockchainAddress"`
}
