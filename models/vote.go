package models

import "time"

// GasUsed is the fixed gas figure reported on every vote receipt
const GasUsed = "75000"

type Vote struct {
	ID               string    `json:"id"`
	CandidateID      string    `json:"candidateId"`
	VoterAddress     string    `json:"voterAddress"`
	BlockchainTxHash string    `json:"blockchainTxHash"`
	BlockNumber      uint64    `json:"blockNumber"`
	Timestamp        time.Time `json:"timestamp"`
	Verified         bool      `json:"verified"`
}

// VoteReceipt is handed back to the caller after a successful cast
type VoteReceipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     uint64 `json:"blockNumber"`
	GasUsed         string `json:"gasUsed"`
	Vote            Vote   `json:"vote"`
}
