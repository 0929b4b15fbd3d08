package models

import "time"

// VotingSession describes the single election hosted by the process
type VotingSession struct {
	ID                        string      `json:"id"`
	Title                     string      `json:"title"`
	Description               string      `json:"description"`
	StartTime                 time.Time   `json:"startTime"`
	EndTime                   time.Time   `json:"endTime"`
	IsActive                  bool        `json:"isActive"`
	Candidates                []Candidate `json:"candidates"`
	TotalVotes                int         `json:"totalVotes"`
	BlockchainContractAddress string      `json:"blockchainContractAddress"`
}
