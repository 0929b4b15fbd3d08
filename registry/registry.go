package registry

import (
	"errors"
	"fmt"
	"strings"

	"voting-ledger/identity"
	"voting-ledger/models"
)

// Registry is the fixed catalog of candidates and the election window. It is
// immutable once built and therefore safe for concurrent use.
type Registry struct {
	session    models.VotingSession
	candidates []models.Candidate
	index      map[string]int
}

// New validates catalog and builds a registry from it
func New(catalog *Catalog) (*Registry, error) {
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if strings.TrimSpace(catalog.Session.ID) == "" {
		return nil, errors.New("session id is required")
	}
	if catalog.Session.EndTime.Before(catalog.Session.StartTime) {
		return nil, fmt.Errorf("session ends (%s) before it starts (%s)",
			catalog.Session.EndTime, catalog.Session.StartTime)
	}
	if len(catalog.Candidates) == 0 {
		return nil, errors.New("at least one candidate is required")
	}

	contractAddress, err := catalog.contractAddress()
	if err != nil {
		return nil, fmt.Errorf("failed to derive contract address: %w", err)
	}

	r := &Registry{
		session: models.VotingSession{
			ID:                        catalog.Session.ID,
			Title:                     catalog.Session.Title,
			Description:               catalog.Session.Description,
			StartTime:                 catalog.Session.StartTime,
			EndTime:                   catalog.Session.EndTime,
			IsActive:                  !catalog.Session.Inactive,
			BlockchainContractAddress: contractAddress,
		},
		candidates: make([]models.Candidate, 0, len(catalog.Candidates)),
		index:      make(map[string]int, len(catalog.Candidates)),
	}

	for _, c := range catalog.Candidates {
		if err := validateCandidate(c); err != nil {
			return nil, fmt.Errorf("invalid candidate %q: %w", c.ID, err)
		}
		if _, exists := r.index[c.ID]; exists {
			return nil, fmt.Errorf("duplicate candidate id %q", c.ID)
		}

		candidate := models.Candidate{
			ID:                c.ID,
			Name:              c.Name,
			Description:       c.Description,
			Party:             c.Party,
			ImageURL:          c.ImageURL,
			BlockchainAddress: c.BlockchainAddress,
		}
		if candidate.ImageURL == "" {
			candidate.ImageURL = "/api/placeholder/" + c.ID
		}
		if candidate.BlockchainAddress == "" {
			candidate.BlockchainAddress = identity.AddressFromSeed(c.ID)
		}

		r.index[c.ID] = len(r.candidates)
		r.candidates = append(r.candidates, candidate)
	}

	return r, nil
}

func validateCandidate(c CandidateInfo) error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}

// ListCandidates returns a copy of the catalog in insertion order. Vote counts
// are always zero here; the ledger overlays them.
func (r *Registry) ListCandidates() []models.Candidate {
	candidates := make([]models.Candidate, len(r.candidates))
	copy(candidates, r.candidates)
	return candidates
}

func (r *Registry) Candidate(id string) (models.Candidate, bool) {
	i, ok := r.index[id]
	if !ok {
		return models.Candidate{}, false
	}
	return r.candidates[i], true
}

func (r *Registry) HasCandidate(id string) bool {
	_, ok := r.index[id]
	return ok
}

// Session returns the static session attributes without candidates or totals
func (r *Registry) Session() models.VotingSession {
	return r.session
}

func (r *Registry) Len() int {
	return len(r.candidates)
}
