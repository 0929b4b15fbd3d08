package registry

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"voting-ledger/identity"
)

// ContractDeployerSeed seeds the deterministic wallet used to derive a
// contract address when a catalog does not pin one
const ContractDeployerSeed = "voting-app-private-key"

// Catalog is the on-disk description of an election
type Catalog struct {
	Session    SessionInfo     `yaml:"session"`
	Candidates []CandidateInfo `yaml:"candidates"`
}

type SessionInfo struct {
	ID              string    `yaml:"id"`
	Title           string    `yaml:"title"`
	Description     string    `yaml:"description"`
	StartTime       time.Time `yaml:"startTime"`
	EndTime         time.Time `yaml:"endTime"`
	Inactive        bool      `yaml:"inactive"`
	ContractAddress string    `yaml:"contractAddress"`
}

type CandidateInfo struct {
	ID                string `yaml:"id"`
	Name              string `yaml:"name"`
	Description       string `yaml:"description"`
	Party             string `yaml:"party"`
	ImageURL          string `yaml:"imageUrl"`
	BlockchainAddress string `yaml:"blockchainAddress"`
}

// DefaultCatalog returns the built-in three candidate election, open from now
// for the given duration
func DefaultCatalog(now time.Time, duration time.Duration) *Catalog {
	return &Catalog{
		Session: SessionInfo{
			ID:              "election-2024",
			Title:           "Presidential Election 2024",
			Description:     "Vote for your preferred candidate in the 2024 Presidential Election",
			StartTime:       now,
			EndTime:         now.Add(duration),
			ContractAddress: "0x742d35Cc6634C0532925a3b8D0F4a9e58c4D0C2e",
		},
		Candidates: []CandidateInfo{
			{
				ID:                "candidate-1",
				Name:              "Alex Johnson",
				Description:       "Experienced leader focused on economic growth and innovation",
				Party:             "Progressive Party",
				BlockchainAddress: "0x1234567890abcdef1234567890abcdef12345678",
			},
			{
				ID:                "candidate-2",
				Name:              "Maria Rodriguez",
				Description:       "Champion of social justice and environmental sustainability",
				Party:             "Green Alliance",
				BlockchainAddress: "0xabcdef1234567890abcdef1234567890abcdef12",
			},
			{
				ID:                "candidate-3",
				Name:              "David Chen",
				Description:       "Technology advocate promoting digital transformation",
				Party:             "Tech Forward",
				BlockchainAddress: "0x567890abcdef1234567890abcdef1234567890ab",
			},
		},
	}
}

// LoadCatalog reads a YAML catalog. A missing window start defaults to now
// and a missing end to start+duration.
func LoadCatalog(path string, now time.Time, duration time.Duration) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	if catalog.Session.StartTime.IsZero() {
		catalog.Session.StartTime = now
	}
	if catalog.Session.EndTime.IsZero() {
		catalog.Session.EndTime = catalog.Session.StartTime.Add(duration)
	}
	return &catalog, nil
}

func (c *Catalog) contractAddress() (string, error) {
	if c.Session.ContractAddress != "" {
		return c.Session.ContractAddress, nil
	}
	deployer, err := identity.WalletFromSeed(ContractDeployerSeed + "/" + c.Session.ID)
	if err != nil {
		return "", err
	}
	return identity.ContractAddress(deployer.Address, 0).Hex(), nil
}
