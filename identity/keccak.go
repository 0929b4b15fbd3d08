package identity

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// Generator mints the identifiers the ledger attaches to a vote. Swapping the
// implementation changes how ids and transaction references are derived
// without touching the ledger.
type Generator interface {
	// VoteID derives a vote identifier from its content and creation time
	VoteID(candidateID, voterAddress string, at time.Time) string
	// TransactionHash derives the mock transaction reference for a vote
	// recorded in the given block
	TransactionHash(at time.Time, blockNumber uint64) string
}

// KeccakGenerator derives identifiers with Keccak-256
type KeccakGenerator struct{}

func NewKeccakGenerator() *KeccakGenerator {
	return &KeccakGenerator{}
}

// VoteID returns the bare hex Keccak-256 of "candidate-voter-unixnanos"
func (g *KeccakGenerator) VoteID(candidateID, voterAddress string, at time.Time) string {
	payload := fmt.Sprintf("%s-%s-%d", candidateID, voterAddress, at.UnixNano())
	return common.Bytes2Hex(Keccak256([]byte(payload)))
}

// TransactionHash returns a 0x-prefixed Keccak-256 of "vote-unixnanos-block"
func (g *KeccakGenerator) TransactionHash(at time.Time, blockNumber uint64) string {
	payload := fmt.Sprintf("vote-%d-%d", at.UnixNano(), blockNumber)
	return hexutil.Encode(Keccak256([]byte(payload)))
}

// Keccak256 computes the legacy Keccak-256 hash used throughout Ethereum
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash is Keccak256 returned as a typed hash
func Keccak256Hash(data ...[]byte) common.Hash {
	return common.BytesToHash(Keccak256(data...))
}

// AddressFromSeed derives a stable, checksummed address from an arbitrary
// string. Used for cosmetic candidate addresses.
func AddressFromSeed(seed string) string {
	return common.BytesToAddress(Keccak256([]byte(seed))).Hex()
}

// ContractAddress returns the address a contract deployed by deployer at the
// given account nonce would receive
func ContractAddress(deployer common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(deployer, nonce)
}

// MockWallet is a throwaway secp256k1 key pair. It never signs anything; it
// only exists to hand out realistic voter addresses.
type MockWallet struct {
	Address    common.Address
	PrivateKey *ecdsa.PrivateKey
}

// NewMockWallet generates a fresh random wallet
func NewMockWallet() (*MockWallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate wallet key: %w", err)
	}
	return walletFromKey(key), nil
}

// WalletFromSeed derives a deterministic wallet whose private key is the
// Keccak-256 of seed
func WalletFromSeed(seed string) (*MockWallet, error) {
	key, err := crypto.ToECDSA(Keccak256([]byte(seed)))
	if err != nil {
		return nil, fmt.Errorf("failed to derive wallet key: %w", err)
	}
	return walletFromKey(key), nil
}

func walletFromKey(key *ecdsa.PrivateKey) *MockWallet {
	return &MockWallet{
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: key,
	}
}

// PublicKeyHex returns the uncompressed public key, 0x-prefixed
func (w *MockWallet) PublicKeyHex() string {
	return hexutil.Encode(crypto.FromECDSAPub(&w.PrivateKey.PublicKey))
}

// PrivateKeyHex returns the raw private key, 0x-prefixed
func (w *MockWallet) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(w.PrivateKey))
}
