package models

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"voting-ledger/identity"
)

// ErrInvalidChain is wrapped by every ValidateChain failure
var ErrInvalidChain = errors.New("invalid chain")

// Block is one link of the audit chain. Each block after genesis carries
// exactly one vote encoded as JSON.
type Block struct {
	Index      uint64        `json:"index"`
	Timestamp  int64         `json:"timestamp"` // unix nanoseconds
	Data       hexutil.Bytes `json:"data"`
	PrevHash   hexutil.Bytes `json:"prev_hash"`
	Hash       hexutil.Bytes `json:"hash"`
	Nonce      uint64        `json:"nonce"`
	Difficulty uint8         `json:"difficulty"` // Number of leading zero bytes required
}

// NewGenesisBlock creates the empty first block of a chain
func NewGenesisBlock(timestamp int64, difficulty uint8) *Block {
	return NewBlock(0, timestamp, nil, make([]byte, 32), difficulty)
}

func NewBlock(index uint64, timestamp int64, data []byte, prevHash []byte, difficulty uint8) *Block {
	block := &Block{
		Index:      index,
		Timestamp:  timestamp,
		Data:       data,
		PrevHash:   prevHash,
		Difficulty: difficulty,
	}

	block.Mine()
	return block
}

// NewVoteBlock appends vote to the chain ending at prev
func NewVoteBlock(prev *Block, timestamp int64, vote Vote, difficulty uint8) (*Block, error) {
	data, err := json.Marshal(vote)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vote: %w", err)
	}
	// Keep timestamps monotonic even if the wall clock steps backwards
	if timestamp < prev.Timestamp {
		timestamp = prev.Timestamp
	}
	return NewBlock(prev.Index+1, timestamp, data, prev.Hash, difficulty), nil
}

func (b *Block) Mine() {
	target := make([]byte, b.Difficulty)
	var nonce uint64
	for {
		b.Nonce = nonce
		b.Hash = b.calculateHash()

		if bytes.HasPrefix(b.Hash, target) {
			return
		}
		nonce++
	}
}

func (b *Block) calculateHash() []byte {
	buffer := new(bytes.Buffer)
	_ = binary.Write(buffer, binary.BigEndian, b.Index)
	_ = binary.Write(buffer, binary.BigEndian, b.Timestamp)
	buffer.Write(b.Data)
	buffer.Write(b.PrevHash)
	_ = binary.Write(buffer, binary.BigEndian, b.Nonce)

	return identity.Keccak256(buffer.Bytes())
}

// Validate checks the stored hash and the difficulty requirement
func (b *Block) Validate() bool {
	calculatedHash := b.calculateHash()
	if !bytes.Equal(calculatedHash, b.Hash) {
		return false
	}

	target := make([]byte, b.Difficulty)
	return bytes.HasPrefix(calculatedHash, target)
}

// Vote decodes the vote carried by the block. Genesis carries none.
func (b *Block) Vote() (Vote, error) {
	var vote Vote
	if len(b.Data) == 0 {
		return vote, errors.New("block carries no vote")
	}
	if err := json.Unmarshal(b.Data, &vote); err != nil {
		return vote, fmt.Errorf("failed to unmarshal vote: %w", err)
	}
	return vote, nil
}

// ValidateChain validates an entire chain starting at genesis
func ValidateChain(blocks []*Block) error {
	if len(blocks) == 0 {
		return nil
	}

	genesis := blocks[0]
	if genesis.Index != 0 {
		return fmt.Errorf("%w: genesis block has index %d", ErrInvalidChain, genesis.Index)
	}
	if !genesis.Validate() {
		return fmt.Errorf("%w: genesis block hash mismatch", ErrInvalidChain)
	}

	for i := 1; i < len(blocks); i++ {
		currentBlock := blocks[i]
		previousBlock := blocks[i-1]

		if !currentBlock.Validate() {
			return fmt.Errorf("%w: block %d has invalid hash", ErrInvalidChain, i)
		}

		if !bytes.Equal(currentBlock.PrevHash, previousBlock.Hash) {
			return fmt.Errorf("%w: block %d has invalid previous hash link", ErrInvalidChain, i)
		}

		if currentBlock.Index != previousBlock.Index+1 {
			return fmt.Errorf("%w: block %d has invalid index", ErrInvalidChain, i)
		}

		if currentBlock.Timestamp < previousBlock.Timestamp {
			return fmt.Errorf("%w: block %d has invalid timestamp", ErrInvalidChain, i)
		}
	}

	return nil
}
