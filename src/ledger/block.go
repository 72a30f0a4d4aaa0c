package ledger

import (
	"github.com/mosaicnetworks/xln/src/crypto"
)

// Block is one atomic batch of transitions proposed by one side of a channel.
// Blocks are not modified once built.
type Block struct {
	IsLeft            bool
	PreviousBlockHash string
	PreviousStateHash string
	Transitions       []Transition
	BlockID           uint64
	Timestamp         int64
}

// NewBlock builds the next block on top of the committed state.
func NewBlock(state *ChannelState, isLeft bool, transitions []Transition, timestamp int64) (*Block, error) {
	stateHash, err := state.Hash()
	if err != nil {
		return nil, err
	}
	txs := make([]Transition, len(transitions))
	for i, t := range transitions {
		txs[i] = t.Clone()
	}
	return &Block{
		IsLeft:            isLeft,
		PreviousBlockHash: state.PreviousBlockHash,
		PreviousStateHash: stateHash,
		Transitions:       txs,
		BlockID:           state.BlockID,
		Timestamp:         timestamp,
	}, nil
}

// Hash returns the keccak256 hash of the canonical encoding of the block.
func (b *Block) Hash() (string, error) {
	bytes, err := b.Marshal()
	if err != nil {
		return "", err
	}
	return crypto.Keccak256Hex(bytes), nil
}
