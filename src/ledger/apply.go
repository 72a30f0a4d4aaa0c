package ledger

import (
	"fmt"

	"github.com/mosaicnetworks/xln/src/common"
)

// ApplyBlock applies block to a copy of state and returns the copy together
// with the events the transitions produced. state itself is never modified, so
// a failing transition leaves nothing behind. Events are only collected when
// dryRun is false.
func ApplyBlock(state *ChannelState, block *Block, dryRun bool) (*ChannelState, []Event, error) {
	if err := CheckChain(state, block); err != nil {
		return nil, nil, err
	}

	preHash, err := state.Hash()
	if err != nil {
		return nil, nil, err
	}
	blockHash, err := block.Hash()
	if err != nil {
		return nil, nil, err
	}

	app := &Application{
		State:  state.Clone(),
		Block:  block,
		DryRun: dryRun,
	}

	for i, t := range block.Transitions {
		app.TransitionID = app.State.TransitionID
		if err := t.ApplyTo(app); err != nil {
			return nil, nil, &TransitionError{Index: i, Type: t.Type(), Err: err}
		}
		app.State.TransitionID++
	}

	next := app.State
	next.PreviousBlockHash = blockHash
	next.PreviousStateHash = preHash
	next.BlockID++
	next.Timestamp = block.Timestamp
	for _, sc := range next.Subchannels {
		sc.DisputeNonce = next.BlockID
	}

	return next, app.Events, nil
}

// TransitionError reports the transition that aborted a block application.
type TransitionError struct {
	Index int
	Type  TransitionType
	Err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %d (%s): %v", e.Index, e.Type, e.Err)
}

// Unwrap ...
func (e *TransitionError) Unwrap() error {
	return e.Err
}

// CheckChain verifies that block extends the committed state.
func CheckChain(state *ChannelState, block *Block) error {
	if block.BlockID != state.BlockID {
		return common.NewChannelErr("Block", common.HashChainMismatch,
			fmt.Sprintf("block id %d, committed %d", block.BlockID, state.BlockID))
	}
	if block.PreviousBlockHash != state.PreviousBlockHash {
		return common.NewChannelErr("Block", common.HashChainMismatch, "previous block hash")
	}
	stateHash, err := state.Hash()
	if err != nil {
		return err
	}
	if block.PreviousStateHash != stateHash {
		return common.NewChannelErr("Block", common.HashChainMismatch, "previous state hash")
	}
	return nil
}
