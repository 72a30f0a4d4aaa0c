// Package proof derives the dispute material of a channel state: one ABI
// encoded body and signed digest per subchannel plus a signature over the
// whole state.
package proof

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mosaicnetworks/xln/src/common"
	"github.com/mosaicnetworks/xln/src/crypto"
	"github.com/mosaicnetworks/xln/src/crypto/keys"
	"github.com/mosaicnetworks/xln/src/ledger"
)

// Proofs is the dispute material of one ChannelState.
type Proofs struct {
	ProofBodies        []ProofBody
	EncodedProofBodies [][]byte
	SubcontractBatches [][]byte
	Digests            [][]byte
	StateHash          []byte
	Signatures         []string
}

// Builder builds proofs that point at a fixed subcontract provider.
type Builder struct {
	Provider ethcommon.Address
}

// NewBuilder ...
func NewBuilder(provider string) *Builder {
	return &Builder{Provider: ethcommon.HexToAddress(provider)}
}

// Build computes the unsigned proofs of state.
func (b *Builder) Build(state *ledger.ChannelState) (*Proofs, error) {
	channelKey, err := hexutil.Decode(state.ChannelKey)
	if err != nil {
		return nil, fmt.Errorf("channel key: %w", err)
	}
	stateHash, err := state.Hash()
	if err != nil {
		return nil, err
	}
	stateHashBytes, err := hexutil.Decode(stateHash)
	if err != nil {
		return nil, err
	}

	proofs := &Proofs{StateHash: stateHashBytes}

	for _, sc := range state.Subchannels {
		batch, err := buildBatch(sc, state.SubcontractsOf(sc.ChainID))
		if err != nil {
			return nil, err
		}
		encodedBatch, err := EncodeBatch(batch)
		if err != nil {
			return nil, fmt.Errorf("encoding batch of chain %d: %w", sc.ChainID, err)
		}

		body := ProofBody{
			OffDeltas: make([]*big.Int, len(sc.Deltas)),
			TokenIds:  make([]*big.Int, len(sc.Deltas)),
			Subcontracts: []SubcontractClause{{
				SubcontractProviderAddress: b.Provider,
				EncodedBatch:               encodedBatch,
				Allowences:                 []Allowence{},
			}},
		}
		for i, d := range sc.Deltas {
			body.OffDeltas[i] = new(big.Int).Set(d.OffDelta)
			body.TokenIds[i] = new(big.Int).SetUint64(uint64(d.TokenID))
		}
		encodedBody, err := EncodeProofBody(body)
		if err != nil {
			return nil, fmt.Errorf("encoding proof body of chain %d: %w", sc.ChainID, err)
		}

		var bodyHash [32]byte
		copy(bodyHash[:], crypto.Keccak256(encodedBody))
		packed, err := digestArgs.Pack(
			big.NewInt(int64(DisputeProof)),
			channelKey,
			new(big.Int).SetUint64(sc.CooperativeNonce),
			new(big.Int).SetUint64(sc.DisputeNonce),
			bodyHash,
		)
		if err != nil {
			return nil, err
		}

		proofs.ProofBodies = append(proofs.ProofBodies, body)
		proofs.EncodedProofBodies = append(proofs.EncodedProofBodies, encodedBody)
		proofs.SubcontractBatches = append(proofs.SubcontractBatches, encodedBatch)
		proofs.Digests = append(proofs.Digests, crypto.Keccak256(packed))
	}

	return proofs, nil
}

// BuildSigned builds the proofs of state and signs them with priv.
func (b *Builder) BuildSigned(state *ledger.ChannelState, priv *ecdsa.PrivateKey) (*Proofs, error) {
	proofs, err := b.Build(state)
	if err != nil {
		return nil, err
	}
	if err := proofs.Sign(priv); err != nil {
		return nil, err
	}
	if len(proofs.Signatures) != len(state.Subchannels)+1 {
		return nil, common.NewChannelErr("Proofs", common.Invariant,
			fmt.Sprintf("%d signatures for %d subchannels", len(proofs.Signatures), len(state.Subchannels)))
	}
	return proofs, nil
}

// Sign signs every digest and then the state hash.
func (p *Proofs) Sign(priv *ecdsa.PrivateKey) error {
	sigs := make([]string, 0, len(p.Digests)+1)
	for _, d := range p.Digests {
		sig, err := keys.SignDigest(priv, d)
		if err != nil {
			return err
		}
		sigs = append(sigs, sig)
	}
	global, err := keys.SignDigest(priv, p.StateHash)
	if err != nil {
		return err
	}
	p.Signatures = append(sigs, global)
	return nil
}

// Verify checks that sigs are the signatures of signer over the proofs of
// state.
func (b *Builder) Verify(state *ledger.ChannelState, signer string, sigs []string) error {
	proofs, err := b.Build(state)
	if err != nil {
		return err
	}
	if len(sigs) != len(proofs.Digests)+1 {
		return common.NewChannelErr("Proofs", common.InvalidSignature,
			fmt.Sprintf("expected %d signatures, got %d", len(proofs.Digests)+1, len(sigs)))
	}
	for i, d := range proofs.Digests {
		if !keys.VerifyDigest(signer, d, sigs[i]) {
			return common.NewChannelErr("Proofs", common.InvalidSignature, fmt.Sprintf("subchannel %d", i))
		}
	}
	if !keys.VerifyDigest(signer, proofs.StateHash, sigs[len(sigs)-1]) {
		return common.NewChannelErr("Proofs", common.InvalidSignature, "state")
	}
	return nil
}

func buildBatch(sc *ledger.Subchannel, subcontracts []*ledger.StoredSubcontract) (Batch, error) {
	batch := Batch{
		Payment: []PaymentClause{},
		Swap:    []SwapClause{},
	}
	for _, stored := range subcontracts {
		switch t := stored.Transition.(type) {
		case *ledger.AddPayment:
			index, err := deltaIndex(sc, t.TokenID)
			if err != nil {
				return batch, err
			}
			amount := new(big.Int).Set(t.Amount)
			if stored.IsLeft {
				amount.Neg(amount)
			}
			hash, err := hexutil.Decode(t.Hashlock)
			if err != nil {
				return batch, fmt.Errorf("hashlock of transition %d: %w", stored.TransitionID, err)
			}
			clause := PaymentClause{
				DeltaIndex:         index,
				Amount:             amount,
				RevealedUntilBlock: big.NewInt(max(t.Timelock, 0)),
			}
			copy(clause.Hash[:], hash)
			batch.Payment = append(batch.Payment, clause)
		case *ledger.AddSwap:
			addIndex, err := deltaIndex(sc, t.TokenID)
			if err != nil {
				return batch, err
			}
			subIndex, err := deltaIndex(sc, t.SubTokenID)
			if err != nil {
				return batch, err
			}
			batch.Swap = append(batch.Swap, SwapClause{
				OwnerIsLeft:   t.OwnerIsLeft,
				AddDeltaIndex: addIndex,
				AddAmount:     new(big.Int).Set(t.AddAmount),
				SubDeltaIndex: subIndex,
				SubAmount:     new(big.Int).Set(t.SubAmount),
			})
		}
	}
	return batch, nil
}

func deltaIndex(sc *ledger.Subchannel, tokenID uint32) (*big.Int, error) {
	i := sc.DeltaIndex(tokenID)
	if i < 0 {
		return nil, common.NewChannelErr("Delta", common.Invariant,
			fmt.Sprintf("subcontract references token %d missing on chain %d", tokenID, sc.ChainID))
	}
	return big.NewInt(int64(i)), nil
}
