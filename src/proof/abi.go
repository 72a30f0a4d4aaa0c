package proof

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// MessageType mirrors the message kinds of the dispute contract.
type MessageType int64

const (
	CooperativeUpdate MessageType = iota
	CooperativeDisputeProof
	DisputeProof
)

// ProofBody is the per-subchannel dispute material.
type ProofBody struct {
	OffDeltas    []*big.Int
	TokenIds     []*big.Int
	Subcontracts []SubcontractClause
}

// SubcontractClause points the contract at the provider that interprets
// EncodedBatch.
type SubcontractClause struct {
	SubcontractProviderAddress ethcommon.Address
	EncodedBatch               []byte
	Allowences                 []Allowence
}

// Allowence ...
type Allowence struct {
	DeltaIndex     *big.Int
	RightAllowence *big.Int
	LeftAllowence  *big.Int
}

// Batch groups the pending subcontracts of one subchannel.
type Batch struct {
	Payment []PaymentClause
	Swap    []SwapClause
}

// PaymentClause is a hashlocked payment. Amount is negative when the payment
// moves value away from the left side.
type PaymentClause struct {
	DeltaIndex         *big.Int
	Amount             *big.Int
	RevealedUntilBlock *big.Int
	Hash               [32]byte
}

// SwapClause ...
type SwapClause struct {
	OwnerIsLeft   bool
	AddDeltaIndex *big.Int
	AddAmount     *big.Int
	SubDeltaIndex *big.Int
	SubAmount     *big.Int
}

var (
	proofBodyArgs abi.Arguments
	batchArgs     abi.Arguments
	digestArgs    abi.Arguments
)

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

func init() {
	proofBodyArgs = abi.Arguments{{Type: mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "offDeltas", Type: "int256[]"},
		{Name: "tokenIds", Type: "uint256[]"},
		{Name: "subcontracts", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "subcontractProviderAddress", Type: "address"},
			{Name: "encodedBatch", Type: "bytes"},
			{Name: "allowences", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
				{Name: "deltaIndex", Type: "uint256"},
				{Name: "rightAllowence", Type: "uint256"},
				{Name: "leftAllowence", Type: "uint256"},
			}},
		}},
	})}}

	batchArgs = abi.Arguments{{Type: mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "payment", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "deltaIndex", Type: "uint256"},
			{Name: "amount", Type: "int256"},
			{Name: "revealedUntilBlock", Type: "uint256"},
			{Name: "hash", Type: "bytes32"},
		}},
		{Name: "swap", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "ownerIsLeft", Type: "bool"},
			{Name: "addDeltaIndex", Type: "uint256"},
			{Name: "addAmount", Type: "uint256"},
			{Name: "subDeltaIndex", Type: "uint256"},
			{Name: "subAmount", Type: "uint256"},
		}},
	})}}

	digestArgs = abi.Arguments{
		{Type: mustType("uint256", nil)},
		{Type: mustType("bytes", nil)},
		{Type: mustType("uint256", nil)},
		{Type: mustType("uint256", nil)},
		{Type: mustType("bytes32", nil)},
	}
}

// EncodeBatch returns the ABI encoding of b.
func EncodeBatch(b Batch) ([]byte, error) {
	return batchArgs.Pack(b)
}

// EncodeProofBody returns the ABI encoding of p.
func EncodeProofBody(p ProofBody) ([]byte, error) {
	return proofBodyArgs.Pack(p)
}
