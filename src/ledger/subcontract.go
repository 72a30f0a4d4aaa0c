package ledger

// StoredSubcontract is a pending obligation: an applied AddPayment or AddSwap
// that has not been settled or cancelled yet.
type StoredSubcontract struct {
	Transition   Transition
	TransitionID uint64
	BlockID      uint64
	Timestamp    int64
	IsLeft       bool
}

// Clone ...
func (s *StoredSubcontract) Clone() *StoredSubcontract {
	return &StoredSubcontract{
		Transition:   s.Transition.Clone(),
		TransitionID: s.TransitionID,
		BlockID:      s.BlockID,
		Timestamp:    s.Timestamp,
		IsLeft:       s.IsLeft,
	}
}

// ChainID returns the chain the wrapped transition is addressed to.
func (s *StoredSubcontract) ChainID() uint32 {
	switch t := s.Transition.(type) {
	case *AddPayment:
		return t.ChainID
	case *AddSwap:
		return t.ChainID
	}
	return 0
}

// Payment returns the wrapped AddPayment, if any.
func (s *StoredSubcontract) Payment() (*AddPayment, bool) {
	p, ok := s.Transition.(*AddPayment)
	return p, ok
}

// Swap returns the wrapped AddSwap, if any.
func (s *StoredSubcontract) Swap() (*AddSwap, bool) {
	w, ok := s.Transition.(*AddSwap)
	return w, ok
}
