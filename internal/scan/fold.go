package scan

import (
	"math/big"

	"github.com/moose-code/snubb/internal/model"
)

// TxInfo resolves a transaction hash to its sender and destination,
// normalized. A missing destination (contract creation) is the empty string.
type TxInfo struct {
	From string
	To   string
}

// ChainState is the per-chain fold output: the latest approval granted by
// the target for each (token, spender) pair, and the transfer amounts
// attributed to each spender. Owned exclusively by one chain scanner while
// scanning; read by the orchestrator only after the scan finishes.
type ChainState struct {
	ChainID   uint64
	Approvals map[string]map[string]model.ApprovalRecord
	Usage     map[string]map[string]*big.Int
}

// NewChainState creates empty fold state for a chain.
func NewChainState(chainID uint64) *ChainState {
	return &ChainState{
		ChainID:   chainID,
		Approvals: make(map[string]map[string]model.ApprovalRecord),
		Usage:     make(map[string]map[string]*big.Int),
	}
}

// Fold merges one batch of decoded events into the state. target must be
// normalized. txs is the batch's paired transaction list keyed by hash.
// Batches must arrive in non-decreasing block order, which the backend's
// pagination contract guarantees.
func (s *ChainState) Fold(target string, events []model.DecodedEvent, txs map[string]TxInfo) {
	for _, ev := range events {
		switch ev.Kind {
		case model.EventApproval:
			s.foldApproval(target, ev)
		case model.EventTransfer:
			s.foldTransfer(target, ev, txs)
		}
	}
}

func (s *ChainState) foldApproval(target string, ev model.DecodedEvent) {
	if ev.Owner != target {
		return
	}
	// An approval replaces any earlier approval for the same spender, so the
	// latest observed event wins unconditionally.
	byToken := s.Approvals[ev.TokenAddress]
	if byToken == nil {
		byToken = make(map[string]model.ApprovalRecord)
		s.Approvals[ev.TokenAddress] = byToken
	}
	byToken[ev.Spender] = model.ApprovalRecord{
		Amount:      ev.Amount,
		BlockNumber: ev.BlockNumber,
		TxHash:      ev.TxHash,
	}
}

// foldTransfer attributes a transfer out of the target's balance to the
// spender that consumed the approval. The attribution is a heuristic, not
// ground truth: a transferFrom is usually submitted by the spender itself
// (rule 1), and some flows have the owner call the spender contract directly
// in the transaction that moves the tokens (rule 2). Anything else is not
// attributable and is dropped.
func (s *ChainState) foldTransfer(target string, ev model.DecodedEvent, txs map[string]TxInfo) {
	if ev.From != target {
		return
	}
	tx, ok := txs[ev.TxHash]
	if !ok {
		return
	}
	if tx.From != "" && tx.From != target {
		s.addUsage(ev.TokenAddress, tx.From, ev.Amount)
		return
	}
	if tx.From == target && tx.To != "" {
		if _, approved := s.Approvals[ev.TokenAddress][tx.To]; approved {
			s.addUsage(ev.TokenAddress, tx.To, ev.Amount)
		}
	}
}

func (s *ChainState) addUsage(token, spender string, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	byToken := s.Usage[token]
	if byToken == nil {
		byToken = make(map[string]*big.Int)
		s.Usage[token] = byToken
	}
	current := byToken[spender]
	if current == nil {
		current = new(big.Int)
		byToken[spender] = current
	}
	current.Add(current, amount)
}
