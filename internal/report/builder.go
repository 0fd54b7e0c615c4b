package report

import (
	"math/big"
	"sort"

	"github.com/moose-code/snubb/internal/model"
	"github.com/moose-code/snubb/internal/scan"
)

// Build computes outstanding exposure for every tracked approval across
// chains and returns the report in deterministic risk-first order. Rows with
// no remaining approval are dropped.
func Build(results []scan.Result) []model.ReconciledApproval {
	out := make([]model.ReconciledApproval, 0)
	for _, res := range results {
		if res.State == nil {
			continue
		}
		for token, spenders := range res.State.Approvals {
			for spender, rec := range spenders {
				row, ok := reconcile(res.State, token, spender, rec)
				if !ok {
					continue
				}
				out = append(out, row)
			}
		}
	}
	sortApprovals(out)
	return out
}

func reconcile(state *scan.ChainState, token, spender string, rec model.ApprovalRecord) (model.ReconciledApproval, bool) {
	approved := rec.Amount
	if approved == nil {
		approved = new(big.Int)
	}

	transferred := new(big.Int)
	if used := state.Usage[token][spender]; used != nil {
		transferred.Set(used)
	}

	unlimited := model.IsUnlimited(approved)
	remaining := new(big.Int)
	if unlimited {
		// An unlimited approval is not depleted by usage.
		remaining.Set(approved)
	} else {
		remaining.Sub(approved, transferred)
		if remaining.Sign() < 0 {
			remaining.SetInt64(0)
		}
	}
	if remaining.Sign() <= 0 {
		return model.ReconciledApproval{}, false
	}

	return model.ReconciledApproval{
		ChainID:           state.ChainID,
		TokenAddress:      token,
		Spender:           spender,
		ApprovedAmount:    new(big.Int).Set(approved),
		TransferredAmount: transferred,
		RemainingApproval: remaining,
		IsUnlimited:       unlimited,
		BlockNumber:       rec.BlockNumber,
		TxHash:            rec.TxHash,
	}, true
}

type tokenKey struct {
	chainID uint64
	token   string
}

// sortApprovals orders the report so the highest-risk exposure surfaces
// first per chain: tokens carrying any unlimited approval lead, then tokens
// group lexicographically, unlimited rows before limited ones, larger
// remaining amounts first. (chainID, token, spender) is the final tiebreak,
// making the order total.
func sortApprovals(items []model.ReconciledApproval) {
	unlimitedTokens := make(map[tokenKey]bool)
	for _, it := range items {
		if it.IsUnlimited || model.IsUnlimited(it.RemainingApproval) {
			unlimitedTokens[tokenKey{it.ChainID, it.TokenAddress}] = true
		}
	}

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.ChainID != b.ChainID {
			return a.ChainID < b.ChainID
		}
		aTok := unlimitedTokens[tokenKey{a.ChainID, a.TokenAddress}]
		bTok := unlimitedTokens[tokenKey{b.ChainID, b.TokenAddress}]
		if aTok != bTok {
			return aTok
		}
		if a.TokenAddress != b.TokenAddress {
			return a.TokenAddress < b.TokenAddress
		}
		if a.IsUnlimited != b.IsUnlimited {
			return a.IsUnlimited
		}
		if cmp := a.RemainingApproval.Cmp(b.RemainingApproval); cmp != 0 {
			return cmp > 0
		}
		return a.Spender < b.Spender
	})
}
