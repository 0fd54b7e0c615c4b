package model

import (
	"encoding/json"
	"math/big"
)

// ApprovalRecord is the most recent approval observed for a (token, spender)
// pair. Later approvals supersede earlier ones for the same spender.
type ApprovalRecord struct {
	Amount      *big.Int
	BlockNumber uint64
	TxHash      string
}

// TokenMeta is optional token metadata fetched from chain RPC. The report is
// correct without it; missing metadata falls back to the raw token address.
type TokenMeta struct {
	Address  string `json:"address"`
	Name     string `json:"name,omitempty"`
	Symbol   string `json:"symbol,omitempty"`
	Decimals uint8  `json:"decimals"`
}

/// ReconciledApproval is one row of the final report: an approval with
// outstanding exposure, with the attributed transfer usage netted out.
// Immutable once built.
type ReconciledApproval struct {
	ChainID           uint64
	TokenAddress      string
	Spender           string
	ApprovedAmount    *big.Int
	TransferredAmount *big.Int
	RemainingApproval *big.Int
	IsUnlimited       bool
	BlockNumber       uint64
	TxHash            string
	Token             *TokenMeta
}

// MarshalJSON encodes amounts as decimal strings so they survive JSON
// round-trips without precision loss.
func (ra ReconciledApproval) MarshalJSON() ([]byte, error) {
	type wire struct {
		ChainID           uint64     `json:"chain_id"`
		TokenAddress      string     `json:"token_address"`
		Spender           string     `json:"spender"`
		ApprovedAmount    string     `json:"approved_amount"`
		TransferredAmount string     `json:"transferred_amount"`
		RemainingApproval string     `json:"remaining_approval"`
		IsUnlimited       bool       `json:"is_unlimited"`
		BlockNumber       uint64     `json:"block_number"`
		TxHash            string     `json:"tx_hash"`
		Token             *TokenMeta `json:"token,omitempty"`
	}
	return json.Marshal(wire{
		ChainID:           ra.ChainID,
		TokenAddress:      ra.TokenAddress,
		Spender:           ra.Spender,
		ApprovedAmount:    bigString(ra.ApprovedAmount),
		TransferredAmount: bigString(ra.TransferredAmount),
		RemainingApproval: bigString(ra.RemainingApproval),
		IsUnlimited:       ra.IsUnlimited,
		BlockNumber:       ra.BlockNumber,
		TxHash:            ra.TxHash,
		Token:             ra.Token,
	})
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
