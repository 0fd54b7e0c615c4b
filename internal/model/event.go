package model

import "math/big"

// RawLog is a log entry as delivered by the indexing backend. Topics[0] is
// the event selector hash.
type RawLog struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     uint64   `json:"block_number"`
	TransactionHash string   `json:"transaction_hash"`
}

// RawTransaction is the subset of transaction fields used to attribute a
// Transfer to the spender that consumed the approval.
type RawTransaction struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	BlockNumber uint64 `json:"block_number"`
}

// EventKind tags a DecodedEvent variant.
type EventKind int

const (
	EventApproval EventKind = iota
	EventTransfer
)

// DecodedEvent is a typed ERC20 Approval or Transfer event carrying
// back-references to its originating log. Owner/Spender are set for
// approvals, From/To for transfers; all addresses are normalized.
type DecodedEvent struct {
	Kind         EventKind
	TokenAddress string

	Owner   string
	Spender string

	From string
	To   string

	Amount      *big.Int
	BlockNumber uint64
	TxHash      string
}
