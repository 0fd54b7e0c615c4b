package decode

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/moose-code/snubb/internal/model"
)

// Selector hashes for the contract-independent ERC20 event signatures.
var (
	TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	ApprovalTopic = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))
)

// Log classifies a raw log as an ERC20 Approval or Transfer event. Logs that
// match neither selector, or that lack the indexed topics, are skipped: the
// second return is false and no error is raised, so one malformed log never
// aborts a batch.
func Log(raw model.RawLog) (model.DecodedEvent, bool) {
	if len(raw.Topics) < 2 || raw.Topics[0] == "" || raw.Topics[1] == "" {
		return model.DecodedEvent{}, false
	}

	var kind model.EventKind
	switch strings.ToLower(raw.Topics[0]) {
	case strings.ToLower(ApprovalTopic.Hex()):
		kind = model.EventApproval
	case strings.ToLower(TransferTopic.Hex()):
		kind = model.EventTransfer
	default:
		return model.DecodedEvent{}, false
	}

	first := topicAddress(raw.Topics[1])
	second := ""
	if len(raw.Topics) >= 3 {
		second = topicAddress(raw.Topics[2])
	}

	ev := model.DecodedEvent{
		Kind:         kind,
		TokenAddress: model.NormalizeAddress(raw.Address),
		Amount:       amountFromData(raw.Data),
		BlockNumber:  raw.BlockNumber,
		TxHash:       strings.ToLower(raw.TransactionHash),
	}
	switch kind {
	case model.EventApproval:
		ev.Owner, ev.Spender = first, second
	case model.EventTransfer:
		ev.From, ev.To = first, second
	}
	return ev, true
}

// topicAddress recovers the address packed into the right-most 20 bytes of a
// 32-byte indexed topic.
func topicAddress(topic string) string {
	h := common.HexToHash(topic)
	return strings.ToLower(common.BytesToAddress(h.Bytes()).Hex())
}

// amountFromData reads the first 32-byte word of the log body as an unsigned
// integer. Absent or malformed data defaults to zero.
func amountFromData(data string) *big.Int {
	data = strings.TrimPrefix(strings.TrimSpace(data), "0x")
	if data == "" {
		return new(big.Int)
	}
	if len(data)%2 != 0 {
		data = "0" + data
	}
	b, err := hex.DecodeString(data)
	if err != nil {
		return new(big.Int)
	}
	if len(b) > 32 {
		b = b[:32]
	}
	return new(big.Int).SetBytes(b)
}
