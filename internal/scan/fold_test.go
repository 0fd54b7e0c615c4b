package scan

import (
	"math/big"
	"testing"

	"github.com/moose-code/snubb/internal/model"
)

const (
	target   = "0x1111111111111111111111111111111111111111"
	tokenA   = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	spenderX = "0x2222222222222222222222222222222222222222"
	spenderZ = "0x3333333333333333333333333333333333333333"
	other    = "0x4444444444444444444444444444444444444444"
)

func approval(owner, spender string, amount int64, block uint64, tx string) model.DecodedEvent {
	return model.DecodedEvent{
		Kind:         model.EventApproval,
		TokenAddress: tokenA,
		Owner:        owner,
		Spender:      spender,
		Amount:       big.NewInt(amount),
		BlockNumber:  block,
		TxHash:       tx,
	}
}

func transfer(from, to string, amount int64, block uint64, tx string) model.DecodedEvent {
	return model.DecodedEvent{
		Kind:         model.EventTransfer,
		TokenAddress: tokenA,
		From:         from,
		To:           to,
		Amount:       big.NewInt(amount),
		BlockNumber:  block,
		TxHash:       tx,
	}
}

func TestFoldApprovalLatestWins(t *testing.T) {
	state := NewChainState(1)
	state.Fold(target, []model.DecodedEvent{
		approval(target, spenderZ, 500, 1, "0x01"),
		approval(target, spenderZ, 0, 2, "0x02"),
	}, nil)

	rec, ok := state.Approvals[tokenA][spenderZ]
	if !ok {
		t.Fatalf("approval not recorded")
	}
	if rec.Amount.Sign() != 0 {
		t.Fatalf("amount = %s, want 0 from the later block", rec.Amount)
	}
	if rec.BlockNumber != 2 || rec.TxHash != "0x02" {
		t.Fatalf("record = %+v, want block 2 tx 0x02", rec)
	}
}

func TestFoldApprovalIgnoresOtherOwners(t *testing.T) {
	state := NewChainState(1)
	state.Fold(target, []model.DecodedEvent{
		approval(other, spenderX, 100, 1, "0x01"),
	}, nil)

	if len(state.Approvals) != 0 {
		t.Fatalf("approvals for other owners must not be tracked: %+v", state.Approvals)
	}
}

func TestFoldTransferSpenderInitiated(t *testing.T) {
	state := NewChainState(1)
	txs := map[string]TxInfo{
		"0x10": {From: spenderX, To: tokenA},
	}
	state.Fold(target, []model.DecodedEvent{
		approval(target, spenderX, 1000, 10, "0x01"),
		transfer(target, other, 400, 12, "0x10"),
	}, txs)

	used := state.Usage[tokenA][spenderX]
	if used == nil || used.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("usage = %v, want 400 attributed to tx sender", used)
	}
}

func TestFoldTransferOwnerInitiatedToApprovedSpender(t *testing.T) {
	state := NewChainState(1)
	txs := map[string]TxInfo{
		"0x10": {From: target, To: spenderX},
	}
	state.Fold(target, []model.DecodedEvent{
		approval(target, spenderX, 1000, 10, "0x01"),
		transfer(target, other, 250, 12, "0x10"),
	}, txs)

	used := state.Usage[tokenA][spenderX]
	if used == nil || used.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("usage = %v, want 250 attributed to tx destination", used)
	}
}

func TestFoldTransferUnattributableDiscarded(t *testing.T) {
	state := NewChainState(1)

	// Owner-initiated, destination has no recorded approval.
	state.Fold(target, []model.DecodedEvent{
		transfer(target, other, 100, 5, "0x10"),
	}, map[string]TxInfo{"0x10": {From: target, To: other}})

	// Transaction not in the batch's paired list at all.
	state.Fold(target, []model.DecodedEvent{
		transfer(target, other, 100, 6, "0x11"),
	}, nil)

	// Incoming transfer: target is not the sender.
	state.Fold(target, []model.DecodedEvent{
		transfer(other, target, 100, 7, "0x12"),
	}, map[string]TxInfo{"0x12": {From: other, To: target}})

	if len(state.Usage) != 0 {
		t.Fatalf("unattributable transfers must be discarded: %+v", state.Usage)
	}
}

func TestFoldSplitBatchesEqualConcatenated(t *testing.T) {
	events := []model.DecodedEvent{
		approval(target, spenderX, 1000, 10, "0x01"),
		transfer(target, other, 400, 12, "0x10"),
		approval(target, spenderZ, 500, 13, "0x02"),
		transfer(target, other, 100, 14, "0x11"),
	}
	txs := map[string]TxInfo{
		"0x10": {From: spenderX, To: tokenA},
		"0x11": {From: spenderZ, To: tokenA},
	}

	whole := NewChainState(1)
	whole.Fold(target, events, txs)

	split := NewChainState(1)
	split.Fold(target, events[:2], txs)
	split.Fold(target, events[2:], txs)

	assertStatesEqual(t, whole, split)
}

func assertStatesEqual(t *testing.T, a, b *ChainState) {
	t.Helper()

	if len(a.Approvals) != len(b.Approvals) {
		t.Fatalf("approval token counts differ: %d != %d", len(a.Approvals), len(b.Approvals))
	}
	for token, spenders := range a.Approvals {
		for spender, rec := range spenders {
			got, ok := b.Approvals[token][spender]
			if !ok {
				t.Fatalf("missing approval %s/%s", token, spender)
			}
			if rec.Amount.Cmp(got.Amount) != 0 || rec.BlockNumber != got.BlockNumber || rec.TxHash != got.TxHash {
				t.Fatalf("approval %s/%s differs: %+v != %+v", token, spender, rec, got)
			}
		}
	}

	if len(a.Usage) != len(b.Usage) {
		t.Fatalf("usage token counts differ: %d != %d", len(a.Usage), len(b.Usage))
	}
	for token, spenders := range a.Usage {
		for spender, amount := range spenders {
			got := b.Usage[token][spender]
			if got == nil || amount.Cmp(got) != 0 {
				t.Fatalf("usage %s/%s differs: %v != %v", token, spender, amount, got)
			}
		}
	}
}
