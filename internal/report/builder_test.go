package report

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/moose-code/snubb/internal/chains"
	"github.com/moose-code/snubb/internal/decode"
	"github.com/moose-code/snubb/internal/hypersync"
	"github.com/moose-code/snubb/internal/model"
	"github.com/moose-code/snubb/internal/scan"
)

const (
	target   = "0x1111111111111111111111111111111111111111"
	tokenA   = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	tokenB   = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	spenderX = "0x2222222222222222222222222222222222222222"
	spenderY = "0x3333333333333333333333333333333333333333"
)

func stateWith(chainID uint64, approvals map[string]map[string]model.ApprovalRecord, usage map[string]map[string]*big.Int) *scan.ChainState {
	state := scan.NewChainState(chainID)
	if approvals != nil {
		state.Approvals = approvals
	}
	if usage != nil {
		state.Usage = usage
	}
	return state
}

func TestBuildNetsUsageAgainstApproval(t *testing.T) {
	state := stateWith(1,
		map[string]map[string]model.ApprovalRecord{
			tokenA: {spenderX: {Amount: big.NewInt(1000), BlockNumber: 10, TxHash: "0x01"}},
		},
		map[string]map[string]*big.Int{
			tokenA: {spenderX: big.NewInt(400)},
		},
	)

	got := Build([]scan.Result{{Chain: chains.Chain{ID: 1}, State: state}})
	if len(got) != 1 {
		t.Fatalf("rows = %d, want 1", len(got))
	}

	row := got[0]
	if row.ApprovedAmount.Cmp(big.NewInt(1000)) != 0 ||
		row.TransferredAmount.Cmp(big.NewInt(400)) != 0 ||
		row.RemainingApproval.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("row = %+v, want 1000/400/600", row)
	}
	if row.IsUnlimited {
		t.Fatalf("1000 must not be unlimited")
	}
	if row.BlockNumber != 10 || row.TxHash != "0x01" {
		t.Fatalf("approval back-references lost: %+v", row)
	}
}

func TestBuildUnlimitedSurvivesUsage(t *testing.T) {
	state := stateWith(1,
		map[string]map[string]model.ApprovalRecord{
			tokenA: {spenderY: {Amount: new(big.Int).Set(model.MaxUint256), BlockNumber: 5, TxHash: "0x02"}},
		},
		map[string]map[string]*big.Int{
			tokenA: {spenderY: big.NewInt(123456)},
		},
	)

	got := Build([]scan.Result{{State: state}})
	if len(got) != 1 {
		t.Fatalf("unlimited approval must survive the remaining>0 filter")
	}
	if !got[0].IsUnlimited {
		t.Fatalf("expected unlimited")
	}
	if got[0].RemainingApproval.Cmp(got[0].ApprovedAmount) != 0 {
		t.Fatalf("unlimited remaining must equal approved")
	}
}

func TestBuildDropsZeroRemaining(t *testing.T) {
	state := stateWith(1,
		map[string]map[string]model.ApprovalRecord{
			tokenA: {
				spenderX: {Amount: big.NewInt(0), BlockNumber: 2, TxHash: "0x02"},
				spenderY: {Amount: big.NewInt(100), BlockNumber: 3, TxHash: "0x03"},
			},
		},
		map[string]map[string]*big.Int{
			tokenA: {spenderY: big.NewInt(500)},
		},
	)

	got := Build([]scan.Result{{State: state}})
	if len(got) != 0 {
		t.Fatalf("zero and over-consumed approvals must be dropped: %+v", got)
	}
}

func TestBuildSortOrder(t *testing.T) {
	approved := func(v int64) *big.Int { return big.NewInt(v) }
	state1 := stateWith(2,
		map[string]map[string]model.ApprovalRecord{
			tokenB: {
				spenderX: {Amount: approved(50), BlockNumber: 1},
				spenderY: {Amount: approved(300), BlockNumber: 2},
			},
			tokenA: {
				spenderX: {Amount: new(big.Int).Set(model.MaxUint256), BlockNumber: 3},
				spenderY: {Amount: approved(10), BlockNumber: 4},
			},
		},
		nil,
	)
	state2 := stateWith(1,
		map[string]map[string]model.ApprovalRecord{
			tokenB: {spenderX: {Amount: approved(7), BlockNumber: 9}},
		},
		nil,
	)

	got := Build([]scan.Result{
		{State: state1},
		{State: state2},
	})
	if len(got) != 5 {
		t.Fatalf("rows = %d, want 5", len(got))
	}

	// Chain 1 first, then chain 2 with the unlimited-exposure token leading.
	wantOrder := []struct {
		chainID uint64
		token   string
		spender string
	}{
		{1, tokenB, spenderX},
		{2, tokenA, spenderX},
		{2, tokenA, spenderY},
		{2, tokenB, spenderY},
		{2, tokenB, spenderX},
	}
	for i, want := range wantOrder {
		row := got[i]
		if row.ChainID != want.chainID || row.TokenAddress != want.token || row.Spender != want.spender {
			t.Fatalf("row %d = (%d, %s, %s), want (%d, %s, %s)",
				i, row.ChainID, row.TokenAddress, row.Spender, want.chainID, want.token, want.spender)
		}
	}
}

func TestBuildSortIsTotal(t *testing.T) {
	state := stateWith(1,
		map[string]map[string]model.ApprovalRecord{
			tokenA: {
				spenderX: {Amount: big.NewInt(100), BlockNumber: 1},
				spenderY: {Amount: big.NewInt(100), BlockNumber: 2},
			},
		},
		nil,
	)

	got := Build([]scan.Result{{State: state}})
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
	// Equal amounts fall back to the spender tiebreak.
	if got[0].Spender != spenderX || got[1].Spender != spenderY {
		t.Fatalf("tiebreak order wrong: %s, %s", got[0].Spender, got[1].Spender)
	}
}

type fakeStream struct {
	batches []*hypersync.Batch
	idx     int
}

func (f *fakeStream) Recv(_ context.Context) (*hypersync.Batch, error) {
	if f.idx >= len(f.batches) {
		return nil, nil
	}
	b := f.batches[f.idx]
	f.idx++
	return b, nil
}

type fakeBackend struct {
	height    uint64
	heightErr error
	batches   []*hypersync.Batch
}

func (f *fakeBackend) Height(_ context.Context) (uint64, error) {
	return f.height, f.heightErr
}

func (f *fakeBackend) OpenStream(_ hypersync.Query, _ uint64) scan.BatchStream {
	return &fakeStream{batches: f.batches}
}

func TestScanTwoChainsOneFails(t *testing.T) {
	chain1 := chains.Chain{ID: 1, Name: "One"}
	chain2 := chains.Chain{ID: 2, Name: "Two"}

	backends := map[uint64]scan.Backend{
		1: &fakeBackend{heightErr: fmt.Errorf("height lookup timed out")},
		2: &fakeBackend{
			height: 60,
			batches: []*hypersync.Batch{{
				Logs: []model.RawLog{{
					Address:         tokenA,
					Topics:          []string{decode.ApprovalTopic.Hex(), hypersync.AddressTopic(target), hypersync.AddressTopic(spenderX)},
					Data:            "0x00000000000000000000000000000000000000000000000000000000000003e8",
					BlockNumber:     10,
					TransactionHash: "0x01",
				}},
				NextBlock: 60,
			}},
		},
	}

	orch := scan.NewOrchestrator(target, []chains.Chain{chain1, chain2}, func(ch chains.Chain) scan.Backend {
		return backends[ch.ID]
	}, scan.Config{}, nil)

	results := orch.Run(context.Background())
	got := Build(results)

	if len(got) != 1 {
		t.Fatalf("rows = %d, want exactly the healthy chain's record", len(got))
	}
	if got[0].ChainID != 2 || got[0].Spender != spenderX {
		t.Fatalf("row = %+v, want chain 2 approval for spenderX", got[0])
	}

	for _, snap := range orch.Snapshots() {
		if !snap.IsComplete {
			t.Fatalf("chain %d not complete after Run", snap.ChainID)
		}
	}
}
