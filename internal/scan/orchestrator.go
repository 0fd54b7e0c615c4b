package scan

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/moose-code/snubb/internal/chains"
	"github.com/moose-code/snubb/internal/model"
)

// Result is one chain's completed fold output.
type Result struct {
	Chain chains.Chain
	State *ChainState
}

// BackendFactory builds an indexing-backend client for a chain.
type BackendFactory func(chain chains.Chain) Backend

// Orchestrator runs one chain scanner per requested chain concurrently and
// exposes read-only progress snapshots while they run.
type Orchestrator struct {
	target     string
	chains     []chains.Chain
	newBackend BackendFactory
	cfg        Config
	logger     *zap.Logger
	stats      []*model.ChainScanStats
}

// NewOrchestrator admits the given chains to the scan set.
func NewOrchestrator(target string, chainSet []chains.Chain, newBackend BackendFactory, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	stats := make([]*model.ChainScanStats, len(chainSet))
	for i, ch := range chainSet {
		stats[i] = model.NewChainScanStats(ch.ID, ch.Name)
	}
	return &Orchestrator{
		target:     model.NormalizeAddress(target),
		chains:     chainSet,
		newBackend: newBackend,
		cfg:        cfg,
		logger:     logger,
		stats:      stats,
	}
}

// Snapshots returns read-only progress copies for every chain, in scan-set
// order. Safe to call from any goroutine while scanning.
func (o *Orchestrator) Snapshots() []model.StatsSnapshot {
	out := make([]model.StatsSnapshot, len(o.stats))
	for i, s := range o.stats {
		out[i] = s.Snapshot()
	}
	return out
}

// Run scans all chains in parallel and returns per-chain results in scan-set
// order. Failed chains yield empty state; Run itself never fails.
func (o *Orchestrator) Run(ctx context.Context) []Result {
	results := make([]Result, len(o.chains))

	var wg sync.WaitGroup
	for i, ch := range o.chains {
		wg.Add(1)
		go func(i int, ch chains.Chain) {
			defer wg.Done()
			scanner := NewScanner(ch, o.target, o.newBackend(ch), o.stats[i], o.cfg,
				o.logger.With(zap.String("chain", ch.Name), zap.Uint64("chain_id", ch.ID)))
			results[i] = Result{Chain: ch, State: scanner.Run(ctx)}
		}(i, ch)
	}
	wg.Wait()

	return results
}
