package scan

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/moose-code/snubb/internal/chains"
	"github.com/moose-code/snubb/internal/decode"
	"github.com/moose-code/snubb/internal/hypersync"
	"github.com/moose-code/snubb/internal/model"
)

// Backend is the slice of the indexing backend a chain scanner depends on.
type Backend interface {
	Height(ctx context.Context) (uint64, error)
	OpenStream(query hypersync.Query, height uint64) BatchStream
}

// BatchStream yields batches in non-decreasing block order until the chain
// tip, then nil.
type BatchStream interface {
	Recv(ctx context.Context) (*hypersync.Batch, error)
}

// NewBackend adapts a hypersync client to the Backend interface.
func NewBackend(client *hypersync.Client) Backend {
	return hyperBackend{client: client}
}

type hyperBackend struct {
	client *hypersync.Client
}

func (b hyperBackend) Height(ctx context.Context) (uint64, error) {
	return b.client.Height(ctx)
}

func (b hyperBackend) OpenStream(query hypersync.Query, height uint64) BatchStream {
	return b.client.OpenStream(query, height)
}

// Config holds per-call limits for scanner backend interaction.
type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration
	CallTimeout  time.Duration
}

func (c Config) callTimeout() time.Duration {
	if c.CallTimeout <= 0 {
		return 30 * time.Second
	}
	return c.CallTimeout
}

// Scanner streams one chain's history and folds it into chain-local state.
type Scanner struct {
	chain   chains.Chain
	target  string
	backend Backend
	stats   *model.ChainScanStats
	cfg     Config
	logger  *zap.Logger
}

// NewScanner builds a scanner for one chain. target is normalized here.
func NewScanner(chain chains.Chain, target string, backend Backend, stats *model.ChainScanStats, cfg Config, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		chain:   chain,
		target:  model.NormalizeAddress(target),
		backend: backend,
		stats:   stats,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run drives the scan to completion and returns the folded state. Failures
// never propagate: a chain that cannot connect or stream is marked failed
// and returns whatever state it accumulated, empty in the worst case.
func (sc *Scanner) Run(ctx context.Context) *ChainState {
	state := NewChainState(sc.chain.ID)

	sc.stats.ToConnecting()
	height, err := sc.lookupHeight(ctx)
	if err != nil {
		sc.logger.Warn("height lookup failed, skipping chain", zap.Error(err))
		sc.stats.ToFailed()
		return state
	}
	sc.stats.ToStreaming(height)

	stream := sc.backend.OpenStream(sc.buildQuery(), height)

	for {
		batch, err := sc.recvBatch(ctx, stream)
		if err != nil {
			if ctx.Err() == nil {
				sc.logger.Warn("stream failed, skipping chain", zap.Error(err))
			}
			sc.stats.ToFailed()
			// A terminally failed chain contributes an empty result.
			return NewChainState(sc.chain.ID)
		}
		if batch == nil {
			break
		}
		sc.processBatch(state, batch)
	}

	sc.stats.ToComplete()
	sc.logger.Info("chain scan complete",
		zap.Uint64("height", height),
		zap.Uint64("events", sc.stats.Snapshot().TotalEvents),
	)
	return state
}

func (sc *Scanner) lookupHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := withRetry(ctx, sc.cfg.MaxRetries, sc.cfg.RetryBackoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, sc.cfg.callTimeout())
		defer cancel()
		var err error
		height, err = sc.backend.Height(callCtx)
		return err
	})
	return height, err
}

// recvBatch retries a failed receive from the stream's current cursor; the
// cursor only moves on a successful receive.
func (sc *Scanner) recvBatch(ctx context.Context, stream BatchStream) (*hypersync.Batch, error) {
	var batch *hypersync.Batch
	err := withRetry(ctx, sc.cfg.MaxRetries, sc.cfg.RetryBackoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, sc.cfg.callTimeout())
		defer cancel()
		var err error
		batch, err = stream.Recv(callCtx)
		if err != nil {
			sc.logger.Warn("batch receive failed", zap.Error(err))
		}
		return err
	})
	return batch, err
}

// processBatch decodes and folds one batch. A panic while folding is
// contained here: the batch's partial effects remain, the cursor has already
// advanced, and scanning continues with the next batch.
func (sc *Scanner) processBatch(state *ChainState, batch *hypersync.Batch) {
	defer func() {
		if r := recover(); r != nil {
			sc.logger.Warn("batch processing aborted", zap.Any("panic", r), zap.Uint64("next_block", batch.NextBlock))
		}
	}()

	txs := make(map[string]TxInfo, len(batch.Transactions))
	for _, tx := range batch.Transactions {
		txs[strings.ToLower(tx.Hash)] = TxInfo{
			From: model.NormalizeAddress(tx.From),
			To:   model.NormalizeAddress(tx.To),
		}
	}

	events := make([]model.DecodedEvent, 0, len(batch.Logs))
	for _, raw := range batch.Logs {
		ev, ok := decode.Log(raw)
		if !ok {
			continue
		}
		events = append(events, ev)
	}

	state.Fold(sc.target, events, txs)

	// Undecodable logs still count toward throughput stats.
	sc.stats.RecordBatch(batch.NextBlock, uint64(len(batch.Logs)))
}

// buildQuery filters the stream to the union of: approvals granted by the
// target, transfers with the target as sender or receiver, and transactions
// sent by or to the target (needed to attribute transfers to spenders).
func (sc *Scanner) buildQuery() hypersync.Query {
	targetTopic := hypersync.AddressTopic(sc.target)
	approval := strings.ToLower(decode.ApprovalTopic.Hex())
	transfer := strings.ToLower(decode.TransferTopic.Hex())

	return hypersync.Query{
		FromBlock: 0,
		Logs: []hypersync.LogFilter{
			{Topics: [][]string{{approval}, {targetTopic}}},
			{Topics: [][]string{{transfer}, {targetTopic}}},
			{Topics: [][]string{{transfer}, {}, {targetTopic}}},
		},
		Transactions: []hypersync.TransactionFilter{
			{From: []string{sc.target}},
			{To: []string{sc.target}},
		},
		FieldSelection: hypersync.FieldSelection{
			Log:         []string{"address", "topic0", "topic1", "topic2", "topic3", "data", "block_number", "transaction_hash"},
			Transaction: []string{"hash", "from", "to", "block_number"},
		},
	}
}
