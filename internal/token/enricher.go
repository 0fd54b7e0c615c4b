package token

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/moose-code/snubb/internal/chain"
	"github.com/moose-code/snubb/internal/chains"
	"github.com/moose-code/snubb/internal/model"
)

// Key identifies a token on a chain.
type Key struct {
	ChainID uint64
	Address string
}

// Cache caches token metadata across lookups.
type Cache struct {
	mu   sync.RWMutex
	data map[Key]model.TokenMeta
}

// NewCache creates an empty metadata cache.
func NewCache() *Cache {
	return &Cache{data: make(map[Key]model.TokenMeta)}
}

// Get returns cached metadata for a token.
func (c *Cache) Get(key Key) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[key]
	c.mu.RUnlock()
	return meta, ok
}

// Set stores metadata for a token.
func (c *Cache) Set(key Key, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[key] = meta
	c.mu.Unlock()
}

// Enricher fetches token metadata for a finished report, one RPC connection
// per chain, chains in parallel. Every lookup is best-effort: tokens whose
// metadata cannot be fetched keep their raw address in the report.
type Enricher struct {
	cache       *Cache
	logger      *zap.Logger
	callTimeout time.Duration
}

// NewEnricher builds an enricher. callTimeout bounds each metadata call.
func NewEnricher(cache *Cache, callTimeout time.Duration, logger *zap.Logger) *Enricher {
	if cache == nil {
		cache = NewCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Enricher{cache: cache, logger: logger, callTimeout: callTimeout}
}

// Enrich resolves metadata for every distinct token in the report and
// returns it keyed by chain and address. Failures are logged and omitted.
func (e *Enricher) Enrich(ctx context.Context, items []model.ReconciledApproval, chainSet []chains.Chain) map[Key]model.TokenMeta {
	rpcByChain := make(map[uint64]string, len(chainSet))
	for _, ch := range chainSet {
		rpcByChain[ch.ID] = ch.RPC
	}

	tokensByChain := make(map[uint64][]string)
	seen := make(map[Key]struct{})
	for _, it := range items {
		key := Key{ChainID: it.ChainID, Address: it.TokenAddress}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tokensByChain[it.ChainID] = append(tokensByChain[it.ChainID], it.TokenAddress)
	}

	out := make(map[Key]model.TokenMeta)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for chainID, tokens := range tokensByChain {
		rpcURL := rpcByChain[chainID]
		if rpcURL == "" {
			continue
		}
		wg.Add(1)
		go func(chainID uint64, rpcURL string, tokens []string) {
			defer wg.Done()
			metas := e.enrichChain(ctx, chainID, rpcURL, tokens)
			mu.Lock()
			for key, meta := range metas {
				out[key] = meta
			}
			mu.Unlock()
		}(chainID, rpcURL, tokens)
	}
	wg.Wait()

	return out
}

func (e *Enricher) enrichChain(ctx context.Context, chainID uint64, rpcURL string, tokens []string) map[Key]model.TokenMeta {
	out := make(map[Key]model.TokenMeta, len(tokens))

	pending := make([]string, 0, len(tokens))
	for _, addr := range tokens {
		key := Key{ChainID: chainID, Address: addr}
		if meta, ok := e.cache.Get(key); ok {
			out[key] = meta
			continue
		}
		pending = append(pending, addr)
	}
	if len(pending) == 0 {
		return out
	}

	client, err := chain.NewClient(ctx, rpcURL)
	if err != nil {
		e.logger.Debug("metadata rpc dial failed", zap.Uint64("chain_id", chainID), zap.Error(err))
		return out
	}
	defer client.Close()

	// A misconfigured endpoint would return metadata for the wrong chain.
	idCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	rpcChainID, err := client.ChainID(idCtx)
	cancel()
	if err != nil {
		e.logger.Debug("chain id check failed", zap.Uint64("chain_id", chainID), zap.Error(err))
	} else if !rpcChainID.IsUint64() || rpcChainID.Uint64() != chainID {
		e.logger.Warn("rpc endpoint chain id mismatch, skipping metadata",
			zap.Uint64("chain_id", chainID), zap.String("rpc_chain_id", rpcChainID.String()))
		return out
	}

	for _, addr := range pending {
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		meta, err := FetchMeta(callCtx, client, addr, e.logger)
		cancel()
		if err != nil {
			e.logger.Debug("metadata fetch failed", zap.Uint64("chain_id", chainID), zap.String("token", addr), zap.Error(err))
			continue
		}
		key := Key{ChainID: chainID, Address: addr}
		e.cache.Set(key, meta)
		out[key] = meta
	}
	return out
}

// Attach returns a copy of the report with metadata attached where known.
func Attach(items []model.ReconciledApproval, metas map[Key]model.TokenMeta) []model.ReconciledApproval {
	out := make([]model.ReconciledApproval, len(items))
	for i, it := range items {
		if meta, ok := metas[Key{ChainID: it.ChainID, Address: it.TokenAddress}]; ok {
			metaCopy := meta
			it.Token = &metaCopy
		}
		out[i] = it
	}
	return out
}
