package chains

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Chain describes one supported EVM network: where its indexed history is
// served from and a public RPC endpoint for token metadata calls.
type Chain struct {
	ID        uint64
	Name      string
	HyperSync string
	RPC       string
}

var registry = []Chain{
	{ID: 1, Name: "Ethereum", HyperSync: "https://eth.hypersync.xyz", RPC: "https://eth.llamarpc.com"},
	{ID: 10, Name: "Optimism", HyperSync: "https://optimism.hypersync.xyz", RPC: "https://mainnet.optimism.io"},
	{ID: 56, Name: "BNB Chain", HyperSync: "https://bsc.hypersync.xyz", RPC: "https://bsc-dataseed.binance.org"},
	{ID: 100, Name: "Gnosis", HyperSync: "https://gnosis.hypersync.xyz", RPC: "https://rpc.gnosischain.com"},
	{ID: 137, Name: "Polygon", HyperSync: "https://polygon.hypersync.xyz", RPC: "https://polygon-rpc.com"},
	{ID: 8453, Name: "Base", HyperSync: "https://base.hypersync.xyz", RPC: "https://mainnet.base.org"},
	{ID: 42161, Name: "Arbitrum", HyperSync: "https://arbitrum.hypersync.xyz", RPC: "https://arb1.arbitrum.io/rpc"},
	{ID: 43114, Name: "Avalanche", HyperSync: "https://avalanche.hypersync.xyz", RPC: "https://api.avax.network/ext/bc/C/rpc"},
	{ID: 59144, Name: "Linea", HyperSync: "https://linea.hypersync.xyz", RPC: "https://rpc.linea.build"},
	{ID: 534352, Name: "Scroll", HyperSync: "https://scroll.hypersync.xyz", RPC: "https://rpc.scroll.io"},
}

var presets = map[string][]uint64{
	"default": {1, 10, 137, 8453, 42161},
}

// All returns every registered chain ordered by id.
func All() []Chain {
	out := make([]Chain, len(registry))
	copy(out, registry)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByID looks up a chain by numeric id.
func ByID(id uint64) (Chain, bool) {
	for _, ch := range registry {
		if ch.ID == id {
			return ch, true
		}
	}
	return Chain{}, false
}

// Resolve parses a chain selection: a preset name ("default", "all"), a
// single chain id, or a comma-separated list of ids.
func Resolve(selection string) ([]Chain, error) {
	selection = strings.TrimSpace(strings.ToLower(selection))
	if selection == "" || selection == "default" {
		return fromIDs(presets["default"])
	}
	if selection == "all" {
		return All(), nil
	}

	parts := strings.Split(selection, ",")
	ids := make([]uint64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no chains in selection %q", selection)
	}
	return fromIDs(ids)
}

func fromIDs(ids []uint64) ([]Chain, error) {
	out := make([]Chain, 0, len(ids))
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ch, ok := ByID(id)
		if !ok {
			return nil, fmt.Errorf("unsupported chain id %d", id)
		}
		out = append(out, ch)
	}
	return out, nil
}
