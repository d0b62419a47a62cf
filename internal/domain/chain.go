package domain

import "strings"

// Chain is a canonical chain identifier.
type Chain string

// Supported chains (canonical spellings).
const (
	ChainSolana    Chain = "solana"
	ChainEthereum  Chain = "ethereum"
	ChainBSC       Chain = "bsc"
	ChainBase      Chain = "base"
	ChainArbitrum  Chain = "arbitrum"
	ChainPolygon   Chain = "polygon"
	ChainAvalanche Chain = "avalanche"
	ChainOptimism  Chain = "optimism"
)

// SupportedChains lists every chain the scanner accepts, in fallback-search order.
var SupportedChains = []Chain{
	ChainSolana,
	ChainEthereum,
	ChainBSC,
	ChainBase,
	ChainArbitrum,
	ChainPolygon,
	ChainAvalanche,
	ChainOptimism,
}

// chainAliases maps upstream spellings to canonical chains.
var chainAliases = map[string]Chain{
	"bnb":     ChainBSC,
	"binance": ChainBSC,
	"eth":     ChainEthereum,
	"sol":     ChainSolana,
	"avax":    ChainAvalanche,
	"matic":   ChainPolygon,
	"op":      ChainOptimism,
	"arb":     ChainArbitrum,
}

// evmChainIDs maps EVM chains to their numeric chain IDs.
// Solana has no numeric ID and is passed to upstreams as the string "solana".
var evmChainIDs = map[Chain]int64{
	ChainEthereum:  1,
	ChainBSC:       56,
	ChainPolygon:   137,
	ChainBase:      8453,
	ChainArbitrum:  42161,
	ChainOptimism:  10,
	ChainAvalanche: 43114,
}

// NormalizeChain resolves a raw chain identifier to its canonical form.
// Returns false for unknown chains; callers drop the record and continue.
// Normalization is idempotent: canonical names resolve to themselves.
func NormalizeChain(raw string) (Chain, bool) {
	c := Chain(strings.ToLower(strings.TrimSpace(raw)))
	if alias, ok := chainAliases[string(c)]; ok {
		return alias, true
	}
	for _, s := range SupportedChains {
		if c == s {
			return c, true
		}
	}
	return "", false
}

// Valid reports whether c is one of the canonical supported chains.
func (c Chain) Valid() bool {
	for _, s := range SupportedChains {
		if c == s {
			return true
		}
	}
	return false
}

// NumericID returns the EVM numeric chain ID. ok is false for solana.
func (c Chain) NumericID() (int64, bool) {
	id, ok := evmChainIDs[c]
	return id, ok
}

// IsEVM reports whether the chain speaks EVM JSON-RPC.
func (c Chain) IsEVM() bool {
	_, ok := evmChainIDs[c]
	return ok
}
