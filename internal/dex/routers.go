package dex

import (
	"github.com/ethereum/go-ethereum/common"

	"tokenradar/internal/domain"
)

// FeeTiers are the Uniswap V3 pool fee tiers probed when picking a route,
// in hundredths of a basis point.
var FeeTiers = []int64{100, 500, 3000, 10000}

// DefaultFeeTier is used when no probed tier returns a quote.
const DefaultFeeTier int64 = 3000

type routing struct {
	Name   string
	Router common.Address
	Quoter common.Address
}

// Uniswap V3 SwapRouter and Quoter deployments per chain. BSC goes through
// PancakeSwap V3, Base through the SwapRouter02 deployment.
var chainRouting = map[domain.Chain]routing{
	domain.ChainEthereum: {
		Name:   "uniswap_v3",
		Router: common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"),
		Quoter: common.HexToAddress("0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6"),
	},
	domain.ChainPolygon: {
		Name:   "uniswap_v3",
		Router: common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"),
		Quoter: common.HexToAddress("0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6"),
	},
	domain.ChainArbitrum: {
		Name:   "uniswap_v3",
		Router: common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"),
		Quoter: common.HexToAddress("0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6"),
	},
	domain.ChainBSC: {
		Name:   "pancakeswap_v3",
		Router: common.HexToAddress("0x1b81D678ffb9C0263b24A97847620C99d213eB14"),
		Quoter: common.HexToAddress("0xB048Bbc1Ee6b733FFfCFb9e9CeF7375518e25997"),
	},
	domain.ChainBase: {
		Name:   "uniswap_v3",
		Router: common.HexToAddress("0x2626664c2603336E57B271c5C0b26F421741e481"),
		Quoter: common.HexToAddress("0x3d4e44Eb1374240CE5F1B871ab261CD16335B76a"),
	},
}

// RoutingFor reports the router deployment for a chain, if one is configured.
func RoutingFor(chain domain.Chain) (name string, ok bool) {
	r, ok := chainRouting[chain]
	return r.Name, ok
}
