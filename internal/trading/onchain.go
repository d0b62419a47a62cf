package trading

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"tokenradar/internal/dex"
	"tokenradar/internal/domain"
)

// quoteAsset is the stable token trades are funded from on each chain.
type quoteAsset struct {
	Address  common.Address
	Decimals uint8
}

var quoteAssets = map[domain.Chain]quoteAsset{
	domain.ChainEthereum: {common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), 6},  // USDC
	domain.ChainPolygon:  {common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"), 6},  // USDC.e
	domain.ChainArbitrum: {common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"), 6},  // USDC
	domain.ChainBase:     {common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), 6},  // USDC
	domain.ChainBSC:      {common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"), 18}, // USDT
}

// OnChainExecutor implements TradeExecutor over per-chain DEX executors,
// funding every buy from the chain's stable quote asset.
type OnChainExecutor struct {
	executors map[domain.Chain]*dex.Executor
}

// NewOnChainExecutor wraps the given per-chain executors.
func NewOnChainExecutor(executors map[domain.Chain]*dex.Executor) *OnChainExecutor {
	return &OnChainExecutor{executors: executors}
}

// Chains lists the chains with a configured executor.
func (o *OnChainExecutor) Chains() []domain.Chain {
	out := make([]domain.Chain, 0, len(o.executors))
	for chain := range o.executors {
		out = append(out, chain)
	}
	return out
}

func (o *OnChainExecutor) resolve(chain domain.Chain) (*dex.Executor, quoteAsset, error) {
	e, ok := o.executors[chain]
	if !ok {
		return nil, quoteAsset{}, fmt.Errorf("%w: %s", dex.ErrUnsupportedChain, chain)
	}
	quote, ok := quoteAssets[chain]
	if !ok {
		return nil, quoteAsset{}, fmt.Errorf("%w: no quote asset for %s", dex.ErrUnsupportedChain, chain)
	}
	return e, quote, nil
}

// Buy swaps amountUSD of the quote asset into the token.
func (o *OnChainExecutor) Buy(ctx context.Context, chain domain.Chain, token string, amountUSD, slippagePct float64) (*TradeReceipt, error) {
	e, quote, err := o.resolve(chain)
	if err != nil {
		return nil, err
	}
	tokenAddr := common.HexToAddress(token)

	tokenDec, err := e.Decimals(ctx, tokenAddr)
	if err != nil {
		return nil, err
	}

	result, err := e.Swap(ctx, dex.SwapParams{
		TokenIn:     quote.Address,
		TokenOut:    tokenAddr,
		AmountIn:    toUnits(amountUSD, quote.Decimals),
		SlippagePct: slippagePct,
	})
	if err != nil {
		return nil, err
	}

	tokens := fromUnits(result.AmountOutExpected, tokenDec)
	receipt := &TradeReceipt{
		TxHash:        result.TxHash,
		AmountTokens:  tokens,
		DexName:       result.DexName,
		GasCostNative: result.GasCostNative,
	}
	if tokens > 0 {
		receipt.ExecutedPrice = amountUSD / tokens
	}
	return receipt, nil
}

// Sell swaps a token amount back into the quote asset.
func (o *OnChainExecutor) Sell(ctx context.Context, chain domain.Chain, token string, amountTokens, slippagePct float64) (*TradeReceipt, error) {
	e, quote, err := o.resolve(chain)
	if err != nil {
		return nil, err
	}
	tokenAddr := common.HexToAddress(token)

	tokenDec, err := e.Decimals(ctx, tokenAddr)
	if err != nil {
		return nil, err
	}

	result, err := e.Swap(ctx, dex.SwapParams{
		TokenIn:     tokenAddr,
		TokenOut:    quote.Address,
		AmountIn:    toUnits(amountTokens, tokenDec),
		SlippagePct: slippagePct,
	})
	if err != nil {
		return nil, err
	}

	usdOut := fromUnits(result.AmountOutExpected, quote.Decimals)
	receipt := &TradeReceipt{
		TxHash:        result.TxHash,
		AmountTokens:  amountTokens,
		DexName:       result.DexName,
		GasCostNative: result.GasCostNative,
	}
	if amountTokens > 0 {
		receipt.ExecutedPrice = usdOut / amountTokens
	}
	return receipt, nil
}

// toUnits converts a float amount into integer token units.
func toUnits(amount float64, decimals uint8) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(math.Pow10(int(decimals))))
	units, _ := f.Int(nil)
	return units
}

// fromUnits converts integer token units into a float amount.
func fromUnits(units *big.Int, decimals uint8) float64 {
	f := new(big.Float).Quo(new(big.Float).SetInt(units), big.NewFloat(math.Pow10(int(decimals))))
	out, _ := f.Float64()
	return out
}
