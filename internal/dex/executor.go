// Package dex executes swaps through Uniswap V3 style routers on EVM chains.
package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"tokenradar/internal/domain"
)

var (
	// ErrSwapFailed means the swap transaction reverted or was never mined.
	// No position must be recorded when this is returned.
	ErrSwapFailed = errors.New("dex: swap failed")

	// ErrUnsupportedChain means no router is configured for the chain.
	ErrUnsupportedChain = errors.New("dex: unsupported chain")

	// ErrNoRoute means no fee tier produced a quote for the pair.
	ErrNoRoute = errors.New("dex: no route")
)

// maxUint256 is the infinite approval amount.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

const (
	approveWaitTimeout = 120 * time.Second
	swapWaitTimeout    = 180 * time.Second
	swapDeadline       = 300 * time.Second
	receiptPollEvery   = 2 * time.Second
)

// backend is the slice of the Ethereum RPC surface the executor needs.
// *ethclient.Client satisfies it; tests substitute a scripted fake.
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ backend = (*ethclient.Client)(nil)

// SwapParams describes one exact-input swap.
type SwapParams struct {
	TokenIn     common.Address
	TokenOut    common.Address
	AmountIn    *big.Int
	SlippagePct float64

	// FeeTier pins the pool fee tier. Zero means probe all tiers and take
	// the best quote.
	FeeTier int64
}

// SwapResult reports a mined swap.
type SwapResult struct {
	TxHash            string   `json:"tx_hash"`
	DexName           string   `json:"dex_name"`
	FeeTier           int64    `json:"fee_tier"`
	AmountIn          *big.Int `json:"amount_in"`
	AmountOutExpected *big.Int `json:"amount_out_expected"`
	AmountOutMinimum  *big.Int `json:"amount_out_minimum"`
	GasUsed           uint64   `json:"gas_used"`
	GasCostNative     float64  `json:"gas_cost_native"`
}

// ApprovalStatus distinguishes a fresh approval from a no-op.
type ApprovalStatus string

const (
	ApprovalDone    ApprovalStatus = "approved"
	ApprovalAlready ApprovalStatus = "already_approved"
)

// ApprovalResult reports an Approve call.
type ApprovalResult struct {
	Status ApprovalStatus `json:"status"`
	TxHash string         `json:"tx_hash,omitempty"`
}

// Executor signs and submits swaps for one chain.
type Executor struct {
	chain   domain.Chain
	chainID *big.Int
	route   routing
	client  backend
	wallet  *Wallet
	logger  zerolog.Logger

	pollEvery time.Duration
	now       func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the executor logger.
func WithExecutorLogger(logger zerolog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

func withBackend(b backend) ExecutorOption {
	return func(e *Executor) {
		e.client = b
	}
}

func withPollInterval(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.pollEvery = d
	}
}

// NewExecutor dials the chain RPC and resolves the router deployment.
func NewExecutor(ctx context.Context, chain domain.Chain, rpcURL string, wallet *Wallet, opts ...ExecutorOption) (*Executor, error) {
	route, ok := chainRouting[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, chain)
	}

	e := &Executor{
		chain:     chain,
		route:     route,
		wallet:    wallet,
		logger:    zerolog.Nop(),
		pollEvery: receiptPollEvery,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.client == nil {
		client, err := ethclient.DialContext(ctx, rpcURL)
		if err != nil {
			return nil, fmt.Errorf("dial %s rpc: %w", chain, err)
		}
		e.client = client
	}

	chainID, err := e.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	if want, ok := chain.NumericID(); ok && chainID.Int64() != want {
		return nil, fmt.Errorf("rpc reports chain id %d, want %d for %s", chainID, want, chain)
	}
	e.chainID = chainID

	return e, nil
}

// DexName is the configured router's name, e.g. "uniswap_v3".
func (e *Executor) DexName() string {
	return e.route.Name
}

// Balance returns the wallet's balance of an ERC-20 token.
func (e *Executor) Balance(ctx context.Context, token common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", e.wallet.Address)
	if err != nil {
		return nil, err
	}
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	return unpackUint(erc20ABI, "balanceOf", out)
}

// Decimals returns an ERC-20 token's decimal places.
func (e *Executor) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("decimals: %w", err)
	}
	vals, err := erc20ABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}
	dec, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unpack decimals: unexpected type %T", vals[0])
	}
	return dec, nil
}

// Allowance returns the router's current spending allowance for a token.
func (e *Executor) Allowance(ctx context.Context, token common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", e.wallet.Address, e.route.Router)
	if err != nil {
		return nil, err
	}
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("allowance: %w", err)
	}
	return unpackUint(erc20ABI, "allowance", out)
}

// Approve grants the router spending rights over token. When the existing
// allowance already covers amount it is a no-op. With infinite=true the
// approval is for max uint256.
func (e *Executor) Approve(ctx context.Context, token common.Address, amount *big.Int, infinite bool) (*ApprovalResult, error) {
	allowance, err := e.Allowance(ctx, token)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(amount) >= 0 {
		return &ApprovalResult{Status: ApprovalAlready}, nil
	}

	approveAmount := amount
	if infinite {
		approveAmount = maxUint256
	}
	data, err := erc20ABI.Pack("approve", e.route.Router, approveAmount)
	if err != nil {
		return nil, err
	}

	tx, err := e.submit(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("approve: %w", err)
	}

	receipt, err := e.waitMined(ctx, tx.Hash(), approveWaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("approve wait: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("approve reverted: %s", tx.Hash())
	}

	e.logger.Info().
		Str("chain", string(e.chain)).
		Str("token", token.Hex()).
		Str("tx", tx.Hash().Hex()).
		Bool("infinite", infinite).
		Msg("router approval mined")

	return &ApprovalResult{Status: ApprovalDone, TxHash: tx.Hash().Hex()}, nil
}

// Quote asks the quoter for the exact-input output at one fee tier.
func (e *Executor) Quote(ctx context.Context, tokenIn, tokenOut common.Address, feeTier int64, amountIn *big.Int) (*big.Int, error) {
	data, err := quoterABI.Pack("quoteExactInputSingle",
		tokenIn, tokenOut, big.NewInt(feeTier), amountIn, big.NewInt(0))
	if err != nil {
		return nil, err
	}
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &e.route.Quoter, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("quote fee %d: %w", feeTier, err)
	}
	return unpackUint(quoterABI, "quoteExactInputSingle", out)
}

// FindBestFeeTier probes every fee tier and returns the one with the highest
// output, along with that quote. Tiers without a pool are skipped. When no
// tier quotes at all, the default tier is returned with ErrNoRoute.
func (e *Executor) FindBestFeeTier(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (int64, *big.Int, error) {
	bestTier := int64(0)
	var bestOut *big.Int

	for _, tier := range FeeTiers {
		out, err := e.Quote(ctx, tokenIn, tokenOut, tier, amountIn)
		if err != nil || out.Sign() <= 0 {
			continue
		}
		if bestOut == nil || out.Cmp(bestOut) > 0 {
			bestTier, bestOut = tier, out
		}
	}
	if bestOut == nil {
		return DefaultFeeTier, nil, ErrNoRoute
	}
	return bestTier, bestOut, nil
}

// Swap executes an exact-input single-hop swap. The flow is quote, slippage
// floor, router approval, then a signed exactInputSingle with the deadline
// five minutes out. A reverted or unmined transaction yields ErrSwapFailed
// and the caller must not record a position.
func (e *Executor) Swap(ctx context.Context, p SwapParams) (*SwapResult, error) {
	if p.AmountIn == nil || p.AmountIn.Sign() <= 0 {
		return nil, fmt.Errorf("dex: amount in must be positive")
	}

	feeTier := p.FeeTier
	var expected *big.Int
	var err error
	if feeTier == 0 {
		feeTier, expected, err = e.FindBestFeeTier(ctx, p.TokenIn, p.TokenOut, p.AmountIn)
		if err != nil {
			return nil, err
		}
	} else {
		expected, err = e.Quote(ctx, p.TokenIn, p.TokenOut, feeTier, p.AmountIn)
		if err != nil {
			return nil, err
		}
	}

	minOut := applySlippage(expected, p.SlippagePct)

	if _, err := e.Approve(ctx, p.TokenIn, p.AmountIn, true); err != nil {
		return nil, err
	}

	deadline := big.NewInt(e.now().Add(swapDeadline).Unix())
	data, err := routerABI.Pack("exactInputSingle", exactInputSingleParams{
		TokenIn:           p.TokenIn,
		TokenOut:          p.TokenOut,
		Fee:               big.NewInt(feeTier),
		Recipient:         e.wallet.Address,
		Deadline:          deadline,
		AmountIn:          p.AmountIn,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, err
	}

	tx, err := e.submit(ctx, e.route.Router, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSwapFailed, err)
	}

	receipt, err := e.waitMined(ctx, tx.Hash(), swapWaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSwapFailed, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		e.logger.Warn().
			Str("chain", string(e.chain)).
			Str("tx", tx.Hash().Hex()).
			Msg("swap reverted")
		return nil, fmt.Errorf("%w: reverted %s", ErrSwapFailed, tx.Hash())
	}

	result := &SwapResult{
		TxHash:            tx.Hash().Hex(),
		DexName:           e.route.Name,
		FeeTier:           feeTier,
		AmountIn:          p.AmountIn,
		AmountOutExpected: expected,
		AmountOutMinimum:  minOut,
		GasUsed:           receipt.GasUsed,
		GasCostNative:     gasCostNative(receipt, tx),
	}

	e.logger.Info().
		Str("chain", string(e.chain)).
		Str("tx", result.TxHash).
		Int64("fee_tier", feeTier).
		Uint64("gas_used", result.GasUsed).
		Msg("swap mined")

	return result, nil
}

// exactInputSingleParams mirrors the router's struct argument.
type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// submit builds, signs, and broadcasts a transaction to `to` with a 20% gas
// headroom on both price and limit.
func (e *Executor) submit(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	nonce, err := e.client.PendingNonceAt(ctx, e.wallet.Address)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	gasPrice = new(big.Int).Div(new(big.Int).Mul(gasPrice, big.NewInt(12)), big.NewInt(10))

	gasLimit, err := e.client.EstimateGas(ctx, ethereum.CallMsg{
		From: e.wallet.Address,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gasLimit = gasLimit * 12 / 10

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := e.wallet.Sign(tx, e.chainID)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	return signed, nil
}

// waitMined polls for the receipt until timeout.
func (e *Executor) waitMined(ctx context.Context, hash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(e.pollEvery)
	defer ticker.Stop()

	for {
		receipt, err := e.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("tx %s not mined: %w", hash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// applySlippage computes amount * (1 - pct/100) in basis points to stay in
// integer math.
func applySlippage(amount *big.Int, pct float64) *big.Int {
	bps := int64(pct * 100)
	if bps < 0 {
		bps = 0
	}
	if bps > 10000 {
		bps = 10000
	}
	out := new(big.Int).Mul(amount, big.NewInt(10000-bps))
	return out.Div(out, big.NewInt(10000))
}

func gasCostNative(receipt *types.Receipt, tx *types.Transaction) float64 {
	price := receipt.EffectiveGasPrice
	if price == nil {
		price = tx.GasPrice()
	}
	wei := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), price)
	cost, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18)).Float64()
	return cost
}

func unpackUint(parsed abi.ABI, method string, out []byte) (*big.Int, error) {
	vals, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("unpack %s: %d values", method, len(vals))
	}
	n, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, vals[0])
	}
	return n, nil
}
