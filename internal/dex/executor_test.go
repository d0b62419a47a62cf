package dex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"tokenradar/internal/domain"
)

// testKey is a throwaway key used only in tests.
const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var (
	tokenIn  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenOut = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

// fakeBackend scripts RPC responses by method selector.
type fakeBackend struct {
	chainID   *big.Int
	allowance *big.Int
	balance   *big.Int

	// quotes maps fee tier to quoter output; missing tiers revert.
	quotes map[int64]*big.Int

	receiptStatus uint64
	notFoundPolls int

	sent []*types.Transaction
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return f.chainID, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(100_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 200000, nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	selector := msg.Data[:4]
	switch {
	case bytes.Equal(selector, erc20ABI.Methods["allowance"].ID):
		return erc20ABI.Methods["allowance"].Outputs.Pack(f.allowance)
	case bytes.Equal(selector, erc20ABI.Methods["balanceOf"].ID):
		return erc20ABI.Methods["balanceOf"].Outputs.Pack(f.balance)
	case bytes.Equal(selector, quoterABI.Methods["quoteExactInputSingle"].ID):
		vals, err := quoterABI.Methods["quoteExactInputSingle"].Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		fee := vals[2].(*big.Int).Int64()
		out, ok := f.quotes[fee]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		return quoterABI.Methods["quoteExactInputSingle"].Outputs.Pack(out)
	}
	return nil, errors.New("unexpected call")
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if f.notFoundPolls > 0 {
		f.notFoundPolls--
		return nil, ethereum.NotFound
	}
	return &types.Receipt{
		Status:            f.receiptStatus,
		TxHash:            hash,
		GasUsed:           150000,
		EffectiveGasPrice: big.NewInt(120_000_000_000),
	}, nil
}

func newTestExecutor(t *testing.T, f *fakeBackend) *Executor {
	t.Helper()
	if f.chainID == nil {
		f.chainID = big.NewInt(1)
	}
	w, err := NewWallet(testKey)
	if err != nil {
		t.Fatalf("NewWallet: %v", err)
	}
	e, err := NewExecutor(context.Background(), domain.ChainEthereum, "", w,
		withBackend(f), withPollInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return e
}

func TestFindBestFeeTier(t *testing.T) {
	f := &fakeBackend{quotes: map[int64]*big.Int{
		500:   big.NewInt(950),
		3000:  big.NewInt(980),
		10000: big.NewInt(900),
	}}
	e := newTestExecutor(t, f)

	tier, out, err := e.FindBestFeeTier(context.Background(), tokenIn, tokenOut, big.NewInt(1000))
	if err != nil {
		t.Fatalf("FindBestFeeTier: %v", err)
	}
	if tier != 3000 || out.Int64() != 980 {
		t.Errorf("best tier = %d/%v, want 3000/980", tier, out)
	}
}

func TestFindBestFeeTierNoRoute(t *testing.T) {
	e := newTestExecutor(t, &fakeBackend{quotes: map[int64]*big.Int{}})

	tier, _, err := e.FindBestFeeTier(context.Background(), tokenIn, tokenOut, big.NewInt(1000))
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("err = %v, want ErrNoRoute", err)
	}
	if tier != DefaultFeeTier {
		t.Errorf("tier = %d, want default %d", tier, DefaultFeeTier)
	}
}

func TestApproveAlreadyApproved(t *testing.T) {
	f := &fakeBackend{allowance: big.NewInt(5000)}
	e := newTestExecutor(t, f)

	res, err := e.Approve(context.Background(), tokenIn, big.NewInt(1000), false)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if res.Status != ApprovalAlready {
		t.Errorf("status = %v, want already_approved", res.Status)
	}
	if len(f.sent) != 0 {
		t.Errorf("sent %d transactions, want 0", len(f.sent))
	}
}

func TestApproveInfinite(t *testing.T) {
	f := &fakeBackend{allowance: big.NewInt(0), receiptStatus: types.ReceiptStatusSuccessful, notFoundPolls: 2}
	e := newTestExecutor(t, f)

	res, err := e.Approve(context.Background(), tokenIn, big.NewInt(1000), true)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if res.Status != ApprovalDone || res.TxHash == "" {
		t.Errorf("result = %+v, want approved with tx hash", res)
	}
	if len(f.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(f.sent))
	}

	vals, err := erc20ABI.Methods["approve"].Inputs.Unpack(f.sent[0].Data()[4:])
	if err != nil {
		t.Fatalf("unpack approve: %v", err)
	}
	if vals[1].(*big.Int).Cmp(maxUint256) != 0 {
		t.Errorf("approve amount = %v, want max uint256", vals[1])
	}
}

func TestSwapSuccess(t *testing.T) {
	f := &fakeBackend{
		allowance:     maxUint256,
		quotes:        map[int64]*big.Int{3000: big.NewInt(1_000_000)},
		receiptStatus: types.ReceiptStatusSuccessful,
	}
	e := newTestExecutor(t, f)
	now := time.Unix(1_700_000_000, 0)
	e.now = func() time.Time { return now }

	res, err := e.Swap(context.Background(), SwapParams{
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    big.NewInt(500),
		SlippagePct: 1.0,
	})
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}

	if res.FeeTier != 3000 {
		t.Errorf("fee tier = %d, want 3000", res.FeeTier)
	}
	if res.AmountOutExpected.Int64() != 1_000_000 {
		t.Errorf("expected out = %v, want 1000000", res.AmountOutExpected)
	}
	if res.AmountOutMinimum.Int64() != 990_000 {
		t.Errorf("min out = %v, want 990000 at 1%% slippage", res.AmountOutMinimum)
	}
	if res.GasUsed != 150000 {
		t.Errorf("gas used = %d, want 150000", res.GasUsed)
	}
	// 150000 gas at 120 gwei.
	if math.Abs(res.GasCostNative-0.018) > 1e-12 {
		t.Errorf("gas cost = %v, want 0.018", res.GasCostNative)
	}

	if len(f.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1 (allowance covered)", len(f.sent))
	}
	tx := f.sent[0]
	if tx.To() == nil || *tx.To() != chainRouting[domain.ChainEthereum].Router {
		t.Errorf("tx to = %v, want router", tx.To())
	}
	// Suggested 100 gwei with 20% headroom.
	if tx.GasPrice().Int64() != 120_000_000_000 {
		t.Errorf("gas price = %v, want 120 gwei", tx.GasPrice())
	}
	if tx.Gas() != 240000 {
		t.Errorf("gas limit = %d, want 240000", tx.Gas())
	}

	vals, err := routerABI.Methods["exactInputSingle"].Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		t.Fatalf("unpack swap: %v", err)
	}
	params := vals[0].(struct {
		TokenIn           common.Address `json:"tokenIn"`
		TokenOut          common.Address `json:"tokenOut"`
		Fee               *big.Int       `json:"fee"`
		Recipient         common.Address `json:"recipient"`
		Deadline          *big.Int       `json:"deadline"`
		AmountIn          *big.Int       `json:"amountIn"`
		AmountOutMinimum  *big.Int       `json:"amountOutMinimum"`
		SqrtPriceLimitX96 *big.Int       `json:"sqrtPriceLimitX96"`
	})
	if params.Deadline.Int64() != now.Add(300*time.Second).Unix() {
		t.Errorf("deadline = %v, want now+300s", params.Deadline)
	}
	if params.AmountOutMinimum.Int64() != 990_000 {
		t.Errorf("calldata min out = %v, want 990000", params.AmountOutMinimum)
	}
	if params.Recipient != e.wallet.Address {
		t.Errorf("recipient = %v, want wallet", params.Recipient)
	}
}

func TestSwapReverted(t *testing.T) {
	f := &fakeBackend{
		allowance:     maxUint256,
		quotes:        map[int64]*big.Int{3000: big.NewInt(1_000_000)},
		receiptStatus: types.ReceiptStatusFailed,
	}
	e := newTestExecutor(t, f)

	res, err := e.Swap(context.Background(), SwapParams{
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    big.NewInt(500),
		SlippagePct: 1.0,
		FeeTier:     3000,
	})
	if !errors.Is(err, ErrSwapFailed) {
		t.Fatalf("err = %v, want ErrSwapFailed", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil on failed swap", res)
	}
}

func TestApplySlippage(t *testing.T) {
	tests := []struct {
		amount int64
		pct    float64
		want   int64
	}{
		{10000, 1.0, 9900},
		{10000, 0.5, 9950},
		{10000, 0, 10000},
		{10000, 150, 0},
		{10000, -1, 10000},
	}
	for _, tt := range tests {
		if got := applySlippage(big.NewInt(tt.amount), tt.pct).Int64(); got != tt.want {
			t.Errorf("applySlippage(%d, %v) = %d, want %d", tt.amount, tt.pct, got, tt.want)
		}
	}
}

func TestWalletNeverExposesKey(t *testing.T) {
	w, err := NewWallet("0x" + testKey)
	if err != nil {
		t.Fatalf("NewWallet: %v", err)
	}
	if w.String() != w.Address.Hex() {
		t.Errorf("String() = %q, want address", w.String())
	}

	b, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(strings.ToLower(string(b)), testKey[:16]) {
		t.Errorf("serialized wallet leaks key material: %s", b)
	}
}
