package transfer

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/orderswap/pkg/app/core/order"
)

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
	usdc  = common.HexToAddress("0xc0ffee")
	punks = common.HexToAddress("0x9999")
	items = common.HexToAddress("0x1155")
)

type recordingStore struct {
	saved []*Holdings
	fills []map[common.Hash]order.Status
	fail  bool
}

func (s *recordingStore) LoadHoldings() (*Holdings, error) { return nil, nil }

func (s *recordingStore) SaveHoldings(d *Holdings, fills map[common.Hash]order.Status) error {
	if s.fail {
		return errors.New("write failed")
	}
	s.saved = append(s.saved, d)
	s.fills = append(s.fills, fills)
	return nil
}

func newFundedLedger(t *testing.T, store HoldingsStore) *Ledger {
	t.Helper()
	l, err := NewLedger(store)
	require.NoError(t, err)
	require.NoError(t, l.MintERC20(usdc, bob, big.NewInt(1000)))
	require.NoError(t, l.MintERC721(punks, alice, big.NewInt(7)))
	require.NoError(t, l.MintERC1155(items, alice, big.NewInt(3), big.NewInt(50)))
	return l
}

func TestDispatchAppliesAllLegs(t *testing.T) {
	l := newFundedLedger(t, nil)

	err := l.Dispatch(context.Background(), []Transfer{
		{AssetType: order.ERC721, Contract: punks, From: alice, To: bob, ID: big.NewInt(7), Amount: big.NewInt(1)},
		{AssetType: order.ERC20, Contract: usdc, From: bob, To: alice, ID: big.NewInt(0), Amount: big.NewInt(400)},
		{AssetType: order.ERC1155, Contract: items, From: alice, To: bob, ID: big.NewInt(3), Amount: big.NewInt(20)},
	})
	require.NoError(t, err)

	require.Equal(t, bob, l.OwnerOf(punks, big.NewInt(7)))
	require.Equal(t, int64(600), l.BalanceOf(usdc, bob).Int64())
	require.Equal(t, int64(400), l.BalanceOf(usdc, alice).Int64())
	require.Equal(t, int64(30), l.BalanceOf1155(items, big.NewInt(3), alice).Int64())
	require.Equal(t, int64(20), l.BalanceOf1155(items, big.NewInt(3), bob).Int64())
}

func TestDispatchIsAllOrNothing(t *testing.T) {
	tests := []struct {
		name string
		legs []Transfer
		want error
	}{
		{
			name: "insufficient erc20 on second leg",
			legs: []Transfer{
				{AssetType: order.ERC721, Contract: punks, From: alice, To: bob, ID: big.NewInt(7), Amount: big.NewInt(1)},
				{AssetType: order.ERC20, Contract: usdc, From: bob, To: alice, Amount: big.NewInt(1001)},
			},
			want: ErrInsufficientBalance,
		},
		{
			name: "not owner",
			legs: []Transfer{
				{AssetType: order.ERC20, Contract: usdc, From: bob, To: alice, Amount: big.NewInt(10)},
				{AssetType: order.ERC721, Contract: punks, From: bob, To: alice, ID: big.NewInt(7), Amount: big.NewInt(1)},
			},
			want: ErrNotOwner,
		},
		{
			name: "double spend inside one batch",
			legs: []Transfer{
				{AssetType: order.ERC20, Contract: usdc, From: bob, To: alice, Amount: big.NewInt(600)},
				{AssetType: order.ERC20, Contract: usdc, From: bob, To: alice, Amount: big.NewInt(600)},
			},
			want: ErrInsufficientBalance,
		},
		{
			name: "zero amount",
			legs: []Transfer{
				{AssetType: order.ERC20, Contract: usdc, From: bob, To: alice, Amount: big.NewInt(0)},
			},
			want: ErrInvalidTransfer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &recordingStore{}
			l := newFundedLedger(t, store)
			mints := len(store.saved)

			err := l.Dispatch(context.Background(), tt.legs)
			require.ErrorIs(t, err, tt.want)

			require.Equal(t, alice, l.OwnerOf(punks, big.NewInt(7)))
			require.Equal(t, int64(1000), l.BalanceOf(usdc, bob).Int64())
			require.Equal(t, int64(0), l.BalanceOf(usdc, alice).Int64())
			require.Len(t, store.saved, mints, "failed batch must not reach the store")
		})
	}
}

func TestReceiveHookAbortsBatch(t *testing.T) {
	l := newFundedLedger(t, nil)
	reject := errors.New("receiver rejected")
	l.OnReceive = func(ctx context.Context, leg Transfer) error {
		if leg.AssetType == order.ERC20 {
			return reject
		}
		return nil
	}

	err := l.Dispatch(context.Background(), []Transfer{
		{AssetType: order.ERC721, Contract: punks, From: alice, To: bob, ID: big.NewInt(7), Amount: big.NewInt(1)},
		{AssetType: order.ERC20, Contract: usdc, From: bob, To: alice, Amount: big.NewInt(1)},
	})
	require.ErrorIs(t, err, reject)
	require.Equal(t, alice, l.OwnerOf(punks, big.NewInt(7)))
}

func TestNestedDispatchFromHookIsRejected(t *testing.T) {
	l := newFundedLedger(t, nil)
	var nested error
	l.OnReceive = func(ctx context.Context, leg Transfer) error {
		nested = l.Dispatch(ctx, []Transfer{
			{AssetType: order.ERC20, Contract: usdc, From: bob, To: alice, Amount: big.NewInt(1)},
		})
		return nil
	}

	err := l.Dispatch(context.Background(), []Transfer{
		{AssetType: order.ERC20, Contract: usdc, From: bob, To: alice, Amount: big.NewInt(5)},
	})
	require.NoError(t, err)
	require.ErrorIs(t, nested, ErrReentrantDispatch)
	require.Equal(t, int64(5), l.BalanceOf(usdc, alice).Int64())
}

func TestNestedCallsWithFreshContextAreRejected(t *testing.T) {
	l := newFundedLedger(t, nil)
	var nested []error
	l.OnReceive = func(_ context.Context, leg Transfer) error {
		nested = append(nested, l.Dispatch(context.Background(), []Transfer{
			{AssetType: order.ERC20, Contract: usdc, From: bob, To: alice, Amount: big.NewInt(1)},
		}))
		nested = append(nested, l.MintERC20(usdc, alice, big.NewInt(1)))
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- l.Dispatch(context.Background(), []Transfer{
			{AssetType: order.ERC20, Contract: usdc, From: bob, To: alice, Amount: big.NewInt(5)},
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("ledger blocked on a nested call from its receive hook")
	}
	require.Len(t, nested, 2)
	for _, err := range nested {
		require.ErrorIs(t, err, ErrReentrantDispatch)
	}
	require.Equal(t, int64(5), l.BalanceOf(usdc, alice).Int64())

	// the lock is free again once the batch is done
	l.OnReceive = nil
	require.NoError(t, l.MintERC20(usdc, alice, big.NewInt(1)))
}

func TestDispatchFillsSharesTheHoldingsWrite(t *testing.T) {
	store := &recordingStore{}
	l := newFundedLedger(t, store)
	fills := map[common.Hash]order.Status{
		common.HexToHash("0x0a"): order.Filled,
		common.HexToHash("0x0b"): order.Filled,
	}
	legs := []Transfer{
		{AssetType: order.ERC721, Contract: punks, From: alice, To: bob, ID: big.NewInt(7), Amount: big.NewInt(1)},
		{AssetType: order.ERC20, Contract: usdc, From: bob, To: alice, Amount: big.NewInt(400)},
	}

	persisted, err := l.DispatchFills(context.Background(), legs, fills)
	require.NoError(t, err)
	require.True(t, persisted)

	last := len(store.saved) - 1
	require.Equal(t, bob, store.saved[last].ERC721[TokenKey{punks, "7"}])
	require.Equal(t, fills, store.fills[last])

	// without a store the caller keeps ownership of the fills
	bare := newFundedLedger(t, nil)
	persisted, err = bare.DispatchFills(context.Background(), legs, fills)
	require.NoError(t, err)
	require.False(t, persisted)
}

func TestStoreFailureLeavesStateUntouched(t *testing.T) {
	store := &recordingStore{}
	l := newFundedLedger(t, store)
	store.fail = true

	err := l.Dispatch(context.Background(), []Transfer{
		{AssetType: order.ERC20, Contract: usdc, From: bob, To: alice, Amount: big.NewInt(5)},
	})
	require.Error(t, err)
	require.Equal(t, int64(1000), l.BalanceOf(usdc, bob).Int64())
}

func TestMintERC721Twice(t *testing.T) {
	l := newFundedLedger(t, nil)
	require.Error(t, l.MintERC721(punks, bob, big.NewInt(7)))
}
