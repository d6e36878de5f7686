package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/orderswap/pkg/app/core/engine"
	"github.com/uhyunpark/orderswap/pkg/app/core/order"
	"github.com/uhyunpark/orderswap/pkg/app/core/transfer"
)

func TestMemoryStoreHoldingsAreCopied(t *testing.T) {
	s := NewMemoryStore()
	k := transfer.FungibleKey{Contract: token, Owner: alice}

	delta := transfer.NewHoldings()
	delta.ERC20[k] = big.NewInt(10)
	require.NoError(t, s.SaveHoldings(delta, nil))
	delta.ERC20[k].SetInt64(99)

	h, err := s.LoadHoldings()
	require.NoError(t, err)
	require.Equal(t, int64(10), h.ERC20[k].Int64())

	delta = transfer.NewHoldings()
	delta.ERC20[k] = big.NewInt(0)
	require.NoError(t, s.SaveHoldings(delta, nil))
	h, _ = s.LoadHoldings()
	require.Empty(t, h.ERC20)
}

func TestMemoryStoreStatusesAndSettlements(t *testing.T) {
	s := NewMemoryStore()
	d := common.HexToHash("0x01")
	require.NoError(t, s.SaveStatuses(map[common.Hash]order.Status{d: order.Filled}))
	st, ok, err := s.LoadStatus(d)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, order.Filled, st)

	base := time.Unix(1_700_000_000, 0)
	require.NoError(t, s.RecordSettlement(&engine.Settlement{ID: "late", Timestamp: base.Add(time.Minute)}))
	require.NoError(t, s.RecordSettlement(&engine.Settlement{ID: "early", Timestamp: base}))

	got, err := s.LoadRecentSettlements(10)
	require.NoError(t, err)
	require.Equal(t, "late", got[0].ID)
	require.Equal(t, "early", got[1].ID)
}

type failingRecorder struct{}

func (failingRecorder) RecordSettlement(*engine.Settlement) error { return errors.New("boom") }

func TestFileJournalAndRecorders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settlements.jsonl")
	j, err := NewFileJournal(path)
	require.NoError(t, err)

	mem := NewMemoryStore()
	rec := Recorders{mem, j}
	require.NoError(t, rec.RecordSettlement(&engine.Settlement{ID: "a", Fee: big.NewInt(1)}))
	require.NoError(t, rec.RecordSettlement(&engine.Settlement{ID: "b", Fee: big.NewInt(2)}))
	require.NoError(t, j.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var s engine.Settlement
		require.NoError(t, json.Unmarshal(sc.Bytes(), &s))
		ids = append(ids, s.ID)
	}
	require.Equal(t, []string{"a", "b"}, ids)

	got, _ := mem.LoadRecentSettlements(5)
	require.Len(t, got, 2)

	require.Error(t, Recorders{NewNopJournal(), failingRecorder{}}.RecordSettlement(&engine.Settlement{}))
}
