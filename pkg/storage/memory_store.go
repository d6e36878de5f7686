package storage

import (
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/orderswap/pkg/app/core/engine"
	"github.com/uhyunpark/orderswap/pkg/app/core/order"
	"github.com/uhyunpark/orderswap/pkg/app/core/registry"
	"github.com/uhyunpark/orderswap/pkg/app/core/transfer"
)

// MemoryStore keeps everything PebbleStore does in process memory.
type MemoryStore struct {
	mu          sync.Mutex
	statuses    map[common.Hash]order.Status
	settlements []*engine.Settlement
	holdings    *transfer.Holdings
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		statuses: make(map[common.Hash]order.Status),
		holdings: transfer.NewHoldings(),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) LoadStatus(digest common.Hash) (order.Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[digest]
	return st, ok, nil
}

func (s *MemoryStore) SaveStatuses(statuses map[common.Hash]order.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for d, st := range statuses {
		s.statuses[d] = st
	}
	return nil
}

func (s *MemoryStore) RecordSettlement(st *engine.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlements = append(s.settlements, st)
	sort.SliceStable(s.settlements, func(i, j int) bool {
		return s.settlements[i].Timestamp.Before(s.settlements[j].Timestamp)
	})
	return nil
}

func (s *MemoryStore) LoadRecentSettlements(limit int) ([]*engine.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*engine.Settlement
	for i := len(s.settlements) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.settlements[i])
	}
	return out, nil
}

func (s *MemoryStore) LoadHoldings() (*transfer.Holdings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := transfer.NewHoldings()
	for k, v := range s.holdings.ERC20 {
		h.ERC20[k] = new(big.Int).Set(v)
	}
	for k, v := range s.holdings.ERC721 {
		h.ERC721[k] = v
	}
	for k, v := range s.holdings.ERC1155 {
		h.ERC1155[k] = new(big.Int).Set(v)
	}
	return h, nil
}

func (s *MemoryStore) SaveHoldings(delta *transfer.Holdings, fills map[common.Hash]order.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for d, st := range fills {
		s.statuses[d] = st
	}

	for k, v := range delta.ERC20 {
		if v.Sign() == 0 {
			delete(s.holdings.ERC20, k)
		} else {
			s.holdings.ERC20[k] = new(big.Int).Set(v)
		}
	}
	for k, v := range delta.ERC721 {
		if v == (common.Address{}) {
			delete(s.holdings.ERC721, k)
		} else {
			s.holdings.ERC721[k] = v
		}
	}
	for k, v := range delta.ERC1155 {
		if v.Sign() == 0 {
			delete(s.holdings.ERC1155, k)
		} else {
			s.holdings.ERC1155[k] = new(big.Int).Set(v)
		}
	}
	return nil
}

var (
	_ registry.Store         = (*MemoryStore)(nil)
	_ transfer.HoldingsStore = (*MemoryStore)(nil)
	_ engine.Recorder        = (*MemoryStore)(nil)
)
