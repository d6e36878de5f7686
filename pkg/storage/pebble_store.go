package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/orderswap/pkg/app/core/engine"
	"github.com/uhyunpark/orderswap/pkg/app/core/order"
	"github.com/uhyunpark/orderswap/pkg/app/core/registry"
	"github.com/uhyunpark/orderswap/pkg/app/core/transfer"
)

// PebbleStore persists order statuses, settlements and ledger holdings in one database.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:             32 << 20,
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		LBaseMaxBytes:            64 << 20,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) LoadStatus(digest common.Hash) (order.Status, bool, error) {
	val, closer, err := s.db.Get(statusKey(digest))
	if errors.Is(err, pebble.ErrNotFound) {
		return order.Active, false, nil
	}
	if err != nil {
		return order.Active, false, fmt.Errorf("failed to get status: %w", err)
	}
	defer closer.Close()

	st, err := decodeStatus(val)
	if err != nil {
		return order.Active, false, err
	}
	return st, true, nil
}

// SaveStatuses writes all statuses in one synced batch.
func (s *PebbleStore) SaveStatuses(statuses map[common.Hash]order.Status) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for d, st := range statuses {
		if err := batch.Set(statusKey(d), encodeStatus(st), nil); err != nil {
			return fmt.Errorf("failed to stage status: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit statuses: %w", err)
	}
	return nil
}

func (s *PebbleStore) RecordSettlement(st *engine.Settlement) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement: %w", err)
	}

	key := settlementKey(st.Timestamp.UnixNano(), st.ID)
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save settlement: %w", err)
	}
	return nil
}

// LoadRecentSettlements returns up to limit settlements, newest first.
func (s *PebbleStore) LoadRecentSettlements(limit int) ([]*engine.Settlement, error) {
	prefix := []byte(prefixSettlement)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var out []*engine.Settlement
	for iter.Last(); iter.Valid() && len(out) < limit; iter.Prev() {
		var st engine.Settlement
		if err := json.Unmarshal(iter.Value(), &st); err != nil {
			continue // Skip invalid entries
		}
		out = append(out, &st)
	}
	return out, nil
}

func (s *PebbleStore) LoadHoldings() (*transfer.Holdings, error) {
	h := transfer.NewHoldings()

	err := s.scan(prefixERC20, func(key, val []byte) error {
		k, err := parseERC20Key(key)
		if err != nil {
			return err
		}
		v, err := decodeBig(val)
		if err != nil {
			return err
		}
		h.ERC20[k] = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.scan(prefixERC721, func(key, val []byte) error {
		k, err := parseERC721Key(key)
		if err != nil {
			return err
		}
		h.ERC721[k] = common.BytesToAddress(val)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.scan(prefixERC1155, func(key, val []byte) error {
		k, err := parseERC1155Key(key)
		if err != nil {
			return err
		}
		v, err := decodeBig(val)
		if err != nil {
			return err
		}
		h.ERC1155[k] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// SaveHoldings applies a ledger delta and the fills it settles in one synced batch.
// Zero balances and zero owners delete their keys.
func (s *PebbleStore) SaveHoldings(delta *transfer.Holdings, fills map[common.Hash]order.Status) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for d, st := range fills {
		if err := batch.Set(statusKey(d), encodeStatus(st), nil); err != nil {
			return fmt.Errorf("failed to stage status: %w", err)
		}
	}

	for k, v := range delta.ERC20 {
		if err := setOrDelete(batch, erc20Key(k), encodeBig(v), v.Sign() == 0); err != nil {
			return err
		}
	}
	for k, owner := range delta.ERC721 {
		if err := setOrDelete(batch, erc721Key(k), owner.Bytes(), owner == (common.Address{})); err != nil {
			return err
		}
	}
	for k, v := range delta.ERC1155 {
		if err := setOrDelete(batch, erc1155Key(k), encodeBig(v), v.Sign() == 0); err != nil {
			return err
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit holdings: %w", err)
	}
	return nil
}

func setOrDelete(b *pebble.Batch, key, val []byte, del bool) error {
	if del {
		return b.Delete(key, nil)
	}
	return b.Set(key, val, nil)
}

func (s *PebbleStore) scan(prefix string, fn func(key, val []byte) error) error {
	p := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: p,
		UpperBound: keyUpperBound(p),
	})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

var (
	_ registry.Store         = (*PebbleStore)(nil)
	_ transfer.HoldingsStore = (*PebbleStore)(nil)
	_ engine.Recorder        = (*PebbleStore)(nil)
)
