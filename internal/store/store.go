package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"gridex-go/order"
	"gridex-go/strategy"
)

// ErrCorruptRecord 持久化记录无法解码
var ErrCorruptRecord = errors.New("corrupt record")

// Store 网格引擎的持久化层，实现 order.Persister。
// keys: g:<gridID> 网格配置, o:<handle> 档位, s:<gridID><side> 策略参数, m:counters 计数器
type Store struct {
	db *pebble.DB
}

var _ order.Persister = (*Store)(nil)

func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

var (
	prefixGrid     = []byte("g:")
	prefixOrder    = []byte("o:")
	prefixStrategy = []byte("s:")
	keyCounters    = []byte("m:counters")
)

func gridKey(id order.GridID) []byte {
	return binary.BigEndian.AppendUint32(append([]byte{}, prefixGrid...), uint32(id))
}

func orderKey(h order.OrderHandle) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefixOrder...), uint64(h))
}

func strategyKey(id order.GridID, isAsk bool) []byte {
	k := binary.BigEndian.AppendUint32(append([]byte{}, prefixStrategy...), uint32(id))
	if isAsk {
		return append(k, 'a')
	}
	return append(k, 'b')
}

func keyUpperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// strategyRecord 策略参数按类型打标签，解码时还原为具体类型
type strategyRecord struct {
	GridID order.GridID    `json:"gridId"`
	IsAsk  bool            `json:"isAsk"`
	Ref    strategy.Ref    `json:"ref"`
	Kind   strategy.Type   `json:"kind"`
	Params json.RawMessage `json:"params"`
}

type orderRecord struct {
	Handle order.OrderHandle `json:"handle"`
	order.Order
}

// Commit writes one engine batch atomically.
func (s *Store) Commit(b *order.Batch) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for i := range b.Grids {
		g := &b.Grids[i]
		if err := setJSON(batch, gridKey(g.GridID), g); err != nil {
			return err
		}
	}
	for _, o := range b.Orders {
		if err := setJSON(batch, orderKey(o.Handle), orderRecord{Handle: o.Handle, Order: o.Order}); err != nil {
			return err
		}
	}
	for _, rec := range b.Strategies {
		raw, err := json.Marshal(rec.Params)
		if err != nil {
			return fmt.Errorf("encode strategy params for grid %d: %w", rec.GridID, err)
		}
		sr := strategyRecord{GridID: rec.GridID, IsAsk: rec.IsAsk, Ref: rec.Ref, Kind: rec.Params.Kind(), Params: raw}
		if err := setJSON(batch, strategyKey(rec.GridID, rec.IsAsk), sr); err != nil {
			return err
		}
	}
	if err := setJSON(batch, keyCounters, b.Counters); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func setJSON(batch *pebble.Batch, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return batch.Set(key, data, nil)
}

// LoadSnapshot reads everything back for order.Restore. An empty store yields
// an empty snapshot with zero counters.
func (s *Store) LoadSnapshot() (*order.Snapshot, error) {
	snap := &order.Snapshot{}

	err := s.scan(prefixGrid, func(key, val []byte) error {
		var g order.GridConfig
		if err := json.Unmarshal(val, &g); err != nil {
			return err
		}
		snap.Grids = append(snap.Grids, g)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.scan(prefixOrder, func(key, val []byte) error {
		var rec orderRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		snap.Orders = append(snap.Orders, order.OrderRecord{Handle: rec.Handle, Order: rec.Order})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.scan(prefixStrategy, func(key, val []byte) error {
		var sr strategyRecord
		if err := json.Unmarshal(val, &sr); err != nil {
			return err
		}
		params, err := decodeParams(sr.Kind, sr.Params)
		if err != nil {
			return err
		}
		snap.Strategies = append(snap.Strategies, order.StrategyRecord{
			GridID: sr.GridID, IsAsk: sr.IsAsk, Ref: sr.Ref, Params: params,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	val, closer, err := s.db.Get(keyCounters)
	if err == pebble.ErrNotFound {
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get counters: %w", err)
	}
	defer closer.Close()
	if err := json.Unmarshal(val, &snap.Counters); err != nil {
		return nil, fmt.Errorf("%w: counters: %v", ErrCorruptRecord, err)
	}
	return snap, nil
}

func (s *Store) scan(prefix []byte, fn func(key, val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return fmt.Errorf("%w: key %x: %v", ErrCorruptRecord, iter.Key(), err)
		}
	}
	return iter.Error()
}

func decodeParams(kind strategy.Type, raw json.RawMessage) (strategy.Params, error) {
	switch kind {
	case strategy.TypeLinear:
		var p strategy.LinearParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case strategy.TypeGeometric:
		var p strategy.GeometricParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown strategy kind %q", kind)
	}
}
