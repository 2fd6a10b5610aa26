// Package storage is the pebble-backed persistence layer. Values are JSON
// under a prefixed key schema; multi-key mutations go through BatchWrite so
// one operation's writes land atomically.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/lendex-fi/lendex/pkg/app/core/book"
	"github.com/lendex-fi/lendex/pkg/app/core/ledger"
)

type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(128 << 20), // 128MB cache
		MemTableSize:             64 << 20,                   // 64MB memtable
		MaxConcurrentCompactions: func() int { return 3 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		LBaseMaxBytes:            64 << 20, // 64MB
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10, // 512KB
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveAccount persists an account
func (s *Store) SaveAccount(acc *ledger.Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	if err := s.db.Set(accountKey(acc.Address), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// LoadAccount loads an account. Returns nil if it doesn't exist.
func (s *Store) LoadAccount(addr common.Address) (*ledger.Account, error) {
	data, closer, err := s.db.Get(accountKey(addr))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	defer closer.Close()

	var acc ledger.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &acc, nil
}

// LoadAllAccounts scans every persisted account
func (s *Store) LoadAllAccounts() ([]*ledger.Account, error) {
	prefix := accountPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open account iterator: %w", err)
	}
	defer iter.Close()

	var accounts []*ledger.Account
	for iter.First(); iter.Valid(); iter.Next() {
		var acc ledger.Account
		if err := json.Unmarshal(iter.Value(), &acc); err != nil {
			continue // Skip invalid entries
		}
		accounts = append(accounts, &acc)
	}
	return accounts, nil
}

// SaveRetained persists the retained stable-asset counter
func (s *Store) SaveRetained(amount int64) error {
	data, err := json.Marshal(amount)
	if err != nil {
		return fmt.Errorf("failed to marshal retained balance: %w", err)
	}
	if err := s.db.Set([]byte(keyRetained), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save retained balance: %w", err)
	}
	return nil
}

// LoadRetained loads the retained counter. Returns 0 when never written.
func (s *Store) LoadRetained() (int64, error) {
	data, closer, err := s.db.Get([]byte(keyRetained))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get retained balance: %w", err)
	}
	defer closer.Close()

	var amount int64
	if err := json.Unmarshal(data, &amount); err != nil {
		return 0, fmt.Errorf("failed to unmarshal retained balance: %w", err)
	}
	return amount, nil
}

// SaveConfig persists the protocol config singleton
func (s *Store) SaveConfig(cfg *ledger.ProtocolConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := s.db.Set([]byte(keyConfig), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// LoadConfig loads the protocol config. Returns nil if never written.
func (s *Store) LoadConfig() (*ledger.ProtocolConfig, error) {
	data, closer, err := s.db.Get([]byte(keyConfig))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	defer closer.Close()

	var cfg ledger.ProtocolConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// SaveOrder persists a live order
func (s *Store) SaveOrder(o *book.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	if err := s.db.Set(orderKey(o.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// DeleteOrder removes a terminal order
func (s *Store) DeleteOrder(id uint64) error {
	if err := s.db.Delete(orderKey(id), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	return nil
}

// LoadLiveOrders scans every persisted order in id order
func (s *Store) LoadLiveOrders() ([]book.Order, error) {
	prefix := orderPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open order iterator: %w", err)
	}
	defer iter.Close()

	var orders []book.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o book.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			continue // Skip invalid entries
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// SaveTrade persists a fill to the trade history
func (s *Store) SaveTrade(f *book.Fill) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal trade: %w", err)
	}
	// NoSync for trades (history, not balance-bearing state)
	if err := s.db.Set(tradeKey(f.ExecutedAt, f.TradeID), data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// LoadRecentTrades loads the most recent N trades, newest first
func (s *Store) LoadRecentTrades(limit int) ([]book.Fill, error) {
	prefix := tradePrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open trade iterator: %w", err)
	}
	defer iter.Close()

	var trades []book.Fill
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var f book.Fill
		if err := json.Unmarshal(iter.Value(), &f); err != nil {
			continue // Skip invalid entries
		}
		trades = append(trades, f)
	}
	return trades, nil
}

// Batch collects writes that commit atomically or not at all.
type Batch interface {
	SaveAccount(acc *ledger.Account) error
	SaveOrder(o *book.Order) error
	DeleteOrder(id uint64) error
	SaveTrade(f *book.Fill) error
	SaveRetained(amount int64) error
	SaveConfig(cfg *ledger.ProtocolConfig) error
	Commit() error
	Close() error
}

// BatchWrite provides atomic batch writes for one operation's mutations
type BatchWrite struct {
	batch *pebble.Batch
}

// NewBatch creates a new batch writer
func (s *Store) NewBatch() Batch {
	return &BatchWrite{batch: s.db.NewBatch()}
}

// SaveAccount adds an account save to the batch
func (bw *BatchWrite) SaveAccount(acc *ledger.Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	return bw.batch.Set(accountKey(acc.Address), data, nil)
}

// SaveOrder adds an order save to the batch
func (bw *BatchWrite) SaveOrder(o *book.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return bw.batch.Set(orderKey(o.ID), data, nil)
}

// DeleteOrder adds an order deletion to the batch
func (bw *BatchWrite) DeleteOrder(id uint64) error {
	return bw.batch.Delete(orderKey(id), nil)
}

// SaveTrade adds a trade save to the batch
func (bw *BatchWrite) SaveTrade(f *book.Fill) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return bw.batch.Set(tradeKey(f.ExecutedAt, f.TradeID), data, nil)
}

// SaveRetained adds the retained counter to the batch
func (bw *BatchWrite) SaveRetained(amount int64) error {
	data, err := json.Marshal(amount)
	if err != nil {
		return err
	}
	return bw.batch.Set([]byte(keyRetained), data, nil)
}

// SaveConfig adds the config singleton to the batch
func (bw *BatchWrite) SaveConfig(cfg *ledger.ProtocolConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return bw.batch.Set([]byte(keyConfig), data, nil)
}

// Commit writes the batch atomically
func (bw *BatchWrite) Commit() error {
	return bw.batch.Commit(pebble.Sync)
}

// Close closes the batch without committing
func (bw *BatchWrite) Close() error {
	return bw.batch.Close()
}
