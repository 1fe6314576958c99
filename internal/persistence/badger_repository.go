package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	"astock-strategy-bot-go/internal/models"

	"github.com/dgraph-io/badger/v3"
)

// badgerRepository is the BadgerDB implementation of the StateRepository.
// Values are stored as JSON under per-strategy keys.
type badgerRepository struct {
	db *badger.DB
}

// NewBadgerRepository creates a repository backed by a BadgerDB database at dbPath.
// An empty dbPath opens an in-memory database, which is what the tests use.
func NewBadgerRepository(dbPath string) (StateRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is noisy; errors still surface from DB operations.
	opts.Logger = nil
	if dbPath == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerRepository{db: db}, nil
}

func adapterStateKey(strategyID int) []byte {
	return []byte(fmt.Sprintf("adapter_state:%d", strategyID))
}

func tradesKey(strategyID int) []byte {
	return []byte(fmt.Sprintf("trades:%d", strategyID))
}

// SaveAdapterState atomically saves the full adapter snapshot of one strategy.
func (r *badgerRepository) SaveAdapterState(strategyID int, state *models.AdapterState) error {
	return r.set(adapterStateKey(strategyID), state)
}

// LoadAdapterState loads the adapter snapshot of one strategy.
// A missing key is not an error: it returns (nil, nil).
func (r *badgerRepository) LoadAdapterState(strategyID int) (*models.AdapterState, error) {
	var state models.AdapterState
	found, err := r.get(adapterStateKey(strategyID), &state)
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

// SaveTrades atomically saves the trade history of one strategy.
func (r *badgerRepository) SaveTrades(strategyID int, trades []models.Trade) error {
	return r.set(tradesKey(strategyID), trades)
}

// LoadTrades loads the trade history of one strategy.
func (r *badgerRepository) LoadTrades(strategyID int) ([]models.Trade, error) {
	var trades []models.Trade
	found, err := r.get(tradesKey(strategyID), &trades)
	if err != nil || !found {
		return nil, err
	}
	return trades, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}

func (r *badgerRepository) set(key []byte, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// get unmarshals the value at key into out.
// It reports whether the key was present.
func (r *badgerRepository) get(key []byte, out interface{}) (bool, error) {
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
