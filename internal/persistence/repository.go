package persistence

import "astock-strategy-bot-go/internal/models"

// StateRepository defines the interface for strategy state persistence.
// It abstracts the underlying storage mechanism (e.g., BadgerDB, in-memory)
// from the rest of the application.
type StateRepository interface {
	// SaveAdapterState atomically saves the full adapter snapshot of one strategy.
	SaveAdapterState(strategyID int, state *models.AdapterState) error

	// LoadAdapterState loads the adapter snapshot of one strategy.
	// If no snapshot is found, it returns (nil, nil).
	LoadAdapterState(strategyID int) (*models.AdapterState, error)

	// SaveTrades atomically saves the trade history of one strategy.
	SaveTrades(strategyID int, trades []models.Trade) error

	// LoadTrades loads the trade history of one strategy.
	// If no history is found, it returns (nil, nil).
	LoadTrades(strategyID int) ([]models.Trade, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
