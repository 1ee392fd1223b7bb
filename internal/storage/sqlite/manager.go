package sqlite

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/interfaces"
)

// Manager implements the StorageManager interface
type Manager struct {
	db         *SQLiteDB
	indicators interfaces.IndicatorStorage
	events     interfaces.EventStorage
	calendar   interfaces.CalendarStorage
	signals    interfaces.SignalStorage
	themes     interfaces.ThemeStorage
	watchlists interfaces.WatchlistStorage
	runs       interfaces.RunStorage
	llmCalls   interfaces.LLMCallStorage
	logger     arbor.ILogger
}

// NewManager creates a new SQLite storage manager
func NewManager(logger arbor.ILogger, config *common.SQLiteConfig) (interfaces.StorageManager, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:         db,
		indicators: NewIndicatorStorage(db, logger),
		events:     NewEventStorage(db, logger),
		calendar:   NewCalendarStorage(db, logger),
		signals:    NewSignalStorage(db, logger),
		themes:     NewThemeStorage(db, logger),
		watchlists: NewWatchlistStorage(db, logger),
		runs:       NewRunStorage(db, logger),
		llmCalls:   NewLLMCallStorage(db, logger),
		logger:     logger,
	}, nil
}

func (m *Manager) Indicators() interfaces.IndicatorStorage { return m.indicators }

func (m *Manager) Events() interfaces.EventStorage { return m.events }

func (m *Manager) Calendar() interfaces.CalendarStorage { return m.calendar }

func (m *Manager) Signals() interfaces.SignalStorage { return m.signals }

func (m *Manager) Themes() interfaces.ThemeStorage { return m.themes }

func (m *Manager) Watchlists() interfaces.WatchlistStorage { return m.watchlists }

func (m *Manager) Runs() interfaces.RunStorage { return m.runs }

func (m *Manager) LLMCalls() interfaces.LLMCallStorage { return m.llmCalls }

// Ping verifies the database connection
func (m *Manager) Ping(ctx context.Context) error {
	return m.db.Ping(ctx)
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
