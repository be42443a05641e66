package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
)

// Manager implements interfaces.StorageManager over one Badger connection.
type Manager struct {
	db *BadgerDB

	companies *CompanyStorage
	pages     *PageStorage
	entities  *EntityStorage
	sessions  *SessionStorage
	analyses  *AnalysisStorage
	tokens    *TokenStorage
	batches   *BatchStorage
	kv        *KVStorage
}

// NewManager opens the database and wires the per-entity stores.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	pages := NewPageStorage(db, logger)
	entities := NewEntityStorage(db, logger)
	sessions := NewSessionStorage(db, logger)
	analyses := NewAnalysisStorage(db, logger)
	tokens := NewTokenStorage(db, logger)

	return &Manager{
		db:        db,
		companies: NewCompanyStorage(db, logger, pages, entities, sessions, analyses, tokens),
		pages:     pages,
		entities:  entities,
		sessions:  sessions,
		analyses:  analyses,
		tokens:    tokens,
		batches:   NewBatchStorage(db, logger),
		kv:        NewKVStorage(db, logger),
	}, nil
}

// DB exposes the underlying connection for the queue manager, which shares
// the same Badger instance.
func (m *Manager) DB() *BadgerDB { return m.db }

func (m *Manager) CompanyStorage() interfaces.CompanyStorage       { return m.companies }
func (m *Manager) PageStorage() interfaces.PageStorage             { return m.pages }
func (m *Manager) EntityStorage() interfaces.EntityStorage         { return m.entities }
func (m *Manager) SessionStorage() interfaces.SessionStorage       { return m.sessions }
func (m *Manager) AnalysisStorage() interfaces.AnalysisStorage     { return m.analyses }
func (m *Manager) TokenUsageStorage() interfaces.TokenUsageStorage { return m.tokens }
func (m *Manager) BatchStorage() interfaces.BatchStorage           { return m.batches }
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage     { return m.kv }

// Close closes the database connection.
func (m *Manager) Close() error {
	return m.db.Close()
}
