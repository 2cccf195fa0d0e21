package store

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	logging "hedgegrid/logger"
)

// Store is the unified persistence handle. Every symbol-scoped write
// goes through it; nothing in internal/core or internal/scheduler reads
// it back to make a trading decision (spec §6).
type Store struct {
	db *gorm.DB
}

// Open opens a GORM connection, preferring Postgres when DATABASE_URL
// is set (teacher's dual-dialector pattern from store/store.go) and
// falling back to modernc.org/sqlite against dbPath otherwise.
func Open(dbPath string) (*Store, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	var (
		db  *gorm.DB
		err error
	)
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		logging.Infof("store: connected to postgres")
	} else {
		db, err = gorm.Open(sqlite.Open(dbPath), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
		}
		logging.Infof("store: connected to sqlite at %s", dbPath)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&SymbolStateModel{},
		&GridPlanModel{},
		&TPStateModel{},
		&AutoReduceEventModel{},
		&EquitySnapshotModel{},
	)
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveSymbolState upserts the latest snapshot for one symbol.
func (s *Store) SaveSymbolState(m *SymbolStateModel) error {
	return s.db.Save(m).Error
}

// SymbolState reads back the last-saved snapshot, or (nil, nil) if none
// exists yet.
func (s *Store) SymbolState(symbol string) (*SymbolStateModel, error) {
	var m SymbolStateModel
	err := s.db.First(&m, "symbol = ?", symbol).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// AllSymbolStates returns every symbol's last snapshot, ordered by
// symbol.
func (s *Store) AllSymbolStates() ([]SymbolStateModel, error) {
	var out []SymbolStateModel
	err := s.db.Order("symbol").Find(&out).Error
	return out, err
}

// RecordGridPlan appends one planner recomputation to the audit trail.
func (s *Store) RecordGridPlan(symbol, side string, levels, amounts []float64) error {
	leveljson, err := json.Marshal(levels)
	if err != nil {
		return err
	}
	amtjson, err := json.Marshal(amounts)
	if err != nil {
		return err
	}
	return s.db.Create(&GridPlanModel{
		Symbol:  symbol,
		Side:    side,
		Levels:  string(leveljson),
		Amounts: string(amtjson),
	}).Error
}

// LatestGridPlans returns the most recently recorded plans for a symbol,
// of either side, newest first, bounded by limit.
func (s *Store) LatestGridPlans(symbol string, limit int) ([]GridPlanModel, error) {
	var out []GridPlanModel
	err := s.db.Where("symbol = ?", symbol).Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// SaveTPState upserts the single tracked TP order for one side.
func (s *Store) SaveTPState(m *TPStateModel) error {
	return s.db.Save(m).Error
}

// ClearTPState removes the tracked TP order once the position is flat.
func (s *Store) ClearTPState(symbol, side string) error {
	return s.db.Delete(&TPStateModel{}, "symbol = ? AND side = ?", symbol, side).Error
}

// RecordAutoReduceEvent appends one drawdown-protection trigger to the
// event history (surfaced by `GET /events`).
func (s *Store) RecordAutoReduceEvent(m *AutoReduceEventModel) error {
	return s.db.Create(m).Error
}

// RecentAutoReduceEvents returns the newest events, bounded by limit,
// across every symbol.
func (s *Store) RecentAutoReduceEvents(limit int) ([]AutoReduceEventModel, error) {
	var out []AutoReduceEventModel
	err := s.db.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// SaveEquitySnapshot appends one equity curve sample.
func (s *Store) SaveEquitySnapshot(m *EquitySnapshotModel) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return s.db.Create(m).Error
}

// EquityHistory returns equity samples in ascending time order, the
// shape a return-curve chart wants.
func (s *Store) EquityHistory(limit int) ([]EquitySnapshotModel, error) {
	var out []EquitySnapshotModel
	err := s.db.Order("timestamp DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
