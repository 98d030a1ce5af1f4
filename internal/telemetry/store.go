// Package telemetry is the durable side store for step history, command
// dedup and bot bindings, generalized from the teacher's internal/store
// (dual real-MySQL-or-in-memory Store, WithTx transaction helper).
package telemetry

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

type Store struct {
	DB         *sql.DB
	MemoryMode bool

	mu          sync.RWMutex
	steps       map[string][]StepRecord
	dedups      map[string]DedupRecord
	snapshots   map[string]Snapshot
	botBindings map[string][]BotBinding
}

func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

func NewMemoryStore() *Store {
	return &Store{
		MemoryMode:  true,
		steps:       make(map[string][]StepRecord),
		dedups:      make(map[string]DedupRecord),
		snapshots:   make(map[string]Snapshot),
		botBindings: make(map[string][]BotBinding),
	}
}

func ConnectMySQL(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	if s.MemoryMode {
		return fn(nil)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	tx = nil
	return nil
}

func (s *Store) Close() error {
	if s.MemoryMode {
		return nil
	}
	return s.DB.Close()
}

func dedupKey(gameID, commandID string) string { return gameID + "|" + commandID }
