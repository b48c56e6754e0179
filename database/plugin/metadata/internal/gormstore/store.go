// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gormstore implements the ledger indexes of the metadata store on
// top of any gorm dialect. The sqlite, postgres and mysql plugins only differ
// in how they open their connection
package gormstore

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blinklabs-io/shihon/database/models"
	"github.com/blinklabs-io/shihon/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

var ErrTxnFinished = errors.New("transaction already finished")

type Store struct {
	db *gorm.DB
}

// Open connects through a gorm dialector and enables query tracing
func Open(dialector gorm.Dialector, prepareStmt bool) (*Store, error) {
	db, err := gorm.Open(
		dialector,
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			PrepareStmt:            prepareStmt,
		},
	)
	if err != nil {
		return nil, err
	}
	// Configure tracing for GORM
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Migrate creates or updates every table used by the store
func (s *Store) Migrate(logger *slog.Logger) error {
	if err := s.db.AutoMigrate(&CommitTimestamp{}); err != nil {
		return err
	}
	for _, model := range models.MigrateModels {
		logger.Debug(
			fmt.Sprintf("creating table: %T", model),
			"component", "database",
		)
		if err := s.db.AutoMigrate(model); err != nil {
			return err
		}
	}
	return nil
}

// DB returns the underlying GORM database handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ConfigurePool sizes the connection pool of a networked database. A
// maxOpen of zero keeps the default of 100
func (s *Store) ConfigurePool(maxOpen int) error {
	sqlDb, err := s.db.DB()
	if err != nil {
		return err
	}
	if maxOpen <= 0 {
		maxOpen = 100
	}
	sqlDb.SetMaxIdleConns(min(10, maxOpen))
	sqlDb.SetMaxOpenConns(maxOpen)
	sqlDb.SetConnMaxLifetime(time.Hour)
	return nil
}

// RegisterMetrics exports connection pool statistics
func (s *Store) RegisterMetrics(promRegistry prometheus.Registerer) error {
	sqlDb, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := promRegistry.Register(
		collectors.NewDBStatsCollector(sqlDb, "shihon_metadata"),
	); err != nil {
		return fmt.Errorf("register metadata metrics: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *Store) Close() error {
	sqlDb, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return sqlDb.Close()
}

// txn wraps a gorm transaction and implements types.Txn
type txn struct {
	store    *Store
	db       *gorm.DB
	beginErr error
	finished bool
}

func (t *txn) Commit() error {
	if t.beginErr != nil {
		return t.beginErr
	}
	if t.finished {
		return nil
	}
	t.finished = true
	return t.db.Commit().Error
}

func (t *txn) Rollback() error {
	if t.beginErr != nil {
		return t.beginErr
	}
	if t.finished {
		return nil
	}
	t.finished = true
	return t.db.Rollback().Error
}

// Transaction begins a new metadata transaction. A failure to begin is
// reported by the first use of the transaction
func (s *Store) Transaction() types.Txn {
	db := s.db.Begin()
	if db.Error != nil {
		return &txn{store: s, beginErr: db.Error}
	}
	return &txn{store: s, db: db}
}

// resolveDB returns the gorm handle to run a query against. A nil txn uses
// the base handle
func (s *Store) resolveDB(t types.Txn) (*gorm.DB, error) {
	if t == nil {
		return s.db, nil
	}
	gTxn, ok := t.(*txn)
	if !ok {
		return nil, types.ErrTxnWrongType
	}
	if gTxn.store != s {
		return nil, errors.New("transaction from different store")
	}
	if gTxn.beginErr != nil {
		return nil, gTxn.beginErr
	}
	if gTxn.finished {
		return nil, ErrTxnFinished
	}
	return gTxn.db, nil
}
