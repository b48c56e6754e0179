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

package postgres

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/blinklabs-io/shihon/database/plugin/metadata/internal/gormstore"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
)

// MetadataStorePostgres stores metadata in Postgres.
type MetadataStorePostgres struct {
	*gormstore.Store
	gormstore.Settings
	gormstore.Network
}

// New creates a new database
func New(
	host string,
	port uint,
	user string,
	password string,
	database string,
	sslMode string,
	timeZone string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*MetadataStorePostgres, error) {
	return NewWithOptions(
		WithHost(host),
		WithPort(port),
		WithUser(user),
		WithPassword(password),
		WithDatabase(database),
		WithSSLMode(sslMode),
		WithTimeZone(timeZone),
		WithLogger(logger),
		WithPromRegistry(promRegistry),
	)
}

// NewWithOptions creates a new database with options
func NewWithOptions(opts ...PostgresOptionFunc) (*MetadataStorePostgres, error) {
	db := &MetadataStorePostgres{}

	// Apply options
	for _, opt := range opts {
		opt(db)
	}

	// Set defaults after options are applied (no side effects)
	db.SetDefaults(gormstore.Network{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Database: "postgres",
		SSLMode:  "disable",
		TimeZone: "UTC",
	})
	db.ApplyDefaults()

	// Note: Database initialization moved to Start()
	return db, nil
}

// connString returns the configured DSN or builds one from the individual options
func (d *MetadataStorePostgres) connString() string {
	if dsn := strings.TrimSpace(d.DSN); dsn != "" {
		return dsn
	}
	parts := []string{
		"host=" + d.Host,
		"user=" + d.User,
		"password=" + d.Password,
		"dbname=" + d.Database,
		"port=" + strconv.FormatUint(uint64(d.Port), 10),
		"sslmode=" + d.SSLMode,
	}
	if d.TimeZone != "" {
		parts = append(parts, "TimeZone="+d.TimeZone)
	}
	return strings.Join(parts, " ")
}

// RegisterMetrics exports connection pool statistics of the store
func (d *MetadataStorePostgres) RegisterMetrics(promRegistry prometheus.Registerer) error {
	d.PromRegistry = promRegistry
	if d.Store == nil {
		// Registered once the connection is opened
		return nil
	}
	return d.Store.RegisterMetrics(promRegistry)
}

// Start implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Start() error {
	store, err := gormstore.Open(postgres.Open(d.connString()), true)
	if err != nil {
		return err
	}
	d.Logger.Info(
		"connected to postgres metadata store",
		"component", "database",
		"host", d.Host,
		"port", d.Port,
		"database", d.Database,
	)
	d.Store = store
	if err := d.ConfigurePool(d.MaxConnections); err != nil {
		return err
	}

	if d.PromRegistry != nil {
		if err := d.RegisterMetrics(d.PromRegistry); err != nil {
			return err
		}
	}
	// Create table schemas
	return d.Migrate(d.Logger)
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Stop() error {
	return d.Close()
}

// Close gets the database handle from our MetadataStore and closes it
func (d *MetadataStorePostgres) Close() error {
	// Guard against nil DB handle (e.g., if Start() failed or was never called)
	if d.Store == nil {
		return nil
	}
	return d.Store.Close()
}
