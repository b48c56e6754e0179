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

package mysql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/shihon/database/plugin/metadata/internal/gormstore"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// errUnknownDatabase is the server error number for a missing schema
const errUnknownDatabase = 1049

// MetadataStoreMysql stores metadata in MySQL
type MetadataStoreMysql struct {
	*gormstore.Store
	gormstore.Settings
	gormstore.Network
}

// NewWithOptions creates a new database with options
func NewWithOptions(opts ...MysqlOptionFunc) (*MetadataStoreMysql, error) {
	db := &MetadataStoreMysql{}
	for _, opt := range opts {
		opt(db)
	}
	// Set defaults after options are applied (no side effects)
	db.SetDefaults(gormstore.Network{
		Host:     "localhost",
		Port:     3306,
		User:     "root",
		Database: "shihon",
	})
	db.ApplyDefaults()
	// Note: Database initialization moved to Start()
	return db, nil
}

// connString returns the DSN to connect with and the database it names
func (d *MetadataStoreMysql) connString() (string, string) {
	if dsn := strings.TrimSpace(d.DSN); dsn != "" {
		if parsedDB, ok := parseMysqlDatabaseFromDSN(dsn); ok {
			return dsn, parsedDB
		}
		return dsn, d.Database
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = d.Host + ":" + strconv.FormatUint(uint64(d.Port), 10)
	cfg.DBName = d.Database
	cfg.ParseTime = true
	cfg.AllowNativePasswords = true
	if d.TimeZone != "" {
		loc, err := time.LoadLocation(d.TimeZone)
		if err != nil {
			loc = time.UTC
		}
		cfg.Loc = loc
	}
	if d.SSLMode != "" {
		cfg.TLSConfig = d.SSLMode
	}
	return cfg.FormatDSN(), d.Database
}

// RegisterMetrics exports connection pool statistics of the store
func (d *MetadataStoreMysql) RegisterMetrics(promRegistry prometheus.Registerer) error {
	d.PromRegistry = promRegistry
	if d.Store == nil {
		// Registered once the connection is opened
		return nil
	}
	return d.Store.RegisterMetrics(promRegistry)
}

// Start implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Start() error {
	dsn, database := d.connString()
	store, err := gormstore.Open(gormmysql.Open(dsn), true)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if !errors.As(err, &mysqlErr) || mysqlErr.Number != errUnknownDatabase {
			return err
		}
		if err := ensureDatabaseExists(dsn, database); err != nil {
			return err
		}
		if store, err = gormstore.Open(gormmysql.Open(dsn), true); err != nil {
			return err
		}
	}
	d.Logger.Info(
		"connected to mysql metadata store",
		"component", "database",
		"host", d.Host,
		"port", d.Port,
		"database", database,
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

// ensureDatabaseExists creates the database named by the DSN through a
// connection without a default schema
func ensureDatabaseExists(dsn string, dbName string) error {
	if dbName == "" {
		return errors.New("no database to create")
	}
	adminDsn, ok := stripDatabaseFromDSN(dsn)
	if !ok {
		return fmt.Errorf("cannot derive admin DSN to create database %s", dbName)
	}
	adminDb, err := gorm.Open(
		gormmysql.Open(adminDsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return err
	}
	sqlAdminDb, err := adminDb.DB()
	if err != nil {
		return err
	}
	defer sqlAdminDb.Close()
	return adminDb.Exec(
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", strings.ReplaceAll(dbName, "`", "``")),
	).Error
}

func parseMysqlDatabaseFromDSN(dsn string) (string, bool) {
	base, _, _ := strings.Cut(dsn, "?")
	slash := strings.LastIndex(base, "/")
	if slash < 0 || slash == len(base)-1 {
		return "", false
	}
	return base[slash+1:], true
}

func stripDatabaseFromDSN(dsn string) (string, bool) {
	base, params, hasParams := strings.Cut(dsn, "?")
	slash := strings.LastIndex(base, "/")
	if slash < 0 {
		return "", false
	}
	base = base[:slash+1]
	if !hasParams || params == "" {
		return base, true
	}
	return base + "?" + params, true
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Stop() error {
	return d.Close()
}

// Close gets the database handle from our MetadataStore and closes it
func (d *MetadataStoreMysql) Close() error {
	// Guard against nil DB handle (e.g., if Start() failed or was never called)
	if d.Store == nil {
		return nil
	}
	return d.Store.Close()
}
