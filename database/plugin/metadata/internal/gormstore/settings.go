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

package gormstore

import (
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Settings holds the configuration shared by every gorm backed store.
// Backends embed it and expose the generic options below
type Settings struct {
	Logger         *slog.Logger
	PromRegistry   prometheus.Registerer
	MaxConnections int
}

type configurable interface {
	settings() *Settings
}

func (s *Settings) settings() *Settings {
	return s
}

// WithLogger specifies the logger object to use for logging messages
func WithLogger[T configurable](logger *slog.Logger) func(T) {
	return func(store T) {
		store.settings().Logger = logger
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry[T configurable](registry prometheus.Registerer) func(T) {
	return func(store T) {
		store.settings().PromRegistry = registry
	}
}

// WithMaxConnections caps the connection pool. Zero keeps the default
func WithMaxConnections[T configurable](maxConnections int) func(T) {
	return func(store T) {
		store.settings().MaxConnections = maxConnections
	}
}

// ApplyDefaults fills in what the options left unset. A discarding logger
// saves guards around every log call
func (s *Settings) ApplyDefaults() {
	if s.Logger == nil {
		s.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
}

// SetLogger replaces the logger used by the store
func (s *Settings) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.Logger = logger
	}
}

// Network holds the connection settings of a database server. A DSN takes
// precedence over the individual fields
type Network struct {
	Host     string
	User     string
	Password string
	Database string
	SSLMode  string
	TimeZone string
	DSN      string
	Port     uint
}

type networked interface {
	network() *Network
}

func (n *Network) network() *Network {
	return n
}

// SetDefaults fills every empty field from the server defaults
func (n *Network) SetDefaults(defaults Network) {
	fill := func(field *string, value string) {
		if *field == "" {
			*field = value
		}
	}
	fill(&n.Host, defaults.Host)
	fill(&n.User, defaults.User)
	fill(&n.Database, defaults.Database)
	fill(&n.SSLMode, defaults.SSLMode)
	fill(&n.TimeZone, defaults.TimeZone)
	if n.Port == 0 {
		n.Port = defaults.Port
	}
}

func WithHost[T networked](host string) func(T) {
	return func(store T) {
		store.network().Host = host
	}
}

func WithPort[T networked](port uint) func(T) {
	return func(store T) {
		store.network().Port = port
	}
}

func WithUser[T networked](user string) func(T) {
	return func(store T) {
		store.network().User = user
	}
}

func WithPassword[T networked](password string) func(T) {
	return func(store T) {
		store.network().Password = password
	}
}

func WithDatabase[T networked](database string) func(T) {
	return func(store T) {
		store.network().Database = database
	}
}

// WithSSLMode sets the TLS mode in the dialect of the server
func WithSSLMode[T networked](sslMode string) func(T) {
	return func(store T) {
		store.network().SSLMode = sslMode
	}
}

func WithTimeZone[T networked](timeZone string) func(T) {
	return func(store T) {
		store.network().TimeZone = timeZone
	}
}

// WithDSN sets a full connection string
func WithDSN[T networked](dsn string) func(T) {
	return func(store T) {
		store.network().DSN = dsn
	}
}
