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

import "github.com/blinklabs-io/shihon/database/plugin/metadata/internal/gormstore"

// PostgresOptionFunc configures a Postgres store
type PostgresOptionFunc = func(*MetadataStorePostgres)

// Options shared with the other gorm backed stores
var (
	WithLogger         = gormstore.WithLogger[*MetadataStorePostgres]
	WithPromRegistry   = gormstore.WithPromRegistry[*MetadataStorePostgres]
	WithMaxConnections = gormstore.WithMaxConnections[*MetadataStorePostgres]
	WithHost           = gormstore.WithHost[*MetadataStorePostgres]
	WithPort           = gormstore.WithPort[*MetadataStorePostgres]
	WithUser           = gormstore.WithUser[*MetadataStorePostgres]
	WithPassword       = gormstore.WithPassword[*MetadataStorePostgres]
	WithDatabase       = gormstore.WithDatabase[*MetadataStorePostgres]
	WithSSLMode        = gormstore.WithSSLMode[*MetadataStorePostgres]
	WithTimeZone       = gormstore.WithTimeZone[*MetadataStorePostgres]
	WithDSN            = gormstore.WithDSN[*MetadataStorePostgres]
)
