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

import "github.com/blinklabs-io/shihon/database/plugin/metadata/internal/gormstore"

// MysqlOptionFunc configures a MySQL store
type MysqlOptionFunc = func(*MetadataStoreMysql)

// Options shared with the other gorm backed stores
var (
	WithLogger         = gormstore.WithLogger[*MetadataStoreMysql]
	WithPromRegistry   = gormstore.WithPromRegistry[*MetadataStoreMysql]
	WithMaxConnections = gormstore.WithMaxConnections[*MetadataStoreMysql]
	WithHost           = gormstore.WithHost[*MetadataStoreMysql]
	WithPort           = gormstore.WithPort[*MetadataStoreMysql]
	WithUser           = gormstore.WithUser[*MetadataStoreMysql]
	WithPassword       = gormstore.WithPassword[*MetadataStoreMysql]
	WithDatabase       = gormstore.WithDatabase[*MetadataStoreMysql]
	WithSSLMode        = gormstore.WithSSLMode[*MetadataStoreMysql]
	WithTimeZone       = gormstore.WithTimeZone[*MetadataStoreMysql]
	WithDSN            = gormstore.WithDSN[*MetadataStoreMysql]
)
