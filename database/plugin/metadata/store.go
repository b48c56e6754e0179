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

package metadata

import (
	"fmt"

	"github.com/blinklabs-io/shihon/database/models"
	"github.com/blinklabs-io/shihon/database/plugin"
	"github.com/blinklabs-io/shihon/database/types"
	"gorm.io/gorm"
)

// MetadataStore keeps the relational indexes derived from ledger records.
// A nil txn runs the operation outside of any transaction
type MetadataStore interface {
	plugin.Plugin

	// Database
	Close() error
	DB() *gorm.DB
	Transaction() types.Txn
	GetCommitTimestamp() (int64, error)
	SetCommitTimestamp(int64, types.Txn) error
	Truncate(types.Txn) error

	// Ledger indexes
	SetContentToken(*models.ContentToken, types.Txn) error
	GetContentTokensByOwner([]byte, types.Txn) ([]models.ContentToken, error)
	SetTanistry(*models.Tanistry, types.Txn) error
	GetTanistries(types.Txn) ([]models.Tanistry, error)
	SetCandidate(*models.Candidate, types.Txn) error
	GetCandidates([]byte, types.Txn) ([]models.Candidate, error)
	SetListing(*models.Listing, types.Txn) error
	GetListings([]byte, bool, types.Txn) ([]models.Listing, error)
	SetChallengeVote(*models.ChallengeVote, types.Txn) error
	GetChallengeVotes([]byte, uint64, types.Txn) ([]models.ChallengeVote, error)
}

// New returns the started metadata plugin selected by name
func New(pluginName string) (MetadataStore, error) {
	p, err := plugin.StartPlugin(plugin.PluginTypeMetadata, pluginName)
	if err != nil {
		return nil, err
	}
	metadataStore, ok := p.(MetadataStore)
	if !ok {
		return nil, fmt.Errorf(
			"plugin '%s' does not implement MetadataStore interface",
			pluginName,
		)
	}
	return metadataStore, nil
}
