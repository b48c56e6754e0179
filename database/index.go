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

package database

import (
	"github.com/blinklabs-io/shihon/database/models"
	"github.com/blinklabs-io/shihon/database/types"
)

func (t *Txn) metadataOrNil() types.Txn {
	if t == nil {
		return nil
	}
	return t.metadataTxn
}

func (d *Database) SetContentToken(token *models.ContentToken, txn *Txn) error {
	return d.metadata.SetContentToken(token, txn.metadataOrNil())
}

// GetContentTokensByOwner returns the indexed content tokens of an owner
func (d *Database) GetContentTokensByOwner(
	owner []byte,
	txn *Txn,
) ([]models.ContentToken, error) {
	return d.metadata.GetContentTokensByOwner(owner, txn.metadataOrNil())
}

func (d *Database) SetTanistry(ring *models.Tanistry, txn *Txn) error {
	return d.metadata.SetTanistry(ring, txn.metadataOrNil())
}

func (d *Database) GetTanistries(txn *Txn) ([]models.Tanistry, error) {
	return d.metadata.GetTanistries(txn.metadataOrNil())
}

func (d *Database) SetCandidate(candidate *models.Candidate, txn *Txn) error {
	return d.metadata.SetCandidate(candidate, txn.metadataOrNil())
}

// GetCandidates returns the candidates of a ring ordered by sequence
func (d *Database) GetCandidates(
	tanistry []byte,
	txn *Txn,
) ([]models.Candidate, error) {
	return d.metadata.GetCandidates(tanistry, txn.metadataOrNil())
}

func (d *Database) SetListing(listing *models.Listing, txn *Txn) error {
	return d.metadata.SetListing(listing, txn.metadataOrNil())
}

// GetListings returns the listings of a ring, optionally only the open ones
func (d *Database) GetListings(
	tanistry []byte,
	openOnly bool,
	txn *Txn,
) ([]models.Listing, error) {
	return d.metadata.GetListings(tanistry, openOnly, txn.metadataOrNil())
}

func (d *Database) SetChallengeVote(vote *models.ChallengeVote, txn *Txn) error {
	return d.metadata.SetChallengeVote(vote, txn.metadataOrNil())
}

// GetChallengeVotes returns the votes cast in one epoch of a ring
func (d *Database) GetChallengeVotes(
	tanistry []byte,
	epoch uint64,
	txn *Txn,
) ([]models.ChallengeVote, error) {
	return d.metadata.GetChallengeVotes(tanistry, epoch, txn.metadataOrNil())
}

// TruncateIndexes removes every indexed row, ahead of a reindex
func (d *Database) TruncateIndexes(txn *Txn) error {
	return d.metadata.Truncate(txn.metadataOrNil())
}
