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
	"fmt"

	"github.com/blinklabs-io/shihon/database/models"
	"github.com/blinklabs-io/shihon/database/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertByAddress inserts a row or replaces every column of the row with
// the same address
func upsertByAddress(db *gorm.DB, value any) error {
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		UpdateAll: true,
	}).Create(value)
	return result.Error
}

// Truncate removes every index row, used before rebuilding from blob records
func (s *Store) Truncate(txn types.Txn) error {
	db, err := s.resolveDB(txn)
	if err != nil {
		return err
	}
	for _, model := range models.MigrateModels {
		if result := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model); result.Error != nil {
			return fmt.Errorf("truncate %T: %w", model, result.Error)
		}
	}
	return nil
}

func (s *Store) SetContentToken(
	token *models.ContentToken,
	txn types.Txn,
) error {
	db, err := s.resolveDB(txn)
	if err != nil {
		return err
	}
	if err := upsertByAddress(db, token); err != nil {
		return fmt.Errorf("set content token: %w", err)
	}
	return nil
}

func (s *Store) GetContentTokensByOwner(
	owner []byte,
	txn types.Txn,
) ([]models.ContentToken, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.ContentToken
	result := db.Where("owner = ?", owner).Order("name").Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

func (s *Store) SetTanistry(
	tanistry *models.Tanistry,
	txn types.Txn,
) error {
	db, err := s.resolveDB(txn)
	if err != nil {
		return err
	}
	if err := upsertByAddress(db, tanistry); err != nil {
		return fmt.Errorf("set tanistry: %w", err)
	}
	return nil
}

func (s *Store) GetTanistries(
	txn types.Txn,
) ([]models.Tanistry, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.Tanistry
	if result := db.Order("id").Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

func (s *Store) SetCandidate(
	candidate *models.Candidate,
	txn types.Txn,
) error {
	db, err := s.resolveDB(txn)
	if err != nil {
		return err
	}
	if err := upsertByAddress(db, candidate); err != nil {
		return fmt.Errorf("set candidate: %w", err)
	}
	return nil
}

// GetCandidates returns the candidates of a ring in admission order
func (s *Store) GetCandidates(
	tanistry []byte,
	txn types.Txn,
) ([]models.Candidate, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.Candidate
	result := db.Where("tanistry = ?", tanistry).
		Order("sequence").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

func (s *Store) SetListing(
	listing *models.Listing,
	txn types.Txn,
) error {
	db, err := s.resolveDB(txn)
	if err != nil {
		return err
	}
	if err := upsertByAddress(db, listing); err != nil {
		return fmt.Errorf("set listing: %w", err)
	}
	return nil
}

func (s *Store) GetListings(
	tanistry []byte,
	openOnly bool,
	txn types.Txn,
) ([]models.Listing, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	query := db.Where("tanistry = ?", tanistry)
	if openOnly {
		query = query.Where("status = ?", models.ListingStatusOpen)
	}
	var ret []models.Listing
	if result := query.Order("id").Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

func (s *Store) SetChallengeVote(
	vote *models.ChallengeVote,
	txn types.Txn,
) error {
	db, err := s.resolveDB(txn)
	if err != nil {
		return err
	}
	if err := upsertByAddress(db, vote); err != nil {
		return fmt.Errorf("set challenge vote: %w", err)
	}
	return nil
}

// GetChallengeVotes returns the votes of one epoch ordered by record address
func (s *Store) GetChallengeVotes(
	tanistry []byte,
	epoch uint64,
	txn types.Txn,
) ([]models.ChallengeVote, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.ChallengeVote
	result := db.Where("tanistry = ? AND epoch = ?", tanistry, epoch).
		Order("address").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
