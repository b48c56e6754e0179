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

package ledger

import (
	"github.com/blinklabs-io/shihon/database"
	"github.com/blinklabs-io/shihon/database/models"
	"github.com/blinklabs-io/shihon/database/types"
	"github.com/blinklabs-io/shihon/ledger/common"
)

// indexRecord refreshes the metadata index row derived from a record.
// Records without an index are ignored
func indexRecord(
	db *database.Database,
	addr common.Address,
	rec Record,
	txn *database.Txn,
) error {
	switch r := rec.(type) {
	case *BcToken:
		return db.SetContentToken(
			&models.ContentToken{
				Address: addr.Bytes(),
				Owner:   r.Owner.Bytes(),
				Name:    r.Name,
				Stake:   types.Uint64(r.Stake),
				State:   uint8(r.State),
			},
			txn,
		)
	case *Tanistry:
		return db.SetTanistry(
			&models.Tanistry{
				Address:     addr.Bytes(),
				Escrow:      r.Escrow.Bytes(),
				Kicker:      r.Kicker.Bytes(),
				Coordinator: r.Coordinator.Bytes(),
				Crown:       optionalBytes(r.Crown.IsZero(), r.Crown.Bytes()),
				Predecessor: optionalBytes(r.Predecessor.IsZero(), r.Predecessor.Bytes()),
				Successor:   optionalBytes(r.Successor.IsZero(), r.Successor.Bytes()),
				Total:       types.Uint64(r.Total),
				Cap:         types.Uint64(r.Cap),
				Round:       r.Round,
				VoteEpoch:   r.VoteEpoch,
				State:       uint8(r.State),
			},
			txn,
		)
	case *CandidateLimitRecord:
		return db.SetCandidate(
			&models.Candidate{
				Address:     addr.Bytes(),
				Tanistry:    r.Tanistry.Bytes(),
				Candidate:   r.Candidate.Bytes(),
				Amount:      types.Uint64(r.Amount),
				RatingTotal: types.Uint64(r.RatingTotal),
				Sequence:    r.Sequence,
				Refunded:    r.Refunded,
			},
			txn,
		)
	case *OutsideBuyerRecord:
		return db.SetListing(
			&models.Listing{
				Address:  addr.Bytes(),
				Tanistry: r.Tanistry.Bytes(),
				Seller:   r.Seller.Bytes(),
				Buyer:    optionalBytes(r.Buyer.IsZero(), r.Buyer.Bytes()),
				Amount:   types.Uint64(r.Amount),
				Deadline: r.Deadline,
				Status:   uint8(r.Status),
			},
			txn,
		)
	case *CCVoteRecord:
		return db.SetChallengeVote(
			&models.ChallengeVote{
				Address:  addr.Bytes(),
				Tanistry: r.Tanistry.Bytes(),
				Voter:    r.Voter.Bytes(),
				Target:   optionalBytes(r.Target.IsZero(), r.Target.Bytes()),
				Weight:   types.Uint64(r.Weight),
				Epoch:    r.Epoch,
				Kind:     uint8(r.Kind),
			},
			txn,
		)
	default:
		return nil
	}
}

func optionalBytes(empty bool, val []byte) []byte {
	if empty {
		return nil
	}
	return val
}
