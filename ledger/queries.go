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
	"errors"
	"fmt"

	"github.com/blinklabs-io/shihon/database"
	"github.com/blinklabs-io/shihon/ledger/common"
)

// getRecord loads a committed record by address
func (ls *LedgerState) getRecord(
	addr common.Address,
	rec Record,
	txn *database.Txn,
) error {
	data, err := ls.db.GetRecord(addr[:], txn)
	if err != nil {
		if errors.Is(err, database.ErrRecordNotFound) {
			return fmt.Errorf(
				"%w: %s at %s",
				ErrRecordNotFound,
				rec.RecordType(),
				addr.String(),
			)
		}
		return err
	}
	return DecodeRecordInto(data, rec)
}

func queryRecord[T any, P interface {
	*T
	Record
}](ls *LedgerState, addr common.Address) (*T, error) {
	ls.RLock()
	defer ls.RUnlock()
	var ret T
	if err := ls.getRecord(addr, P(&ret), nil); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (ls *LedgerState) ContentToken(name string) (*BcToken, error) {
	return queryRecord[BcToken](ls, common.BcTokenAddress(name))
}

// ContentTokensByOwner returns the tokens of an owner ordered by name
func (ls *LedgerState) ContentTokensByOwner(owner common.Identity) ([]BcToken, error) {
	ls.RLock()
	defer ls.RUnlock()
	txn := ls.db.Transaction(false)
	defer txn.Release()
	rows, err := ls.db.GetContentTokensByOwner(owner.Bytes(), txn)
	if err != nil {
		return nil, err
	}
	ret := make([]BcToken, 0, len(rows))
	for _, row := range rows {
		var token BcToken
		if err := ls.getIndexedRecord(row.Address, &token, txn); err != nil {
			return nil, err
		}
		ret = append(ret, token)
	}
	return ret, nil
}

func (ls *LedgerState) Escrow(kicker, coordinator common.Identity) (*KickerCoinOwnerRecord, error) {
	return queryRecord[KickerCoinOwnerRecord](ls, common.EscrowAddress(kicker, coordinator))
}

func (ls *LedgerState) Tanistry(addr common.Address) (*Tanistry, error) {
	return queryRecord[Tanistry](ls, addr)
}

// Tanistries returns the address of every ring in creation order
func (ls *LedgerState) Tanistries() ([]common.Address, error) {
	ls.RLock()
	defer ls.RUnlock()
	rows, err := ls.db.GetTanistries(nil)
	if err != nil {
		return nil, err
	}
	ret := make([]common.Address, 0, len(rows))
	for _, row := range rows {
		addr, err := common.NewAddress(row.Address)
		if err != nil {
			return nil, err
		}
		ret = append(ret, addr)
	}
	return ret, nil
}

// Candidates returns the candidate records of a ring in admission order
func (ls *LedgerState) Candidates(ring common.Address) ([]CandidateLimitRecord, error) {
	ls.RLock()
	defer ls.RUnlock()
	txn := ls.db.Transaction(false)
	defer txn.Release()
	return ls.candidates(ring, txn)
}

func (ls *LedgerState) candidates(
	ring common.Address,
	txn *database.Txn,
) ([]CandidateLimitRecord, error) {
	rows, err := ls.db.GetCandidates(ring.Bytes(), txn)
	if err != nil {
		return nil, err
	}
	ret := make([]CandidateLimitRecord, 0, len(rows))
	for _, row := range rows {
		var rec CandidateLimitRecord
		if err := ls.getIndexedRecord(row.Address, &rec, txn); err != nil {
			return nil, err
		}
		ret = append(ret, rec)
	}
	return ret, nil
}

func (ls *LedgerState) CandidateRecord(
	ring common.Address,
	candidate common.Identity,
) (*CandidateLimitRecord, error) {
	return queryRecord[CandidateLimitRecord](ls, common.CandidateAddress(ring, candidate))
}

func (ls *LedgerState) MixRecord(
	ring common.Address,
	round uint64,
	rater common.Identity,
) (*MixContentRecord, error) {
	return queryRecord[MixContentRecord](ls, common.MixAddress(ring, round, rater))
}

func (ls *LedgerState) RateRecord(mix common.Address) (*RateOtherRecord, error) {
	return queryRecord[RateOtherRecord](ls, common.RateAddress(mix))
}

func (ls *LedgerState) Listing(
	ring common.Address,
	seller common.Identity,
) (*OutsideBuyerRecord, error) {
	return queryRecord[OutsideBuyerRecord](ls, common.SaleAddress(ring, seller))
}

// Listings returns the listings of a ring, optionally only the open ones
func (ls *LedgerState) Listings(
	ring common.Address,
	openOnly bool,
) ([]OutsideBuyerRecord, error) {
	ls.RLock()
	defer ls.RUnlock()
	txn := ls.db.Transaction(false)
	defer txn.Release()
	rows, err := ls.db.GetListings(ring.Bytes(), openOnly, txn)
	if err != nil {
		return nil, err
	}
	ret := make([]OutsideBuyerRecord, 0, len(rows))
	for _, row := range rows {
		var listing OutsideBuyerRecord
		if err := ls.getIndexedRecord(row.Address, &listing, txn); err != nil {
			return nil, err
		}
		ret = append(ret, listing)
	}
	return ret, nil
}

func (ls *LedgerState) Vote(
	ring common.Address,
	epoch uint64,
	voter common.Identity,
) (*CCVoteRecord, error) {
	return queryRecord[CCVoteRecord](ls, common.VoteAddress(ring, epoch, voter))
}

// Votes returns the votes cast in one epoch of a ring
func (ls *LedgerState) Votes(ring common.Address, epoch uint64) ([]CCVoteRecord, error) {
	ls.RLock()
	defer ls.RUnlock()
	txn := ls.db.Transaction(false)
	defer txn.Release()
	rows, err := ls.db.GetChallengeVotes(ring.Bytes(), epoch, txn)
	if err != nil {
		return nil, err
	}
	ret := make([]CCVoteRecord, 0, len(rows))
	for _, row := range rows {
		var vote CCVoteRecord
		if err := ls.getIndexedRecord(row.Address, &vote, txn); err != nil {
			return nil, err
		}
		ret = append(ret, vote)
	}
	return ret, nil
}

// Balance returns the custody balance of a holding
func (ls *LedgerState) Balance(holding common.Address) (uint64, error) {
	ls.RLock()
	defer ls.RUnlock()
	return ls.custody.Balance(holding, nil)
}

// WalletBalance returns the balance a participant holds in a mint
func (ls *LedgerState) WalletBalance(id common.Identity, mint common.Address) (uint64, error) {
	return ls.Balance(ls.custody.Hold(common.IdentityAddress(id), mint))
}

// VerifyHoldings checks that the stakes recorded for the candidates of a
// ring add up to both the ring total and the balance of the ring holding
func (ls *LedgerState) VerifyHoldings(ring common.Address) error {
	ls.RLock()
	defer ls.RUnlock()
	txn := ls.db.Transaction(false)
	defer txn.Release()
	var tanistry Tanistry
	if err := ls.getRecord(ring, &tanistry, txn); err != nil {
		return err
	}
	candidates, err := ls.candidates(ring, txn)
	if err != nil {
		return err
	}
	var sum uint64
	for _, rec := range candidates {
		if sum, err = addAmount(sum, rec.Amount, "candidate stakes"); err != nil {
			return err
		}
	}
	balance, err := ls.custody.Balance(ls.custody.Hold(ring, tanistry.Mint), txn)
	if err != nil {
		return err
	}
	if sum != balance || sum != tanistry.Total {
		return fmt.Errorf(
			"%w: candidates %d, ring total %d, holding %d",
			ErrHoldingMismatch,
			sum,
			tanistry.Total,
			balance,
		)
	}
	return nil
}

func (ls *LedgerState) getIndexedRecord(
	addrBytes []byte,
	rec Record,
	txn *database.Txn,
) error {
	addr, err := common.NewAddress(addrBytes)
	if err != nil {
		return err
	}
	return ls.getRecord(addr, rec, txn)
}
