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
	"github.com/blinklabs-io/shihon/event"
	"github.com/blinklabs-io/shihon/ledger/common"
)

const (
	TokenEventType       event.EventType = "ledger.token"
	EscrowEventType      event.EventType = "ledger.escrow"
	TanistryEventType    event.EventType = "ledger.tanistry"
	CandidateEventType   event.EventType = "ledger.candidate"
	RoundEventType       event.EventType = "ledger.round"
	MixEventType         event.EventType = "ledger.mix"
	SaleEventType        event.EventType = "ledger.sale"
	CrowningEventType    event.EventType = "ledger.crowning"
	VoteEventType        event.EventType = "ledger.vote"
	ChallengeEventType   event.EventType = "ledger.challenge"
	RefundEventType      event.EventType = "ledger.refund"
	LedgerErrorEventType event.EventType = "ledger.error"
)

// TokenEvent reports a content token state change
type TokenEvent struct {
	Token common.Address
	Owner common.Identity
	Name  string
	Stake uint64
	State TokenState
}

func newTokenEvent(addr common.Address, token *BcToken) TokenEvent {
	return TokenEvent{
		Token: addr,
		Owner: token.Owner,
		Name:  token.Name,
		Stake: token.Stake,
		State: token.State,
	}
}

// EscrowEvent reports an escrow status change
type EscrowEvent struct {
	Escrow      common.Address
	Kicker      common.Identity
	Coordinator common.Identity
	Amount      uint64
	Generation  uint64
	Status      EscrowStatus
}

func newEscrowEvent(addr common.Address, esc *KickerCoinOwnerRecord) EscrowEvent {
	return EscrowEvent{
		Escrow:      addr,
		Kicker:      esc.Kicker,
		Coordinator: esc.Coordinator,
		Amount:      esc.Amount,
		Status:      esc.Status,
		Generation:  esc.Generation,
	}
}

// TanistryEvent reports a ring state change
type TanistryEvent struct {
	Tanistry    common.Address
	Fingerprint common.Hash
	Round       uint64
	Total       uint64
	Candidates  int
	State       TokenState
}

func newTanistryEvent(addr common.Address, ring *Tanistry) TanistryEvent {
	return TanistryEvent{
		Tanistry:    addr,
		Fingerprint: ring.Fingerprint,
		Round:       ring.Round,
		Total:       ring.Total,
		Candidates:  len(ring.Candidates),
		State:       ring.State,
	}
}

// CandidateEvent reports an admission or a stake change
type CandidateEvent struct {
	Tanistry  common.Address
	Record    common.Address
	Candidate common.Identity
	Amount    uint64
	Sequence  uint32
}

// RoundEvent reports a newly opened round and its pairs
type RoundEvent struct {
	Tanistry common.Address
	Seed     common.Hash
	Pairs    []Pair
	Round    uint64
	OpenedAt int64
}

// MixEvent reports a shared link or its rating
type MixEvent struct {
	Tanistry common.Address
	Mix      common.Address
	Rater    common.Identity
	Buddy    common.Identity
	Round    uint64
	Rating   uint64
	Outcome  MixOutcome
}

// SaleEvent reports a listing state change
type SaleEvent struct {
	Tanistry common.Address
	Listing  common.Address
	Seller   common.Identity
	Buyer    common.Identity
	Amount   uint64
	Price    uint64
	Deadline int64
	Status   ListingStatus
}

func newSaleEvent(addr common.Address, listing *OutsideBuyerRecord) SaleEvent {
	return SaleEvent{
		Tanistry: listing.Tanistry,
		Listing:  addr,
		Seller:   listing.Seller,
		Buyer:    listing.Buyer,
		Amount:   listing.Amount,
		Price:    listing.Price,
		Deadline: listing.Deadline,
		Status:   listing.Status,
	}
}

// CrowningEvent reports a sealed ring
type CrowningEvent struct {
	Tanistry common.Address
	Crown    common.Identity
	Amount   uint64
	Round    uint64
}

// VoteEvent reports a cast challenge vote
type VoteEvent struct {
	Tanistry common.Address
	Vote     common.Address
	Voter    common.Identity
	Kind     VoteKind
	Weight   uint64
	Epoch    uint64
}

// ChallengeEvent reports the tally of a vote epoch
type ChallengeEvent struct {
	Tanistry   common.Address
	Target     common.Address
	Outcome    ChallengeOutcome
	Epoch      uint64
	PushWeight uint64
	PullWeight uint64
}

// RefundEvent reports stake or deposit returned from a sealed ring
type RefundEvent struct {
	Tanistry common.Address
	Claimant common.Identity
	Stake    uint64
	Deposit  uint64
}

// LedgerErrorEvent reports an instruction rejected by the ledger
type LedgerErrorEvent struct {
	Error  error
	Opcode Opcode
}

func newCandidateEvent(addr common.Address, rec *CandidateLimitRecord) CandidateEvent {
	return CandidateEvent{
		Tanistry:  rec.Tanistry,
		Record:    addr,
		Candidate: rec.Candidate,
		Amount:    rec.Amount,
		Sequence:  rec.Sequence,
	}
}
