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
	"fmt"
	"slices"
	"strings"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/shihon/ledger/common"
)

type RecordType uint8

const (
	RecordTypeBcToken RecordType = iota + 1
	RecordTypeEscrow
	RecordTypeCandidateLimit
	RecordTypeTanistry
	RecordTypeMixContent
	RecordTypeRateOther
	RecordTypeOutsideBuyer
	RecordTypeCCVote
)

func (t RecordType) String() string {
	switch t {
	case RecordTypeBcToken:
		return "BcToken"
	case RecordTypeEscrow:
		return "KickerCoinOwnerRecord"
	case RecordTypeCandidateLimit:
		return "CandidateLimitRecord"
	case RecordTypeTanistry:
		return "Tanistry"
	case RecordTypeMixContent:
		return "MixContentRecord"
	case RecordTypeRateOther:
		return "RateOtherRecord"
	case RecordTypeOutsideBuyer:
		return "OutsideBuyerRecord"
	case RecordTypeCCVote:
		return "CCVoteRecord"
	default:
		return "Unknown"
	}
}

// TokenState is the lifecycle state of a content token. Rings use the same
// states from CandidateEnabled onward
type TokenState uint8

const (
	TokenStateDraft TokenState = iota
	TokenStatePrivate
	TokenStatePublic
	TokenStateCandidateEnabled
	TokenStateTanistrySet
	TokenStateVoteEnabled
	TokenStateRefundable
	TokenStateCancelled
)

func (s TokenState) String() string {
	switch s {
	case TokenStateDraft:
		return "Draft"
	case TokenStatePrivate:
		return "Private"
	case TokenStatePublic:
		return "Public"
	case TokenStateCandidateEnabled:
		return "CandidateEnabled"
	case TokenStateTanistrySet:
		return "TanistrySet"
	case TokenStateVoteEnabled:
		return "VoteEnabled"
	case TokenStateRefundable:
		return "Refundable"
	case TokenStateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// canAdvance reports whether moving to next keeps the state moving forward
func (s TokenState) canAdvance(next TokenState) bool {
	if s == TokenStateCancelled || s == TokenStateRefundable {
		return false
	}
	if next == TokenStateCancelled {
		return true
	}
	return next > s
}

type EscrowStatus uint8

const (
	EscrowStatusPending EscrowStatus = iota
	EscrowStatusAccepted
	EscrowStatusDenied
	EscrowStatusSettled
	EscrowStatusRefunded
)

func (s EscrowStatus) String() string {
	switch s {
	case EscrowStatusPending:
		return "Pending"
	case EscrowStatusAccepted:
		return "Accepted"
	case EscrowStatusDenied:
		return "Denied"
	case EscrowStatusSettled:
		return "Settled"
	case EscrowStatusRefunded:
		return "Refunded"
	default:
		return "Unknown"
	}
}

type MixOutcome uint8

const (
	MixOutcomeUnresolved MixOutcome = iota
	MixOutcomeSucceeded
	MixOutcomeDefeated
)

func (o MixOutcome) String() string {
	switch o {
	case MixOutcomeUnresolved:
		return "Unresolved"
	case MixOutcomeSucceeded:
		return "Succeeded"
	case MixOutcomeDefeated:
		return "Defeated"
	default:
		return "Unknown"
	}
}

type ListingStatus uint8

const (
	ListingStatusOpen ListingStatus = iota
	ListingStatusFilled
	ListingStatusExpired
)

func (s ListingStatus) String() string {
	switch s {
	case ListingStatusOpen:
		return "Open"
	case ListingStatusFilled:
		return "Filled"
	case ListingStatusExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

type VoteKind uint8

const (
	VoteKindPull VoteKind = iota
	VoteKindPush
)

func (k VoteKind) String() string {
	switch k {
	case VoteKindPull:
		return "Pull"
	case VoteKindPush:
		return "Push"
	default:
		return "Unknown"
	}
}

// UnmarshalText accepts the vote kind names used in instruction files
func (k *VoteKind) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "pull":
		*k = VoteKindPull
	case "push":
		*k = VoteKindPush
	default:
		return fmt.Errorf("unknown vote kind: %s", text)
	}
	return nil
}

type ChallengeOutcome uint8

const (
	ChallengeOutcomeNone ChallengeOutcome = iota
	ChallengeOutcomeStay
	ChallengeOutcomeRedirect
)

func (o ChallengeOutcome) String() string {
	switch o {
	case ChallengeOutcomeNone:
		return "None"
	case ChallengeOutcomeStay:
		return "Stay"
	case ChallengeOutcomeRedirect:
		return "Redirect"
	default:
		return "Unknown"
	}
}

// Record is a ledger entity stored at a derived address
type Record interface {
	RecordType() RecordType
	typeTag() *RecordType
}

// BcToken wraps a piece of content and the stake deposited behind it
type BcToken struct {
	cbor.StructAsArray
	Type        RecordType
	Owner       common.Identity
	Fingerprint common.Hash
	Stake       uint64
	Mint        common.Address
	State       TokenState
	Authority   common.Identity
	Name        string
	Uri         string
}

func (r *BcToken) RecordType() RecordType { return RecordTypeBcToken }
func (r *BcToken) typeTag() *RecordType   { return &r.Type }

// authorized reports whether id may act on behalf of the token
func (r *BcToken) authorized(id common.Identity) bool {
	if id == r.Owner {
		return true
	}
	return !r.Authority.IsZero() && id == r.Authority
}

// KickerCoinOwnerRecord escrows KickerCoin from a kicker toward a coordinator
type KickerCoinOwnerRecord struct {
	cbor.StructAsArray
	Type        RecordType
	Kicker      common.Identity
	Coordinator common.Identity
	Amount      uint64
	KickedOff   bool
	Status      EscrowStatus
	KickerToken common.Address
	Mint        common.Address
	Generation  uint64
	CreatedAt   int64
	ExpiresAt   int64
	Tanistry    common.Address
	Predecessor common.Address
	Message     string
}

func (r *KickerCoinOwnerRecord) RecordType() RecordType { return RecordTypeEscrow }
func (r *KickerCoinOwnerRecord) typeTag() *RecordType   { return &r.Type }

// live reports whether the record still blocks a new kick for the same pair.
// An accepted escrow stays live until crowning settles its ring
func (r *KickerCoinOwnerRecord) live(now int64) bool {
	switch r.Status {
	case EscrowStatusPending:
		return now < r.ExpiresAt
	case EscrowStatusAccepted:
		return true
	default:
		return false
	}
}

// CandidateLimitRecord tracks the stake of one admitted candidate
type CandidateLimitRecord struct {
	cbor.StructAsArray
	Type        RecordType
	Tanistry    common.Address
	Candidate   common.Identity
	Amount      uint64
	Sequence    uint32
	Token       common.Address
	RatingTotal uint64
	Refunded    bool
	JoinedAt    int64
}

func (r *CandidateLimitRecord) RecordType() RecordType { return RecordTypeCandidateLimit }
func (r *CandidateLimitRecord) typeTag() *RecordType   { return &r.Type }

// Pair is one rater/buddy assignment of a round. The orientation is fixed
// when the pair mixes
type Pair struct {
	cbor.StructAsArray
	Rater    common.Identity
	Buddy    common.Identity
	Mixed    bool
	Resolved bool
}

func (p Pair) has(a, b common.Identity) bool {
	return (p.Rater == a && p.Buddy == b) || (p.Rater == b && p.Buddy == a)
}

// Tanistry is the ring formed by an accepted escrow. Candidates lists the
// admitted candidates in admission order; their CandidateLimitRecords live
// at CandidateAddress(ring, candidate)
type Tanistry struct {
	cbor.StructAsArray
	Type          RecordType
	Kicker        common.Identity
	Coordinator   common.Identity
	Candidates    []common.Identity
	Round         uint64
	Fingerprint   common.Hash
	Predecessor   common.Address
	Successor     common.Address
	State         TokenState
	Escrow        common.Address
	KickerToken   common.Address
	Mint          common.Address
	Cap           uint64
	Total         uint64
	Threshold     uint64
	Generation    uint64
	CreatedAt     int64
	RoundOpenedAt int64
	Pairs         []Pair
	Crown         common.Identity
	VoteEpoch     uint64
	VoteOpenedAt  int64
	Outcome       ChallengeOutcome
	OutcomeTarget common.Address
	OutcomeEpoch  uint64
	Message       string
	RatingBase    common.Hash
	RatingAcc     common.Hash
	// Voters of the open epoch, in casting order
	Voters []common.Identity
}

func (r *Tanistry) RecordType() RecordType { return RecordTypeTanistry }
func (r *Tanistry) typeTag() *RecordType   { return &r.Type }

// open reports whether candidates may still join or change their stake
func (r *Tanistry) open() bool {
	return r.State == TokenStateCandidateEnabled ||
		r.State == TokenStateTanistrySet
}

// playing reports whether rounds are in progress
func (r *Tanistry) playing() bool {
	return r.State == TokenStateTanistrySet ||
		r.State == TokenStateVoteEnabled
}

func (r *Tanistry) pairIndex(a, b common.Identity) int {
	for idx, pair := range r.Pairs {
		if pair.has(a, b) {
			return idx
		}
	}
	return -1
}

func (r *Tanistry) admitted(id common.Identity) bool {
	return slices.Contains(r.Candidates, id)
}

// roundResolved reports whether every pair of the current round has been rated
func (r *Tanistry) roundResolved() bool {
	for _, pair := range r.Pairs {
		if !pair.Resolved {
			return false
		}
	}
	return true
}

// MixContentRecord holds the content link shared by a rater and their buddy
type MixContentRecord struct {
	cbor.StructAsArray
	Type     RecordType
	Rater    common.Identity
	Buddy    common.Identity
	Link     string
	Outcome  MixOutcome
	Tanistry common.Address
	Round    uint64
	MixedAt  int64
}

func (r *MixContentRecord) RecordType() RecordType { return RecordTypeMixContent }
func (r *MixContentRecord) typeTag() *RecordType   { return &r.Type }

type RateOtherRecord struct {
	cbor.StructAsArray
	Type      RecordType
	Mix       common.Address
	Rating    uint64
	Timestamp int64
}

func (r *RateOtherRecord) RecordType() RecordType { return RecordTypeRateOther }
func (r *RateOtherRecord) typeTag() *RecordType   { return &r.Type }

// OutsideBuyerRecord is a listing of surplus stake for outside buyers
type OutsideBuyerRecord struct {
	cbor.StructAsArray
	Type     RecordType
	Seller   common.Identity
	Buyer    common.Identity
	Mint     common.Address
	Amount   uint64
	Deadline int64
	Tanistry common.Address
	Price    uint64
	Status   ListingStatus
	ListedAt int64
}

func (r *OutsideBuyerRecord) RecordType() RecordType { return RecordTypeOutsideBuyer }
func (r *OutsideBuyerRecord) typeTag() *RecordType   { return &r.Type }

// CCVoteRecord is a challenge vote cast by an eligible candidate
type CCVoteRecord struct {
	cbor.StructAsArray
	Type     RecordType
	Voter    common.Identity
	Tanistry common.Address
	Target   common.Address
	Kind     VoteKind
	Weight   uint64
	Epoch    uint64
	Choices  []common.Address
	CastAt   int64
}

func (r *CCVoteRecord) RecordType() RecordType { return RecordTypeCCVote }
func (r *CCVoteRecord) typeTag() *RecordType   { return &r.Type }

// newRecord returns an empty record of the given type
func newRecord(recordType RecordType) (Record, error) {
	switch recordType {
	case RecordTypeBcToken:
		return &BcToken{}, nil
	case RecordTypeEscrow:
		return &KickerCoinOwnerRecord{}, nil
	case RecordTypeCandidateLimit:
		return &CandidateLimitRecord{}, nil
	case RecordTypeTanistry:
		return &Tanistry{}, nil
	case RecordTypeMixContent:
		return &MixContentRecord{}, nil
	case RecordTypeRateOther:
		return &RateOtherRecord{}, nil
	case RecordTypeOutsideBuyer:
		return &OutsideBuyerRecord{}, nil
	case RecordTypeCCVote:
		return &CCVoteRecord{}, nil
	default:
		return nil, ErrWrongRecordType
	}
}
