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
	"strings"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/shihon/ledger/common"
)

type Opcode uint8

const (
	OpcodeDraftContentToken Opcode = iota + 1
	OpcodePublishContentToken
	OpcodeDiscardContentToken
	OpcodeKickToCoordinator
	OpcodeApproveEscrow
	OpcodeDenyEscrow
	OpcodeCandidate
	OpcodeBumpSelfStake
	OpcodeMixContent
	OpcodeRateOtherContent
	OpcodeListForSale
	OpcodeBuy
	OpcodeExpireListing
	OpcodeCrowning
	OpcodeVoteForChallenge
	OpcodeFinalizeChallenge
	OpcodeClaimRefund
	OpcodeCloseRound
)

var opcodeNames = map[Opcode]string{
	OpcodeDraftContentToken:   "DraftContentToken",
	OpcodePublishContentToken: "PublishContentToken",
	OpcodeDiscardContentToken: "DiscardContentToken",
	OpcodeKickToCoordinator:   "KickToCoordinator",
	OpcodeApproveEscrow:       "ApproveEscrow",
	OpcodeDenyEscrow:          "DenyEscrow",
	OpcodeCandidate:           "Candidate",
	OpcodeBumpSelfStake:       "BumpSelfStake",
	OpcodeMixContent:          "MixContent",
	OpcodeRateOtherContent:    "RateOtherContent",
	OpcodeListForSale:         "ListForSale",
	OpcodeBuy:                 "Buy",
	OpcodeExpireListing:       "ExpireListing",
	OpcodeCrowning:            "Crowning",
	OpcodeVoteForChallenge:    "VoteForChallenge",
	OpcodeFinalizeChallenge:   "FinalizeChallenge",
	OpcodeClaimRefund:         "ClaimRefund",
	OpcodeCloseRound:          "CloseRound",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", uint8(o))
}

// ParseOpcode looks up an opcode by its instruction name, ignoring case
func ParseOpcode(name string) (Opcode, error) {
	for op, opName := range opcodeNames {
		if strings.EqualFold(opName, name) {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownOpcode, name)
}

// Instruction is the decoded payload of a request
type Instruction interface {
	Opcode() Opcode
	execute(c *instructionContext) error
}

// NewInstruction returns an empty instruction for an opcode
func NewInstruction(op Opcode) (Instruction, error) {
	switch op {
	case OpcodeDraftContentToken:
		return &DraftContentToken{}, nil
	case OpcodePublishContentToken:
		return &PublishContentToken{}, nil
	case OpcodeDiscardContentToken:
		return &DiscardContentToken{}, nil
	case OpcodeKickToCoordinator:
		return &KickToCoordinator{}, nil
	case OpcodeApproveEscrow:
		return &ApproveEscrow{}, nil
	case OpcodeDenyEscrow:
		return &DenyEscrow{}, nil
	case OpcodeCandidate:
		return &Candidate{}, nil
	case OpcodeBumpSelfStake:
		return &BumpSelfStake{}, nil
	case OpcodeMixContent:
		return &MixContent{}, nil
	case OpcodeRateOtherContent:
		return &RateOtherContent{}, nil
	case OpcodeListForSale:
		return &ListForSale{}, nil
	case OpcodeBuy:
		return &Buy{}, nil
	case OpcodeExpireListing:
		return &ExpireListing{}, nil
	case OpcodeCrowning:
		return &Crowning{}, nil
	case OpcodeVoteForChallenge:
		return &VoteForChallenge{}, nil
	case OpcodeFinalizeChallenge:
		return &FinalizeChallenge{}, nil
	case OpcodeClaimRefund:
		return &ClaimRefund{}, nil
	case OpcodeCloseRound:
		return &CloseRound{}, nil
	default:
		return nil, fmt.Errorf("%w: %w: %d", ErrMalformedRequest, ErrUnknownOpcode, op)
	}
}

// Request is one instruction submission. Accounts lists, in instruction
// specific order, every record and holding the instruction touches
type Request struct {
	cbor.StructAsArray
	Signers   []common.Identity
	Accounts  []common.Address
	Timestamp int64
	Opcode    Opcode
	Data      []byte
}

// NewRequest encodes an instruction into a request without accounts
func NewRequest(
	signers []common.Identity,
	timestamp int64,
	instr Instruction,
) (Request, error) {
	data, err := cbor.Encode(instr)
	if err != nil {
		return Request{}, fmt.Errorf("encode %s: %w", instr.Opcode(), err)
	}
	return Request{
		Signers:   signers,
		Timestamp: timestamp,
		Opcode:    instr.Opcode(),
		Data:      data,
	}, nil
}

// Instruction decodes the request payload
func (r *Request) Instruction() (Instruction, error) {
	instr, err := NewInstruction(r.Opcode)
	if err != nil {
		return nil, err
	}
	if _, err := cbor.Decode(r.Data, instr); err != nil {
		return nil, fmt.Errorf(
			"%w: decode %s: %w",
			ErrMalformedRequest,
			r.Opcode,
			err,
		)
	}
	return instr, nil
}

func (r *Request) signedBy(id common.Identity) bool {
	for _, signer := range r.Signers {
		if signer == id {
			return true
		}
	}
	return false
}

func EncodeRequest(req Request) ([]byte, error) {
	return cbor.Encode(&req)
}

func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if _, err := cbor.Decode(data, &req); err != nil {
		return req, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	return req, nil
}

type DraftContentToken struct {
	cbor.StructAsArray
	Name      string          `yaml:"name"`
	Mint      common.Address  `yaml:"mint"`
	Authority common.Identity `yaml:"authority"`
}

func (DraftContentToken) Opcode() Opcode { return OpcodeDraftContentToken }

type PublishContentToken struct {
	cbor.StructAsArray
	Name        string      `yaml:"name"`
	Public      bool        `yaml:"public"`
	Fingerprint common.Hash `yaml:"fingerprint"`
	Uri         string      `yaml:"uri"`
	Deposit     uint64      `yaml:"deposit"`
}

func (PublishContentToken) Opcode() Opcode { return OpcodePublishContentToken }

type DiscardContentToken struct {
	cbor.StructAsArray
	Name string `yaml:"name"`
}

func (DiscardContentToken) Opcode() Opcode { return OpcodeDiscardContentToken }

type KickToCoordinator struct {
	cbor.StructAsArray
	Token       string          `yaml:"token"`
	Coordinator common.Identity `yaml:"coordinator"`
	Amount      uint64          `yaml:"amount"`
	Predecessor common.Address  `yaml:"predecessor"`
}

func (KickToCoordinator) Opcode() Opcode { return OpcodeKickToCoordinator }

type ApproveEscrow struct {
	cbor.StructAsArray
	Kicker      common.Identity `yaml:"kicker"`
	Coordinator common.Identity `yaml:"coordinator"`
	Message     string          `yaml:"message"`
	Cap         uint64          `yaml:"cap"`
	Threshold   uint64          `yaml:"threshold"`
}

func (ApproveEscrow) Opcode() Opcode { return OpcodeApproveEscrow }

type DenyEscrow struct {
	cbor.StructAsArray
	Kicker      common.Identity `yaml:"kicker"`
	Coordinator common.Identity `yaml:"coordinator"`
}

func (DenyEscrow) Opcode() Opcode { return OpcodeDenyEscrow }

type Candidate struct {
	cbor.StructAsArray
	Tanistry common.Address `yaml:"tanistry"`
	Token    string         `yaml:"token"`
	Amount   uint64         `yaml:"amount"`
}

func (Candidate) Opcode() Opcode { return OpcodeCandidate }

type BumpSelfStake struct {
	cbor.StructAsArray
	Tanistry common.Address `yaml:"tanistry"`
	Amount   uint64         `yaml:"amount"`
}

func (BumpSelfStake) Opcode() Opcode { return OpcodeBumpSelfStake }

type MixContent struct {
	cbor.StructAsArray
	Tanistry common.Address  `yaml:"tanistry"`
	Round    uint64          `yaml:"round"`
	Rater    common.Identity `yaml:"rater"`
	Buddy    common.Identity `yaml:"buddy"`
	Link     string          `yaml:"link"`
}

func (MixContent) Opcode() Opcode { return OpcodeMixContent }

type RateOtherContent struct {
	cbor.StructAsArray
	Tanistry common.Address `yaml:"tanistry"`
	Round    uint64         `yaml:"round"`
	Rating   uint64         `yaml:"rating"`
}

func (RateOtherContent) Opcode() Opcode { return OpcodeRateOtherContent }

type CloseRound struct {
	cbor.StructAsArray
	Tanistry common.Address `yaml:"tanistry"`
	Round    uint64         `yaml:"round"`
}

func (CloseRound) Opcode() Opcode { return OpcodeCloseRound }

type ListForSale struct {
	cbor.StructAsArray
	Tanistry common.Address `yaml:"tanistry"`
	Amount   uint64         `yaml:"amount"`
	Price    uint64         `yaml:"price"`
}

func (ListForSale) Opcode() Opcode { return OpcodeListForSale }

type Buy struct {
	cbor.StructAsArray
	Tanistry common.Address  `yaml:"tanistry"`
	Seller   common.Identity `yaml:"seller"`
	Amount   uint64          `yaml:"amount"`
}

func (Buy) Opcode() Opcode { return OpcodeBuy }

type ExpireListing struct {
	cbor.StructAsArray
	Tanistry common.Address  `yaml:"tanistry"`
	Seller   common.Identity `yaml:"seller"`
}

func (ExpireListing) Opcode() Opcode { return OpcodeExpireListing }

type Crowning struct {
	cbor.StructAsArray
	Tanistry       common.Address  `yaml:"tanistry"`
	NewCoordinator common.Identity `yaml:"newCoordinator"`
}

func (Crowning) Opcode() Opcode { return OpcodeCrowning }

type VoteForChallenge struct {
	cbor.StructAsArray
	Tanistry common.Address   `yaml:"tanistry"`
	Kind     VoteKind         `yaml:"kind"`
	Choices  []common.Address `yaml:"choices"`
}

func (VoteForChallenge) Opcode() Opcode { return OpcodeVoteForChallenge }

type FinalizeChallenge struct {
	cbor.StructAsArray
	Tanistry common.Address `yaml:"tanistry"`
}

func (FinalizeChallenge) Opcode() Opcode { return OpcodeFinalizeChallenge }

type ClaimRefund struct {
	cbor.StructAsArray
	Tanistry common.Address `yaml:"tanistry"`
	Token    string         `yaml:"token"`
}

func (ClaimRefund) Opcode() Opcode { return OpcodeClaimRefund }
