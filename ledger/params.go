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
	"time"

	"github.com/blinklabs-io/shihon/ledger/common"
)

const (
	DefaultStakeMintName      = "kickercoin"
	DefaultEscrowTTL          = 24 * time.Hour
	DefaultCandidateCap       = 10_000
	DefaultMinCandidates      = 2
	DefaultMaxCandidates      = 16
	DefaultRatingCeiling      = 100
	DefaultRatingThreshold    = 50
	DefaultResaleThreshold    = 100
	DefaultRoundDuration      = time.Hour
	DefaultCrowningMinRounds  = 3
	DefaultVoteRoundThreshold = 5
	DefaultVoteEpochLength    = 24 * time.Hour

	// MaxPullChoices bounds the ranked rings carried by a pull vote
	MaxPullChoices = 8
	// MaxTokenNameLength bounds content token names in bytes
	MaxTokenNameLength = 64
)

// Params are the protocol parameters shared by every ring
type Params struct {
	StakeMint          common.Address
	EscrowTTL          time.Duration
	CandidateCap       uint64
	MinCandidates      uint32
	MaxCandidates      uint32
	RatingCeiling      uint64
	RatingThreshold    uint64
	ResaleThreshold    uint64
	RoundDuration      time.Duration
	CrowningMinRounds  uint64
	VoteRoundThreshold uint64
	VoteEpochLength    time.Duration
}

func DefaultParams() Params {
	return Params{
		StakeMint:          common.MintAddress(DefaultStakeMintName),
		EscrowTTL:          DefaultEscrowTTL,
		CandidateCap:       DefaultCandidateCap,
		MinCandidates:      DefaultMinCandidates,
		MaxCandidates:      DefaultMaxCandidates,
		RatingCeiling:      DefaultRatingCeiling,
		RatingThreshold:    DefaultRatingThreshold,
		ResaleThreshold:    DefaultResaleThreshold,
		RoundDuration:      DefaultRoundDuration,
		CrowningMinRounds:  DefaultCrowningMinRounds,
		VoteRoundThreshold: DefaultVoteRoundThreshold,
		VoteEpochLength:    DefaultVoteEpochLength,
	}
}

func (p Params) Validate() error {
	var errs []error
	if p.StakeMint.IsZero() {
		errs = append(errs, errors.New("stake mint must be set"))
	}
	if p.MinCandidates < 2 {
		errs = append(errs, errors.New("min candidates must be at least 2"))
	}
	if p.MaxCandidates < p.MinCandidates {
		errs = append(
			errs,
			fmt.Errorf(
				"max candidates (%d) below min candidates (%d)",
				p.MaxCandidates,
				p.MinCandidates,
			),
		)
	}
	if p.RatingThreshold > p.RatingCeiling {
		errs = append(errs, errors.New("rating threshold above rating ceiling"))
	}
	if p.VoteRoundThreshold <= p.CrowningMinRounds {
		errs = append(
			errs,
			errors.New("vote round threshold must be above crowning min rounds"),
		)
	}
	for name, d := range map[string]time.Duration{
		"escrow ttl":        p.EscrowTTL,
		"round duration":    p.RoundDuration,
		"vote epoch length": p.VoteEpochLength,
	} {
		if d < time.Second {
			errs = append(errs, fmt.Errorf("%s must be at least 1s", name))
		}
	}
	return errors.Join(errs...)
}

// seconds converts a duration to the unit of request timestamps
func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
