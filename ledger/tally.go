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
	"bytes"

	"github.com/blinklabs-io/shihon/ledger/common"
)

// TallyVote is one challenge vote as seen by a tally policy. Target is the
// first ranked ring of a pull vote
type TallyVote struct {
	Voter  common.Identity
	Target common.Address
	Weight uint64
	Kind   VoteKind
}

// TallyResult is the resolution of one vote epoch
type TallyResult struct {
	Target     common.Address
	PushWeight uint64
	PullWeight uint64
	Outcome    ChallengeOutcome
}

// TallyPolicy resolves the votes of an epoch into a challenge outcome.
// Implementations must be deterministic in the set of votes
type TallyPolicy interface {
	Tally(votes []TallyVote) (TallyResult, error)
}

// WeightedPlurality keeps the ring in place when push weight is at least the
// pull weight. Otherwise the challenge is redirected to the first choice
// carrying the most pull weight, with ties going to the lowest address
type WeightedPlurality struct{}

func (WeightedPlurality) Tally(votes []TallyVote) (TallyResult, error) {
	var ret TallyResult
	if len(votes) == 0 {
		return ret, nil
	}
	pull := make(map[common.Address]uint64)
	for _, vote := range votes {
		var err error
		switch vote.Kind {
		case VoteKindPush:
			ret.PushWeight, err = addAmount(ret.PushWeight, vote.Weight, "push weight")
		case VoteKindPull:
			ret.PullWeight, err = addAmount(ret.PullWeight, vote.Weight, "pull weight")
			if err == nil {
				pull[vote.Target], err = addAmount(pull[vote.Target], vote.Weight, "target weight")
			}
		default:
			err = stateError("unknown vote kind %d", vote.Kind)
		}
		if err != nil {
			return TallyResult{}, err
		}
	}
	if ret.PushWeight >= ret.PullWeight {
		ret.Outcome = ChallengeOutcomeStay
		return ret, nil
	}
	var best uint64
	for target, weight := range pull {
		if weight > best ||
			(weight == best && bytes.Compare(target[:], ret.Target[:]) < 0) {
			best = weight
			ret.Target = target
		}
	}
	ret.Outcome = ChallengeOutcomeRedirect
	return ret, nil
}
