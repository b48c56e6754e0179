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
	"slices"

	"github.com/blinklabs-io/shihon/ledger/common"
)

func (i *Crowning) execute(c *instructionContext) error {
	if i.NewCoordinator.IsZero() {
		return malformed("missing new coordinator")
	}
	var ring Tanistry
	if err := c.expectLoad(i.Tanistry, &ring); err != nil {
		return err
	}
	if err := c.requireSigner(ring.Coordinator, "coordinator"); err != nil {
		return err
	}
	crownAddr := common.CandidateAddress(i.Tanistry, i.NewCoordinator)
	var crown CandidateLimitRecord
	if err := c.expectLoad(crownAddr, &crown); err != nil {
		return err
	}
	var esc KickerCoinOwnerRecord
	if err := c.expectLoad(ring.Escrow, &esc); err != nil {
		return err
	}
	escrowHolding := c.hold(ring.Escrow, esc.Mint)
	if err := c.expect(escrowHolding); err != nil {
		return err
	}
	crownWallet := c.wallet(i.NewCoordinator, esc.Mint)
	if err := c.expect(crownWallet); err != nil {
		return err
	}
	var kickerToken BcToken
	if err := c.expectLoad(ring.KickerToken, &kickerToken); err != nil {
		return err
	}
	if !ring.playing() {
		return stateError("ring is %s and cannot be crowned", ring.State)
	}
	if ring.Round < c.params.CrowningMinRounds {
		return stateError(
			"ring has played %d rounds, crowning needs %d",
			ring.Round,
			c.params.CrowningMinRounds,
		)
	}
	if !ring.admitted(i.NewCoordinator) {
		return stateError("new coordinator is not an admitted candidate")
	}
	if esc.Status != EscrowStatusAccepted || esc.Tanistry != i.Tanistry {
		return stateError("ring escrow is %s", esc.Status)
	}
	if err := c.transfer(escrowHolding, crownWallet, esc.Amount); err != nil {
		return err
	}
	esc.Status = EscrowStatusSettled
	ring.State = TokenStateRefundable
	ring.Crown = i.NewCoordinator
	ring.Pairs = nil
	ring.foldEvent(
		fingerprintTagCrown,
		i.NewCoordinator.Bytes(),
		uint64Bytes(esc.Amount),
	)
	if err := advanceToken(&kickerToken, TokenStateRefundable); err != nil {
		return err
	}
	if err := c.store(ring.Escrow, &esc); err != nil {
		return err
	}
	if err := c.store(ring.KickerToken, &kickerToken); err != nil {
		return err
	}
	if err := c.store(i.Tanistry, &ring); err != nil {
		return err
	}
	c.emit(EscrowEventType, newEscrowEvent(ring.Escrow, &esc))
	c.emit(TokenEventType, newTokenEvent(ring.KickerToken, &kickerToken))
	c.emit(TanistryEventType, newTanistryEvent(i.Tanistry, &ring))
	c.emit(CrowningEventType, CrowningEvent{
		Tanistry: i.Tanistry,
		Crown:    i.NewCoordinator,
		Amount:   esc.Amount,
		Round:    ring.Round,
	})
	return nil
}

// voteOpen reports whether the ring accepts challenge votes
func voteOpen(ring *Tanistry, params Params) bool {
	if ring.State != TokenStateVoteEnabled && ring.State != TokenStateRefundable {
		return false
	}
	return ring.VoteOpenedAt != 0 && ring.Round >= params.VoteRoundThreshold
}

func validateChoices(ringAddr common.Address, kind VoteKind, choices []common.Address) error {
	switch kind {
	case VoteKindPush:
		if len(choices) != 0 {
			return malformed("push votes carry no choices")
		}
	case VoteKindPull:
		if len(choices) == 0 || len(choices) > MaxPullChoices {
			return malformed("pull votes carry 1 to %d choices", MaxPullChoices)
		}
		for idx, choice := range choices {
			if choice.IsZero() {
				return malformed("empty choice %d", idx)
			}
			if choice == ringAddr {
				return malformed("a ring cannot be its own alternative")
			}
			if slices.Contains(choices[:idx], choice) {
				return malformed("duplicate choice %s", choice.String())
			}
		}
	default:
		return malformed("unknown vote kind %d", kind)
	}
	return nil
}

func (i *VoteForChallenge) execute(c *instructionContext) error {
	voter, err := c.signer()
	if err != nil {
		return err
	}
	if err := validateChoices(i.Tanistry, i.Kind, i.Choices); err != nil {
		return err
	}
	var ring Tanistry
	if err := c.expectLoad(i.Tanistry, &ring); err != nil {
		return err
	}
	recordAddr := common.CandidateAddress(i.Tanistry, voter)
	var rec CandidateLimitRecord
	if err := c.expectLoad(recordAddr, &rec); err != nil {
		return err
	}
	voteAddr := common.VoteAddress(i.Tanistry, ring.VoteEpoch, voter)
	var vote CCVoteRecord
	if err := c.expectAbsent(voteAddr, &vote); err != nil {
		return err
	}
	if !voteOpen(&ring, c.params) {
		return stateError("ring is not open for challenge votes")
	}
	deadline := ring.VoteOpenedAt + seconds(c.params.VoteEpochLength)
	if c.now >= deadline {
		return deadlineError("vote epoch %d closed at %d", ring.VoteEpoch, deadline)
	}
	weight, err := addAmount(rec.Amount, rec.RatingTotal, "vote weight")
	if err != nil {
		return err
	}
	vote = CCVoteRecord{
		Voter:    voter,
		Tanistry: i.Tanistry,
		Kind:     i.Kind,
		Weight:   weight,
		Epoch:    ring.VoteEpoch,
		Choices:  slices.Clone(i.Choices),
		CastAt:   c.now,
	}
	if i.Kind == VoteKindPull {
		vote.Target = i.Choices[0]
	}
	ring.Voters = append(ring.Voters, voter)
	if err := c.store(voteAddr, &vote); err != nil {
		return err
	}
	if err := c.store(i.Tanistry, &ring); err != nil {
		return err
	}
	c.emit(VoteEventType, VoteEvent{
		Tanistry: i.Tanistry,
		Vote:     voteAddr,
		Voter:    voter,
		Kind:     vote.Kind,
		Weight:   vote.Weight,
		Epoch:    vote.Epoch,
	})
	return nil
}

// FinalizeChallenge tallies a closed vote epoch and opens the next one.
// Every vote of the epoch is a declared account. Anyone may submit it
func (i *FinalizeChallenge) execute(c *instructionContext) error {
	var ring Tanistry
	if err := c.expectLoad(i.Tanistry, &ring); err != nil {
		return err
	}
	votes := make([]TallyVote, 0, len(ring.Voters))
	for _, voter := range ring.Voters {
		var vote CCVoteRecord
		if err := c.expectLoad(common.VoteAddress(i.Tanistry, ring.VoteEpoch, voter), &vote); err != nil {
			return err
		}
		votes = append(votes, TallyVote{
			Voter:  vote.Voter,
			Weight: vote.Weight,
			Kind:   vote.Kind,
			Target: vote.Target,
		})
	}
	if !voteOpen(&ring, c.params) {
		return stateError("ring is not open for challenge votes")
	}
	deadline := ring.VoteOpenedAt + seconds(c.params.VoteEpochLength)
	if c.now < deadline {
		return stateError("vote epoch %d is open until %d", ring.VoteEpoch, deadline)
	}
	result, err := c.ls.tally.Tally(votes)
	if err != nil {
		return err
	}
	epoch := ring.VoteEpoch
	ring.Outcome = result.Outcome
	ring.OutcomeTarget = result.Target
	ring.OutcomeEpoch = epoch
	ring.VoteEpoch++
	ring.VoteOpenedAt = c.now
	ring.Voters = nil
	if err := c.store(i.Tanistry, &ring); err != nil {
		return err
	}
	c.emit(ChallengeEventType, ChallengeEvent{
		Tanistry:   i.Tanistry,
		Target:     result.Target,
		Outcome:    result.Outcome,
		Epoch:      epoch,
		PushWeight: result.PushWeight,
		PullWeight: result.PullWeight,
	})
	return nil
}
