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
	"github.com/blinklabs-io/shihon/ledger/common"
)

// checkRound verifies that the ring is playing the given round
func checkRound(ring *Tanistry, round uint64) error {
	if !ring.playing() {
		return stateError("ring is %s and not playing rounds", ring.State)
	}
	if round != ring.Round {
		return stateError("round %d is not open, the ring is in round %d", round, ring.Round)
	}
	return nil
}

func (i *MixContent) execute(c *instructionContext) error {
	if i.Rater.IsZero() || i.Buddy.IsZero() {
		return malformed("mix requires a rater and a buddy")
	}
	if i.Rater == i.Buddy {
		return malformed("a candidate cannot mix with themselves")
	}
	if i.Link == "" {
		return malformed("empty content link")
	}
	if err := c.requireSigner(i.Rater, "rater"); err != nil {
		return err
	}
	if err := c.requireSigner(i.Buddy, "buddy"); err != nil {
		return err
	}
	var ring Tanistry
	if err := c.expectLoad(i.Tanistry, &ring); err != nil {
		return err
	}
	mixAddr := common.MixAddress(i.Tanistry, i.Round, i.Rater)
	var mix MixContentRecord
	if err := c.expectAbsent(mixAddr, &mix); err != nil {
		return err
	}
	if err := checkRound(&ring, i.Round); err != nil {
		return err
	}
	idx := ring.pairIndex(i.Rater, i.Buddy)
	if idx < 0 {
		return stateError("candidates are not paired in round %d", i.Round)
	}
	if ring.Pairs[idx].Mixed {
		return stateError("pair already mixed in round %d", i.Round)
	}
	ring.Pairs[idx] = Pair{
		Rater: i.Rater,
		Buddy: i.Buddy,
		Mixed: true,
	}
	mix = MixContentRecord{
		Rater:    i.Rater,
		Buddy:    i.Buddy,
		Link:     i.Link,
		Outcome:  MixOutcomeUnresolved,
		Tanistry: i.Tanistry,
		Round:    i.Round,
		MixedAt:  c.now,
	}
	if err := c.store(mixAddr, &mix); err != nil {
		return err
	}
	if err := c.store(i.Tanistry, &ring); err != nil {
		return err
	}
	c.emit(MixEventType, MixEvent{
		Tanistry: i.Tanistry,
		Mix:      mixAddr,
		Rater:    mix.Rater,
		Buddy:    mix.Buddy,
		Round:    mix.Round,
		Outcome:  mix.Outcome,
	})
	return nil
}

func (i *RateOtherContent) execute(c *instructionContext) error {
	rater, err := c.signer()
	if err != nil {
		return err
	}
	var ring Tanistry
	if err := c.expectLoad(i.Tanistry, &ring); err != nil {
		return err
	}
	mixAddr := common.MixAddress(i.Tanistry, i.Round, rater)
	var mix MixContentRecord
	if err := c.expectLoad(mixAddr, &mix); err != nil {
		return err
	}
	rateAddr := common.RateAddress(mixAddr)
	var rate RateOtherRecord
	if err := c.expectAbsent(rateAddr, &rate); err != nil {
		return err
	}
	buddyAddr := common.CandidateAddress(i.Tanistry, mix.Buddy)
	var buddy CandidateLimitRecord
	if err := c.expectLoad(buddyAddr, &buddy); err != nil {
		return err
	}
	var kickerToken BcToken
	if err := c.expectLoad(ring.KickerToken, &kickerToken); err != nil {
		return err
	}
	if mix.Outcome != MixOutcomeUnresolved {
		return stateError("mix already resolved as %s", mix.Outcome)
	}
	if err := checkRound(&ring, i.Round); err != nil {
		return err
	}
	if i.Rating > c.params.RatingCeiling {
		return stateError(
			"rating %d above the ceiling of %d",
			i.Rating,
			c.params.RatingCeiling,
		)
	}
	idx := ring.pairIndex(mix.Rater, mix.Buddy)
	if idx < 0 || ring.Pairs[idx].Resolved {
		return stateError("mix does not match an open pair of round %d", i.Round)
	}
	ratingTotal, err := addAmount(buddy.RatingTotal, i.Rating, "rating total")
	if err != nil {
		return err
	}
	buddy.RatingTotal = ratingTotal
	mix.Outcome = MixOutcomeDefeated
	if i.Rating >= ring.Threshold {
		mix.Outcome = MixOutcomeSucceeded
	}
	rate = RateOtherRecord{
		Mix:       mixAddr,
		Rating:    i.Rating,
		Timestamp: c.now,
	}
	ring.Pairs[idx].Resolved = true
	ring.foldRating(
		mix.Rater.Bytes(),
		mix.Buddy.Bytes(),
		uint64Bytes(mix.Round),
		[]byte{byte(mix.Outcome)},
		uint64Bytes(i.Rating),
	)
	c.emit(MixEventType, MixEvent{
		Tanistry: i.Tanistry,
		Mix:      mixAddr,
		Rater:    mix.Rater,
		Buddy:    mix.Buddy,
		Round:    mix.Round,
		Rating:   i.Rating,
		Outcome:  mix.Outcome,
	})
	if ring.roundResolved() {
		if err := c.completeRound(i.Tanistry, &ring, &kickerToken); err != nil {
			return err
		}
	}
	if err := c.store(mixAddr, &mix); err != nil {
		return err
	}
	if err := c.store(rateAddr, &rate); err != nil {
		return err
	}
	if err := c.store(buddyAddr, &buddy); err != nil {
		return err
	}
	if err := c.store(i.Tanistry, &ring); err != nil {
		return err
	}
	c.emit(TanistryEventType, newTanistryEvent(i.Tanistry, &ring))
	return nil
}

// completeRound moves a fully resolved ring to its next round. Voting opens
// once enough rounds have been played.
func (c *instructionContext) completeRound(
	addr common.Address,
	ring *Tanistry,
	kickerToken *BcToken,
) error {
	ring.Round++
	if ring.State == TokenStateTanistrySet &&
		ring.Round >= c.params.VoteRoundThreshold {
		ring.State = TokenStateVoteEnabled
		ring.VoteOpenedAt = c.now
		if err := advanceToken(kickerToken, TokenStateVoteEnabled); err != nil {
			return err
		}
		if err := c.store(ring.KickerToken, kickerToken); err != nil {
			return err
		}
		c.emit(TokenEventType, newTokenEvent(ring.KickerToken, kickerToken))
	}
	c.openRound(addr, ring)
	return nil
}

// CloseRound ends a round whose time is up. Pairs that never mixed or never
// rated are forfeited as defeated without a rating. Anyone may close.
func (i *CloseRound) execute(c *instructionContext) error {
	var ring Tanistry
	if err := c.expectLoad(i.Tanistry, &ring); err != nil {
		return err
	}
	var kickerToken BcToken
	if err := c.expectLoad(ring.KickerToken, &kickerToken); err != nil {
		return err
	}
	if err := checkRound(&ring, i.Round); err != nil {
		return err
	}
	deadline := ring.RoundOpenedAt + seconds(c.params.RoundDuration)
	if c.now < deadline {
		return stateError("round %d is open until %d", i.Round, deadline)
	}
	for idx := range ring.Pairs {
		pair := &ring.Pairs[idx]
		if pair.Resolved {
			continue
		}
		if pair.Mixed {
			mixAddr := common.MixAddress(i.Tanistry, i.Round, pair.Rater)
			var mix MixContentRecord
			if err := c.expectLoad(mixAddr, &mix); err != nil {
				return err
			}
			mix.Outcome = MixOutcomeDefeated
			if err := c.store(mixAddr, &mix); err != nil {
				return err
			}
			c.emit(MixEventType, MixEvent{
				Tanistry: i.Tanistry,
				Mix:      mixAddr,
				Rater:    mix.Rater,
				Buddy:    mix.Buddy,
				Round:    mix.Round,
				Outcome:  mix.Outcome,
			})
		}
		pair.Resolved = true
		ring.foldRating(
			pair.Rater.Bytes(),
			pair.Buddy.Bytes(),
			uint64Bytes(i.Round),
			[]byte{byte(MixOutcomeDefeated)},
			[]byte(fingerprintTagForfeit),
		)
	}
	if err := c.completeRound(i.Tanistry, &ring, &kickerToken); err != nil {
		return err
	}
	if err := c.store(i.Tanistry, &ring); err != nil {
		return err
	}
	c.emit(TanistryEventType, newTanistryEvent(i.Tanistry, &ring))
	return nil
}
