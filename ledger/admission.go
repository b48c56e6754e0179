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

func (i *Candidate) execute(c *instructionContext) error {
	candidate, err := c.signer()
	if err != nil {
		return err
	}
	if i.Amount == 0 {
		return malformed("candidate stake must be positive")
	}
	if err := validTokenName(i.Token); err != nil {
		return err
	}
	var ring Tanistry
	if err := c.expectLoad(i.Tanistry, &ring); err != nil {
		return err
	}
	recordAddr := common.CandidateAddress(i.Tanistry, candidate)
	var rec CandidateLimitRecord
	if err := c.expectAbsent(recordAddr, &rec); err != nil {
		return err
	}
	tokenAddr := common.BcTokenAddress(i.Token)
	var token BcToken
	if err := c.expectLoad(tokenAddr, &token); err != nil {
		return err
	}
	wallet := c.wallet(candidate, ring.Mint)
	if err := c.expect(wallet); err != nil {
		return err
	}
	ringHolding := c.hold(i.Tanistry, ring.Mint)
	if err := c.expect(ringHolding); err != nil {
		return err
	}
	var kickerToken BcToken
	if err := c.expectLoad(ring.KickerToken, &kickerToken); err != nil {
		return err
	}
	if candidate == ring.Kicker || candidate == ring.Coordinator {
		return unauthorized("the kicker and coordinator cannot join their own ring")
	}
	if !token.authorized(candidate) {
		return unauthorized("candidate does not own token %s", i.Token)
	}
	if !ring.open() {
		return stateError("ring is %s and closed to candidates", ring.State)
	}
	if token.State != TokenStatePublic {
		return stateError("candidate token %s is %s, not Public", i.Token, token.State)
	}
	if token.Mint != ring.Mint {
		return stateError("candidate token %s is staked in another mint", i.Token)
	}
	if uint64(len(ring.Candidates)) >= uint64(c.params.MaxCandidates) {
		return stateError("ring already has %d candidates", len(ring.Candidates))
	}
	total, err := addAmount(ring.Total, i.Amount, "ring total")
	if err != nil {
		return err
	}
	if total > ring.Cap {
		return stateError(
			"stake of %d would bring the ring total to %d, above its cap of %d",
			i.Amount,
			total,
			ring.Cap,
		)
	}
	if err := c.transfer(wallet, ringHolding, i.Amount); err != nil {
		return err
	}
	rec = CandidateLimitRecord{
		Tanistry:  i.Tanistry,
		Candidate: candidate,
		Amount:    i.Amount,
		Sequence:  uint32(len(ring.Candidates)), // #nosec G115
		Token:     tokenAddr,
		JoinedAt:  c.now,
	}
	ring.Candidates = append(ring.Candidates, candidate)
	ring.Total = total
	if err := advanceToken(&token, TokenStateCandidateEnabled); err != nil {
		return err
	}
	if ring.State == TokenStateCandidateEnabled &&
		uint64(len(ring.Candidates)) >= uint64(c.params.MinCandidates) {
		ring.State = TokenStateTanistrySet
		if err := advanceToken(&kickerToken, TokenStateTanistrySet); err != nil {
			return err
		}
		if err := c.store(ring.KickerToken, &kickerToken); err != nil {
			return err
		}
		c.emit(TokenEventType, newTokenEvent(ring.KickerToken, &kickerToken))
		c.openRound(i.Tanistry, &ring)
	}
	if err := c.store(recordAddr, &rec); err != nil {
		return err
	}
	if err := c.store(tokenAddr, &token); err != nil {
		return err
	}
	if err := c.store(i.Tanistry, &ring); err != nil {
		return err
	}
	c.emit(CandidateEventType, newCandidateEvent(recordAddr, &rec))
	c.emit(TokenEventType, newTokenEvent(tokenAddr, &token))
	c.emit(TanistryEventType, newTanistryEvent(i.Tanistry, &ring))
	return nil
}

func (i *BumpSelfStake) execute(c *instructionContext) error {
	candidate, err := c.signer()
	if err != nil {
		return err
	}
	if i.Amount == 0 {
		return malformed("candidate stake must be positive")
	}
	var ring Tanistry
	if err := c.expectLoad(i.Tanistry, &ring); err != nil {
		return err
	}
	recordAddr := common.CandidateAddress(i.Tanistry, candidate)
	var rec CandidateLimitRecord
	if err := c.expectLoad(recordAddr, &rec); err != nil {
		return err
	}
	wallet := c.wallet(candidate, ring.Mint)
	if err := c.expect(wallet); err != nil {
		return err
	}
	ringHolding := c.hold(i.Tanistry, ring.Mint)
	if err := c.expect(ringHolding); err != nil {
		return err
	}
	if !ring.open() {
		return stateError("ring is %s and stakes are frozen", ring.State)
	}
	switch {
	case i.Amount > rec.Amount:
		delta := i.Amount - rec.Amount
		total, err := addAmount(ring.Total, delta, "ring total")
		if err != nil {
			return err
		}
		if total > ring.Cap {
			return stateError(
				"raising the stake by %d would bring the ring total to %d, above its cap of %d",
				delta,
				total,
				ring.Cap,
			)
		}
		if err := c.transfer(wallet, ringHolding, delta); err != nil {
			return err
		}
		ring.Total = total
	case i.Amount < rec.Amount:
		delta := rec.Amount - i.Amount
		total, err := subAmount(ring.Total, delta, "ring total")
		if err != nil {
			return err
		}
		if err := c.transfer(ringHolding, wallet, delta); err != nil {
			return err
		}
		ring.Total = total
	default:
		return nil
	}
	rec.Amount = i.Amount
	if err := c.store(recordAddr, &rec); err != nil {
		return err
	}
	if err := c.store(i.Tanistry, &ring); err != nil {
		return err
	}
	c.emit(CandidateEventType, newCandidateEvent(recordAddr, &rec))
	return nil
}

// openRound snapshots the pairs of the ring's current round
func (c *instructionContext) openRound(addr common.Address, ring *Tanistry) {
	seed := roundSeed(ring.Fingerprint, ring.Round)
	ring.Pairs = c.ls.pairer.Pairs(seed, ring.Candidates)
	ring.RoundOpenedAt = c.now
	c.emit(RoundEventType, RoundEvent{
		Tanistry: addr,
		Seed:     seed,
		Pairs:    ring.Pairs,
		Round:    ring.Round,
		OpenedAt: c.now,
	})
}
