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

// ClaimRefund withdraws the stake and the token deposit of a participant
// from a sealed ring. The kicker has no candidate record and only reclaims
// the deposit behind their token
func (i *ClaimRefund) execute(c *instructionContext) error {
	claimant, err := c.signer()
	if err != nil {
		return err
	}
	if err := validTokenName(i.Token); err != nil {
		return err
	}
	var ring Tanistry
	if err := c.expectLoad(i.Tanistry, &ring); err != nil {
		return err
	}
	recordAddr := common.CandidateAddress(i.Tanistry, claimant)
	if err := c.expect(recordAddr); err != nil {
		return err
	}
	var rec CandidateLimitRecord
	isCandidate, err := c.loadOptional(recordAddr, &rec)
	if err != nil {
		return err
	}
	tokenAddr := common.BcTokenAddress(i.Token)
	var token BcToken
	if err := c.expectLoad(tokenAddr, &token); err != nil {
		return err
	}
	tokenHolding := c.hold(tokenAddr, token.Mint)
	if err := c.expect(tokenHolding); err != nil {
		return err
	}
	wallet := c.wallet(claimant, ring.Mint)
	if err := c.expect(wallet); err != nil {
		return err
	}
	ringHolding := c.hold(i.Tanistry, ring.Mint)
	if err := c.expect(ringHolding); err != nil {
		return err
	}
	listingAddr := common.SaleAddress(i.Tanistry, claimant)
	if err := c.expect(listingAddr); err != nil {
		return err
	}
	if !token.authorized(claimant) {
		return unauthorized("claimant does not own token %s", i.Token)
	}
	if ring.State != TokenStateRefundable {
		return stateError("ring is %s and not sealed", ring.State)
	}
	if token.Mint != ring.Mint {
		return stateError("token %s is staked in another mint", i.Token)
	}
	switch {
	case isCandidate:
		if rec.Refunded {
			return stateError("stake was already refunded")
		}
		if rec.Token != tokenAddr {
			return stateError("token %s was not staked in this ring", i.Token)
		}
	case claimant == ring.Kicker:
		if ring.KickerToken != tokenAddr {
			return stateError("token %s was not kicked into this ring", i.Token)
		}
		if token.Stake == 0 {
			return stateError("nothing left to refund")
		}
	default:
		return stateError("claimant did not take part in the ring")
	}
	var listing OutsideBuyerRecord
	found, err := c.loadOptional(listingAddr, &listing)
	if err != nil {
		return err
	}
	if found && listing.Status == ListingStatusOpen {
		return stateError("an open listing must expire before the refund")
	}
	stake := rec.Amount
	if isCandidate {
		total, err := subAmount(ring.Total, stake, "ring total")
		if err != nil {
			return err
		}
		if err := c.transfer(ringHolding, wallet, stake); err != nil {
			return err
		}
		ring.Total = total
		rec.Amount = 0
		rec.Refunded = true
	}
	deposit := token.Stake
	if err := c.transfer(tokenHolding, wallet, deposit); err != nil {
		return err
	}
	token.Stake = 0
	if err := advanceToken(&token, TokenStateRefundable); err != nil {
		return err
	}
	ring.foldEvent(
		fingerprintTagRefund,
		claimant.Bytes(),
		uint64Bytes(stake),
		uint64Bytes(deposit),
	)
	if isCandidate {
		if err := c.store(recordAddr, &rec); err != nil {
			return err
		}
	}
	if err := c.store(tokenAddr, &token); err != nil {
		return err
	}
	if err := c.store(i.Tanistry, &ring); err != nil {
		return err
	}
	c.emit(TokenEventType, newTokenEvent(tokenAddr, &token))
	c.emit(RefundEventType, RefundEvent{
		Tanistry: i.Tanistry,
		Claimant: claimant,
		Stake:    stake,
		Deposit:  deposit,
	})
	return nil
}
