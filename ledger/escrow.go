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

func (i *KickToCoordinator) execute(c *instructionContext) error {
	kicker, err := c.signer()
	if err != nil {
		return err
	}
	if i.Coordinator.IsZero() {
		return malformed("missing coordinator")
	}
	if i.Coordinator == kicker {
		return malformed("kicker cannot coordinate their own escrow")
	}
	if i.Amount == 0 {
		return malformed("escrow amount must be positive")
	}
	if err := validTokenName(i.Token); err != nil {
		return err
	}
	tokenAddr := common.BcTokenAddress(i.Token)
	var token BcToken
	if err := c.expectLoad(tokenAddr, &token); err != nil {
		return err
	}
	if token.Owner != kicker {
		return unauthorized("kicker %s does not own token %s", kicker.String(), i.Token)
	}
	if token.State != TokenStatePublic {
		return stateError("kicker token %s is %s, not Public", i.Token, token.State)
	}
	escrowAddr := common.EscrowAddress(kicker, i.Coordinator)
	if err := c.expect(escrowAddr); err != nil {
		return err
	}
	kickerWallet := c.wallet(kicker, token.Mint)
	if err := c.expect(kickerWallet); err != nil {
		return err
	}
	escrowHolding := c.hold(escrowAddr, token.Mint)
	if err := c.expect(escrowHolding); err != nil {
		return err
	}
	var generation uint64
	var prev KickerCoinOwnerRecord
	found, err := c.loadOptional(escrowAddr, &prev)
	if err != nil {
		return err
	}
	if found {
		if prev.live(c.now) {
			return stateError(
				"escrow %s is still live (%s)",
				escrowAddr.String(),
				prev.Status,
			)
		}
		if prev.Status == EscrowStatusPending {
			// Expired offers are returned to the kicker before the pair is reused
			if prev.Mint != token.Mint {
				return stateError("expired escrow holds a different mint")
			}
			if err := c.transfer(escrowHolding, kickerWallet, prev.Amount); err != nil {
				return err
			}
			c.emit(EscrowEventType, EscrowEvent{
				Escrow:      escrowAddr,
				Kicker:      prev.Kicker,
				Coordinator: prev.Coordinator,
				Amount:      prev.Amount,
				Status:      EscrowStatusRefunded,
				Generation:  prev.Generation,
			})
		}
		generation = prev.Generation + 1
	}
	if !i.Predecessor.IsZero() {
		var pred Tanistry
		if err := c.expectLoad(i.Predecessor, &pred); err != nil {
			return err
		}
		if err := checkPredecessor(&pred, kicker); err != nil {
			return err
		}
	}
	if err := c.transfer(kickerWallet, escrowHolding, i.Amount); err != nil {
		return err
	}
	rec := KickerCoinOwnerRecord{
		Kicker:      kicker,
		Coordinator: i.Coordinator,
		Amount:      i.Amount,
		Status:      EscrowStatusPending,
		KickerToken: tokenAddr,
		Mint:        token.Mint,
		Generation:  generation,
		CreatedAt:   c.now,
		ExpiresAt:   c.now + seconds(c.params.EscrowTTL),
		Predecessor: i.Predecessor,
	}
	if err := c.store(escrowAddr, &rec); err != nil {
		return err
	}
	c.emit(EscrowEventType, newEscrowEvent(escrowAddr, &rec))
	return nil
}

// checkPredecessor verifies that kicker may continue the sealed ring pred
func checkPredecessor(pred *Tanistry, kicker common.Identity) error {
	if pred.State != TokenStateRefundable {
		return stateError("predecessor ring is %s, not sealed", pred.State)
	}
	if pred.Crown != kicker {
		return stateError("only the crown of the predecessor ring may continue it")
	}
	if !pred.Successor.IsZero() {
		return stateError("predecessor ring already has a successor")
	}
	return nil
}

// loadEscrow declares the escrow between a kicker and a coordinator. The
// coordinator defaults to the signer
func loadEscrow(
	c *instructionContext,
	kicker, coordinator common.Identity,
) (common.Address, *KickerCoinOwnerRecord, error) {
	if coordinator.IsZero() {
		signer, err := c.signer()
		if err != nil {
			return common.Address{}, nil, err
		}
		coordinator = signer
	}
	if kicker.IsZero() {
		return common.Address{}, nil, malformed("missing kicker")
	}
	escrowAddr := common.EscrowAddress(kicker, coordinator)
	esc := &KickerCoinOwnerRecord{}
	if err := c.expectLoad(escrowAddr, esc); err != nil {
		return escrowAddr, nil, err
	}
	return escrowAddr, esc, nil
}

// loadEscrowForCoordinator declares and loads the escrow named by a coordinator instruction
func loadEscrowForCoordinator(
	c *instructionContext,
	kicker, coordinator common.Identity,
) (common.Address, *KickerCoinOwnerRecord, error) {
	escrowAddr, esc, err := loadEscrow(c, kicker, coordinator)
	if err != nil {
		return escrowAddr, nil, err
	}
	if err := c.requireSigner(esc.Coordinator, "coordinator"); err != nil {
		return escrowAddr, nil, err
	}
	return escrowAddr, esc, nil
}

func (i *ApproveEscrow) execute(c *instructionContext) error {
	escrowAddr, esc, err := loadEscrowForCoordinator(c, i.Kicker, i.Coordinator)
	if err != nil {
		return err
	}
	if esc.Status != EscrowStatusPending || esc.KickedOff {
		return stateError("escrow is already %s", esc.Status)
	}
	if c.now >= esc.ExpiresAt {
		return deadlineError("escrow offer expired at %d", esc.ExpiresAt)
	}
	var token BcToken
	if err := c.expectLoad(esc.KickerToken, &token); err != nil {
		return err
	}
	if token.State != TokenStatePublic {
		return stateError("kicker token %s is %s, not Public", token.Name, token.State)
	}
	ringAddr := common.TanistryAddress(escrowAddr, esc.Generation)
	var ring Tanistry
	if err := c.expectAbsent(ringAddr, &ring); err != nil {
		return err
	}
	var pred Tanistry
	if !esc.Predecessor.IsZero() {
		if err := c.expectLoad(esc.Predecessor, &pred); err != nil {
			return err
		}
		if err := checkPredecessor(&pred, esc.Kicker); err != nil {
			return err
		}
	}
	ringCap := i.Cap
	if ringCap == 0 {
		ringCap = c.params.CandidateCap
	}
	threshold := i.Threshold
	if threshold == 0 {
		threshold = c.params.RatingThreshold
	}
	if threshold > c.params.RatingCeiling {
		return malformed(
			"threshold %d above rating ceiling %d",
			threshold,
			c.params.RatingCeiling,
		)
	}
	ring = Tanistry{
		Kicker:      esc.Kicker,
		Coordinator: esc.Coordinator,
		Predecessor: esc.Predecessor,
		State:       TokenStateCandidateEnabled,
		Escrow:      escrowAddr,
		KickerToken: esc.KickerToken,
		Mint:        esc.Mint,
		Cap:         ringCap,
		Threshold:   threshold,
		Generation:  esc.Generation,
		CreatedAt:   c.now,
		Message:     i.Message,
		Fingerprint: foldFingerprint(
			common.Hash{},
			fingerprintTagOpen,
			escrowAddr[:],
			uint64Bytes(esc.Generation),
		),
	}
	ring.RatingBase = ring.Fingerprint
	esc.KickedOff = true
	esc.Status = EscrowStatusAccepted
	esc.Tanistry = ringAddr
	esc.Message = i.Message
	if err := advanceToken(&token, TokenStateCandidateEnabled); err != nil {
		return err
	}
	if !esc.Predecessor.IsZero() {
		pred.Successor = ringAddr
		if err := c.store(esc.Predecessor, &pred); err != nil {
			return err
		}
	}
	if err := c.store(escrowAddr, esc); err != nil {
		return err
	}
	if err := c.store(esc.KickerToken, &token); err != nil {
		return err
	}
	if err := c.store(ringAddr, &ring); err != nil {
		return err
	}
	c.emit(EscrowEventType, newEscrowEvent(escrowAddr, esc))
	c.emit(TokenEventType, newTokenEvent(esc.KickerToken, &token))
	c.emit(TanistryEventType, newTanistryEvent(ringAddr, &ring))
	return nil
}

// DenyEscrow returns a pending offer to the kicker. The coordinator may deny
// at any time. Once the offer has expired the kicker may reclaim it alone
func (i *DenyEscrow) execute(c *instructionContext) error {
	escrowAddr, esc, err := loadEscrow(c, i.Kicker, i.Coordinator)
	if err != nil {
		return err
	}
	status := EscrowStatusDenied
	if err := c.requireSigner(esc.Coordinator, "coordinator"); err != nil {
		if c.now < esc.ExpiresAt || c.requireSigner(esc.Kicker, "kicker") != nil {
			return err
		}
		status = EscrowStatusRefunded
	}
	escrowHolding := c.hold(escrowAddr, esc.Mint)
	if err := c.expect(escrowHolding); err != nil {
		return err
	}
	kickerWallet := c.wallet(esc.Kicker, esc.Mint)
	if err := c.expect(kickerWallet); err != nil {
		return err
	}
	if esc.Status != EscrowStatusPending {
		return stateError("escrow is already %s", esc.Status)
	}
	if err := c.transfer(escrowHolding, kickerWallet, esc.Amount); err != nil {
		return err
	}
	esc.Status = status
	if err := c.store(escrowAddr, esc); err != nil {
		return err
	}
	c.emit(EscrowEventType, newEscrowEvent(escrowAddr, esc))
	return nil
}
