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

func validTokenName(name string) error {
	if name == "" {
		return malformed("empty token name")
	}
	if len(name) > MaxTokenNameLength {
		return malformed("token name longer than %d bytes", MaxTokenNameLength)
	}
	return nil
}

func (i *DraftContentToken) execute(c *instructionContext) error {
	if err := validTokenName(i.Name); err != nil {
		return err
	}
	owner, err := c.signer()
	if err != nil {
		return err
	}
	addr := common.BcTokenAddress(i.Name)
	// A cancelled token keeps its record, so discarded names stay taken
	var token BcToken
	if err := c.expectAbsent(addr, &token); err != nil {
		return err
	}
	mint := i.Mint
	if mint.IsZero() {
		mint = c.params.StakeMint
	}
	token = BcToken{
		Owner:     owner,
		Mint:      mint,
		State:     TokenStateDraft,
		Authority: i.Authority,
		Name:      i.Name,
	}
	if err := c.store(addr, &token); err != nil {
		return err
	}
	c.emit(TokenEventType, newTokenEvent(addr, &token))
	return nil
}

// loadOwnedToken declares the token account and checks the signer may act for it
func loadOwnedToken(c *instructionContext, name string) (common.Address, *BcToken, error) {
	if err := validTokenName(name); err != nil {
		return common.Address{}, nil, err
	}
	addr := common.BcTokenAddress(name)
	token := &BcToken{}
	if err := c.expectLoad(addr, token); err != nil {
		return addr, nil, err
	}
	for _, signer := range c.req.Signers {
		if token.authorized(signer) {
			return addr, token, nil
		}
	}
	return addr, nil, unauthorized("token %s requires its owner or authority", name)
}

func (i *PublishContentToken) execute(c *instructionContext) error {
	addr, token, err := loadOwnedToken(c, i.Name)
	if err != nil {
		return err
	}
	ownerWallet := c.wallet(token.Owner, token.Mint)
	if err := c.expect(ownerWallet); err != nil {
		return err
	}
	tokenHolding := c.hold(addr, token.Mint)
	if err := c.expect(tokenHolding); err != nil {
		return err
	}
	next := TokenStatePrivate
	if i.Public {
		next = TokenStatePublic
	}
	switch token.State {
	case TokenStateDraft:
	case TokenStatePrivate:
		if !i.Public {
			return stateError("token %s is already private", i.Name)
		}
	default:
		return stateError("cannot publish token %s in state %s", i.Name, token.State)
	}
	stake, err := addAmount(token.Stake, i.Deposit, "token stake")
	if err != nil {
		return err
	}
	if err := c.transfer(ownerWallet, tokenHolding, i.Deposit); err != nil {
		return err
	}
	token.Stake = stake
	token.State = next
	token.Uri = i.Uri
	token.Fingerprint = i.Fingerprint
	if token.Fingerprint.IsZero() && i.Uri != "" {
		token.Fingerprint = common.NewHash([]byte(i.Uri))
	}
	if err := c.store(addr, token); err != nil {
		return err
	}
	c.emit(TokenEventType, newTokenEvent(addr, token))
	return nil
}

func (i *DiscardContentToken) execute(c *instructionContext) error {
	addr, token, err := loadOwnedToken(c, i.Name)
	if err != nil {
		return err
	}
	ownerWallet := c.wallet(token.Owner, token.Mint)
	if err := c.expect(ownerWallet); err != nil {
		return err
	}
	tokenHolding := c.hold(addr, token.Mint)
	if err := c.expect(tokenHolding); err != nil {
		return err
	}
	if token.State != TokenStateDraft && token.State != TokenStatePrivate {
		return stateError("cannot discard token %s in state %s", i.Name, token.State)
	}
	if err := c.transfer(tokenHolding, ownerWallet, token.Stake); err != nil {
		return err
	}
	token.Stake = 0
	token.State = TokenStateCancelled
	if err := c.store(addr, token); err != nil {
		return err
	}
	c.emit(TokenEventType, newTokenEvent(addr, token))
	return nil
}

// advanceToken moves a token forward to next, rejecting backward moves
func advanceToken(token *BcToken, next TokenState) error {
	if token.State == next {
		return nil
	}
	if !token.State.canAdvance(next) {
		return stateError(
			"token %s cannot move from %s to %s",
			token.Name,
			token.State,
			next,
		)
	}
	token.State = next
	return nil
}
