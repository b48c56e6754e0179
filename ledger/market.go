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

// sellable returns the part of a candidate's stake that may be resold. It is
// the surplus of the effective stake over the resale threshold, bounded by
// the stake actually held
func sellable(rec *CandidateLimitRecord, resaleThreshold uint64) (uint64, error) {
	effective, err := addAmount(rec.Amount, rec.RatingTotal, "effective stake")
	if err != nil {
		return 0, err
	}
	if effective <= resaleThreshold {
		return 0, nil
	}
	return min(rec.Amount, effective-resaleThreshold), nil
}

// listingDeadline is the close time of the current round, or a full round
// from now when the round is overdue
func listingDeadline(ring *Tanistry, now int64, roundDuration int64) int64 {
	deadline := ring.RoundOpenedAt + roundDuration
	if deadline <= now {
		deadline = now + roundDuration
	}
	return deadline
}

func (i *ListForSale) execute(c *instructionContext) error {
	seller, err := c.signer()
	if err != nil {
		return err
	}
	if i.Amount == 0 {
		return malformed("listing amount must be positive")
	}
	var ring Tanistry
	if err := c.expectLoad(i.Tanistry, &ring); err != nil {
		return err
	}
	recordAddr := common.CandidateAddress(i.Tanistry, seller)
	var rec CandidateLimitRecord
	if err := c.expectLoad(recordAddr, &rec); err != nil {
		return err
	}
	listingAddr := common.SaleAddress(i.Tanistry, seller)
	if err := c.expect(listingAddr); err != nil {
		return err
	}
	ringHolding := c.hold(i.Tanistry, ring.Mint)
	if err := c.expect(ringHolding); err != nil {
		return err
	}
	listingHolding := c.hold(listingAddr, ring.Mint)
	if err := c.expect(listingHolding); err != nil {
		return err
	}
	if !ring.playing() {
		return stateError("ring is %s and not trading", ring.State)
	}
	var prev OutsideBuyerRecord
	found, err := c.loadOptional(listingAddr, &prev)
	if err != nil {
		return err
	}
	if found && prev.Status == ListingStatusOpen {
		return stateError("seller already has an open listing")
	}
	surplus, err := sellable(&rec, c.params.ResaleThreshold)
	if err != nil {
		return err
	}
	if i.Amount > surplus {
		return stateError("listing of %d exceeds the sellable surplus of %d", i.Amount, surplus)
	}
	total, err := subAmount(ring.Total, i.Amount, "ring total")
	if err != nil {
		return err
	}
	if err := c.transfer(ringHolding, listingHolding, i.Amount); err != nil {
		return err
	}
	rec.Amount -= i.Amount
	ring.Total = total
	price := i.Price
	if price == 0 {
		price = i.Amount
	}
	listing := OutsideBuyerRecord{
		Seller:   seller,
		Mint:     ring.Mint,
		Amount:   i.Amount,
		Deadline: listingDeadline(&ring, c.now, seconds(c.params.RoundDuration)),
		Tanistry: i.Tanistry,
		Price:    price,
		Status:   ListingStatusOpen,
		ListedAt: c.now,
	}
	if err := c.store(recordAddr, &rec); err != nil {
		return err
	}
	if err := c.store(listingAddr, &listing); err != nil {
		return err
	}
	if err := c.store(i.Tanistry, &ring); err != nil {
		return err
	}
	c.emit(CandidateEventType, newCandidateEvent(recordAddr, &rec))
	c.emit(SaleEventType, newSaleEvent(listingAddr, &listing))
	return nil
}

func (i *Buy) execute(c *instructionContext) error {
	buyer, err := c.signer()
	if err != nil {
		return err
	}
	if i.Seller.IsZero() {
		return malformed("missing seller")
	}
	var ring Tanistry
	if err := c.expectLoad(i.Tanistry, &ring); err != nil {
		return err
	}
	listingAddr := common.SaleAddress(i.Tanistry, i.Seller)
	var listing OutsideBuyerRecord
	if err := c.expectLoad(listingAddr, &listing); err != nil {
		return err
	}
	listingHolding := c.hold(listingAddr, listing.Mint)
	if err := c.expect(listingHolding); err != nil {
		return err
	}
	buyerWallet := c.wallet(buyer, listing.Mint)
	if err := c.expect(buyerWallet); err != nil {
		return err
	}
	sellerWallet := c.wallet(i.Seller, listing.Mint)
	if err := c.expect(sellerWallet); err != nil {
		return err
	}
	// Buyers must be outside the ring
	var buyerRec CandidateLimitRecord
	if err := c.expectAbsent(common.CandidateAddress(i.Tanistry, buyer), &buyerRec); err != nil {
		return err
	}
	if listing.Status != ListingStatusOpen {
		return stateError("listing is %s", listing.Status)
	}
	if c.now >= listing.Deadline {
		return deadlineError("listing closed at %d", listing.Deadline)
	}
	if i.Amount != listing.Amount {
		return stateError(
			"buy amount %d does not match the listed amount %d",
			i.Amount,
			listing.Amount,
		)
	}
	if err := c.transfer(buyerWallet, sellerWallet, listing.Price); err != nil {
		return err
	}
	if err := c.transfer(listingHolding, buyerWallet, listing.Amount); err != nil {
		return err
	}
	listing.Buyer = buyer
	listing.Status = ListingStatusFilled
	ring.foldEvent(
		fingerprintTagSale,
		i.Seller.Bytes(),
		buyer.Bytes(),
		uint64Bytes(listing.Amount),
		uint64Bytes(listing.Price),
	)
	if err := c.store(listingAddr, &listing); err != nil {
		return err
	}
	if err := c.store(i.Tanistry, &ring); err != nil {
		return err
	}
	c.emit(SaleEventType, newSaleEvent(listingAddr, &listing))
	return nil
}

// ExpireListing returns the stake of an unfilled listing to its seller once
// the deadline has passed. Anyone may submit it
func (i *ExpireListing) execute(c *instructionContext) error {
	if i.Seller.IsZero() {
		return malformed("missing seller")
	}
	var ring Tanistry
	if err := c.expectLoad(i.Tanistry, &ring); err != nil {
		return err
	}
	listingAddr := common.SaleAddress(i.Tanistry, i.Seller)
	var listing OutsideBuyerRecord
	if err := c.expectLoad(listingAddr, &listing); err != nil {
		return err
	}
	listingHolding := c.hold(listingAddr, listing.Mint)
	if err := c.expect(listingHolding); err != nil {
		return err
	}
	ringHolding := c.hold(i.Tanistry, listing.Mint)
	if err := c.expect(ringHolding); err != nil {
		return err
	}
	recordAddr := common.CandidateAddress(i.Tanistry, i.Seller)
	var rec CandidateLimitRecord
	if err := c.expectLoad(recordAddr, &rec); err != nil {
		return err
	}
	if listing.Status != ListingStatusOpen {
		return stateError("listing is %s", listing.Status)
	}
	if c.now < listing.Deadline {
		return stateError("listing is open until %d", listing.Deadline)
	}
	if rec.Refunded {
		return stateError("seller stake was already refunded")
	}
	amount, err := addAmount(rec.Amount, listing.Amount, "candidate stake")
	if err != nil {
		return err
	}
	total, err := addAmount(ring.Total, listing.Amount, "ring total")
	if err != nil {
		return err
	}
	if err := c.transfer(listingHolding, ringHolding, listing.Amount); err != nil {
		return err
	}
	rec.Amount = amount
	ring.Total = total
	listing.Status = ListingStatusExpired
	if err := c.store(listingAddr, &listing); err != nil {
		return err
	}
	if err := c.store(recordAddr, &rec); err != nil {
		return err
	}
	if err := c.store(i.Tanistry, &ring); err != nil {
		return err
	}
	c.emit(SaleEventType, newSaleEvent(listingAddr, &listing))
	c.emit(CandidateEventType, newCandidateEvent(recordAddr, &rec))
	return nil
}
