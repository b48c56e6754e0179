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

package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/blinklabs-io/shihon/custody"
	"github.com/blinklabs-io/shihon/database"
	"github.com/blinklabs-io/shihon/event"
	"github.com/blinklabs-io/shihon/ledger"
	"github.com/blinklabs-io/shihon/ledger/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingCustody fails every transfer of failAmount while armed
type failingCustody struct {
	custody.Custody
	armed      bool
	failAmount uint64
}

func (f *failingCustody) Transfer(
	src, dst common.Address,
	amount uint64,
	txn *database.Txn,
) error {
	if f.armed && amount == f.failAmount {
		return custody.ErrInsufficientFunds
	}
	return f.Custody.Transfer(src, dst, amount, txn)
}

func TestRollbackOnCustodyFailure(t *testing.T) {
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	failing := &failingCustody{Custody: custody.New(db, nil, nil)}
	l := newTestLedger(t, func(cfg *ledger.LedgerStateConfig) {
		cfg.Database = db
		cfg.Custody = failing
	})
	ringAddr := l.openRing(0)
	l.join(ringAddr, candidateX, 100)
	l.join(ringAddr, candidateY, 120)
	l.mustSubmit(
		&ledger.MixContent{Tanistry: ringAddr, Rater: candidateX, Buddy: candidateY, Link: "l"},
		candidateX,
		candidateY,
	)
	l.mustSubmit(&ledger.RateOtherContent{Tanistry: ringAddr, Rating: 50}, candidateX)
	l.mustSubmit(&ledger.ListForSale{Tanistry: ringAddr, Amount: 30, Price: 45}, candidateY)
	l.fund(outsider, 100)
	sellerBefore := l.wallet(candidateY)
	fingerprint := l.ring(ringAddr).Fingerprint
	// The price moves first, then the listed stake fails to move
	failing.armed = true
	failing.failAmount = 30
	err = l.submit(&ledger.Buy{Tanistry: ringAddr, Seller: candidateY, Amount: 30}, outsider)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	assert.Equal(t, uint64(100), l.wallet(outsider))
	assert.Equal(t, sellerBefore, l.wallet(candidateY))
	listing, err := l.ls.Listing(ringAddr, candidateY)
	require.NoError(t, err)
	assert.Equal(t, ledger.ListingStatusOpen, listing.Status)
	assert.Equal(t, fingerprint, l.ring(ringAddr).Fingerprint)
	open, err := l.ls.Listings(ringAddr, true)
	require.NoError(t, err)
	assert.Len(t, open, 1)
	failing.armed = false
	l.mustSubmit(&ledger.Buy{Tanistry: ringAddr, Seller: candidateY, Amount: 30}, outsider)
	assert.Equal(t, sellerBefore+45, l.wallet(candidateY))
}

func nextEvent(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		require.FailNow(t, "timed out waiting for event")
	}
	return event.Event{}
}

func TestLedgerEvents(t *testing.T) {
	bus := event.NewEventBus(nil, nil)
	defer bus.Stop()
	_, roundCh := bus.Subscribe(ledger.RoundEventType)
	_, errCh := bus.Subscribe(ledger.LedgerErrorEventType)
	_, escrowCh := bus.Subscribe(ledger.EscrowEventType)
	l := newTestLedger(t, func(cfg *ledger.LedgerStateConfig) {
		cfg.EventBus = bus
	})
	ringAddr := l.openRing(0)
	evt := nextEvent(t, escrowCh)
	escrowEvt, ok := evt.Data.(ledger.EscrowEvent)
	require.True(t, ok)
	assert.Equal(t, ledger.EscrowStatusPending, escrowEvt.Status)
	evt = nextEvent(t, escrowCh)
	escrowEvt, ok = evt.Data.(ledger.EscrowEvent)
	require.True(t, ok)
	assert.Equal(t, ledger.EscrowStatusAccepted, escrowEvt.Status)
	l.join(ringAddr, candidateX, 100)
	l.join(ringAddr, candidateY, 100)
	evt = nextEvent(t, roundCh)
	roundEvt, ok := evt.Data.(ledger.RoundEvent)
	require.True(t, ok)
	assert.Equal(t, ringAddr, roundEvt.Tanistry)
	assert.Equal(t, uint64(0), roundEvt.Round)
	assert.Equal(t, l.ring(ringAddr).Pairs, roundEvt.Pairs)
	// Rejections are published as well
	err := l.submit(&ledger.BumpSelfStake{Tanistry: ringAddr, Amount: 10}, outsider)
	require.Error(t, err)
	evt = nextEvent(t, errCh)
	errEvt, ok := evt.Data.(ledger.LedgerErrorEvent)
	require.True(t, ok)
	assert.Equal(t, ledger.OpcodeBumpSelfStake, errEvt.Opcode)
	require.ErrorIs(t, errEvt.Error, ledger.ErrStateViolation)
}

func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metricLoop:
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if want, ok := labels[label.GetName()]; ok && want != label.GetValue() {
					continue metricLoop
				}
			}
			if metric.GetCounter() != nil {
				return metric.GetCounter().GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	return 0
}

func TestSimulatedTransfersNotCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := newTestLedger(t, func(cfg *ledger.LedgerStateConfig) {
		cfg.PromRegistry = reg
	})
	ringAddr := l.openRing(0)
	applied := metricValue(t, reg, "shihon_custody_transfers_total", nil)
	require.Positive(t, applied)
	l.publishToken(candidateX, tokenName(candidateX), 0)
	l.fund(candidateX, 100)
	join := &ledger.Candidate{Tanistry: ringAddr, Token: tokenName(candidateX), Amount: 100}
	_, err := l.ls.Prepare(context.Background(), []common.Identity{candidateX}, l.now, join)
	require.NoError(t, err)
	assert.InDelta(t, applied, metricValue(t, reg, "shihon_custody_transfers_total", nil), 0)
	// A rejected request rolls its transfers back
	err = l.submit(&ledger.Candidate{Tanistry: ringAddr, Token: tokenName(candidateX), Amount: 500}, candidateX)
	require.Error(t, err)
	assert.InDelta(t, applied, metricValue(t, reg, "shihon_custody_transfers_total", nil), 0)
	l.mustSubmit(join, candidateX)
	assert.InDelta(t, applied+1, metricValue(t, reg, "shihon_custody_transfers_total", nil), 0)
}

func TestLedgerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := newTestLedger(t, func(cfg *ledger.LedgerStateConfig) {
		cfg.PromRegistry = reg
	})
	ringAddr := l.openRing(0)
	l.join(ringAddr, candidateX, 100)
	l.join(ringAddr, candidateY, 100)
	err := l.submit(&ledger.DraftContentToken{Name: "alpha"}, kicker)
	require.Error(t, err)
	assert.InDelta(t, 1, metricValue(t, reg, "shihon_ledger_rings_opened_total", nil), 0)
	assert.InDelta(t, 1, metricValue(t, reg, "shihon_ledger_rounds_opened_total", nil), 0)
	assert.InDelta(
		t,
		2,
		metricValue(
			t,
			reg,
			"shihon_ledger_instructions_total",
			map[string]string{"opcode": "Candidate", "outcome": "applied"},
		),
		0,
	)
	assert.InDelta(
		t,
		1,
		metricValue(
			t,
			reg,
			"shihon_ledger_errors_total",
			map[string]string{"kind": ledger.ErrorKindState},
		),
		0,
	)
	assert.InDelta(t, float64(l.now), metricValue(t, reg, "shihon_ledger_clock_seconds", nil), 0)
	assert.Positive(t, metricValue(t, reg, "shihon_custody_transfers_total", nil))
}
