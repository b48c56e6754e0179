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
	"fmt"
	"testing"
	"time"

	"github.com/blinklabs-io/shihon/ledger"
	"github.com/blinklabs-io/shihon/ledger/common"
	"github.com/stretchr/testify/require"
)

const testStartTime = 1_700_000_000

var (
	kicker      = common.IdentityFromSeed("kicker")
	coordinator = common.IdentityFromSeed("coordinator")
	candidateX  = common.IdentityFromSeed("candidate-x")
	candidateY  = common.IdentityFromSeed("candidate-y")
	candidateZ  = common.IdentityFromSeed("candidate-z")
	candidateW  = common.IdentityFromSeed("candidate-w")
	outsider    = common.IdentityFromSeed("outsider")
)

type testLedger struct {
	t   *testing.T
	ls  *ledger.LedgerState
	now int64
}

func newTestLedger(t *testing.T, opts ...func(*ledger.LedgerStateConfig)) *testLedger {
	t.Helper()
	cfg := ledger.LedgerStateConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	ls, err := ledger.NewLedgerState(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ls.Close()
	})
	return &testLedger{
		t:   t,
		ls:  ls,
		now: testStartTime,
	}
}

func withParams(params ledger.Params) func(*ledger.LedgerStateConfig) {
	return func(cfg *ledger.LedgerStateConfig) {
		cfg.Params = &params
	}
}

func (l *testLedger) advance(d time.Duration) {
	l.now += int64(d / time.Second)
}

func (l *testLedger) submit(instr ledger.Instruction, signers ...common.Identity) error {
	return l.ls.Submit(context.Background(), signers, l.now, instr)
}

func (l *testLedger) mustSubmit(instr ledger.Instruction, signers ...common.Identity) {
	l.t.Helper()
	require.NoError(l.t, l.submit(instr, signers...), "%s", instr.Opcode())
}

func (l *testLedger) fund(id common.Identity, amount uint64) {
	l.t.Helper()
	require.NoError(l.t, l.ls.Fund(context.Background(), id, common.Address{}, amount))
}

func (l *testLedger) wallet(id common.Identity) uint64 {
	l.t.Helper()
	balance, err := l.ls.WalletBalance(id, l.ls.Params().StakeMint)
	require.NoError(l.t, err)
	return balance
}

func (l *testLedger) holding(owner common.Address) uint64 {
	l.t.Helper()
	balance, err := l.ls.Balance(common.HoldingAddress(owner, l.ls.Params().StakeMint))
	require.NoError(l.t, err)
	return balance
}

func (l *testLedger) ring(addr common.Address) *ledger.Tanistry {
	l.t.Helper()
	ring, err := l.ls.Tanistry(addr)
	require.NoError(l.t, err)
	return ring
}

func (l *testLedger) candidate(ring common.Address, id common.Identity) *ledger.CandidateLimitRecord {
	l.t.Helper()
	rec, err := l.ls.CandidateRecord(ring, id)
	require.NoError(l.t, err)
	return rec
}

// publishToken funds owner with deposit and publishes a public token
func (l *testLedger) publishToken(owner common.Identity, name string, deposit uint64) {
	l.t.Helper()
	if deposit > 0 {
		l.fund(owner, deposit)
	}
	l.mustSubmit(&ledger.DraftContentToken{Name: name}, owner)
	l.mustSubmit(
		&ledger.PublishContentToken{
			Name:    name,
			Public:  true,
			Uri:     "ipfs://" + name,
			Deposit: deposit,
		},
		owner,
	)
}

// openRing publishes "alpha" with a deposit of 1000, escrows 500 toward the
// coordinator and approves it
func (l *testLedger) openRing(ringCap uint64) common.Address {
	l.t.Helper()
	l.publishToken(kicker, "alpha", 1000)
	l.fund(kicker, 500)
	l.mustSubmit(
		&ledger.KickToCoordinator{
			Token:       "alpha",
			Coordinator: coordinator,
			Amount:      500,
		},
		kicker,
	)
	l.mustSubmit(
		&ledger.ApproveEscrow{
			Kicker:  kicker,
			Message: "welcome",
			Cap:     ringCap,
		},
		coordinator,
	)
	return ringAddress(kicker, coordinator, 0)
}

func ringAddress(k, c common.Identity, generation uint64) common.Address {
	return common.TanistryAddress(common.EscrowAddress(k, c), generation)
}

// join publishes a token for a candidate and stakes amount in the ring
func (l *testLedger) join(ring common.Address, id common.Identity, amount uint64) {
	l.t.Helper()
	name := tokenName(id)
	l.publishToken(id, name, 0)
	l.fund(id, amount)
	l.mustSubmit(
		&ledger.Candidate{
			Tanistry: ring,
			Token:    name,
			Amount:   amount,
		},
		id,
	)
}

func tokenName(id common.Identity) string {
	return fmt.Sprintf("token-%s", id.String()[:8])
}

// playRound mixes and rates every pair of the current round with rating
func (l *testLedger) playRound(ring common.Address, rating uint64) {
	l.t.Helper()
	state := l.ring(ring)
	round := state.Round
	for _, pair := range state.Pairs {
		l.mustSubmit(
			&ledger.MixContent{
				Tanistry: ring,
				Round:    round,
				Rater:    pair.Rater,
				Buddy:    pair.Buddy,
				Link:     fmt.Sprintf("link-%d", round),
			},
			pair.Rater,
			pair.Buddy,
		)
		l.mustSubmit(
			&ledger.RateOtherContent{
				Tanistry: ring,
				Round:    round,
				Rating:   rating,
			},
			pair.Rater,
		)
	}
	require.Equal(l.t, round+1, l.ring(ring).Round)
}

func (l *testLedger) verifyHoldings(ring common.Address) {
	l.t.Helper()
	require.NoError(l.t, l.ls.VerifyHoldings(ring))
}
