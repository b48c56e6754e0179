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

	"github.com/blinklabs-io/shihon/ledger"
	"github.com/blinklabs-io/shihon/ledger/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentTokenLifecycle(t *testing.T) {
	l := newTestLedger(t)
	l.fund(kicker, 1500)
	l.mustSubmit(&ledger.DraftContentToken{Name: "alpha"}, kicker)
	token, err := l.ls.ContentToken("alpha")
	require.NoError(t, err)
	assert.Equal(t, ledger.TokenStateDraft, token.State)
	assert.Equal(t, kicker, token.Owner)
	assert.Equal(t, l.ls.Params().StakeMint, token.Mint)
	// Names are unique
	err = l.submit(&ledger.DraftContentToken{Name: "alpha"}, coordinator)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	require.ErrorIs(t, err, ledger.ErrRecordExists)
	l.mustSubmit(&ledger.PublishContentToken{Name: "alpha", Deposit: 400}, kicker)
	token, err = l.ls.ContentToken("alpha")
	require.NoError(t, err)
	assert.Equal(t, ledger.TokenStatePrivate, token.State)
	assert.Equal(t, uint64(400), token.Stake)
	l.mustSubmit(
		&ledger.PublishContentToken{Name: "alpha", Public: true, Uri: "ipfs://alpha", Deposit: 600},
		kicker,
	)
	token, err = l.ls.ContentToken("alpha")
	require.NoError(t, err)
	assert.Equal(t, ledger.TokenStatePublic, token.State)
	assert.Equal(t, uint64(1000), token.Stake)
	assert.Equal(t, common.NewHash([]byte("ipfs://alpha")), token.Fingerprint)
	assert.Equal(t, uint64(500), l.wallet(kicker))
	assert.Equal(t, uint64(1000), l.holding(common.BcTokenAddress("alpha")))
	// Public tokens can no longer be published or discarded
	err = l.submit(&ledger.PublishContentToken{Name: "alpha", Public: true}, kicker)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	err = l.submit(&ledger.DiscardContentToken{Name: "alpha"}, kicker)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	tokens, err := l.ls.ContentTokensByOwner(kicker)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "alpha", tokens[0].Name)
}

func TestDiscardContentToken(t *testing.T) {
	l := newTestLedger(t)
	l.fund(kicker, 300)
	l.mustSubmit(&ledger.DraftContentToken{Name: "beta"}, kicker)
	l.mustSubmit(&ledger.PublishContentToken{Name: "beta", Deposit: 300}, kicker)
	assert.Equal(t, uint64(0), l.wallet(kicker))
	err := l.submit(&ledger.DiscardContentToken{Name: "beta"}, coordinator)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	l.mustSubmit(&ledger.DiscardContentToken{Name: "beta"}, kicker)
	token, err := l.ls.ContentToken("beta")
	require.NoError(t, err)
	assert.Equal(t, ledger.TokenStateCancelled, token.State)
	assert.Equal(t, uint64(300), l.wallet(kicker))
	// Discarded names stay taken
	err = l.submit(&ledger.DraftContentToken{Name: "beta"}, kicker)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	err = l.submit(&ledger.DiscardContentToken{Name: "beta"}, kicker)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
}

func TestTokenAuthority(t *testing.T) {
	l := newTestLedger(t)
	l.mustSubmit(&ledger.DraftContentToken{Name: "gamma", Authority: coordinator}, kicker)
	err := l.submit(&ledger.PublishContentToken{Name: "gamma", Public: true}, outsider)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	l.mustSubmit(&ledger.PublishContentToken{Name: "gamma", Public: true}, coordinator)
	token, err := l.ls.ContentToken("gamma")
	require.NoError(t, err)
	assert.Equal(t, ledger.TokenStatePublic, token.State)
}

func TestDraftValidation(t *testing.T) {
	l := newTestLedger(t)
	err := l.submit(&ledger.DraftContentToken{Name: "nosigner"})
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	err = l.submit(&ledger.DraftContentToken{Name: ""}, kicker)
	require.ErrorIs(t, err, ledger.ErrMalformedRequest)
	long := make([]byte, ledger.MaxTokenNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	err = l.submit(&ledger.DraftContentToken{Name: string(long)}, kicker)
	require.ErrorIs(t, err, ledger.ErrMalformedRequest)
}

func TestEscrowApproval(t *testing.T) {
	l := newTestLedger(t)
	l.publishToken(kicker, "alpha", 1000)
	token, err := l.ls.ContentToken("alpha")
	require.NoError(t, err)
	require.Equal(t, ledger.TokenStatePublic, token.State)
	l.fund(kicker, 500)
	l.mustSubmit(
		&ledger.KickToCoordinator{Token: "alpha", Coordinator: coordinator, Amount: 500},
		kicker,
	)
	esc, err := l.ls.Escrow(kicker, coordinator)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), esc.Amount)
	assert.False(t, esc.KickedOff)
	assert.Equal(t, ledger.EscrowStatusPending, esc.Status)
	assert.Equal(t, uint64(0), l.wallet(kicker))
	assert.Equal(t, uint64(500), l.holding(common.EscrowAddress(kicker, coordinator)))
	// Only the named coordinator approves
	err = l.submit(&ledger.ApproveEscrow{Kicker: kicker, Coordinator: coordinator}, outsider)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	l.mustSubmit(&ledger.ApproveEscrow{Kicker: kicker}, coordinator)
	esc, err = l.ls.Escrow(kicker, coordinator)
	require.NoError(t, err)
	assert.True(t, esc.KickedOff)
	assert.Equal(t, ledger.EscrowStatusAccepted, esc.Status)
	ringAddr := ringAddress(kicker, coordinator, 0)
	assert.Equal(t, ringAddr, esc.Tanistry)
	ring := l.ring(ringAddr)
	assert.Equal(t, uint64(0), ring.Total)
	assert.Empty(t, ring.Candidates)
	assert.Equal(t, ledger.TokenStateCandidateEnabled, ring.State)
	assert.Equal(t, kicker, ring.Kicker)
	assert.Equal(t, coordinator, ring.Coordinator)
	assert.False(t, ring.Fingerprint.IsZero())
	token, err = l.ls.ContentToken("alpha")
	require.NoError(t, err)
	assert.Equal(t, ledger.TokenStateCandidateEnabled, token.State)
	// Resolved escrows are terminal
	err = l.submit(&ledger.ApproveEscrow{Kicker: kicker}, coordinator)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	err = l.submit(&ledger.DenyEscrow{Kicker: kicker}, coordinator)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	esc, err = l.ls.Escrow(kicker, coordinator)
	require.NoError(t, err)
	assert.True(t, esc.KickedOff)
	// The accepted escrow stays live until the ring is crowned
	l.publishToken(kicker, "alpha2", 0)
	l.fund(kicker, 10)
	err = l.submit(
		&ledger.KickToCoordinator{Token: "alpha2", Coordinator: coordinator, Amount: 10},
		kicker,
	)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	rings, err := l.ls.Tanistries()
	require.NoError(t, err)
	assert.Equal(t, []common.Address{ringAddr}, rings)
}

func TestEscrowDenial(t *testing.T) {
	l := newTestLedger(t)
	l.publishToken(kicker, "alpha", 0)
	l.fund(kicker, 500)
	l.mustSubmit(
		&ledger.KickToCoordinator{Token: "alpha", Coordinator: coordinator, Amount: 500},
		kicker,
	)
	err := l.submit(&ledger.DenyEscrow{Kicker: kicker, Coordinator: coordinator}, kicker)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	l.mustSubmit(&ledger.DenyEscrow{Kicker: kicker}, coordinator)
	esc, err := l.ls.Escrow(kicker, coordinator)
	require.NoError(t, err)
	assert.Equal(t, ledger.EscrowStatusDenied, esc.Status)
	assert.False(t, esc.KickedOff)
	assert.Equal(t, uint64(500), l.wallet(kicker))
	_, err = l.ls.Tanistry(ringAddress(kicker, coordinator, 0))
	require.ErrorIs(t, err, ledger.ErrRecordNotFound)
	err = l.submit(&ledger.DenyEscrow{Kicker: kicker}, coordinator)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	err = l.submit(&ledger.ApproveEscrow{Kicker: kicker}, coordinator)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	// A denied pair may be kicked again
	l.fund(kicker, 100)
	l.mustSubmit(
		&ledger.KickToCoordinator{Token: "alpha", Coordinator: coordinator, Amount: 100},
		kicker,
	)
	esc, err = l.ls.Escrow(kicker, coordinator)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), esc.Generation)
	assert.Equal(t, ledger.EscrowStatusPending, esc.Status)
}

func TestKickValidation(t *testing.T) {
	l := newTestLedger(t)
	l.fund(kicker, 1000)
	l.mustSubmit(&ledger.DraftContentToken{Name: "draft"}, kicker)
	err := l.submit(
		&ledger.KickToCoordinator{Token: "draft", Coordinator: coordinator, Amount: 10},
		kicker,
	)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	l.publishToken(kicker, "alpha", 0)
	testDefs := []struct {
		name   string
		instr  *ledger.KickToCoordinator
		signer common.Identity
		err    error
	}{
		{
			name:   "zero amount",
			instr:  &ledger.KickToCoordinator{Token: "alpha", Coordinator: coordinator},
			signer: kicker,
			err:    ledger.ErrMalformedRequest,
		},
		{
			name:   "self coordination",
			instr:  &ledger.KickToCoordinator{Token: "alpha", Coordinator: kicker, Amount: 1},
			signer: kicker,
			err:    ledger.ErrMalformedRequest,
		},
		{
			name:   "foreign token",
			instr:  &ledger.KickToCoordinator{Token: "alpha", Coordinator: coordinator, Amount: 1},
			signer: outsider,
			err:    ledger.ErrUnauthorized,
		},
		{
			name:   "insufficient funds",
			instr:  &ledger.KickToCoordinator{Token: "alpha", Coordinator: coordinator, Amount: 5000},
			signer: kicker,
			err:    ledger.ErrStateViolation,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			err := l.submit(testDef.instr, testDef.signer)
			require.ErrorIs(t, err, testDef.err)
			_, err = l.ls.Escrow(testDef.signer, testDef.instr.Coordinator)
			require.ErrorIs(t, err, ledger.ErrRecordNotFound)
		})
	}
	assert.Equal(t, uint64(1000), l.wallet(kicker))
}

func TestEscrowExpiry(t *testing.T) {
	l := newTestLedger(t)
	l.publishToken(kicker, "alpha", 0)
	l.fund(kicker, 800)
	l.mustSubmit(
		&ledger.KickToCoordinator{Token: "alpha", Coordinator: coordinator, Amount: 500},
		kicker,
	)
	// A live escrow blocks a second kick for the same pair
	err := l.submit(
		&ledger.KickToCoordinator{Token: "alpha", Coordinator: coordinator, Amount: 100},
		kicker,
	)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	l.advance(ledger.DefaultEscrowTTL)
	err = l.submit(&ledger.ApproveEscrow{Kicker: kicker}, coordinator)
	require.ErrorIs(t, err, ledger.ErrDeadlineExpired)
	// The expired offer is refunded when the pair is kicked again
	l.mustSubmit(
		&ledger.KickToCoordinator{Token: "alpha", Coordinator: coordinator, Amount: 100},
		kicker,
	)
	esc, err := l.ls.Escrow(kicker, coordinator)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), esc.Generation)
	assert.Equal(t, uint64(100), esc.Amount)
	assert.Equal(t, uint64(700), l.wallet(kicker))
	assert.Equal(t, uint64(100), l.holding(common.EscrowAddress(kicker, coordinator)))
	l.mustSubmit(&ledger.ApproveEscrow{Kicker: kicker}, coordinator)
	ring := l.ring(ringAddress(kicker, coordinator, 1))
	assert.Equal(t, uint64(1), ring.Generation)
}

func TestEscrowReclaim(t *testing.T) {
	l := newTestLedger(t)
	l.publishToken(kicker, "alpha", 0)
	l.fund(kicker, 500)
	l.mustSubmit(
		&ledger.KickToCoordinator{Token: "alpha", Coordinator: coordinator, Amount: 500},
		kicker,
	)
	reclaim := &ledger.DenyEscrow{Kicker: kicker, Coordinator: coordinator}
	// The coordinator has until the offer expires to answer
	l.advance(ledger.DefaultEscrowTTL - time.Second)
	require.ErrorIs(t, l.submit(reclaim, kicker), ledger.ErrUnauthorized)
	l.advance(time.Second)
	require.ErrorIs(t, l.submit(reclaim, outsider), ledger.ErrUnauthorized)
	l.mustSubmit(reclaim, kicker)
	esc, err := l.ls.Escrow(kicker, coordinator)
	require.NoError(t, err)
	assert.Equal(t, ledger.EscrowStatusRefunded, esc.Status)
	assert.Equal(t, uint64(500), l.wallet(kicker))
	assert.Equal(t, uint64(0), l.holding(common.EscrowAddress(kicker, coordinator)))
	require.ErrorIs(t, l.submit(reclaim, kicker), ledger.ErrStateViolation)
	require.ErrorIs(t, l.submit(&ledger.ApproveEscrow{Kicker: kicker}, coordinator), ledger.ErrStateViolation)
	// The pair may be kicked again without a second refund
	l.mustSubmit(
		&ledger.KickToCoordinator{Token: "alpha", Coordinator: coordinator, Amount: 200},
		kicker,
	)
	esc, err = l.ls.Escrow(kicker, coordinator)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), esc.Generation)
	assert.Equal(t, uint64(300), l.wallet(kicker))
	assert.Equal(t, uint64(200), l.holding(common.EscrowAddress(kicker, coordinator)))
}

func TestAdmissionCap(t *testing.T) {
	l := newTestLedger(t)
	ringAddr := l.openRing(300)
	l.join(ringAddr, candidateX, 200)
	ring := l.ring(ringAddr)
	assert.Equal(t, uint64(200), ring.Total)
	assert.Equal(t, []common.Identity{candidateX}, ring.Candidates)
	rec := l.candidate(ringAddr, candidateX)
	assert.Equal(t, uint32(0), rec.Sequence)
	assert.Equal(t, uint64(200), rec.Amount)
	token, err := l.ls.ContentToken(tokenName(candidateX))
	require.NoError(t, err)
	assert.Equal(t, ledger.TokenStateCandidateEnabled, token.State)
	// Y would push the ring past its cap
	l.publishToken(candidateY, tokenName(candidateY), 0)
	l.fund(candidateY, 150)
	err = l.submit(
		&ledger.Candidate{Tanistry: ringAddr, Token: tokenName(candidateY), Amount: 150},
		candidateY,
	)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	assert.Equal(t, uint64(200), l.ring(ringAddr).Total)
	assert.Equal(t, uint64(150), l.wallet(candidateY))
	assert.Equal(t, uint64(200), l.holding(ringAddr))
	_, err = l.ls.CandidateRecord(ringAddr, candidateY)
	require.ErrorIs(t, err, ledger.ErrRecordNotFound)
	l.verifyHoldings(ringAddr)
}

func TestAdmissionRules(t *testing.T) {
	params := ledger.DefaultParams()
	params.MaxCandidates = 3
	l := newTestLedger(t, withParams(params))
	ringAddr := l.openRing(0)
	l.publishToken(coordinator, "coord", 0)
	l.fund(coordinator, 10)
	err := l.submit(&ledger.Candidate{Tanistry: ringAddr, Token: "coord", Amount: 10}, coordinator)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	l.publishToken(kicker, "kick", 0)
	err = l.submit(&ledger.Candidate{Tanistry: ringAddr, Token: "kick", Amount: 10}, kicker)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	l.fund(candidateX, 10)
	l.mustSubmit(&ledger.DraftContentToken{Name: "xdraft"}, candidateX)
	err = l.submit(&ledger.Candidate{Tanistry: ringAddr, Token: "xdraft", Amount: 10}, candidateX)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	err = l.submit(&ledger.Candidate{Tanistry: ringAddr, Token: "xdraft"}, candidateX)
	require.ErrorIs(t, err, ledger.ErrMalformedRequest)
	l.join(ringAddr, candidateX, 10)
	// Candidates join once
	l.publishToken(candidateX, "xsecond", 0)
	l.fund(candidateX, 10)
	err = l.submit(&ledger.Candidate{Tanistry: ringAddr, Token: "xsecond", Amount: 10}, candidateX)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	l.join(ringAddr, candidateY, 20)
	l.join(ringAddr, candidateZ, 30)
	l.publishToken(candidateW, tokenName(candidateW), 0)
	l.fund(candidateW, 40)
	err = l.submit(
		&ledger.Candidate{Tanistry: ringAddr, Token: tokenName(candidateW), Amount: 40},
		candidateW,
	)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	candidates, err := l.ls.Candidates(ringAddr)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	seen := make(map[uint32]bool)
	for idx, rec := range candidates {
		assert.Equal(t, uint32(idx), rec.Sequence) // #nosec G115
		assert.False(t, seen[rec.Sequence])
		seen[rec.Sequence] = true
	}
	l.verifyHoldings(ringAddr)
}

func TestRingStartsAtMinCandidates(t *testing.T) {
	l := newTestLedger(t)
	ringAddr := l.openRing(0)
	l.join(ringAddr, candidateX, 100)
	ring := l.ring(ringAddr)
	assert.Equal(t, ledger.TokenStateCandidateEnabled, ring.State)
	assert.Empty(t, ring.Pairs)
	l.join(ringAddr, candidateY, 100)
	ring = l.ring(ringAddr)
	assert.Equal(t, ledger.TokenStateTanistrySet, ring.State)
	assert.Equal(t, uint64(0), ring.Round)
	assert.Equal(t, l.now, ring.RoundOpenedAt)
	require.Len(t, ring.Pairs, 1)
	pair := ring.Pairs[0]
	assert.NotEqual(t, pair.Rater, pair.Buddy)
	assert.ElementsMatch(
		t,
		[]common.Identity{candidateX, candidateY},
		[]common.Identity{pair.Rater, pair.Buddy},
	)
	token, err := l.ls.ContentToken("alpha")
	require.NoError(t, err)
	assert.Equal(t, ledger.TokenStateTanistrySet, token.State)
}

func TestBumpSelfStake(t *testing.T) {
	l := newTestLedger(t)
	ringAddr := l.openRing(500)
	l.join(ringAddr, candidateX, 200)
	l.fund(candidateX, 500)
	l.mustSubmit(&ledger.BumpSelfStake{Tanistry: ringAddr, Amount: 350}, candidateX)
	assert.Equal(t, uint64(350), l.candidate(ringAddr, candidateX).Amount)
	assert.Equal(t, uint64(350), l.wallet(candidateX))
	err := l.submit(&ledger.BumpSelfStake{Tanistry: ringAddr, Amount: 600}, candidateX)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	l.mustSubmit(&ledger.BumpSelfStake{Tanistry: ringAddr, Amount: 50}, candidateX)
	assert.Equal(t, uint64(50), l.candidate(ringAddr, candidateX).Amount)
	assert.Equal(t, uint64(650), l.wallet(candidateX))
	assert.Equal(t, uint64(50), l.ring(ringAddr).Total)
	err = l.submit(&ledger.BumpSelfStake{Tanistry: ringAddr, Amount: 10}, candidateY)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	err = l.submit(&ledger.BumpSelfStake{Tanistry: ringAddr}, candidateX)
	require.ErrorIs(t, err, ledger.ErrMalformedRequest)
	l.verifyHoldings(ringAddr)
}

// mixRateRing runs the mix and rate scenario on a fresh ledger and returns
// the ring fingerprint after the rating
func mixRateRing(t *testing.T) (*testLedger, common.Address) {
	l := newTestLedger(t)
	ringAddr := l.openRing(0)
	l.join(ringAddr, candidateX, 100)
	l.join(ringAddr, candidateY, 100)
	l.mustSubmit(
		&ledger.MixContent{
			Tanistry: ringAddr,
			Rater:    candidateX,
			Buddy:    candidateY,
			Link:     "link1",
		},
		candidateX,
		candidateY,
	)
	return l, ringAddr
}

func TestMixAndRate(t *testing.T) {
	l, ringAddr := mixRateRing(t)
	mix, err := l.ls.MixRecord(ringAddr, 0, candidateX)
	require.NoError(t, err)
	assert.Equal(t, candidateX, mix.Rater)
	assert.Equal(t, candidateY, mix.Buddy)
	assert.Equal(t, "link1", mix.Link)
	assert.Equal(t, ledger.MixOutcomeUnresolved, mix.Outcome)
	before := l.ring(ringAddr)
	// The ceiling bounds every rating
	err = l.submit(
		&ledger.RateOtherContent{Tanistry: ringAddr, Rating: ledger.DefaultRatingCeiling + 1},
		candidateX,
	)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	// Only the rater rates
	err = l.submit(&ledger.RateOtherContent{Tanistry: ringAddr, Rating: 50}, candidateY)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	l.mustSubmit(&ledger.RateOtherContent{Tanistry: ringAddr, Rating: 50}, candidateX)
	mixAddr := common.MixAddress(ringAddr, 0, candidateX)
	rate, err := l.ls.RateRecord(mixAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), rate.Rating)
	assert.Equal(t, mixAddr, rate.Mix)
	mix, err = l.ls.MixRecord(ringAddr, 0, candidateX)
	require.NoError(t, err)
	assert.Equal(t, ledger.MixOutcomeSucceeded, mix.Outcome)
	after := l.ring(ringAddr)
	assert.Equal(t, before.Round+1, after.Round)
	assert.NotEqual(t, before.Fingerprint, after.Fingerprint)
	assert.Equal(t, uint64(50), l.candidate(ringAddr, candidateY).RatingTotal)
	// A resolved mix is never rated again
	err = l.submit(&ledger.RateOtherContent{Tanistry: ringAddr, Rating: 10}, candidateX)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	// The same inputs reproduce the same fingerprint
	l2, ringAddr2 := mixRateRing(t)
	require.Equal(t, ringAddr, ringAddr2)
	l2.mustSubmit(&ledger.RateOtherContent{Tanistry: ringAddr, Rating: 50}, candidateX)
	assert.Equal(t, after.Fingerprint, l2.ring(ringAddr).Fingerprint)
	l3, _ := mixRateRing(t)
	l3.mustSubmit(&ledger.RateOtherContent{Tanistry: ringAddr, Rating: 49}, candidateX)
	mix, err = l3.ls.MixRecord(ringAddr, 0, candidateX)
	require.NoError(t, err)
	assert.Equal(t, ledger.MixOutcomeDefeated, mix.Outcome)
	assert.NotEqual(t, after.Fingerprint, l3.ring(ringAddr).Fingerprint)
}

func TestMixValidation(t *testing.T) {
	l := newTestLedger(t)
	ringAddr := l.openRing(0)
	l.join(ringAddr, candidateX, 100)
	mix := &ledger.MixContent{
		Tanistry: ringAddr,
		Rater:    candidateX,
		Buddy:    candidateY,
		Link:     "link",
	}
	// Rounds have not started yet
	err := l.submit(mix, candidateX, candidateY)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	l.join(ringAddr, candidateY, 100)
	err = l.submit(mix, candidateX)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	err = l.submit(
		&ledger.MixContent{Tanistry: ringAddr, Rater: candidateX, Buddy: candidateX, Link: "x"},
		candidateX,
	)
	require.ErrorIs(t, err, ledger.ErrMalformedRequest)
	err = l.submit(
		&ledger.MixContent{Tanistry: ringAddr, Rater: candidateX, Buddy: candidateY},
		candidateX,
		candidateY,
	)
	require.ErrorIs(t, err, ledger.ErrMalformedRequest)
	err = l.submit(
		&ledger.MixContent{Tanistry: ringAddr, Round: 3, Rater: candidateX, Buddy: candidateY, Link: "x"},
		candidateX,
		candidateY,
	)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	// Pairs are unordered until mixed
	l.mustSubmit(
		&ledger.MixContent{Tanistry: ringAddr, Rater: candidateY, Buddy: candidateX, Link: "y"},
		candidateX,
		candidateY,
	)
	err = l.submit(mix, candidateX, candidateY)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	ring := l.ring(ringAddr)
	require.Len(t, ring.Pairs, 1)
	assert.Equal(t, candidateY, ring.Pairs[0].Rater)
	assert.True(t, ring.Pairs[0].Mixed)
}

func TestRatingOrderWithinRound(t *testing.T) {
	setup := func() (*testLedger, common.Address) {
		l := newTestLedger(t)
		ringAddr := l.openRing(0)
		l.join(ringAddr, candidateX, 100)
		l.join(ringAddr, candidateY, 100)
		l.join(ringAddr, candidateZ, 100)
		l.join(ringAddr, candidateW, 100)
		// Z and W joined after round 0 was paired
		l.playRound(ringAddr, 60)
		ring := l.ring(ringAddr)
		require.Len(t, ring.Pairs, 2)
		for _, pair := range ring.Pairs {
			l.mustSubmit(
				&ledger.MixContent{
					Tanistry: ringAddr,
					Round:    ring.Round,
					Rater:    pair.Rater,
					Buddy:    pair.Buddy,
					Link:     "shared",
				},
				pair.Rater,
				pair.Buddy,
			)
		}
		return l, ringAddr
	}
	rateAll := func(l *testLedger, ringAddr common.Address, reverse bool) *ledger.Tanistry {
		ring := l.ring(ringAddr)
		ratings := map[common.Identity]uint64{
			ring.Pairs[0].Rater: 30,
			ring.Pairs[1].Rater: 70,
		}
		pairs := ring.Pairs
		if reverse {
			pairs = []ledger.Pair{pairs[1], pairs[0]}
		}
		for _, pair := range pairs {
			l.mustSubmit(
				&ledger.RateOtherContent{
					Tanistry: ringAddr,
					Round:    ring.Round,
					Rating:   ratings[pair.Rater],
				},
				pair.Rater,
			)
		}
		return l.ring(ringAddr)
	}
	l1, ringAddr := setup()
	l2, _ := setup()
	ring1 := rateAll(l1, ringAddr, false)
	ring2 := rateAll(l2, ringAddr, true)
	assert.Equal(t, ring1.Round, ring2.Round)
	assert.Equal(t, ring1.Fingerprint, ring2.Fingerprint)
	assert.Equal(t, ring1.Pairs, ring2.Pairs)
}

func TestRoundWaitsForEveryPair(t *testing.T) {
	l := newTestLedger(t)
	ringAddr := l.openRing(0)
	l.join(ringAddr, candidateX, 100)
	l.join(ringAddr, candidateY, 100)
	l.join(ringAddr, candidateZ, 100)
	l.join(ringAddr, candidateW, 100)
	l.playRound(ringAddr, 60)
	ring := l.ring(ringAddr)
	require.Equal(t, uint64(1), ring.Round)
	require.Len(t, ring.Pairs, 2)
	for _, pair := range ring.Pairs {
		l.mustSubmit(
			&ledger.MixContent{
				Tanistry: ringAddr,
				Round:    1,
				Rater:    pair.Rater,
				Buddy:    pair.Buddy,
				Link:     "shared",
			},
			pair.Rater,
			pair.Buddy,
		)
	}
	first, second := ring.Pairs[0], ring.Pairs[1]
	l.mustSubmit(&ledger.RateOtherContent{Tanistry: ringAddr, Round: 1, Rating: 20}, first.Rater)
	// One resolved pair leaves the round open
	mid := l.ring(ringAddr)
	assert.Equal(t, uint64(1), mid.Round)
	assert.True(t, mid.Pairs[0].Resolved)
	assert.False(t, mid.Pairs[1].Resolved)
	assert.Equal(t, ring.RoundOpenedAt, mid.RoundOpenedAt)
	// The second rater still rates in the same round
	err := l.submit(&ledger.RateOtherContent{Tanistry: ringAddr, Round: 2, Rating: 80}, second.Rater)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	l.mustSubmit(&ledger.RateOtherContent{Tanistry: ringAddr, Round: 1, Rating: 80}, second.Rater)
	done := l.ring(ringAddr)
	assert.Equal(t, uint64(2), done.Round)
	require.Len(t, done.Pairs, 2)
	for _, pair := range done.Pairs {
		assert.False(t, pair.Resolved)
		assert.False(t, pair.Mixed)
	}
}

func TestCloseRoundForfeits(t *testing.T) {
	l := newTestLedger(t)
	ringAddr := l.openRing(0)
	l.join(ringAddr, candidateX, 100)
	l.join(ringAddr, candidateY, 100)
	closeRound := func(round uint64) error {
		return l.submit(&ledger.CloseRound{Tanistry: ringAddr, Round: round}, outsider)
	}
	// Nobody mixes in round 0
	start := l.ring(ringAddr)
	require.ErrorIs(t, closeRound(0), ledger.ErrStateViolation)
	l.advance(ledger.DefaultRoundDuration - time.Second)
	require.ErrorIs(t, closeRound(0), ledger.ErrStateViolation)
	l.advance(time.Second)
	require.ErrorIs(t, closeRound(1), ledger.ErrStateViolation)
	require.NoError(t, closeRound(0))
	ring := l.ring(ringAddr)
	assert.Equal(t, uint64(1), ring.Round)
	assert.NotEqual(t, start.Fingerprint, ring.Fingerprint)
	assert.Equal(t, start.RoundOpenedAt+int64(ledger.DefaultRoundDuration/time.Second), ring.RoundOpenedAt)
	require.Len(t, ring.Pairs, 1)
	assert.False(t, ring.Pairs[0].Resolved)
	_, err := l.ls.MixRecord(ringAddr, 0, candidateX)
	require.Error(t, err)
	require.ErrorIs(t, closeRound(1), ledger.ErrStateViolation)
	// Round 1 is mixed but never rated
	pair := ring.Pairs[0]
	l.mustSubmit(
		&ledger.MixContent{Tanistry: ringAddr, Round: 1, Rater: pair.Rater, Buddy: pair.Buddy, Link: "late"},
		pair.Rater,
		pair.Buddy,
	)
	l.advance(ledger.DefaultRoundDuration)
	require.NoError(t, closeRound(1))
	mix, err := l.ls.MixRecord(ringAddr, 1, pair.Rater)
	require.NoError(t, err)
	assert.Equal(t, ledger.MixOutcomeDefeated, mix.Outcome)
	_, err = l.ls.RateRecord(common.MixAddress(ringAddr, 1, pair.Rater))
	require.Error(t, err)
	assert.Equal(t, uint64(0), l.candidate(ringAddr, pair.Buddy).RatingTotal)
	err = l.submit(&ledger.RateOtherContent{Tanistry: ringAddr, Round: 1, Rating: 90}, pair.Rater)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	assert.Equal(t, uint64(2), l.ring(ringAddr).Round)
	// Idle rounds still lead to a crowning and the stakes come back
	for round := uint64(2); round < ledger.DefaultCrowningMinRounds; round++ {
		l.advance(ledger.DefaultRoundDuration)
		require.NoError(t, closeRound(round))
	}
	l.mustSubmit(&ledger.Crowning{Tanistry: ringAddr, NewCoordinator: candidateX}, coordinator)
	l.mustSubmit(&ledger.ClaimRefund{Tanistry: ringAddr, Token: tokenName(candidateX)}, candidateX)
	l.mustSubmit(&ledger.ClaimRefund{Tanistry: ringAddr, Token: tokenName(candidateY)}, candidateY)
	assert.Equal(t, uint64(100), l.wallet(candidateY))
	assert.Equal(t, uint64(0), l.holding(ringAddr))
	l.verifyHoldings(ringAddr)
}

func TestCloseRoundFingerprint(t *testing.T) {
	// Forfeits fold deterministically and never look like a rating
	run := func() *ledger.Tanistry {
		l := newTestLedger(t)
		ringAddr := l.openRing(0)
		l.join(ringAddr, candidateX, 100)
		l.join(ringAddr, candidateY, 100)
		l.advance(ledger.DefaultRoundDuration)
		l.mustSubmit(&ledger.CloseRound{Tanistry: ringAddr}, candidateX)
		return l.ring(ringAddr)
	}
	assert.Equal(t, run().Fingerprint, run().Fingerprint)
	rated, ringAddr := mixRateRing(t)
	rated.mustSubmit(&ledger.RateOtherContent{Tanistry: ringAddr, Rating: 50}, candidateX)
	assert.NotEqual(t, run().Fingerprint, rated.ring(ringAddr).Fingerprint)
}

func TestResaleListingExpires(t *testing.T) {
	l := newTestLedger(t)
	ringAddr := l.openRing(0)
	l.join(ringAddr, candidateX, 100)
	l.join(ringAddr, candidateY, 120)
	l.mustSubmit(
		&ledger.MixContent{Tanistry: ringAddr, Rater: candidateX, Buddy: candidateY, Link: "l"},
		candidateX,
		candidateY,
	)
	l.mustSubmit(&ledger.RateOtherContent{Tanistry: ringAddr, Rating: 50}, candidateX)
	// Effective stake 170 leaves a surplus of 70 over the resale threshold
	err := l.submit(&ledger.ListForSale{Tanistry: ringAddr, Amount: 71}, candidateY)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	err = l.submit(&ledger.ListForSale{Tanistry: ringAddr, Amount: 10}, candidateX)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	l.mustSubmit(&ledger.ListForSale{Tanistry: ringAddr, Amount: 30}, candidateY)
	listing, err := l.ls.Listing(ringAddr, candidateY)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), listing.Amount)
	assert.Equal(t, ledger.ListingStatusOpen, listing.Status)
	ring := l.ring(ringAddr)
	assert.Equal(t, ring.RoundOpenedAt+int64(ledger.DefaultRoundDuration/time.Second), listing.Deadline)
	assert.Equal(t, uint64(90), l.candidate(ringAddr, candidateY).Amount)
	l.verifyHoldings(ringAddr)
	err = l.submit(&ledger.ListForSale{Tanistry: ringAddr, Amount: 5}, candidateY)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	// Nobody buys before the deadline
	err = l.submit(&ledger.ExpireListing{Tanistry: ringAddr, Seller: candidateY}, outsider)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	l.now = listing.Deadline
	l.fund(outsider, 100)
	err = l.submit(&ledger.Buy{Tanistry: ringAddr, Seller: candidateY, Amount: 30}, outsider)
	require.ErrorIs(t, err, ledger.ErrDeadlineExpired)
	assert.Equal(t, uint64(100), l.wallet(outsider))
	l.mustSubmit(&ledger.ExpireListing{Tanistry: ringAddr, Seller: candidateY}, outsider)
	assert.Equal(t, uint64(120), l.candidate(ringAddr, candidateY).Amount)
	listing, err = l.ls.Listing(ringAddr, candidateY)
	require.NoError(t, err)
	assert.Equal(t, ledger.ListingStatusExpired, listing.Status)
	open, err := l.ls.Listings(ringAddr, true)
	require.NoError(t, err)
	assert.Empty(t, open)
	l.verifyHoldings(ringAddr)
}

func TestResaleBuy(t *testing.T) {
	l := newTestLedger(t)
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
	before := l.ring(ringAddr).Fingerprint
	l.fund(outsider, 100)
	err := l.submit(&ledger.Buy{Tanistry: ringAddr, Seller: candidateY, Amount: 20}, outsider)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	l.fund(candidateX, 100)
	err = l.submit(&ledger.Buy{Tanistry: ringAddr, Seller: candidateY, Amount: 30}, candidateX)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	sellerBefore := l.wallet(candidateY)
	l.mustSubmit(&ledger.Buy{Tanistry: ringAddr, Seller: candidateY, Amount: 30}, outsider)
	assert.Equal(t, uint64(100-45+30), l.wallet(outsider))
	assert.Equal(t, sellerBefore+45, l.wallet(candidateY))
	listing, err := l.ls.Listing(ringAddr, candidateY)
	require.NoError(t, err)
	assert.Equal(t, ledger.ListingStatusFilled, listing.Status)
	assert.Equal(t, outsider, listing.Buyer)
	assert.Equal(t, uint64(90), l.candidate(ringAddr, candidateY).Amount)
	assert.NotEqual(t, before, l.ring(ringAddr).Fingerprint)
	err = l.submit(&ledger.Buy{Tanistry: ringAddr, Seller: candidateY, Amount: 30}, outsider)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	all, err := l.ls.Listings(ringAddr, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	l.verifyHoldings(ringAddr)
}

func TestCrowningAndRefund(t *testing.T) {
	l := newTestLedger(t)
	ringAddr := l.openRing(0)
	l.join(ringAddr, candidateX, 100)
	l.join(ringAddr, candidateY, 200)
	crown := &ledger.Crowning{Tanistry: ringAddr, NewCoordinator: candidateY}
	err := l.submit(crown, coordinator)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	for range ledger.DefaultCrowningMinRounds {
		l.playRound(ringAddr, 40)
	}
	err = l.submit(crown, candidateY)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	err = l.submit(&ledger.Crowning{Tanistry: ringAddr, NewCoordinator: outsider}, coordinator)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	// Refunds wait for the ring to be sealed
	err = l.submit(&ledger.ClaimRefund{Tanistry: ringAddr, Token: tokenName(candidateX)}, candidateX)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	before := l.ring(ringAddr).Fingerprint
	l.mustSubmit(crown, coordinator)
	ring := l.ring(ringAddr)
	assert.Equal(t, ledger.TokenStateRefundable, ring.State)
	assert.Equal(t, candidateY, ring.Crown)
	assert.NotEqual(t, before, ring.Fingerprint)
	esc, err := l.ls.Escrow(kicker, coordinator)
	require.NoError(t, err)
	assert.Equal(t, ledger.EscrowStatusSettled, esc.Status)
	assert.Equal(t, uint64(500), l.wallet(candidateY))
	assert.Equal(t, uint64(0), l.holding(common.EscrowAddress(kicker, coordinator)))
	token, err := l.ls.ContentToken("alpha")
	require.NoError(t, err)
	assert.Equal(t, ledger.TokenStateRefundable, token.State)
	err = l.submit(crown, coordinator)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	// Candidates withdraw their stake
	l.mustSubmit(&ledger.ClaimRefund{Tanistry: ringAddr, Token: tokenName(candidateX)}, candidateX)
	assert.Equal(t, uint64(100), l.wallet(candidateX))
	rec := l.candidate(ringAddr, candidateX)
	assert.True(t, rec.Refunded)
	assert.Equal(t, uint64(0), rec.Amount)
	l.verifyHoldings(ringAddr)
	err = l.submit(&ledger.ClaimRefund{Tanistry: ringAddr, Token: tokenName(candidateX)}, candidateX)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	err = l.submit(&ledger.ClaimRefund{Tanistry: ringAddr, Token: tokenName(candidateX)}, outsider)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	l.mustSubmit(&ledger.ClaimRefund{Tanistry: ringAddr, Token: tokenName(candidateY)}, candidateY)
	assert.Equal(t, uint64(700), l.wallet(candidateY))
	assert.Equal(t, uint64(0), l.holding(ringAddr))
	l.verifyHoldings(ringAddr)
	// The kicker reclaims the token deposit once
	l.mustSubmit(&ledger.ClaimRefund{Tanistry: ringAddr, Token: "alpha"}, kicker)
	assert.Equal(t, uint64(1000), l.wallet(kicker))
	err = l.submit(&ledger.ClaimRefund{Tanistry: ringAddr, Token: "alpha"}, kicker)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
}

func TestCrownContinuesRing(t *testing.T) {
	l := newTestLedger(t)
	ringAddr := l.openRing(0)
	l.join(ringAddr, candidateX, 100)
	l.join(ringAddr, candidateY, 100)
	for range ledger.DefaultCrowningMinRounds {
		l.playRound(ringAddr, 70)
	}
	l.mustSubmit(&ledger.Crowning{Tanistry: ringAddr, NewCoordinator: candidateX}, coordinator)
	l.publishToken(candidateX, "next", 0)
	l.fund(candidateX, 200)
	l.fund(candidateY, 50)
	l.publishToken(candidateY, "other", 0)
	// Only the crown continues a sealed ring
	err := l.submit(
		&ledger.KickToCoordinator{Token: "other", Coordinator: outsider, Amount: 50, Predecessor: ringAddr},
		candidateY,
	)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	l.mustSubmit(
		&ledger.KickToCoordinator{Token: "next", Coordinator: outsider, Amount: 200, Predecessor: ringAddr},
		candidateX,
	)
	l.mustSubmit(&ledger.ApproveEscrow{Kicker: candidateX}, outsider)
	nextAddr := ringAddress(candidateX, outsider, 0)
	next := l.ring(nextAddr)
	assert.Equal(t, ringAddr, next.Predecessor)
	assert.Equal(t, nextAddr, l.ring(ringAddr).Successor)
	assert.Equal(t, candidateX, next.Kicker)
}

func voteParams() ledger.Params {
	params := ledger.DefaultParams()
	params.CrowningMinRounds = 1
	params.VoteRoundThreshold = 2
	return params
}

func TestChallengeVote(t *testing.T) {
	l := newTestLedger(t, withParams(voteParams()))
	ringAddr := l.openRing(0)
	l.join(ringAddr, candidateX, 300)
	l.join(ringAddr, candidateY, 100)
	altA := ringAddress(outsider, kicker, 0)
	altB := ringAddress(outsider, coordinator, 0)
	pull := &ledger.VoteForChallenge{
		Tanistry: ringAddr,
		Kind:     ledger.VoteKindPull,
		Choices:  []common.Address{altA, altB},
	}
	err := l.submit(pull, candidateX)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	l.playRound(ringAddr, 0)
	l.playRound(ringAddr, 0)
	ring := l.ring(ringAddr)
	require.Equal(t, ledger.TokenStateVoteEnabled, ring.State)
	token, err := l.ls.ContentToken("alpha")
	require.NoError(t, err)
	assert.Equal(t, ledger.TokenStateVoteEnabled, token.State)
	testDefs := []struct {
		name  string
		instr *ledger.VoteForChallenge
	}{
		{
			name:  "push with choices",
			instr: &ledger.VoteForChallenge{Tanistry: ringAddr, Kind: ledger.VoteKindPush, Choices: []common.Address{altA}},
		},
		{
			name:  "pull without choices",
			instr: &ledger.VoteForChallenge{Tanistry: ringAddr, Kind: ledger.VoteKindPull},
		},
		{
			name:  "pull for itself",
			instr: &ledger.VoteForChallenge{Tanistry: ringAddr, Kind: ledger.VoteKindPull, Choices: []common.Address{ringAddr}},
		},
		{
			name:  "duplicate choices",
			instr: &ledger.VoteForChallenge{Tanistry: ringAddr, Kind: ledger.VoteKindPull, Choices: []common.Address{altA, altA}},
		},
		{
			name: "too many choices",
			instr: &ledger.VoteForChallenge{
				Tanistry: ringAddr,
				Kind:     ledger.VoteKindPull,
				Choices: func() []common.Address {
					var ret []common.Address
					for i := range ledger.MaxPullChoices + 1 {
						ret = append(ret, ringAddress(outsider, kicker, uint64(i))) // #nosec G115
					}
					return ret
				}(),
			},
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			err := l.submit(testDef.instr, candidateX)
			require.ErrorIs(t, err, ledger.ErrMalformedRequest)
		})
	}
	l.mustSubmit(pull, candidateX)
	vote, err := l.ls.Vote(ringAddr, 0, candidateX)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), vote.Weight)
	assert.Equal(t, altA, vote.Target)
	assert.Equal(t, []common.Identity{candidateX}, l.ring(ringAddr).Voters)
	err = l.submit(pull, candidateX)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	err = l.submit(&ledger.VoteForChallenge{Tanistry: ringAddr, Kind: ledger.VoteKindPush}, outsider)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	// The epoch tallies after its deadline
	finalize := &ledger.FinalizeChallenge{Tanistry: ringAddr}
	err = l.submit(finalize, outsider)
	require.ErrorIs(t, err, ledger.ErrStateViolation)
	l.advance(ledger.DefaultVoteEpochLength)
	err = l.submit(&ledger.VoteForChallenge{Tanistry: ringAddr, Kind: ledger.VoteKindPush}, candidateY)
	require.ErrorIs(t, err, ledger.ErrDeadlineExpired)
	l.mustSubmit(finalize, outsider)
	ring = l.ring(ringAddr)
	assert.Equal(t, ledger.ChallengeOutcomeRedirect, ring.Outcome)
	assert.Equal(t, altA, ring.OutcomeTarget)
	assert.Equal(t, uint64(0), ring.OutcomeEpoch)
	assert.Equal(t, uint64(1), ring.VoteEpoch)
	assert.Equal(t, l.now, ring.VoteOpenedAt)
	// Voters cast a fresh vote in the next epoch
	l.mustSubmit(&ledger.VoteForChallenge{Tanistry: ringAddr, Kind: ledger.VoteKindPush}, candidateX)
	vote, err = l.ls.Vote(ringAddr, 1, candidateX)
	require.NoError(t, err)
	assert.Equal(t, ledger.VoteKindPush, vote.Kind)
	l.advance(ledger.DefaultVoteEpochLength)
	l.mustSubmit(finalize, outsider)
	ring = l.ring(ringAddr)
	assert.Equal(t, ledger.ChallengeOutcomeStay, ring.Outcome)
	assert.Equal(t, uint64(1), ring.OutcomeEpoch)
}

func TestFinalizeDeclaresVotes(t *testing.T) {
	l := newTestLedger(t, withParams(voteParams()))
	ctx := context.Background()
	ringAddr := l.openRing(0)
	l.join(ringAddr, candidateX, 100)
	l.join(ringAddr, candidateY, 250)
	l.playRound(ringAddr, 0)
	l.playRound(ringAddr, 0)
	alt := ringAddress(outsider, kicker, 0)
	l.mustSubmit(&ledger.VoteForChallenge{Tanistry: ringAddr, Kind: ledger.VoteKindPush}, candidateX)
	l.mustSubmit(
		&ledger.VoteForChallenge{Tanistry: ringAddr, Kind: ledger.VoteKindPull, Choices: []common.Address{alt}},
		candidateY,
	)
	votes, err := l.ls.Votes(ringAddr, 0)
	require.NoError(t, err)
	require.Len(t, votes, 2)
	l.advance(ledger.DefaultVoteEpochLength)
	req, err := l.ls.Prepare(
		ctx,
		[]common.Identity{outsider},
		l.now,
		&ledger.FinalizeChallenge{Tanistry: ringAddr},
	)
	require.NoError(t, err)
	require.Equal(
		t,
		[]common.Address{
			ringAddr,
			common.VoteAddress(ringAddr, 0, candidateX),
			common.VoteAddress(ringAddr, 0, candidateY),
		},
		req.Accounts,
	)
	// Leaving out a vote is refused rather than tallied without it
	missing := req
	missing.Accounts = req.Accounts[:2]
	require.ErrorIs(t, l.ls.Apply(ctx, missing), ledger.ErrMalformedRequest)
	swapped := req
	swapped.Accounts = []common.Address{req.Accounts[0], req.Accounts[2], req.Accounts[1]}
	require.ErrorIs(t, l.ls.Apply(ctx, swapped), ledger.ErrAddressMismatch)
	require.NoError(t, l.ls.Apply(ctx, req))
	ring := l.ring(ringAddr)
	assert.Equal(t, ledger.ChallengeOutcomeRedirect, ring.Outcome)
	assert.Equal(t, alt, ring.OutcomeTarget)
	assert.Empty(t, ring.Voters)
	assert.Equal(t, uint64(1), ring.VoteEpoch)
	// An empty epoch declares the ring alone
	l.advance(ledger.DefaultVoteEpochLength)
	req, err = l.ls.Prepare(ctx, []common.Identity{outsider}, l.now, &ledger.FinalizeChallenge{Tanistry: ringAddr})
	require.NoError(t, err)
	assert.Equal(t, []common.Address{ringAddr}, req.Accounts)
}

func TestAccountDeclaration(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	l.fund(kicker, 100)
	l.mustSubmit(&ledger.DraftContentToken{Name: "alpha"}, kicker)
	req, err := l.ls.Prepare(
		ctx,
		[]common.Identity{kicker},
		l.now,
		&ledger.PublishContentToken{Name: "alpha", Public: true, Deposit: 100},
	)
	require.NoError(t, err)
	mint := l.ls.Params().StakeMint
	require.Equal(
		t,
		[]common.Address{
			common.BcTokenAddress("alpha"),
			common.WalletAddress(kicker, mint),
			common.HoldingAddress(common.BcTokenAddress("alpha"), mint),
		},
		req.Accounts,
	)
	tampered := req
	tampered.Accounts = []common.Address{
		common.BcTokenAddress("other"),
		req.Accounts[1],
		req.Accounts[2],
	}
	require.ErrorIs(t, l.ls.Apply(ctx, tampered), ledger.ErrAddressMismatch)
	missing := req
	missing.Accounts = req.Accounts[:2]
	require.ErrorIs(t, l.ls.Apply(ctx, missing), ledger.ErrMalformedRequest)
	trailing := req
	trailing.Accounts = append(append([]common.Address{}, req.Accounts...), common.BcTokenAddress("extra"))
	require.ErrorIs(t, l.ls.Apply(ctx, trailing), ledger.ErrMalformedRequest)
	token, err := l.ls.ContentToken("alpha")
	require.NoError(t, err)
	assert.Equal(t, ledger.TokenStateDraft, token.State)
	require.NoError(t, l.ls.Apply(ctx, req))
}

func TestMalformedRequests(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	req, err := ledger.NewRequest(
		[]common.Identity{kicker},
		l.now,
		&ledger.DraftContentToken{Name: "alpha"},
	)
	require.NoError(t, err)
	unknown := req
	unknown.Opcode = 200
	require.ErrorIs(t, l.ls.Apply(ctx, unknown), ledger.ErrMalformedRequest)
	garbage := req
	garbage.Data = []byte{0xff, 0x00}
	require.ErrorIs(t, l.ls.Apply(ctx, garbage), ledger.ErrMalformedRequest)
	untimed := req
	untimed.Timestamp = 0
	require.ErrorIs(t, l.ls.Apply(ctx, untimed), ledger.ErrMalformedRequest)
	l.mustSubmit(&ledger.DraftContentToken{Name: "alpha"}, kicker)
	clock, err := l.ls.Clock()
	require.NoError(t, err)
	assert.Equal(t, l.now, clock)
	err = l.ls.Submit(ctx, []common.Identity{kicker}, l.now-1, &ledger.DraftContentToken{Name: "beta"})
	require.ErrorIs(t, err, ledger.ErrMalformedRequest)
	require.ErrorIs(t, err, ledger.ErrClockRegression)
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, l.ls.Apply(cancelled, req), context.Canceled)
}
