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
	"testing"

	"github.com/blinklabs-io/shihon/ledger/common"
	"github.com/stretchr/testify/assert"
)

func TestFoldFingerprintFieldBoundaries(t *testing.T) {
	prev := common.NewHash([]byte("prev"))
	a := foldFingerprint(prev, "rate", []byte("ab"), []byte("c"))
	b := foldFingerprint(prev, "rate", []byte("a"), []byte("bc"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, foldFingerprint(prev, "rate", []byte("ab"), []byte("c")))
	assert.NotEqual(t, a, foldFingerprint(prev, "sale", []byte("ab"), []byte("c")))
	assert.NotEqual(t, a, foldFingerprint(common.Hash{}, "rate", []byte("ab"), []byte("c")))
}

func TestFoldRatingCommutes(t *testing.T) {
	base := foldFingerprint(common.Hash{}, fingerprintTagOpen, []byte("ring"))
	newRing := func() *Tanistry {
		return &Tanistry{Fingerprint: base, RatingBase: base}
	}
	first := [][]byte{[]byte("x"), []byte("y"), uint64Bytes(40)}
	second := [][]byte{[]byte("z"), []byte("w"), uint64Bytes(70)}
	r1 := newRing()
	r1.foldRating(first...)
	r1.foldRating(second...)
	r2 := newRing()
	r2.foldRating(second...)
	r2.foldRating(first...)
	assert.Equal(t, r1.Fingerprint, r2.Fingerprint)
	assert.NotEqual(t, base, r1.Fingerprint)
	r3 := newRing()
	r3.foldRating(first...)
	r3.foldRating([]byte("z"), []byte("w"), uint64Bytes(71))
	assert.NotEqual(t, r1.Fingerprint, r3.Fingerprint)
}

func TestFoldEventOrderSensitive(t *testing.T) {
	base := foldFingerprint(common.Hash{}, fingerprintTagOpen, []byte("ring"))
	r1 := &Tanistry{Fingerprint: base, RatingBase: base}
	r1.foldRating([]byte("rating"))
	r1.foldEvent(fingerprintTagSale, []byte("a"))
	r1.foldEvent(fingerprintTagRefund, []byte("b"))
	r2 := &Tanistry{Fingerprint: base, RatingBase: base}
	r2.foldRating([]byte("rating"))
	r2.foldEvent(fingerprintTagRefund, []byte("b"))
	r2.foldEvent(fingerprintTagSale, []byte("a"))
	assert.NotEqual(t, r1.Fingerprint, r2.Fingerprint)
	// Events restart the rating accumulator
	assert.Equal(t, r1.Fingerprint, r1.RatingBase)
	assert.True(t, r1.RatingAcc.IsZero())
}

func TestRoundSeed(t *testing.T) {
	fingerprint := common.NewHash([]byte("fp"))
	assert.NotEqual(t, roundSeed(fingerprint, 0), roundSeed(fingerprint, 1))
	assert.Equal(t, roundSeed(fingerprint, 3), roundSeed(fingerprint, 3))
}
