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
	"encoding/binary"
	"hash"

	"github.com/blinklabs-io/shihon/ledger/common"
	"golang.org/x/crypto/blake2b"
)

const fingerprintDomain = "shihon/fingerprint"

// Fingerprint event tags
const (
	fingerprintTagOpen    = "open"
	fingerprintTagRate    = "rate"
	fingerprintTagForfeit = "forfeit"
	fingerprintTagSale    = "sale"
	fingerprintTagCrown   = "crown"
	fingerprintTagRefund  = "refund"
)

// foldFingerprint chains an event into a fingerprint:
// F' = H(domain || F || tag || fields), with tag and fields length-prefixed
func foldFingerprint(prev common.Hash, tag string, fields ...[]byte) common.Hash {
	h := newFingerprintHash()
	_, _ = h.Write(prev[:])
	writeField(h, []byte(tag))
	for _, field := range fields {
		writeField(h, field)
	}
	var ret common.Hash
	copy(ret[:], h.Sum(nil))
	return ret
}

// ratingDigest hashes one rating resolution for the rating accumulator
func ratingDigest(fields ...[]byte) common.Hash {
	h := newFingerprintHash()
	writeField(h, []byte(fingerprintTagRate))
	for _, field := range fields {
		writeField(h, field)
	}
	var ret common.Hash
	copy(ret[:], h.Sum(nil))
	return ret
}

func newFingerprintHash() hash.Hash {
	// blake2b.New256 only fails with an oversized key
	h, _ := blake2b.New256(nil)
	_, _ = h.Write([]byte(fingerprintDomain))
	return h
}

func writeField(h hash.Hash, field []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field))) // #nosec G115
	_, _ = h.Write(lenBuf[:])
	_, _ = h.Write(field)
}

// foldEvent chains a custody-leaving event into the ring fingerprint and
// starts a new rating accumulator from the result
func (r *Tanistry) foldEvent(tag string, fields ...[]byte) {
	r.Fingerprint = foldFingerprint(r.Fingerprint, tag, fields...)
	r.RatingBase = r.Fingerprint
	r.RatingAcc = common.Hash{}
}

// foldRating adds a rating resolution to the accumulator. Resolutions
// between two custody-leaving events commute, so pairs of a round may be
// rated in any order and still yield the same fingerprint
func (r *Tanistry) foldRating(fields ...[]byte) {
	digest := ratingDigest(fields...)
	for i := range r.RatingAcc {
		r.RatingAcc[i] ^= digest[i]
	}
	r.Fingerprint = foldFingerprint(r.RatingBase, fingerprintTagRate, r.RatingAcc[:])
}

// roundSeed derives the pairing seed of a round from the ring fingerprint
func roundSeed(fingerprint common.Hash, round uint64) common.Hash {
	buf := make([]byte, 0, common.HashLength+8)
	buf = append(buf, fingerprint[:]...)
	buf = binary.BigEndian.AppendUint64(buf, round)
	return common.NewHash(buf)
}

func uint64Bytes(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}
