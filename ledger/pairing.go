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
	"math"
	"slices"

	"github.com/blinklabs-io/shihon/ledger/common"
	"golang.org/x/crypto/blake2b"
)

// Pairer selects the rater/buddy pairs of a round. Implementations must be
// deterministic in (seed, members), never pair a member with itself and
// place each member in at most one pair
type Pairer interface {
	Pairs(seed common.Hash, members []common.Identity) []Pair
}

// ShufflePairer shuffles the members with a Fisher-Yates shuffle driven by
// a blake2b stream keyed on the seed, then pairs neighbors. With an odd
// member count the last member of the shuffle sits the round out
type ShufflePairer struct{}

func (ShufflePairer) Pairs(seed common.Hash, members []common.Identity) []Pair {
	shuffled := slices.Clone(members)
	stream := newSeedStream(seed)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := stream.intn(uint64(i + 1)) // #nosec G115
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	pairs := make([]Pair, 0, len(shuffled)/2)
	for i := 0; i+1 < len(shuffled); i += 2 {
		pairs = append(pairs, Pair{
			Rater: shuffled[i],
			Buddy: shuffled[i+1],
		})
	}
	return pairs
}

// seedStream produces uniformly distributed integers from a seed. Block n
// of the stream is blake2b-256(seed || n)
type seedStream struct {
	seed    common.Hash
	counter uint64
	block   []byte
}

func newSeedStream(seed common.Hash) *seedStream {
	return &seedStream{seed: seed}
}

func (s *seedStream) uint64() uint64 {
	if len(s.block) < 8 {
		buf := make([]byte, 0, common.HashLength+8)
		buf = append(buf, s.seed[:]...)
		buf = binary.BigEndian.AppendUint64(buf, s.counter)
		sum := blake2b.Sum256(buf)
		s.block = sum[:]
		s.counter++
	}
	ret := binary.BigEndian.Uint64(s.block[:8])
	s.block = s.block[8:]
	return ret
}

// intn returns a value in [0, n) using rejection sampling to avoid modulo bias
func (s *seedStream) intn(n uint64) uint64 {
	if n <= 1 {
		return 0
	}
	limit := math.MaxUint64 - (math.MaxUint64 % n)
	for {
		v := s.uint64()
		if v < limit {
			return v % n
		}
	}
}
