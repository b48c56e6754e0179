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
	"fmt"
	"testing"

	"github.com/blinklabs-io/shihon/ledger/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMembers(count int) []common.Identity {
	ret := make([]common.Identity, 0, count)
	for i := range count {
		ret = append(ret, common.IdentityFromSeed(fmt.Sprintf("member-%d", i)))
	}
	return ret
}

func TestShufflePairerInvariants(t *testing.T) {
	pairer := ShufflePairer{}
	for count := range 12 {
		t.Run(fmt.Sprintf("members-%d", count), func(t *testing.T) {
			members := testMembers(count)
			seed := common.NewHash([]byte(fmt.Sprintf("seed-%d", count)))
			pairs := pairer.Pairs(seed, members)
			require.Len(t, pairs, count/2)
			seen := make(map[common.Identity]bool)
			for _, pair := range pairs {
				assert.NotEqual(t, pair.Rater, pair.Buddy)
				assert.False(t, seen[pair.Rater])
				assert.False(t, seen[pair.Buddy])
				seen[pair.Rater] = true
				seen[pair.Buddy] = true
				assert.False(t, pair.Mixed)
				assert.False(t, pair.Resolved)
			}
			for id := range seen {
				assert.Contains(t, members, id)
			}
		})
	}
}

func TestShufflePairerDeterministic(t *testing.T) {
	pairer := ShufflePairer{}
	members := testMembers(8)
	seed := common.NewHash([]byte("round"))
	first := pairer.Pairs(seed, members)
	assert.Equal(t, first, pairer.Pairs(seed, members))
	// The input order is left untouched
	assert.Equal(t, testMembers(8), members)
	// Different seeds reshuffle the members
	differs := false
	for i := range 8 {
		other := pairer.Pairs(common.NewHash([]byte(fmt.Sprintf("round-%d", i))), members)
		if fmt.Sprint(other) != fmt.Sprint(first) {
			differs = true
			break
		}
	}
	assert.True(t, differs)
}

func TestSeedStreamIntn(t *testing.T) {
	stream := newSeedStream(common.NewHash([]byte("stream")))
	counts := make([]int, 5)
	for range 5000 {
		v := stream.intn(5)
		require.Less(t, v, uint64(5))
		counts[v]++
	}
	for _, count := range counts {
		// Loose bounds around the expected 1000
		assert.Greater(t, count, 800)
		assert.Less(t, count, 1200)
	}
	assert.Equal(t, uint64(0), stream.intn(1))
	assert.Equal(t, uint64(0), stream.intn(0))
	a := newSeedStream(common.NewHash([]byte("same")))
	b := newSeedStream(common.NewHash([]byte("same")))
	for range 10 {
		assert.Equal(t, a.uint64(), b.uint64())
	}
}
