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
	"time"

	"github.com/blinklabs-io/shihon/ledger/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParamsValid(t *testing.T) {
	params := DefaultParams()
	require.NoError(t, params.Validate())
	assert.Equal(t, common.MintAddress(DefaultStakeMintName), params.StakeMint)
	assert.Equal(t, int64(3600), seconds(params.RoundDuration))
}

func TestParamsValidate(t *testing.T) {
	testDefs := []struct {
		name   string
		modify func(*Params)
	}{
		{name: "no stake mint", modify: func(p *Params) { p.StakeMint = common.Address{} }},
		{name: "single candidate", modify: func(p *Params) { p.MinCandidates = 1 }},
		{name: "max below min", modify: func(p *Params) { p.MaxCandidates = 1 }},
		{name: "threshold above ceiling", modify: func(p *Params) { p.RatingThreshold = p.RatingCeiling + 1 }},
		{name: "votes before crowning", modify: func(p *Params) { p.VoteRoundThreshold = p.CrowningMinRounds }},
		{name: "sub-second epoch", modify: func(p *Params) { p.VoteEpochLength = time.Millisecond }},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			params := DefaultParams()
			testDef.modify(&params)
			require.Error(t, params.Validate())
		})
	}
}
