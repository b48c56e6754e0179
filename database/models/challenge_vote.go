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

package models

import "github.com/blinklabs-io/shihon/database/types"

// ChallengeVote indexes votes by ring and epoch for tallying
type ChallengeVote struct {
	Address  []byte       `gorm:"uniqueIndex;size:32;not null"`
	Tanistry []byte       `gorm:"index:idx_challenge_vote_epoch,priority:1;size:32;not null"`
	Voter    []byte       `gorm:"size:32;not null"`
	Target   []byte       `gorm:"size:32"`
	Weight   types.Uint64 `gorm:"not null"`
	Epoch    uint64       `gorm:"index:idx_challenge_vote_epoch,priority:2;not null"`
	ID       uint         `gorm:"primarykey"`
	Kind     uint8        `gorm:"not null"`
}

func (ChallengeVote) TableName() string {
	return "challenge_vote"
}
