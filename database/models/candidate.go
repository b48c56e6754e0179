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

// Candidate indexes admission records of a ring in admission order
type Candidate struct {
	Address     []byte       `gorm:"uniqueIndex;size:32;not null"`
	Tanistry    []byte       `gorm:"uniqueIndex:idx_candidate_sequence,priority:1;size:32;not null"`
	Candidate   []byte       `gorm:"index;size:32;not null"`
	Amount      types.Uint64 `gorm:"not null"`
	RatingTotal types.Uint64 `gorm:"not null"`
	ID          uint         `gorm:"primarykey"`
	Sequence    uint32       `gorm:"uniqueIndex:idx_candidate_sequence,priority:2;not null"`
	Refunded    bool         `gorm:"not null;default:false"`
}

func (Candidate) TableName() string {
	return "candidate"
}
