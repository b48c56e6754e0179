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

// Tanistry indexes ring records so rings can be listed without a blob scan
type Tanistry struct {
	Address     []byte       `gorm:"uniqueIndex;size:32;not null"`
	Escrow      []byte       `gorm:"index;size:32;not null"`
	Kicker      []byte       `gorm:"index;size:32;not null"`
	Coordinator []byte       `gorm:"index;size:32;not null"`
	Crown       []byte       `gorm:"size:32"`
	Predecessor []byte       `gorm:"size:32"`
	Successor   []byte       `gorm:"size:32"`
	Total       types.Uint64 `gorm:"not null"`
	Cap         types.Uint64 `gorm:"not null"`
	Round       uint64       `gorm:"not null"`
	VoteEpoch   uint64       `gorm:"not null"`
	ID          uint         `gorm:"primarykey"`
	State       uint8        `gorm:"index;not null"`
}

func (Tanistry) TableName() string {
	return "tanistry"
}
