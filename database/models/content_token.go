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

// ContentToken indexes BcToken records by owner and state
type ContentToken struct {
	Address []byte       `gorm:"uniqueIndex;size:32;not null"`
	Owner   []byte       `gorm:"index;size:32;not null"`
	Name    string       `gorm:"size:64;not null"`
	Stake   types.Uint64 `gorm:"not null"`
	ID      uint         `gorm:"primarykey"`
	State   uint8        `gorm:"index;not null"`
}

func (ContentToken) TableName() string {
	return "content_token"
}
