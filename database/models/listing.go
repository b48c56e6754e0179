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

// Listing status values mirror the ledger's listing lifecycle
const (
	ListingStatusOpen    = 0
	ListingStatusFilled  = 1
	ListingStatusExpired = 2
)

// Listing indexes secondary market listings of a ring
type Listing struct {
	Address  []byte       `gorm:"uniqueIndex;size:32;not null"`
	Tanistry []byte       `gorm:"index:idx_listing_status,priority:1;size:32;not null"`
	Seller   []byte       `gorm:"index;size:32;not null"`
	Buyer    []byte       `gorm:"size:32"`
	Amount   types.Uint64 `gorm:"not null"`
	Deadline int64        `gorm:"not null"`
	ID       uint         `gorm:"primarykey"`
	Status   uint8        `gorm:"index:idx_listing_status,priority:2;not null"`
}

func (Listing) TableName() string {
	return "listing"
}
