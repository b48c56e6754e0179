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

package types

import (
	"encoding/binary"
	"errors"
	"slices"
)

const (
	RecordBlobKeyPrefix  = "r"
	BalanceBlobKeyPrefix = "h"
	StateBlobKeyPrefix   = "s_"
	// AddressLength is the size of every ledger address used in blob keys
	AddressLength = 32
)

var ErrInvalidBlobKey = errors.New("invalid blob key")

func Uint64ToBytes(input uint64) []byte {
	ret := make([]byte, 8)
	binary.BigEndian.PutUint64(ret, input)
	return ret
}

func BytesToUint64(input []byte) uint64 {
	if len(input) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(input)
}

// RecordBlobKey returns the key holding the encoded record stored at an address
func RecordBlobKey(addr []byte) []byte {
	return slices.Concat([]byte(RecordBlobKeyPrefix), addr)
}

// BalanceBlobKey returns the key holding the balance of a custody holding
func BalanceBlobKey(holding []byte) []byte {
	return slices.Concat([]byte(BalanceBlobKeyPrefix), holding)
}

// StateBlobKey returns the key for a named piece of global ledger state
func StateBlobKey(name string) []byte {
	return []byte(StateBlobKeyPrefix + name)
}

// AddressFromBlobKey strips a one-byte prefix from a record or balance key
func AddressFromBlobKey(key []byte) ([]byte, error) {
	if len(key) != 1+AddressLength {
		return nil, ErrInvalidBlobKey
	}
	return slices.Clone(key[1:]), nil
}
