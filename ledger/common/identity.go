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

package common

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const IdentityLength = 32

var ErrInvalidIdentity = errors.New("invalid identity")

// Identity is the public key of a participant
type Identity [IdentityLength]byte

func (i Identity) Bytes() []byte {
	return i[:]
}

func (i Identity) IsZero() bool {
	return i == Identity{}
}

func (i Identity) String() string {
	return base58.Encode(i[:])
}

func (i Identity) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Identity) UnmarshalText(text []byte) error {
	tmp, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*i = tmp
	return nil
}

func ParseIdentity(s string) (Identity, error) {
	var ret Identity
	data, err := base58.Decode(s)
	if err != nil {
		return ret, fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
	}
	if len(data) != IdentityLength {
		return ret, fmt.Errorf(
			"%w: expected %d bytes, got %d",
			ErrInvalidIdentity,
			IdentityLength,
			len(data),
		)
	}
	copy(ret[:], data)
	return ret, nil
}

// NewIdentity copies raw identity bytes, as read back from an index
func NewIdentity(data []byte) (Identity, error) {
	var ret Identity
	if len(data) != IdentityLength {
		return ret, fmt.Errorf(
			"%w: expected %d bytes, got %d",
			ErrInvalidIdentity,
			IdentityLength,
			len(data),
		)
	}
	copy(ret[:], data)
	return ret, nil
}

// IdentityFromSeed derives a stable identity from a human readable name.
// It is meant for development setups and tests
func IdentityFromSeed(seed string) Identity {
	return Identity(blake2b.Sum256([]byte("shihon/identity-seed/" + seed)))
}
