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
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/blake2b"
)

const (
	AddressLength = 32
	AddressHrp    = "shihon"

	namespacePrefix = "shihon/"
)

// Address namespaces
const (
	NamespaceIdentity  = "identity"
	NamespaceMint      = "mint"
	NamespaceBcToken   = "bctoken"
	NamespaceEscrow    = "escrow"
	NamespaceTanistry  = "tanistry"
	NamespaceCandidate = "candidate"
	NamespaceMix       = "mix"
	NamespaceRate      = "rate"
	NamespaceSale      = "sale"
	NamespaceVote      = "ccvote"
	NamespaceHolding   = "holding"
)

var ErrInvalidAddress = errors.New("invalid address")

// Address is the storage location of a record or custody holding
type Address [AddressLength]byte

// DeriveAddress hashes a namespace tag and the natural key parts of an entity.
// Every part is length-prefixed so that distinct part lists never collide
func DeriveAddress(namespace string, parts ...[]byte) Address {
	// blake2b.New256 only fails with an oversized key
	h, _ := blake2b.New256(nil)
	writePart(h, []byte(namespacePrefix+namespace))
	for _, part := range parts {
		writePart(h, part)
	}
	var ret Address
	copy(ret[:], h.Sum(nil))
	return ret
}

type writer interface {
	Write([]byte) (int, error)
}

func writePart(w writer, part []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(part))) // #nosec G115
	_, _ = w.Write(lenBuf[:])
	_, _ = w.Write(part)
}

func uint64Bytes(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the bech32 form of the address
func (a Address) String() string {
	convData, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		return ""
	}
	encoded, err := bech32.Encode(AddressHrp, convData)
	if err != nil {
		return ""
	}
	return encoded
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	tmp, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = tmp
	return nil
}

// ParseAddress decodes the bech32 form of an address
func ParseAddress(s string) (Address, error) {
	var ret Address
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return ret, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if hrp != AddressHrp {
		return ret, fmt.Errorf("%w: unexpected prefix %q", ErrInvalidAddress, hrp)
	}
	decoded, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return ret, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if len(decoded) != AddressLength {
		return ret, fmt.Errorf(
			"%w: expected %d bytes, got %d",
			ErrInvalidAddress,
			AddressLength,
			len(decoded),
		)
	}
	copy(ret[:], decoded)
	return ret, nil
}

// NewAddress copies raw address bytes, as read back from an index
func NewAddress(data []byte) (Address, error) {
	var ret Address
	if len(data) != AddressLength {
		return ret, fmt.Errorf(
			"%w: expected %d bytes, got %d",
			ErrInvalidAddress,
			AddressLength,
			len(data),
		)
	}
	copy(ret[:], data)
	return ret, nil
}

// IdentityAddress is the custody owner address of a participant
func IdentityAddress(id Identity) Address {
	return DeriveAddress(NamespaceIdentity, id[:])
}

// MintAddress derives the reference of a named token mint
func MintAddress(name string) Address {
	return DeriveAddress(NamespaceMint, []byte(name))
}

func BcTokenAddress(name string) Address {
	return DeriveAddress(NamespaceBcToken, []byte(name))
}

// EscrowAddress is keyed on the ordered (kicker, coordinator) pair
func EscrowAddress(kicker, coordinator Identity) Address {
	return DeriveAddress(NamespaceEscrow, kicker[:], coordinator[:])
}

func TanistryAddress(escrow Address, generation uint64) Address {
	return DeriveAddress(NamespaceTanistry, escrow[:], uint64Bytes(generation))
}

func CandidateAddress(tanistry Address, candidate Identity) Address {
	return DeriveAddress(NamespaceCandidate, tanistry[:], candidate[:])
}

func MixAddress(tanistry Address, round uint64, rater Identity) Address {
	return DeriveAddress(NamespaceMix, tanistry[:], uint64Bytes(round), rater[:])
}

func RateAddress(mix Address) Address {
	return DeriveAddress(NamespaceRate, mix[:])
}

func SaleAddress(tanistry Address, seller Identity) Address {
	return DeriveAddress(NamespaceSale, tanistry[:], seller[:])
}

func VoteAddress(tanistry Address, epoch uint64, voter Identity) Address {
	return DeriveAddress(NamespaceVote, tanistry[:], uint64Bytes(epoch), voter[:])
}

// HoldingAddress is the custody account holding tokens of a mint on behalf of an owner
func HoldingAddress(owner Address, mint Address) Address {
	return DeriveAddress(NamespaceHolding, owner[:], mint[:])
}

// WalletAddress is the holding of a participant for a mint
func WalletAddress(id Identity, mint Address) Address {
	return HoldingAddress(IdentityAddress(id), mint)
}
