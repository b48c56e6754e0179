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
	"errors"

	"github.com/blinklabs-io/shihon/custody"
)

// Error kinds. Every error returned by Apply for a rejected instruction
// wraps exactly one of these
var (
	ErrMalformedRequest   = errors.New("malformed request")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrStateViolation     = errors.New("state violation")
	ErrAddressMismatch    = errors.New("address mismatch")
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrDeadlineExpired    = errors.New("deadline expired")
)

var (
	ErrRecordNotFound    = errors.New("record not found")
	ErrRecordExists      = errors.New("record already exists")
	ErrUnknownOpcode     = errors.New("unknown opcode")
	ErrUndeclaredAccount = errors.New("account not declared by request")
	ErrWrongRecordType   = errors.New("wrong record type")
	ErrClockRegression   = errors.New("timestamp earlier than ledger clock")
	ErrHoldingMismatch   = errors.New("holding balance does not match recorded stake")
)

const (
	ErrorKindMalformed = "malformed-request"
	ErrorKindAuth      = "authorization"
	ErrorKindState     = "state-violation"
	ErrorKindAddress   = "address-mismatch"
	ErrorKindOverflow  = "arithmetic-overflow"
	ErrorKindDeadline  = "deadline-expired"
	ErrorKindInternal  = "internal"
)

// ErrorKind returns the kind label of an error returned by Apply
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedRequest):
		return ErrorKindMalformed
	case errors.Is(err, ErrUnauthorized):
		return ErrorKindAuth
	case errors.Is(err, ErrAddressMismatch):
		return ErrorKindAddress
	case errors.Is(err, ErrArithmeticOverflow):
		return ErrorKindOverflow
	case errors.Is(err, ErrDeadlineExpired):
		return ErrorKindDeadline
	case errors.Is(err, ErrStateViolation):
		return ErrorKindState
	default:
		return ErrorKindInternal
	}
}

// custodyError classifies a custody failure into a ledger error kind
func custodyError(err error) error {
	switch {
	case errors.Is(err, custody.ErrInsufficientFunds):
		return errors.Join(ErrStateViolation, err)
	case errors.Is(err, custody.ErrBalanceOverflow):
		return errors.Join(ErrArithmeticOverflow, err)
	default:
		return err
	}
}
