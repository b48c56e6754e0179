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
	"fmt"
	"math/bits"
	"slices"

	"github.com/blinklabs-io/shihon/database"
	"github.com/blinklabs-io/shihon/event"
	"github.com/blinklabs-io/shihon/ledger/common"
)

// instructionContext carries one instruction through its handler. Handlers
// declare every account they touch with expect() in request order. In
// simulation mode the expected accounts are recorded instead of checked
type instructionContext struct {
	ls       *LedgerState
	txn      *database.Txn
	req      *Request
	params   Params
	now      int64
	simulate bool
	accounts []common.Address
	events   []event.Event
}

// expect declares the next request account, which must equal want
func (c *instructionContext) expect(want common.Address) error {
	idx := len(c.accounts)
	if !c.simulate {
		if idx >= len(c.req.Accounts) {
			return fmt.Errorf(
				"%w: missing account %d (%s)",
				ErrMalformedRequest,
				idx,
				want.String(),
			)
		}
		if c.req.Accounts[idx] != want {
			return fmt.Errorf(
				"%w: account %d is %s, expected %s",
				ErrAddressMismatch,
				idx,
				c.req.Accounts[idx].String(),
				want.String(),
			)
		}
	}
	c.accounts = append(c.accounts, want)
	return nil
}

// finish rejects accounts the handler never declared
func (c *instructionContext) finish() error {
	if c.simulate {
		return nil
	}
	if len(c.req.Accounts) > len(c.accounts) {
		return fmt.Errorf(
			"%w: %d unexpected trailing accounts",
			ErrMalformedRequest,
			len(c.req.Accounts)-len(c.accounts),
		)
	}
	return nil
}

func (c *instructionContext) checkDeclared(addr common.Address) error {
	if !slices.Contains(c.accounts, addr) {
		return fmt.Errorf(
			"%w: %w: %s",
			ErrMalformedRequest,
			ErrUndeclaredAccount,
			addr.String(),
		)
	}
	return nil
}

// load reads the record at a declared address. A missing record is a state violation
func (c *instructionContext) load(addr common.Address, rec Record) error {
	found, err := c.loadOptional(addr, rec)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf(
			"%w: %w: %s at %s",
			ErrStateViolation,
			ErrRecordNotFound,
			rec.RecordType(),
			addr.String(),
		)
	}
	return nil
}

func (c *instructionContext) loadOptional(addr common.Address, rec Record) (bool, error) {
	if err := c.checkDeclared(addr); err != nil {
		return false, err
	}
	data, err := c.ls.db.GetRecord(addr[:], c.txn)
	if err != nil {
		if errors.Is(err, database.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := DecodeRecordInto(data, rec); err != nil {
		if errors.Is(err, ErrWrongRecordType) {
			return false, fmt.Errorf("%w: %w", ErrAddressMismatch, err)
		}
		return false, err
	}
	return true, nil
}

// expectLoad declares an account and loads the record stored there
func (c *instructionContext) expectLoad(addr common.Address, rec Record) error {
	if err := c.expect(addr); err != nil {
		return err
	}
	return c.load(addr, rec)
}

// expectAbsent declares an account that must not hold a record yet
func (c *instructionContext) expectAbsent(addr common.Address, rec Record) error {
	if err := c.expect(addr); err != nil {
		return err
	}
	found, err := c.loadOptional(addr, rec)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf(
			"%w: %w: %s at %s",
			ErrStateViolation,
			ErrRecordExists,
			rec.RecordType(),
			addr.String(),
		)
	}
	return nil
}

// store writes a record to a declared address and refreshes its index entry
func (c *instructionContext) store(addr common.Address, rec Record) error {
	if err := c.checkDeclared(addr); err != nil {
		return err
	}
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	if err := c.ls.db.SetRecord(addr[:], data, c.txn); err != nil {
		return err
	}
	return indexRecord(c.ls.db, addr, rec, c.txn)
}

// transfer moves value between two declared holdings
func (c *instructionContext) transfer(src, dst common.Address, amount uint64) error {
	if err := c.checkDeclared(src); err != nil {
		return err
	}
	if err := c.checkDeclared(dst); err != nil {
		return err
	}
	if err := c.ls.custody.Transfer(src, dst, amount, c.txn); err != nil {
		return custodyError(err)
	}
	return nil
}

func (c *instructionContext) balance(holding common.Address) (uint64, error) {
	if err := c.checkDeclared(holding); err != nil {
		return 0, err
	}
	return c.ls.custody.Balance(holding, c.txn)
}

func (c *instructionContext) hold(owner, mint common.Address) common.Address {
	return c.ls.custody.Hold(owner, mint)
}

func (c *instructionContext) wallet(id common.Identity, mint common.Address) common.Address {
	return c.ls.custody.Hold(common.IdentityAddress(id), mint)
}

// signer returns the primary signer of the request
func (c *instructionContext) signer() (common.Identity, error) {
	if len(c.req.Signers) == 0 {
		return common.Identity{}, fmt.Errorf("%w: no signer", ErrUnauthorized)
	}
	return c.req.Signers[0], nil
}

func (c *instructionContext) requireSigner(id common.Identity, role string) error {
	if !c.req.signedBy(id) {
		return fmt.Errorf(
			"%w: missing signature of %s %s",
			ErrUnauthorized,
			role,
			id.String(),
		)
	}
	return nil
}

func (c *instructionContext) emit(eventType event.EventType, data any) {
	if c.simulate {
		return
	}
	c.events = append(c.events, event.NewEvent(eventType, data))
}

func addAmount(a, b uint64, what string) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %s", ErrArithmeticOverflow, what)
	}
	return sum, nil
}

func subAmount(a, b uint64, what string) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %s underflow", ErrArithmeticOverflow, what)
	}
	return diff, nil
}

func stateError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrStateViolation}, args...)...)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformedRequest}, args...)...)
}

func deadlineError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrDeadlineExpired}, args...)...)
}

func unauthorized(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUnauthorized}, args...)...)
}
