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

// Package custody moves token balances between holdings. Holdings are
// addressed by (owner, mint) and their balances live in the blob store
// next to the ledger records, so a transfer commits or rolls back together
// with the instruction that requested it.
package custody

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/blinklabs-io/shihon/database"
	"github.com/blinklabs-io/shihon/ledger/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBalanceOverflow   = errors.New("balance overflow")
)

// Custody is the token custody collaborator used by the ledger
type Custody interface {
	Hold(owner common.Address, mint common.Address) common.Address
	Balance(holding common.Address, txn *database.Txn) (uint64, error)
	Transfer(source, destination common.Address, amount uint64, txn *database.Txn) error
	Deposit(holding common.Address, amount uint64, txn *database.Txn) error
}

type DatabaseCustody struct {
	db             *database.Database
	logger         *slog.Logger
	transfersTotal prometheus.Counter
	volumeTotal    prometheus.Counter
}

// New returns a custody service backed by the database balances
func New(
	db *database.Database,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) *DatabaseCustody {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	c := &DatabaseCustody{
		db:     db,
		logger: logger,
	}
	if promRegistry != nil {
		promautoFactory := promauto.With(promRegistry)
		c.transfersTotal = promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "shihon_custody_transfers_total",
			Help: "total number of custody transfers",
		})
		c.volumeTotal = promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "shihon_custody_volume_total",
			Help: "total amount moved by custody transfers",
		})
	}
	return c
}

func (c *DatabaseCustody) Hold(owner common.Address, mint common.Address) common.Address {
	return common.HoldingAddress(owner, mint)
}

func (c *DatabaseCustody) Balance(
	holding common.Address,
	txn *database.Txn,
) (uint64, error) {
	return c.db.GetBalance(holding[:], txn)
}

// Transfer moves amount from source to destination. Moving zero or moving
// to the same holding is a no-op
func (c *DatabaseCustody) Transfer(
	source, destination common.Address,
	amount uint64,
	txn *database.Txn,
) error {
	if amount == 0 || source == destination {
		return nil
	}
	srcBalance, err := c.db.GetBalance(source[:], txn)
	if err != nil {
		return err
	}
	if srcBalance < amount {
		return fmt.Errorf(
			"%w: holding %s has %d, need %d",
			ErrInsufficientFunds,
			source.String(),
			srcBalance,
			amount,
		)
	}
	dstBalance, err := c.db.GetBalance(destination[:], txn)
	if err != nil {
		return err
	}
	if dstBalance > math.MaxUint64-amount {
		return fmt.Errorf("%w: holding %s", ErrBalanceOverflow, destination.String())
	}
	if err := c.db.SetBalance(source[:], srcBalance-amount, txn); err != nil {
		return err
	}
	if err := c.db.SetBalance(destination[:], dstBalance+amount, txn); err != nil {
		return err
	}
	if c.transfersTotal != nil {
		count := func() {
			c.transfersTotal.Inc()
			c.volumeTotal.Add(float64(amount))
		}
		if txn == nil {
			count()
		} else {
			txn.OnCommit(count)
		}
	}
	c.logger.Debug(
		"custody transfer",
		"component", "custody",
		"source", source.String(),
		"destination", destination.String(),
		"amount", amount,
	)
	return nil
}

// Deposit credits a holding with tokens entering custody from outside the ledger
func (c *DatabaseCustody) Deposit(
	holding common.Address,
	amount uint64,
	txn *database.Txn,
) error {
	balance, err := c.db.GetBalance(holding[:], txn)
	if err != nil {
		return err
	}
	if balance > math.MaxUint64-amount {
		return fmt.Errorf("%w: holding %s", ErrBalanceOverflow, holding.String())
	}
	if err := c.db.SetBalance(holding[:], balance+amount, txn); err != nil {
		return err
	}
	c.logger.Info(
		"custody deposit",
		"component", "custody",
		"holding", holding.String(),
		"amount", amount,
	)
	return nil
}
