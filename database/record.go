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

package database

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/shihon/database/types"
)

var ErrRecordNotFound = errors.New("record not found")

// ownedTxn returns txn, or a new transaction owned by the caller when txn is nil
func (d *Database) ownedTxn(txn *Txn, readWrite bool) (*Txn, bool) {
	if txn != nil {
		return txn, false
	}
	return d.Transaction(readWrite), true
}

// GetRecord returns the encoded record stored at an address
func (d *Database) GetRecord(addr []byte, txn *Txn) ([]byte, error) {
	txn, owned := d.ownedTxn(txn, false)
	if owned {
		defer txn.Release()
	}
	val, err := d.blob.Get(txn.Blob(), types.RecordBlobKey(addr))
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return val, nil
}

// SetRecord stores the encoded record at an address
func (d *Database) SetRecord(addr []byte, data []byte, txn *Txn) error {
	if txn == nil {
		return d.Transaction(true).Do(func(txn *Txn) error {
			return d.SetRecord(addr, data, txn)
		})
	}
	if err := d.blob.Set(txn.Blob(), types.RecordBlobKey(addr), data); err != nil {
		return fmt.Errorf("set record: %w", err)
	}
	return nil
}

func (d *Database) DeleteRecord(addr []byte, txn *Txn) error {
	if txn == nil {
		return d.Transaction(true).Do(func(txn *Txn) error {
			return d.DeleteRecord(addr, txn)
		})
	}
	if err := d.blob.Delete(txn.Blob(), types.RecordBlobKey(addr)); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// GetBalance returns the balance of a custody holding. Unknown holdings are empty
func (d *Database) GetBalance(holding []byte, txn *Txn) (uint64, error) {
	txn, owned := d.ownedTxn(txn, false)
	if owned {
		defer txn.Release()
	}
	val, err := d.blob.Get(txn.Blob(), types.BalanceBlobKey(holding))
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return types.BytesToUint64(val), nil
}

// SetBalance stores the balance of a custody holding. A zero balance removes the key
func (d *Database) SetBalance(holding []byte, amount uint64, txn *Txn) error {
	if txn == nil {
		return d.Transaction(true).Do(func(txn *Txn) error {
			return d.SetBalance(holding, amount, txn)
		})
	}
	key := types.BalanceBlobKey(holding)
	var err error
	if amount == 0 {
		err = d.blob.Delete(txn.Blob(), key)
	} else {
		err = d.blob.Set(txn.Blob(), key, types.Uint64ToBytes(amount))
	}
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}

// GetState returns a named piece of global state, or nil when unset
func (d *Database) GetState(name string, txn *Txn) ([]byte, error) {
	txn, owned := d.ownedTxn(txn, false)
	if owned {
		defer txn.Release()
	}
	val, err := d.blob.Get(txn.Blob(), types.StateBlobKey(name))
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get state %s: %w", name, err)
	}
	return val, nil
}

func (d *Database) SetState(name string, val []byte, txn *Txn) error {
	if txn == nil {
		return d.Transaction(true).Do(func(txn *Txn) error {
			return d.SetState(name, val, txn)
		})
	}
	if err := d.blob.Set(txn.Blob(), types.StateBlobKey(name), val); err != nil {
		return fmt.Errorf("set state %s: %w", name, err)
	}
	return nil
}

// IterateBlob calls fn for every blob entry whose key starts with prefix, in key order.
// Iteration stops at the first error returned by fn
func (d *Database) IterateBlob(
	prefix []byte,
	txn *Txn,
	fn func(key []byte, val []byte) error,
) error {
	txn, owned := d.ownedTxn(txn, false)
	if owned {
		defer txn.Release()
	}
	iter := d.blob.NewIterator(
		txn.Blob(),
		types.BlobIteratorOptions{Prefix: prefix},
	)
	defer iter.Close()
	for iter.Rewind(); iter.ValidForPrefix(prefix); iter.Next() {
		item := iter.Item()
		key := append([]byte(nil), item.Key()...)
		val, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read blob value: %w", err)
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return iter.Err()
}

// SetBlob writes a raw blob entry, used when restoring snapshots
func (d *Database) SetBlob(key []byte, val []byte, txn *Txn) error {
	if txn == nil {
		return d.Transaction(true).Do(func(txn *Txn) error {
			return d.SetBlob(key, val, txn)
		})
	}
	return d.blob.Set(txn.Blob(), key, val)
}
