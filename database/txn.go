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
	"sync"
	"time"

	"github.com/blinklabs-io/shihon/database/types"
)

// PartialCommitError is returned when the blob store committed and the
// metadata store did not. The records are durable but the indexes are stale
// until they are rebuilt from the blob store
type PartialCommitError struct {
	Err error
}

func (e *PartialCommitError) Error() string {
	return "partial commit: metadata commit failed after blob commit: " + e.Err.Error()
}

func (e *PartialCommitError) Unwrap() error {
	return e.Err
}

// Txn spans one blob transaction and one metadata transaction. Records and
// balances live in the blob store, so it always commits first
type Txn struct {
	db          *Database
	blobTxn     types.Txn
	metadataTxn types.Txn
	onCommit    []func()
	lock        sync.Mutex
	finished    bool
	committed   bool
	readWrite   bool
}

func newTxn(db *Database, readWrite bool) *Txn {
	t := &Txn{db: db, readWrite: readWrite}
	if db.blob != nil {
		t.blobTxn = db.blob.NewTransaction(readWrite)
	}
	if db.metadata != nil {
		t.metadataTxn = db.metadata.Transaction()
	}
	return t
}

// Metadata returns the underlying metadata transaction handle
func (t *Txn) Metadata() types.Txn {
	return t.metadataTxn
}

// Blob returns the blob transaction handle
func (t *Txn) Blob() types.Txn {
	return t.blobTxn
}

// Do runs fn and commits, or rolls back when fn fails
func (t *Txn) Do(fn func(*Txn) error) error {
	if err := fn(t); err != nil {
		if rbErr := t.Rollback(); rbErr != nil {
			return fmt.Errorf(
				"rollback failed: %w: original error: %w",
				rbErr,
				err,
			)
		}
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

// Commit writes the blob store and then the metadata store. Commit hooks
// run once the records are durable, which includes a partial commit
func (t *Txn) Commit() error {
	t.lock.Lock()
	err := t.commit()
	var hooks []func()
	if t.committed {
		hooks = t.onCommit
	}
	t.onCommit = nil
	t.lock.Unlock()
	for _, fn := range hooks {
		fn()
	}
	return err
}

func (t *Txn) commit() error {
	if t.finished {
		return nil
	}
	if !t.readWrite {
		return t.rollback()
	}
	t.finished = true
	if t.blobTxn == nil && t.metadataTxn == nil {
		return types.ErrNoStoreAvailable
	}
	if t.blobTxn != nil && t.metadataTxn != nil {
		// Both stores carry the same stamp so a crash between the two
		// commits is detected on the next open
		if err := t.db.updateCommitTimestamp(t, time.Now().UnixMilli()); err != nil {
			t.abort()
			return fmt.Errorf("failed to update commit timestamp: %w", err)
		}
	}
	if t.blobTxn != nil {
		if err := t.blobTxn.Commit(); err != nil {
			if t.metadataTxn != nil {
				_ = t.metadataTxn.Rollback()
			}
			return fmt.Errorf("blob commit failed: %w", err)
		}
		t.committed = true
	}
	if t.metadataTxn == nil {
		return nil
	}
	if err := t.metadataTxn.Commit(); err != nil {
		_ = t.metadataTxn.Rollback()
		if t.blobTxn == nil {
			return fmt.Errorf("metadata commit failed: %w", err)
		}
		t.db.logger.Error(
			"partial commit: blob committed, metadata failed",
			"component", "database",
			"error", err,
		)
		return &PartialCommitError{Err: err}
	}
	t.committed = true
	return nil
}

// OnCommit registers fn to run after a successful commit. Hooks of a rolled
// back transaction are dropped
func (t *Txn) OnCommit(fn func()) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.onCommit = append(t.onCommit, fn)
}

// abort rolls back both stores after a failure inside Commit
func (t *Txn) abort() {
	if t.blobTxn != nil {
		_ = t.blobTxn.Rollback()
	}
	if t.metadataTxn != nil {
		_ = t.metadataTxn.Rollback()
	}
}

func (t *Txn) Rollback() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.rollback()
}

func (t *Txn) rollback() error {
	if t.finished {
		return nil
	}
	t.finished = true
	t.onCommit = nil
	var errs []error
	if t.blobTxn != nil {
		if err := t.blobTxn.Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("blob rollback: %w", err))
		}
	}
	if t.metadataTxn != nil {
		if err := t.metadataTxn.Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("metadata rollback: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Release rolls back the transaction and logs any error, for use in defer
func (t *Txn) Release() {
	if err := t.Rollback(); err != nil {
		t.db.logger.Debug(
			"transaction release failed",
			"component", "database",
			"error", err,
			"read_write", t.readWrite,
		)
	}
}
