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

// Package objectstore implements the blob store contract on top of a flat
// object bucket. Writes are staged per transaction and applied on Commit.
package objectstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/blinklabs-io/shihon/database/types"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultTimeout = 60 * time.Second

	commitTimestampKey = "metadata_commit_timestamp"
)

// Bucket is a flat namespace of objects. Get returns
// types.ErrBlobKeyNotFound for a missing object and Delete of a missing
// object is not an error
type Bucket interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, val []byte) error
	Delete(ctx context.Context, name string) error
	// List returns the names of all objects starting with prefix
	List(ctx context.Context, prefix string) ([]string, error)
}

// Store maps blob keys to hex encoded object names under a prefix
type Store struct {
	bucket  Bucket
	logger  *slog.Logger
	metrics *blobMetrics
	prefix  string
	timeout time.Duration
}

func New(bucket Bucket, prefix string, timeout time.Duration) *Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Store{
		bucket:  bucket,
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
		prefix:  prefix,
		timeout: timeout,
	}
}

func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	s.logger = logger
}

// RegisterMetrics registers the store metrics, labelled with the backend name
func (s *Store) RegisterMetrics(promRegistry prometheus.Registerer, backend string) error {
	metrics, err := newBlobMetrics(promRegistry, backend)
	if err != nil {
		return err
	}
	s.metrics = metrics
	return nil
}

// Prefix returns the object name prefix, with a trailing slash when set
func (s *Store) Prefix() string {
	return s.prefix
}

func (s *Store) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// ObjectName returns the object holding a blob key
func (s *Store) ObjectName(key []byte) string {
	return s.prefix + hex.EncodeToString(key)
}

// BlobKey reverses ObjectName. Foreign objects in the bucket are skipped
func (s *Store) BlobKey(name string) ([]byte, bool) {
	trimmed, ok := strings.CutPrefix(name, s.prefix)
	if !ok {
		return nil, false
	}
	key, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, false
	}
	return key, true
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// txn buffers writes until Commit. Buckets have no multi-object
// transactions, so a commit applies the buffered writes one object at a time
// and the commit timestamp is always written last
type txn struct {
	store     *Store
	writes    map[string]pendingWrite
	readWrite bool
	finished  bool
}

func (t *txn) Commit() error {
	if t.finished {
		return nil
	}
	t.finished = true
	if len(t.writes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(t.writes))
	for key := range t.writes {
		if key != commitTimestampKey {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	if _, ok := t.writes[commitTimestampKey]; ok {
		keys = append(keys, commitTimestampKey)
	}
	for _, key := range keys {
		w := t.writes[key]
		var err error
		if w.deleted {
			err = t.store.deleteObject([]byte(key))
		} else {
			err = t.store.putObject([]byte(key), w.value)
		}
		if err != nil {
			t.store.logger.Error(
				"blob commit failed",
				"component", "database",
				"key", hex.EncodeToString([]byte(key)),
				"error", err,
			)
			return fmt.Errorf("commit: %w", err)
		}
	}
	t.writes = nil
	return nil
}

func (t *txn) Rollback() error {
	t.finished = true
	t.writes = nil
	return nil
}

func (t *txn) stage(key []byte, w pendingWrite) error {
	if !t.readWrite {
		return types.ErrReadOnlyTxn
	}
	if t.writes == nil {
		t.writes = make(map[string]pendingWrite)
	}
	t.writes[string(key)] = w
	return nil
}

func (s *Store) validateTxn(tx types.Txn) (*txn, error) {
	if tx == nil {
		return nil, types.ErrNilTxn
	}
	t, ok := tx.(*txn)
	if !ok {
		return nil, types.ErrTxnWrongType
	}
	if t.store != s {
		return nil, errors.New("transaction from different store")
	}
	if t.finished {
		return nil, errors.New("transaction already finished")
	}
	return t, nil
}

// NewTransaction returns a transaction that buffers writes until Commit
func (s *Store) NewTransaction(readWrite bool) types.Txn {
	return &txn{store: s, readWrite: readWrite}
}

// Get retrieves a value, seeing writes staged in the same transaction
func (s *Store) Get(tx types.Txn, key []byte) ([]byte, error) {
	t, err := s.validateTxn(tx)
	if err != nil {
		return nil, err
	}
	if w, ok := t.writes[string(key)]; ok {
		if w.deleted {
			return nil, types.ErrBlobKeyNotFound
		}
		return slices.Clone(w.value), nil
	}
	return s.getObject(key)
}

// Set stages a key-value pair in the transaction
func (s *Store) Set(tx types.Txn, key, val []byte) error {
	t, err := s.validateTxn(tx)
	if err != nil {
		return err
	}
	return t.stage(key, pendingWrite{value: slices.Clone(val)})
}

// Delete stages the removal of a key in the transaction
func (s *Store) Delete(tx types.Txn, key []byte) error {
	t, err := s.validateTxn(tx)
	if err != nil {
		return err
	}
	return t.stage(key, pendingWrite{deleted: true})
}

func (s *Store) GetCommitTimestamp() (int64, error) {
	tx := s.NewTransaction(false)
	defer tx.Rollback() //nolint:errcheck
	val, err := s.Get(tx, []byte(commitTimestampKey))
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return int64(types.BytesToUint64(val)), nil //nolint:gosec
}

func (s *Store) SetCommitTimestamp(timestamp int64, tx types.Txn) error {
	if tx == nil {
		return types.ErrNilTxn
	}
	return s.Set(
		tx,
		[]byte(commitTimestampKey),
		types.Uint64ToBytes(uint64(timestamp)), //nolint:gosec
	)
}

func (s *Store) getObject(key []byte) ([]byte, error) {
	ctx, cancel := s.opContext()
	defer cancel()
	data, err := s.bucket.Get(ctx, s.ObjectName(key))
	if err != nil {
		if !errors.Is(err, types.ErrBlobKeyNotFound) {
			s.logger.Error(
				"blob get failed",
				"component", "database",
				"key", hex.EncodeToString(key),
				"error", err,
			)
		}
		return nil, err
	}
	s.metrics.observe("get", len(data))
	return data, nil
}

func (s *Store) putObject(key, val []byte) error {
	ctx, cancel := s.opContext()
	defer cancel()
	if err := s.bucket.Put(ctx, s.ObjectName(key), val); err != nil {
		return err
	}
	s.metrics.observe("set", len(val))
	return nil
}

func (s *Store) deleteObject(key []byte) error {
	ctx, cancel := s.opContext()
	defer cancel()
	if err := s.bucket.Delete(ctx, s.ObjectName(key)); err != nil {
		return err
	}
	s.metrics.observe("delete", 0)
	return nil
}

// listKeys returns the committed blob keys with the given prefix
func (s *Store) listKeys(prefix []byte) ([][]byte, error) {
	ctx, cancel := s.opContext()
	defer cancel()
	// Hex encoding keeps byte order, so a key prefix maps to an object prefix
	names, err := s.bucket.List(ctx, s.ObjectName(prefix))
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, 0, len(names))
	for _, name := range names {
		if key, ok := s.BlobKey(name); ok {
			keys = append(keys, key)
		}
	}
	s.metrics.observe("list", 0)
	return keys, nil
}
