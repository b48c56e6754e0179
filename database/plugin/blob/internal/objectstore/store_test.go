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

package objectstore

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/blinklabs-io/shihon/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBucket struct {
	objects map[string][]byte
	failPut error
	puts    []string
	mu      sync.Mutex
}

func newMemBucket() *memBucket {
	return &memBucket{objects: make(map[string][]byte)}
}

func (b *memBucket) Get(_ context.Context, name string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	val, ok := b.objects[name]
	if !ok {
		return nil, types.ErrBlobKeyNotFound
	}
	return slices.Clone(val), nil
}

func (b *memBucket) Put(_ context.Context, name string, val []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPut != nil {
		return b.failPut
	}
	b.objects[name] = slices.Clone(val)
	b.puts = append(b.puts, name)
	return nil
}

func (b *memBucket) Delete(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, name)
	return nil
}

func (b *memBucket) List(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for name := range b.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	// Buckets list in name order
	slices.Sort(names)
	return names, nil
}

func (b *memBucket) has(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[name]
	return ok
}

func commit(t *testing.T, store *Store, kv map[string]string) {
	t.Helper()
	txn := store.NewTransaction(true)
	for key, val := range kv {
		require.NoError(t, store.Set(txn, []byte(key), []byte(val)))
	}
	require.NoError(t, txn.Commit())
}

func TestObjectNames(t *testing.T) {
	store := New(newMemBucket(), "shihon", 0)
	assert.Equal(t, "shihon/", store.Prefix())
	assert.Equal(t, DefaultTimeout, store.timeout)
	assert.Equal(t, "shihon/7201ff", store.ObjectName([]byte{0x72, 0x01, 0xff}))
	key, ok := store.BlobKey("shihon/7201ff")
	require.True(t, ok)
	assert.Equal(t, []byte{0x72, 0x01, 0xff}, key)
	_, ok = store.BlobKey("other/7201")
	assert.False(t, ok)
	_, ok = store.BlobKey("shihon/not-hex")
	assert.False(t, ok)
	assert.Equal(t, "72", New(newMemBucket(), "", 0).ObjectName([]byte("r")))
}

func TestWritesBufferedUntilCommit(t *testing.T) {
	bucket := newMemBucket()
	store := New(bucket, "", 0)
	txn := store.NewTransaction(true)
	require.NoError(t, store.Set(txn, []byte("ka"), []byte("one")))
	assert.False(t, bucket.has(store.ObjectName([]byte("ka"))))
	// Staged writes are visible inside the transaction only
	val, err := store.Get(txn, []byte("ka"))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), val)
	other := store.NewTransaction(false)
	_, err = store.Get(other, []byte("ka"))
	require.ErrorIs(t, err, types.ErrBlobKeyNotFound)
	require.NoError(t, other.Rollback())

	require.NoError(t, txn.Commit())
	assert.True(t, bucket.has(store.ObjectName([]byte("ka"))))
	// Finished transactions can no longer be used
	_, err = store.Get(txn, []byte("ka"))
	require.Error(t, err)

	txn = store.NewTransaction(true)
	require.NoError(t, store.Delete(txn, []byte("ka")))
	_, err = store.Get(txn, []byte("ka"))
	require.ErrorIs(t, err, types.ErrBlobKeyNotFound)
	require.NoError(t, txn.Commit())
	assert.False(t, bucket.has(store.ObjectName([]byte("ka"))))
}

func TestRollbackDiscardsWrites(t *testing.T) {
	bucket := newMemBucket()
	store := New(bucket, "", 0)
	txn := store.NewTransaction(true)
	require.NoError(t, store.Set(txn, []byte("k"), []byte("v")))
	require.NoError(t, txn.Rollback())
	assert.Empty(t, bucket.puts)
	txn = store.NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	_, err := store.Get(txn, []byte("k"))
	require.ErrorIs(t, err, types.ErrBlobKeyNotFound)
}

func TestReadOnlyTxn(t *testing.T) {
	store := New(newMemBucket(), "", 0)
	txn := store.NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	require.ErrorIs(t, store.Set(txn, []byte("k"), []byte("v")), types.ErrReadOnlyTxn)
	require.ErrorIs(t, store.Delete(txn, []byte("k")), types.ErrReadOnlyTxn)
}

func TestValidateTxn(t *testing.T) {
	store := New(newMemBucket(), "", 0)
	other := New(newMemBucket(), "", 0)
	_, err := store.Get(nil, []byte("k"))
	require.ErrorIs(t, err, types.ErrNilTxn)
	otherTxn := other.NewTransaction(false)
	defer otherTxn.Rollback() //nolint:errcheck
	_, err = store.Get(otherTxn, []byte("k"))
	require.Error(t, err)
	iter := store.NewIterator(otherTxn, types.BlobIteratorOptions{})
	assert.False(t, iter.Valid())
	require.Error(t, iter.Err())
	iter.Close()
}

func TestCommitTimestampWrittenLast(t *testing.T) {
	bucket := newMemBucket()
	store := New(bucket, "", 0)
	ts, err := store.GetCommitTimestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)
	require.ErrorIs(t, store.SetCommitTimestamp(1, nil), types.ErrNilTxn)

	txn := store.NewTransaction(true)
	require.NoError(t, store.Set(txn, []byte("zz"), []byte("last key")))
	require.NoError(t, store.SetCommitTimestamp(1700000000123, txn))
	require.NoError(t, store.Set(txn, []byte("aa"), []byte("first key")))
	require.NoError(t, txn.Commit())
	require.Len(t, bucket.puts, 3)
	assert.Equal(t, store.ObjectName([]byte("aa")), bucket.puts[0])
	assert.Equal(t, store.ObjectName([]byte(commitTimestampKey)), bucket.puts[2])

	ts, err = store.GetCommitTimestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), ts)
}

func TestCommitFailure(t *testing.T) {
	bucket := newMemBucket()
	bucket.failPut = errors.New("slow down")
	store := New(bucket, "", 0)
	txn := store.NewTransaction(true)
	require.NoError(t, store.Set(txn, []byte("k"), []byte("v")))
	require.ErrorContains(t, txn.Commit(), "slow down")
	// A second commit is a no-op
	require.NoError(t, txn.Commit())
}

func TestIteratorMergesStagedWrites(t *testing.T) {
	store := New(newMemBucket(), "p", 0)
	commit(t, store, map[string]string{"r1": "r1", "r2": "r2", "h1": "h1"})

	txn := store.NewTransaction(true)
	defer txn.Rollback() //nolint:errcheck
	require.NoError(t, store.Delete(txn, []byte("r1")))
	require.NoError(t, store.Set(txn, []byte("r3"), []byte("r3")))
	require.NoError(t, store.Set(txn, []byte("h2"), []byte("h2")))

	prefix := []byte("r")
	collect := func(iter types.BlobIterator) []string {
		defer iter.Close()
		var keys []string
		for iter.Rewind(); iter.ValidForPrefix(prefix); iter.Next() {
			item := iter.Item()
			val, err := item.ValueCopy(nil)
			require.NoError(t, err)
			assert.Equal(t, item.Key(), val)
			keys = append(keys, string(item.Key()))
		}
		require.NoError(t, iter.Err())
		return keys
	}
	assert.Equal(
		t,
		[]string{"r2", "r3"},
		collect(store.NewIterator(txn, types.BlobIteratorOptions{Prefix: prefix})),
	)
	assert.Equal(
		t,
		[]string{"r3", "r2"},
		collect(store.NewIterator(txn, types.BlobIteratorOptions{Prefix: prefix, Reverse: true})),
	)

	iter := store.NewIterator(txn, types.BlobIteratorOptions{})
	defer iter.Close()
	iter.Seek([]byte("h5"))
	require.True(t, iter.Valid())
	assert.Equal(t, []byte("r2"), iter.Item().Key())
	iter.Seek([]byte("zz"))
	assert.False(t, iter.Valid())
	assert.Nil(t, iter.Item())

	reverse := store.NewIterator(txn, types.BlobIteratorOptions{Reverse: true})
	defer reverse.Close()
	reverse.Seek([]byte("h5"))
	require.True(t, reverse.Valid())
	assert.Equal(t, []byte("h2"), reverse.Item().Key())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := New(newMemBucket(), "", 0)
	require.NoError(t, store.RegisterMetrics(reg, "mem"))
	commit(t, store, map[string]string{"k": "four"})
	assert.InDelta(t, 1, testutil.ToFloat64(store.metrics.opsTotal.WithLabelValues("set")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(store.metrics.bytesTotal), 0)
	// Registering twice on the same registry fails
	require.Error(t, New(newMemBucket(), "", 0).RegisterMetrics(reg, "mem"))
}
