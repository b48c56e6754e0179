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
	"slices"
	"strings"

	"github.com/blinklabs-io/shihon/database/types"
)

// NewIterator lists matching keys up front and merges in the writes staged
// in the transaction. Values are read when requested
func (s *Store) NewIterator(
	tx types.Txn,
	opts types.BlobIteratorOptions,
) types.BlobIterator {
	t, err := s.validateTxn(tx)
	if err != nil {
		return &iterator{err: err}
	}
	keys, err := s.listKeys(opts.Prefix)
	if err != nil {
		return &iterator{err: err}
	}
	merged := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		merged[string(key)] = struct{}{}
	}
	for key, w := range t.writes {
		if !strings.HasPrefix(key, string(opts.Prefix)) {
			continue
		}
		if w.deleted {
			delete(merged, key)
		} else {
			merged[key] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(merged))
	for key := range merged {
		sorted = append(sorted, key)
	}
	slices.Sort(sorted)
	if opts.Reverse {
		slices.Reverse(sorted)
	}
	return &iterator{
		store:   s,
		txn:     t,
		keys:    sorted,
		reverse: opts.Reverse,
	}
}

type iterator struct {
	store   *Store
	txn     *txn
	err     error
	keys    []string
	pos     int
	reverse bool
}

func (it *iterator) Rewind() { it.pos = 0 }

// Seek moves to the first key at or after the target, or at or before it
// when iterating in reverse
func (it *iterator) Seek(target []byte) {
	it.pos = len(it.keys)
	for i, key := range it.keys {
		cmp := strings.Compare(key, string(target))
		if (!it.reverse && cmp >= 0) || (it.reverse && cmp <= 0) {
			it.pos = i
			return
		}
	}
}

func (it *iterator) Valid() bool {
	return it.err == nil && it.pos < len(it.keys)
}

func (it *iterator) ValidForPrefix(prefix []byte) bool {
	return it.Valid() && strings.HasPrefix(it.keys[it.pos], string(prefix))
}

func (it *iterator) Next() { it.pos++ }

func (it *iterator) Item() types.BlobItem {
	if !it.Valid() {
		return nil
	}
	return &item{iter: it, key: []byte(it.keys[it.pos])}
}

func (it *iterator) Close() { it.keys = nil }

func (it *iterator) Err() error { return it.err }

type item struct {
	iter *iterator
	key  []byte
}

func (i *item) Key() []byte {
	return slices.Clone(i.key)
}

func (i *item) ValueCopy(dst []byte) ([]byte, error) {
	val, err := i.iter.store.Get(i.iter.txn, i.key)
	if err != nil {
		return nil, err
	}
	return append(dst[:0], val...), nil
}
