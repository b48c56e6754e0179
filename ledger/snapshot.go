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
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/shihon/database"
	"github.com/blinklabs-io/shihon/database/types"
	"github.com/blinklabs-io/shihon/ledger/common"
	"github.com/klauspost/compress/zstd"
)

const (
	snapshotMagic   = "shihon-snapshot"
	snapshotVersion = 1
	// snapshotBatchSize bounds the entries written per import transaction
	snapshotBatchSize = 1000
	// maxSnapshotFrameSize rejects corrupt frame lengths before allocating
	maxSnapshotFrameSize = 64 << 20
)

var (
	ErrInvalidSnapshot        = errors.New("invalid snapshot")
	ErrSnapshotTargetNotEmpty = errors.New("snapshot import requires an empty ledger")
)

// Blob prefixes carried by a snapshot. Store bookkeeping such as commit
// timestamps is left out
var snapshotPrefixes = []string{
	types.RecordBlobKeyPrefix,
	types.BalanceBlobKeyPrefix,
	types.StateBlobKeyPrefix,
}

type snapshotHeader struct {
	cbor.StructAsArray
	Magic   string
	Version uint
	Clock   int64
}

type snapshotEntry struct {
	cbor.StructAsArray
	Key   []byte
	Value []byte
}

// Export writes every record, balance and state entry as a zstd compressed
// stream of length-prefixed CBOR frames, terminated by an empty frame
func (ls *LedgerState) Export(ctx context.Context, w io.Writer) (int, error) {
	ls.RLock()
	defer ls.RUnlock()
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("creating zstd writer: %w", err)
	}
	txn := ls.db.Transaction(false)
	defer txn.Release()
	clockVal, err := ls.db.GetState(clockStateKey, txn)
	if err != nil {
		_ = zw.Close()
		return 0, err
	}
	header := snapshotHeader{
		Magic:   snapshotMagic,
		Version: snapshotVersion,
		Clock:   int64(types.BytesToUint64(clockVal)), // #nosec G115
	}
	if err := writeFrame(zw, &header); err != nil {
		_ = zw.Close()
		return 0, err
	}
	count := 0
	for _, prefix := range snapshotPrefixes {
		err := ls.db.IterateBlob(
			[]byte(prefix),
			txn,
			func(key []byte, val []byte) error {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("export cancelled: %w", err)
				}
				count++
				return writeFrame(zw, &snapshotEntry{Key: key, Value: val})
			},
		)
		if err != nil {
			_ = zw.Close()
			return count, err
		}
	}
	if err := writeFrameBytes(zw, nil); err != nil {
		_ = zw.Close()
		return count, err
	}
	if err := zw.Close(); err != nil {
		return count, fmt.Errorf("closing zstd writer: %w", err)
	}
	ls.config.Logger.Info(
		"exported ledger snapshot",
		"component", "ledger",
		"entries", count,
		"clock", header.Clock,
	)
	return count, nil
}

// Import restores a snapshot written by Export into an empty ledger and
// rebuilds the metadata indexes from the restored records
func (ls *LedgerState) Import(ctx context.Context, r io.Reader) (int, error) {
	ls.Lock()
	defer ls.Unlock()
	empty := true
	err := ls.db.IterateBlob(
		[]byte(types.RecordBlobKeyPrefix),
		nil,
		func(_ []byte, _ []byte) error {
			empty = false
			return io.EOF
		},
	)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	if !empty {
		return 0, ErrSnapshotTargetNotEmpty
	}
	zr, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()
	br := bufio.NewReader(zr)
	var header snapshotHeader
	if err := readFrame(br, &header); err != nil {
		return 0, err
	}
	if header.Magic != snapshotMagic || header.Version != snapshotVersion {
		return 0, fmt.Errorf(
			"%w: unsupported header %q version %d",
			ErrInvalidSnapshot,
			header.Magic,
			header.Version,
		)
	}
	count := 0
	batch := make([]snapshotEntry, 0, snapshotBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := ls.db.Transaction(true).Do(func(txn *database.Txn) error {
			for _, entry := range batch {
				if err := ls.db.SetBlob(entry.Key, entry.Value, txn); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		count += len(batch)
		batch = batch[:0]
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return count, fmt.Errorf("import cancelled: %w", err)
		}
		data, err := readFrameBytes(br)
		if err != nil {
			return count, err
		}
		if len(data) == 0 {
			break
		}
		var entry snapshotEntry
		if _, err := cbor.Decode(data, &entry); err != nil {
			return count, fmt.Errorf("%w: decode entry: %w", ErrInvalidSnapshot, err)
		}
		if err := validateSnapshotEntry(&entry); err != nil {
			return count, err
		}
		batch = append(batch, entry)
		if len(batch) == snapshotBatchSize {
			if err := flush(); err != nil {
				return count, err
			}
		}
	}
	if err := flush(); err != nil {
		return count, err
	}
	if err := ls.reindex(ctx); err != nil {
		return count, err
	}
	ls.config.Logger.Info(
		"imported ledger snapshot",
		"component", "ledger",
		"entries", count,
		"clock", header.Clock,
	)
	return count, nil
}

func validateSnapshotEntry(entry *snapshotEntry) error {
	switch {
	case bytes.HasPrefix(entry.Key, []byte(types.StateBlobKeyPrefix)):
		return nil
	case bytes.HasPrefix(entry.Key, []byte(types.RecordBlobKeyPrefix)):
		if _, err := types.AddressFromBlobKey(entry.Key); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
		}
		if _, err := DecodeRecord(entry.Value); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
		}
		return nil
	case bytes.HasPrefix(entry.Key, []byte(types.BalanceBlobKeyPrefix)):
		if _, err := types.AddressFromBlobKey(entry.Key); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
		}
		if len(entry.Value) != 8 {
			return fmt.Errorf("%w: bad balance value", ErrInvalidSnapshot)
		}
		return nil
	default:
		return fmt.Errorf("%w: unexpected key %x", ErrInvalidSnapshot, entry.Key)
	}
}

// Reindex rebuilds every metadata index from the records in the blob store
func (ls *LedgerState) Reindex(ctx context.Context) error {
	ls.Lock()
	defer ls.Unlock()
	return ls.reindex(ctx)
}

func (ls *LedgerState) reindex(ctx context.Context) error {
	count := 0
	err := ls.db.Transaction(true).Do(func(txn *database.Txn) error {
		if err := ls.db.TruncateIndexes(txn); err != nil {
			return err
		}
		return ls.db.IterateBlob(
			[]byte(types.RecordBlobKeyPrefix),
			txn,
			func(key []byte, val []byte) error {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("reindex cancelled: %w", err)
				}
				addrBytes, err := types.AddressFromBlobKey(key)
				if err != nil {
					return err
				}
				addr, err := common.NewAddress(addrBytes)
				if err != nil {
					return err
				}
				rec, err := DecodeRecord(val)
				if err != nil {
					return fmt.Errorf("record %s: %w", addr.String(), err)
				}
				count++
				return indexRecord(ls.db, addr, rec, txn)
			},
		)
	})
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	ls.config.Logger.Info(
		"rebuilt ledger indexes",
		"component", "ledger",
		"records", count,
	)
	return nil
}

func writeFrame(w io.Writer, v any) error {
	data, err := cbor.Encode(v)
	if err != nil {
		return err
	}
	return writeFrameBytes(w, data)
}

func writeFrameBytes(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data))) // #nosec G115
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readFrameBytes(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: read frame length: %w", ErrInvalidSnapshot, err)
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > maxSnapshotFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes", ErrInvalidSnapshot, size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("%w: read frame: %w", ErrInvalidSnapshot, err)
	}
	return data, nil
}

func readFrame(r io.Reader, v any) error {
	data, err := readFrameBytes(r)
	if err != nil {
		return err
	}
	if _, err := cbor.Decode(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	return nil
}
