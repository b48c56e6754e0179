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

	"github.com/blinklabs-io/gouroboros/cbor"
)

// EncodeRecord serializes a record as a CBOR array with its type discriminator first
func EncodeRecord(rec Record) ([]byte, error) {
	*rec.typeTag() = rec.RecordType()
	data, err := cbor.Encode(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.RecordType(), err)
	}
	return data, nil
}

// DecodeRecordInto decodes data into rec. Bytes following the first CBOR item are ignored
func DecodeRecordInto(data []byte, rec Record) error {
	recordType, err := PeekRecordType(data)
	if err != nil {
		return err
	}
	if recordType != rec.RecordType() {
		return fmt.Errorf(
			"%w: expected %s, found %s",
			ErrWrongRecordType,
			rec.RecordType(),
			recordType,
		)
	}
	if _, err := cbor.Decode(data, rec); err != nil {
		return fmt.Errorf("decode %s: %w", rec.RecordType(), err)
	}
	return nil
}

// PeekRecordType returns the type discriminator of an encoded record
func PeekRecordType(data []byte) (RecordType, error) {
	var items []cbor.RawMessage
	if _, err := cbor.Decode(data, &items); err != nil {
		return 0, fmt.Errorf("decode record header: %w", err)
	}
	if len(items) == 0 {
		return 0, errors.New("empty record")
	}
	var recordType RecordType
	if _, err := cbor.Decode(items[0], &recordType); err != nil {
		return 0, fmt.Errorf("decode record type: %w", err)
	}
	return recordType, nil
}

// DecodeRecord decodes a record of any type
func DecodeRecord(data []byte) (Record, error) {
	recordType, err := PeekRecordType(data)
	if err != nil {
		return nil, err
	}
	rec, err := newRecord(recordType)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", err, recordType)
	}
	if err := DecodeRecordInto(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
