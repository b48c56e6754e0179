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

package gcs

import "github.com/blinklabs-io/shihon/database/plugin/blob/internal/objectstore"

// BlobStoreGCSOptionFunc configures a GCS blob store
type BlobStoreGCSOptionFunc = func(*BlobStoreGCS)

// Options shared with the other object store backends
var (
	WithLogger       = objectstore.WithLogger[*BlobStoreGCS]
	WithPromRegistry = objectstore.WithPromRegistry[*BlobStoreGCS]
	WithBucket       = objectstore.WithBucket[*BlobStoreGCS]
	WithPrefix       = objectstore.WithPrefix[*BlobStoreGCS]
	WithTimeout      = objectstore.WithTimeout[*BlobStoreGCS]
)

// WithCredentialsFile specifies a service account credentials file. Without
// one the application default credentials are used
func WithCredentialsFile(path string) BlobStoreGCSOptionFunc {
	return func(b *BlobStoreGCS) {
		b.credentialsFile = path
	}
}
