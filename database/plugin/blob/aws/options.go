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

package aws

import "github.com/blinklabs-io/shihon/database/plugin/blob/internal/objectstore"

// BlobStoreS3OptionFunc configures an S3 blob store
type BlobStoreS3OptionFunc = func(*BlobStoreS3)

// Options shared with the other object store backends
var (
	WithLogger       = objectstore.WithLogger[*BlobStoreS3]
	WithPromRegistry = objectstore.WithPromRegistry[*BlobStoreS3]
	WithBucket       = objectstore.WithBucket[*BlobStoreS3]
	WithPrefix       = objectstore.WithPrefix[*BlobStoreS3]
	WithTimeout      = objectstore.WithTimeout[*BlobStoreS3]
)

// WithRegion specifies the AWS region
func WithRegion(region string) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.region = region
	}
}

// WithEndpoint points the client at an S3 compatible server such as minio
func WithEndpoint(endpoint string) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.endpoint = endpoint
	}
}

// WithClient supplies a ready S3 client instead of loading the AWS config
func WithClient(client ObjectAPI) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.client = client
	}
}
