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

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"
	"github.com/blinklabs-io/shihon/database/plugin/blob/internal/objectstore"
	"github.com/blinklabs-io/shihon/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// BlobStoreGCS stores ledger records as objects in a Google Cloud Storage bucket
type BlobStoreGCS struct {
	*objectstore.Store
	objectstore.Settings
	client          *storage.Client
	bucket          *storage.BucketHandle
	credentialsFile string
}

// New creates a GCS blob store. The client is created by Start()
func New(opts ...BlobStoreGCSOptionFunc) (*BlobStoreGCS, error) {
	db := &BlobStoreGCS{}
	for _, opt := range opts {
		opt(db)
	}
	store, err := db.Open(&gcsBucket{store: db}, "gcs")
	if err != nil {
		return nil, err
	}
	db.Store = store
	return db, nil
}

// SetLogger replaces the logger used by the store
func (d *BlobStoreGCS) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	d.Logger = logger
	d.Store.SetLogger(logger)
}

// RegisterMetrics registers the store metrics with a prometheus registry
func (d *BlobStoreGCS) RegisterMetrics(promRegistry prometheus.Registerer) error {
	if err := d.Store.RegisterMetrics(promRegistry, "gcs"); err != nil {
		return err
	}
	d.PromRegistry = promRegistry
	return nil
}

// ValidateCredentials checks that a configured credentials file exists
func ValidateCredentials(credentialsFile string) error {
	if credentialsFile == "" {
		return nil
	}
	if _, err := os.Stat(credentialsFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf(
				"GCS credentials file does not exist: %s",
				credentialsFile,
			)
		}
		return fmt.Errorf("GCS credentials file: %w", err)
	}
	return nil
}

// Start implements the plugin.Plugin interface
func (d *BlobStoreGCS) Start() error {
	if d.BucketName == "" {
		return errors.New("gcs blob: bucket not set")
	}
	if err := ValidateCredentials(d.credentialsFile); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.Timeout)
	defer cancel()
	clientOpts := []option.ClientOption{storage.WithDisabledClientMetrics()}
	if d.credentialsFile != "" {
		clientOpts = append(
			clientOpts,
			option.WithCredentialsFile(d.credentialsFile), //nolint:staticcheck
		)
	}
	client, err := storage.NewGRPCClient(ctx, clientOpts...)
	if err != nil {
		return fmt.Errorf("gcs blob: failed in creating storage client: %w", err)
	}
	d.client = client
	d.bucket = client.Bucket(d.BucketName)
	d.Logger.Debug(
		"opened GCS blob store",
		"component", "database",
		"bucket", d.BucketName,
		"prefix", d.Prefix(),
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *BlobStoreGCS) Stop() error {
	return d.Close()
}

// Close closes the GCS client
func (d *BlobStoreGCS) Close() error {
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	d.bucket = nil
	return err
}

// Bucket returns the configured bucket name
func (d *BlobStoreGCS) Bucket() string {
	return d.BucketName
}

// gcsBucket adapts a bucket handle to objectstore.Bucket
type gcsBucket struct {
	store *BlobStoreGCS
}

func (b *gcsBucket) handle() (*storage.BucketHandle, error) {
	if b.store.bucket == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	return b.store.bucket, nil
}

func (b *gcsBucket) Get(ctx context.Context, name string) ([]byte, error) {
	bucket, err := b.handle()
	if err != nil {
		return nil, err
	}
	r, err := bucket.Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, types.ErrBlobKeyNotFound
		}
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *gcsBucket) Put(ctx context.Context, name string, val []byte) error {
	bucket, err := b.handle()
	if err != nil {
		return err
	}
	w := bucket.Object(name).NewWriter(ctx)
	if _, err := w.Write(val); err != nil {
		_ = w.Close()
		return err
	}
	// The upload is only complete once Close returns
	return w.Close()
}

func (b *gcsBucket) Delete(ctx context.Context, name string) error {
	bucket, err := b.handle()
	if err != nil {
		return err
	}
	err = bucket.Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	return nil
}

func (b *gcsBucket) List(ctx context.Context, prefix string) ([]string, error) {
	bucket, err := b.handle()
	if err != nil {
		return nil, err
	}
	query := &storage.Query{Prefix: prefix}
	if err := query.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, err
	}
	it := bucket.Objects(ctx, query)
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}
