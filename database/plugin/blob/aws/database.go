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

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/blinklabs-io/shihon/database/plugin/blob/internal/objectstore"
	"github.com/blinklabs-io/shihon/database/types"
	"github.com/prometheus/client_golang/prometheus"
)

// ObjectAPI is the subset of the S3 client used by the blob store
type ObjectAPI interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(context.Context, *s3.DeleteObjectInput, ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(context.Context, *s3.ListObjectsV2Input, ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// BlobStoreS3 stores ledger records as objects in an S3 bucket
type BlobStoreS3 struct {
	*objectstore.Store
	objectstore.Settings
	client   ObjectAPI
	region   string
	endpoint string
}

// New creates an S3 blob store. The client is created by Start() unless one
// was supplied with WithClient
func New(opts ...BlobStoreS3OptionFunc) (*BlobStoreS3, error) {
	db := &BlobStoreS3{}
	for _, opt := range opts {
		opt(db)
	}
	store, err := db.Open(&s3Bucket{store: db}, "s3")
	if err != nil {
		return nil, err
	}
	db.Store = store
	return db, nil
}

// SetLogger replaces the logger used by the store
func (d *BlobStoreS3) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	d.Logger = logger
	d.Store.SetLogger(logger)
}

// RegisterMetrics registers the store metrics with a prometheus registry
func (d *BlobStoreS3) RegisterMetrics(promRegistry prometheus.Registerer) error {
	if err := d.Store.RegisterMetrics(promRegistry, "s3"); err != nil {
		return err
	}
	d.PromRegistry = promRegistry
	return nil
}

// Start implements the plugin.Plugin interface
func (d *BlobStoreS3) Start() error {
	if d.BucketName == "" {
		return errors.New("s3 blob: bucket not set")
	}
	if d.client != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.Timeout)
	defer cancel()
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("s3 blob: load default AWS config: %w", err)
	}
	if d.region != "" {
		awsCfg.Region = d.region
	}
	d.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if d.endpoint != "" {
			o.BaseEndpoint = aws.String(d.endpoint)
			// S3 compatible servers such as minio expect path style requests
			o.UsePathStyle = true
		}
	})
	d.Logger.Debug(
		"opened S3 blob store",
		"component", "database",
		"bucket", d.BucketName,
		"prefix", d.Prefix(),
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *BlobStoreS3) Stop() error {
	return nil
}

// Close implements the BlobStore interface
func (d *BlobStoreS3) Close() error {
	return d.Stop()
}

// Bucket returns the configured bucket name
func (d *BlobStoreS3) Bucket() string {
	return d.BucketName
}

// s3Bucket adapts the S3 client to objectstore.Bucket
type s3Bucket struct {
	store *BlobStoreS3
}

func (b *s3Bucket) client() (ObjectAPI, error) {
	if b.store.client == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	return b.store.client, nil
}

func (b *s3Bucket) Get(ctx context.Context, name string) ([]byte, error) {
	client, err := b.client()
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.store.BucketName),
		Key:    aws.String(name),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, types.ErrBlobKeyNotFound
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (b *s3Bucket) Put(ctx context.Context, name string, val []byte) error {
	client, err := b.client()
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.store.BucketName),
		Key:    aws.String(name),
		Body:   bytes.NewReader(val),
	})
	return err
}

func (b *s3Bucket) Delete(ctx context.Context, name string) error {
	client, err := b.client()
	if err != nil {
		return err
	}
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.store.BucketName),
		Key:    aws.String(name),
	})
	if err != nil && !isS3NotFound(err) {
		return err
	}
	return nil
}

func (b *s3Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	client, err := b.client()
	if err != nil {
		return nil, err
	}
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.store.BucketName),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	paginator := s3.NewListObjectsV2Paginator(client, input)
	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			names = append(names, aws.ToString(obj.Key))
		}
	}
	return names, nil
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	var noSuchKey *s3types.NoSuchKey
	return errors.As(err, &noSuchKey)
}
