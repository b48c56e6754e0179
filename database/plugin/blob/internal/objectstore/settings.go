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
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Settings holds the options shared by the object store backends, which
// embed it and expose the generic options below
type Settings struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	BucketName   string
	ObjectPrefix string
	Timeout      time.Duration
}

type configurable interface {
	settings() *Settings
}

func (s *Settings) settings() *Settings {
	return s
}

// WithLogger specifies the logger object to use for logging messages
func WithLogger[T configurable](logger *slog.Logger) func(T) {
	return func(store T) {
		store.settings().Logger = logger
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry[T configurable](registry prometheus.Registerer) func(T) {
	return func(store T) {
		store.settings().PromRegistry = registry
	}
}

// WithBucket specifies the bucket holding the objects
func WithBucket[T configurable](bucket string) func(T) {
	return func(store T) {
		store.settings().BucketName = bucket
	}
}

// WithPrefix specifies the object name prefix
func WithPrefix[T configurable](prefix string) func(T) {
	return func(store T) {
		store.settings().ObjectPrefix = prefix
	}
}

// WithTimeout specifies the timeout for each request
func WithTimeout[T configurable](timeout time.Duration) func(T) {
	return func(store T) {
		store.settings().Timeout = timeout
	}
}

// Open fills in the defaults and builds the store over bucket. Metrics are
// labelled with the backend name
func (s *Settings) Open(bucket Bucket, backend string) (*Store, error) {
	if s.Logger == nil {
		s.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	store := New(bucket, s.ObjectPrefix, s.Timeout)
	store.SetLogger(s.Logger)
	if s.PromRegistry != nil {
		if err := store.RegisterMetrics(s.PromRegistry, backend); err != nil {
			return nil, err
		}
	}
	return store, nil
}
