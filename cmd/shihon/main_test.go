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

package main

import (
	"testing"

	"github.com/blinklabs-io/shihon/database/plugin"
	"github.com/stretchr/testify/assert"
)

func TestDescribePlugins(t *testing.T) {
	out := describePlugins(plugin.PluginTypeBlob)
	assert.Contains(t, out, "Available blob plugins:")
	for _, name := range []string{"badger", "s3", "gcs"} {
		assert.Contains(t, out, "  "+name+": ")
	}
	assert.NotContains(t, out, "sqlite")

	out = describePlugins(plugin.PluginTypeBlob, plugin.PluginTypeMetadata)
	assert.Contains(t, out, "\nAvailable metadata plugins:\n")
	for _, name := range []string{"sqlite", "postgres", "mysql"} {
		assert.Contains(t, out, "  "+name+": ")
	}
}
