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

package badger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blinklabs-io/shihon/database/plugin"
)

// BadgerLogger adapts a plugin.Logger to the printf-style logger badger expects
type BadgerLogger struct {
	logger plugin.Logger
	mu     sync.RWMutex
}

func NewBadgerLogger(logger plugin.Logger) *BadgerLogger {
	return &BadgerLogger{logger: logger}
}

// SetLogger swaps the destination logger of an already opened database
func (b *BadgerLogger) SetLogger(logger plugin.Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
}

func (b *BadgerLogger) get() plugin.Logger {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.logger
}

func (b *BadgerLogger) format(msg string, args ...any) string {
	return strings.TrimSuffix(fmt.Sprintf(msg, args...), "\n")
}

func (b *BadgerLogger) Errorf(msg string, args ...any) {
	b.get().Error(b.format(msg, args...), "component", "database")
}

func (b *BadgerLogger) Warningf(msg string, args ...any) {
	b.get().Warn(b.format(msg, args...), "component", "database")
}

func (b *BadgerLogger) Infof(msg string, args ...any) {
	b.get().Info(b.format(msg, args...), "component", "database")
}

func (b *BadgerLogger) Debugf(msg string, args ...any) {
	b.get().Debug(b.format(msg, args...), "component", "database")
}
