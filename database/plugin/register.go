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

package plugin

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/pflag"
)

type PluginType int

const (
	PluginTypeBlob PluginType = iota + 1
	PluginTypeMetadata
)

// EnvPrefix is prepended to the environment variables generated for plugin options
const EnvPrefix = "SHIHON"

func PluginTypeName(pluginType PluginType) string {
	switch pluginType {
	case PluginTypeBlob:
		return "blob"
	case PluginTypeMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// PluginTypeFromName is the inverse of PluginTypeName
func PluginTypeFromName(name string) (PluginType, bool) {
	switch name {
	case "blob":
		return PluginTypeBlob, true
	case "metadata":
		return PluginTypeMetadata, true
	default:
		return 0, false
	}
}

type PluginOptionType int

const (
	PluginOptionTypeString PluginOptionType = iota + 1
	PluginOptionTypeBool
	PluginOptionTypeInt
	PluginOptionTypeUint
)

type PluginOption struct {
	DefaultValue any
	Dest         any
	Name         string
	Description  string
	Type         PluginOptionType
}

type PluginEntry struct {
	NewFromOptionsFunc func() Plugin
	Name               string
	Description        string
	Options            []PluginOption
	Type               PluginType
}

var (
	pluginEntries      []PluginEntry
	pluginEntriesMutex sync.RWMutex
)

// Register adds a plugin to the registry. Plugins call this from init()
func Register(pluginEntry PluginEntry) {
	pluginEntriesMutex.Lock()
	defer pluginEntriesMutex.Unlock()
	pluginEntries = append(pluginEntries, pluginEntry)
}

// GetPlugins returns the registry entries for a plugin type
func GetPlugins(pluginType PluginType) []PluginEntry {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	ret := []PluginEntry{}
	for _, entry := range pluginEntries {
		if entry.Type == pluginType {
			ret = append(ret, entry)
		}
	}
	return ret
}

// GetPlugin creates a new instance of the named plugin from its current options
func GetPlugin(pluginType PluginType, pluginName string) Plugin {
	entry := findEntry(pluginType, pluginName)
	if entry == nil || entry.NewFromOptionsFunc == nil {
		return nil
	}
	return entry.NewFromOptionsFunc()
}

func findEntry(pluginType PluginType, pluginName string) *PluginEntry {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	for i := range pluginEntries {
		if pluginEntries[i].Type == pluginType &&
			pluginEntries[i].Name == pluginName {
			return &pluginEntries[i]
		}
	}
	return nil
}

func optionFlagName(entry PluginEntry, opt PluginOption) string {
	return entry.Name + "-" + opt.Name
}

func optionEnvName(entry PluginEntry, opt PluginOption) string {
	ret := strings.Join(
		[]string{
			EnvPrefix,
			PluginTypeName(entry.Type),
			entry.Name,
			opt.Name,
		},
		"_",
	)
	return strings.ToUpper(strings.ReplaceAll(ret, "-", "_"))
}

// PopulateCmdlineOptions adds a flag for every registered plugin option, named
// as <plugin>-<option>
func PopulateCmdlineOptions(fs *pflag.FlagSet) error {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	for _, entry := range pluginEntries {
		for _, opt := range entry.Options {
			name := optionFlagName(entry, opt)
			desc := fmt.Sprintf(
				"%s (%s plugin %s)",
				opt.Description,
				PluginTypeName(entry.Type),
				entry.Name,
			)
			switch opt.Type {
			case PluginOptionTypeString:
				dest, _ := opt.Dest.(*string)
				def, _ := opt.DefaultValue.(string)
				if dest == nil {
					return fmt.Errorf("invalid destination for option %s", name)
				}
				fs.StringVar(dest, name, def, desc)
			case PluginOptionTypeBool:
				dest, _ := opt.Dest.(*bool)
				def, _ := opt.DefaultValue.(bool)
				if dest == nil {
					return fmt.Errorf("invalid destination for option %s", name)
				}
				fs.BoolVar(dest, name, def, desc)
			case PluginOptionTypeInt:
				dest, _ := opt.Dest.(*int)
				def, _ := opt.DefaultValue.(int)
				if dest == nil {
					return fmt.Errorf("invalid destination for option %s", name)
				}
				fs.IntVar(dest, name, def, desc)
			case PluginOptionTypeUint:
				dest, _ := opt.Dest.(*uint64)
				def, _ := opt.DefaultValue.(uint64)
				if dest == nil {
					return fmt.Errorf("invalid destination for option %s", name)
				}
				fs.Uint64Var(dest, name, def, desc)
			default:
				return fmt.Errorf(
					"unknown plugin option type %d for option %s",
					opt.Type,
					name,
				)
			}
		}
	}
	return nil
}

// ProcessEnvVars applies SHIHON_<TYPE>_<PLUGIN>_<OPTION> environment variables
// to the matching plugin options
func ProcessEnvVars() error {
	pluginEntriesMutex.RLock()
	entries := make([]PluginEntry, len(pluginEntries))
	copy(entries, pluginEntries)
	pluginEntriesMutex.RUnlock()
	for _, entry := range entries {
		for _, opt := range entry.Options {
			envName := optionEnvName(entry, opt)
			envVal, ok := os.LookupEnv(envName)
			if !ok {
				continue
			}
			val, err := parseOptionValue(opt.Type, envVal)
			if err != nil {
				return fmt.Errorf("environment variable %s: %w", envName, err)
			}
			if err := opt.assign(val); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseOptionValue(optType PluginOptionType, raw string) (any, error) {
	switch optType {
	case PluginOptionTypeString:
		return raw, nil
	case PluginOptionTypeBool:
		return strconv.ParseBool(raw)
	case PluginOptionTypeInt:
		return strconv.Atoi(raw)
	case PluginOptionTypeUint:
		return strconv.ParseUint(raw, 10, 64)
	default:
		return nil, fmt.Errorf("unknown plugin option type %d", optType)
	}
}

// ProcessConfig applies plugin options from a config file. The map is keyed
// by plugin type name, then plugin name, then option name
func ProcessConfig(pluginConfig map[string]map[string]map[string]any) error {
	for typeName, plugins := range pluginConfig {
		pluginType, ok := PluginTypeFromName(typeName)
		if !ok {
			return fmt.Errorf("unknown plugin type: %s", typeName)
		}
		for pluginName, options := range plugins {
			if findEntry(pluginType, pluginName) == nil {
				return fmt.Errorf(
					"plugin %s of type %s not found",
					pluginName,
					typeName,
				)
			}
			for optionName, value := range options {
				if err := SetPluginOption(pluginType, pluginName, optionName, value); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
