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

package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/blinklabs-io/shihon/database/plugin"
	"github.com/blinklabs-io/shihon/ledger"
	"github.com/blinklabs-io/shihon/ledger/common"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "shihon.config"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

const (
	DefaultBlobPlugin     = "badger"
	DefaultMetadataPlugin = "sqlite"
	// EnvPrefix is prepended to every environment variable read by LoadConfig
	EnvPrefix = "shihon"
)

type tempConfig struct {
	Config   yaml.Node                 `yaml:"config,omitempty"`
	Database *databaseConfig           `yaml:"database,omitempty"`
	Blob     map[string]map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]map[string]any `yaml:"metadata,omitempty"`
}

type databaseConfig struct {
	Blob     map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

type Config struct {
	DatabasePath   string `yaml:"databasePath"   split_words:"true"`
	BlobPlugin     string `yaml:"blobPlugin"     envconfig:"SHIHON_DATABASE_BLOB_PLUGIN"`
	MetadataPlugin string `yaml:"metadataPlugin" envconfig:"SHIHON_DATABASE_METADATA_PLUGIN"`
	BindAddr       string `yaml:"bindAddr"       split_words:"true"`
	MetricsPort    uint   `yaml:"metricsPort"    split_words:"true"`
	// Tracing exports spans over OTLP/HTTP, configured by the standard
	// OTEL_EXPORTER_OTLP_* environment variables
	Tracing       bool           `yaml:"tracing"`
	TracingStdout bool           `yaml:"tracingStdout" split_words:"true"`
	Protocol      ProtocolConfig `yaml:"protocol"`
}

// ProtocolConfig holds the protocol parameters as written in config files.
// Durations use time.ParseDuration syntax and the stake mint is either a
// mint name or an encoded address
type ProtocolConfig struct {
	StakeMint          string `yaml:"stakeMint"          split_words:"true"`
	EscrowTTL          string `yaml:"escrowTTL"          envconfig:"ESCROW_TTL"`
	CandidateCap       uint64 `yaml:"candidateCap"       split_words:"true"`
	MinCandidates      uint32 `yaml:"minCandidates"      split_words:"true"`
	MaxCandidates      uint32 `yaml:"maxCandidates"      split_words:"true"`
	RatingCeiling      uint64 `yaml:"ratingCeiling"      split_words:"true"`
	RatingThreshold    uint64 `yaml:"ratingThreshold"    split_words:"true"`
	ResaleThreshold    uint64 `yaml:"resaleThreshold"    split_words:"true"`
	RoundDuration      string `yaml:"roundDuration"      split_words:"true"`
	CrowningMinRounds  uint64 `yaml:"crowningMinRounds"  split_words:"true"`
	VoteRoundThreshold uint64 `yaml:"voteRoundThreshold" split_words:"true"`
	VoteEpochLength    string `yaml:"voteEpochLength"    split_words:"true"`
}

// Params converts the protocol section into validated ledger parameters
func (p ProtocolConfig) Params() (ledger.Params, error) {
	ret := ledger.Params{
		CandidateCap:       p.CandidateCap,
		MinCandidates:      p.MinCandidates,
		MaxCandidates:      p.MaxCandidates,
		RatingCeiling:      p.RatingCeiling,
		RatingThreshold:    p.RatingThreshold,
		ResaleThreshold:    p.ResaleThreshold,
		CrowningMinRounds:  p.CrowningMinRounds,
		VoteRoundThreshold: p.VoteRoundThreshold,
	}
	if addr, err := common.ParseAddress(p.StakeMint); err == nil {
		ret.StakeMint = addr
	} else {
		ret.StakeMint = common.MintAddress(p.StakeMint)
	}
	var err error
	if ret.EscrowTTL, err = parseDuration("escrowTTL", p.EscrowTTL); err != nil {
		return ret, err
	}
	if ret.RoundDuration, err = parseDuration("roundDuration", p.RoundDuration); err != nil {
		return ret, err
	}
	if ret.VoteEpochLength, err = parseDuration("voteEpochLength", p.VoteEpochLength); err != nil {
		return ret, err
	}
	if err := ret.Validate(); err != nil {
		return ret, fmt.Errorf("invalid protocol section: %w", err)
	}
	return ret, nil
}

func parseDuration(name string, val string) (time.Duration, error) {
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, val, err)
	}
	return d, nil
}

func defaultProtocol() ProtocolConfig {
	return ProtocolConfig{
		StakeMint:          ledger.DefaultStakeMintName,
		EscrowTTL:          ledger.DefaultEscrowTTL.String(),
		CandidateCap:       ledger.DefaultCandidateCap,
		MinCandidates:      ledger.DefaultMinCandidates,
		MaxCandidates:      ledger.DefaultMaxCandidates,
		RatingCeiling:      ledger.DefaultRatingCeiling,
		RatingThreshold:    ledger.DefaultRatingThreshold,
		ResaleThreshold:    ledger.DefaultResaleThreshold,
		RoundDuration:      ledger.DefaultRoundDuration.String(),
		CrowningMinRounds:  ledger.DefaultCrowningMinRounds,
		VoteRoundThreshold: ledger.DefaultVoteRoundThreshold,
		VoteEpochLength:    ledger.DefaultVoteEpochLength.String(),
	}
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:   ".shihon",
		BlobPlugin:     DefaultBlobPlugin,
		MetadataPlugin: DefaultMetadataPlugin,
		BindAddr:       "127.0.0.1",
		MetricsPort:    0,
		Protocol:       defaultProtocol(),
	}
}

var globalConfig = DefaultConfig()

// findConfigFile looks for a config file in the user and system locations
func findConfigFile() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(homeDir, ".shihon", "shihon.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return userPath
		}
	}
	systemPath := "/etc/shihon/shihon.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}
	return ""
}

// LoadConfig builds the configuration from the defaults, the config file and
// the environment, in that order. An empty configFile searches
// ~/.shihon/shihon.yaml and then /etc/shihon/shihon.yaml
func LoadConfig(configFile string) (*Config, error) {
	cfg := DefaultConfig()
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		if err := loadConfigFile(configFile, cfg); err != nil {
			return nil, err
		}
	}
	// Process environment variables
	err := envconfig.Process(EnvPrefix, cfg)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	// Process plugin environment variables
	err = plugin.ProcessEnvVars()
	if err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}
	if _, err := cfg.Protocol.Params(); err != nil {
		return nil, err
	}
	if cfg.DatabasePath == "" {
		return nil, errors.New("databasePath must not be empty")
	}
	globalConfig = cfg
	return cfg, nil
}

func loadConfigFile(configFile string, cfg *Config) error {
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	// First unmarshal into temp config to handle plugin sections
	var tempCfg tempConfig
	if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	if !tempCfg.Config.IsZero() {
		// Overlay config values onto existing defaults
		if err := tempCfg.Config.Decode(cfg); err != nil {
			return fmt.Errorf("error parsing config section: %w", err)
		}
	} else if err := yaml.Unmarshal(buf, cfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	// Process plugin configurations
	pluginConfig := make(map[string]map[string]map[string]any)
	if tempCfg.Blob != nil {
		pluginConfig["blob"] = tempCfg.Blob
	}
	if tempCfg.Metadata != nil {
		pluginConfig["metadata"] = tempCfg.Metadata
	}
	if tempCfg.Database != nil {
		if tempCfg.Database.Blob != nil {
			if name := takePluginName(tempCfg.Database.Blob); name != "" {
				cfg.BlobPlugin = name
			}
			mergePluginConfig(pluginConfig, "blob", tempCfg.Database.Blob)
		}
		if tempCfg.Database.Metadata != nil {
			if name := takePluginName(tempCfg.Database.Metadata); name != "" {
				cfg.MetadataPlugin = name
			}
			mergePluginConfig(pluginConfig, "metadata", tempCfg.Database.Metadata)
		}
	}
	if len(pluginConfig) > 0 {
		if err := plugin.ProcessConfig(pluginConfig); err != nil {
			return fmt.Errorf("error processing plugin config: %w", err)
		}
	}
	return nil
}

// takePluginName removes and returns the plugin selector of a database section
func takePluginName(section map[string]any) string {
	pluginVal, exists := section["plugin"]
	if !exists {
		return ""
	}
	pluginName, ok := pluginVal.(string)
	if !ok {
		return ""
	}
	delete(section, "plugin")
	return pluginName
}

func mergePluginConfig(
	pluginConfig map[string]map[string]map[string]any,
	pluginType string,
	section map[string]any,
) {
	typeConfig := make(map[string]map[string]any)
	for k, v := range section {
		switch val := v.(type) {
		case map[string]any:
			typeConfig[k] = val
		case map[any]any:
			// Convert map[any]any to map[string]any
			stringAnyMap := make(map[string]any)
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					stringAnyMap[keyStr] = vv
				}
			}
			typeConfig[k] = stringAnyMap
		default:
			fmt.Fprintf(
				os.Stderr,
				"warning: skipping %s config entry %q: expected map, got %T\n",
				pluginType,
				k,
				v,
			)
		}
	}
	// Merge with existing config instead of overwriting
	if pluginConfig[pluginType] == nil {
		pluginConfig[pluginType] = typeConfig
	} else {
		maps.Copy(pluginConfig[pluginType], typeConfig)
	}
}

// GetConfig returns the most recently loaded configuration
func GetConfig() *Config {
	return globalConfig
}
