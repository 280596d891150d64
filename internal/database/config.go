// Copyright 2025 Microsoft Corporation
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

package database

import (
	"errors"
	"time"

	"dario.cat/mergo"
)

// ConsistencyLevel mirrors the consistency levels the spec's config
// surface allows; it is translated to azcosmos.ConsistencyLevel at the
// point of use so this package's public surface doesn't leak the SDK type
// into configuration parsing.
type ConsistencyLevel string

const (
	ConsistencyStrong           ConsistencyLevel = "Strong"
	ConsistencyBoundedStaleness ConsistencyLevel = "BoundedStaleness"
	ConsistencySession          ConsistencyLevel = "Session"
	ConsistencyEventual         ConsistencyLevel = "Eventual"
	ConsistencyConsistentPrefix ConsistencyLevel = "ConsistentPrefix"
)

// Config holds the per-provider-instance configuration described in the
// spec's "External Interfaces" section. Field names keep the historical
// "x" prefix on LockTTLSeconds's wire tag for compatibility with existing
// deployments, exactly as the spec requires.
type Config struct {
	// ConnectionString is the store endpoint plus access key. Required.
	ConnectionString string `json:"connectionString"`

	// DatabaseID is the logical database name. Required.
	DatabaseID string `json:"databaseId"`

	// LockTTLSeconds is the TTL of lock records. Defaults to 30.
	LockTTLSeconds int32 `json:"xLockTtlSeconds"`

	// CompressionEnabled toggles gzip on written payloads. Defaults to true.
	CompressionEnabled *bool `json:"compressionEnabled"`

	// ConsistencyLevel is the default read consistency. Defaults to Strong.
	ConsistencyLevel ConsistencyLevel `json:"consistencyLevel"`
}

// DefaultConfig returns the documented defaults for every optional key.
func DefaultConfig() Config {
	compression := true
	return Config{
		LockTTLSeconds:     30,
		CompressionEnabled: &compression,
		ConsistencyLevel:   ConsistencyStrong,
	}
}

// WithDefaults merges cfg over DefaultConfig(), leaving any field cfg
// sets explicitly untouched and filling in the rest. DatabaseID is
// validated, not defaulted: a missing required field is a configuration
// error per the spec's error-handling design (fail fast at
// initialization, never recovered). ConnectionString is validated
// separately by NewClientFromConnectionString, since it is not required
// for the Azure-AD-authenticated NewClientFromAccountEndpoint path.
func (cfg Config) WithDefaults() (Config, error) {
	merged := DefaultConfig()
	if err := mergo.Merge(&merged, cfg, mergo.WithOverride()); err != nil {
		return Config{}, err
	}

	if merged.DatabaseID == "" {
		return Config{}, errors.New("database: DatabaseID is required")
	}
	if merged.LockTTLSeconds <= 0 {
		return Config{}, errors.New("database: LockTTLSeconds must be positive")
	}

	return merged, nil
}

// LockTTL returns LockTTLSeconds as a time.Duration.
func (cfg Config) LockTTL() time.Duration {
	return time.Duration(cfg.LockTTLSeconds) * time.Second
}

// RequestTimeout implements §4.2: requestTimeout = lockTtlSeconds / 2, so
// that a hung request cannot outlive the lock it is protecting.
func (cfg Config) RequestTimeout() time.Duration {
	return cfg.LockTTL() / 2
}

// MaxRetryWaitOnRateLimited implements §4.2: maxRetryWaitOnRateLimited =
// lockTtlSeconds / 2.
func (cfg Config) MaxRetryWaitOnRateLimited() time.Duration {
	return cfg.LockTTL() / 2
}

// Compressed reports whether gzip compression is enabled, defaulting to
// true when unset.
func (cfg Config) Compressed() bool {
	return cfg.CompressionEnabled == nil || *cfg.CompressionEnabled
}
