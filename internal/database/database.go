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
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/Azure/cosmos-sessionstore/internal/utils"
)

// Client bundles the bootstrapped Store and LockClient a single provider
// instance needs, plus the Config it was built from. Store and
// LockClient are exposed as interfaces because newClient wraps the
// concrete implementations in InstrumentedStore/InstrumentedLockClient,
// giving every provider-facade call a database-level span in addition
// to the facade's own coarser-grained one.
type Client struct {
	Store      StoreInterface
	LockClient LockClientInterface
	Config     Config
}

// NewClientFromConnectionString parses cfg.ConnectionString, builds an
// azcosmos.Client, bootstraps the database and container, and returns a
// ready-to-use Client. This is the constructor the provider facade's
// Registry.Facade (C6) calls the first time a provider name is seen.
func NewClientFromConnectionString(ctx context.Context, cfg Config) (*Client, error) {
	merged, err := cfg.WithDefaults()
	if err != nil {
		return nil, utils.TrackError(err)
	}
	if merged.ConnectionString == "" {
		return nil, utils.TrackError(fmt.Errorf("database: ConnectionString is required"))
	}

	client, err := azcosmos.NewClientFromConnectionString(merged.ConnectionString, clientOptions(merged))
	if err != nil {
		return nil, utils.TrackError(fmt.Errorf("database: build cosmos client: %w", err))
	}

	return newClient(ctx, client, merged)
}

// NewClientFromAccountEndpoint builds a Client authenticated against
// accountEndpoint via Azure Active Directory instead of an account key,
// using the ambient credential chain (managed identity, workload
// identity, Azure CLI, …). This is the auth mode operators prefer for
// production deployments; NewClientFromConnectionString remains the
// simpler path for local development and the `connectionString` config
// key.
func NewClientFromAccountEndpoint(ctx context.Context, accountEndpoint string, cfg Config) (*Client, error) {
	merged, err := cfg.WithDefaults()
	if err != nil {
		return nil, utils.TrackError(err)
	}

	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, utils.TrackError(fmt.Errorf("database: build azure credential: %w", err))
	}

	client, err := azcosmos.NewClient(accountEndpoint, credential, clientOptions(merged))
	if err != nil {
		return nil, utils.TrackError(fmt.Errorf("database: build cosmos client: %w", err))
	}

	return newClient(ctx, client, merged)
}

// clientOptions translates §4.2's requestTimeout/maxRetryWaitOnRateLimited
// into the azcosmos client's own retry policy: TryTimeout bounds a single
// request attempt, MaxRetryDelay bounds how long the SDK's built-in retry
// policy will back off on a throttled (429) response. Both constructors
// pass this, so a hung or heavily-throttled request can't outlive the
// lock it holds, per cfg.LockTTLSeconds.
func clientOptions(cfg Config) *azcosmos.ClientOptions {
	return &azcosmos.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				TryTimeout:    cfg.RequestTimeout(),
				MaxRetryDelay: cfg.MaxRetryWaitOnRateLimited(),
			},
		},
	}
}

func newClient(ctx context.Context, client *azcosmos.Client, cfg Config) (*Client, error) {
	_, container, err := Bootstrap(ctx, client, cfg.DatabaseID, cfg)
	if err != nil {
		return nil, err
	}

	lockClient := NewLockClient(container, cfg.LockTTLSeconds)
	store := NewStore(container, cfg)

	return &Client{
		Store:      NewInstrumentedStore(store),
		LockClient: NewInstrumentedLockClient(lockClient),
		Config:     cfg,
	}, nil
}
