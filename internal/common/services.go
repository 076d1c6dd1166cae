/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package common

import (
	"context"
	"fmt"
	"os"

	"agent-trinity-go/internal/chain"
	"agent-trinity-go/internal/custody"
	"agent-trinity-go/internal/database"
	"agent-trinity-go/internal/farcaster"
	"agent-trinity-go/internal/images"
	"agent-trinity-go/internal/models"
	"agent-trinity-go/internal/trinity"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"go.uber.org/zap"
)

// Services bundles everything the binaries wire together. In demo mode every
// external surface is replaced by its deterministic demo twin; the database is
// always real.
type Services struct {
	DbService *database.Service
	Wallets   trinity.WalletProvisioner
	Registrar farcaster.Registrar
	Minter    trinity.IdentityMinter
	Chain     *chain.Client
	Images    *images.Generator
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	chainClient, err := chain.NewClient(cfg.Chain)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	svcs := &Services{
		DbService: dbService,
		Chain:     chainClient,
		Images:    images.NewGenerator(cfg.Images),
	}

	if cfg.DemoMode {
		zap.L().Info("Demo mode enabled, using deterministic local services")
		svcs.Wallets = custody.NewDemoService()
		svcs.Registrar = farcaster.NewDemoRegistrar()
		svcs.Minter = chain.NewDemoMinter()
		return svcs, nil
	}

	zap.L().Info("Loading Prime API credentials")
	creds, err := loadPrimeCredentials()
	if err != nil {
		dbService.Close()
		return nil, err
	}

	custodyService, err := custody.NewService(creds)
	if err != nil {
		dbService.Close()
		return nil, err
	}
	if err := custodyService.Init(ctx); err != nil {
		dbService.Close()
		return nil, err
	}
	svcs.Wallets = custodyService

	if farcaster.Configured(cfg.Social) {
		registrar, err := farcaster.NewClient(cfg.Social)
		if err != nil {
			dbService.Close()
			return nil, err
		}
		svcs.Registrar = registrar
	} else {
		zap.L().Warn("Farcaster credentials missing, social provisioning disabled")
	}

	if chainClient.Configured() {
		svcs.Minter = chainClient
	} else {
		zap.L().Warn("Chain client not configured, identity minting runs in demo form")
		svcs.Minter = chain.NewDemoMinter()
	}

	return svcs, nil
}

// InitializeDatabaseOnly opens just the database, for binaries that never
// touch the external services.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	return database.NewService(ctx, cfg.Database)
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func loadPrimeCredentials() (*credentials.Credentials, error) {
	accessKey := os.Getenv("PRIME_ACCESS_KEY")
	passphrase := os.Getenv("PRIME_PASSPHRASE")
	signingKey := os.Getenv("PRIME_SIGNING_KEY")

	if accessKey == "" || passphrase == "" || signingKey == "" {
		return nil, fmt.Errorf("missing required Prime API credentials: PRIME_ACCESS_KEY, PRIME_PASSPHRASE, PRIME_SIGNING_KEY")
	}

	return &credentials.Credentials{
		AccessKey:  accessKey,
		Passphrase: passphrase,
		SigningKey: signingKey,
	}, nil
}
