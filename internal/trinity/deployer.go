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

package trinity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agent-trinity-go/internal/custody"
	"agent-trinity-go/internal/farcaster"
	"agent-trinity-go/internal/models"
	"agent-trinity-go/internal/store"

	"go.uber.org/zap"
)

// WalletProvisioner is the custodial wallet capability the saga needs.
type WalletProvisioner interface {
	ProvisionWallet(ctx context.Context, agentId, agentName string) (*custody.Wallet, error)
}

// SocialRegistrar is the account-creation capability (inline path only; the
// social worker owns the async path).
type SocialRegistrar interface {
	CreateAccount(ctx context.Context, agentId, username, walletAddress, pfpUrl, bannerUrl string) (*farcaster.Account, error)
}

// IdentityMinter mints the on-chain identity token for an agent URI.
type IdentityMinter interface {
	RegisterAgent(ctx context.Context, agentUri string) (int64, string, error)
}

// CdpResult reports the wallet leg of a deploy.
type CdpResult struct {
	WalletId      string `json:"walletId"`
	WalletAddress string `json:"walletAddress"`
}

// FarcasterResult reports the social leg of a deploy.
type FarcasterResult struct {
	Fid      int64  `json:"fid"`
	Username string `json:"username"`
}

// Erc8004Result reports the on-chain leg of a deploy.
type Erc8004Result struct {
	TokenId  int64  `json:"tokenId"`
	AgentUri string `json:"agentUri"`
	MintTx   string `json:"mintTx"`
}

// DeployResult is what Deploy always returns: the reached status, whatever
// legs are done, and the errors that stopped it. Deploy never fails: callers
// re-invoke it later and completed steps are reconstructed from persisted
// state.
type DeployResult struct {
	AgentId       string               `json:"agentId"`
	TrinityStatus models.TrinityStatus `json:"trinityStatus"`
	CDP           *CdpResult           `json:"cdp,omitempty"`
	Farcaster     *FarcasterResult     `json:"farcaster,omitempty"`
	ERC8004       *Erc8004Result       `json:"erc8004,omitempty"`
	Errors        []string             `json:"errors"`
}

// Options tunes a Deployer.
type Options struct {
	// Platform names the registry this deployment belongs to in the
	// identity URI.
	Platform string
	// StartScore is the reputation score a freshly minted identity begins
	// with.
	StartScore int
	// CompleteSocialInline makes step 2 run synchronously instead of being
	// left to the social identity worker.
	CompleteSocialInline bool
}

// Deployer drives an agent through wallet -> social -> on-chain identity,
// persisting after every step. The persisted trinity status is the sole
// re-entrancy mechanism: whatever is already reached is never re-executed.
type Deployer struct {
	store   store.Store
	wallets WalletProvisioner
	social  SocialRegistrar
	minter  IdentityMinter
	opts    Options
}

func NewDeployer(st store.Store, wallets WalletProvisioner, social SocialRegistrar, minter IdentityMinter, opts Options) *Deployer {
	if opts.Platform == "" {
		opts.Platform = "trinity"
	}
	if opts.StartScore == 0 {
		opts.StartScore = 50
	}
	return &Deployer{
		store:   st,
		wallets: wallets,
		social:  social,
		minter:  minter,
		opts:    opts,
	}
}

// Deploy runs as many saga steps as it can, in order, stopping at the first
// failure. Safe to call any number of times.
func (d *Deployer) Deploy(ctx context.Context, agentId string) *DeployResult {
	result := &DeployResult{AgentId: agentId, Errors: []string{}}

	agent, err := d.store.GetAgent(ctx, agentId)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	result.TrinityStatus = agent.TrinityStatus

	if agent.Status == models.AgentPending {
		if err := d.store.SetAgentStatus(ctx, agentId, models.AgentDeploying); err != nil {
			result.Errors = append(result.Errors, err.Error())
			return result
		}
	}

	// Step 1: custodial wallet.
	agent, ok := d.stepWallet(ctx, agent, result)
	if !ok {
		return result
	}

	// Step 2: social account. On the async path the worker owns this leg and
	// the saga stops here until it lands.
	agent, ok = d.stepSocial(ctx, agent, result)
	if !ok {
		return result
	}

	// Step 3: on-chain identity.
	d.stepMint(ctx, agent, result)
	return result
}

func (d *Deployer) stepWallet(ctx context.Context, agent *models.Agent, result *DeployResult) (*models.Agent, bool) {
	if agent.TrinityStatus.Reached(models.TrinityCdpOnly) {
		result.CDP = &CdpResult{WalletId: agent.WalletId, WalletAddress: agent.WalletAddress}
		return agent, true
	}

	wallet, err := d.wallets.ProvisionWallet(ctx, agent.Id, agent.Name)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("wallet provisioning: %v", err))
		zap.L().Error("Wallet provisioning failed",
			zap.String("agent_id", agent.Id),
			zap.Error(err))
		return agent, false
	}

	if err := d.store.SetAgentWallet(ctx, agent.Id, wallet.Id, wallet.Address); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("wallet persistence: %v", err))
		return agent, false
	}

	agent, err = d.store.GetAgent(ctx, agent.Id)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return nil, false
	}

	result.TrinityStatus = agent.TrinityStatus
	result.CDP = &CdpResult{WalletId: agent.WalletId, WalletAddress: agent.WalletAddress}
	return agent, true
}

func (d *Deployer) stepSocial(ctx context.Context, agent *models.Agent, result *DeployResult) (*models.Agent, bool) {
	if agent.TrinityStatus.Reached(models.TrinityCdpFarcaster) {
		result.Farcaster = &FarcasterResult{Fid: agent.Fid, Username: agent.FarcasterUsername}
		return agent, true
	}

	if !d.opts.CompleteSocialInline {
		// The social identity worker completes this leg out of band.
		return agent, false
	}

	if d.social == nil {
		result.Errors = append(result.Errors, "social account: registrar not configured")
		zap.L().Error("Social account creation skipped, no registrar configured",
			zap.String("agent_id", agent.Id))
		return agent, false
	}

	account, err := d.social.CreateAccount(ctx, agent.Id, usernameFor(agent), agent.WalletAddress, agent.PfpUrl, agent.BannerUrl)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("social account: %v", err))
		zap.L().Error("Social account creation failed",
			zap.String("agent_id", agent.Id),
			zap.Error(err))
		return agent, false
	}

	err = d.store.SetAgentSocialIdentity(ctx, agent.Id, account.Fid, account.SignerUuid, account.Username, agent.PfpUrl, agent.BannerUrl)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("social persistence: %v", err))
		return agent, false
	}

	agent, err = d.store.GetAgent(ctx, agent.Id)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return nil, false
	}

	result.TrinityStatus = agent.TrinityStatus
	result.Farcaster = &FarcasterResult{Fid: agent.Fid, Username: agent.FarcasterUsername}
	return agent, true
}

func (d *Deployer) stepMint(ctx context.Context, agent *models.Agent, result *DeployResult) {
	if agent.TrinityStatus.Reached(models.TrinityComplete) {
		result.ERC8004 = &Erc8004Result{
			TokenId:  agent.Erc8004TokenId,
			AgentUri: agent.AgentUri,
			MintTx:   agent.TrinityMintTx,
		}
		return
	}

	agentUri, err := BuildIdentityURI(d.opts.Platform, agent.Id, agent.WalletAddress, agent.Fid, agent.Skills, time.Now())
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("identity uri: %v", err))
		return
	}

	tokenId, mintTx, err := d.minter.RegisterAgent(ctx, agentUri)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("identity mint: %v", err))
		zap.L().Error("Identity mint failed",
			zap.String("agent_id", agent.Id),
			zap.Error(err))
		return
	}

	err = d.store.CompleteTrinity(ctx, store.CompleteTrinityParams{
		AgentId:          agent.Id,
		TokenId:          tokenId,
		AgentUri:         agentUri,
		MintTxHash:       mintTx,
		ReputationScore:  d.opts.StartScore,
		RegistrationJson: agentUri,
	})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("identity persistence: %v", err))
		return
	}

	result.TrinityStatus = models.TrinityComplete
	result.ERC8004 = &Erc8004Result{TokenId: tokenId, AgentUri: agentUri, MintTx: mintTx}
}

func usernameFor(agent *models.Agent) string {
	name := strings.ToLower(strings.ReplaceAll(agent.Name, " ", "-"))
	suffix := agent.Id
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	return fmt.Sprintf("%s-%s", name, suffix)
}
