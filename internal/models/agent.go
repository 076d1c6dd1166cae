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

package models

import "time"

// AgentStatus is the lifecycle status of an agent.
type AgentStatus string

const (
	AgentPending    AgentStatus = "PENDING"
	AgentDeploying  AgentStatus = "DEPLOYING"
	AgentActive     AgentStatus = "ACTIVE"
	AgentFailed     AgentStatus = "FAILED"
	AgentPaused     AgentStatus = "PAUSED"
	AgentTerminated AgentStatus = "TERMINATED"
)

// TrinityStatus tracks how far identity provisioning has progressed.
// Each value implies the presence of the corresponding identity fields;
// status and fields are always written in the same statement.
type TrinityStatus string

const (
	TrinityNone         TrinityStatus = "NONE"
	TrinityCdpOnly      TrinityStatus = "CDP_ONLY"
	TrinityCdpFarcaster TrinityStatus = "CDP_FARCASTER"
	TrinityComplete     TrinityStatus = "COMPLETE"
)

// Reached reports whether s is at or past the target status in the
// fixed NONE -> CDP_ONLY -> CDP_FARCASTER -> COMPLETE order.
func (s TrinityStatus) Reached(target TrinityStatus) bool {
	return trinityRank(s) >= trinityRank(target)
}

func trinityRank(s TrinityStatus) int {
	switch s {
	case TrinityCdpOnly:
		return 1
	case TrinityCdpFarcaster:
		return 2
	case TrinityComplete:
		return 3
	default:
		return 0
	}
}

// Agent is the identity root. Created PENDING on registration, mutated
// exclusively by the trinity deployer and the social worker, never deleted.
type Agent struct {
	Id            string        `db:"id"`
	Name          string        `db:"name"`
	Status        AgentStatus   `db:"status"`
	TrinityStatus TrinityStatus `db:"trinity_status"`

	// Custodial wallet leg
	WalletId      string `db:"wallet_id"`
	WalletAddress string `db:"wallet_address"`

	// Social leg
	Fid               int64  `db:"fid"`
	SignerUuid        string `db:"signer_uuid"`
	FarcasterUsername string `db:"farcaster_username"`
	PfpUrl            string `db:"pfp_url"`
	BannerUrl         string `db:"banner_url"`

	// On-chain leg
	Erc8004TokenId int64  `db:"erc8004_token_id"`
	AgentUri       string `db:"agent_uri"`
	TrinityMintTx  string `db:"trinity_mint_tx"`

	Skills    []string  `db:"skills"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// HasWallet reports whether the custodial wallet leg has been provisioned.
func (a *Agent) HasWallet() bool {
	return a.WalletId != "" && a.WalletAddress != ""
}

// HasSocialIdentity reports whether both social identifiers are recorded.
func (a *Agent) HasSocialIdentity() bool {
	return a.Fid != 0 && a.SignerUuid != ""
}

// ERC8004Identity is the on-chain identity row, created atomically with the
// agent's COMPLETE transition and mutated only by the reputation pipeline.
type ERC8004Identity struct {
	Id               string    `db:"id"`
	AgentId          string    `db:"agent_id"`
	TokenId          int64     `db:"token_id"`
	AgentUri         string    `db:"agent_uri"`
	ReputationScore  int       `db:"reputation_score"`
	RegistrationJson string    `db:"registration_json"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// AgentDecisionLog is the private record of one job execution. Raw prompt and
// response never leave the persistence layer; the anchor pipeline attaches the
// hash and anchoring metadata exactly once.
type AgentDecisionLog struct {
	Id              string     `db:"id"`
	AgentId         string     `db:"agent_id"`
	JobId           string     `db:"job_id"`
	Prompt          string     `db:"prompt"`
	Response        string     `db:"response"`
	Model           string     `db:"model"`
	PromptTokens    int        `db:"prompt_tokens"`
	ResponseTokens  int        `db:"response_tokens"`
	LatencyMs       int64      `db:"latency_ms"`
	Success         bool       `db:"success"`
	DecisionLogHash string     `db:"decision_log_hash"`
	AnchoredTxHash  string     `db:"anchored_tx_hash"`
	AnchoredAt      *time.Time `db:"anchored_at"`
	CreatedAt       time.Time  `db:"created_at"`
}
