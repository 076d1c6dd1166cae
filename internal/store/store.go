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

package store

import (
	"context"
	"errors"
	"time"

	"agent-trinity-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared by every backend implementation.
var (
	ErrNotFound               = errors.New("record not found")
	ErrDuplicateTask          = errors.New("duplicate task")
	ErrNoTask                 = errors.New("no task due")
	ErrInvalidTransition      = errors.New("invalid job transition")
	ErrAlreadyRated           = errors.New("job already rated")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// CompleteTrinityParams carries everything written when the third saga step
// lands: agent mint fields plus the identity row, committed in one transaction.
type CompleteTrinityParams struct {
	AgentId          string
	TokenId          int64
	AgentUri         string
	MintTxHash       string
	ReputationScore  int
	RegistrationJson string
}

// CompleteJobParams carries the atomic job-completion write: job fields plus
// the offering's completed_jobs and running-average latency.
type CompleteJobParams struct {
	JobId        string
	OfferingId   string
	Deliverables string
	LatencyMs    int64
	CompletedAt  time.Time
}

// AnchorDecisionParams persists the decision-log hash and the new reputation
// score in one transaction.
type AnchorDecisionParams struct {
	DecisionLogId string
	AgentId       string
	Hash          string
	NewScore      int
}

// Store defines the persistence contract consumed by the saga, the workers and
// the marketplace service.
type Store interface {
	// --- Agents ---
	CreateAgent(ctx context.Context, name string, skills []string) (*models.Agent, error)
	GetAgent(ctx context.Context, agentId string) (*models.Agent, error)
	SetAgentStatus(ctx context.Context, agentId string, status models.AgentStatus) error
	SetAgentWallet(ctx context.Context, agentId, walletId, walletAddress string) error
	SetAgentSocialIdentity(ctx context.Context, agentId string, fid int64, signerUuid, username, pfpUrl, bannerUrl string) error
	CompleteTrinity(ctx context.Context, params CompleteTrinityParams) error
	ListDeployingWithoutSocial(ctx context.Context) ([]models.Agent, error)
	ListActiveWithWallet(ctx context.Context) ([]models.Agent, error)

	// --- Identity ---
	GetIdentityByAgent(ctx context.Context, agentId string) (*models.ERC8004Identity, error)

	// --- Offerings ---
	CreateOffering(ctx context.Context, agentId, name, description string, priceUsdc int64) (*models.ServiceOffering, error)
	GetOffering(ctx context.Context, offeringId string) (*models.ServiceOffering, error)
	ListOfferings(ctx context.Context, activeOnly bool) ([]models.ServiceOffering, error)

	// --- Jobs ---
	CreateJob(ctx context.Context, job *models.ServiceJob) error
	GetJob(ctx context.Context, jobId string) (*models.ServiceJob, error)
	TransitionJob(ctx context.Context, jobId string, from, to models.JobStatus, deliverables, failedReason string, at time.Time) (*models.ServiceJob, error)
	CompleteJob(ctx context.Context, params CompleteJobParams) (*models.ServiceJob, error)
	SetJobBuyback(ctx context.Context, jobId string, buybackUsdc int64) error
	RateJob(ctx context.Context, jobId string, rating int) (*models.ServiceJob, error)
	ExpireOverdueJobs(ctx context.Context, now time.Time) (int64, error)

	// --- Decision logs ---
	CreateDecisionLog(ctx context.Context, log *models.AgentDecisionLog) error
	LatestDecisionLogForJob(ctx context.Context, jobId string) (*models.AgentDecisionLog, error)
	AnchorDecision(ctx context.Context, params AnchorDecisionParams) error
	SetDecisionAnchorTx(ctx context.Context, decisionLogId, txHash string, at time.Time) error

	// --- Fee distributions ---
	InsertFeeDistribution(ctx context.Context, amount decimal.Decimal, currency, status, txHash string) (*models.FeeDistribution, error)
	ListFeeDistributions(ctx context.Context) ([]models.FeeDistribution, error)

	// --- Provisioning queue ---
	EnqueueProvisionTask(ctx context.Context, agentId string) (*models.ProvisionTask, error)
	ClaimDueProvisionTask(ctx context.Context, now time.Time) (*models.ProvisionTask, error)
	RescheduleProvisionTask(ctx context.Context, taskId string, attempts int, nextAttemptAt time.Time, lastError string) error
	FinishProvisionTask(ctx context.Context, taskId string, status models.TaskStatus, lastError string) error

	// --- Lifecycle ---
	Close()
}
