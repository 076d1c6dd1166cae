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

package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agent-trinity-go/internal/farcaster"
	"agent-trinity-go/internal/models"
	"agent-trinity-go/internal/store"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ImageGenerator produces profile imagery; both calls are optional
// decoration and fail without consequence.
type ImageGenerator interface {
	GenerateProfileImage(ctx context.Context, agentName string) (string, error)
	GenerateBannerImage(ctx context.Context, agentName string) (string, error)
}

// Result reports what one task execution did. An all-false Result is the
// idempotent no-op.
type Result struct {
	AccountCreated bool
	CastPublished  bool
	Activated      bool
}

// Worker is the single-concurrency consumer of the provisioning queue. It
// performs the social leg of the trinity saga outside the request path: image
// generation (non-fatal), account creation (fatal), persistence, genesis cast
// and activation.
type Worker struct {
	store     store.Store
	registrar farcaster.Registrar
	images    ImageGenerator

	pollInterval   time.Duration
	initialBackoff time.Duration
	maxAttempts    int
	// One account creation per rate window, process-wide. The registrar's API
	// throttles hard and the queue absorbs the wait.
	limiter *rate.Limiter

	stopChan chan struct{}
	doneChan chan struct{}
}

type WorkerConfig struct {
	Store     store.Store
	Registrar farcaster.Registrar
	Images    ImageGenerator
	Social    models.SocialConfig
}

func NewWorker(cfg WorkerConfig) *Worker {
	return &Worker{
		store:          cfg.Store,
		registrar:      cfg.Registrar,
		images:         cfg.Images,
		pollInterval:   cfg.Social.PollInterval,
		initialBackoff: cfg.Social.InitialBackoff,
		maxAttempts:    cfg.Social.MaxAttempts,
		limiter:        rate.NewLimiter(rate.Every(cfg.Social.RateInterval), 1),
		stopChan:       make(chan struct{}),
		doneChan:       make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) {
	zap.L().Info("Starting social identity worker",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Int("max_attempts", w.maxAttempts))
	go w.runLoop(ctx)
}

func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	zap.L().Info("Social identity worker stopped")
}

func (w *Worker) runLoop(ctx context.Context) {
	defer close(w.doneChan)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.drainDue(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) drainDue(ctx context.Context) {
	for {
		task, err := w.store.ClaimDueProvisionTask(ctx, time.Now())
		if err != nil {
			if !errors.Is(err, store.ErrNoTask) {
				zap.L().Error("Failed to claim provisioning task", zap.Error(err))
			}
			return
		}
		w.runTask(ctx, task)
	}
}

func (w *Worker) runTask(ctx context.Context, task *models.ProvisionTask) {
	if err := w.limiter.Wait(ctx); err != nil {
		// Shutdown mid-wait: nothing was tried, so hand the task back
		// without burning the attempt the claim recorded. The write gets
		// a fresh context because the worker's own is already done.
		w.release(context.Background(), task, err)
		return
	}

	result, err := w.Process(ctx, task.AgentId)
	if err == nil {
		if err := w.store.FinishProvisionTask(ctx, task.Id, models.TaskDone, ""); err != nil {
			zap.L().Error("Failed to finish task", zap.String("task_id", task.Id), zap.Error(err))
		}
		zap.L().Info("Provisioning task done",
			zap.String("agent_id", task.AgentId),
			zap.Bool("account_created", result.AccountCreated),
			zap.Bool("activated", result.Activated))
		return
	}

	zap.L().Error("Provisioning attempt failed",
		zap.String("agent_id", task.AgentId),
		zap.Int("attempt", task.Attempts),
		zap.Error(err))

	if task.Attempts >= w.maxAttempts {
		if ferr := w.store.FinishProvisionTask(ctx, task.Id, models.TaskDead, err.Error()); ferr != nil {
			zap.L().Error("Failed to dead-letter task", zap.String("task_id", task.Id), zap.Error(ferr))
		}
		if serr := w.store.SetAgentStatus(ctx, task.AgentId, models.AgentFailed); serr != nil {
			zap.L().Error("Failed to mark agent FAILED", zap.String("agent_id", task.AgentId), zap.Error(serr))
		}
		zap.L().Warn("Provisioning retries exhausted, agent FAILED",
			zap.String("agent_id", task.AgentId),
			zap.Int("attempts", task.Attempts))
		return
	}

	w.reschedule(ctx, task, err)
}

func (w *Worker) reschedule(ctx context.Context, task *models.ProvisionTask, cause error) {
	// Exponential backoff: 30s, 60s, 120s, 240s, ...
	delay := w.initialBackoff << (task.Attempts - 1)
	nextAt := time.Now().Add(delay)
	if err := w.store.RescheduleProvisionTask(ctx, task.Id, task.Attempts, nextAt, cause.Error()); err != nil {
		zap.L().Error("Failed to reschedule task", zap.String("task_id", task.Id), zap.Error(err))
		return
	}
	zap.L().Info("Provisioning task rescheduled",
		zap.String("agent_id", task.AgentId),
		zap.Int("attempt", task.Attempts),
		zap.Duration("backoff", delay))
}

// release returns a claimed task to the queue with its attempt counter rolled
// back, keeping it immediately due for the next worker run.
func (w *Worker) release(ctx context.Context, task *models.ProvisionTask, cause error) {
	if err := w.store.RescheduleProvisionTask(ctx, task.Id, task.Attempts-1, time.Now(), cause.Error()); err != nil {
		zap.L().Error("Failed to release task", zap.String("task_id", task.Id), zap.Error(err))
		return
	}
	zap.L().Info("Provisioning task released",
		zap.String("agent_id", task.AgentId),
		zap.Error(cause))
}

// Process runs the social leg for one agent. Exported for tests and for the
// inline deploy path.
func (w *Worker) Process(ctx context.Context, agentId string) (*Result, error) {
	result := &Result{}

	agent, err := w.store.GetAgent(ctx, agentId)
	if err != nil {
		return result, err
	}

	// Idempotency guard: identifiers already persisted means a previous
	// attempt got past account creation. No external calls.
	if agent.HasSocialIdentity() {
		zap.L().Debug("Agent already has social identity, no-op",
			zap.String("agent_id", agentId))
		return result, nil
	}

	// State guard: only DEPLOYING agents with a wallet are eligible.
	if agent.Status != models.AgentDeploying || !agent.HasWallet() {
		zap.L().Warn("Agent not eligible for social provisioning, no-op",
			zap.String("agent_id", agentId),
			zap.String("status", string(agent.Status)))
		return result, nil
	}

	pfpUrl := ""
	if w.images != nil {
		pfpUrl, err = w.images.GenerateProfileImage(ctx, agent.Name)
		if err != nil {
			zap.L().Warn("Profile image generation failed, continuing without",
				zap.String("agent_id", agentId),
				zap.Error(err))
			pfpUrl = ""
		}
	}

	bannerUrl := ""
	if w.images != nil {
		bannerUrl, err = w.images.GenerateBannerImage(ctx, agent.Name)
		if err != nil {
			zap.L().Warn("Banner image generation failed, continuing without",
				zap.String("agent_id", agentId),
				zap.Error(err))
			bannerUrl = ""
		}
	}

	account, err := w.registrar.CreateAccount(ctx, agent.Id, usernameFor(agent), agent.WalletAddress, pfpUrl, bannerUrl)
	if err != nil {
		return result, fmt.Errorf("account creation failed: %w", err)
	}
	result.AccountCreated = true

	err = w.store.SetAgentSocialIdentity(ctx, agent.Id, account.Fid, account.SignerUuid, account.Username, pfpUrl, bannerUrl)
	if err != nil {
		return result, fmt.Errorf("failed to persist social identity: %w", err)
	}

	// Once the identifiers are persisted the idempotency guard would skip any
	// retry, so a failed genesis cast is logged rather than propagated.
	castHash, err := w.registrar.PublishCast(ctx, account.SignerUuid, genesisCast(agent))
	if err != nil {
		zap.L().Warn("Genesis cast failed",
			zap.String("agent_id", agentId),
			zap.Error(err))
	} else {
		result.CastPublished = true
		zap.L().Info("Genesis cast published",
			zap.String("agent_id", agentId),
			zap.String("cast", castHash))
	}

	if err := w.store.SetAgentStatus(ctx, agent.Id, models.AgentActive); err != nil {
		return result, fmt.Errorf("failed to activate agent: %w", err)
	}
	result.Activated = true

	return result, nil
}

func genesisCast(agent *models.Agent) string {
	if len(agent.Skills) > 0 {
		return fmt.Sprintf("gm. %s is online. Offering: %s.", agent.Name, strings.Join(agent.Skills, ", "))
	}
	return fmt.Sprintf("gm. %s is online.", agent.Name)
}

func usernameFor(agent *models.Agent) string {
	name := strings.ToLower(strings.ReplaceAll(agent.Name, " ", "-"))
	suffix := agent.Id
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	return fmt.Sprintf("%s-%s", name, suffix)
}
