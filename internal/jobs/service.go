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

package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agent-trinity-go/internal/models"
	"agent-trinity-go/internal/reputation"
	"agent-trinity-go/internal/store"

	"go.uber.org/zap"
)

// Request-boundary errors. The transition endpoint is the one user-facing
// surface that uses hard errors; everything maps onto not-found, forbidden or
// conflict.
var (
	ErrForbidden  = errors.New("caller may not drive this transition")
	ErrJobExpired = errors.New("job has expired")
)

// Anchorer is the reputation pipeline hook fired on completion. It never
// fails; a nil result means the anchor was skipped or degraded.
type Anchorer interface {
	Anchor(ctx context.Context, jobId, agentId string, isSuccess bool, executionTimeMs, maxLatencyMs int64) *reputation.AnchorResult
}

// Service governs the lifecycle of marketplace jobs: purchase, the closed
// transition table, atomic completion statistics, protocol-fee accounting and
// one-shot buyer ratings.
type Service struct {
	store    store.Store
	anchorer Anchorer
	ttl      time.Duration
	feeBps   int64
	// maxLatencyMs feeds the scoring policy's latency bonus.
	maxLatencyMs int64
}

func NewService(st store.Store, anchorer Anchorer, cfg models.JobsConfig) *Service {
	return &Service{
		store:        st,
		anchorer:     anchorer,
		ttl:          cfg.TTL,
		feeBps:       cfg.FeeBps,
		maxLatencyMs: cfg.MaxLatencyMs,
	}
}

// Purchase creates a CREATED job against an offering.
func (s *Service) Purchase(ctx context.Context, buyerAgentId, offeringId, requirements string) (*models.ServiceJob, error) {
	offering, err := s.store.GetOffering(ctx, offeringId)
	if err != nil {
		return nil, err
	}
	if !offering.Active {
		return nil, fmt.Errorf("offering %s is not active: %w", offeringId, store.ErrNotFound)
	}

	job := &models.ServiceJob{
		OfferingId:    offering.Id,
		BuyerAgentId:  buyerAgentId,
		SellerAgentId: offering.AgentId,
		Status:        models.JobCreated,
		PriceUsdc:     offering.PriceUsdc,
		Requirements:  requirements,
		ExpiresAt:     time.Now().Add(s.ttl),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	zap.L().Info("Job purchased",
		zap.String("job_id", job.Id),
		zap.String("buyer", buyerAgentId),
		zap.String("seller", offering.AgentId),
		zap.Int64("price_usdc", offering.PriceUsdc))

	return s.store.GetJob(ctx, job.Id)
}

// Transition moves a job to the target status. Only the seller agent drives
// transitions; anything outside the table, or after expiry (except REJECTED),
// is a conflict with no state change and no side effects.
func (s *Service) Transition(ctx context.Context, jobId, callerAgentId string, target models.JobStatus, deliverables, failedReason string) (*models.ServiceJob, error) {
	job, err := s.store.GetJob(ctx, jobId)
	if err != nil {
		return nil, err
	}

	if callerAgentId != job.SellerAgentId {
		return nil, fmt.Errorf("agent %s is not the seller of job %s: %w", callerAgentId, jobId, ErrForbidden)
	}

	if !models.CanTransition(job.Status, target) {
		return nil, fmt.Errorf("transition %s -> %s is not allowed: %w", job.Status, target, store.ErrInvalidTransition)
	}

	now := time.Now()
	if now.After(job.ExpiresAt) && target != models.JobRejected {
		return nil, fmt.Errorf("transition %s -> %s after expiry: %w", job.Status, target, ErrJobExpired)
	}

	if target == models.JobCompleted {
		return s.complete(ctx, job, deliverables, now)
	}

	updated, err := s.store.TransitionJob(ctx, jobId, job.Status, target, deliverables, failedReason, now)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Job transitioned",
		zap.String("job_id", jobId),
		zap.String("from", string(job.Status)),
		zap.String("to", string(target)))

	return updated, nil
}

func (s *Service) complete(ctx context.Context, job *models.ServiceJob, deliverables string, now time.Time) (*models.ServiceJob, error) {
	latency := s.latencyFor(job, now)

	updated, err := s.store.CompleteJob(ctx, store.CompleteJobParams{
		JobId:        job.Id,
		OfferingId:   job.OfferingId,
		Deliverables: deliverables,
		LatencyMs:    latency,
		CompletedAt:  now,
	})
	if err != nil {
		return nil, err
	}

	// Fee accounting and anchoring are best-effort: neither may block or fail
	// the completion itself.
	s.allocateBuyback(ctx, updated)
	if s.anchorer != nil {
		s.anchorer.Anchor(ctx, updated.Id, updated.SellerAgentId, true, latency, s.maxLatencyMs)
	}

	return s.store.GetJob(ctx, updated.Id)
}

func (s *Service) latencyFor(job *models.ServiceJob, now time.Time) int64 {
	start := job.CreatedAt
	if job.AcceptedAt != nil {
		start = *job.AcceptedAt
	}
	return now.Sub(start).Milliseconds()
}

func (s *Service) allocateBuyback(ctx context.Context, job *models.ServiceJob) {
	fee := ProtocolFee(job.PriceUsdc, s.feeBps)
	if err := s.store.SetJobBuyback(ctx, job.Id, fee); err != nil {
		zap.L().Error("Failed to record buyback allocation",
			zap.String("job_id", job.Id),
			zap.Int64("fee_usdc", fee),
			zap.Error(err))
		return
	}
	zap.L().Info("Buyback allocation recorded",
		zap.String("job_id", job.Id),
		zap.Int64("fee_usdc", fee))
}

// ProtocolFee computes the protocol's cut in USDC micro-units, truncating.
func ProtocolFee(priceUsdc, feeBps int64) int64 {
	return priceUsdc * feeBps / 10000
}

// Rate records the buyer's one-shot rating on a completed job and folds it
// into the offering's mean.
func (s *Service) Rate(ctx context.Context, jobId, callerAgentId string, rating int) (*models.ServiceJob, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("rating %d out of range 1..5: %w", rating, store.ErrInvalidTransition)
	}

	job, err := s.store.GetJob(ctx, jobId)
	if err != nil {
		return nil, err
	}
	if callerAgentId != job.BuyerAgentId {
		return nil, fmt.Errorf("agent %s is not the buyer of job %s: %w", callerAgentId, jobId, ErrForbidden)
	}
	if job.Status != models.JobCompleted {
		return nil, fmt.Errorf("job %s is %s, only COMPLETED jobs can be rated: %w", jobId, job.Status, store.ErrInvalidTransition)
	}
	if job.BuyerRating != nil {
		return nil, fmt.Errorf("job %s: %w", jobId, store.ErrAlreadyRated)
	}

	return s.store.RateJob(ctx, jobId, rating)
}

// ExpireOverdue marks non-terminal jobs past their deadline EXPIRED.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	return s.store.ExpireOverdueJobs(ctx, time.Now())
}

// WaitTerminal polls at a fixed interval until the job reaches a terminal
// state or the overall timeout elapses.
func (s *Service) WaitTerminal(ctx context.Context, jobId string, interval, timeout time.Duration) (*models.ServiceJob, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := s.store.GetJob(waitCtx, jobId)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("job %s did not reach a terminal state within %v", jobId, timeout)
		case <-ticker.C:
		}
	}
}
