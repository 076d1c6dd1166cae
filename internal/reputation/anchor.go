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

package reputation

import (
	"context"
	"encoding/hex"
	"time"

	"agent-trinity-go/internal/models"
	"agent-trinity-go/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ChainAnchorer is the narrow slice of the chain client the pipeline needs.
type ChainAnchorer interface {
	Configured() bool
	AddValidation(ctx context.Context, tokenId int64, hash [32]byte, passed bool) (common.Hash, error)
	UpdateReputation(ctx context.Context, tokenId int64, score int) (common.Hash, error)
	WaitForTransaction(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// AnchorResult is the outcome of one anchoring run. AnchorTxHash is empty when
// the on-chain leg was skipped or failed; the local state is committed either
// way.
type AnchorResult struct {
	JobId               string         `json:"jobId"`
	AgentId             string         `json:"agentId"`
	Hash                string         `json:"hash"`
	Delta               int            `json:"delta"`
	NewScore            int            `json:"newScore"`
	LatencyBonusApplied bool           `json:"latencyBonusApplied"`
	AnchorTxHash        string         `json:"anchorTxHash,omitempty"`
	Envelope            map[string]any `json:"envelope"`
}

// Pipeline hashes a job's decision log, applies the scoring policy and
// anchors the result. Anchor never returns an error: every failure is logged
// and surfaces as nil so job completion is unaffected.
type Pipeline struct {
	store    store.Store
	policy   Policy
	chain    ChainAnchorer
	demoMode bool
}

func NewPipeline(st store.Store, policy Policy, chain ChainAnchorer, demoMode bool) *Pipeline {
	return &Pipeline{
		store:    st,
		policy:   policy,
		chain:    chain,
		demoMode: demoMode,
	}
}

func (p *Pipeline) Anchor(ctx context.Context, jobId, agentId string, isSuccess bool, executionTimeMs, maxLatencyMs int64) *AnchorResult {
	log, err := p.store.LatestDecisionLogForJob(ctx, jobId)
	if err != nil {
		zap.L().Warn("Anchor skipped, no decision log for job",
			zap.String("job_id", jobId),
			zap.Error(err))
		return nil
	}

	currentScore := p.policy.StartScore()
	identity, err := p.store.GetIdentityByAgent(ctx, agentId)
	if err == nil {
		currentScore = identity.ReputationScore
	}

	delta, newScore, breakdown, bonusApplied := p.policy.Score(currentScore, isSuccess, executionTimeMs, maxLatencyMs)

	hash, err := HashCanonical(map[string]any{
		"agentId":        log.AgentId,
		"jobId":          log.JobId,
		"prompt":         log.Prompt,
		"response":       log.Response,
		"model":          log.Model,
		"promptTokens":   log.PromptTokens,
		"responseTokens": log.ResponseTokens,
		"latencyMs":      log.LatencyMs,
		"success":        log.Success,
		"createdAt":      log.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		zap.L().Error("Anchor failed to hash decision log",
			zap.String("job_id", jobId),
			zap.Error(err))
		return nil
	}

	// The envelope carries only non-sensitive fields; the raw prompt and
	// response are represented solely by the hash.
	envelope := map[string]any{
		"jobId":               jobId,
		"agentId":             agentId,
		"success":             isSuccess,
		"executionTimeMs":     executionTimeMs,
		"decisionLogHash":     hash,
		"reputationDelta":     delta,
		"reputationNewScore":  newScore,
		"latencyBonusApplied": bonusApplied,
		"scoreBreakdown":      breakdown,
		"anchoredAt":          time.Now().UTC().Format(time.RFC3339),
	}

	if err := p.store.AnchorDecision(ctx, store.AnchorDecisionParams{
		DecisionLogId: log.Id,
		AgentId:       agentId,
		Hash:          hash,
		NewScore:      newScore,
	}); err != nil {
		zap.L().Error("Anchor failed to persist hash and score",
			zap.String("job_id", jobId),
			zap.String("agent_id", agentId),
			zap.Error(err))
		return nil
	}

	result := &AnchorResult{
		JobId:               jobId,
		AgentId:             agentId,
		Hash:                hash,
		Delta:               delta,
		NewScore:            newScore,
		LatencyBonusApplied: bonusApplied,
		Envelope:            envelope,
	}

	// On-chain leg is best-effort and never rolls back the local commit.
	if txHash := p.anchorOnChain(ctx, log.Id, identity, hash, isSuccess, newScore); txHash != "" {
		result.AnchorTxHash = txHash
	}

	zap.L().Info("Decision log anchored",
		zap.String("job_id", jobId),
		zap.String("agent_id", agentId),
		zap.String("hash", hash),
		zap.Int("delta", delta),
		zap.Int("new_score", newScore),
		zap.Bool("latency_bonus", bonusApplied),
		zap.String("tx_hash", result.AnchorTxHash))

	return result
}

func (p *Pipeline) anchorOnChain(ctx context.Context, decisionLogId string, identity *models.ERC8004Identity, hash string, passed bool, newScore int) string {
	if p.demoMode || p.chain == nil || !p.chain.Configured() {
		return ""
	}
	if identity == nil || identity.TokenId <= 0 {
		return ""
	}

	hashBytes, err := hex.DecodeString(hash)
	if err != nil || len(hashBytes) != 32 {
		zap.L().Error("Anchor hash is not a 32-byte hex string",
			zap.String("decision_log_id", decisionLogId),
			zap.String("hash", hash))
		return ""
	}
	var hash32 [32]byte
	copy(hash32[:], hashBytes)

	validationTx, err := p.chain.AddValidation(ctx, identity.TokenId, hash32, passed)
	if err != nil {
		zap.L().Error("Failed to submit validation on chain",
			zap.String("decision_log_id", decisionLogId),
			zap.Int64("token_id", identity.TokenId),
			zap.Error(err))
		return ""
	}
	if _, err := p.chain.WaitForTransaction(ctx, validationTx); err != nil {
		zap.L().Error("Validation transaction did not confirm",
			zap.String("tx_hash", validationTx.Hex()),
			zap.Error(err))
		return ""
	}

	reputationTx, err := p.chain.UpdateReputation(ctx, identity.TokenId, newScore)
	if err != nil {
		zap.L().Error("Failed to update reputation on chain",
			zap.Int64("token_id", identity.TokenId),
			zap.Int("new_score", newScore),
			zap.Error(err))
		return ""
	}
	if _, err := p.chain.WaitForTransaction(ctx, reputationTx); err != nil {
		zap.L().Error("Reputation transaction did not confirm",
			zap.String("tx_hash", reputationTx.Hex()),
			zap.Error(err))
		return ""
	}

	if err := p.store.SetDecisionAnchorTx(ctx, decisionLogId, validationTx.Hex(), time.Now()); err != nil {
		zap.L().Error("Failed to persist anchor transaction hash",
			zap.String("decision_log_id", decisionLogId),
			zap.String("tx_hash", validationTx.Hex()),
			zap.Error(err))
	}

	return validationTx.Hex()
}
