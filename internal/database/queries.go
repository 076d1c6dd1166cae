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

package database

const (
	// Agent queries
	queryInsertAgent = `
		INSERT INTO agents (id, name, status, trinity_status, skills)
		VALUES (?, ?, ?, ?, ?)`

	queryGetAgent = `
		SELECT id, name, status, trinity_status,
		       wallet_id, wallet_address,
		       fid, signer_uuid, farcaster_username, pfp_url, banner_url,
		       erc8004_token_id, agent_uri, trinity_mint_tx,
		       skills, created_at, updated_at
		FROM agents
		WHERE id = ?`

	querySetAgentStatus = `
		UPDATE agents
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	// Wallet fields and CDP_ONLY land in the same write so the status/field
	// agreement invariant can never be observed broken.
	querySetAgentWallet = `
		UPDATE agents
		SET wallet_id = ?, wallet_address = ?,
		    trinity_status = 'CDP_ONLY', status = 'DEPLOYING',
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	querySetAgentSocial = `
		UPDATE agents
		SET fid = ?, signer_uuid = ?, farcaster_username = ?,
		    pfp_url = ?, banner_url = ?,
		    trinity_status = 'CDP_FARCASTER',
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryCompleteTrinityAgent = `
		UPDATE agents
		SET erc8004_token_id = ?, agent_uri = ?, trinity_mint_tx = ?,
		    trinity_status = 'COMPLETE',
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryListDeployingWithoutSocial = `
		SELECT id, name, status, trinity_status,
		       wallet_id, wallet_address,
		       fid, signer_uuid, farcaster_username, pfp_url, banner_url,
		       erc8004_token_id, agent_uri, trinity_mint_tx,
		       skills, created_at, updated_at
		FROM agents
		WHERE status = 'DEPLOYING'
		  AND wallet_id != ''
		  AND (fid = 0 OR signer_uuid = '')
		ORDER BY created_at`

	queryListActiveWithWallet = `
		SELECT id, name, status, trinity_status,
		       wallet_id, wallet_address,
		       fid, signer_uuid, farcaster_username, pfp_url, banner_url,
		       erc8004_token_id, agent_uri, trinity_mint_tx,
		       skills, created_at, updated_at
		FROM agents
		WHERE status = 'ACTIVE' AND wallet_address != ''
		ORDER BY created_at`

	// Identity queries
	queryInsertIdentity = `
		INSERT INTO erc8004_identities (id, agent_id, token_id, agent_uri, reputation_score, registration_json)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetIdentityByAgent = `
		SELECT id, agent_id, token_id, agent_uri, reputation_score, registration_json, created_at, updated_at
		FROM erc8004_identities
		WHERE agent_id = ?`

	queryUpdateIdentityScore = `
		UPDATE erc8004_identities
		SET reputation_score = ?, updated_at = CURRENT_TIMESTAMP
		WHERE agent_id = ?`

	// Offering queries
	queryInsertOffering = `
		INSERT INTO service_offerings (id, agent_id, name, description, price_usdc, active)
		VALUES (?, ?, ?, ?, ?, 1)`

	queryGetOffering = `
		SELECT id, agent_id, name, description, price_usdc,
		       completed_jobs, avg_latency_ms, avg_rating, active,
		       created_at, updated_at
		FROM service_offerings
		WHERE id = ?`

	queryListOfferings = `
		SELECT id, agent_id, name, description, price_usdc,
		       completed_jobs, avg_latency_ms, avg_rating, active,
		       created_at, updated_at
		FROM service_offerings
		WHERE active = 1 OR ? = 0
		ORDER BY created_at DESC`

	queryGetOfferingStats = `
		SELECT completed_jobs, avg_latency_ms
		FROM service_offerings
		WHERE id = ?`

	queryUpdateOfferingStats = `
		UPDATE service_offerings
		SET completed_jobs = ?, avg_latency_ms = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryUpdateOfferingRating = `
		UPDATE service_offerings
		SET avg_rating = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	// Job queries
	queryInsertJob = `
		INSERT INTO service_jobs (id, offering_id, buyer_agent_id, seller_agent_id,
		                          status, price_usdc, requirements, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetJob = `
		SELECT id, offering_id, buyer_agent_id, seller_agent_id,
		       status, price_usdc, requirements, deliverables, failed_reason,
		       buyer_rating, buyback_usdc, buyback_tx_hash,
		       expires_at, accepted_at, delivered_at, completed_at,
		       created_at, updated_at
		FROM service_jobs
		WHERE id = ?`

	// Guarded on the expected source status: zero rows affected means the job
	// moved underneath us and the caller sees a concurrency conflict.
	queryTransitionJob = `
		UPDATE service_jobs
		SET status = ?,
		    deliverables = CASE WHEN ? != '' THEN ? ELSE deliverables END,
		    failed_reason = CASE WHEN ? != '' THEN ? ELSE failed_reason END,
		    accepted_at = CASE WHEN ? = 'ACCEPTED' THEN ? ELSE accepted_at END,
		    delivered_at = CASE WHEN ? = 'DELIVERING' THEN ? ELSE delivered_at END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`

	queryCompleteJob = `
		UPDATE service_jobs
		SET status = 'COMPLETED',
		    completed_at = ?,
		    deliverables = CASE WHEN ? != '' THEN ? ELSE deliverables END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'DELIVERING'`

	querySetJobBuyback = `
		UPDATE service_jobs
		SET buyback_usdc = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	querySetJobRating = `
		UPDATE service_jobs
		SET buyer_rating = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'COMPLETED' AND buyer_rating IS NULL`

	queryAvgRatingForOffering = `
		SELECT AVG(buyer_rating)
		FROM service_jobs
		WHERE offering_id = ? AND buyer_rating IS NOT NULL`

	queryExpireOverdueJobs = `
		UPDATE service_jobs
		SET status = 'EXPIRED', updated_at = CURRENT_TIMESTAMP
		WHERE status IN ('CREATED', 'ACCEPTED', 'DELIVERING')
		  AND expires_at <= ?`

	// Decision log queries
	queryInsertDecisionLog = `
		INSERT INTO agent_decision_logs (id, agent_id, job_id, prompt, response, model,
		                                 prompt_tokens, response_tokens, latency_ms, success)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryLatestDecisionLogForJob = `
		SELECT id, agent_id, job_id, prompt, response, model,
		       prompt_tokens, response_tokens, latency_ms, success,
		       decision_log_hash, anchored_tx_hash, anchored_at, created_at
		FROM agent_decision_logs
		WHERE job_id = ?
		ORDER BY created_at DESC
		LIMIT 1`

	querySetDecisionHash = `
		UPDATE agent_decision_logs
		SET decision_log_hash = ?
		WHERE id = ?`

	querySetDecisionAnchorTx = `
		UPDATE agent_decision_logs
		SET anchored_tx_hash = ?, anchored_at = ?
		WHERE id = ?`

	// Fee distribution queries
	queryInsertFeeDistribution = `
		INSERT INTO fee_distributions (id, amount, currency, status, tx_hash)
		VALUES (?, ?, ?, ?, ?)`

	queryListFeeDistributions = `
		SELECT id, amount, currency, status, tx_hash, created_at
		FROM fee_distributions
		ORDER BY created_at DESC`

	// Provisioning queue queries
	queryEnqueueTask = `
		INSERT INTO provision_tasks (id, dedup_key, agent_id, status, attempts, next_attempt_at)
		VALUES (?, ?, ?, 'pending', 0, ?)`

	queryNextDueTask = `
		SELECT id, dedup_key, agent_id, status, attempts, next_attempt_at, last_error, created_at, updated_at
		FROM provision_tasks
		WHERE status = 'pending' AND next_attempt_at <= ?
		ORDER BY next_attempt_at
		LIMIT 1`

	queryClaimTask = `
		UPDATE provision_tasks
		SET status = 'running', attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'`

	queryRescheduleTask = `
		UPDATE provision_tasks
		SET status = 'pending', attempts = ?, next_attempt_at = ?, last_error = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryFinishTask = `
		UPDATE provision_tasks
		SET status = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`
)
