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

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"agent-trinity-go/internal/models"
	"agent-trinity-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Service) CreateAgent(ctx context.Context, name string, skills []string) (*models.Agent, error) {
	if skills == nil {
		skills = []string{}
	}
	skillsJson, err := json.Marshal(skills)
	if err != nil {
		return nil, fmt.Errorf("failed to encode skills: %w", err)
	}

	agentId := uuid.New().String()
	_, err = s.db.ExecContext(ctx, queryInsertAgent,
		agentId, name, string(models.AgentPending), string(models.TrinityNone), string(skillsJson))
	if err != nil {
		return nil, fmt.Errorf("failed to insert agent: %w", err)
	}

	zap.L().Info("Agent registered",
		zap.String("agent_id", agentId),
		zap.String("name", name))

	return s.GetAgent(ctx, agentId)
}

func (s *Service) GetAgent(ctx context.Context, agentId string) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx, queryGetAgent, agentId)
	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("agent %s: %w", agentId, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return agent, nil
}

func (s *Service) SetAgentStatus(ctx context.Context, agentId string, status models.AgentStatus) error {
	result, err := s.db.ExecContext(ctx, querySetAgentStatus, string(status), agentId)
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}
	return requireRow(result, agentId)
}

func (s *Service) SetAgentWallet(ctx context.Context, agentId, walletId, walletAddress string) error {
	result, err := s.db.ExecContext(ctx, querySetAgentWallet, walletId, walletAddress, agentId)
	if err != nil {
		return fmt.Errorf("failed to persist wallet: %w", err)
	}
	return requireRow(result, agentId)
}

func (s *Service) SetAgentSocialIdentity(ctx context.Context, agentId string, fid int64, signerUuid, username, pfpUrl, bannerUrl string) error {
	result, err := s.db.ExecContext(ctx, querySetAgentSocial,
		fid, signerUuid, username, pfpUrl, bannerUrl, agentId)
	if err != nil {
		return fmt.Errorf("failed to persist social identity: %w", err)
	}
	return requireRow(result, agentId)
}

// CompleteTrinity writes the mint result onto the agent and creates the
// identity row in one transaction. This is the only saga step touching two
// tables, so it is the only one that needs explicit atomicity.
func (s *Service) CompleteTrinity(ctx context.Context, params store.CompleteTrinityParams) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, queryCompleteTrinityAgent,
		params.TokenId, params.AgentUri, params.MintTxHash, params.AgentId)
	if err != nil {
		return fmt.Errorf("failed to update agent mint fields: %w", err)
	}
	if err := requireRow(result, params.AgentId); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, queryInsertIdentity,
		uuid.New().String(), params.AgentId, params.TokenId,
		params.AgentUri, params.ReputationScore, params.RegistrationJson)
	if err != nil {
		return fmt.Errorf("failed to insert identity row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trinity completion: %w", err)
	}

	zap.L().Info("Trinity completed",
		zap.String("agent_id", params.AgentId),
		zap.Int64("token_id", params.TokenId),
		zap.String("mint_tx", params.MintTxHash))

	return nil
}

func (s *Service) ListDeployingWithoutSocial(ctx context.Context) ([]models.Agent, error) {
	return s.listAgents(ctx, queryListDeployingWithoutSocial)
}

func (s *Service) ListActiveWithWallet(ctx context.Context) ([]models.Agent, error) {
	return s.listAgents(ctx, queryListActiveWithWallet)
}

func (s *Service) listAgents(ctx context.Context, query string) ([]models.Agent, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}()

	var agents []models.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, *agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent rows: %w", err)
	}
	return agents, nil
}

func (s *Service) GetIdentityByAgent(ctx context.Context, agentId string) (*models.ERC8004Identity, error) {
	var identity models.ERC8004Identity
	err := s.db.QueryRowContext(ctx, queryGetIdentityByAgent, agentId).Scan(
		&identity.Id, &identity.AgentId, &identity.TokenId, &identity.AgentUri,
		&identity.ReputationScore, &identity.RegistrationJson,
		&identity.CreatedAt, &identity.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("identity for agent %s: %w", agentId, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return &identity, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*models.Agent, error) {
	var agent models.Agent
	var skillsJson string
	err := row.Scan(
		&agent.Id, &agent.Name, &agent.Status, &agent.TrinityStatus,
		&agent.WalletId, &agent.WalletAddress,
		&agent.Fid, &agent.SignerUuid, &agent.FarcasterUsername, &agent.PfpUrl, &agent.BannerUrl,
		&agent.Erc8004TokenId, &agent.AgentUri, &agent.TrinityMintTx,
		&skillsJson, &agent.CreatedAt, &agent.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(skillsJson), &agent.Skills); err != nil {
		return nil, fmt.Errorf("failed to decode skills %q: %w", skillsJson, err)
	}
	return &agent, nil
}

func requireRow(result sql.Result, agentId string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("agent %s: %w", agentId, store.ErrNotFound)
	}
	return nil
}
