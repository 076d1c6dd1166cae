package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"agent-trinity-go/internal/models"
	"agent-trinity-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) CreateDecisionLog(ctx context.Context, log *models.AgentDecisionLog) error {
	if log.Id == "" {
		log.Id = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, queryInsertDecisionLog,
		log.Id, log.AgentId, log.JobId, log.Prompt, log.Response, log.Model,
		log.PromptTokens, log.ResponseTokens, log.LatencyMs, log.Success)
	if err != nil {
		return fmt.Errorf("failed to insert decision log: %w", err)
	}
	return nil
}

func (s *Service) LatestDecisionLogForJob(ctx context.Context, jobId string) (*models.AgentDecisionLog, error) {
	var log models.AgentDecisionLog
	var anchoredAt sql.NullTime
	err := s.db.QueryRowContext(ctx, queryLatestDecisionLogForJob, jobId).Scan(
		&log.Id, &log.AgentId, &log.JobId, &log.Prompt, &log.Response, &log.Model,
		&log.PromptTokens, &log.ResponseTokens, &log.LatencyMs, &log.Success,
		&log.DecisionLogHash, &log.AnchoredTxHash, &anchoredAt, &log.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("decision log for job %s: %w", jobId, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decision log: %w", err)
	}
	if anchoredAt.Valid {
		log.AnchoredAt = &anchoredAt.Time
	}
	return &log, nil
}

// AnchorDecision persists the canonical hash on the decision log and the new
// reputation score on the identity row together. The on-chain leg happens
// later and is best-effort; this transaction is the source of truth.
func (s *Service) AnchorDecision(ctx context.Context, params store.AnchorDecisionParams) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, querySetDecisionHash, params.Hash, params.DecisionLogId)
	if err != nil {
		return fmt.Errorf("failed to set decision hash: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("decision log %s: %w", params.DecisionLogId, store.ErrNotFound)
	}

	_, err = tx.ExecContext(ctx, queryUpdateIdentityScore, params.NewScore, params.AgentId)
	if err != nil {
		return fmt.Errorf("failed to update reputation score: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit anchor: %w", err)
	}

	zap.L().Info("Decision anchored off-chain",
		zap.String("decision_log_id", params.DecisionLogId),
		zap.String("agent_id", params.AgentId),
		zap.Int("new_score", params.NewScore))

	return nil
}

func (s *Service) SetDecisionAnchorTx(ctx context.Context, decisionLogId, txHash string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, querySetDecisionAnchorTx, txHash, at.UTC(), decisionLogId)
	if err != nil {
		return fmt.Errorf("failed to record anchor tx: %w", err)
	}
	return nil
}

func (s *Service) InsertFeeDistribution(ctx context.Context, amount decimal.Decimal, currency, status, txHash string) (*models.FeeDistribution, error) {
	fd := &models.FeeDistribution{
		Id:       uuid.New().String(),
		Amount:   amount,
		Currency: currency,
		Status:   status,
		TxHash:   txHash,
	}
	_, err := s.db.ExecContext(ctx, queryInsertFeeDistribution,
		fd.Id, amount.String(), currency, status, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to insert fee distribution: %w", err)
	}

	zap.L().Info("Fee distribution recorded",
		zap.String("amount", amount.String()),
		zap.String("currency", currency),
		zap.String("status", status))

	return fd, nil
}

func (s *Service) ListFeeDistributions(ctx context.Context) ([]models.FeeDistribution, error) {
	rows, err := s.db.QueryContext(ctx, queryListFeeDistributions)
	if err != nil {
		return nil, fmt.Errorf("failed to list fee distributions: %w", err)
	}
	defer rows.Close()

	var distributions []models.FeeDistribution
	for rows.Next() {
		var fd models.FeeDistribution
		var amount string
		if err := rows.Scan(&fd.Id, &amount, &fd.Currency, &fd.Status, &fd.TxHash, &fd.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fee distribution: %w", err)
		}
		fd.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse fee distribution amount: %w", err)
		}
		distributions = append(distributions, fd)
	}
	return distributions, rows.Err()
}
