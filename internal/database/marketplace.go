package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"agent-trinity-go/internal/models"
	"agent-trinity-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Service) CreateOffering(ctx context.Context, agentId, name, description string, priceUsdc int64) (*models.ServiceOffering, error) {
	offeringId := uuid.New().String()
	_, err := s.db.ExecContext(ctx, queryInsertOffering,
		offeringId, agentId, name, description, priceUsdc)
	if err != nil {
		return nil, fmt.Errorf("failed to insert offering: %w", err)
	}

	zap.L().Info("Offering published",
		zap.String("offering_id", offeringId),
		zap.String("agent_id", agentId),
		zap.Int64("price_usdc", priceUsdc))

	return s.GetOffering(ctx, offeringId)
}

func (s *Service) GetOffering(ctx context.Context, offeringId string) (*models.ServiceOffering, error) {
	var o models.ServiceOffering
	err := s.db.QueryRowContext(ctx, queryGetOffering, offeringId).Scan(
		&o.Id, &o.AgentId, &o.Name, &o.Description, &o.PriceUsdc,
		&o.CompletedJobs, &o.AvgLatencyMs, &o.AvgRating, &o.Active,
		&o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("offering %s: %w", offeringId, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get offering: %w", err)
	}
	return &o, nil
}

func (s *Service) ListOfferings(ctx context.Context, activeOnly bool) ([]models.ServiceOffering, error) {
	flag := 1
	if !activeOnly {
		flag = 0
	}
	rows, err := s.db.QueryContext(ctx, queryListOfferings, flag)
	if err != nil {
		return nil, fmt.Errorf("failed to list offerings: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}()

	var offerings []models.ServiceOffering
	for rows.Next() {
		var o models.ServiceOffering
		err := rows.Scan(&o.Id, &o.AgentId, &o.Name, &o.Description, &o.PriceUsdc,
			&o.CompletedJobs, &o.AvgLatencyMs, &o.AvgRating, &o.Active,
			&o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offering: %w", err)
		}
		offerings = append(offerings, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offering rows: %w", err)
	}
	return offerings, nil
}

func (s *Service) CreateJob(ctx context.Context, job *models.ServiceJob) error {
	if job.Id == "" {
		job.Id = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, queryInsertJob,
		job.Id, job.OfferingId, job.BuyerAgentId, job.SellerAgentId,
		string(job.Status), job.PriceUsdc, job.Requirements, job.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *Service) GetJob(ctx context.Context, jobId string) (*models.ServiceJob, error) {
	row := s.db.QueryRowContext(ctx, queryGetJob, jobId)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s: %w", jobId, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// TransitionJob performs a status change guarded on the expected source
// status. The timestamp lands on accepted_at or delivered_at depending on the
// target. COMPLETED goes through CompleteJob instead; it carries the offering
// stats update.
func (s *Service) TransitionJob(ctx context.Context, jobId string, from, to models.JobStatus, deliverables, failedReason string, at time.Time) (*models.ServiceJob, error) {
	target := string(to)
	result, err := s.db.ExecContext(ctx, queryTransitionJob,
		target,
		deliverables, deliverables,
		failedReason, failedReason,
		target, at.UTC(),
		target, at.UTC(),
		jobId, string(from))
	if err != nil {
		return nil, fmt.Errorf("failed to transition job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("job %s no longer in %s: %w", jobId, from, store.ErrConcurrentModification)
	}

	return s.GetJob(ctx, jobId)
}

// CompleteJob sets the job's terminal fields and folds the new latency into
// the offering's running average in one transaction. Both writes commit
// together or neither does.
func (s *Service) CompleteJob(ctx context.Context, params store.CompleteJobParams) (*models.ServiceJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var completedJobs, avgLatencyMs int64
	err = tx.QueryRowContext(ctx, queryGetOfferingStats, params.OfferingId).
		Scan(&completedJobs, &avgLatencyMs)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("offering %s: %w", params.OfferingId, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read offering stats: %w", err)
	}

	result, err := tx.ExecContext(ctx, queryCompleteJob,
		params.CompletedAt.UTC(), params.Deliverables, params.Deliverables, params.JobId)
	if err != nil {
		return nil, fmt.Errorf("failed to complete job: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("job %s no longer DELIVERING: %w", params.JobId, store.ErrConcurrentModification)
	}

	// Incremental running average: ((avg * n) + latency) / (n + 1), truncating.
	newAvg := ((avgLatencyMs * completedJobs) + params.LatencyMs) / (completedJobs + 1)
	_, err = tx.ExecContext(ctx, queryUpdateOfferingStats,
		completedJobs+1, newAvg, params.OfferingId)
	if err != nil {
		return nil, fmt.Errorf("failed to update offering stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job completion: %w", err)
	}

	zap.L().Info("Job completed",
		zap.String("job_id", params.JobId),
		zap.String("offering_id", params.OfferingId),
		zap.Int64("latency_ms", params.LatencyMs),
		zap.Int64("completed_jobs", completedJobs+1),
		zap.Int64("avg_latency_ms", newAvg))

	return s.GetJob(ctx, params.JobId)
}

func (s *Service) SetJobBuyback(ctx context.Context, jobId string, buybackUsdc int64) error {
	_, err := s.db.ExecContext(ctx, querySetJobBuyback, buybackUsdc, jobId)
	if err != nil {
		return fmt.Errorf("failed to record buyback allocation: %w", err)
	}
	return nil
}

// RateJob writes the buyer rating onto the job and recomputes the offering's
// mean rating in the same transaction. The UPDATE is guarded so a second
// rating attempt affects zero rows.
func (s *Service) RateJob(ctx context.Context, jobId string, rating int) (*models.ServiceJob, error) {
	job, err := s.GetJob(ctx, jobId)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, querySetJobRating, rating, jobId)
	if err != nil {
		return nil, fmt.Errorf("failed to set rating: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("job %s: %w", jobId, store.ErrAlreadyRated)
	}

	var avgRating sql.NullFloat64
	err = tx.QueryRowContext(ctx, queryAvgRatingForOffering, job.OfferingId).Scan(&avgRating)
	if err != nil {
		return nil, fmt.Errorf("failed to compute mean rating: %w", err)
	}

	_, err = tx.ExecContext(ctx, queryUpdateOfferingRating, avgRating.Float64, job.OfferingId)
	if err != nil {
		return nil, fmt.Errorf("failed to update offering rating: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rating: %w", err)
	}

	zap.L().Info("Job rated",
		zap.String("job_id", jobId),
		zap.Int("rating", rating),
		zap.Float64("offering_avg", avgRating.Float64))

	return s.GetJob(ctx, jobId)
}

func (s *Service) ExpireOverdueJobs(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, queryExpireOverdueJobs, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire jobs: %w", err)
	}
	expired, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if expired > 0 {
		zap.L().Info("Expired overdue jobs", zap.Int64("count", expired))
	}
	return expired, nil
}

func scanJob(row rowScanner) (*models.ServiceJob, error) {
	var job models.ServiceJob
	var rating sql.NullInt64
	var acceptedAt, deliveredAt, completedAt sql.NullTime
	err := row.Scan(
		&job.Id, &job.OfferingId, &job.BuyerAgentId, &job.SellerAgentId,
		&job.Status, &job.PriceUsdc, &job.Requirements, &job.Deliverables, &job.FailedReason,
		&rating, &job.BuybackUsdc, &job.BuybackTxHash,
		&job.ExpiresAt, &acceptedAt, &deliveredAt, &completedAt,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if rating.Valid {
		r := int(rating.Int64)
		job.BuyerRating = &r
	}
	if acceptedAt.Valid {
		job.AcceptedAt = &acceptedAt.Time
	}
	if deliveredAt.Valid {
		job.DeliveredAt = &deliveredAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return &job, nil
}
