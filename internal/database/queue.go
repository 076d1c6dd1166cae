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
	"errors"
	"fmt"
	"time"

	"agent-trinity-go/internal/models"
	"agent-trinity-go/internal/store"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// EnqueueProvisionTask inserts a task keyed by the agent id. The UNIQUE
// constraint on dedup_key rejects a second enqueue for the same agent, so at
// most one provisioning task is in flight per agent no matter how many scanner
// ticks fire.
func (s *Service) EnqueueProvisionTask(ctx context.Context, agentId string) (*models.ProvisionTask, error) {
	taskId := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, queryEnqueueTask, taskId, agentId, agentId, now)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("agent %s: %w", agentId, store.ErrDuplicateTask)
		}
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	zap.L().Info("Provisioning task enqueued",
		zap.String("task_id", taskId),
		zap.String("agent_id", agentId))

	return &models.ProvisionTask{
		Id:            taskId,
		DedupKey:      agentId,
		AgentId:       agentId,
		Status:        models.TaskPending,
		NextAttemptAt: now,
	}, nil
}

// ClaimDueProvisionTask picks the oldest due pending task and marks it running,
// incrementing its attempt counter. Returns store.ErrNoTask when the queue has
// nothing due.
func (s *Service) ClaimDueProvisionTask(ctx context.Context, now time.Time) (*models.ProvisionTask, error) {
	var task models.ProvisionTask
	err := s.db.QueryRowContext(ctx, queryNextDueTask, now.UTC()).Scan(
		&task.Id, &task.DedupKey, &task.AgentId, &task.Status,
		&task.Attempts, &task.NextAttemptAt, &task.LastError,
		&task.CreatedAt, &task.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNoTask
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find due task: %w", err)
	}

	result, err := s.db.ExecContext(ctx, queryClaimTask, task.Id)
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Another claimer got there first.
		return nil, store.ErrNoTask
	}

	task.Status = models.TaskRunning
	task.Attempts++
	return &task, nil
}

func (s *Service) RescheduleProvisionTask(ctx context.Context, taskId string, attempts int, nextAttemptAt time.Time, lastError string) error {
	_, err := s.db.ExecContext(ctx, queryRescheduleTask,
		attempts, nextAttemptAt.UTC(), lastError, taskId)
	if err != nil {
		return fmt.Errorf("failed to reschedule task: %w", err)
	}
	return nil
}

func (s *Service) FinishProvisionTask(ctx context.Context, taskId string, status models.TaskStatus, lastError string) error {
	_, err := s.db.ExecContext(ctx, queryFinishTask, string(status), lastError, taskId)
	if err != nil {
		return fmt.Errorf("failed to finish task: %w", err)
	}
	return nil
}
