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
	"time"

	"agent-trinity-go/internal/store"

	"go.uber.org/zap"
)

// Scanner periodically finds agents stuck between the wallet and social legs
// and enqueues a provisioning task keyed by the agent id. De-duplication is
// the queue's job, not the scanner's: a duplicate enqueue is rejected by the
// unique key and simply logged.
type Scanner struct {
	store        store.Store
	interval     time.Duration
	enqueueReady bool

	stopChan chan struct{}
	doneChan chan struct{}
}

// NewScanner builds a scanner. enqueueReady is the environment guard: when the
// social API credentials are absent, the scanner keeps scanning and logging
// but never enqueues, so the system degrades to observable inaction.
func NewScanner(st store.Store, interval time.Duration, enqueueReady bool) *Scanner {
	return &Scanner{
		store:        st,
		interval:     interval,
		enqueueReady: enqueueReady,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

func (s *Scanner) Start(ctx context.Context) {
	zap.L().Info("Starting social identity scanner",
		zap.Duration("interval", s.interval),
		zap.Bool("enqueue_enabled", s.enqueueReady))
	go s.scanLoop(ctx)
}

func (s *Scanner) Stop() {
	close(s.stopChan)
	<-s.doneChan
	zap.L().Info("Social identity scanner stopped")
}

func (s *Scanner) scanLoop(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Scan(ctx)

	for {
		select {
		case <-ticker.C:
			s.Scan(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Scan runs one pass. Exported so housekeeping and tests can trigger it
// directly.
func (s *Scanner) Scan(ctx context.Context) {
	agents, err := s.store.ListDeployingWithoutSocial(ctx)
	if err != nil {
		zap.L().Error("Scanner failed to list agents", zap.Error(err))
		return
	}

	if len(agents) == 0 {
		return
	}

	zap.L().Info("Scanner found agents awaiting social identity",
		zap.Int("count", len(agents)))

	if !s.enqueueReady {
		zap.L().Warn("Social credentials absent, not enqueueing",
			zap.Int("pending_agents", len(agents)))
		return
	}

	for _, agent := range agents {
		_, err := s.store.EnqueueProvisionTask(ctx, agent.Id)
		if err != nil {
			if errors.Is(err, store.ErrDuplicateTask) {
				zap.L().Debug("Provisioning task already queued",
					zap.String("agent_id", agent.Id))
				continue
			}
			zap.L().Error("Failed to enqueue provisioning task",
				zap.String("agent_id", agent.Id),
				zap.Error(err))
		}
	}
}
