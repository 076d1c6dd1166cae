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
	"fmt"

	"agent-trinity-go/internal/models"
	"agent-trinity-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.Store.
var _ store.Store = (*Service)(nil)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.initSchema(); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		trinity_status TEXT NOT NULL DEFAULT 'NONE',
		wallet_id TEXT NOT NULL DEFAULT '',
		wallet_address TEXT NOT NULL DEFAULT '',
		fid INTEGER NOT NULL DEFAULT 0,
		signer_uuid TEXT NOT NULL DEFAULT '',
		farcaster_username TEXT NOT NULL DEFAULT '',
		pfp_url TEXT NOT NULL DEFAULT '',
		banner_url TEXT NOT NULL DEFAULT '',
		erc8004_token_id INTEGER NOT NULL DEFAULT 0,
		agent_uri TEXT NOT NULL DEFAULT '',
		trinity_mint_tx TEXT NOT NULL DEFAULT '',
		skills TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);
	CREATE INDEX IF NOT EXISTS idx_agents_trinity_status ON agents(trinity_status);

	CREATE TABLE IF NOT EXISTS erc8004_identities (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL UNIQUE REFERENCES agents(id),
		token_id INTEGER NOT NULL,
		agent_uri TEXT NOT NULL,
		reputation_score INTEGER NOT NULL,
		registration_json TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS service_offerings (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL REFERENCES agents(id),
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price_usdc INTEGER NOT NULL,
		completed_jobs INTEGER NOT NULL DEFAULT 0,
		avg_latency_ms INTEGER NOT NULL DEFAULT 0,
		avg_rating REAL NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_offerings_agent ON service_offerings(agent_id);

	CREATE TABLE IF NOT EXISTS service_jobs (
		id TEXT PRIMARY KEY,
		offering_id TEXT NOT NULL REFERENCES service_offerings(id),
		buyer_agent_id TEXT NOT NULL REFERENCES agents(id),
		seller_agent_id TEXT NOT NULL REFERENCES agents(id),
		status TEXT NOT NULL DEFAULT 'CREATED',
		price_usdc INTEGER NOT NULL,
		requirements TEXT NOT NULL DEFAULT '',
		deliverables TEXT NOT NULL DEFAULT '',
		failed_reason TEXT NOT NULL DEFAULT '',
		buyer_rating INTEGER,
		buyback_usdc INTEGER NOT NULL DEFAULT 0,
		buyback_tx_hash TEXT NOT NULL DEFAULT '',
		expires_at TIMESTAMP NOT NULL,
		accepted_at TIMESTAMP,
		delivered_at TIMESTAMP,
		completed_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_offering ON service_jobs(offering_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON service_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_expires ON service_jobs(expires_at);

	CREATE TABLE IF NOT EXISTS agent_decision_logs (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL REFERENCES agents(id),
		job_id TEXT NOT NULL REFERENCES service_jobs(id),
		prompt TEXT NOT NULL DEFAULT '',
		response TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		response_tokens INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		success BOOLEAN NOT NULL DEFAULT 0,
		decision_log_hash TEXT NOT NULL DEFAULT '',
		anchored_tx_hash TEXT NOT NULL DEFAULT '',
		anchored_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_decision_logs_job ON agent_decision_logs(job_id, created_at);

	CREATE TABLE IF NOT EXISTS fee_distributions (
		id TEXT PRIMARY KEY,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		tx_hash TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS provision_tasks (
		id TEXT PRIMARY KEY,
		dedup_key TEXT NOT NULL UNIQUE,
		agent_id TEXT NOT NULL REFERENCES agents(id),
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		next_attempt_at TIMESTAMP NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_provision_tasks_due ON provision_tasks(status, next_attempt_at);
	`

	_, err := s.db.Exec(schema)
	return err
}
