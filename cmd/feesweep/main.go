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

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"agent-trinity-go/internal/chain"
	"agent-trinity-go/internal/common"
	"agent-trinity-go/internal/config"
	"agent-trinity-go/internal/feesweep"

	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "Run a single sweep pass and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting fee distribution sweeper")

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	chainClient, err := chain.NewClient(cfg.Chain)
	if err != nil {
		zap.L().Fatal("Failed to initialize chain client", zap.Error(err))
	}

	sweeper := feesweep.NewSweeper(dbService, chainClient, cfg.FeeSweep)

	if *once {
		sweeper.Sweep(ctx)
		zap.L().Info("Single sweep pass complete")
		return
	}

	sweeper.Start(ctx)

	zap.L().Info("Sweeper running", zap.Duration("interval", cfg.FeeSweep.Interval))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping sweeper...")
	sweeper.Stop()
	zap.L().Info("Shutdown complete")
}
