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
	"time"

	"agent-trinity-go/internal/common"
	"agent-trinity-go/internal/config"
	"agent-trinity-go/internal/farcaster"
	"agent-trinity-go/internal/jobs"
	"agent-trinity-go/internal/social"

	"go.uber.org/zap"
)

func main() {
	scanOnly := flag.Bool("scan-only", false, "Run the scanner without the task consumer (queue fills but nothing executes)")
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

	zap.L().Info("Starting social identity worker")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	enqueueReady := cfg.DemoMode || farcaster.Configured(cfg.Social)
	scanner := social.NewScanner(services.DbService, cfg.Social.ScanInterval, enqueueReady)
	scanner.Start(ctx)

	var worker *social.Worker
	if !*scanOnly && services.Registrar != nil {
		var imageGen social.ImageGenerator
		if services.Images.Enabled() {
			imageGen = services.Images
		} else {
			zap.L().Info("Image generation disabled, agents get no profile imagery")
		}
		worker = social.NewWorker(social.WorkerConfig{
			Store:     services.DbService,
			Registrar: services.Registrar,
			Images:    imageGen,
			Social:    cfg.Social,
		})
		worker.Start(ctx)
	} else if services.Registrar == nil {
		zap.L().Warn("No social registrar available, running scanner only")
	}

	// Housekeeping: expire overdue marketplace jobs on a fixed cadence.
	jobService := jobs.NewService(services.DbService, nil, cfg.Jobs)
	expireStop := make(chan struct{})
	expireDone := make(chan struct{})
	go func() {
		defer close(expireDone)
		ticker := time.NewTicker(cfg.Jobs.ExpireInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				count, err := jobService.ExpireOverdue(ctx)
				if err != nil {
					zap.L().Error("Failed to expire overdue jobs", zap.Error(err))
				} else if count > 0 {
					zap.L().Info("Expired overdue jobs", zap.Int64("count", count))
				}
			case <-expireStop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	zap.L().Info("Worker running")
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping worker...")

	close(expireStop)
	<-expireDone
	scanner.Stop()
	if worker != nil {
		worker.Stop()
	}

	zap.L().Info("Shutdown complete")
}
