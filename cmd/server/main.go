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
	"agent-trinity-go/internal/jobs"
	"agent-trinity-go/internal/reputation"
	"agent-trinity-go/internal/server"
	"agent-trinity-go/internal/trinity"
	"agent-trinity-go/internal/x402"

	"go.uber.org/zap"
)

func main() {
	policyFile := flag.String("policy", "", "Optional path to a reputation policy yaml (default: built-in parameters)")
	inlineSocial := flag.Bool("inline-social", false, "Run the social identity leg synchronously during deploy instead of handing it to the worker")
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

	zap.L().Info("Starting agent trinity server")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	policy, err := reputation.LoadPolicy(*policyFile)
	if err != nil {
		zap.L().Fatal("Failed to load reputation policy", zap.Error(err))
	}

	deployer := trinity.NewDeployer(services.DbService, services.Wallets, services.Registrar, services.Minter, trinity.Options{
		Platform:             cfg.Platform,
		StartScore:           policy.StartScore(),
		CompleteSocialInline: *inlineSocial,
	})

	pipeline := reputation.NewPipeline(services.DbService, policy, services.Chain, cfg.DemoMode)
	jobService := jobs.NewService(services.DbService, pipeline, cfg.Jobs)

	payments := x402.NewMiddleware(
		cfg.Server.PaymentNetwork,
		cfg.Server.PaymentAsset,
		cfg.Server.PaymentMaxAmount,
		cfg.Server.PaymentPayTo,
		cfg.Server.FacilitatorUrl,
	)

	srv := server.New(services.DbService, deployer, jobService, payments, cfg.Server.Port)
	srv.Start()

	zap.L().Info("Server running", zap.String("port", cfg.Server.Port))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	srv.Stop(shutdownCtx)

	zap.L().Info("Shutdown complete")
}
