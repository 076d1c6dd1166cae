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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"agent-trinity-go/internal/models"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	scanInterval, err := getEnvDuration("SOCIAL_SCAN_INTERVAL", 60*time.Second)
	if err != nil {
		return nil, err
	}

	pollInterval, err := getEnvDuration("SOCIAL_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}

	initialBackoff, err := getEnvDuration("SOCIAL_INITIAL_BACKOFF", 30*time.Second)
	if err != nil {
		return nil, err
	}

	rateInterval, err := getEnvDuration("SOCIAL_RATE_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, err
	}

	jobTTL, err := getEnvDuration("JOB_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	expireInterval, err := getEnvDuration("JOB_EXPIRE_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	sweepInterval, err := getEnvDuration("FEE_SWEEP_INTERVAL", 1*time.Hour)
	if err != nil {
		return nil, err
	}

	receiptInterval, err := getEnvDuration("CHAIN_RECEIPT_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, err
	}

	receiptTimeout, err := getEnvDuration("CHAIN_RECEIPT_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	chainId, err := getEnvInt64("CHAIN_ID", 8453)
	if err != nil {
		return nil, err
	}

	feeBps, err := getEnvInt64("PROTOCOL_FEE_BPS", 200)
	if err != nil {
		return nil, err
	}

	jobMaxLatencyMs, err := getEnvInt64("JOB_MAX_LATENCY_MS", 300_000)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "agents.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Server: models.ServerConfig{
			Port:             getEnvString("PORT", "8080"),
			PaymentNetwork:   getEnvString("PAYMENT_NETWORK", "base"),
			PaymentAsset:     getEnvString("PAYMENT_ASSET", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
			PaymentPayTo:     getEnvString("PAYMENT_PAY_TO", ""),
			PaymentMaxAmount: getEnvString("PAYMENT_MAX_AMOUNT", "1000000"),
			FacilitatorUrl:   getEnvString("PAYMENT_FACILITATOR_URL", "https://x402.org/facilitator"),
		},
		Social: models.SocialConfig{
			ApiKey:         getEnvString("NEYNAR_API_KEY", ""),
			BaseUrl:        getEnvString("NEYNAR_BASE_URL", "https://api.neynar.com"),
			ScanInterval:   scanInterval,
			PollInterval:   pollInterval,
			InitialBackoff: initialBackoff,
			MaxAttempts:    getEnvInt("SOCIAL_MAX_ATTEMPTS", 5),
			RateInterval:   rateInterval,
		},
		Chain: models.ChainConfig{
			RpcUrl:          getEnvString("CHAIN_RPC_URL", ""),
			PrivateKey:      getEnvString("CHAIN_PRIVATE_KEY", ""),
			RegistryAddress: getEnvString("ERC8004_REGISTRY_ADDRESS", ""),
			SplitterAddress: getEnvString("FEE_SPLITTER_ADDRESS", ""),
			ChainId:         chainId,
			ReceiptInterval: receiptInterval,
			ReceiptTimeout:  receiptTimeout,
		},
		Jobs: models.JobsConfig{
			TTL:            jobTTL,
			FeeBps:         feeBps,
			ExpireInterval: expireInterval,
			MaxLatencyMs:   jobMaxLatencyMs,
		},
		FeeSweep: models.FeeSweepConfig{
			Interval:         sweepInterval,
			ScoutFundAddress: getEnvString("SCOUT_FUND_ADDRESS", ""),
			ScanConcurrency:  getEnvInt("FEE_SCAN_CONCURRENCY", 4),
		},
		Images: models.ImagesConfig{
			ApiKey: getEnvString("OPENAI_API_KEY", ""),
			Model:  getEnvString("IMAGE_MODEL", "dall-e-3"),
			Size:   getEnvString("IMAGE_SIZE", "1024x1024"),
		},
		DemoMode: getEnvBool("DEMO_MODE", false),
		Platform: getEnvString("PLATFORM_NAME", "trinity"),
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %q (%w)", key, value, err)
		}
		return intValue, nil
	}
	return defaultValue, nil
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
