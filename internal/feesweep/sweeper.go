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

package feesweep

import (
	"context"
	"math/big"
	"sync"
	"time"

	"agent-trinity-go/internal/models"
	"agent-trinity-go/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ChainReader is the slice of the chain client the sweeper needs.
type ChainReader interface {
	Configured() bool
	SignerAddress() common.Address
	GetClaimable(ctx context.Context, account common.Address) (*big.Int, error)
	ClaimETH(ctx context.Context) (common.Hash, error)
	WaitForTransaction(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// SweepReport summarizes one sweep pass.
type SweepReport struct {
	ScoutFundWei    *big.Int
	TreasuryClaimed *big.Int
	ClaimTxHash     string
	AgentsScanned   int
	AgentTotalWei   *big.Int
}

// Sweeper periodically claims the treasury's share from the fee splitter and
// reports per-agent growth-capital balances. It claims only for the treasury;
// agent balances are observed, never moved.
type Sweeper struct {
	store           store.Store
	chain           ChainReader
	interval        time.Duration
	scoutFund       string
	scanConcurrency int

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewSweeper(st store.Store, chain ChainReader, cfg models.FeeSweepConfig) *Sweeper {
	concurrency := cfg.ScanConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Sweeper{
		store:           st,
		chain:           chain,
		interval:        cfg.Interval,
		scoutFund:       cfg.ScoutFundAddress,
		scanConcurrency: concurrency,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	zap.L().Info("Starting fee distribution sweeper",
		zap.Duration("interval", s.interval),
		zap.String("scout_fund", s.scoutFund))
	go s.sweepLoop(ctx)
}

func (s *Sweeper) Stop() {
	close(s.stopChan)
	<-s.doneChan
	zap.L().Info("Fee distribution sweeper stopped")
}

func (s *Sweeper) sweepLoop(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs one pass. A missing splitter or unconfigured signer is an empty
// success, not an error.
func (s *Sweeper) Sweep(ctx context.Context) *SweepReport {
	if s.chain == nil || !s.chain.Configured() {
		zap.L().Info("Fee sweep skipped, chain client not configured")
		return &SweepReport{}
	}

	report := &SweepReport{
		ScoutFundWei:    big.NewInt(0),
		TreasuryClaimed: big.NewInt(0),
		AgentTotalWei:   big.NewInt(0),
	}

	if s.scoutFund != "" {
		claimable, err := s.chain.GetClaimable(ctx, common.HexToAddress(s.scoutFund))
		if err != nil {
			zap.L().Error("Failed to read scout fund claimable balance", zap.Error(err))
		} else {
			report.ScoutFundWei = claimable
			zap.L().Info("Scout fund claimable balance",
				zap.String("address", s.scoutFund),
				zap.String("wei", claimable.String()))
		}
	}

	s.claimTreasury(ctx, report)
	s.scanAgentTreasuries(ctx, report)

	switch {
	case report.TreasuryClaimed.Sign() > 0:
		amount := decimal.NewFromBigInt(report.TreasuryClaimed, -18)
		if _, err := s.store.InsertFeeDistribution(ctx, amount, "ETH", "completed", report.ClaimTxHash); err != nil {
			zap.L().Error("Failed to record fee distribution", zap.Error(err))
		}
	case report.AgentTotalWei.Sign() > 0:
		// Nothing was swept, but agent growth capital accrued: audit the
		// observation so the pass leaves a trace.
		amount := decimal.NewFromBigInt(report.AgentTotalWei, -18)
		if _, err := s.store.InsertFeeDistribution(ctx, amount, "ETH", "observed", ""); err != nil {
			zap.L().Error("Failed to record fee distribution", zap.Error(err))
		}
	}

	zap.L().Info("Fee sweep pass finished",
		zap.String("treasury_claimed_wei", report.TreasuryClaimed.String()),
		zap.Int("agents_scanned", report.AgentsScanned),
		zap.String("agent_total_wei", report.AgentTotalWei.String()))

	return report
}

func (s *Sweeper) claimTreasury(ctx context.Context, report *SweepReport) {
	treasury := s.chain.SignerAddress()
	claimable, err := s.chain.GetClaimable(ctx, treasury)
	if err != nil {
		zap.L().Error("Failed to read treasury claimable balance", zap.Error(err))
		return
	}
	if claimable.Sign() <= 0 {
		return
	}

	txHash, err := s.chain.ClaimETH(ctx)
	if err != nil {
		zap.L().Error("Failed to claim treasury fees",
			zap.String("wei", claimable.String()),
			zap.Error(err))
		return
	}
	if _, err := s.chain.WaitForTransaction(ctx, txHash); err != nil {
		zap.L().Error("Treasury claim transaction did not confirm",
			zap.String("tx_hash", txHash.Hex()),
			zap.Error(err))
		return
	}

	report.TreasuryClaimed = claimable
	report.ClaimTxHash = txHash.Hex()
	zap.L().Info("Treasury fees claimed",
		zap.String("wei", claimable.String()),
		zap.String("tx_hash", txHash.Hex()))
}

func (s *Sweeper) scanAgentTreasuries(ctx context.Context, report *SweepReport) {
	agents, err := s.store.ListActiveWithWallet(ctx)
	if err != nil {
		zap.L().Error("Failed to list agents for treasury scan", zap.Error(err))
		return
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.scanConcurrency)

	for _, agent := range agents {
		agent := agent
		group.Go(func() error {
			claimable, err := s.chain.GetClaimable(groupCtx, common.HexToAddress(agent.WalletAddress))
			if err != nil {
				zap.L().Warn("Failed to read agent claimable balance",
					zap.String("agent_id", agent.Id),
					zap.Error(err))
				return nil
			}
			if claimable.Sign() > 0 {
				zap.L().Info("Agent growth capital available",
					zap.String("agent_id", agent.Id),
					zap.String("wallet", agent.WalletAddress),
					zap.String("wei", claimable.String()))
			}
			mu.Lock()
			report.AgentsScanned++
			report.AgentTotalWei.Add(report.AgentTotalWei, claimable)
			mu.Unlock()
			return nil
		})
	}
	group.Wait()
}
