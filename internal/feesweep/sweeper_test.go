package feesweep

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"agent-trinity-go/internal/database"
	"agent-trinity-go/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChain struct {
	configured bool
	signer     common.Address
	claimable  map[common.Address]*big.Int
	claimCalls int
}

func (f *fakeChain) Configured() bool              { return f.configured }
func (f *fakeChain) SignerAddress() common.Address { return f.signer }

func (f *fakeChain) GetClaimable(_ context.Context, account common.Address) (*big.Int, error) {
	if amount, ok := f.claimable[account]; ok {
		return new(big.Int).Set(amount), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) ClaimETH(_ context.Context) (common.Hash, error) {
	f.claimCalls++
	return common.HexToHash("0x01"), nil
}

func (f *fakeChain) WaitForTransaction(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash}, nil
}

func newSweepFixture(t *testing.T) *database.Service {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestSweep_UnconfiguredChainIsEmptySuccess(t *testing.T) {
	db := newSweepFixture(t)
	sweeper := NewSweeper(db, &fakeChain{configured: false}, models.FeeSweepConfig{Interval: time.Hour})

	report := sweeper.Sweep(context.Background())
	require.NotNil(t, report)
	assert.Nil(t, report.TreasuryClaimed)
}

func TestSweep_ClaimsTreasuryAndRecordsDistribution(t *testing.T) {
	db := newSweepFixture(t)

	treasury := common.HexToAddress("0x00000000000000000000000000000000000000dd")
	chain := &fakeChain{
		configured: true,
		signer:     treasury,
		claimable: map[common.Address]*big.Int{
			// 0.5 ETH claimable by the treasury.
			treasury: big.NewInt(500_000_000_000_000_000),
		},
	}

	sweeper := NewSweeper(db, chain, models.FeeSweepConfig{
		Interval:        time.Hour,
		ScanConcurrency: 2,
	})

	report := sweeper.Sweep(context.Background())
	require.NotNil(t, report)

	assert.Equal(t, 1, chain.claimCalls)
	assert.Equal(t, "500000000000000000", report.TreasuryClaimed.String())
	assert.NotEmpty(t, report.ClaimTxHash)

	distributions, err := db.ListFeeDistributions(context.Background())
	require.NoError(t, err)
	require.Len(t, distributions, 1)
	assert.Equal(t, "completed", distributions[0].Status)
	assert.Equal(t, "0.5", distributions[0].Amount.String())
	assert.Equal(t, report.ClaimTxHash, distributions[0].TxHash)
}

func TestSweep_NothingClaimableSkipsClaim(t *testing.T) {
	db := newSweepFixture(t)

	chain := &fakeChain{
		configured: true,
		signer:     common.HexToAddress("0x00000000000000000000000000000000000000dd"),
		claimable:  map[common.Address]*big.Int{},
	}

	sweeper := NewSweeper(db, chain, models.FeeSweepConfig{Interval: time.Hour})
	report := sweeper.Sweep(context.Background())

	assert.Zero(t, chain.claimCalls)
	assert.Equal(t, int64(0), report.TreasuryClaimed.Int64())
}

func TestSweep_ScansActiveAgentTreasuries(t *testing.T) {
	db := newSweepFixture(t)
	ctx := context.Background()

	agentWallet := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	agent, err := db.CreateAgent(ctx, "alpha", nil)
	require.NoError(t, err)
	require.NoError(t, db.SetAgentWallet(ctx, agent.Id, "wallet-1", agentWallet.Hex()))
	require.NoError(t, db.SetAgentStatus(ctx, agent.Id, models.AgentActive))

	chain := &fakeChain{
		configured: true,
		signer:     common.HexToAddress("0x00000000000000000000000000000000000000dd"),
		claimable: map[common.Address]*big.Int{
			agentWallet: big.NewInt(1_000),
		},
	}

	sweeper := NewSweeper(db, chain, models.FeeSweepConfig{Interval: time.Hour, ScanConcurrency: 2})
	report := sweeper.Sweep(ctx)

	assert.Equal(t, 1, report.AgentsScanned)
	assert.Equal(t, int64(1_000), report.AgentTotalWei.Int64())
	// Agent balances are observed, never claimed.
	assert.Zero(t, chain.claimCalls)
}

func TestSweep_ObservedOnlyPassStillAuditsRow(t *testing.T) {
	db := newSweepFixture(t)
	ctx := context.Background()

	agentWallet := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	agent, err := db.CreateAgent(ctx, "alpha", nil)
	require.NoError(t, err)
	require.NoError(t, db.SetAgentWallet(ctx, agent.Id, "wallet-1", agentWallet.Hex()))
	require.NoError(t, db.SetAgentStatus(ctx, agent.Id, models.AgentActive))

	// Treasury has nothing to claim; only agent growth capital accrued.
	chain := &fakeChain{
		configured: true,
		signer:     common.HexToAddress("0x00000000000000000000000000000000000000dd"),
		claimable: map[common.Address]*big.Int{
			agentWallet: big.NewInt(2_000_000_000_000_000_000),
		},
	}

	sweeper := NewSweeper(db, chain, models.FeeSweepConfig{Interval: time.Hour, ScanConcurrency: 2})
	report := sweeper.Sweep(ctx)

	assert.Zero(t, chain.claimCalls)
	assert.Equal(t, int64(0), report.TreasuryClaimed.Int64())

	distributions, err := db.ListFeeDistributions(ctx)
	require.NoError(t, err)
	require.Len(t, distributions, 1)
	assert.Equal(t, "observed", distributions[0].Status)
	assert.Equal(t, "2", distributions[0].Amount.String())
	assert.Empty(t, distributions[0].TxHash)
}
