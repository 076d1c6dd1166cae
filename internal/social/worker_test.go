package social

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"agent-trinity-go/internal/database"
	"agent-trinity-go/internal/farcaster"
	"agent-trinity-go/internal/models"
	"agent-trinity-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistrar struct {
	createCalls int
	createErr   error
	castCalls   int
	castErr     error
}

func (f *fakeRegistrar) CreateAccount(_ context.Context, agentId, username, _, _, _ string) (*farcaster.Account, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &farcaster.Account{Fid: 4242, SignerUuid: "signer-" + agentId, Username: username}, nil
}

func (f *fakeRegistrar) PublishCast(_ context.Context, _, _ string) (string, error) {
	f.castCalls++
	if f.castErr != nil {
		return "", f.castErr
	}
	return "0xcast", nil
}

type fakeImages struct {
	err error
}

func (f *fakeImages) GenerateProfileImage(_ context.Context, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://img/pfp", nil
}

func (f *fakeImages) GenerateBannerImage(_ context.Context, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://img/banner", nil
}

func newWorkerFixture(t *testing.T) (*Worker, *database.Service, *fakeRegistrar, *fakeImages) {
	t.Helper()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	registrar := &fakeRegistrar{}
	images := &fakeImages{}
	worker := NewWorker(WorkerConfig{
		Store:     db,
		Registrar: registrar,
		Images:    images,
		Social: models.SocialConfig{
			PollInterval:   time.Second,
			InitialBackoff: 30 * time.Second,
			MaxAttempts:    5,
			RateInterval:   time.Millisecond,
		},
	})
	return worker, db, registrar, images
}

func createDeployingAgent(t *testing.T, db *database.Service) *models.Agent {
	t.Helper()
	ctx := context.Background()
	agent, err := db.CreateAgent(ctx, "alpha", []string{"research"})
	require.NoError(t, err)
	require.NoError(t, db.SetAgentWallet(ctx, agent.Id, "wallet-1", "0x00000000000000000000000000000000000000aa"))
	got, err := db.GetAgent(ctx, agent.Id)
	require.NoError(t, err)
	return got
}

func TestProcess_FullLegActivatesAgent(t *testing.T) {
	worker, db, _, _ := newWorkerFixture(t)
	agent := createDeployingAgent(t, db)

	result, err := worker.Process(context.Background(), agent.Id)
	require.NoError(t, err)

	assert.True(t, result.AccountCreated)
	assert.True(t, result.CastPublished)
	assert.True(t, result.Activated)

	got, err := db.GetAgent(context.Background(), agent.Id)
	require.NoError(t, err)
	assert.Equal(t, models.AgentActive, got.Status)
	assert.Equal(t, models.TrinityCdpFarcaster, got.TrinityStatus)
	assert.Equal(t, "https://img/pfp", got.PfpUrl)
}

func TestProcess_ExistingIdentityIsNoOp(t *testing.T) {
	worker, db, registrar, _ := newWorkerFixture(t)
	agent := createDeployingAgent(t, db)
	ctx := context.Background()
	require.NoError(t, db.SetAgentSocialIdentity(ctx, agent.Id, 99, "signer-existing", "alpha", "", ""))

	result, err := worker.Process(ctx, agent.Id)
	require.NoError(t, err)

	assert.False(t, result.AccountCreated)
	assert.False(t, result.Activated)
	assert.Zero(t, registrar.createCalls)
	assert.Zero(t, registrar.castCalls)
}

func TestProcess_IneligibleStateIsNoOp(t *testing.T) {
	worker, db, registrar, _ := newWorkerFixture(t)
	ctx := context.Background()

	// PENDING, no wallet yet.
	agent, err := db.CreateAgent(ctx, "alpha", nil)
	require.NoError(t, err)

	result, err := worker.Process(ctx, agent.Id)
	require.NoError(t, err)
	assert.False(t, result.AccountCreated)
	assert.Zero(t, registrar.createCalls)
}

func TestProcess_ImageFailureIsNotFatal(t *testing.T) {
	worker, db, _, images := newWorkerFixture(t)
	agent := createDeployingAgent(t, db)
	images.err = errors.New("image api down")

	result, err := worker.Process(context.Background(), agent.Id)
	require.NoError(t, err)
	assert.True(t, result.Activated)

	got, err := db.GetAgent(context.Background(), agent.Id)
	require.NoError(t, err)
	assert.Empty(t, got.PfpUrl)
	assert.Empty(t, got.BannerUrl)
}

func TestProcess_CastFailureStillActivates(t *testing.T) {
	worker, db, registrar, _ := newWorkerFixture(t)
	agent := createDeployingAgent(t, db)
	registrar.castErr = errors.New("cast rejected")

	result, err := worker.Process(context.Background(), agent.Id)
	require.NoError(t, err)

	assert.True(t, result.AccountCreated)
	assert.False(t, result.CastPublished)
	assert.True(t, result.Activated)

	got, err := db.GetAgent(context.Background(), agent.Id)
	require.NoError(t, err)
	assert.Equal(t, models.AgentActive, got.Status)
}

func TestProcess_AccountFailureIsFatal(t *testing.T) {
	worker, db, registrar, _ := newWorkerFixture(t)
	agent := createDeployingAgent(t, db)
	registrar.createErr = errors.New("neynar 500")

	_, err := worker.Process(context.Background(), agent.Id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account creation failed")

	got, gerr := db.GetAgent(context.Background(), agent.Id)
	require.NoError(t, gerr)
	assert.Equal(t, models.AgentDeploying, got.Status)
	assert.False(t, got.HasSocialIdentity())
}

func TestRunTask_ExhaustedAttemptsDeadLetterAndFailAgent(t *testing.T) {
	worker, db, registrar, _ := newWorkerFixture(t)
	agent := createDeployingAgent(t, db)
	registrar.createErr = errors.New("neynar 500")
	ctx := context.Background()

	_, err := db.EnqueueProvisionTask(ctx, agent.Id)
	require.NoError(t, err)

	// Drive the task through its full retry budget, collapsing the backoff by
	// claiming at ever-later synthetic times.
	now := time.Now()
	for attempt := 1; attempt <= 5; attempt++ {
		task, err := db.ClaimDueProvisionTask(ctx, now.Add(time.Duration(attempt)*time.Hour))
		require.NoError(t, err, "attempt %d should be claimable", attempt)
		require.Equal(t, attempt, task.Attempts)
		worker.runTask(ctx, task)
	}

	// The fifth failure is terminal.
	_, err = db.ClaimDueProvisionTask(ctx, now.Add(100*time.Hour))
	assert.ErrorIs(t, err, store.ErrNoTask)

	got, err := db.GetAgent(ctx, agent.Id)
	require.NoError(t, err)
	assert.Equal(t, models.AgentFailed, got.Status)
	assert.Equal(t, 5, registrar.createCalls)
}

func TestRunTask_CancelledWaitReleasesWithoutBurningAttempt(t *testing.T) {
	worker, db, registrar, _ := newWorkerFixture(t)
	agent := createDeployingAgent(t, db)
	ctx := context.Background()

	_, err := db.EnqueueProvisionTask(ctx, agent.Id)
	require.NoError(t, err)

	task, err := db.ClaimDueProvisionTask(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, task.Attempts)

	// Shutdown before the limiter lets the attempt through: no external call
	// happened, so the claim's attempt must not count.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	worker.runTask(cancelled, task)

	assert.Zero(t, registrar.createCalls)

	// The task is immediately due again and still on its first attempt.
	reclaimed, err := db.ClaimDueProvisionTask(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed.Attempts)

	worker.runTask(ctx, reclaimed)
	assert.Equal(t, 1, registrar.createCalls)

	got, err := db.GetAgent(ctx, agent.Id)
	require.NoError(t, err)
	assert.Equal(t, models.AgentActive, got.Status)
}

func TestScanner_EnqueuesOncePerAgent(t *testing.T) {
	_, db, _, _ := newWorkerFixture(t)
	agent := createDeployingAgent(t, db)
	ctx := context.Background()

	scanner := NewScanner(db, time.Hour, true)
	scanner.Scan(ctx)
	// A second tick must not produce a second task.
	scanner.Scan(ctx)

	task, err := db.ClaimDueProvisionTask(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, agent.Id, task.AgentId)

	_, err = db.ClaimDueProvisionTask(ctx, time.Now())
	assert.ErrorIs(t, err, store.ErrNoTask)
}

func TestScanner_EnvGuardBlocksEnqueue(t *testing.T) {
	_, db, _, _ := newWorkerFixture(t)
	createDeployingAgent(t, db)
	ctx := context.Background()

	scanner := NewScanner(db, time.Hour, false)
	scanner.Scan(ctx)

	_, err := db.ClaimDueProvisionTask(ctx, time.Now())
	assert.ErrorIs(t, err, store.ErrNoTask)
}
