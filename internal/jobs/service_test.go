package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"agent-trinity-go/internal/database"
	"agent-trinity-go/internal/models"
	"agent-trinity-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJobsFixture(t *testing.T) (*Service, *database.Service, *models.ServiceOffering, string, string) {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	seller, err := db.CreateAgent(ctx, "seller", nil)
	require.NoError(t, err)
	buyer, err := db.CreateAgent(ctx, "buyer", nil)
	require.NoError(t, err)

	offering, err := db.CreateOffering(ctx, seller.Id, "market-analysis", "Daily market analysis", 1_000_000)
	require.NoError(t, err)

	service := NewService(db, nil, models.JobsConfig{
		TTL:          24 * time.Hour,
		FeeBps:       200,
		MaxLatencyMs: 300_000,
	})
	return service, db, offering, seller.Id, buyer.Id
}

func TestProtocolFee(t *testing.T) {
	assert.Equal(t, int64(20_000), ProtocolFee(1_000_000, 200))
	assert.Equal(t, int64(0), ProtocolFee(49, 200)) // truncates below one unit
	assert.Equal(t, int64(1), ProtocolFee(50, 200))
}

func TestPurchase_CreatesJobWithDeadline(t *testing.T) {
	service, _, offering, sellerId, buyerId := newJobsFixture(t)

	job, err := service.Purchase(context.Background(), buyerId, offering.Id, "analyze BTC")
	require.NoError(t, err)

	assert.Equal(t, models.JobCreated, job.Status)
	assert.Equal(t, sellerId, job.SellerAgentId)
	assert.Equal(t, int64(1_000_000), job.PriceUsdc)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), job.ExpiresAt, time.Minute)
}

func TestTransition_TableSweep(t *testing.T) {
	allStatuses := []models.JobStatus{
		models.JobCreated, models.JobAccepted, models.JobDelivering,
		models.JobCompleted, models.JobRejected, models.JobDisputed,
		models.JobExpired,
	}
	allowed := map[models.JobStatus]map[models.JobStatus]bool{
		models.JobCreated:    {models.JobAccepted: true, models.JobRejected: true},
		models.JobAccepted:   {models.JobDelivering: true},
		models.JobDelivering: {models.JobCompleted: true, models.JobDisputed: true},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			got := models.CanTransition(from, to)
			want := allowed[from][to]
			assert.Equal(t, want, got, "transition %s -> %s", from, to)
		}
	}
}

func TestTransition_SellerOnly(t *testing.T) {
	service, _, offering, _, buyerId := newJobsFixture(t)
	ctx := context.Background()

	job, err := service.Purchase(ctx, buyerId, offering.Id, "")
	require.NoError(t, err)

	_, err = service.Transition(ctx, job.Id, buyerId, models.JobAccepted, "", "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestTransition_DisallowedTargetIsConflict(t *testing.T) {
	service, _, offering, sellerId, buyerId := newJobsFixture(t)
	ctx := context.Background()

	job, err := service.Purchase(ctx, buyerId, offering.Id, "")
	require.NoError(t, err)

	_, err = service.Transition(ctx, job.Id, sellerId, models.JobCompleted, "", "")
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	got, err := service.store.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, models.JobCreated, got.Status)
}

func TestTransition_CompletionRecordsFeeAndStats(t *testing.T) {
	service, db, offering, sellerId, buyerId := newJobsFixture(t)
	ctx := context.Background()

	job, err := service.Purchase(ctx, buyerId, offering.Id, "")
	require.NoError(t, err)

	_, err = service.Transition(ctx, job.Id, sellerId, models.JobAccepted, "", "")
	require.NoError(t, err)
	_, err = service.Transition(ctx, job.Id, sellerId, models.JobDelivering, "", "")
	require.NoError(t, err)

	completed, err := service.Transition(ctx, job.Id, sellerId, models.JobCompleted, "report", "")
	require.NoError(t, err)

	assert.Equal(t, models.JobCompleted, completed.Status)
	assert.Equal(t, "report", completed.Deliverables)
	assert.Equal(t, int64(20_000), completed.BuybackUsdc)
	require.NotNil(t, completed.CompletedAt)

	stats, err := db.GetOffering(ctx, offering.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.CompletedJobs)
}

func TestTransition_ExpiredJobOnlyRejectable(t *testing.T) {
	service, db, offering, sellerId, buyerId := newJobsFixture(t)
	ctx := context.Background()

	// A job already past its deadline but not yet swept.
	job := &models.ServiceJob{
		OfferingId:    offering.Id,
		BuyerAgentId:  buyerId,
		SellerAgentId: sellerId,
		Status:        models.JobCreated,
		PriceUsdc:     offering.PriceUsdc,
		ExpiresAt:     time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.CreateJob(ctx, job))

	_, err := service.Transition(ctx, job.Id, sellerId, models.JobAccepted, "", "")
	assert.ErrorIs(t, err, ErrJobExpired)

	rejected, err := service.Transition(ctx, job.Id, sellerId, models.JobRejected, "", "too late")
	require.NoError(t, err)
	assert.Equal(t, models.JobRejected, rejected.Status)
}

func TestRate_BuyerOnlyAndOnce(t *testing.T) {
	service, _, offering, sellerId, buyerId := newJobsFixture(t)
	ctx := context.Background()

	complete := func() *models.ServiceJob {
		job, err := service.Purchase(ctx, buyerId, offering.Id, "")
		require.NoError(t, err)
		for _, target := range []models.JobStatus{models.JobAccepted, models.JobDelivering, models.JobCompleted} {
			job, err = service.Transition(ctx, job.Id, sellerId, target, "", "")
			require.NoError(t, err)
		}
		return job
	}

	first := complete()
	second := complete()

	_, err := service.Rate(ctx, first.Id, sellerId, 5)
	assert.ErrorIs(t, err, ErrForbidden)

	rated, err := service.Rate(ctx, first.Id, buyerId, 4)
	require.NoError(t, err)
	require.NotNil(t, rated.BuyerRating)
	assert.Equal(t, 4, *rated.BuyerRating)

	_, err = service.Rate(ctx, second.Id, buyerId, 5)
	require.NoError(t, err)

	stats, err := service.store.GetOffering(ctx, offering.Id)
	require.NoError(t, err)
	assert.Equal(t, 4.5, stats.AvgRating)

	_, err = service.Rate(ctx, first.Id, buyerId, 1)
	assert.ErrorIs(t, err, store.ErrAlreadyRated)
}

func TestRate_RequiresCompletedJob(t *testing.T) {
	service, _, offering, _, buyerId := newJobsFixture(t)
	ctx := context.Background()

	job, err := service.Purchase(ctx, buyerId, offering.Id, "")
	require.NoError(t, err)

	_, err = service.Rate(ctx, job.Id, buyerId, 5)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestWaitTerminal(t *testing.T) {
	service, _, offering, sellerId, buyerId := newJobsFixture(t)
	ctx := context.Background()

	job, err := service.Purchase(ctx, buyerId, offering.Id, "")
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = service.Transition(ctx, job.Id, sellerId, models.JobRejected, "", "busy")
	}()

	got, err := service.WaitTerminal(ctx, job.Id, 10*time.Millisecond, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, models.JobRejected, got.Status)
}

func TestWaitTerminal_Timeout(t *testing.T) {
	service, _, offering, _, buyerId := newJobsFixture(t)
	ctx := context.Background()

	job, err := service.Purchase(ctx, buyerId, offering.Id, "")
	require.NoError(t, err)

	_, err = service.WaitTerminal(ctx, job.Id, 10*time.Millisecond, 50*time.Millisecond)
	assert.Error(t, err)
}
