package reputation

import (
	"context"
	"encoding/json"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"agent-trinity-go/internal/database"
	"agent-trinity-go/internal/models"
	"agent-trinity-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSON_Deterministic(t *testing.T) {
	a := map[string]any{"zeta": 1, "alpha": map[string]any{"b": 2, "a": 1}, "mid": []any{"x", "y"}}
	b := map[string]any{"mid": []any{"x", "y"}, "alpha": map[string]any{"a": 1, "b": 2}, "zeta": 1}

	ca, err := CanonicalJSON(a)
	require.NoError(t, err)
	cb, err := CanonicalJSON(b)
	require.NoError(t, err)

	assert.Equal(t, ca, cb)
	assert.Equal(t, `{"alpha":{"a":1,"b":2},"mid":["x","y"],"zeta":1}`, ca)
}

func TestCanonicalJSON_StructInput(t *testing.T) {
	type record struct {
		Zeta  int    `json:"zeta"`
		Alpha string `json:"alpha"`
	}
	canonical, err := CanonicalJSON(record{Zeta: 9, Alpha: "first"})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"first","zeta":9}`, canonical)
}

func TestHashCanonical_Shape(t *testing.T) {
	hash, err := HashCanonical(map[string]any{"jobId": "j-1"})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), hash)

	again, err := HashCanonical(map[string]any{"jobId": "j-1"})
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	different, err := HashCanonical(map[string]any{"jobId": "j-2"})
	require.NoError(t, err)
	assert.NotEqual(t, hash, different)
}

func TestDefaultPolicy_Score(t *testing.T) {
	policy := NewDefaultPolicy()

	delta, newScore, _, bonus := policy.Score(50, true, 200_000, 300_000)
	assert.Equal(t, 2, delta)
	assert.Equal(t, 52, newScore)
	assert.False(t, bonus)

	delta, newScore, breakdown, bonus := policy.Score(50, true, 100_000, 300_000)
	assert.Equal(t, 3, delta)
	assert.Equal(t, 53, newScore)
	assert.True(t, bonus)
	assert.Equal(t, 1, breakdown["latency_bonus"])

	delta, newScore, _, bonus = policy.Score(50, false, 1_000, 300_000)
	assert.Equal(t, -5, delta)
	assert.Equal(t, 45, newScore)
	assert.False(t, bonus)

	// Clamped at the floor and ceiling.
	_, newScore, _, _ = policy.Score(2, false, 0, 300_000)
	assert.Equal(t, 0, newScore)
	_, newScore, _, _ = policy.Score(99, true, 100, 300_000)
	assert.Equal(t, 100, newScore)
}

func newPipelineFixture(t *testing.T) (*Pipeline, *database.Service, string) {
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

	agent, err := db.CreateAgent(ctx, "alpha", nil)
	require.NoError(t, err)
	require.NoError(t, db.SetAgentWallet(ctx, agent.Id, "wallet-1", "0x00000000000000000000000000000000000000aa"))
	require.NoError(t, db.SetAgentSocialIdentity(ctx, agent.Id, 42, "signer-1", "alpha", "", ""))
	require.NoError(t, db.CompleteTrinity(ctx, store.CompleteTrinityParams{
		AgentId:         agent.Id,
		TokenId:         7,
		AgentUri:        "data:application/json;base64,eyJ9",
		MintTxHash:      "0xmint",
		ReputationScore: 50,
	}))

	pipeline := NewPipeline(db, NewDefaultPolicy(), nil, true)
	return pipeline, db, agent.Id
}

func TestAnchor_MissingDecisionLogIsNil(t *testing.T) {
	pipeline, _, agentId := newPipelineFixture(t)

	result := pipeline.Anchor(context.Background(), "no-such-job", agentId, true, 1000, 300_000)
	assert.Nil(t, result)
}

func TestAnchor_PersistsHashAndScore(t *testing.T) {
	pipeline, db, agentId := newPipelineFixture(t)
	ctx := context.Background()

	log := &models.AgentDecisionLog{
		AgentId:   agentId,
		JobId:     "job-1",
		Prompt:    "secret prompt",
		Response:  "secret response",
		Model:     "gpt-4o",
		LatencyMs: 100_000,
		Success:   true,
	}
	require.NoError(t, db.CreateDecisionLog(ctx, log))

	result := pipeline.Anchor(ctx, "job-1", agentId, true, 100_000, 300_000)
	require.NotNil(t, result)

	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), result.Hash)
	assert.Equal(t, 3, result.Delta)
	assert.Equal(t, 53, result.NewScore)
	assert.True(t, result.LatencyBonusApplied)
	assert.Empty(t, result.AnchorTxHash)

	stored, err := db.LatestDecisionLogForJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, result.Hash, stored.DecisionLogHash)

	identity, err := db.GetIdentityByAgent(ctx, agentId)
	require.NoError(t, err)
	assert.Equal(t, 53, identity.ReputationScore)
}

func TestAnchor_EnvelopeExcludesPromptAndResponse(t *testing.T) {
	pipeline, db, agentId := newPipelineFixture(t)
	ctx := context.Background()

	log := &models.AgentDecisionLog{
		AgentId:  agentId,
		JobId:    "job-1",
		Prompt:   "the secret prompt",
		Response: "the secret response",
		Success:  true,
	}
	require.NoError(t, db.CreateDecisionLog(ctx, log))

	result := pipeline.Anchor(ctx, "job-1", agentId, true, 1000, 300_000)
	require.NotNil(t, result)

	raw, err := json.Marshal(result.Envelope)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret prompt")
	assert.NotContains(t, string(raw), "secret response")
	assert.Contains(t, string(raw), result.Hash)
}

func TestAnchor_UsesStartScoreWithoutIdentity(t *testing.T) {
	pipeline, db, _ := newPipelineFixture(t)
	ctx := context.Background()

	// A second agent that never minted.
	bare, err := db.CreateAgent(ctx, "beta", nil)
	require.NoError(t, err)

	log := &models.AgentDecisionLog{
		AgentId: bare.Id,
		JobId:   "job-2",
		Success: true,
	}
	require.NoError(t, db.CreateDecisionLog(ctx, log))

	result := pipeline.Anchor(ctx, "job-2", bare.Id, true, 250_000, 300_000)
	require.NotNil(t, result)
	assert.Equal(t, 52, result.NewScore)
}
