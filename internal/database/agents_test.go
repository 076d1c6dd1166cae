package database

import (
	"context"
	"errors"
	"testing"

	"agent-trinity-go/internal/models"
	"agent-trinity-go/internal/store"
)

func TestCreateAgent_StartsPending(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	agent := createTestAgent(t, service, "alpha")

	if agent.Status != models.AgentPending {
		t.Errorf("Expected PENDING, got %s", agent.Status)
	}
	if agent.TrinityStatus != models.TrinityNone {
		t.Errorf("Expected trinity NONE, got %s", agent.TrinityStatus)
	}
	if len(agent.Skills) != 1 || agent.Skills[0] != "research" {
		t.Errorf("Skills did not round-trip: %v", agent.Skills)
	}
}

func TestGetAgent_NotFound(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := service.GetAgent(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSetAgentWallet_AdvancesTrinity(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	agent := createTestAgent(t, service, "alpha")

	if err := service.SetAgentWallet(ctx, agent.Id, "wallet-1", "0xabc0000000000000000000000000000000000001"); err != nil {
		t.Fatalf("SetAgentWallet failed: %v", err)
	}

	got, err := service.GetAgent(ctx, agent.Id)
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if got.TrinityStatus != models.TrinityCdpOnly {
		t.Errorf("Expected trinity CDP_ONLY, got %s", got.TrinityStatus)
	}
	if got.Status != models.AgentDeploying {
		t.Errorf("Expected DEPLOYING, got %s", got.Status)
	}
	if !got.HasWallet() {
		t.Error("Expected HasWallet after wallet persist")
	}
}

func TestSetAgentSocialIdentity_AdvancesTrinity(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	agent := createTestAgent(t, service, "alpha")
	if err := service.SetAgentWallet(ctx, agent.Id, "wallet-1", "0xabc0000000000000000000000000000000000001"); err != nil {
		t.Fatalf("SetAgentWallet failed: %v", err)
	}

	if err := service.SetAgentSocialIdentity(ctx, agent.Id, 42, "signer-1", "alpha", "https://img/pfp", "https://img/banner"); err != nil {
		t.Fatalf("SetAgentSocialIdentity failed: %v", err)
	}

	got, err := service.GetAgent(ctx, agent.Id)
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if got.TrinityStatus != models.TrinityCdpFarcaster {
		t.Errorf("Expected trinity CDP_FARCASTER, got %s", got.TrinityStatus)
	}
	if !got.HasSocialIdentity() {
		t.Error("Expected HasSocialIdentity after social persist")
	}
}

func TestCompleteTrinity_WritesAgentAndIdentityTogether(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	agent := createTestAgent(t, service, "alpha")
	if err := service.SetAgentWallet(ctx, agent.Id, "wallet-1", "0xabc0000000000000000000000000000000000001"); err != nil {
		t.Fatalf("SetAgentWallet failed: %v", err)
	}
	if err := service.SetAgentSocialIdentity(ctx, agent.Id, 42, "signer-1", "alpha", "", ""); err != nil {
		t.Fatalf("SetAgentSocialIdentity failed: %v", err)
	}

	err := service.CompleteTrinity(ctx, store.CompleteTrinityParams{
		AgentId:          agent.Id,
		TokenId:          7,
		AgentUri:         "data:application/json;base64,eyJ9",
		MintTxHash:       "0xmint",
		ReputationScore:  50,
		RegistrationJson: `{"agentId":"` + agent.Id + `"}`,
	})
	if err != nil {
		t.Fatalf("CompleteTrinity failed: %v", err)
	}

	got, err := service.GetAgent(ctx, agent.Id)
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if got.TrinityStatus != models.TrinityComplete {
		t.Errorf("Expected trinity COMPLETE, got %s", got.TrinityStatus)
	}
	if got.Erc8004TokenId != 7 {
		t.Errorf("Expected token id 7, got %d", got.Erc8004TokenId)
	}

	identity, err := service.GetIdentityByAgent(ctx, agent.Id)
	if err != nil {
		t.Fatalf("GetIdentityByAgent failed: %v", err)
	}
	if identity.TokenId != 7 {
		t.Errorf("Expected identity token 7, got %d", identity.TokenId)
	}
	if identity.ReputationScore != 50 {
		t.Errorf("Expected starting score 50, got %d", identity.ReputationScore)
	}
}

func TestListDeployingWithoutSocial(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	waiting := createTestAgent(t, service, "waiting")
	if err := service.SetAgentWallet(ctx, waiting.Id, "wallet-1", "0xabc0000000000000000000000000000000000001"); err != nil {
		t.Fatalf("SetAgentWallet failed: %v", err)
	}

	done := createTestAgent(t, service, "done")
	if err := service.SetAgentWallet(ctx, done.Id, "wallet-2", "0xabc0000000000000000000000000000000000002"); err != nil {
		t.Fatalf("SetAgentWallet failed: %v", err)
	}
	if err := service.SetAgentSocialIdentity(ctx, done.Id, 42, "signer-2", "done", "", ""); err != nil {
		t.Fatalf("SetAgentSocialIdentity failed: %v", err)
	}

	// Still PENDING, no wallet yet.
	createTestAgent(t, service, "fresh")

	agents, err := service.ListDeployingWithoutSocial(ctx)
	if err != nil {
		t.Fatalf("ListDeployingWithoutSocial failed: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("Expected 1 agent, got %d", len(agents))
	}
	if agents[0].Id != waiting.Id {
		t.Errorf("Expected agent %s, got %s", waiting.Id, agents[0].Id)
	}
}
