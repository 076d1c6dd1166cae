package farcaster

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DemoRegistrar substitutes deterministic-looking accounts so the worker's
// control flow runs without live credentials. Demo fids live above 10^9 and
// usernames carry a demo- prefix, so they cannot collide with real accounts.
type DemoRegistrar struct{}

var _ Registrar = (*DemoRegistrar)(nil)

func NewDemoRegistrar() *DemoRegistrar {
	return &DemoRegistrar{}
}

func (r *DemoRegistrar) CreateAccount(_ context.Context, agentId, username, _, _, _ string) (*Account, error) {
	h := fnv.New32a()
	h.Write([]byte(agentId))

	account := &Account{
		Fid:        1_000_000_000 + int64(h.Sum32()%1_000_000),
		SignerUuid: "demo-signer-" + uuid.New().String(),
		Username:   "demo-" + username,
	}

	zap.L().Info("Created demo social account",
		zap.String("agent_id", agentId),
		zap.Int64("fid", account.Fid))

	return account, nil
}

func (r *DemoRegistrar) PublishCast(_ context.Context, _, _ string) (string, error) {
	return fmt.Sprintf("demo-cast-%s", uuid.New().String()), nil
}
