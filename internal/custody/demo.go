package custody

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DemoService substitutes deterministic-looking wallets so the saga's control
// flow can be exercised without live credentials. The demo- prefix and the
// 0xDEMO address prefix cannot collide with real Prime or EVM formats.
type DemoService struct{}

func NewDemoService() *DemoService {
	return &DemoService{}
}

func (s *DemoService) Init(_ context.Context) error {
	return nil
}

func (s *DemoService) ProvisionWallet(_ context.Context, agentId, _ string) (*Wallet, error) {
	id := uuid.New().String()
	wallet := &Wallet{
		Id:      "demo-wallet-" + id,
		Address: demoAddress(agentId),
		Network: "demo-network",
	}

	zap.L().Info("Provisioned demo wallet",
		zap.String("agent_id", agentId),
		zap.String("wallet_id", wallet.Id))

	return wallet, nil
}

func demoAddress(agentId string) string {
	seed := agentId
	if len(seed) > 8 {
		seed = seed[:8]
	}
	// 0xDEMO is not valid hex, so this can never be mistaken for a real
	// checksummed address.
	return fmt.Sprintf("0xDEMO%032s", seed)
}
