package chain

import (
	"context"
	"fmt"
	"hash/fnv"

	"go.uber.org/zap"
)

// DemoMinter stands in for the identity registry when no chain is configured.
// Token ids are derived from the URI and tx hashes carry a 0xdemo prefix,
// which is not valid hex and cannot be mistaken for a real transaction.
type DemoMinter struct{}

func NewDemoMinter() *DemoMinter {
	return &DemoMinter{}
}

func (m *DemoMinter) RegisterAgent(_ context.Context, agentUri string) (int64, string, error) {
	h := fnv.New64a()
	h.Write([]byte(agentUri))
	tokenId := int64(h.Sum64() % 1_000_000)
	txHash := fmt.Sprintf("0xdemo%059x", h.Sum64())

	zap.L().Info("Minted demo identity token",
		zap.Int64("token_id", tokenId),
		zap.String("tx", txHash))

	return tokenId, txHash, nil
}
