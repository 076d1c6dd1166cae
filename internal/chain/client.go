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

package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"agent-trinity-go/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// Client is a thin wrapper over an Ethereum JSON-RPC endpoint exposing
// read calls, simulate-then-send writes and receipt waiting for the identity
// registry and fee splitter contracts.
type Client struct {
	eth             *ethclient.Client
	key             *ecdsa.PrivateKey
	from            common.Address
	chainId         *big.Int
	registry        common.Address
	splitter        common.Address
	receiptInterval time.Duration
	receiptTimeout  time.Duration
}

// NewClient connects to the configured RPC endpoint. Missing RPC URL or
// signing key yields an unconfigured client: callers check Configured() and
// degrade instead of erroring.
func NewClient(cfg models.ChainConfig) (*Client, error) {
	c := &Client{
		chainId:         big.NewInt(cfg.ChainId),
		receiptInterval: cfg.ReceiptInterval,
		receiptTimeout:  cfg.ReceiptTimeout,
	}
	if cfg.RegistryAddress != "" {
		c.registry = common.HexToAddress(cfg.RegistryAddress)
	}
	if cfg.SplitterAddress != "" {
		c.splitter = common.HexToAddress(cfg.SplitterAddress)
	}

	if cfg.RpcUrl == "" || cfg.PrivateKey == "" {
		zap.L().Warn("Chain client not configured, on-chain operations disabled")
		return c, nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid chain private key: %w", err)
	}

	eth, err := ethclient.Dial(cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("unable to dial chain rpc: %w", err)
	}

	c.eth = eth
	c.key = key
	c.from = crypto.PubkeyToAddress(key.PublicKey)

	zap.L().Info("Chain client initialized",
		zap.String("signer", c.from.Hex()),
		zap.Int64("chain_id", cfg.ChainId))

	return c, nil
}

// Configured reports whether the client can sign and send transactions.
func (c *Client) Configured() bool {
	return c.eth != nil && c.key != nil
}

// SignerAddress returns the deployer (protocol treasury) address.
func (c *Client) SignerAddress() common.Address {
	return c.from
}

// ReadContract packs a view call, executes it and unpacks the outputs.
func (c *Client) ReadContract(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("chain client not configured")
	}

	input, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	output, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s failed: %w", method, err)
	}

	values, err := parsed.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s output: %w", method, err)
	}
	return values, nil
}

// WriteContract simulates the call from the signer address first, then signs
// and broadcasts it. The simulation output is returned so callers can recover
// would-be return values (e.g. the minted token id).
func (c *Client) WriteContract(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...any) (common.Hash, []byte, error) {
	if !c.Configured() {
		return common.Hash{}, nil, fmt.Errorf("chain client not configured")
	}

	input, err := parsed.Pack(method, args...)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{From: c.from, To: &contract, Data: input}
	simOutput, err := c.eth.CallContract(ctx, msg, nil)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("simulation of %s reverted: %w", method, err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasLimit, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("failed to estimate gas for %s: %w", method, err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &contract,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainId), c.key)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("failed to sign %s tx: %w", method, err)
	}

	if err := c.eth.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, nil, fmt.Errorf("failed to send %s tx: %w", method, err)
	}

	zap.L().Info("Transaction sent",
		zap.String("method", method),
		zap.String("tx", signedTx.Hash().Hex()))

	return signedTx.Hash(), simOutput, nil
}

// WaitForTransaction polls for the receipt at a fixed interval until the
// configured timeout. A mined-but-reverted transaction is an error.
func (c *Client) WaitForTransaction(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("chain client not configured")
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.receiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(waitCtx, txHash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("transaction %s reverted", txHash.Hex())
			}
			return receipt, nil
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("timed out waiting for receipt %s: %w", txHash.Hex(), waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// RegisterAgent mints an identity token referencing the agent URI. The token
// id comes from the simulation output of the same calldata.
func (c *Client) RegisterAgent(ctx context.Context, agentUri string) (int64, string, error) {
	txHash, simOutput, err := c.WriteContract(ctx, c.registry, registryABI, "registerAgent", agentUri)
	if err != nil {
		return 0, "", err
	}

	values, err := registryABI.Unpack("registerAgent", simOutput)
	if err != nil || len(values) == 0 {
		return 0, "", fmt.Errorf("failed to decode minted token id: %w", err)
	}
	tokenId, ok := values[0].(*big.Int)
	if !ok {
		return 0, "", fmt.Errorf("unexpected token id type %T", values[0])
	}

	if _, err := c.WaitForTransaction(ctx, txHash); err != nil {
		return 0, "", err
	}

	return tokenId.Int64(), txHash.Hex(), nil
}

// AddValidation records a pass/fail validation entry keyed by the decision
// hash.
func (c *Client) AddValidation(ctx context.Context, tokenId int64, hash [32]byte, passed bool) (common.Hash, error) {
	txHash, _, err := c.WriteContract(ctx, c.registry, registryABI, "addValidation",
		big.NewInt(tokenId), hash, passed)
	return txHash, err
}

// UpdateReputation pushes the new score on-chain.
func (c *Client) UpdateReputation(ctx context.Context, tokenId int64, score int) (common.Hash, error) {
	txHash, _, err := c.WriteContract(ctx, c.registry, registryABI, "updateReputation",
		big.NewInt(tokenId), big.NewInt(int64(score)))
	return txHash, err
}

// GetClaimable reads the claimable wei balance for an address on the splitter.
func (c *Client) GetClaimable(ctx context.Context, account common.Address) (*big.Int, error) {
	values, err := c.ReadContract(ctx, c.splitter, splitterABI, "getClaimable", account)
	if err != nil {
		return nil, err
	}
	claimable, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected claimable type %T", values[0])
	}
	return claimable, nil
}

// ClaimETH executes the treasury claim on the splitter.
func (c *Client) ClaimETH(ctx context.Context) (common.Hash, error) {
	txHash, _, err := c.WriteContract(ctx, c.splitter, splitterABI, "claimETH")
	return txHash, err
}

// GetDistributionCount reads the number of distributions the splitter has run.
func (c *Client) GetDistributionCount(ctx context.Context) (*big.Int, error) {
	values, err := c.ReadContract(ctx, c.splitter, splitterABI, "getDistributionCount")
	if err != nil {
		return nil, err
	}
	count, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected count type %T", values[0])
	}
	return count, nil
}
