package chain

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSigningClient(t *testing.T) *Client {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &Client{
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainId: big.NewInt(8453),
	}
}

func TestSignTransferAuthorization_PayloadShape(t *testing.T) {
	client := newSigningClient(t)
	now := time.Now()

	asset := common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	auth, err := client.SignTransferAuthorization(asset, "USD Coin", "2", to, big.NewInt(1_000_000), now)
	require.NoError(t, err)

	assert.Equal(t, client.from.Hex(), auth.Payload.From)
	assert.Equal(t, to.Hex(), auth.Payload.To)
	assert.Equal(t, "1000000", auth.Payload.Value)

	// One minute of backward skew, one hour forward.
	assert.Equal(t, now.Add(-time.Minute).Unix(), auth.Payload.ValidAfter)
	assert.Equal(t, now.Add(time.Hour).Unix(), auth.Payload.ValidBefore)
	assert.True(t, auth.Payload.WindowValid(now))

	// 65-byte signature with v already shifted into {27, 28}.
	require.True(t, strings.HasPrefix(auth.Signature, "0x"))
	sigBytes := common.FromHex(auth.Signature)
	require.Len(t, sigBytes, 65)
	assert.Contains(t, []byte{27, 28}, sigBytes[64])

	// Nonce is 32 random bytes, hex encoded.
	nonceBytes := common.FromHex(auth.Payload.Nonce)
	assert.Len(t, nonceBytes, 32)

	// Calldata starts with the transferWithAuthorization selector.
	calldata := common.FromHex(auth.Calldata)
	require.Greater(t, len(calldata), 4)
	method, exist := erc3009ABI.Methods["transferWithAuthorization"]
	require.True(t, exist)
	assert.Equal(t, method.ID, calldata[:4])
}

func TestSignTransferAuthorization_FreshNoncePerCall(t *testing.T) {
	client := newSigningClient(t)
	now := time.Now()

	asset := common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	first, err := client.SignTransferAuthorization(asset, "USD Coin", "2", to, big.NewInt(1), now)
	require.NoError(t, err)
	second, err := client.SignTransferAuthorization(asset, "USD Coin", "2", to, big.NewInt(1), now)
	require.NoError(t, err)

	assert.NotEqual(t, first.Payload.Nonce, second.Payload.Nonce)
	assert.NotEqual(t, first.Signature, second.Signature)
}

func TestWindowValid_Bounds(t *testing.T) {
	now := time.Now()
	payload := AuthorizationPayload{
		ValidAfter:  now.Add(-time.Minute).Unix(),
		ValidBefore: now.Add(time.Hour).Unix(),
	}

	assert.True(t, payload.WindowValid(now))
	assert.False(t, payload.WindowValid(now.Add(-2*time.Minute)))
	assert.False(t, payload.WindowValid(now.Add(2*time.Hour)))
}

func TestDemoMinter_Deterministic(t *testing.T) {
	minter := NewDemoMinter()

	tokenId, tx, err := minter.RegisterAgent(nil, "data:application/json;base64,foo")
	require.NoError(t, err)
	again, tx2, err := minter.RegisterAgent(nil, "data:application/json;base64,foo")
	require.NoError(t, err)

	assert.Equal(t, tokenId, again)
	assert.Equal(t, tx, tx2)
	assert.True(t, strings.HasPrefix(tx, "0xdemo"))
}
