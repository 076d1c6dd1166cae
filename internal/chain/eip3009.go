package chain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
)

// TransferAuthorization is the EIP-3009 payload the x402 protocol carries:
// the typed-data signature plus the authorization fields and the ready-to-send
// calldata.
type TransferAuthorization struct {
	Signature string               `json:"signature"`
	Payload   AuthorizationPayload `json:"payload"`
	Calldata  string               `json:"calldata"`
}

// AuthorizationPayload mirrors the TransferWithAuthorization message fields.
type AuthorizationPayload struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// Validity window: one minute of backward clock-skew tolerance, one hour
// forward.
const (
	authValidAfterSkew  = time.Minute
	authValidBeforeSpan = time.Hour
)

// WindowValid reports whether the authorization is usable at ts.
func (p AuthorizationPayload) WindowValid(ts time.Time) bool {
	unix := ts.Unix()
	return unix > p.ValidAfter && unix < p.ValidBefore
}

// ValueDecimal parses the authorization value into a decimal for display and
// audit paths.
func (p AuthorizationPayload) ValueDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(p.Value)
}

// SignTransferAuthorization signs a TransferWithAuthorization typed-data
// message against the payment asset's EIP-712 domain and packs the matching
// calldata.
func (c *Client) SignTransferAuthorization(asset common.Address, assetName, assetVersion string, to common.Address, value *big.Int, now time.Time) (*TransferAuthorization, error) {
	if c.key == nil {
		return nil, fmt.Errorf("chain client has no signing key")
	}

	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate authorization nonce: %w", err)
	}

	validAfter := big.NewInt(now.Add(-authValidAfterSkew).Unix())
	validBefore := big.NewInt(now.Add(authValidBeforeSpan).Unix())

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              assetName,
			Version:           assetVersion,
			ChainId:           (*math.HexOrDecimal256)(c.chainId),
			VerifyingContract: asset.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        c.from.Hex(),
			"to":          to.Hex(),
			"value":       value.String(),
			"validAfter":  validAfter.String(),
			"validBefore": validBefore.String(),
			"nonce":       hexutil.Encode(nonce[:]),
		},
	}

	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}

	sig, err := crypto.Sign(digest, c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}
	// Contract expects v in {27, 28}.
	sig[64] += 27

	var r, s [32]byte
	copy(r[:], sig[:32])
	copy(s[:], sig[32:64])
	v := sig[64]

	calldata, err := erc3009ABI.Pack("transferWithAuthorization",
		c.from, to, value, validAfter, validBefore, nonce, v, r, s)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transferWithAuthorization: %w", err)
	}

	return &TransferAuthorization{
		Signature: hexutil.Encode(sig),
		Payload: AuthorizationPayload{
			From:        c.from.Hex(),
			To:          to.Hex(),
			Value:       value.String(),
			ValidAfter:  validAfter.Int64(),
			ValidBefore: validBefore.Int64(),
			Nonce:       hexutil.Encode(nonce[:]),
		},
		Calldata: hexutil.Encode(calldata),
	}, nil
}
