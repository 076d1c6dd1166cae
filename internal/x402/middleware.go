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

package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"agent-trinity-go/internal/chain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Context keys set once a payment has been verified.
const (
	ContextKeyPayer  = "x402_payer"
	ContextKeyAmount = "x402_amount"
)

// Request headers carrying the payment and its facilitator confirmation.
const (
	headerPayment      = "X-Payment"
	headerConfirmation = "X-Payment-Confirmation"
)

// PaymentRequirements is the structured descriptor returned with every 402 so
// a client knows exactly how to pay.
type PaymentRequirements struct {
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
	Asset       string `json:"asset"`
	Amount      string `json:"maxAmountRequired"`
	PayTo       string `json:"payTo"`
	Facilitator string `json:"facilitator"`
}

// PaymentPayload is the decoded X-Payment header body.
type PaymentPayload struct {
	X402Version int                         `json:"x402Version"`
	Scheme      string                      `json:"scheme"`
	Network     string                      `json:"network"`
	Payload     chain.TransferAuthorization `json:"payload"`
}

// Middleware gates a route behind an x402 payment. A request without a valid
// payment gets HTTP 402 plus the requirement descriptor; a verified payment
// sets the payer and amount on the gin context and lets the request through.
//
// Verification covers the payload shape, the authorized amount, the EIP-3009
// validity window and the facilitator confirmation header. It does not settle funds itself; the
// facilitator round-trip happens out of band and its confirmation is what
// this layer trusts.
type Middleware struct {
	requirements PaymentRequirements
}

func NewMiddleware(network, asset, amount, payTo, facilitator string) *Middleware {
	return &Middleware{
		requirements: PaymentRequirements{
			Scheme:      "exact",
			Network:     network,
			Asset:       asset,
			Amount:      amount,
			PayTo:       payTo,
			Facilitator: facilitator,
		},
	}
}

// Require is the gin handler chain entry.
func (m *Middleware) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := m.verify(c.Request)
		if err != nil {
			zap.L().Debug("Payment required", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":   err.Error(),
				"accepts": []PaymentRequirements{m.requirements},
			})
			return
		}

		c.Set(ContextKeyPayer, payload.Payload.Payload.From)
		c.Set(ContextKeyAmount, payload.Payload.Payload.Value)
		c.Next()
	}
}

func (m *Middleware) verify(r *http.Request) (*PaymentPayload, error) {
	encoded := r.Header.Get(headerPayment)
	if encoded == "" {
		return nil, fmt.Errorf("payment required")
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("payment header is not valid base64")
	}

	var payload PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("payment header is not valid json")
	}

	if err := m.checkPayload(&payload); err != nil {
		return nil, err
	}

	if r.Header.Get(headerConfirmation) == "" {
		return nil, fmt.Errorf("payment lacks facilitator confirmation")
	}

	return &payload, nil
}

func (m *Middleware) checkPayload(payload *PaymentPayload) error {
	if payload.Scheme != m.requirements.Scheme {
		return fmt.Errorf("unsupported payment scheme %q", payload.Scheme)
	}
	if payload.Network != m.requirements.Network {
		return fmt.Errorf("payment network %q does not match %q", payload.Network, m.requirements.Network)
	}

	auth := payload.Payload.Payload
	if payload.Payload.Signature == "" {
		return fmt.Errorf("payment authorization is unsigned")
	}
	if !common.IsHexAddress(auth.From) || !common.IsHexAddress(auth.To) {
		return fmt.Errorf("payment authorization addresses are malformed")
	}
	if !strings.EqualFold(auth.To, m.requirements.PayTo) {
		return fmt.Errorf("payment recipient %s does not match %s", auth.To, m.requirements.PayTo)
	}
	value, err := auth.ValueDecimal()
	if err != nil || value.Sign() <= 0 {
		return fmt.Errorf("payment value is malformed")
	}
	required, err := decimal.NewFromString(m.requirements.Amount)
	if err != nil {
		return fmt.Errorf("payment requirement amount is malformed")
	}
	if value.LessThan(required) {
		return fmt.Errorf("payment value %s is below the required %s", value.String(), required.String())
	}
	if !auth.WindowValid(time.Now()) {
		return fmt.Errorf("payment authorization window is not valid")
	}
	return nil
}
