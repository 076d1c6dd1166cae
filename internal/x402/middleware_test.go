package x402

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agent-trinity-go/internal/chain"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPayTo = "0x00000000000000000000000000000000000000bb"

func newTestRouter() (*gin.Engine, *Middleware) {
	gin.SetMode(gin.TestMode)
	m := NewMiddleware("base", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "1000000", testPayTo, "https://x402.org/facilitator")

	router := gin.New()
	router.POST("/jobs", m.Require(), func(c *gin.Context) {
		payer, _ := c.Get(ContextKeyPayer)
		amount, _ := c.Get(ContextKeyAmount)
		c.JSON(http.StatusOK, gin.H{"payer": payer, "amount": amount})
	})
	return router, m
}

func validPayment(now time.Time) PaymentPayload {
	return PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "base",
		Payload: chain.TransferAuthorization{
			Signature: "0xsigned",
			Payload: chain.AuthorizationPayload{
				From:        "0x00000000000000000000000000000000000000aa",
				To:          testPayTo,
				Value:       "1000000",
				ValidAfter:  now.Add(-time.Minute).Unix(),
				ValidBefore: now.Add(time.Hour).Unix(),
				Nonce:       "0x01",
			},
		},
	}
}

func encodePayment(t *testing.T, payload PaymentPayload) string {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestRequire_MissingPaymentReturns402WithDescriptor(t *testing.T) {
	router, _ := newTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	var body struct {
		Error   string                `json:"error"`
		Accepts []PaymentRequirements `json:"accepts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Accepts, 1)
	assert.Equal(t, "exact", body.Accepts[0].Scheme)
	assert.Equal(t, "base", body.Accepts[0].Network)
	assert.Equal(t, testPayTo, body.Accepts[0].PayTo)
	assert.Equal(t, "https://x402.org/facilitator", body.Accepts[0].Facilitator)
}

func TestRequire_ValidPaymentPassesThrough(t *testing.T) {
	router, _ := newTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
	req.Header.Set("X-Payment", encodePayment(t, validPayment(time.Now())))
	req.Header.Set("X-Payment-Confirmation", "facilitator-receipt-1")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", body["payer"])
	assert.Equal(t, "1000000", body["amount"])
}

func TestRequire_MissingConfirmationRejected(t *testing.T) {
	router, _ := newTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
	req.Header.Set("X-Payment", encodePayment(t, validPayment(time.Now())))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestRequire_ExpiredWindowRejected(t *testing.T) {
	router, _ := newTestRouter()

	payload := validPayment(time.Now())
	payload.Payload.Payload.ValidBefore = time.Now().Add(-time.Minute).Unix()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
	req.Header.Set("X-Payment", encodePayment(t, payload))
	req.Header.Set("X-Payment-Confirmation", "facilitator-receipt-1")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestRequire_WrongRecipientRejected(t *testing.T) {
	router, _ := newTestRouter()

	payload := validPayment(time.Now())
	payload.Payload.Payload.To = "0x00000000000000000000000000000000000000cc"

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
	req.Header.Set("X-Payment", encodePayment(t, payload))
	req.Header.Set("X-Payment-Confirmation", "facilitator-receipt-1")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestRequire_UnderpayingValueRejected(t *testing.T) {
	router, _ := newTestRouter()

	payload := validPayment(time.Now())
	payload.Payload.Payload.Value = "1"

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
	req.Header.Set("X-Payment", encodePayment(t, payload))
	req.Header.Set("X-Payment-Confirmation", "facilitator-receipt-1")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "below the required")
}

func TestRequire_GarbageHeaderRejected(t *testing.T) {
	router, _ := newTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
	req.Header.Set("X-Payment", "not-base64!!!")
	req.Header.Set("X-Payment-Confirmation", "facilitator-receipt-1")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}
