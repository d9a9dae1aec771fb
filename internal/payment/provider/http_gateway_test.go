package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
)

func testPayment() *models.Payment {
	return &models.Payment{
		PaymentID: "pay_test",
		Reference: "ref_123",
		Amount:    150,
		Currency:  "GHS",
		Method:    models.MethodMobileMoney,
		Contact:   "+233201234567",
	}
}

func TestHTTPGatewayDispatch(t *testing.T) {
	var gotAuth, gotSignature string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/collections", r.URL.Path)

		gotAuth = r.Header.Get("Authorization")
		gotSignature = r.Header.Get("X-Signature")
		gotBody, _ = io.ReadAll(r.Body)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"transaction_id": "gw-txn-1",
			"status":         "accepted",
		})
	}))
	defer srv.Close()

	g := NewHTTPGateway("momo-primary", srv.URL, "api-key-1", "gw-secret", logger.NewTestLogger())

	result, err := g.Dispatch(context.Background(), testPayment())
	require.NoError(t, err)

	assert.Equal(t, "gw-txn-1", result.ExternalReference)
	assert.Equal(t, models.StatusProcessing, result.Status)

	assert.Equal(t, "Bearer api-key-1", gotAuth)

	mac := hmac.New(sha256.New, []byte("gw-secret"))
	mac.Write(gotBody)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), gotSignature)

	var sent gatewayDispatchRequest
	require.NoError(t, json.Unmarshal(gotBody, &sent))
	assert.Equal(t, "ref_123", sent.Reference)
	assert.Equal(t, 150.0, sent.Amount)
	assert.Equal(t, "GHS", sent.Currency)
}

func TestHTTPGatewayDispatchRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := NewHTTPGateway("momo-primary", srv.URL, "bad-key", "gw-secret", logger.NewTestLogger())

	_, err := g.Dispatch(context.Background(), testPayment())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestHTTPGatewayDispatchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	g := NewHTTPGateway("momo-primary", srv.URL, "api-key-1", "gw-secret", logger.NewTestLogger())

	_, err := g.Dispatch(context.Background(), testPayment())
	assert.Error(t, err)
}

func TestHTTPGatewayCheckStatus(t *testing.T) {
	cases := []struct {
		gatewayStatus string
		want          models.PaymentStatus
	}{
		{"successful", models.StatusCompleted},
		{"completed", models.StatusCompleted},
		{"failed", models.StatusFailed},
		{"rejected", models.StatusFailed},
		{"cancelled", models.StatusCancelled},
		{"pending", models.StatusProcessing},
	}

	for _, tc := range cases {
		status := tc.gatewayStatus
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/collections/gw-txn-1", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]string{
				"transaction_id": "gw-txn-1",
				"status":         status,
			})
		}))

		g := NewHTTPGateway("momo-primary", srv.URL, "api-key-1", "gw-secret", logger.NewTestLogger())
		got, err := g.CheckStatus(context.Background(), "gw-txn-1")
		srv.Close()

		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "gateway status %q", tc.gatewayStatus)
	}
}
