package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"settlement-bridge-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, handler http.Handler) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := NewService(models.ProcessorConfig{
		BaseURL:      server.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		Currency:     "USD",
	})
	require.NoError(t, err)
	return svc
}

func tokenHandler(mux *http.ServeMux, tokenRequests *int) {
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		*tokenRequests++
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"expires_in":   3600,
		})
	})
}

func TestPayout_SendsIdempotencyKeyOnHeaderAndBatch(t *testing.T) {
	var tokenRequests int
	var gotRequestId string
	var gotBody map[string]any

	mux := http.NewServeMux()
	tokenHandler(mux, &tokenRequests)
	mux.HandleFunc("/v1/payments/payouts", func(w http.ResponseWriter, r *http.Request) {
		gotRequestId = r.Header.Get("PayPal-Request-Id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"batch_header": map[string]string{"payout_batch_id": "batch-1"},
		})
	})

	svc := newTestService(t, mux)

	batchId, err := svc.Payout(context.Background(), "acme@example.com",
		decimal.RequireFromString("19.80"), "payout:42")
	require.NoError(t, err)
	assert.Equal(t, "batch-1", batchId)

	assert.Equal(t, "payout:42", gotRequestId)

	header := gotBody["sender_batch_header"].(map[string]any)
	assert.Equal(t, "payout:42", header["sender_batch_id"])

	items := gotBody["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "EMAIL", item["recipient_type"])
	assert.Equal(t, "acme@example.com", item["receiver"])
	amount := item["amount"].(map[string]any)
	assert.Equal(t, "19.80", amount["value"])
	assert.Equal(t, "USD", amount["currency"])
}

func TestPayout_Validation(t *testing.T) {
	svc := newTestService(t, http.NewServeMux())

	_, err := svc.Payout(context.Background(), "", decimal.NewFromInt(1), "k")
	require.Error(t, err)
	_, err = svc.Payout(context.Background(), "a@b.com", decimal.Zero, "k")
	require.Error(t, err)
	_, err = svc.Payout(context.Background(), "a@b.com", decimal.NewFromInt(1), "")
	require.Error(t, err)
}

func TestCaptureOrder_ParsesCaptureIdAndAmount(t *testing.T) {
	var tokenRequests int
	mux := http.NewServeMux()
	tokenHandler(mux, &tokenRequests)
	mux.HandleFunc("/v2/checkout/orders/order-1/capture", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"purchase_units": [{
				"payments": {
					"captures": [{"id": "cap-9", "amount": {"value": "20.00"}}]
				}
			}]
		}`)
	})

	svc := newTestService(t, mux)

	captureId, captured, err := svc.CaptureOrder(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, "cap-9", captureId)
	assert.True(t, captured.Equal(decimal.RequireFromString("20.00")))
}

func TestCaptureOrder_EmptyCaptureListIsError(t *testing.T) {
	var tokenRequests int
	mux := http.NewServeMux()
	tokenHandler(mux, &tokenRequests)
	mux.HandleFunc("/v2/checkout/orders/order-1/capture", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"purchase_units": []}`)
	})

	svc := newTestService(t, mux)

	_, _, err := svc.CaptureOrder(context.Background(), "order-1")
	require.Error(t, err)
}

func TestCreateOrder_SendsTwoDecimalAmount(t *testing.T) {
	var tokenRequests int
	var gotBody map[string]any

	mux := http.NewServeMux()
	tokenHandler(mux, &tokenRequests)
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]string{"id": "order-7"})
	})

	svc := newTestService(t, mux)

	orderId, err := svc.CreateOrder(context.Background(), decimal.NewFromInt(20))
	require.NoError(t, err)
	assert.Equal(t, "order-7", orderId)

	units := gotBody["purchase_units"].([]any)
	amount := units[0].(map[string]any)["amount"].(map[string]any)
	assert.Equal(t, "20.00", amount["value"])
}

func TestRetryableClassification(t *testing.T) {
	var tokenRequests int
	status := http.StatusTooManyRequests

	mux := http.NewServeMux()
	tokenHandler(mux, &tokenRequests)
	mux.HandleFunc("/v2/payments/captures/cap-1/refund", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})

	svc := newTestService(t, mux)

	// 429 is retryable
	_, err := svc.Refund(context.Background(), "cap-1")
	require.Error(t, err)
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Retryable())

	// 500 is retryable
	status = http.StatusInternalServerError
	_, err = svc.Refund(context.Background(), "cap-1")
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Retryable())

	// 422 business rejection is not
	status = http.StatusUnprocessableEntity
	_, err = svc.Refund(context.Background(), "cap-1")
	require.True(t, errors.As(err, &apiErr))
	assert.False(t, apiErr.Retryable())
}

func TestAccessToken_CachedAcrossCalls(t *testing.T) {
	var tokenRequests int
	mux := http.NewServeMux()
	tokenHandler(mux, &tokenRequests)
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]string{"id": "order-1"})
	})

	svc := newTestService(t, mux)

	for i := 0; i < 3; i++ {
		_, err := svc.CreateOrder(context.Background(), decimal.NewFromInt(5))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, tokenRequests)
}
