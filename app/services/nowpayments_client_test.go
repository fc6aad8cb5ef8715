package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *NowPaymentsClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewNowPaymentsClient(server.URL, "test-api-key", "merchant@example.com", "hunter2", "https://example.com/ipn", 5*time.Second)
}

func TestCreateInvoice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment", r.URL.Path)
		assert.Equal(t, "test-api-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "DEP-1-1700000000000", body["order_id"])
		assert.Equal(t, "https://example.com/ipn", body["ipn_callback_url"])

		// The processor returns payment_id as a bare number.
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"payment_id":5745459419,"payment_status":"waiting","pay_address":"TAddr123","pay_amount":"99.5"}`))
	})

	res, err := client.CreateInvoice(context.Background(), InvoiceInput{
		Amount:        decimal.NewFromInt(100),
		PriceCurrency: "usd",
		PayCurrency:   "usdttrc20",
		OrderID:       "DEP-1-1700000000000",
	})
	require.NoError(t, err)

	assert.Equal(t, "5745459419", res.PaymentID)
	assert.Equal(t, "TAddr123", res.PayAddress)
	assert.Equal(t, "waiting", res.Status)
	assert.True(t, res.PayAmount.Equal(decimal.NewFromFloat(99.5)))
}

func TestPaymentStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/payment/5745459419", r.URL.Path)
		assert.Equal(t, "test-api-key", r.Header.Get("x-api-key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"payment_id":"5745459419","payment_status":"finished","actually_paid":"100"}`))
	})

	res, err := client.PaymentStatus(context.Background(), "5745459419")
	require.NoError(t, err)
	assert.Equal(t, "finished", res.Status)
	assert.True(t, res.ActuallyPaid.Equal(decimal.NewFromInt(100)))
}

func TestAuthenticate(t *testing.T) {
	t.Run("exchanges credentials for a bearer", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/auth", r.URL.Path)
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "merchant@example.com", body["email"])
			assert.Equal(t, "hunter2", body["password"])

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"token":"jwt-token"}`))
		})

		res, err := client.Authenticate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "jwt-token", res.Token)
		assert.Equal(t, 24*time.Hour, res.ExpiresIn)
	})

	t.Run("empty token is an error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"token":""}`))
		})

		_, err := client.Authenticate(context.Background())
		assert.ErrorContains(t, err, "empty token")
	})
}

func TestSubmitPayout(t *testing.T) {
	t.Run("submits a single-item batch with the bearer", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/payout", r.URL.Path)
			assert.Equal(t, "Bearer jwt-token", r.Header.Get("Authorization"))
			assert.Equal(t, "test-api-key", r.Header.Get("x-api-key"))

			var body struct {
				Withdrawals []map[string]any `json:"withdrawals"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Len(t, body.Withdrawals, 1)
			assert.Equal(t, "TAddr123", body.Withdrawals[0]["address"])
			assert.Equal(t, "42", body.Withdrawals[0]["extra_id"])

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"batch-abc","withdrawals":[{"id":"payout-xyz","status":"creating","extra_id":"42"}]}`))
		})

		res, err := client.SubmitPayout(context.Background(), "jwt-token", PayoutItem{
			Address:  "TAddr123",
			Currency: "usdttrc20",
			Network:  "trx",
			Amount:   decimal.NewFromInt(25),
			ExtraID:  "42",
		})
		require.NoError(t, err)
		assert.Equal(t, "payout-xyz", res.PayoutID)
		assert.Equal(t, "creating", res.Status)
	})

	t.Run("item-level rejection surfaces as an error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"batch-abc","withdrawals":[{"id":"payout-xyz","status":"rejected","error":"address flagged"}]}`))
		})

		_, err := client.SubmitPayout(context.Background(), "jwt-token", PayoutItem{
			Address: "TAddr123", Amount: decimal.NewFromInt(25), ExtraID: "42",
		})
		assert.ErrorContains(t, err, "address flagged")
	})

	t.Run("empty withdrawal list is an error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"batch-abc","withdrawals":[]}`))
		})

		_, err := client.SubmitPayout(context.Background(), "jwt-token", PayoutItem{
			Address: "TAddr123", Amount: decimal.NewFromInt(25), ExtraID: "42",
		})
		assert.ErrorContains(t, err, "empty withdrawal list")
	})
}

func TestPayoutStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payout/payout-xyz", r.URL.Path)
		assert.Equal(t, "Bearer jwt-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"payout-xyz","status":"finished","hash":"0xf00d"}`))
	})

	res, err := client.PayoutStatus(context.Background(), "jwt-token", "payout-xyz")
	require.NoError(t, err)
	assert.Equal(t, "payout-xyz", res.PayoutID)
	assert.Equal(t, "finished", res.Status)
	assert.Equal(t, "0xf00d", res.Hash)
}

func TestErrorResponses(t *testing.T) {
	t.Run("message extracted from the error body", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"message":"invalid api key","code":"FORBIDDEN"}`))
		})

		_, err := client.PaymentStatus(context.Background(), "1")
		assert.ErrorContains(t, err, "status 403")
		assert.ErrorContains(t, err, "invalid api key")
	})

	t.Run("non-JSON error body kept verbatim", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream unavailable"))
		})

		_, err := client.PaymentStatus(context.Background(), "1")
		assert.ErrorContains(t, err, "upstream unavailable")
	})
}
