package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NowPaymentsClient talks to the NOWPayments REST API. Invoice and status
// endpoints authenticate with the merchant API key; payout endpoints
// additionally need a bearer token from Authenticate.
type NowPaymentsClient struct {
	BaseURL     string
	APIKey      string
	Email       string
	Password    string
	CallbackURL string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// NewNowPaymentsClient creates a processor client with sane timeouts
func NewNowPaymentsClient(baseURL, apiKey, email, password, callbackURL string, timeout time.Duration) *NowPaymentsClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &NowPaymentsClient{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      apiKey,
		Email:       email,
		Password:    password,
		CallbackURL: callbackURL,
		HTTPClient:  &http.Client{Timeout: timeout},
		Timeout:     timeout,
	}
}

func (c *NowPaymentsClient) Name() string { return "nowpayments" }

func (c *NowPaymentsClient) doJSON(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		_ = json.Unmarshal(raw, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return fmt.Errorf("processor %s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Message)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type npCreatePaymentReq struct {
	PriceAmount      decimal.Decimal `json:"price_amount"`
	PriceCurrency    string          `json:"price_currency"`
	PayCurrency      string          `json:"pay_currency"`
	OrderID          string          `json:"order_id"`
	IPNCallbackURL   string          `json:"ipn_callback_url,omitempty"`
	OrderDescription string          `json:"order_description,omitempty"`
}

type npPaymentResp struct {
	PaymentID     json.Number     `json:"payment_id"`
	PaymentStatus string          `json:"payment_status"`
	PayAddress    string          `json:"pay_address"`
	PayAmount     decimal.Decimal `json:"pay_amount"`
	ActuallyPaid  decimal.Decimal `json:"actually_paid"`
	UpdatedAt     *time.Time      `json:"updated_at,omitempty"`
}

func (c *NowPaymentsClient) CreateInvoice(ctx context.Context, in InvoiceInput) (*InvoiceResult, error) {
	callback := in.CallbackURL
	if callback == "" {
		callback = c.CallbackURL
	}
	req := npCreatePaymentReq{
		PriceAmount:      in.Amount,
		PriceCurrency:    in.PriceCurrency,
		PayCurrency:      in.PayCurrency,
		OrderID:          in.OrderID,
		IPNCallbackURL:   callback,
		OrderDescription: in.Description,
	}
	var resp npPaymentResp
	if err := c.doJSON(ctx, http.MethodPost, "/v1/payment", "", req, &resp); err != nil {
		return nil, err
	}
	return &InvoiceResult{
		PaymentID:  resp.PaymentID.String(),
		PayAddress: resp.PayAddress,
		PayAmount:  resp.PayAmount,
		Status:     resp.PaymentStatus,
	}, nil
}

func (c *NowPaymentsClient) PaymentStatus(ctx context.Context, paymentID string) (*PaymentStatusResult, error) {
	var resp npPaymentResp
	if err := c.doJSON(ctx, http.MethodGet, "/v1/payment/"+paymentID, "", nil, &resp); err != nil {
		return nil, err
	}
	return &PaymentStatusResult{
		PaymentID:    resp.PaymentID.String(),
		Status:       resp.PaymentStatus,
		ActuallyPaid: resp.ActuallyPaid,
		UpdatedAt:    resp.UpdatedAt,
	}, nil
}

// Authenticate exchanges the merchant credentials for a bearer token. The
// processor advertises a 24h lifetime; callers cache below that.
func (c *NowPaymentsClient) Authenticate(ctx context.Context) (*AuthResult, error) {
	req := map[string]string{
		"email":    c.Email,
		"password": c.Password,
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth", "", req, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("processor auth: empty token")
	}
	return &AuthResult{Token: resp.Token, ExpiresIn: 24 * time.Hour}, nil
}

type npPayoutItem struct {
	Address        string          `json:"address"`
	Currency       string          `json:"currency"`
	Amount         decimal.Decimal `json:"amount"`
	IPNCallbackURL string          `json:"ipn_callback_url,omitempty"`
	ExtraID        string          `json:"extra_id,omitempty"`
	Network        string          `json:"network,omitempty"`
}

type npPayoutResp struct {
	ID          string `json:"id"`
	Withdrawals []struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		Error   string `json:"error,omitempty"`
		ExtraID string `json:"extra_id,omitempty"`
	} `json:"withdrawals"`
}

func (c *NowPaymentsClient) SubmitPayout(ctx context.Context, token string, item PayoutItem) (*PayoutResult, error) {
	callback := item.CallbackURL
	if callback == "" {
		callback = c.CallbackURL
	}
	req := map[string]any{
		"ipn_callback_url": callback,
		"withdrawals": []npPayoutItem{{
			Address:        item.Address,
			Currency:       item.Currency,
			Amount:         item.Amount,
			IPNCallbackURL: callback,
			ExtraID:        item.ExtraID,
			Network:        item.Network,
		}},
	}
	var resp npPayoutResp
	if err := c.doJSON(ctx, http.MethodPost, "/v1/payout", token, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Withdrawals) == 0 {
		return nil, fmt.Errorf("processor payout: empty withdrawal list in response")
	}
	w := resp.Withdrawals[0]
	if w.Error != "" {
		return nil, fmt.Errorf("processor payout rejected: %s", w.Error)
	}
	return &PayoutResult{PayoutID: w.ID, Status: w.Status}, nil
}

func (c *NowPaymentsClient) PayoutStatus(ctx context.Context, token, payoutID string) (*PayoutStatusResult, error) {
	var resp struct {
		ID        string     `json:"id"`
		Status    string     `json:"status"`
		Error     string     `json:"error,omitempty"`
		Hash      string     `json:"hash,omitempty"`
		UpdatedAt *time.Time `json:"updated_at,omitempty"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/payout/"+payoutID, token, nil, &resp); err != nil {
		return nil, err
	}
	return &PayoutStatusResult{
		PayoutID:  resp.ID,
		Status:    resp.Status,
		Error:     resp.Error,
		Hash:      resp.Hash,
		UpdatedAt: resp.UpdatedAt,
	}, nil
}
