package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CheckoutRequest is the hosted-checkout creation request.
type CheckoutRequest struct {
	Amount      float64
	Currency    string
	PhoneNumber string
	Email       string
	Reference   string
}

// CheckoutResponse carries the provider's invoice id and the URL the
// client is redirected to.
type CheckoutResponse struct {
	InvoiceID string
	URL       string
}

// CheckoutClient creates hosted checkout sessions at the payment
// gateway.
type CheckoutClient interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error)
}

// HTTPCheckoutClient implements CheckoutClient.
type HTTPCheckoutClient struct {
	baseURL        string
	publishableKey string
	httpClient     *http.Client
}

// NewCheckoutClient creates a new CheckoutClient.
func NewCheckoutClient(baseURL, publishableKey string, timeout time.Duration) CheckoutClient {
	return &HTTPCheckoutClient{
		baseURL:        baseURL,
		publishableKey: publishableKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type checkoutPayload struct {
	PublicKey   string  `json:"public_key"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	PhoneNumber string  `json:"phone_number,omitempty"`
	Email       string  `json:"email,omitempty"`
	APIRef      string  `json:"api_ref"`
	Method      string  `json:"method"`
}

type checkoutResult struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Detail string `json:"detail"`
}

// CreateCheckout opens a hosted checkout session for the given amount.
func (c *HTTPCheckoutClient) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	url := fmt.Sprintf("%s/api/v1/checkout/", c.baseURL)

	body, err := json.Marshal(checkoutPayload{
		PublicKey:   c.publishableKey,
		Amount:      req.Amount,
		Currency:    req.Currency,
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		APIRef:      req.Reference,
		Method:      "M-PESA",
	})
	if err != nil {
		return nil, fmt.Errorf("checkout client: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("checkout client: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewGatewayError(0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var result checkoutResult
		message := string(raw)
		if json.Unmarshal(raw, &result) == nil && result.Detail != "" {
			message = result.Detail
		}
		return nil, NewGatewayError(resp.StatusCode, message)
	}

	var result checkoutResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("checkout client: failed to decode response: %w", err)
	}
	if result.ID == "" || result.URL == "" {
		return nil, NewGatewayError(resp.StatusCode, "incomplete checkout response")
	}

	return &CheckoutResponse{InvoiceID: result.ID, URL: result.URL}, nil
}
