package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sproutswap/sproutswap-backend/pkg/config"
)

const (
	sandboxBaseURL = "https://api-m.sandbox.paypal.com"
	liveBaseURL    = "https://api-m.paypal.com"

	// tokens are refreshed a minute before PayPal expires them
	tokenRefreshSkew = time.Minute
)

// Client talks to the PayPal Orders v2 API using client-credential OAuth.
type Client struct {
	clientID     string
	clientSecret string
	webhookID    string
	currency     string
	baseURL      string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// APIError carries the provider's response for a non-2xx call.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal: status %d: %s", e.StatusCode, e.Body)
}

// New builds a Client from configuration. Credentials are required.
func New(cfg config.PayPalConfig) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("paypal client id and secret are required")
	}
	baseURL := sandboxBaseURL
	if cfg.Environment() == "live" {
		baseURL = liveBaseURL
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "EUR"
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		webhookID:    cfg.WebhookID,
		currency:     currency,
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

// Currency returns the ISO currency code orders are denominated in.
func (c *Client) Currency() string {
	return c.currency
}

// NewRequestID returns a unique value for PayPal-Request-Id headers.
func NewRequestID() string {
	return uuid.NewString()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	body := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", body)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(payload)}
	}

	var token tokenResponse
	if err := json.Unmarshal(payload, &token); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", errors.New("paypal token response missing access_token")
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - tokenRefreshSkew)
	return c.accessToken, nil
}

// Order is the subset of the PayPal order resource the platform consumes.
type Order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []Link `json:"links"`
}

// Link is a HATEOAS link on an order resource.
type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

// ApproveURL returns the buyer approval link when present.
func (o Order) ApproveURL() string {
	for _, link := range o.Links {
		if link.Rel == "approve" {
			return link.Href
		}
	}
	return ""
}

// CreateOrder opens a CAPTURE-intent order for the given amount.
func (c *Client) CreateOrder(ctx context.Context, amount string, referenceID string) (*Order, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"reference_id": referenceID,
				"amount": map[string]string{
					"currency_code": c.currency,
					"value":         amount,
				},
			},
		},
	}
	var order Order
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", payload, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrder fetches the current state of a provider order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+orderID, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CaptureResult reports the capture ids produced by a capture call.
type CaptureResult struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CaptureID returns the first capture id in the result, if any.
func (r CaptureResult) CaptureID() string {
	for _, unit := range r.PurchaseUnits {
		for _, capture := range unit.Payments.Captures {
			if capture.ID != "" {
				return capture.ID
			}
		}
	}
	return ""
}

// CaptureOrder captures an approved order.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	var result CaptureResult
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders/"+orderID+"/capture", struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Refund is the subset of the refund resource the platform consumes.
type Refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// RefundCapture refunds a capture in full when amount is empty, otherwise
// the given amount.
func (c *Client) RefundCapture(ctx context.Context, captureID string, amount string) (*Refund, error) {
	var payload any = struct{}{}
	if amount != "" {
		payload = map[string]any{
			"amount": map[string]string{
				"currency_code": c.currency,
				"value":         amount,
			},
		}
	}
	var refund Refund
	if err := c.do(ctx, http.MethodPost, "/v2/payments/captures/"+captureID+"/refund", payload, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

// WebhookEvent is the envelope PayPal posts to webhook listeners.
type WebhookEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

// VerifySignatureInput carries the headers PayPal signs webhook deliveries with.
type VerifySignatureInput struct {
	AuthAlgo         string
	CertURL          string
	TransmissionID   string
	TransmissionSig  string
	TransmissionTime string
	RawBody          json.RawMessage
}

// VerifyWebhookSignature asks PayPal whether a webhook delivery is authentic.
func (c *Client) VerifyWebhookSignature(ctx context.Context, input VerifySignatureInput) (bool, error) {
	if c.webhookID == "" {
		return false, errors.New("paypal webhook id is not configured")
	}
	payload := map[string]any{
		"auth_algo":         input.AuthAlgo,
		"cert_url":          input.CertURL,
		"transmission_id":   input.TransmissionID,
		"transmission_sig":  input.TransmissionSig,
		"transmission_time": input.TransmissionTime,
		"webhook_id":        c.webhookID,
		"webhook_event":     input.RawBody,
	}
	var result struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", payload, &result); err != nil {
		return false, err
	}
	return result.VerificationStatus == "SUCCESS", nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost {
		req.Header.Set("PayPal-Request-Id", NewRequestID())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paypal %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(payload)}
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}
