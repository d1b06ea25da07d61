package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sproutswap/sproutswap-backend/pkg/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(config.PayPalConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		WebhookID:    "wh-123",
		Currency:     "eur",
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	client.baseURL = server.URL
	return client, server
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestTokenIsCachedUntilExpiry(t *testing.T) {
	var tokenCalls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			t.Errorf("unexpected basic auth %q/%q", user, pass)
		}
		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: "tok-1", ExpiresIn: 3600})
	})
	mux.HandleFunc("/v2/checkout/orders/ord-1", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("unexpected authorization header %q", got)
		}
		writeJSON(w, http.StatusOK, Order{ID: "ord-1", Status: "CREATED"})
	})

	client, _ := newTestClient(t, mux)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.GetOrder(ctx, "ord-1"); err != nil {
			t.Fatalf("GetOrder failed: %v", err)
		}
	}
	if got := atomic.LoadInt64(&tokenCalls); got != 1 {
		t.Fatalf("expected a single token request, got %d", got)
	}
}

func TestTokenRefreshedWhenExpired(t *testing.T) {
	var tokenCalls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&tokenCalls, 1)
		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: "tok", ExpiresIn: 3600})
	})
	mux.HandleFunc("/v2/checkout/orders/ord-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Order{ID: "ord-1"})
	})

	client, _ := newTestClient(t, mux)
	ctx := context.Background()

	if _, err := client.GetOrder(ctx, "ord-1"); err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	client.mu.Lock()
	client.tokenExpiry = time.Now().Add(-time.Second)
	client.mu.Unlock()
	if _, err := client.GetOrder(ctx, "ord-1"); err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}

	if got := atomic.LoadInt64(&tokenCalls); got != 2 {
		t.Fatalf("expected token refresh, got %d calls", got)
	}
}

func TestCreateOrderSendsCaptureIntent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: "tok", ExpiresIn: 3600})
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("PayPal-Request-Id") == "" {
			t.Error("expected PayPal-Request-Id header on POST")
		}
		var body struct {
			Intent        string `json:"intent"`
			PurchaseUnits []struct {
				ReferenceID string `json:"reference_id"`
				Amount      struct {
					CurrencyCode string `json:"currency_code"`
					Value        string `json:"value"`
				} `json:"amount"`
			} `json:"purchase_units"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Intent != "CAPTURE" {
			t.Errorf("expected CAPTURE intent, got %q", body.Intent)
		}
		if len(body.PurchaseUnits) != 1 || body.PurchaseUnits[0].Amount.Value != "21.83" {
			t.Errorf("unexpected purchase units %+v", body.PurchaseUnits)
		}
		if body.PurchaseUnits[0].Amount.CurrencyCode != "EUR" {
			t.Errorf("expected EUR, got %q", body.PurchaseUnits[0].Amount.CurrencyCode)
		}
		writeJSON(w, http.StatusCreated, Order{
			ID:     "ord-9",
			Status: "CREATED",
			Links:  []Link{{Href: "https://paypal.test/approve", Rel: "approve", Method: "GET"}},
		})
	})

	client, _ := newTestClient(t, mux)

	order, err := client.CreateOrder(context.Background(), "21.83", "txn-1")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.ID != "ord-9" {
		t.Fatalf("unexpected order id %q", order.ID)
	}
	if order.ApproveURL() != "https://paypal.test/approve" {
		t.Fatalf("unexpected approve url %q", order.ApproveURL())
	}
}

func TestCaptureOrderExtractsCaptureID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: "tok", ExpiresIn: 3600})
	})
	mux.HandleFunc("/v2/checkout/orders/ord-9/capture", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":     "ord-9",
			"status": "COMPLETED",
			"purchase_units": []map[string]any{
				{"payments": map[string]any{"captures": []map[string]any{{"id": "cap-7", "status": "COMPLETED"}}}},
			},
		})
	})

	client, _ := newTestClient(t, mux)

	result, err := client.CaptureOrder(context.Background(), "ord-9")
	if err != nil {
		t.Fatalf("CaptureOrder failed: %v", err)
	}
	if result.CaptureID() != "cap-7" {
		t.Fatalf("expected capture id cap-7, got %q", result.CaptureID())
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: "tok", ExpiresIn: 3600})
	})
	mux.HandleFunc("/v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["webhook_id"] != "wh-123" {
			t.Errorf("expected configured webhook id, got %v", body["webhook_id"])
		}
		writeJSON(w, http.StatusOK, map[string]string{"verification_status": "SUCCESS"})
	})

	client, _ := newTestClient(t, mux)

	ok, err := client.VerifyWebhookSignature(context.Background(), VerifySignatureInput{
		AuthAlgo:        "SHA256withRSA",
		TransmissionID:  "t-1",
		TransmissionSig: "sig",
		RawBody:         json.RawMessage(`{"id":"evt-1"}`),
	})
	if err != nil {
		t.Fatalf("VerifyWebhookSignature failed: %v", err)
	}
	if !ok {
		t.Fatal("expected verification to succeed")
	}
}

func TestProviderErrorsSurfaceStatusAndBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: "tok", ExpiresIn: 3600})
	})
	mux.HandleFunc("/v2/checkout/orders/missing", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"name": "RESOURCE_NOT_FOUND"})
	})

	client, _ := newTestClient(t, mux)

	_, err := client.GetOrder(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status %d", apiErr.StatusCode)
	}
}
