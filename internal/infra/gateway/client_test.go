package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/forumly/forumcore/internal/domain/faults"
	"github.com/forumly/forumcore/internal/domain/model"
)

type stubIssuer struct {
	secret string
	err    error
	delay  time.Duration
	amount decimal.Decimal
}

func (s *stubIssuer) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal) (string, error) {
	s.amount = amount
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.secret, s.err
}

func TestCreatePaymentMethodSendsBillingNameFallback(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_methods" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer pk_test" {
			t.Errorf("unexpected Authorization: %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("billing_details[name]") != "Anonymous" || r.PostForm.Get("card[token]") != "tok_visa" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		_, _ = w.Write([]byte(`{"id":"pm_1"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, &stubIssuer{})
	methodID, err := client.CreatePaymentMethod(context.Background(), model.PaymentDetails{Card: map[string]string{"token": "tok_visa"}})
	if err != nil {
		t.Fatalf("create payment method: %v", err)
	}
	if methodID != "pm_1" {
		t.Fatalf("unexpected method id: %s", methodID)
	}
}

func TestCreatePaymentMethodRejectedKeepsGatewayMessage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"incorrect_number","message":"Your card number is incorrect."}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, &stubIssuer{})
	_, err := client.CreatePaymentMethod(context.Background(), model.PaymentDetails{Card: map[string]string{"token": "tok_bad"}, BillingName: "Ann"})
	if !errors.Is(err, faults.ErrPaymentMethodRejected) {
		t.Fatalf("expected ErrPaymentMethodRejected, got %v", err)
	}
	if got := faults.UserMessage(err); got != "Your card number is incorrect." {
		t.Fatalf("gateway message must be verbatim, got %q", got)
	}
}

func TestConfirmPaymentDeclined(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents/pi_123/confirm" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, &stubIssuer{})
	_, err := client.ConfirmPayment(context.Background(), "pi_123_secret_abc", "pm_1")
	if !errors.Is(err, faults.ErrPaymentDeclined) {
		t.Fatalf("expected ErrPaymentDeclined, got %v", err)
	}
}

func TestConfirmPaymentSucceeded(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("client_secret") != "pi_123_secret_abc" || r.PostForm.Get("payment_method") != "pm_1" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		_, _ = w.Write([]byte(`{"id":"pi_123","status":"succeeded"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, &stubIssuer{})
	result, err := client.ConfirmPayment(context.Background(), "pi_123_secret_abc", "pm_1")
	if err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	if !result.Succeeded() || result.PaymentID != "pi_123" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestGatewayServerErrorIsUnavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, &stubIssuer{})
	_, err := client.LookupPayment(context.Background(), "pi_123_secret_abc")
	if !errors.Is(err, faults.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestCreatePaymentIntentTimeout(t *testing.T) {
	t.Parallel()

	issuer := &stubIssuer{secret: "pi_1_secret_x", delay: 200 * time.Millisecond}
	client, err := NewClient(Config{BaseURL: "http://gateway.invalid", Timeout: 20 * time.Millisecond}, issuer)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.CreatePaymentIntent(context.Background(), decimal.NewFromInt(70))
	if !errors.Is(err, faults.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestCreatePaymentIntentUnavailable(t *testing.T) {
	t.Parallel()

	issuer := &stubIssuer{err: errors.New("connection refused")}
	client := newTestClient(t, "http://gateway.invalid", issuer)

	_, err := client.CreatePaymentIntent(context.Background(), decimal.NewFromInt(70))
	if !errors.Is(err, faults.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
	if !issuer.amount.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("unexpected amount passed to issuer: %s", issuer.amount)
	}
}

func TestIntentIDFromSecret(t *testing.T) {
	t.Parallel()

	if id, err := intentIDFromSecret("pi_3Abc_secret_xyz"); err != nil || id != "pi_3Abc" {
		t.Fatalf("unexpected id: %q %v", id, err)
	}
	if _, err := intentIDFromSecret("garbage"); err == nil {
		t.Fatalf("expected error for malformed secret")
	}
}

func newTestClient(t *testing.T, baseURL string, issuer SecretIssuer) *Client {
	t.Helper()
	client, err := NewClient(Config{BaseURL: baseURL, PublishableKey: "pk_test", Timeout: time.Second}, issuer)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}
