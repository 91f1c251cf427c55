// Package gateway is the card payment gateway client. Payment intents are
// opened by the forum backend (it holds the secret key); payment methods and
// confirmations go straight to the gateway with the publishable key.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/forumly/forumcore/internal/domain/faults"
	"github.com/forumly/forumcore/internal/domain/model"
	"github.com/forumly/forumcore/internal/infra/metrics"
)

const anonymousBillingName = "Anonymous"

type SecretIssuer interface {
	CreatePaymentIntent(ctx context.Context, amount decimal.Decimal) (string, error)
}

type Config struct {
	BaseURL        string
	PublishableKey string
	Timeout        time.Duration
}

type Client struct {
	baseURL        string
	publishableKey string
	timeout        time.Duration
	issuer         SecretIssuer
	httpClient     *http.Client
}

type apiErrorDTO struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"error"`
}

type paymentMethodDTO struct {
	ID string `json:"id"`
}

type paymentIntentDTO struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func NewClient(cfg Config, issuer SecretIssuer) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway base url is empty")
	}
	if issuer == nil {
		return nil, errors.New("gateway secret issuer is nil")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:        baseURL,
		publishableKey: strings.TrimSpace(cfg.PublishableKey),
		timeout:        timeout,
		issuer:         issuer,
		httpClient:     &http.Client{},
	}, nil
}

// CreatePaymentIntent returns the single-use client secret for amount.
func (c *Client) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal) (string, error) {
	defer observe("create_payment_intent", time.Now())

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	secret, err := c.issuer.CreatePaymentIntent(ctx, amount)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", faults.NewGatewayError(faults.ErrTimeout, "", err)
		}
		return "", faults.NewGatewayError(faults.ErrGatewayUnavailable, "", err)
	}
	return secret, nil
}

func (c *Client) CreatePaymentMethod(ctx context.Context, details model.PaymentDetails) (string, error) {
	defer observe("create_payment_method", time.Now())

	form := url.Values{}
	form.Set("type", "card")
	keys := make([]string, 0, len(details.Card))
	for key := range details.Card {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		form.Set("card["+key+"]", details.Card[key])
	}
	form.Set("billing_details[name]", BillingName(details.BillingName))

	var response paymentMethodDTO
	if err := c.postForm(ctx, "/v1/payment_methods", form, &response, faults.ErrPaymentMethodRejected); err != nil {
		return "", err
	}
	if response.ID == "" {
		return "", faults.NewGatewayError(faults.ErrPaymentMethodRejected, "", errors.New("missing payment method id"))
	}
	return response.ID, nil
}

// ConfirmPayment confirms the intent behind secret with methodID. A non
// "succeeded" status is returned as a result, not an error.
func (c *Client) ConfirmPayment(ctx context.Context, secret string, methodID string) (model.PaymentResult, error) {
	defer observe("confirm_payment", time.Now())

	intentID, err := intentIDFromSecret(secret)
	if err != nil {
		return model.PaymentResult{}, faults.NewGatewayError(faults.ErrPaymentDeclined, "", err)
	}

	form := url.Values{}
	form.Set("client_secret", secret)
	form.Set("payment_method", methodID)

	var response paymentIntentDTO
	if err := c.postForm(ctx, "/v1/payment_intents/"+url.PathEscape(intentID)+"/confirm", form, &response, faults.ErrPaymentDeclined); err != nil {
		return model.PaymentResult{}, err
	}
	return model.PaymentResult{PaymentID: response.ID, Status: response.Status}, nil
}

// LookupPayment reads the current status of the intent behind secret.
func (c *Client) LookupPayment(ctx context.Context, secret string) (model.PaymentResult, error) {
	defer observe("lookup_payment", time.Now())

	intentID, err := intentIDFromSecret(secret)
	if err != nil {
		return model.PaymentResult{}, faults.NewGatewayError(faults.ErrGatewayUnavailable, "", err)
	}

	query := url.Values{}
	query.Set("client_secret", secret)

	var response paymentIntentDTO
	if err := c.send(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(intentID)+"?"+query.Encode(), nil, &response, faults.ErrGatewayUnavailable); err != nil {
		return model.PaymentResult{}, err
	}
	return model.PaymentResult{PaymentID: response.ID, Status: response.Status}, nil
}

func BillingName(displayName string) string {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return anonymousBillingName
	}
	return name
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any, rejected error) error {
	return c.send(ctx, http.MethodPost, path, strings.NewReader(form.Encode()), out, rejected)
}

// send maps 4xx answers to rejected with the gateway's message, and
// transport failures or 5xx to ErrGatewayUnavailable.
func (c *Client) send(ctx context.Context, method string, path string, body io.Reader, out any, rejected error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return faults.NewGatewayError(faults.ErrGatewayUnavailable, "", err)
	}
	if c.publishableKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.publishableKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return faults.NewGatewayError(faults.ErrTimeout, "", err)
		}
		return faults.NewGatewayError(faults.ErrGatewayUnavailable, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(ctx, err) {
			return faults.NewGatewayError(faults.ErrTimeout, "", err)
		}
		return faults.NewGatewayError(faults.ErrGatewayUnavailable, "", err)
	}

	if resp.StatusCode >= 500 {
		return faults.NewGatewayError(faults.ErrGatewayUnavailable, "", fmt.Errorf("gateway status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		var apiErr apiErrorDTO
		_ = json.Unmarshal(raw, &apiErr)
		message := strings.TrimSpace(apiErr.Error.Message)
		cause := fmt.Errorf("gateway status %d", resp.StatusCode)
		if apiErr.Error.Code != "" {
			cause = fmt.Errorf("gateway status %d code %s", resp.StatusCode, apiErr.Error.Code)
		}
		return faults.NewGatewayError(rejected, message, cause)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return faults.NewGatewayError(faults.ErrGatewayUnavailable, "", fmt.Errorf("decode gateway response: %w", err))
	}
	return nil
}

// intentIDFromSecret extracts "pi_123" from "pi_123_secret_abc".
func intentIDFromSecret(secret string) (string, error) {
	trimmed := strings.TrimSpace(secret)
	idx := strings.Index(trimmed, "_secret_")
	if idx <= 0 {
		return "", errors.New("malformed client secret")
	}
	return trimmed[:idx], nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func observe(op string, started time.Time) {
	metrics.GatewayLatency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}
