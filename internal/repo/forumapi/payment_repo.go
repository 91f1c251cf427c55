package forumapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentRepo asks the backend to open a gateway payment intent; the backend
// holds the gateway secret key.
type PaymentRepo struct {
	client *Client
}

func NewPaymentRepo(client *Client) *PaymentRepo {
	return &PaymentRepo{client: client}
}

type createPaymentIntentDTO struct {
	Price json.Number `json:"price"`
}

type createPaymentIntentResponseDTO struct {
	ClientSecret string `json:"clientSecret"`
}

func (r *PaymentRepo) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal) (string, error) {
	var response createPaymentIntentResponseDTO
	request := createPaymentIntentDTO{Price: json.Number(amount.String())}
	if err := r.client.DoJSON(ctx, http.MethodPost, "/create-payment-intent", request, &response); err != nil {
		return "", err
	}

	secret := strings.TrimSpace(response.ClientSecret)
	if secret == "" {
		return "", &RequestError{
			Op:  "decode payment intent response",
			Err: errors.New("missing clientSecret"),
		}
	}
	return secret, nil
}
