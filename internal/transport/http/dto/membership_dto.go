package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/forumly/forumcore/internal/domain/model"
)

type BeginIntentRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

type ConfirmIntentRequest struct {
	PaymentMethod PaymentMethodRequest `json:"payment_method" validate:"required"`
}

type PaymentMethodRequest struct {
	Card        map[string]string `json:"card" validate:"required,min=1"`
	BillingName string            `json:"billing_name,omitempty" validate:"omitempty,max=128"`
}

type IntentResponse struct {
	ID            string                   `json:"id"`
	UserID        string                   `json:"user_id"`
	Amount        decimal.Decimal          `json:"amount"`
	State         string                   `json:"state"`
	ClientSecret  string                   `json:"client_secret,omitempty"`
	PaymentID     string                   `json:"payment_id,omitempty"`
	FailureReason string                   `json:"failure_reason,omitempty"`
	FailureText   string                   `json:"failure_text,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
	ConfirmedAt   *time.Time               `json:"confirmed_at,omitempty"`
	ReconciledAt  *time.Time               `json:"reconciled_at,omitempty"`
	Entitlement   *model.EntitlementRecord `json:"entitlement,omitempty"`
}

// ConfirmResponse reports the intent after confirm plus the immediate
// reconcile attempt. Status is "reconciled", "reconciliation_pending" or
// "failed".
type ConfirmResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Intent  IntentResponse `json:"intent"`
}

type PendingReconciliationResponse struct {
	IntentID      string          `json:"intent_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentID     string          `json:"payment_id,omitempty"`
	ConfirmedAt   time.Time       `json:"confirmed_at"`
	Attempts      int             `json:"attempts"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	Verifying     bool            `json:"verifying,omitempty"`
}

type PendingListResponse struct {
	Items   []PendingReconciliationResponse `json:"items"`
	Message string                          `json:"message,omitempty"`
}

func IntentFromModel(intent model.MembershipIntent) IntentResponse {
	resp := IntentResponse{
		ID:            intent.ID,
		UserID:        intent.UserID,
		Amount:        intent.Amount,
		State:         string(intent.State),
		PaymentID:     intent.PaymentID,
		FailureReason: string(intent.FailureReason),
		FailureText:   intent.FailureText,
		CreatedAt:     intent.CreatedAt,
		ConfirmedAt:   intent.ConfirmedAt,
		ReconciledAt:  intent.ReconciledAt,
		Entitlement:   intent.Entitlement,
	}
	if intent.State.Chargeable() {
		resp.ClientSecret = intent.GatewaySecret
	}
	return resp
}
