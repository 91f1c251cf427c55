package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/forumly/forumcore/internal/domain/enums"
)

// MembershipIntent is one attempt to move a user from non-member to paid member.
type MembershipIntent struct {
	ID            string              `json:"id"`
	UserID        string              `json:"user_id"`
	Amount        decimal.Decimal     `json:"amount"`
	GatewaySecret string              `json:"gateway_secret,omitempty"`
	PaymentID     string              `json:"payment_id,omitempty"`
	State         enums.IntentState   `json:"state"`
	FailureReason enums.FailureReason `json:"failure_reason,omitempty"`
	FailureText   string              `json:"failure_text,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	ConfirmedAt   *time.Time          `json:"confirmed_at,omitempty"`
	ReconciledAt  *time.Time          `json:"reconciled_at,omitempty"`
	Entitlement   *EntitlementRecord  `json:"entitlement,omitempty"`
}

// PaymentDetails is the opaque card/billing payload handed to the gateway.
type PaymentDetails struct {
	Card        map[string]string `json:"card"`
	BillingName string            `json:"billing_name"`
}

// PendingReconciliation is a confirmed charge whose entitlement write has not landed yet.
// VerifyPayment marks a confirm whose outcome is still unknown; GatewaySecret
// is what the gateway lookup needs to settle it.
type PendingReconciliation struct {
	IntentID      string
	UserID        string
	Amount        decimal.Decimal
	PaymentID     string
	ConfirmedAt   time.Time
	VerifyPayment bool
	GatewaySecret string
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
}

// PaymentResult is the gateway's view of a payment after confirmation.
type PaymentResult struct {
	PaymentID string
	Status    string
}

func (r PaymentResult) Succeeded() bool {
	return r.Status == "succeeded"
}

// InFlight reports a payment the gateway has not finished settling.
func (r PaymentResult) InFlight() bool {
	return r.Status == "processing" || r.Status == "requires_capture"
}
