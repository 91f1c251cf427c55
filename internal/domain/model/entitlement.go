package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntitlementRecord is owned by the remote entitlement store; it is only
// written by membership reconciliation.
type EntitlementRecord struct {
	UserID     string          `json:"user_id"`
	IsMember   bool            `json:"is_member"`
	Badge      string          `json:"badge"`
	PaidAt     *time.Time      `json:"paid_at,omitempty"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
}

// User is the remote user record the entitlement lives on.
type User struct {
	Email       string
	DisplayName string
	PhotoURL    string
	Role        string
	Entitlement EntitlementRecord
}
