package enums

type FailureReason string

const (
	FailureReasonNone                  FailureReason = ""
	FailureReasonGatewayUnavailable    FailureReason = "gateway_unavailable"
	FailureReasonPaymentMethodRejected FailureReason = "payment_method_rejected"
	FailureReasonPaymentDeclined       FailureReason = "payment_declined"
	FailureReasonTimeout               FailureReason = "timeout"
	FailureReasonAlreadyMember         FailureReason = "already_member"
	FailureReasonAbandoned             FailureReason = "abandoned"
)

// Retryable reports whether the user may simply start a new intent.
func (r FailureReason) Retryable() bool {
	switch r {
	case FailureReasonGatewayUnavailable, FailureReasonTimeout, FailureReasonPaymentDeclined, FailureReasonPaymentMethodRejected, FailureReasonAbandoned:
		return true
	default:
		return false
	}
}
