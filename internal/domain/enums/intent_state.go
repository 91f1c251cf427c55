package enums

type IntentState string

const (
	IntentStateCreated              IntentState = "created"
	IntentStateAwaitingConfirmation IntentState = "awaiting_confirmation"
	IntentStateVerifying            IntentState = "verifying_payment"
	IntentStateConfirmed            IntentState = "confirmed"
	IntentStateReconciled           IntentState = "reconciled"
	IntentStateFailed               IntentState = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s IntentState) Terminal() bool {
	return s == IntentStateReconciled || s == IntentStateFailed
}

// Active reports whether the intent still blocks a new intent for the same user.
func (s IntentState) Active() bool {
	switch s {
	case IntentStateCreated, IntentStateAwaitingConfirmation, IntentStateVerifying, IntentStateConfirmed:
		return true
	default:
		return false
	}
}

// Chargeable reports whether the card may still be submitted for this intent.
func (s IntentState) Chargeable() bool {
	return s == IntentStateCreated || s == IntentStateAwaitingConfirmation
}

// Settling reports whether the card may have been charged and the intent
// waits on the reconcile outbox. Such intents never expire on their own.
func (s IntentState) Settling() bool {
	return s == IntentStateVerifying || s == IntentStateConfirmed
}
