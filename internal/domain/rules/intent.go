package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/forumly/forumcore/internal/domain/enums"
	"github.com/forumly/forumcore/internal/domain/faults"
)

type IntentEvent string

const (
	EventSecretIssued          IntentEvent = "secret_issued"
	EventGatewayUnavailable    IntentEvent = "gateway_unavailable"
	EventMemberDetected        IntentEvent = "member_detected"
	EventPaymentMethodRejected IntentEvent = "payment_method_rejected"
	EventPaymentDeclined       IntentEvent = "payment_declined"
	EventGatewayTimeout        IntentEvent = "gateway_timeout"
	EventPaymentSucceeded      IntentEvent = "payment_succeeded"
	EventOutcomeUnknown        IntentEvent = "payment_outcome_unknown"
	EventEntitlementRecorded   IntentEvent = "entitlement_recorded"
	EventEntitlementWriteFail  IntentEvent = "entitlement_write_failed"
	EventAbandoned             IntentEvent = "abandoned"
)

// Effect is a side effect the caller must perform after a transition.
type Effect string

const (
	EffectReleaseSlot        Effect = "release_slot"
	EffectEnqueueReconcile   Effect = "enqueue_reconcile"
	EffectEnqueueVerify      Effect = "enqueue_verify"
	EffectClearReconcile     Effect = "clear_reconcile"
	EffectRecordReconcileErr Effect = "record_reconcile_error"
)

type IntentTransition struct {
	Next    enums.IntentState
	Reason  enums.FailureReason
	Effects []Effect
}

// ApplyIntent is the membership intent state machine:
// Created -> AwaitingConfirmation -> Confirmed -> Reconciled, with Failed
// reachable from Created and AwaitingConfirmation. A confirm whose outcome
// the gateway could not report parks in Verifying until a lookup settles it
// as Confirmed or, when nothing was charged, Failed. A captured payment
// (Confirmed) never fails; it stays Confirmed until the entitlement lands.
func ApplyIntent(current enums.IntentState, event IntentEvent) (IntentTransition, error) {
	if current.Terminal() {
		return IntentTransition{}, invalidTransition(current, event)
	}

	switch event {
	case EventSecretIssued:
		if current == enums.IntentStateCreated {
			return IntentTransition{Next: enums.IntentStateAwaitingConfirmation}, nil
		}
	case EventGatewayUnavailable:
		return failBeforeCapture(current, event, enums.FailureReasonGatewayUnavailable)
	case EventMemberDetected:
		return failBeforeCapture(current, event, enums.FailureReasonAlreadyMember)
	case EventPaymentMethodRejected:
		return failBeforeCapture(current, event, enums.FailureReasonPaymentMethodRejected)
	case EventPaymentDeclined:
		if current == enums.IntentStateVerifying {
			return IntentTransition{
				Next:    enums.IntentStateFailed,
				Reason:  enums.FailureReasonPaymentDeclined,
				Effects: []Effect{EffectClearReconcile, EffectReleaseSlot},
			}, nil
		}
		return failBeforeCapture(current, event, enums.FailureReasonPaymentDeclined)
	case EventGatewayTimeout:
		return failBeforeCapture(current, event, enums.FailureReasonTimeout)
	case EventAbandoned:
		return failBeforeCapture(current, event, enums.FailureReasonAbandoned)
	case EventOutcomeUnknown:
		if current.Chargeable() {
			return IntentTransition{
				Next:    enums.IntentStateVerifying,
				Effects: []Effect{EffectEnqueueVerify},
			}, nil
		}
	case EventPaymentSucceeded:
		if current.Chargeable() || current == enums.IntentStateVerifying {
			return IntentTransition{
				Next:    enums.IntentStateConfirmed,
				Effects: []Effect{EffectEnqueueReconcile},
			}, nil
		}
	case EventEntitlementRecorded:
		if current == enums.IntentStateConfirmed {
			return IntentTransition{
				Next:    enums.IntentStateReconciled,
				Effects: []Effect{EffectClearReconcile, EffectReleaseSlot},
			}, nil
		}
	case EventEntitlementWriteFail:
		if current == enums.IntentStateConfirmed {
			return IntentTransition{
				Next:    enums.IntentStateConfirmed,
				Effects: []Effect{EffectRecordReconcileErr},
			}, nil
		}
	}

	return IntentTransition{}, invalidTransition(current, event)
}

func (t IntentTransition) Has(effect Effect) bool {
	for _, e := range t.Effects {
		if e == effect {
			return true
		}
	}
	return false
}

func failBeforeCapture(current enums.IntentState, event IntentEvent, reason enums.FailureReason) (IntentTransition, error) {
	if !current.Chargeable() {
		return IntentTransition{}, invalidTransition(current, event)
	}
	return IntentTransition{
		Next:    enums.IntentStateFailed,
		Reason:  reason,
		Effects: []Effect{EffectReleaseSlot},
	}, nil
}

func invalidTransition(current enums.IntentState, event IntentEvent) error {
	return fmt.Errorf("%w: %s on %s", faults.ErrInvalidTransition, event, current)
}

// maxAmount is the exclusive upper bound the outbox column can hold.
var maxAmount = decimal.New(1, 10)

// ValidAmount accepts positive amounts with at most two decimal places, the
// precision the reconcile outbox stores without rounding.
func ValidAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || amount.GreaterThanOrEqual(maxAmount) {
		return faults.ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: at most two decimal places", faults.ErrInvalidAmount)
	}
	return nil
}
