package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/forumly/forumcore/internal/domain/enums"
	"github.com/forumly/forumcore/internal/domain/faults"
	"github.com/forumly/forumcore/internal/domain/model"
	"github.com/forumly/forumcore/internal/transport/http/dto"
	httperrors "github.com/forumly/forumcore/internal/transport/http/errors"
)

type MembershipService interface {
	BeginIntent(ctx context.Context, userID string, amount decimal.Decimal) (model.MembershipIntent, error)
	Confirm(ctx context.Context, intentID string, actorID string, details model.PaymentDetails) (model.MembershipIntent, error)
	Reconcile(ctx context.Context, intentID string) (model.EntitlementRecord, error)
	Abandon(ctx context.Context, intentID string, actorID string) (model.MembershipIntent, error)
	Intent(ctx context.Context, intentID string, actorID string) (model.MembershipIntent, error)
	Pending(ctx context.Context, userID string) ([]model.PendingReconciliation, error)
}

type MembershipHandler struct {
	service MembershipService
	price   decimal.Decimal
	logger  *zap.Logger
}

func NewMembershipHandler(service MembershipService, price decimal.Decimal, logger *zap.Logger) *MembershipHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MembershipHandler{service: service, price: price, logger: logger}
}

func (h *MembershipHandler) BeginIntent(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req dto.BeginIntentRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "INVALID_JSON", "invalid request body")
		return
	}
	amount := h.price
	if req.Amount != nil {
		amount = *req.Amount
	}

	intent, err := h.service.BeginIntent(r.Context(), identity.UserID, amount)
	if err != nil {
		httperrors.WriteFault(w, err)
		return
	}
	httperrors.Write(w, http.StatusCreated, dto.IntentFromModel(intent))
}

func (h *MembershipHandler) GetIntent(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	intent, err := h.service.Intent(r.Context(), chi.URLParam(r, "intent_id"), identity.UserID)
	if err != nil {
		httperrors.WriteFault(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.IntentFromModel(intent))
}

// Confirm charges the card and immediately tries to record the membership.
// A captured payment whose entitlement write failed answers 202, and so does
// a charge whose outcome is still being verified with the gateway.
func (h *MembershipHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req dto.ConfirmIntentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	billingName := strings.TrimSpace(req.PaymentMethod.BillingName)
	if billingName == "" {
		billingName = identity.DisplayName
	}

	intentID := chi.URLParam(r, "intent_id")
	intent, err := h.service.Confirm(r.Context(), intentID, identity.UserID, model.PaymentDetails{
		Card:        req.PaymentMethod.Card,
		BillingName: billingName,
	})
	if errors.Is(err, faults.ErrPaymentUnverified) {
		httperrors.Write(w, http.StatusAccepted, dto.ConfirmResponse{
			Status:  "payment_verifying",
			Message: faults.UserMessage(faults.ErrPaymentUnverified),
			Intent:  dto.IntentFromModel(intent),
		})
		return
	}
	if err != nil {
		httperrors.WriteFault(w, err)
		return
	}

	h.writeReconcileOutcome(w, r, intent, identity.UserID)
}

// Reconcile is the manual re-reconciliation entry point for a captured payment.
// Once the cached intent expired, the caller's outbox row stands in for it.
func (h *MembershipHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	intent, err := h.service.Intent(r.Context(), chi.URLParam(r, "intent_id"), identity.UserID)
	if err != nil && !errors.Is(err, faults.ErrIntentNotFound) {
		httperrors.WriteFault(w, err)
		return
	}
	if errors.Is(err, faults.ErrIntentNotFound) {
		pending, ok := h.ownedPending(r.Context(), identity.UserID, chi.URLParam(r, "intent_id"))
		if !ok {
			httperrors.WriteFault(w, err)
			return
		}
		intent = intentFromPending(pending)
	}

	h.writeReconcileOutcome(w, r, intent, identity.UserID)
}

func (h *MembershipHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	intent, err := h.service.Abandon(r.Context(), chi.URLParam(r, "intent_id"), identity.UserID)
	if err != nil {
		if errors.Is(err, faults.ErrReconciliation) {
			httperrors.Write(w, http.StatusConflict, httperrors.APIError{
				Code:    faults.Code(err),
				Message: faults.UserMessage(err),
			})
			return
		}
		httperrors.WriteFault(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.IntentFromModel(intent))
}

func (h *MembershipHandler) Pending(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	pending, err := h.service.Pending(r.Context(), identity.UserID)
	if err != nil {
		httperrors.WriteFault(w, err)
		return
	}

	resp := dto.PendingListResponse{Items: make([]dto.PendingReconciliationResponse, 0, len(pending))}
	for _, item := range pending {
		resp.Items = append(resp.Items, dto.PendingReconciliationResponse{
			IntentID:      item.IntentID,
			Amount:        item.Amount,
			PaymentID:     item.PaymentID,
			ConfirmedAt:   item.ConfirmedAt,
			Attempts:      item.Attempts,
			NextAttemptAt: item.NextAttemptAt,
			Verifying:     item.VerifyPayment,
		})
	}
	if len(resp.Items) > 0 {
		resp.Message = faults.UserMessage(faults.ErrReconciliationPending)
	}
	httperrors.Write(w, http.StatusOK, resp)
}

func (h *MembershipHandler) writeReconcileOutcome(w http.ResponseWriter, r *http.Request, intent model.MembershipIntent, actorID string) {
	_, err := h.service.Reconcile(r.Context(), intent.ID)
	if err != nil {
		h.logger.Warn("reconcile after confirm did not complete",
			zap.String("intent_id", intent.ID),
			zap.String("user_id", intent.UserID),
			zap.Error(err),
		)
		if !errors.Is(err, faults.ErrReconciliation) && !errors.Is(err, faults.ErrAlreadyMember) {
			httperrors.WriteFault(w, err)
			return
		}
		if latest, getErr := h.service.Intent(r.Context(), intent.ID, actorID); getErr == nil {
			intent = latest
		}
		resp := dto.ConfirmResponse{
			Status:  "reconciliation_pending",
			Message: faults.UserMessage(faults.ErrReconciliationPending),
			Intent:  dto.IntentFromModel(intent),
		}
		if errors.Is(err, faults.ErrPaymentUnverified) {
			resp.Status = "payment_verifying"
			resp.Message = faults.UserMessage(faults.ErrPaymentUnverified)
		}
		httperrors.Write(w, http.StatusAccepted, resp)
		return
	}

	if latest, getErr := h.service.Intent(r.Context(), intent.ID, actorID); getErr == nil {
		intent = latest
	}
	httperrors.Write(w, http.StatusOK, dto.ConfirmResponse{
		Status: "reconciled",
		Intent: dto.IntentFromModel(intent),
	})
}

func (h *MembershipHandler) ownedPending(ctx context.Context, userID, intentID string) (model.PendingReconciliation, bool) {
	pending, err := h.service.Pending(ctx, userID)
	if err != nil {
		return model.PendingReconciliation{}, false
	}
	for _, item := range pending {
		if item.IntentID == intentID {
			return item, true
		}
	}
	return model.PendingReconciliation{}, false
}

func intentFromPending(item model.PendingReconciliation) model.MembershipIntent {
	intent := model.MembershipIntent{
		ID:        item.IntentID,
		UserID:    item.UserID,
		Amount:    item.Amount,
		PaymentID: item.PaymentID,
		State:     enums.IntentStateConfirmed,
		CreatedAt: item.CreatedAt,
	}
	if item.VerifyPayment {
		intent.State = enums.IntentStateVerifying
		return intent
	}
	confirmedAt := item.ConfirmedAt
	intent.ConfirmedAt = &confirmedAt
	return intent
}
