package handlers

import (
	"context"
	"net/http"

	quotasvc "github.com/forumly/forumcore/internal/services/quota"
	"github.com/forumly/forumcore/internal/transport/http/dto"
	httperrors "github.com/forumly/forumcore/internal/transport/http/errors"
)

type QuotaService interface {
	PostQuota(ctx context.Context, userID string) (quotasvc.PostQuota, error)
}

type QuotaHandler struct {
	service QuotaService
}

func NewQuotaHandler(service QuotaService) *QuotaHandler {
	return &QuotaHandler{service: service}
}

func (h *QuotaHandler) PostQuota(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	quota, err := h.service.PostQuota(r.Context(), identity.UserID)
	if err != nil {
		httperrors.WriteFault(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.PostQuotaResponse{
		IsMember:  quota.IsMember,
		PostCount: quota.PostCount,
		Limit:     quota.Limit,
		Remaining: quota.Remaining,
		CanPost:   quota.CanPost,
	})
}
