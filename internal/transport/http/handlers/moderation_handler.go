package handlers

import (
	"context"
	"iter"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/forumly/forumcore/internal/domain/enums"
	"github.com/forumly/forumcore/internal/domain/faults"
	"github.com/forumly/forumcore/internal/domain/model"
	"github.com/forumly/forumcore/internal/transport/http/dto"
	httperrors "github.com/forumly/forumcore/internal/transport/http/errors"
)

type ModerationService interface {
	ListComments(ctx context.Context, postID string) ([]model.Comment, error)
	Classify(ctx context.Context, ref model.CommentRef, feedback string, actorID string) (model.Comment, error)
	Report(ctx context.Context, ref model.CommentRef, actorID string) (model.Comment, error)
	ListReported(ctx context.Context, actorID string) (iter.Seq2[model.ReportedCommentView, error], error)
	Resolve(ctx context.Context, ref model.CommentRef, action enums.ResolveAction, actorID string) (model.Comment, error)
}

type ModerationHandler struct {
	service ModerationService
}

func NewModerationHandler(service ModerationService) *ModerationHandler {
	return &ModerationHandler{service: service}
}

func (h *ModerationHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	comments, err := h.service.ListComments(r.Context(), chi.URLParam(r, "post_id"))
	if err != nil {
		httperrors.WriteFault(w, err)
		return
	}

	resp := dto.CommentListResponse{Items: make([]dto.CommentResponse, 0, len(comments))}
	for _, comment := range comments {
		resp.Items = append(resp.Items, dto.CommentFromModel(comment))
	}
	httperrors.Write(w, http.StatusOK, resp)
}

func (h *ModerationHandler) FeedbackTags(w http.ResponseWriter, _ *http.Request) {
	httperrors.Write(w, http.StatusOK, dto.FeedbackTagsResponse{Items: enums.KnownFeedback})
}

func (h *ModerationHandler) Classify(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	ref, ok := commentRefFromURL(w, r)
	if !ok {
		return
	}

	var req dto.ClassifyRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	comment, err := h.service.Classify(r.Context(), ref, req.Feedback, identity.UserID)
	if err != nil {
		httperrors.WriteFault(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.CommentFromModel(comment))
}

func (h *ModerationHandler) Report(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	ref, ok := commentRefFromURL(w, r)
	if !ok {
		return
	}

	comment, err := h.service.Report(r.Context(), ref, identity.UserID)
	if err != nil {
		httperrors.WriteFault(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.CommentFromModel(comment))
}

func (h *ModerationHandler) ListReported(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	seq, err := h.service.ListReported(r.Context(), identity.UserID)
	if err != nil {
		httperrors.WriteFault(w, err)
		return
	}

	resp := dto.ReportedListResponse{Items: make([]model.ReportedCommentView, 0)}
	for view, err := range seq {
		if err != nil {
			httperrors.WriteFault(w, err)
			return
		}
		resp.Items = append(resp.Items, view)
	}
	httperrors.Write(w, http.StatusOK, resp)
}

func (h *ModerationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	ref, ok := commentRefFromURL(w, r)
	if !ok {
		return
	}

	var req dto.ResolveRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	action, ok := enums.ParseResolveAction(req.Action)
	if !ok {
		httperrors.WriteFault(w, faults.ErrInvalidAction)
		return
	}

	comment, err := h.service.Resolve(r.Context(), ref, action, identity.UserID)
	if err != nil {
		httperrors.WriteFault(w, err)
		return
	}

	resp := dto.ResolveResponse{Action: string(action)}
	if action == enums.ResolveActionClear {
		view := dto.CommentFromModel(comment)
		resp.Comment = &view
	}
	httperrors.Write(w, http.StatusOK, resp)
}
