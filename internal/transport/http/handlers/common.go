package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/forumly/forumcore/internal/domain/model"
	"github.com/forumly/forumcore/internal/pkg/validate"
	authsvc "github.com/forumly/forumcore/internal/services/auth"
	httperrors "github.com/forumly/forumcore/internal/transport/http/errors"
)

const maxBodyBytes = 64 << 10

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

// decodeAndValidate writes the 400 response itself and reports whether the
// handler may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeJSON(r, target); err != nil {
		writeBadRequest(w, "INVALID_JSON", "invalid request body")
		return false
	}
	fields, err := validate.Struct(target)
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to validate request")
		return false
	}
	if len(fields) > 0 {
		httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{
			Code:    "VALIDATION_ERROR",
			Message: "invalid request fields",
			Fields:  fields,
		})
		return false
	}
	return true
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (authsvc.Identity, bool) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.UserID) == "" {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return authsvc.Identity{}, false
	}
	return identity, true
}

func commentRefFromURL(w http.ResponseWriter, r *http.Request) (model.CommentRef, bool) {
	ref := model.CommentRef{
		PostID:    strings.TrimSpace(chi.URLParam(r, "post_id")),
		CommentID: strings.TrimSpace(chi.URLParam(r, "comment_id")),
	}
	if !validate.Required(ref.PostID) || !validate.Required(ref.CommentID) {
		writeBadRequest(w, "VALIDATION_ERROR", "post_id and comment_id are required")
		return model.CommentRef{}, false
	}
	return ref, true
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message})
}
