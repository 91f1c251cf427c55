package rules

import (
	"strings"
	"unicode/utf8"

	"github.com/forumly/forumcore/internal/domain/enums"
	"github.com/forumly/forumcore/internal/domain/faults"
	"github.com/forumly/forumcore/internal/domain/model"
)

const MaxFeedbackLength = 64

func NormalizeFeedback(raw string) (string, error) {
	feedback := strings.TrimSpace(raw)
	if feedback == "" || utf8.RuneCountInString(feedback) > MaxFeedbackLength {
		return "", faults.ErrInvalidFeedback
	}
	return feedback, nil
}

// CanClassify allows only the owner of the comment's post to set feedback, once.
func CanClassify(comment model.Comment, post model.Post, actor model.Actor) error {
	if !ownsPost(post, actor) {
		return faults.ErrForbidden
	}
	if comment.HasFeedback() {
		return faults.ErrAlreadyClassified
	}
	return nil
}

// CanReport requires prior classification and an unreported comment.
func CanReport(comment model.Comment, post model.Post, actor model.Actor) error {
	if !ownsPost(post, actor) && !actor.IsAdmin() {
		return faults.ErrForbidden
	}
	if !comment.HasFeedback() {
		return faults.ErrMissingFeedback
	}
	if comment.Reported {
		return faults.ErrAlreadyReported
	}
	return nil
}

func CanResolve(comment model.Comment, action enums.ResolveAction, actor model.Actor) error {
	if !actor.IsAdmin() {
		return faults.ErrForbidden
	}
	if action != enums.ResolveActionDelete && action != enums.ResolveActionClear {
		return faults.ErrInvalidAction
	}
	if !comment.Reported {
		return faults.ErrNotReported
	}
	return nil
}

func ownsPost(post model.Post, actor model.Actor) bool {
	actorID := strings.TrimSpace(actor.ID)
	return actorID != "" && strings.EqualFold(actorID, strings.TrimSpace(post.AuthorEmail))
}
