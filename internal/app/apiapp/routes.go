package apiapp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/forumly/forumcore/internal/config"
	authsvc "github.com/forumly/forumcore/internal/services/auth"
	httperrors "github.com/forumly/forumcore/internal/transport/http/errors"
	"github.com/forumly/forumcore/internal/transport/http/handlers"
)

type Dependencies struct {
	MembershipService handlers.MembershipService
	ModerationService handlers.ModerationService
	QuotaService      handlers.QuotaService
	JWTManager        *authsvc.JWTManager
	Logger            *zap.Logger
	Config            config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	membershipHandler := handlers.NewMembershipHandler(deps.MembershipService, deps.Config.Membership.Price, deps.Logger)
	moderationHandler := handlers.NewModerationHandler(deps.ModerationService)
	quotaHandler := handlers.NewQuotaHandler(deps.QuotaService)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httperrors.Write(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(deps.JWTManager, deps.Logger))

		r.Route("/membership", func(r chi.Router) {
			r.Post("/intents", membershipHandler.BeginIntent)
			r.Get("/intents/{intent_id}", membershipHandler.GetIntent)
			r.Post("/intents/{intent_id}/confirm", membershipHandler.Confirm)
			r.Post("/intents/{intent_id}/reconcile", membershipHandler.Reconcile)
			r.Post("/intents/{intent_id}/abandon", membershipHandler.Abandon)
			r.Get("/pending", membershipHandler.Pending)
		})

		r.Get("/me/post-quota", quotaHandler.PostQuota)
		r.Get("/feedback-tags", moderationHandler.FeedbackTags)

		r.Route("/posts/{post_id}/comments", func(r chi.Router) {
			r.Get("/", moderationHandler.ListComments)
			r.Post("/{comment_id}/classify", moderationHandler.Classify)
			r.Post("/{comment_id}/report", moderationHandler.Report)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/reported-comments", moderationHandler.ListReported)
			r.Post("/posts/{post_id}/comments/{comment_id}/resolve", moderationHandler.Resolve)
		})
	})
}
