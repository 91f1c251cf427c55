package integration_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type fakeUser struct {
	Email            string          `json:"email"`
	Name             string          `json:"name"`
	Role             string          `json:"role"`
	IsMember         bool            `json:"isMember"`
	Badge            string          `json:"badge"`
	MembershipPaidAt *time.Time      `json:"membershipPaidAt"`
	MembershipAmount decimal.Decimal `json:"membershipAmount"`
}

type fakeComment struct {
	ID              string     `json:"_id"`
	PostID          string     `json:"postId"`
	AuthorEmail     string     `json:"authorEmail"`
	Text            string     `json:"text"`
	CreatedAt       time.Time  `json:"createdAt"`
	Feedback        *string    `json:"feedback"`
	Reported        bool       `json:"reported"`
	ReportedByEmail string     `json:"reportedByEmail,omitempty"`
	ReportedAt      *time.Time `json:"reportedAt,omitempty"`
}

// fakeForum is an in-memory forum backend speaking the REST shape the
// forumapi repos expect.
type fakeForum struct {
	mu       sync.Mutex
	users    map[string]*fakeUser
	comments []*fakeComment
	price    string
	writes   int
}

func newFakeForum() *fakeForum {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &fakeForum{
		users: map[string]*fakeUser{
			"ann@x.io":  {Email: "ann@x.io", Name: "Ann", Role: "user"},
			"bob@x.io":  {Email: "bob@x.io", Name: "Bob", Role: "user"},
			"root@x.io": {Email: "root@x.io", Name: "Root", Role: "admin"},
		},
		comments: []*fakeComment{
			{ID: "c1", PostID: "p1", AuthorEmail: "bob@x.io", Text: "buy cheap watches", CreatedAt: created},
			{ID: "c2", PostID: "p1", AuthorEmail: "bob@x.io", Text: "nice post", CreatedAt: created.Add(time.Minute)},
		},
	}
}

func (f *fakeForum) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/users/{email}", f.getUser)
	r.Patch("/users/{email}/membership", f.patchMembership)
	r.Post("/create-payment-intent", f.createPaymentIntent)
	r.Get("/posts", f.listPosts)
	r.Get("/posts/{id}", f.getPost)
	r.Get("/comments/{postId}", f.listComments)
	r.Patch("/comments/{id}/feedback", f.patchFeedback)
	r.Patch("/comments/{id}/report", f.patchReport)
	r.Patch("/comments/{id}/unreport", f.patchUnreport)
	r.Delete("/admin/comments/{id}", f.deleteComment)
	r.Get("/admin/reported-comments", f.listReported)
	return r
}

func (f *fakeForum) user(email string) fakeUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.users[email]
}

func (f *fakeForum) membershipWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakeForum) lastPrice() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price
}

func (f *fakeForum) getUser(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[strings.ToLower(chi.URLParam(r, "email"))]
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeFakeJSON(w, http.StatusOK, user)
}

func (f *fakeForum) patchMembership(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsMember         bool            `json:"isMember"`
		Badge            string          `json:"badge"`
		MembershipPaidAt *time.Time      `json:"membershipPaidAt"`
		MembershipAmount decimal.Decimal `json:"membershipAmount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[strings.ToLower(chi.URLParam(r, "email"))]
	if !ok {
		http.NotFound(w, r)
		return
	}
	user.IsMember = body.IsMember
	user.Badge = body.Badge
	user.MembershipPaidAt = body.MembershipPaidAt
	user.MembershipAmount = body.MembershipAmount
	f.writes++
	writeFakeJSON(w, http.StatusOK, map[string]bool{"acknowledged": true})
}

func (f *fakeForum) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Price json.Number `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.price = body.Price.String()
	f.mu.Unlock()
	writeFakeJSON(w, http.StatusOK, map[string]string{"clientSecret": "pi_123_secret_abc"})
}

func (f *fakeForum) listPosts(w http.ResponseWriter, _ *http.Request) {
	writeFakeJSON(w, http.StatusOK, []any{})
}

func (f *fakeForum) getPost(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "id") != "p1" {
		http.NotFound(w, r)
		return
	}
	writeFakeJSON(w, http.StatusOK, map[string]string{
		"_id":         "p1",
		"authorEmail": "ann@x.io",
		"authorName":  "Ann",
		"title":       "Watches I like",
	})
}

func (f *fakeForum) listComments(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]fakeComment, 0, len(f.comments))
	for _, comment := range f.comments {
		if comment.PostID == chi.URLParam(r, "postId") {
			items = append(items, *comment)
		}
	}
	writeFakeJSON(w, http.StatusOK, items)
}

func (f *fakeForum) patchFeedback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.updateComment(w, r, func(c *fakeComment) {
		c.Feedback = &body.Feedback
	})
}

func (f *fakeForum) patchReport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ReportedByEmail string    `json:"reportedByEmail"`
		ReportedAt      time.Time `json:"reportedAt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.updateComment(w, r, func(c *fakeComment) {
		c.Reported = true
		c.ReportedByEmail = body.ReportedByEmail
		c.ReportedAt = &body.ReportedAt
	})
}

func (f *fakeForum) patchUnreport(w http.ResponseWriter, r *http.Request) {
	f.updateComment(w, r, func(c *fakeComment) {
		c.Reported = false
		c.ReportedByEmail = ""
		c.ReportedAt = nil
	})
}

func (f *fakeForum) updateComment(w http.ResponseWriter, r *http.Request, apply func(*fakeComment)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, comment := range f.comments {
		if comment.ID == chi.URLParam(r, "id") {
			apply(comment)
			writeFakeJSON(w, http.StatusOK, map[string]int{"modifiedCount": 1})
			return
		}
	}
	http.NotFound(w, r)
}

func (f *fakeForum) deleteComment(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.comments[:0]
	var deleted int
	for _, comment := range f.comments {
		if comment.ID == chi.URLParam(r, "id") {
			deleted++
			continue
		}
		kept = append(kept, comment)
	}
	f.comments = kept
	writeFakeJSON(w, http.StatusOK, map[string]int{"deletedCount": deleted})
}

func (f *fakeForum) listReported(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]fakeComment, 0)
	for _, comment := range f.comments {
		if comment.Reported {
			items = append(items, *comment)
		}
	}
	writeFakeJSON(w, http.StatusOK, items)
}

// fakeGateway answers the card gateway's payment method and confirm calls.
type fakeGateway struct {
	mu      sync.Mutex
	decline bool
	billing string
}

func (g *fakeGateway) router() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/payment_methods", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		g.mu.Lock()
		g.billing = r.PostForm.Get("billing_details[name]")
		g.mu.Unlock()
		writeFakeJSON(w, http.StatusOK, map[string]string{"id": "pm_1"})
	})
	r.Post("/v1/payment_intents/{id}/confirm", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		decline := g.decline
		g.mu.Unlock()
		if decline {
			writeFakeJSON(w, http.StatusPaymentRequired, map[string]any{
				"error": map[string]string{
					"type":         "card_error",
					"code":         "card_declined",
					"decline_code": "generic_decline",
					"message":      "Your card was declined.",
				},
			})
			return
		}
		writeFakeJSON(w, http.StatusOK, map[string]string{"id": chi.URLParam(r, "id"), "status": "succeeded"})
	})
	return r
}

func (g *fakeGateway) billingName() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.billing
}

func writeFakeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
