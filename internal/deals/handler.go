// handler.go -- HTTP handlers for /deals/* and the add-on ingestion endpoint.
//
// The ingestion path is the trust boundary of the whole system: it accepts
// unauthenticated traffic and turns it into rows owned by arbitrary users.
// Check order there is fixed -- signed-channel verification, then the
// registration gate, then extraction, then persistence. Nothing after a
// failed check runs.
package deals

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sponsoai/dealdesk/internal/addon"
	"github.com/sponsoai/dealdesk/internal/auth"
	"github.com/sponsoai/dealdesk/internal/extract"
	"github.com/sponsoai/dealdesk/internal/metrics"
	"github.com/sponsoai/dealdesk/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// Store defines database operations needed by deal handlers.
// Satisfied by *store.PostgresStore — defined here (at consumer) per Go convention.
type Store interface {
	// CreateDeal inserts a deal and returns the stored record with created_at set.
	CreateDeal(ctx context.Context, d *store.Deal) (*store.Deal, error)

	// ListDeals returns ownerEmail's deals, newest first.
	ListDeals(ctx context.Context, ownerEmail string) ([]store.Deal, error)

	// GetDealByID fetches one deal with no ownership filter (diagnostics only).
	GetDealByID(ctx context.Context, id uuid.UUID) (*store.Deal, error)

	// UpdateDeal applies a patch iff the deal belongs to ownerEmail.
	// Returns pgx.ErrNoRows when nothing matched.
	UpdateDeal(ctx context.Context, id uuid.UUID, patch store.DealPatch, ownerEmail string) (*store.Deal, error)

	// DeleteDeal removes a deal iff it belongs to ownerEmail.
	// Returns pgx.ErrNoRows when nothing matched.
	DeleteDeal(ctx context.Context, id uuid.UUID, ownerEmail string) error

	// GetUserByEmail backs the registration gate.
	// Returns pgx.ErrNoRows if no such user exists.
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
}

// Extractor converts email text into a structured deal.
// Satisfied by *extract.Extractor.
type Extractor interface {
	Extract(ctx context.Context, subject, body string) (extract.Deal, error)
}

// DealHandler holds dependencies for all /deals/* HTTP handlers.
// AdminToken guards the rotation endpoint; empty disables it.
type DealHandler struct {
	PS         Store
	EX         Extractor
	Secrets    *addon.Secrets
	AdminToken string
}

// dealResponse is the wire shape of a persisted deal.
type dealResponse struct {
	ID          string  `json:"id"`
	BrandName   string  `json:"brand_name"`
	Amount      float64 `json:"amount"`
	Deadline    *string `json:"deadline"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	UserEmail   string  `json:"user_email"`
	CreatedAt   string  `json:"created_at"`
}

func toResponse(d *store.Deal) dealResponse {
	resp := dealResponse{
		ID:          d.ID.String(),
		BrandName:   d.BrandName,
		Amount:      d.Amount,
		Description: d.Description,
		Status:      d.Status,
		UserEmail:   d.UserEmail,
		CreatedAt:   d.CreatedAt.UTC().Format(time.RFC3339),
	}
	if d.Deadline != nil {
		s := d.Deadline.Format("2006-01-02")
		resp.Deadline = &s
	}
	return resp
}

// CreateFromAddon handles POST /deals/addon — the signed ingestion pipeline.
//
// 201 with the created deal on success. 400 body validation, 401 any
// signed-channel failure, 403 unregistered user, 500 misconfigured secret /
// model unreachable / storage failure.
func (h *DealHandler) CreateFromAddon(w http.ResponseWriter, r *http.Request) {
	metrics.IngestionRequestsTotal.Inc()

	var in addonInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		metrics.IngestionRejectedTotal.WithLabelValues("bad_body").Inc()
		logWarn(r, "failed to decode addon input", "error", err)
		auth.BadRequest(w, r, "error decoding request body")
		return
	}

	// Channel authentication first: the signature covers the payload, so
	// tampered or replayed content never reaches validation or the store.
	err := addon.Verify(
		r.Header.Get(addon.HeaderAPIKey),
		r.Header.Get(addon.HeaderTimestamp),
		r.Header.Get(addon.HeaderSignature),
		addon.Payload(in),
		h.Secrets,
		time.Now(),
	)
	if err != nil {
		if errors.Is(err, addon.ErrMisconfiguredSecret) {
			metrics.IngestionRejectedTotal.WithLabelValues("misconfigured_secret").Inc()
			auth.InternalServerError(w, r, err)
			return
		}
		metrics.IngestionRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		logWarn(r, "addon verification failed", "reason", err.Error())
		auth.Unauthorized(w, r, err.Error())
		return
	}

	if msg := in.validate(); msg != "" {
		metrics.IngestionRejectedTotal.WithLabelValues("validation").Inc()
		auth.BadRequest(w, r, msg)
		return
	}

	ownerEmail := auth.NormalizeEmail(in.UserEmail)
	if !h.ensureRegistered(r, ownerEmail) {
		metrics.IngestionRejectedTotal.WithLabelValues("unregistered").Inc()
		// Fixed wording: the add-on's error branch matches on this message.
		auth.Forbidden(w, "First sign up on web app")
		return
	}

	start := time.Now()
	extracted, err := h.EX.Extract(r.Context(), in.Subject, in.Body)
	metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		// Total model failure is the one extraction error surfaced to the
		// caller; parse-quality problems were already downgraded inside Extract.
		metrics.IngestionRejectedTotal.WithLabelValues("model_unavailable").Inc()
		logError(r, "extraction model unavailable", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"failed to process with AI model"}`))
		return
	}
	if extracted.BrandName == extract.FailedBrandName {
		metrics.ExtractionFallbackTotal.Inc()
		logWarn(r, "extraction degraded to placeholder record", "user_email", ownerEmail)
	}

	deal, ok := h.persistExtracted(w, r, extracted, ownerEmail)
	if !ok {
		return
	}

	metrics.IngestionAcceptedTotal.Inc()
	logInfo(r, "addon deal ingested", "deal_id", deal.ID, "user_email", ownerEmail)
	auth.WriteJSON(w, http.StatusCreated, toResponse(deal))
}

// rejectReason maps verifier sentinels to stable metric labels.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, addon.ErrMissingAPIKey):
		return "missing_api_key"
	case errors.Is(err, addon.ErrInvalidAPIKey):
		return "invalid_api_key"
	case errors.Is(err, addon.ErrMissingSignedHeaders):
		return "missing_signed_headers"
	case errors.Is(err, addon.ErrInvalidTimestamp):
		return "invalid_timestamp"
	case errors.Is(err, addon.ErrRequestExpired):
		return "request_expired"
	case errors.Is(err, addon.ErrInvalidSignature):
		return "invalid_signature"
	default:
		return "other"
	}
}

// ensureRegistered reports whether a user row exists for the email.
// A store failure is logged as an error but surfaces as "not registered" --
// the add-on channel must not learn the difference, the operator must.
func (h *DealHandler) ensureRegistered(r *http.Request, email string) bool {
	_, err := h.PS.GetUserByEmail(r.Context(), email)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			logError(r, "registration gate store lookup failed", "error", err)
		}
		return false
	}
	return true
}

// persistExtracted writes the extraction result as a Pending deal.
// Returns (deal, true) on success; writes the 500 itself on failure.
func (h *DealHandler) persistExtracted(w http.ResponseWriter, r *http.Request, ex extract.Deal, ownerEmail string) (*store.Deal, bool) {
	id, err := uuid.NewV7()
	if err != nil {
		auth.InternalServerError(w, r, err)
		return nil, false
	}

	deal, err := h.PS.CreateDeal(r.Context(), &store.Deal{
		ID:          id,
		BrandName:   ex.BrandName,
		Amount:      max(ex.Amount, 0),
		Deadline:    ex.Deadline,
		Description: ex.Description,
		Status:      store.DealStatusPending,
		UserEmail:   ownerEmail,
	})
	if err != nil {
		logError(r, "failed to persist deal", "error", err)
		auth.InternalServerError(w, r, err)
		return nil, false
	}
	return deal, true
}

// Create handles POST /deals — authenticated creation.
// Manual fields, or subject/body to run extraction server-side.
func (h *DealHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerEmail, ok := auth.EmailFromContext(r.Context())
	if !ok {
		auth.InternalServerError(w, r, errors.New("missing auth context"))
		return
	}

	var in createInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		logWarn(r, "failed to decode create input", "error", err)
		auth.BadRequest(w, r, "error decoding request body")
		return
	}

	if in.isEmailDerived() {
		if msg := in.validateEmailDerived(); msg != "" {
			auth.BadRequest(w, r, msg)
			return
		}
		start := time.Now()
		extracted, err := h.EX.Extract(r.Context(), in.Subject, in.Body)
		metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			logError(r, "extraction model unavailable", "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"message":"failed to process with AI model"}`))
			return
		}
		if extracted.BrandName == extract.FailedBrandName {
			metrics.ExtractionFallbackTotal.Inc()
		}
		deal, ok := h.persistExtracted(w, r, extracted, ownerEmail)
		if !ok {
			return
		}
		logInfo(r, "deal created from email", "deal_id", deal.ID)
		auth.WriteJSON(w, http.StatusCreated, toResponse(deal))
		return
	}

	if msg := in.validateManual(); msg != "" {
		auth.BadRequest(w, r, msg)
		return
	}

	var amount float64
	if in.Amount != nil {
		amount = *in.Amount
	}
	var deadline *time.Time
	if in.Deadline != nil && *in.Deadline != "" {
		t, _ := time.Parse("2006-01-02", *in.Deadline) // validated above
		deadline = &t
	}

	id, err := uuid.NewV7()
	if err != nil {
		auth.InternalServerError(w, r, err)
		return
	}

	deal, err := h.PS.CreateDeal(r.Context(), &store.Deal{
		ID:          id,
		BrandName:   in.BrandName,
		Amount:      amount,
		Deadline:    deadline,
		Description: in.Description,
		Status:      store.DealStatusPending,
		UserEmail:   ownerEmail,
	})
	if err != nil {
		logError(r, "failed to persist deal", "error", err)
		auth.InternalServerError(w, r, err)
		return
	}

	logInfo(r, "deal created manually", "deal_id", deal.ID)
	auth.WriteJSON(w, http.StatusCreated, toResponse(deal))
}

// List handles GET /deals — the caller's deals, newest first.
func (h *DealHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerEmail, ok := auth.EmailFromContext(r.Context())
	if !ok {
		auth.InternalServerError(w, r, errors.New("missing auth context"))
		return
	}

	deals, err := h.PS.ListDeals(r.Context(), ownerEmail)
	if err != nil {
		logError(r, "failed to list deals", "error", err)
		auth.InternalServerError(w, r, err)
		return
	}

	out := make([]dealResponse, 0, len(deals))
	for i := range deals {
		out = append(out, toResponse(&deals[i]))
	}
	auth.WriteJSON(w, http.StatusOK, out)
}

// Update handles PATCH /deals/{id} — ownership-scoped field updates.
// A deal that doesn't exist and a deal owned by someone else both 404;
// the caller learns nothing about other users' rows.
func (h *DealHandler) Update(w http.ResponseWriter, r *http.Request) {
	ownerEmail, ok := auth.EmailFromContext(r.Context())
	if !ok {
		auth.InternalServerError(w, r, errors.New("missing auth context"))
		return
	}

	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		auth.BadRequest(w, r, "invalid deal id")
		return
	}

	var in updateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		logWarn(r, "failed to decode update input", "error", err)
		auth.BadRequest(w, r, "error decoding request body")
		return
	}
	if msg := in.validate(); msg != "" {
		auth.BadRequest(w, r, msg)
		return
	}

	patch := store.DealPatch{
		BrandName:   in.BrandName,
		Amount:      in.Amount,
		Description: in.Description,
		Status:      in.Status,
	}
	if in.Deadline != nil && *in.Deadline != "" {
		t, _ := time.Parse("2006-01-02", *in.Deadline) // validated above
		patch.Deadline = &t
	}

	deal, err := h.PS.UpdateDeal(r.Context(), id, patch, ownerEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			auth.NotFound(w, "deal not found")
			return
		}
		logError(r, "failed to update deal", "error", err)
		auth.InternalServerError(w, r, err)
		return
	}

	logInfo(r, "deal updated", "deal_id", deal.ID)
	auth.WriteJSON(w, http.StatusOK, toResponse(deal))
}

// Delete handles DELETE /deals/{id} — ownership-scoped removal.
func (h *DealHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerEmail, ok := auth.EmailFromContext(r.Context())
	if !ok {
		auth.InternalServerError(w, r, errors.New("missing auth context"))
		return
	}

	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		auth.BadRequest(w, r, "invalid deal id")
		return
	}

	if err := h.PS.DeleteDeal(r.Context(), id, ownerEmail); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			auth.NotFound(w, "deal not found")
			return
		}
		logError(r, "failed to delete deal", "error", err)
		auth.InternalServerError(w, r, err)
		return
	}

	logInfo(r, "deal deleted", "deal_id", id)
	auth.OK(w, "deal deleted")
}
