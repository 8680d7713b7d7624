package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"transitpass/internal/fare"
	"transitpass/internal/pass/models"
	"transitpass/internal/pass/service"
	id "transitpass/pkg/domain"
	dErrors "transitpass/pkg/domain-errors"
	"transitpass/pkg/platform/httputil"
	"transitpass/pkg/platform/sentinel"
	"transitpass/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

// Service is the pass ledger as seen by HTTP.
type Service interface {
	ApplyForPass(ctx context.Context, caller id.Caller, in service.ApplyPassInput) (*models.Pass, error)
	ApproveNewPass(ctx context.Context, caller id.Caller, passID id.PassID) (*models.Pass, error)
	RejectPass(ctx context.Context, caller id.Caller, passID id.PassID) (*models.Pass, error)
	ListPending(ctx context.Context, caller id.Caller) ([]*models.Pass, error)

	GetEligiblePass(ctx context.Context, caller id.Caller) (*models.EligiblePass, error)
	ApplyForRenewal(ctx context.Context, caller id.Caller, in service.ApplyRenewalInput) (*models.Renewal, error)
	ApproveRenewal(ctx context.Context, caller id.Caller, renewalID id.RenewalID) (*models.Renewal, error)
	RejectRenewal(ctx context.Context, caller id.Caller, renewalID id.RenewalID) (*models.Renewal, error)
	LatestRenewal(ctx context.Context, caller id.Caller) (*models.Renewal, error)
	ListPendingRenewals(ctx context.Context, caller id.Caller) ([]models.PendingRenewal, error)

	GetStatus(ctx context.Context, caller id.Caller) (models.StatusView, error)
	Quote(ctx context.Context, distanceKm float64, concession string, months int) (fare.Quote, error)
}

// Documents opens stored identity proofs for admin review.
type Documents interface {
	Open(ctx context.Context, ref string) (*os.File, error)
}

// Handler serves the applicant and admin pass endpoints.
type Handler struct {
	service   Service
	documents Documents
	logger    *slog.Logger
}

func New(service Service, documents Documents, logger *slog.Logger) *Handler {
	return &Handler{
		service:   service,
		documents: documents,
		logger:    logger,
	}
}

// Public mounts nothing: every pass route needs a caller.
func (h *Handler) Public(chi.Router) {}

// Protected mounts the applicant endpoints.
func (h *Handler) Protected(r chi.Router) {
	r.Post("/pass/apply", h.HandleApply)
	r.Get("/pass/eligible", h.HandleEligible)
	r.Get("/pass/quote", h.HandleQuote)
	r.Get("/status", h.HandleStatus)
	r.Post("/renewal/apply", h.HandleApplyRenewal)
	r.Get("/renewal/my-renewal", h.HandleMyRenewal)
}

// Admin mounts the review endpoints.
func (h *Handler) Admin(r chi.Router) {
	r.Get("/admin/passes/pending", h.HandleListPending)
	r.Put("/admin/pass/{id}/approve", h.HandleApprovePass)
	r.Put("/admin/pass/{id}/reject", h.HandleRejectPass)
	r.Get("/admin/renewals", h.HandleListPendingRenewals)
	r.Post("/admin/renewals/{id}/approve", h.HandleApproveRenewal)
	r.Post("/admin/renewals/{id}/reject", h.HandleRejectRenewal)
	r.Get("/admin/documents/{ref}", h.HandleDocument)
}

// HandleApply handles POST /pass/apply (multipart/form-data).
func (h *Handler) HandleApply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	caller := requestcontext.Caller(ctx)

	in, file, err := parseApplyForm(w, r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid pass application",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	defer file.Close()

	p, err := h.service.ApplyForPass(ctx, caller, in)
	if err != nil {
		h.fail(ctx, w, "pass application failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toPassResponse(p))
}

// HandleEligible handles GET /pass/eligible.
func (h *Handler) HandleEligible(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eligible, err := h.service.GetEligiblePass(ctx, requestcontext.Caller(ctx))
	if err != nil {
		h.fail(ctx, w, "eligible pass lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEligibleResponse(eligible))
}

// HandleQuote handles GET /pass/quote?distance_km=&concession=&months=.
func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	distance, err := parseFloatField(r, "distance_km", true)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	months := 1
	if raw := r.URL.Query().Get("months"); raw != "" {
		if months, err = strconv.Atoi(raw); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "months must be an integer"))
			return
		}
	}
	quote, err := h.service.Quote(ctx, distance, r.URL.Query().Get("concession"), months)
	if err != nil {
		h.fail(ctx, w, "fare quote failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, quote)
}

// HandleStatus handles GET /status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.service.GetStatus(ctx, requestcontext.Caller(ctx))
	if err != nil {
		h.fail(ctx, w, "status lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(view))
}

// HandleApplyRenewal handles POST /renewal/apply.
func (h *Handler) HandleApplyRenewal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ApplyRenewalRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	renewal, err := h.service.ApplyForRenewal(ctx, requestcontext.Caller(ctx), req.toInput())
	if err != nil {
		h.fail(ctx, w, "renewal application failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRenewalResponse(renewal))
}

// HandleMyRenewal handles GET /renewal/my-renewal.
func (h *Handler) HandleMyRenewal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	renewal, err := h.service.LatestRenewal(ctx, requestcontext.Caller(ctx))
	if err != nil {
		h.fail(ctx, w, "renewal lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRenewalResponse(renewal))
}

func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	passes, err := h.service.ListPending(ctx, requestcontext.Caller(ctx))
	if err != nil {
		h.fail(ctx, w, "pending pass listing failed", err)
		return
	}
	out := make([]PassResponse, 0, len(passes))
	for _, p := range passes {
		out = append(out, toPassResponse(p))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleApprovePass(w http.ResponseWriter, r *http.Request) {
	h.decidePass(w, r, h.service.ApproveNewPass)
}

func (h *Handler) HandleRejectPass(w http.ResponseWriter, r *http.Request) {
	h.decidePass(w, r, h.service.RejectPass)
}

func (h *Handler) decidePass(w http.ResponseWriter, r *http.Request, decide func(context.Context, id.Caller, id.PassID) (*models.Pass, error)) {
	ctx := r.Context()
	passID, err := id.ParsePassID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := decide(ctx, requestcontext.Caller(ctx), passID)
	if err != nil {
		h.fail(ctx, w, "pass review failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPassResponse(p))
}

func (h *Handler) HandleListPendingRenewals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rows, err := h.service.ListPendingRenewals(ctx, requestcontext.Caller(ctx))
	if err != nil {
		h.fail(ctx, w, "pending renewal listing failed", err)
		return
	}
	out := make([]PendingRenewalResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, PendingRenewalResponse{
			RenewalResponse: toRenewalResponse(row.Renewal),
			ApplicantName:   row.ApplicantName,
			CurrentRoute:    row.CurrentRoute,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleApproveRenewal(w http.ResponseWriter, r *http.Request) {
	h.decideRenewal(w, r, h.service.ApproveRenewal)
}

func (h *Handler) HandleRejectRenewal(w http.ResponseWriter, r *http.Request) {
	h.decideRenewal(w, r, h.service.RejectRenewal)
}

func (h *Handler) decideRenewal(w http.ResponseWriter, r *http.Request, decide func(context.Context, id.Caller, id.RenewalID) (*models.Renewal, error)) {
	ctx := r.Context()
	renewalID, err := id.ParseRenewalID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	renewal, err := decide(ctx, requestcontext.Caller(ctx), renewalID)
	if err != nil {
		h.fail(ctx, w, "renewal review failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRenewalResponse(renewal))
}

// HandleDocument streams an identity proof to an admin.
func (h *Handler) HandleDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := requestcontext.Caller(ctx).RequireAdmin(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	ref := chi.URLParam(r, "ref")
	f, err := h.documents.Open(ctx, ref)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "document not found"))
			return
		}
		h.fail(ctx, w, "document open failed", dErrors.Wrap(err, dErrors.CodeStorage, "failed to open document"))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		h.fail(ctx, w, "document stat failed", dErrors.Wrap(err, dErrors.CodeStorage, "failed to read document"))
		return
	}
	w.Header().Set("Content-Disposition", "inline; filename="+strconv.Quote(filepath.Base(ref)))
	http.ServeContent(w, r, ref, info.ModTime(), f)
}

// fail logs server faults at ERROR and client errors at WARN, then writes the response.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"user_id", requestcontext.UserID(ctx),
		"error", err,
	}
	if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
