package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"transitpass/internal/document"
	"transitpass/internal/fare"
	"transitpass/internal/pass/handler/mocks"
	"transitpass/internal/pass/models"
	"transitpass/internal/pass/service"
	id "transitpass/pkg/domain"
	dErrors "transitpass/pkg/domain-errors"
	"transitpass/pkg/requestcontext"
)

var (
	user  = id.Caller{UserID: 7, Role: id.RoleUser}
	admin = id.Caller{UserID: 1, Role: id.RoleAdmin}
)

type PassHandlerSuite struct {
	suite.Suite
}

func TestPassHandlerSuite(t *testing.T) {
	suite.Run(t, new(PassHandlerSuite))
}

// newRouter mounts the handler behind a stub that authenticates every request as caller.
func (s *PassHandlerSuite) newRouter(t *testing.T, caller id.Caller, docs Documents) (*mocks.MockService, chi.Router) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	h := New(svc, docs, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(requestcontext.WithCaller(req.Context(), caller)))
		})
	})
	h.Protected(r)
	h.Admin(r)
	return svc, r
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func applyForm(t *testing.T, fields map[string]string, withFile bool) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if withFile {
		fw, err := mw.CreateFormFile("id_proof", "Aadhaar Card.pdf")
		require.NoError(t, err)
		_, err = fw.Write([]byte("%PDF-1.4"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/pass/apply", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func samplePass() *models.Pass {
	return &models.Pass{
		ID:             3,
		UserID:         user.UserID,
		ApplicantName:  "Asha Rao",
		Route:          "Central - Harbour",
		DistanceKm:     8,
		DurationMonths: 1,
		ValidFrom:      time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		ValidTo:        time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
		Fare:           300,
		Concession:     fare.ConcessionGeneral,
		IDProofRef:     "uuid_aadhaar_card.pdf",
		Status:         models.PassStatusPending,
	}
}

func (s *PassHandlerSuite) TestApply() {
	fields := map[string]string{
		"applicant_name":  "Asha Rao",
		"route":           "Central - Harbour",
		"distance_km":     "8",
		"duration_months": "1",
	}

	s.T().Run("passes the parsed form to the ledger - 201", func(t *testing.T) {
		svc, router := s.newRouter(t, user, nil)
		svc.EXPECT().ApplyForPass(gomock.Any(), user, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.Caller, in service.ApplyPassInput) (*models.Pass, error) {
				assert.Equal(t, "Asha Rao", in.ApplicantName)
				assert.Equal(t, 8.0, in.DistanceKm)
				assert.Equal(t, 1, in.DurationMonths)
				assert.Equal(t, "Aadhaar Card.pdf", in.DocumentName)
				content, err := io.ReadAll(in.Document)
				assert.NoError(t, err)
				assert.Equal(t, "%PDF-1.4", string(content))
				return samplePass(), nil
			})

		rec := serve(router, applyForm(t, fields, true))
		assert.Equal(t, http.StatusCreated, rec.Code)
		got := decodeBody[PassResponse](t, rec)
		assert.Equal(t, int64(3), got.ID)
		assert.Equal(t, "2024-02-15", got.ValidTo)
		assert.Equal(t, "PENDING", got.Status)
	})

	s.T().Run("missing document - 400", func(t *testing.T) {
		svc, router := s.newRouter(t, user, nil)
		svc.EXPECT().ApplyForPass(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		rec := serve(router, applyForm(t, fields, false))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(dErrors.CodeValidation), decodeBody[map[string]string](t, rec)["error"])
	})

	s.T().Run("non-numeric distance - 400", func(t *testing.T) {
		svc, router := s.newRouter(t, user, nil)
		svc.EXPECT().ApplyForPass(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		bad := map[string]string{"applicant_name": "A", "route": "R", "distance_km": "far", "duration_months": "1"}

		rec := serve(router, applyForm(t, bad, true))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	s.T().Run("duplicate active pass - 400", func(t *testing.T) {
		svc, router := s.newRouter(t, user, nil)
		svc.EXPECT().ApplyForPass(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeDuplicateActive, "an approved pass is still valid for this user"))

		rec := serve(router, applyForm(t, fields, true))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(dErrors.CodeDuplicateActive), decodeBody[map[string]string](t, rec)["error"])
	})
}

func (s *PassHandlerSuite) TestStatus() {
	s.T().Run("user without passes", func(t *testing.T) {
		svc, router := s.newRouter(t, user, nil)
		svc.EXPECT().GetStatus(gomock.Any(), user).Return(models.StatusView{}, nil)

		rec := serve(router, httptest.NewRequest(http.MethodGet, "/status", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"has_pass":false,"days_left":0,"can_pay":false}`, rec.Body.String())
	})

	s.T().Run("renders the status view", func(t *testing.T) {
		svc, router := s.newRouter(t, user, nil)
		svc.EXPECT().GetStatus(gomock.Any(), user).Return(models.StatusView{
			HasPass:        true,
			PassID:         3,
			ApplicantName:  "Asha Rao",
			PassType:       models.PassTypeNew,
			Route:          "Central - Harbour",
			ExpiryDate:     time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
			Fare:           300,
			ApprovalStatus: "PAID",
			State:          models.DisplayActive,
			DaysLeft:       31,
		}, nil)

		rec := serve(router, httptest.NewRequest(http.MethodGet, "/status", nil))
		got := decodeBody[StatusResponse](t, rec)
		assert.Equal(t, "ACTIVE", got.State)
		assert.Equal(t, "2024-02-15", got.ExpiryDate)
		assert.Equal(t, 31, got.DaysLeft)
		assert.Equal(t, "NEW", got.PassType)
	})
}

func (s *PassHandlerSuite) TestRenewal() {
	s.T().Run("apply decodes the body - 201", func(t *testing.T) {
		svc, router := s.newRouter(t, user, nil)
		svc.EXPECT().ApplyForRenewal(gomock.Any(), user, service.ApplyRenewalInput{
			PassID:         3,
			DurationMonths: 1,
			RenewalFare:    300,
		}).Return(&models.Renewal{ID: 4, PassID: 3, DurationMonths: 1, RenewalFare: 300, Status: models.RenewalStatusPending}, nil)

		req := httptest.NewRequest(http.MethodPost, "/renewal/apply",
			strings.NewReader(`{"pass_id":3,"duration_months":1,"renewal_fare":300}`))
		rec := serve(router, req)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, int64(4), decodeBody[RenewalResponse](t, rec).ID)
	})

	s.T().Run("route change without a route - 400", func(t *testing.T) {
		svc, router := s.newRouter(t, user, nil)
		svc.EXPECT().ApplyForRenewal(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		req := httptest.NewRequest(http.MethodPost, "/renewal/apply",
			strings.NewReader(`{"pass_id":3,"duration_months":1,"renewal_fare":300,"route_changed":true}`))
		assert.Equal(t, http.StatusBadRequest, serve(router, req).Code)
	})

	s.T().Run("pending renewal already exists - 400", func(t *testing.T) {
		svc, router := s.newRouter(t, user, nil)
		svc.EXPECT().ApplyForRenewal(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeDuplicatePendingRenewal, "a renewal is already pending"))

		req := httptest.NewRequest(http.MethodPost, "/renewal/apply",
			strings.NewReader(`{"pass_id":3,"duration_months":1,"renewal_fare":300}`))
		rec := serve(router, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(dErrors.CodeDuplicatePendingRenewal), decodeBody[map[string]string](t, rec)["error"])
	})

	s.T().Run("someone else's pass - 404", func(t *testing.T) {
		svc, router := s.newRouter(t, user, nil)
		svc.EXPECT().ApplyForRenewal(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotOwned, "pass not found"))

		req := httptest.NewRequest(http.MethodPost, "/renewal/apply",
			strings.NewReader(`{"pass_id":3,"duration_months":1,"renewal_fare":300}`))
		assert.Equal(t, http.StatusNotFound, serve(router, req).Code)
	})
}

func (s *PassHandlerSuite) TestAdminReview() {
	s.T().Run("approve parses the path id", func(t *testing.T) {
		svc, router := s.newRouter(t, admin, nil)
		approved := samplePass()
		approved.Status = models.PassStatusApproved
		svc.EXPECT().ApproveNewPass(gomock.Any(), admin, id.PassID(3)).Return(approved, nil)

		rec := serve(router, httptest.NewRequest(http.MethodPut, "/admin/pass/3/approve", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "APPROVED", decodeBody[PassResponse](t, rec).Status)
	})

	s.T().Run("invalid id - 400", func(t *testing.T) {
		svc, router := s.newRouter(t, admin, nil)
		svc.EXPECT().RejectPass(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		rec := serve(router, httptest.NewRequest(http.MethodPut, "/admin/pass/abc/reject", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	s.T().Run("non-admin - 403", func(t *testing.T) {
		svc, router := s.newRouter(t, user, nil)
		svc.EXPECT().ApproveRenewal(gomock.Any(), user, id.RenewalID(4)).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "admin role required"))

		rec := serve(router, httptest.NewRequest(http.MethodPost, "/admin/renewals/4/approve", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	s.T().Run("reviewing twice - 400 invalid state", func(t *testing.T) {
		svc, router := s.newRouter(t, admin, nil)
		svc.EXPECT().RejectRenewal(gomock.Any(), admin, id.RenewalID(4)).
			Return(nil, dErrors.New(dErrors.CodeInvalidState, "renewal is APPROVED"))

		rec := serve(router, httptest.NewRequest(http.MethodPost, "/admin/renewals/4/reject", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(dErrors.CodeInvalidState), decodeBody[map[string]string](t, rec)["error"])
	})

	s.T().Run("pending renewals include the applicant", func(t *testing.T) {
		svc, router := s.newRouter(t, admin, nil)
		svc.EXPECT().ListPendingRenewals(gomock.Any(), admin).Return([]models.PendingRenewal{{
			Renewal:       &models.Renewal{ID: 4, PassID: 3, Status: models.RenewalStatusPending},
			ApplicantName: "Asha Rao",
			CurrentRoute:  "Central - Harbour",
		}}, nil)

		rec := serve(router, httptest.NewRequest(http.MethodGet, "/admin/renewals", nil))
		rows := decodeBody[[]PendingRenewalResponse](t, rec)
		require.Len(t, rows, 1)
		assert.Equal(t, "Asha Rao", rows[0].ApplicantName)
		assert.Equal(t, int64(4), rows[0].ID)
	})

	s.T().Run("internal errors hide their message - 500", func(t *testing.T) {
		svc, router := s.newRouter(t, admin, nil)
		svc.EXPECT().ListPending(gomock.Any(), admin).
			Return(nil, dErrors.New(dErrors.CodeInternal, "pq: connection refused"))

		rec := serve(router, httptest.NewRequest(http.MethodGet, "/admin/passes/pending", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})
}

func (s *PassHandlerSuite) TestDocument() {
	store, err := document.NewFileStore(s.T().TempDir())
	s.Require().NoError(err)
	ref, err := store.Save(s.T().Context(), strings.NewReader("%PDF-1.4"), "Aadhaar Card.pdf")
	s.Require().NoError(err)

	s.T().Run("admin streams the document", func(t *testing.T) {
		_, router := s.newRouter(t, admin, store)
		rec := serve(router, httptest.NewRequest(http.MethodGet, "/admin/documents/"+ref, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "%PDF-1.4", rec.Body.String())
	})

	s.T().Run("users are forbidden", func(t *testing.T) {
		_, router := s.newRouter(t, user, store)
		rec := serve(router, httptest.NewRequest(http.MethodGet, "/admin/documents/"+ref, nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	s.T().Run("unknown reference - 404", func(t *testing.T) {
		_, router := s.newRouter(t, admin, store)
		rec := serve(router, httptest.NewRequest(http.MethodGet, "/admin/documents/missing.pdf", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func (s *PassHandlerSuite) TestQuote() {
	s.T().Run("reads the query string", func(t *testing.T) {
		svc, router := s.newRouter(t, user, nil)
		svc.EXPECT().Quote(gomock.Any(), 12.5, "STUDENT", 3).Return(fare.Quote{Monthly: 400, Months: 3, Total: 1200}, nil)

		rec := serve(router, httptest.NewRequest(http.MethodGet, "/pass/quote?distance_km=12.5&concession=STUDENT&months=3", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(1200), decodeBody[fare.Quote](t, rec).Total)
	})
}
