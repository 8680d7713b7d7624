package httptransport_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	authhandler "transitpass/internal/auth/handler"
	authservice "transitpass/internal/auth/service"
	"transitpass/internal/auth/store/revocation"
	userstore "transitpass/internal/auth/store/user"
	"transitpass/internal/document"
	jwttoken "transitpass/internal/jwt_token"
	"transitpass/internal/notification"
	passhandler "transitpass/internal/pass/handler"
	passservice "transitpass/internal/pass/service"
	passstore "transitpass/internal/pass/store"
	paymenthandler "transitpass/internal/payment/handler"
	"transitpass/internal/payment/provider"
	paymentservice "transitpass/internal/payment/service"
	platformmetrics "transitpass/internal/platform/metrics"
	ratelimit "transitpass/internal/ratelimit/middleware"
	ratelimitmodels "transitpass/internal/ratelimit/models"
	"transitpass/internal/ratelimit/store/bucket"
	httptransport "transitpass/internal/transport/http"
	"transitpass/pkg/platform/audit/publisher"
	auditmemory "transitpass/pkg/platform/audit/store/memory"
	"transitpass/pkg/testutil"
)

const paymentSecret = "provider-secret"

type RouterSuite struct {
	suite.Suite
	router   http.Handler
	gateway  *httptest.Server
	sent     *recordingSender
	healthy  error
	orderSeq int
}

type recordingSender struct {
	messages []notification.Message
}

func (r *recordingSender) Send(_ context.Context, msg notification.Message) error {
	r.messages = append(r.messages, msg)
	return nil
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	s.healthy = nil

	s.gateway = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.orderSeq++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"order_%d","status":"created"}`, s.orderSeq)
	}))
	s.T().Cleanup(s.gateway.Close)

	users := userstore.New()
	jwt := jwttoken.NewJWTService("router-test-key", "transitpass-test")
	trl := revocation.NewInMemoryTRL()
	audits := publisher.NewPublisher(auditmemory.NewInMemoryStore())
	authSvc := authservice.New(users, jwt, trl,
		authservice.WithBcryptCost(bcrypt.MinCost),
		authservice.WithAuditPublisher(audits),
		authservice.WithLogger(logger),
	)
	s.Require().NoError(authSvc.SeedAdmin(context.Background(), "Admin", "admin@example.com", "admin-password"))

	s.sent = &recordingSender{}
	notifier := notification.NewDispatcher(authSvc, s.sent, logger)

	docs, err := document.NewFileStore(s.T().TempDir())
	s.Require().NoError(err)
	ledger := passstore.NewInMemory()
	passSvc := passservice.New(ledger, docs,
		passservice.WithNotifier(notifier),
		passservice.WithAuditPublisher(audits),
		passservice.WithLogger(logger),
	)
	gateway := provider.New(provider.Config{BaseURL: s.gateway.URL, KeyID: "rzp_test", KeySecret: paymentSecret})
	paySvc := paymentservice.New(ledger, gateway,
		paymentservice.WithNotifier(notifier),
		paymentservice.WithAuditPublisher(audits),
		paymentservice.WithLogger(logger),
	)

	s.router = httptransport.NewRouter(httptransport.Config{
		Logger:      logger,
		Validator:   jwttoken.NewJWTServiceAdapter(jwt),
		Revocations: trl,
		Observer:    platformmetrics.NewHTTP(reg),
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Health: map[string]httptransport.HealthCheck{
			"store": func(context.Context) error { return s.healthy },
		},
		Modules: []httptransport.Module{
			authhandler.New(authSvc, logger),
			passhandler.New(passSvc, docs, logger),
			paymenthandler.New(paySvc, logger),
		},
	})
}

func (s *RouterSuite) do(req *http.Request) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, req)
}

func (s *RouterSuite) login(email, password string) string {
	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/auth/login",
		map[string]string{"email": email, "password": password}))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	return testutil.UnmarshalResponse[authhandler.LoginResponse](s.T(), rr).AccessToken
}

func (s *RouterSuite) registerAndLogin(email string) string {
	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/auth/register",
		map[string]string{"name": "Asha Rao", "email": email, "password": "correct-horse"}))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return s.login(email, "correct-horse")
}

func (s *RouterSuite) apply(token string) passhandler.PassResponse {
	req := testutil.NewMultipartRequest(s.T(), "/api/pass/apply", map[string]string{
		"applicant_name":  "Asha Rao",
		"route":           "Central - Harbour",
		"distance_km":     "8",
		"duration_months": "1",
		"concession":      "GENERAL",
	}, "id_proof", "Aadhaar Card.pdf", []byte("%PDF-1.4"))
	rr := s.do(testutil.WithBearer(req, token))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return *testutil.UnmarshalResponse[passhandler.PassResponse](s.T(), rr)
}

func (s *RouterSuite) TestPassLifecycle() {
	user := s.registerAndLogin("asha@example.com")
	adminToken := s.login("admin@example.com", "admin-password")

	pass := s.apply(user)
	s.Equal("PENDING", pass.Status)
	s.Equal(int64(300), pass.Fare)

	rr := s.do(testutil.WithBearer(httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/admin/pass/%d/approve", pass.ID), nil), adminToken))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	rr = s.do(testutil.WithBearer(testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/payment/create-order",
		map[string]int64{"amount": 300}), user))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	order := testutil.UnmarshalResponse[paymenthandler.CreateOrderResponse](s.T(), rr)
	s.Equal("order_1", order.OrderID)

	rr = s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/payment/verify", map[string]string{
		"razorpay_order_id":   order.OrderID,
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  provider.Sign(order.OrderID, "pay_1", paymentSecret),
	}))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	rr = s.do(testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/api/status", nil), user))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	status := testutil.UnmarshalResponse[passhandler.StatusResponse](s.T(), rr)
	s.True(status.HasPass)
	s.Equal("ACTIVE", status.State)
	s.Equal("PAID", status.ApprovalStatus)

	s.NotEmpty(s.sent.messages)
	s.Equal("asha@example.com", s.sent.messages[0].To)
}

func (s *RouterSuite) TestForgedSignatureIsRejected() {
	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/payment/verify", map[string]string{
		"razorpay_order_id":   "order_1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  strings.Repeat("0", 64),
	}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "signature_invalid")
}

func (s *RouterSuite) TestAuthorization() {
	s.Run("protected routes need a token", func() {
		rr := s.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("admin routes reject users", func() {
		user := s.registerAndLogin("ravi@example.com")
		rr := s.do(testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/api/admin/passes/pending", nil), user))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
	})

	s.Run("logout revokes the token", func() {
		user := s.registerAndLogin("meera@example.com")
		rr := s.do(testutil.WithBearer(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), user))
		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

		rr = s.do(testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/api/status", nil), user))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})
}

func (s *RouterSuite) TestOperationalEndpoints() {
	s.Run("healthz reports checks", func() {
		testutil.AssertStatus(s.T(), s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)), http.StatusOK)
		s.healthy = errors.New("down")
		testutil.AssertStatus(s.T(), s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)), http.StatusServiceUnavailable)
	})

	s.Run("metrics expose request counters", func() {
		s.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
		rr := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		s.Contains(rr.Body.String(), "transitpass_http_requests_total")
	})

	s.Run("responses carry a request id", func() {
		rr := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
		s.NotEmpty(rr.Header().Get("X-Request-ID"))
	})
}

func TestRouterRateLimitsPublicRoutes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jwt := jwttoken.NewJWTService("router-test-key", "transitpass-test")
	trl := revocation.NewInMemoryTRL()
	authSvc := authservice.New(userstore.New(), jwt, trl, authservice.WithBcryptCost(bcrypt.MinCost))
	limiter := ratelimit.New(bucket.New(), logger,
		ratelimit.WithRule(ratelimitmodels.ClassPublic, ratelimitmodels.Rule{Limit: 2, Window: time.Minute}),
	)
	router := httptransport.NewRouter(httptransport.Config{
		Logger:      logger,
		Validator:   jwttoken.NewJWTServiceAdapter(jwt),
		Revocations: trl,
		RateLimit:   limiter,
		Modules:     []httptransport.Module{authhandler.New(authSvc, logger)},
	})

	login := func() *httptest.ResponseRecorder {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/api/auth/login",
			map[string]string{"email": "nobody@example.com", "password": "wrong-password"})
		return testutil.DoRequest(router, req)
	}

	for i := 0; i < 2; i++ {
		rr := login()
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
		if rr.Header().Get("X-RateLimit-Limit") != "2" {
			t.Fatalf("missing rate limit header on attempt %d", i+1)
		}
	}
	rr := login()
	testutil.AssertStatus(t, rr, http.StatusTooManyRequests)
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After on 429")
	}

	rr = testutil.DoRequest(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
}
