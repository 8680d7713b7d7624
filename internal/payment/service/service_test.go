package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"transitpass/internal/fare"
	"transitpass/internal/notification"
	"transitpass/internal/pass/models"
	"transitpass/internal/pass/store"
	"transitpass/internal/payment/service/mocks"
	id "transitpass/pkg/domain"
	dErrors "transitpass/pkg/domain-errors"
	audit "transitpass/pkg/platform/audit"
	"transitpass/pkg/platform/sentinel"
	"transitpass/pkg/requestcontext"
)

var (
	payer = id.Caller{UserID: 7, Role: id.RoleUser}
	other = id.Caller{UserID: 8, Role: id.RoleUser}
)

type PaymentServiceSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	store    *store.InMemoryStore
	provider *mocks.MockProvider
	notifier *mocks.MockNotifier
	auditor  *mocks.MockAuditPublisher
	service  *Service
}

func TestPaymentServiceSuite(t *testing.T) {
	suite.Run(t, new(PaymentServiceSuite))
}

func (s *PaymentServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = store.NewInMemory()
	s.provider = mocks.NewMockProvider(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.auditor = mocks.NewMockAuditPublisher(s.ctrl)
	s.service = New(s.store, s.provider,
		WithNotifier(s.notifier),
		WithAuditPublisher(s.auditor),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	s.provider.EXPECT().KeyID().Return("rzp_test_key").AnyTimes()
}

func (s *PaymentServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *PaymentServiceSuite) allowAudit() {
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
}

func (s *PaymentServiceSuite) seedPass(owner id.UserID, status models.PassStatus, to time.Time, orderID string) *models.Pass {
	p := &models.Pass{
		UserID:         owner,
		ApplicantName:  "Asha Rao",
		Route:          "Central - Harbour",
		DistanceKm:     8,
		DurationMonths: 3,
		ValidFrom:      models.AddMonths(to, -3),
		ValidTo:        to,
		Fare:           900,
		Concession:     fare.ConcessionGeneral,
		IDProofRef:     "doc",
		Status:         status,
		OrderID:        orderID,
	}
	if status == models.PassStatusPaid {
		p.IsActive = true
		p.PaymentID = "pay_seed"
	}
	s.Require().NoError(s.store.CreatePass(s.ctx, p))
	return p
}

func (s *PaymentServiceSuite) seedRenewal(p *models.Pass, status models.RenewalStatus, orderID string) *models.Renewal {
	r := &models.Renewal{
		PassID:              p.ID,
		UserID:              p.UserID,
		OldExpiry:           p.ValidTo,
		NewExpiry:           models.AddMonths(p.ValidTo, 1),
		DurationMonths:      1,
		RenewalFare:         300,
		RouteChanged:        true,
		RequestedRoute:      "Central - Airport",
		RequestedDistanceKm: 9,
		Status:              status,
		OrderID:             orderID,
	}
	s.Require().NoError(s.store.CreateRenewal(s.ctx, r))
	return r
}

func (s *PaymentServiceSuite) TestCreateOrder() {
	s.Run("attaches an order to the approved pass", func() {
		s.SetupTest()
		s.allowAudit()
		p := s.seedPass(payer.UserID, models.PassStatusApproved, date(2024, 4, 15), "")
		s.provider.EXPECT().CreateOrder(gomock.Any(), int64(90000), "INR", "pass_1").Return("order_A", nil)

		order, err := s.service.CreateOrder(s.ctx, payer, 900)
		s.Require().NoError(err)
		s.Equal("order_A", order.OrderID)
		s.Equal(int64(90000), order.AmountMinor)
		s.Equal("rzp_test_key", order.KeyID)
		s.Equal(KindPass, order.Kind)

		stored, err := s.store.FindPassByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal("order_A", stored.OrderID)
		s.Equal(models.PassStatusApproved, stored.Status)
	})

	s.Run("prefers an approved renewal over an approved pass", func() {
		s.SetupTest()
		s.allowAudit()
		paid := s.seedPass(payer.UserID, models.PassStatusPaid, date(2024, 2, 1), "order_old")
		s.seedPass(payer.UserID, models.PassStatusApproved, date(2024, 4, 15), "")
		r := s.seedRenewal(paid, models.RenewalStatusApproved, "")
		s.provider.EXPECT().CreateOrder(gomock.Any(), int64(30000), "INR", "renewal_1").Return("order_R", nil)

		order, err := s.service.CreateOrder(s.ctx, payer, 300)
		s.Require().NoError(err)
		s.Equal(KindRenewal, order.Kind)

		stored, err := s.store.FindRenewalByID(s.ctx, r.ID)
		s.Require().NoError(err)
		s.Equal("order_R", stored.OrderID)
	})

	s.Run("picks the approved pass expiring last", func() {
		s.SetupTest()
		s.allowAudit()
		s.seedPass(payer.UserID, models.PassStatusApproved, date(2024, 6, 1), "")
		later := s.seedPass(payer.UserID, models.PassStatusApproved, date(2024, 9, 1), "")
		s.seedPass(payer.UserID, models.PassStatusApproved, date(2024, 7, 1), "")
		s.provider.EXPECT().CreateOrder(gomock.Any(), gomock.Any(), gomock.Any(), "pass_"+later.ID.String()).Return("order_B", nil)

		order, err := s.service.CreateOrder(s.ctx, payer, 900)
		s.Require().NoError(err)
		s.Equal(int64(later.ID), order.RecordID)
	})

	s.Run("nothing approved is no_payable_record", func() {
		s.SetupTest()
		s.seedPass(payer.UserID, models.PassStatusPending, date(2024, 4, 15), "")
		s.seedPass(payer.UserID, models.PassStatusPaid, date(2024, 4, 15), "order_x")

		_, err := s.service.CreateOrder(s.ctx, payer, 900)
		s.True(dErrors.HasCode(err, dErrors.CodeNoPayableRecord))
	})

	s.Run("another user's approved pass is not payable", func() {
		s.SetupTest()
		s.seedPass(other.UserID, models.PassStatusApproved, date(2024, 4, 15), "")

		_, err := s.service.CreateOrder(s.ctx, payer, 900)
		s.True(dErrors.HasCode(err, dErrors.CodeNoPayableRecord))
	})

	s.Run("amount must equal the stored fare", func() {
		s.SetupTest()
		s.seedPass(payer.UserID, models.PassStatusApproved, date(2024, 4, 15), "")

		_, err := s.service.CreateOrder(s.ctx, payer, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("provider failure leaves the record untouched", func() {
		s.SetupTest()
		p := s.seedPass(payer.UserID, models.PassStatusApproved, date(2024, 4, 15), "")
		s.provider.EXPECT().CreateOrder(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return("", errors.New("connection reset"))

		_, err := s.service.CreateOrder(s.ctx, payer, 900)
		s.True(dErrors.HasCode(err, dErrors.CodeProvider))

		stored, err := s.store.FindPassByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Empty(stored.OrderID)
	})

	s.Run("record settled while the order was minted is a conflict", func() {
		s.SetupTest()
		p := s.seedPass(payer.UserID, models.PassStatusApproved, date(2024, 4, 15), "")
		s.provider.EXPECT().CreateOrder(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ int64, _, _ string) (string, error) {
				current, err := s.store.FindPassByID(ctx, p.ID)
				s.Require().NoError(err)
				current.Status = models.PassStatusPaid
				current.IsActive = true
				s.Require().NoError(s.store.UpdatePass(ctx, current))
				return "order_late", nil
			})

		_, err := s.service.CreateOrder(s.ctx, payer, 900)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("a retried checkout returns the attached order", func() {
		s.SetupTest()
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).Times(1)
		p := s.seedPass(payer.UserID, models.PassStatusApproved, date(2024, 4, 15), "")
		s.provider.EXPECT().CreateOrder(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("order_A", nil).Times(1)

		first, err := s.service.CreateOrder(s.ctx, payer, 900)
		s.Require().NoError(err)
		second, err := s.service.CreateOrder(s.ctx, payer, 900)
		s.Require().NoError(err)
		s.Equal("order_A", first.OrderID)
		s.Equal(first, second)

		stored, err := s.store.FindPassByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal("order_A", stored.OrderID)
	})

	s.Run("an order attached while minting wins over the new one", func() {
		s.SetupTest()
		p := s.seedPass(payer.UserID, models.PassStatusApproved, date(2024, 4, 15), "")
		s.provider.EXPECT().CreateOrder(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ int64, _, _ string) (string, error) {
				current, err := s.store.FindPassByID(ctx, p.ID)
				s.Require().NoError(err)
				current.OrderID = "order_first"
				s.Require().NoError(s.store.UpdatePass(ctx, current))
				return "order_second", nil
			})

		order, err := s.service.CreateOrder(s.ctx, payer, 900)
		s.Require().NoError(err)
		s.Equal("order_first", order.OrderID)

		stored, err := s.store.FindPassByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal("order_first", stored.OrderID)
	})

	s.Run("an order id already on a renewal is never attached to a pass", func() {
		s.SetupTest()
		writes := &countingStore{InMemoryStore: s.store}
		svc := New(writes, s.provider, WithAuditPublisher(s.auditor),
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		paid := s.seedPass(payer.UserID, models.PassStatusPaid, date(2024, 2, 1), "order_old")
		s.seedRenewal(paid, models.RenewalStatusPaid, "order_dup")
		p := s.seedPass(payer.UserID, models.PassStatusApproved, date(2024, 4, 15), "")
		s.provider.EXPECT().CreateOrder(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("order_dup", nil)

		_, err := svc.CreateOrder(s.ctx, payer, 900)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Zero(writes.passUpdates, "rejected before the write")

		stored, err := s.store.FindPassByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Empty(stored.OrderID)
	})

	s.Run("audit failure rolls back the order", func() {
		s.SetupTest()
		p := s.seedPass(payer.UserID, models.PassStatusApproved, date(2024, 4, 15), "")
		s.provider.EXPECT().CreateOrder(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("order_A", nil)
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("outbox down"))

		_, err := s.service.CreateOrder(s.ctx, payer, 900)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))

		stored, err := s.store.FindPassByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Empty(stored.OrderID)
	})

	s.Run("anonymous callers cannot pay", func() {
		s.SetupTest()
		_, err := s.service.CreateOrder(s.ctx, id.Caller{}, 900)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *PaymentServiceSuite) TestVerifyPayment() {
	s.Run("invalid signature mutates nothing", func() {
		s.SetupTest()
		p := s.seedPass(payer.UserID, models.PassStatusApproved, date(2024, 4, 15), "order_A")
		s.provider.EXPECT().VerifySignature("order_A", "pay_1", "bad").Return(false)

		_, err := s.service.VerifyPayment(s.ctx, "order_A", "pay_1", "bad")
		s.True(dErrors.HasCode(err, dErrors.CodeSignatureInvalid))

		stored, err := s.store.FindPassByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal(models.PassStatusApproved, stored.Status)
		s.False(stored.IsActive)
	})

	s.Run("missing fields are a validation error", func() {
		s.SetupTest()
		_, err := s.service.VerifyPayment(s.ctx, "order_A", "", "sig")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("pays and activates a new pass", func() {
		s.SetupTest()
		s.allowAudit()
		p := s.seedPass(payer.UserID, models.PassStatusApproved, date(2024, 4, 15), "order_A")
		s.provider.EXPECT().VerifySignature("order_A", "pay_1", "sig").Return(true)
		s.notifier.EXPECT().Notify(gomock.Any(), payer.UserID, notification.TemplatePaymentConfirmed, gomock.Any()).Return(nil)

		receipt, err := s.service.VerifyPayment(s.ctx, "order_A", "pay_1", "sig")
		s.Require().NoError(err)
		s.Equal(KindPass, receipt.Kind)
		s.False(receipt.Replayed)

		stored, err := s.store.FindPassByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal(models.PassStatusPaid, stored.Status)
		s.True(stored.IsActive)
		s.Equal("pay_1", stored.PaymentID)
	})

	s.Run("renewal payment synchronizes the pass", func() {
		s.SetupTest()
		s.allowAudit()
		p := s.seedPass(payer.UserID, models.PassStatusPaid, date(2024, 2, 1), "order_old")
		r := s.seedRenewal(p, models.RenewalStatusApproved, "order_R")
		s.provider.EXPECT().VerifySignature("order_R", "pay_2", "sig").Return(true)
		s.notifier.EXPECT().Notify(gomock.Any(), payer.UserID, notification.TemplatePaymentConfirmed,
			notification.Data{"expiry": "2024-03-01"}).Return(nil)

		receipt, err := s.service.VerifyPayment(s.ctx, "order_R", "pay_2", "sig")
		s.Require().NoError(err)
		s.Equal(KindRenewal, receipt.Kind)
		s.Equal(r.ID, receipt.RenewalID)

		storedRenewal, err := s.store.FindRenewalByID(s.ctx, r.ID)
		s.Require().NoError(err)
		s.Equal(models.RenewalStatusPaid, storedRenewal.Status)
		s.True(storedRenewal.IsActive)

		storedPass, err := s.store.FindPassByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal(date(2024, 3, 1), storedPass.ValidTo)
		s.Equal("Central - Airport", storedPass.Route)
		s.Equal(9.0, storedPass.DistanceKm)
		s.True(storedPass.IsActive)
		s.Equal(models.PassStatusPaid, storedPass.Status)
	})

	s.Run("retry with the same payment id is a no-op", func() {
		s.SetupTest()
		s.seedPass(payer.UserID, models.PassStatusApproved, date(2024, 4, 15), "order_A")
		s.provider.EXPECT().VerifySignature("order_A", "pay_1", "sig").Return(true).Times(2)
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).Times(1)
		s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)

		_, err := s.service.VerifyPayment(s.ctx, "order_A", "pay_1", "sig")
		s.Require().NoError(err)
		receipt, err := s.service.VerifyPayment(s.ctx, "order_A", "pay_1", "sig")
		s.Require().NoError(err)
		s.True(receipt.Replayed)
	})

	s.Run("a different payment id on a paid order is already_processed", func() {
		s.SetupTest()
		s.allowAudit()
		p := s.seedPass(payer.UserID, models.PassStatusPaid, date(2024, 2, 1), "order_old")
		s.seedRenewal(p, models.RenewalStatusPaid, "order_R")
		s.provider.EXPECT().VerifySignature("order_R", "pay_other", "sig").Return(true)

		_, err := s.service.VerifyPayment(s.ctx, "order_R", "pay_other", "sig")
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyProcessed))
	})

	s.Run("unknown order", func() {
		s.SetupTest()
		s.provider.EXPECT().VerifySignature("order_missing", "pay_1", "sig").Return(true)

		_, err := s.service.VerifyPayment(s.ctx, "order_missing", "pay_1", "sig")
		s.True(dErrors.HasCode(err, dErrors.CodeOrderNotFound))
	})

	s.Run("order on a rejected renewal is a conflict", func() {
		s.SetupTest()
		p := s.seedPass(payer.UserID, models.PassStatusPaid, date(2024, 2, 1), "order_old")
		s.seedRenewal(p, models.RenewalStatusRejected, "order_R")
		s.provider.EXPECT().VerifySignature("order_R", "pay_1", "sig").Return(true)

		_, err := s.service.VerifyPayment(s.ctx, "order_R", "pay_1", "sig")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("renewal whose order changed after lookup is a conflict", func() {
		s.SetupTest()
		p := s.seedPass(payer.UserID, models.PassStatusPaid, date(2024, 2, 1), "order_old")
		r := s.seedRenewal(p, models.RenewalStatusApproved, "order_R")
		stale := *r
		r.OrderID = "order_R2"
		s.Require().NoError(s.store.UpdateRenewal(s.ctx, r))
		svc := New(&staleLookupStore{InMemoryStore: s.store, renewal: &stale}, s.provider,
			WithAuditPublisher(s.auditor), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		s.provider.EXPECT().VerifySignature("order_R", "pay_1", "sig").Return(true)

		_, err := svc.VerifyPayment(s.ctx, "order_R", "pay_1", "sig")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		storedRenewal, err := s.store.FindRenewalByID(s.ctx, r.ID)
		s.Require().NoError(err)
		s.Equal(models.RenewalStatusApproved, storedRenewal.Status)
		s.Empty(storedRenewal.PaymentID)
		storedPass, err := s.store.FindPassByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal(date(2024, 2, 1), storedPass.ValidTo)
	})

	s.Run("notification failure does not fail the payment", func() {
		s.SetupTest()
		s.allowAudit()
		p := s.seedPass(payer.UserID, models.PassStatusApproved, date(2024, 4, 15), "order_A")
		s.provider.EXPECT().VerifySignature(gomock.Any(), gomock.Any(), gomock.Any()).Return(true)
		s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))

		_, err := s.service.VerifyPayment(s.ctx, "order_A", "pay_1", "sig")
		s.Require().NoError(err)

		stored, err := s.store.FindPassByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.True(stored.IsActive)
	})

	s.Run("concurrent verifications apply once", func() {
		s.SetupTest()
		p := s.seedPass(payer.UserID, models.PassStatusApproved, date(2024, 4, 15), "order_A")
		s.provider.EXPECT().VerifySignature(gomock.Any(), gomock.Any(), gomock.Any()).Return(true).AnyTimes()
		var events []audit.Event
		var mu sync.Mutex
		s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
			return nil
		}).AnyTimes()
		s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.service.VerifyPayment(s.ctx, "order_A", "pay_1", "sig")
				s.NoError(err)
			}()
		}
		wg.Wait()

		s.Len(events, 1)
		stored, err := s.store.FindPassByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal(models.PassStatusPaid, stored.Status)
	})
}

// countingStore records pass writes that reach the store.
type countingStore struct {
	*store.InMemoryStore
	passUpdates int
}

func (c *countingStore) UpdatePass(ctx context.Context, p *models.Pass) error {
	c.passUpdates++
	return c.InMemoryStore.UpdatePass(ctx, p)
}

// staleLookupStore answers the unlocked order lookup with an old snapshot.
type staleLookupStore struct {
	*store.InMemoryStore
	renewal *models.Renewal
}

func (s *staleLookupStore) FindRenewalByOrderID(_ context.Context, orderID string) (*models.Renewal, error) {
	if orderID == s.renewal.OrderID {
		cp := *s.renewal
		return &cp, nil
	}
	return nil, sentinel.ErrNotFound
}
