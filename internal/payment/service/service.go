package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"transitpass/internal/notification"
	"transitpass/internal/pass/models"
	"transitpass/internal/payment/metrics"
	id "transitpass/pkg/domain"
	dErrors "transitpass/pkg/domain-errors"
	audit "transitpass/pkg/platform/audit"
	"transitpass/pkg/platform/sentinel"
	"transitpass/pkg/requestcontext"
)

const (
	KindPass    = "pass"
	KindRenewal = "renewal"

	defaultCurrency = "INR"
	// minorUnits converts major fare units into the provider's smallest unit.
	minorUnits = 100
)

// Store is the subset of the pass store that payments touch.
type Store interface {
	FindPassByIDForUpdate(ctx context.Context, passID id.PassID) (*models.Pass, error)
	FindPassByOrderIDForUpdate(ctx context.Context, orderID string) (*models.Pass, error)
	UpdatePass(ctx context.Context, p *models.Pass) error
	ListPassesByUser(ctx context.Context, userID id.UserID) ([]*models.Pass, error)

	FindRenewalByIDForUpdate(ctx context.Context, renewalID id.RenewalID) (*models.Renewal, error)
	FindRenewalByOrderID(ctx context.Context, orderID string) (*models.Renewal, error)
	UpdateRenewal(ctx context.Context, r *models.Renewal) error
	ListRenewalsByUser(ctx context.Context, userID id.UserID) ([]*models.Renewal, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Order is what the checkout widget needs to collect a payment.
type Order struct {
	OrderID     string
	Amount      int64
	AmountMinor int64
	Currency    string
	KeyID       string
	Kind        string
	RecordID    int64
}

// Receipt describes a verified payment.
type Receipt struct {
	OrderID   string
	PaymentID string
	Kind      string
	PassID    id.PassID
	RenewalID id.RenewalID
	ValidTo   time.Time
	// Replayed is set when the payment had already been applied by an earlier call.
	Replayed bool
}

// Service reconciles provider payments with the pass ledger.
type Service struct {
	store          Store
	tx             TxRunner
	provider       Provider
	notifier       Notifier
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	currency       string
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithTx(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithCurrency(currency string) Option {
	return func(s *Service) {
		if currency != "" {
			s.currency = strings.ToUpper(currency)
		}
	}
}

func New(store Store, provider Provider, opts ...Option) *Service {
	s := &Service{
		store:    store,
		provider: provider,
		logger:   slog.Default(),
		currency: defaultCurrency,
		tracer:   otel.Tracer("transitpass/payment"),
	}
	if tx, ok := store.(TxRunner); ok {
		s.tx = tx
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = noTx{}
	}
	return s
}

type noTx struct{}

func (noTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// payable is the record an order will be attached to.
type payable struct {
	kind      string
	passID    id.PassID
	renewalID id.RenewalID
	amount    int64
	// orderID is set when an earlier call already attached an order.
	orderID string
}

func (p payable) recordID() int64 {
	if p.kind == KindRenewal {
		return int64(p.renewalID)
	}
	return int64(p.passID)
}

func (p payable) subject() string {
	if p.kind == KindRenewal {
		return "renewal:" + p.renewalID.String()
	}
	return "pass:" + p.passID.String()
}

// CreateOrder mints a provider order for the caller's payable record: the most
// recent APPROVED renewal, else the APPROVED pass expiring last. amount is in
// major units and must equal the stored fare. A record that already carries an
// order gets that order back, so a retried checkout never strands a payment
// made against the first order.
func (s *Service) CreateOrder(ctx context.Context, caller id.Caller, amount int64) (_ *Order, err error) {
	defer s.metrics.ObserveOperation("create_order", time.Now())
	ctx, span := s.tracer.Start(ctx, "payment.CreateOrder",
		trace.WithAttributes(attribute.Int64("user_id", int64(caller.UserID))))
	defer func() { endSpan(span, err) }()

	if err := caller.RequireUser(); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}

	target, err := s.selectPayable(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if amount != target.amount {
		return nil, dErrors.New(dErrors.CodeValidation,
			"amount does not match the payable fare of "+strconv.FormatInt(target.amount, 10))
	}

	if target.orderID != "" {
		s.logger.InfoContext(ctx, "payment order reused",
			"order_id", target.orderID,
			"kind", target.kind,
			"record_id", target.recordID(),
			"user_id", caller.UserID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return s.order(target, target.orderID), nil
	}

	receipt := target.kind + "_" + strconv.FormatInt(target.recordID(), 10)
	minted, err := s.provider.CreateOrder(ctx, amount*minorUnits, s.currency, receipt)
	if err != nil {
		s.metrics.IncrementProviderErrors()
		s.logger.ErrorContext(ctx, "payment provider order failed",
			"user_id", caller.UserID,
			"receipt", receipt,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		if _, ok := dErrors.As(err); ok {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeProvider, "failed to create payment order")
	}

	now := requestcontext.Now(ctx)
	var orderID string
	var attached bool
	err = s.runInTx(ctx, func(ctx context.Context) error {
		var err error
		orderID, attached, err = s.attachOrder(ctx, target, minted, now)
		if err != nil || !attached {
			return err
		}
		return s.emitAudit(ctx, audit.Event{
			Action:  audit.EventOrderCreated.String(),
			UserID:  caller.UserID,
			Subject: target.subject(),
			Details: map[string]string{
				"order_id": orderID,
				"amount":   strconv.FormatInt(amount, 10),
				"currency": s.currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if !attached {
		s.logger.InfoContext(ctx, "order already attached by a concurrent checkout",
			"order_id", orderID,
			"discarded_order_id", minted,
			"kind", target.kind,
			"record_id", target.recordID(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return s.order(target, orderID), nil
	}

	s.metrics.IncrementOrdersCreated(target.kind)
	s.logger.InfoContext(ctx, "payment order created",
		"order_id", orderID,
		"kind", target.kind,
		"record_id", target.recordID(),
		"user_id", caller.UserID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return s.order(target, orderID), nil
}

func (s *Service) order(target payable, orderID string) *Order {
	return &Order{
		OrderID:     orderID,
		Amount:      target.amount,
		AmountMinor: target.amount * minorUnits,
		Currency:    s.currency,
		KeyID:       s.provider.KeyID(),
		Kind:        target.kind,
		RecordID:    target.recordID(),
	}
}

func (s *Service) selectPayable(ctx context.Context, userID id.UserID) (payable, error) {
	renewals, err := s.store.ListRenewalsByUser(ctx, userID)
	if err != nil {
		return payable{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load renewals")
	}
	// Renewals are listed newest first.
	for _, r := range renewals {
		if r.Status == models.RenewalStatusApproved {
			return payable{kind: KindRenewal, passID: r.PassID, renewalID: r.ID, amount: r.RenewalFare, orderID: r.OrderID}, nil
		}
	}

	passes, err := s.store.ListPassesByUser(ctx, userID)
	if err != nil {
		return payable{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load passes")
	}
	var best *models.Pass
	for _, p := range passes {
		if p.Status != models.PassStatusApproved {
			continue
		}
		if best == nil || p.ValidTo.After(best.ValidTo) || (p.ValidTo.Equal(best.ValidTo) && p.ID > best.ID) {
			best = p
		}
	}
	if best == nil {
		return payable{}, dErrors.New(dErrors.CodeNoPayableRecord, "no approved pass or renewal awaits payment")
	}
	return payable{kind: KindPass, passID: best.ID, amount: best.Fare, orderID: best.OrderID}, nil
}

// attachOrder re-locks the chosen record, which must still be APPROVED. When a
// concurrent call attached an order first, that order is returned with
// attached=false and orderID is dropped.
func (s *Service) attachOrder(ctx context.Context, target payable, orderID string, now time.Time) (string, bool, error) {
	if target.kind == KindRenewal {
		// Pass before renewal, matching the ledger's lock order.
		if _, err := s.store.FindPassByIDForUpdate(ctx, target.passID); err != nil {
			return "", false, translateFind(err, "pass")
		}
		r, err := s.store.FindRenewalByIDForUpdate(ctx, target.renewalID)
		if err != nil {
			return "", false, translateFind(err, "renewal")
		}
		if r.Status != models.RenewalStatusApproved {
			return "", false, dErrors.New(dErrors.CodeConflict, "renewal is no longer awaiting payment")
		}
		if r.OrderID != "" {
			return r.OrderID, false, nil
		}
		if err := s.ensureOrderUnclaimed(ctx, orderID, KindRenewal); err != nil {
			return "", false, err
		}
		r.ApplyOrder(orderID, now)
		if err := s.store.UpdateRenewal(ctx, r); err != nil {
			return "", false, translateWrite(err, "renewal")
		}
		return orderID, true, nil
	}

	p, err := s.store.FindPassByIDForUpdate(ctx, target.passID)
	if err != nil {
		return "", false, translateFind(err, "pass")
	}
	if p.Status != models.PassStatusApproved {
		return "", false, dErrors.New(dErrors.CodeConflict, "pass is no longer awaiting payment")
	}
	if p.OrderID != "" {
		return p.OrderID, false, nil
	}
	if err := s.ensureOrderUnclaimed(ctx, orderID, KindPass); err != nil {
		return "", false, err
	}
	p.ApplyOrder(orderID, now)
	if err := s.store.UpdatePass(ctx, p); err != nil {
		return "", false, translateWrite(err, "pass")
	}
	return orderID, true, nil
}

// ensureOrderUnclaimed fails when the other table already carries orderID.
// Each table's unique column only guards its own rows.
func (s *Service) ensureOrderUnclaimed(ctx context.Context, orderID, kind string) error {
	var err error
	if kind == KindRenewal {
		_, err = s.store.FindPassByOrderIDForUpdate(ctx, orderID)
	} else {
		_, err = s.store.FindRenewalByOrderID(ctx, orderID)
	}
	switch {
	case err == nil:
		return dErrors.New(dErrors.CodeConflict, "order id already attached to another record")
	case errors.Is(err, sentinel.ErrNotFound):
		return nil
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up order")
	}
}

// VerifyPayment applies a provider confirmation. The signature is checked before
// any read; retries with the same payment id are no-ops.
func (s *Service) VerifyPayment(ctx context.Context, orderID, paymentID, signature string) (_ *Receipt, err error) {
	defer s.metrics.ObserveOperation("verify_payment", time.Now())
	ctx, span := s.tracer.Start(ctx, "payment.VerifyPayment",
		trace.WithAttributes(attribute.String("order_id", orderID)))
	defer func() {
		if err != nil {
			s.metrics.IncrementVerifyFailures(string(dErrors.CodeOf(err)))
		}
		endSpan(span, err)
	}()

	orderID = strings.TrimSpace(orderID)
	paymentID = strings.TrimSpace(paymentID)
	signature = strings.TrimSpace(signature)
	if orderID == "" || paymentID == "" || signature == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "order_id, payment_id and signature are required")
	}
	if !s.provider.VerifySignature(orderID, paymentID, signature) {
		s.logger.WarnContext(ctx, "payment signature rejected",
			"order_id", orderID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.New(dErrors.CodeSignatureInvalid, "payment signature is invalid")
	}

	now := requestcontext.Now(ctx)
	var receipt *Receipt
	var userID id.UserID
	err = s.runInTx(ctx, func(ctx context.Context) error {
		var err error
		receipt, userID, err = s.applyPayment(ctx, orderID, paymentID, now)
		if err != nil || receipt.Replayed {
			return err
		}
		subject := "pass:" + receipt.PassID.String()
		if receipt.Kind == KindRenewal {
			subject = "renewal:" + receipt.RenewalID.String()
		}
		return s.emitAudit(ctx, audit.Event{
			Action:  audit.EventPaymentVerified.String(),
			UserID:  userID,
			Subject: subject,
			Details: map[string]string{
				"order_id":   orderID,
				"payment_id": paymentID,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if receipt.Replayed {
		s.logger.InfoContext(ctx, "payment already applied",
			"order_id", orderID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return receipt, nil
	}

	s.metrics.IncrementPaymentsVerified(receipt.Kind)
	s.logger.InfoContext(ctx, "payment verified",
		"order_id", orderID,
		"kind", receipt.Kind,
		"pass_id", receipt.PassID,
		"user_id", userID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.notify(ctx, userID, notification.Data{"expiry": receipt.ValidTo.Format(time.DateOnly)})
	return receipt, nil
}

// applyPayment settles the renewal or pass owning orderID inside the caller's transaction.
func (s *Service) applyPayment(ctx context.Context, orderID, paymentID string, now time.Time) (*Receipt, id.UserID, error) {
	peek, err := s.store.FindRenewalByOrderID(ctx, orderID)
	switch {
	case err == nil:
		return s.applyRenewalPayment(ctx, peek, orderID, paymentID, now)
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up order")
	}

	p, err := s.store.FindPassByOrderIDForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, 0, dErrors.New(dErrors.CodeOrderNotFound, "no pass or renewal carries this order")
		}
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up order")
	}
	receipt := &Receipt{OrderID: orderID, PaymentID: paymentID, Kind: KindPass, PassID: p.ID, ValidTo: p.ValidTo}
	if p.Status == models.PassStatusPaid {
		if p.PaymentID != paymentID {
			return nil, 0, dErrors.New(dErrors.CodeAlreadyProcessed, "order was paid with a different payment")
		}
		receipt.Replayed = true
		return receipt, p.UserID, nil
	}
	if p.Status != models.PassStatusApproved {
		return nil, 0, dErrors.New(dErrors.CodeConflict, "pass is not awaiting payment")
	}
	p.ApplyPayment(paymentID, now)
	if err := p.CheckInvariants(); err != nil {
		return nil, 0, err
	}
	if err := s.store.UpdatePass(ctx, p); err != nil {
		return nil, 0, translateWrite(err, "pass")
	}
	return receipt, p.UserID, nil
}

func (s *Service) applyRenewalPayment(ctx context.Context, peek *models.Renewal, orderID, paymentID string, now time.Time) (*Receipt, id.UserID, error) {
	p, err := s.store.FindPassByIDForUpdate(ctx, peek.PassID)
	if err != nil {
		return nil, 0, translateFind(err, "pass")
	}
	r, err := s.store.FindRenewalByIDForUpdate(ctx, peek.ID)
	if err != nil {
		return nil, 0, translateFind(err, "renewal")
	}
	// The lookup ran before the locks.
	if r.OrderID != orderID {
		return nil, 0, dErrors.New(dErrors.CodeConflict, "renewal no longer carries this order")
	}
	receipt := &Receipt{
		OrderID:   orderID,
		PaymentID: paymentID,
		Kind:      KindRenewal,
		PassID:    p.ID,
		RenewalID: r.ID,
		ValidTo:   r.NewExpiry,
	}
	if r.Status == models.RenewalStatusPaid {
		if r.PaymentID != paymentID {
			return nil, 0, dErrors.New(dErrors.CodeAlreadyProcessed, "order was paid with a different payment")
		}
		receipt.Replayed = true
		return receipt, r.UserID, nil
	}
	if r.Status != models.RenewalStatusApproved {
		return nil, 0, dErrors.New(dErrors.CodeConflict, "renewal is not awaiting payment")
	}

	r.ApplyPayment(paymentID, now)
	p.ApplyRenewalPayment(r, now)
	if err := invariantGuard(p.CheckInvariants, r.CheckInvariants); err != nil {
		return nil, 0, err
	}
	if err := s.store.UpdateRenewal(ctx, r); err != nil {
		return nil, 0, translateWrite(err, "renewal")
	}
	if err := s.store.UpdatePass(ctx, p); err != nil {
		return nil, 0, translateWrite(err, "pass")
	}
	return receipt, r.UserID, nil
}

func (s *Service) notify(ctx context.Context, userID id.UserID, data notification.Data) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, notification.TemplatePaymentConfirmed, data); err != nil {
		s.metrics.IncrementNotificationsFailed()
		s.logger.WarnContext(ctx, "notification failed",
			"template", notification.TemplatePaymentConfirmed,
			"user_id", userID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) error {
	if s.auditPublisher == nil {
		return nil
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func (s *Service) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	err := s.tx.RunInTx(ctx, fn)
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent update, retry the request")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "transaction failed")
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

func translateFind(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+what)
}

func translateWrite(err error, what string) error {
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		return dErrors.New(dErrors.CodeConflict, "order id already attached to another record")
	}
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeConflict, what+" was modified concurrently")
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save "+what)
}

func invariantGuard(checks ...func() error) error {
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}
