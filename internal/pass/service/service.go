package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"transitpass/internal/notification"
	"transitpass/internal/pass/metrics"
	"transitpass/internal/pass/models"
	id "transitpass/pkg/domain"
	dErrors "transitpass/pkg/domain-errors"
	audit "transitpass/pkg/platform/audit"
	"transitpass/pkg/platform/sentinel"
	"transitpass/pkg/requestcontext"
)

// Store persists passes and renewals. ...ForUpdate readers lock the row until
// the surrounding transaction ends.
type Store interface {
	LockUser(ctx context.Context, userID id.UserID) error

	CreatePass(ctx context.Context, p *models.Pass) error
	FindPassByID(ctx context.Context, passID id.PassID) (*models.Pass, error)
	FindPassByIDForUpdate(ctx context.Context, passID id.PassID) (*models.Pass, error)
	UpdatePass(ctx context.Context, p *models.Pass) error
	ListPassesByUser(ctx context.Context, userID id.UserID) ([]*models.Pass, error)
	ListPassesByStatus(ctx context.Context, status models.PassStatus) ([]*models.Pass, error)

	CreateRenewal(ctx context.Context, r *models.Renewal) error
	FindRenewalByID(ctx context.Context, renewalID id.RenewalID) (*models.Renewal, error)
	FindRenewalByIDForUpdate(ctx context.Context, renewalID id.RenewalID) (*models.Renewal, error)
	UpdateRenewal(ctx context.Context, r *models.Renewal) error
	ListRenewalsByUser(ctx context.Context, userID id.UserID) ([]*models.Renewal, error)
	ListRenewalsByPass(ctx context.Context, passID id.PassID) ([]*models.Renewal, error)
	ListRenewalsByStatus(ctx context.Context, status models.RenewalStatus) ([]*models.Renewal, error)
}

// TxRunner scopes a unit of work. Stores read the transaction from ctx.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service is the pass ledger: applications, admin review, renewals, the
// status read and the expiry enforcer.
type Service struct {
	store          Store
	tx             TxRunner
	documents      DocumentStore
	notifier       Notifier
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	location       *time.Location
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

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithTx overrides the transaction runner. Stores that implement TxRunner are used by default.
func WithTx(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithLocation sets the zone whose calendar defines "today".
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

func New(store Store, documents DocumentStore, opts ...Option) *Service {
	s := &Service{
		store:     store,
		documents: documents,
		logger:    slog.Default(),
		location:  time.UTC,
		tracer:    otel.Tracer("transitpass/pass"),
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

// today is the civil date of the request in the configured zone.
func (s *Service) today(ctx context.Context) time.Time {
	return models.DateIn(requestcontext.Now(ctx), s.location)
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "pass."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

// notice is a notification queued during a transaction and sent after commit.
type notice struct {
	userID   id.UserID
	template notification.Template
	data     notification.Data
}

// notify hands a notice to the notifier. Failures are logged and swallowed.
func (s *Service) notify(ctx context.Context, n notice) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n.userID, n.template, n.data); err != nil {
		s.metrics.IncrementNotificationsFailed()
		s.logger.WarnContext(ctx, "notification failed",
			"template", n.template,
			"user_id", n.userID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

// emitAudit appends an audit event inside the caller's transaction.
func (s *Service) emitAudit(ctx context.Context, event audit.Event) error {
	if s.auditPublisher == nil {
		return nil
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

// runInTx runs fn in a transaction and leaves coded errors untouched.
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

func (s *Service) loadPassForUpdate(ctx context.Context, passID id.PassID) (*models.Pass, error) {
	p, err := s.store.FindPassByIDForUpdate(ctx, passID)
	if err != nil {
		return nil, translateFind(err, "pass")
	}
	return p, nil
}

func (s *Service) loadRenewalForUpdate(ctx context.Context, renewalID id.RenewalID) (*models.Renewal, error) {
	r, err := s.store.FindRenewalByIDForUpdate(ctx, renewalID)
	if err != nil {
		return nil, translateFind(err, "renewal")
	}
	return r, nil
}

func translateFind(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+what)
}

func translateWrite(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeConflict, what+" was modified concurrently")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save "+what)
}

// invariantGuard returns the first invariant breach; callers return it from the
// transaction so nothing is committed.
func invariantGuard(checks ...func() error) error {
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func dateString(t time.Time) string {
	return t.Format(time.DateOnly)
}
