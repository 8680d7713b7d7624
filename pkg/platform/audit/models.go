package audit

import (
	"time"

	"github.com/google/uuid"

	id "transitpass/pkg/domain"
)

// Event records a state transition. It is written in the same transaction as the
// transition, so a rolled-back operation leaves no audit trail.
type Event struct {
	ID        uuid.UUID
	Action    string
	Timestamp time.Time
	// UserID owns the affected record.
	UserID id.UserID
	// ActorID performed the action when different from UserID (admin review).
	ActorID   id.UserID
	Subject   string
	RequestID string
	Details   map[string]string
}

// AuditEvent names the audited ledger transitions.
type AuditEvent string

const (
	EventUserRegistered  AuditEvent = "user_registered"
	EventPassApplied     AuditEvent = "pass_applied"
	EventPassApproved    AuditEvent = "pass_approved"
	EventPassRejected    AuditEvent = "pass_rejected"
	EventRenewalApplied  AuditEvent = "renewal_applied"
	EventRenewalApproved AuditEvent = "renewal_approved"
	EventRenewalRejected AuditEvent = "renewal_rejected"
	EventOrderCreated    AuditEvent = "order_created"
	EventPaymentVerified AuditEvent = "payment_verified"
	EventPassExpired     AuditEvent = "pass_expired"
)

func (e AuditEvent) String() string {
	return string(e)
}

// OutboxEntry is a persisted event awaiting publication.
type OutboxEntry struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}
