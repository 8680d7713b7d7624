package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"transitpass/internal/fare"
	"transitpass/internal/pass/models"
	id "transitpass/pkg/domain"
	"transitpass/pkg/platform/sentinel"
	txcontext "transitpass/pkg/platform/tx"
)

const pgUniqueViolation = "23505"

// PostgresStore persists passes and renewals. Mutating reads use SELECT ... FOR UPDATE
// and must run inside a transaction carried by the context.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFrom(ctx, s.db)
}

const passColumns = `id, user_id, applicant_name, route, distance_km, duration_months,
	valid_from, valid_to, fare, concession, id_proof_ref, status, is_active,
	order_id, payment_id, created_at, updated_at`

const renewalColumns = `id, bus_pass_id, user_id, old_expiry_date, new_expiry_date, duration_months,
	renewal_fare, route_changed, requested_route, requested_distance_km, status, is_active,
	order_id, payment_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPass(row rowScanner) (*models.Pass, error) {
	var (
		p                  models.Pass
		concession, status string
		orderID, paymentID sql.NullString
	)
	err := row.Scan(&p.ID, &p.UserID, &p.ApplicantName, &p.Route, &p.DistanceKm, &p.DurationMonths,
		&p.ValidFrom, &p.ValidTo, &p.Fare, &concession, &p.IDProofRef, &status, &p.IsActive,
		&orderID, &paymentID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	p.Concession = fare.Concession(concession)
	p.Status = models.PassStatus(status)
	p.OrderID = orderID.String
	p.PaymentID = paymentID.String
	return &p, nil
}

func scanRenewal(row rowScanner) (*models.Renewal, error) {
	var (
		r                  models.Renewal
		status             string
		orderID, paymentID sql.NullString
	)
	err := row.Scan(&r.ID, &r.PassID, &r.UserID, &r.OldExpiry, &r.NewExpiry, &r.DurationMonths,
		&r.RenewalFare, &r.RouteChanged, &r.RequestedRoute, &r.RequestedDistanceKm, &status, &r.IsActive,
		&orderID, &paymentID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	r.Status = models.RenewalStatus(status)
	r.OrderID = orderID.String
	r.PaymentID = paymentID.String
	return &r, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func translateWriteErr(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w", op, sentinel.ErrAlreadyUsed)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// LockUser serializes per-user check-then-insert sequences such as the duplicate-pass check.
func (s *PostgresStore) LockUser(ctx context.Context, userID id.UserID) error {
	var locked int64
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePass(ctx context.Context, p *models.Pass) error {
	query := `
		INSERT INTO passes (user_id, applicant_name, route, distance_km, duration_months,
			valid_from, valid_to, fare, concession, id_proof_ref, status, is_active,
			order_id, payment_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`
	err := s.execer(ctx).QueryRowContext(ctx, query,
		p.UserID, p.ApplicantName, p.Route, p.DistanceKm, p.DurationMonths,
		p.ValidFrom, p.ValidTo, p.Fare, string(p.Concession), p.IDProofRef, string(p.Status), p.IsActive,
		nullable(p.OrderID), nullable(p.PaymentID), p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return translateWriteErr(err, "insert pass")
	}
	return nil
}

func (s *PostgresStore) FindPassByID(ctx context.Context, passID id.PassID) (*models.Pass, error) {
	query := `SELECT ` + passColumns + ` FROM passes WHERE id = $1`
	return scanPass(s.execer(ctx).QueryRowContext(ctx, query, passID))
}

func (s *PostgresStore) FindPassByIDForUpdate(ctx context.Context, passID id.PassID) (*models.Pass, error) {
	query := `SELECT ` + passColumns + ` FROM passes WHERE id = $1 FOR UPDATE`
	return scanPass(s.execer(ctx).QueryRowContext(ctx, query, passID))
}

func (s *PostgresStore) FindPassByOrderIDForUpdate(ctx context.Context, orderID string) (*models.Pass, error) {
	query := `SELECT ` + passColumns + ` FROM passes WHERE order_id = $1 FOR UPDATE`
	return scanPass(s.execer(ctx).QueryRowContext(ctx, query, orderID))
}

func (s *PostgresStore) UpdatePass(ctx context.Context, p *models.Pass) error {
	query := `
		UPDATE passes SET
			route = $2, distance_km = $3, valid_from = $4, valid_to = $5,
			status = $6, is_active = $7, order_id = $8, payment_id = $9, updated_at = $10
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		p.ID, p.Route, p.DistanceKm, p.ValidFrom, p.ValidTo,
		string(p.Status), p.IsActive, nullable(p.OrderID), nullable(p.PaymentID), p.UpdatedAt,
	)
	if err != nil {
		return translateWriteErr(err, "update pass")
	}
	return requireOneRow(res)
}

func (s *PostgresStore) ListPassesByUser(ctx context.Context, userID id.UserID) ([]*models.Pass, error) {
	query := `SELECT ` + passColumns + ` FROM passes WHERE user_id = $1 ORDER BY id DESC`
	return s.queryPasses(ctx, query, userID)
}

func (s *PostgresStore) ListPassesByStatus(ctx context.Context, status models.PassStatus) ([]*models.Pass, error) {
	query := `SELECT ` + passColumns + ` FROM passes WHERE status = $1 ORDER BY id ASC`
	return s.queryPasses(ctx, query, string(status))
}

func (s *PostgresStore) queryPasses(ctx context.Context, query string, args ...any) ([]*models.Pass, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer rows.Close()

	var out []*models.Pass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passes: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateRenewal(ctx context.Context, r *models.Renewal) error {
	query := `
		INSERT INTO renewals (bus_pass_id, user_id, old_expiry_date, new_expiry_date, duration_months,
			renewal_fare, route_changed, requested_route, requested_distance_km, status, is_active,
			order_id, payment_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`
	err := s.execer(ctx).QueryRowContext(ctx, query,
		r.PassID, r.UserID, r.OldExpiry, r.NewExpiry, r.DurationMonths,
		r.RenewalFare, r.RouteChanged, r.RequestedRoute, r.RequestedDistanceKm, string(r.Status), r.IsActive,
		nullable(r.OrderID), nullable(r.PaymentID), r.CreatedAt, r.UpdatedAt,
	).Scan(&r.ID)
	if err != nil {
		return translateWriteErr(err, "insert renewal")
	}
	return nil
}

func (s *PostgresStore) FindRenewalByID(ctx context.Context, renewalID id.RenewalID) (*models.Renewal, error) {
	query := `SELECT ` + renewalColumns + ` FROM renewals WHERE id = $1`
	return scanRenewal(s.execer(ctx).QueryRowContext(ctx, query, renewalID))
}

func (s *PostgresStore) FindRenewalByIDForUpdate(ctx context.Context, renewalID id.RenewalID) (*models.Renewal, error) {
	query := `SELECT ` + renewalColumns + ` FROM renewals WHERE id = $1 FOR UPDATE`
	return scanRenewal(s.execer(ctx).QueryRowContext(ctx, query, renewalID))
}

// FindRenewalByOrderID is the unlocked lookup used to learn the pass id before
// taking locks in pass-then-renewal order.
func (s *PostgresStore) FindRenewalByOrderID(ctx context.Context, orderID string) (*models.Renewal, error) {
	query := `SELECT ` + renewalColumns + ` FROM renewals WHERE order_id = $1`
	return scanRenewal(s.execer(ctx).QueryRowContext(ctx, query, orderID))
}

func (s *PostgresStore) FindRenewalByOrderIDForUpdate(ctx context.Context, orderID string) (*models.Renewal, error) {
	query := `SELECT ` + renewalColumns + ` FROM renewals WHERE order_id = $1 FOR UPDATE`
	return scanRenewal(s.execer(ctx).QueryRowContext(ctx, query, orderID))
}

func (s *PostgresStore) UpdateRenewal(ctx context.Context, r *models.Renewal) error {
	query := `
		UPDATE renewals SET
			status = $2, is_active = $3, order_id = $4, payment_id = $5, updated_at = $6
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		r.ID, string(r.Status), r.IsActive, nullable(r.OrderID), nullable(r.PaymentID), r.UpdatedAt,
	)
	if err != nil {
		return translateWriteErr(err, "update renewal")
	}
	return requireOneRow(res)
}

func (s *PostgresStore) ListRenewalsByUser(ctx context.Context, userID id.UserID) ([]*models.Renewal, error) {
	query := `SELECT ` + renewalColumns + ` FROM renewals WHERE user_id = $1 ORDER BY id DESC`
	return s.queryRenewals(ctx, query, userID)
}

func (s *PostgresStore) ListRenewalsByPass(ctx context.Context, passID id.PassID) ([]*models.Renewal, error) {
	query := `SELECT ` + renewalColumns + ` FROM renewals WHERE bus_pass_id = $1 ORDER BY id DESC`
	return s.queryRenewals(ctx, query, passID)
}

func (s *PostgresStore) ListRenewalsByStatus(ctx context.Context, status models.RenewalStatus) ([]*models.Renewal, error) {
	query := `SELECT ` + renewalColumns + ` FROM renewals WHERE status = $1 ORDER BY id ASC`
	return s.queryRenewals(ctx, query, string(status))
}

func (s *PostgresStore) queryRenewals(ctx context.Context, query string, args ...any) ([]*models.Renewal, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query renewals: %w", err)
	}
	defer rows.Close()

	var out []*models.Renewal
	for rows.Next() {
		r, err := scanRenewal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan renewal: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate renewals: %w", err)
	}
	return out, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
