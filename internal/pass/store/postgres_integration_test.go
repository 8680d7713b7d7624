//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"transitpass/internal/pass/models"
	"transitpass/internal/pass/store"
	id "transitpass/pkg/domain"
	"transitpass/pkg/platform/sentinel"
	txcontext "transitpass/pkg/platform/tx"
	"transitpass/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	tx       *txcontext.Runner
	userID   id.UserID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.tx = txcontext.NewRunner(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "renewals", "passes", "users", "outbox"))
	var userID int64
	err := s.postgres.DB.QueryRowContext(ctx,
		`INSERT INTO users (name, email, password_hash) VALUES ('Asha Rao', 'asha@example.com', 'x') RETURNING id`,
	).Scan(&userID)
	s.Require().NoError(err)
	s.userID = id.UserID(userID)
}

func (s *PostgresStoreSuite) newPass(status models.PassStatus, active bool) *models.Pass {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	return &models.Pass{
		UserID: s.userID, ApplicantName: "Asha Rao", Route: "Central", DistanceKm: 8.5,
		DurationMonths: 1, ValidFrom: day, ValidTo: models.AddMonths(day, 1), Fare: 300,
		Concession: "GENERAL", IDProofRef: "doc", Status: status, IsActive: active,
		CreatedAt: now, UpdatedAt: now,
	}
}

func (s *PostgresStoreSuite) newRenewal(p *models.Pass) *models.Renewal {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	return &models.Renewal{
		PassID: p.ID, UserID: p.UserID, OldExpiry: p.ValidTo, NewExpiry: models.AddMonths(p.ValidTo, 1),
		DurationMonths: 1, RenewalFare: 300, RequestedRoute: p.Route, RequestedDistanceKm: p.DistanceKm,
		Status: models.RenewalStatusPending, CreatedAt: now, UpdatedAt: now,
	}
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	p := s.newPass(models.PassStatusPending, false)
	s.Require().NoError(s.store.CreatePass(ctx, p))
	s.NotZero(p.ID)

	found, err := s.store.FindPassByID(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p.ValidTo, found.ValidTo.UTC())
	s.Equal(8.5, found.DistanceKm)
	s.Empty(found.OrderID)

	_, err = s.store.FindPassByID(ctx, 9999)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestActiveRequiresPaid() {
	ctx := context.Background()
	p := s.newPass(models.PassStatusApproved, true)
	s.Error(s.store.CreatePass(ctx, p), "check constraint rejects active unpaid passes")
}

func (s *PostgresStoreSuite) TestOneOpenRenewalPerPass() {
	ctx := context.Background()
	p := s.newPass(models.PassStatusPaid, true)
	s.Require().NoError(s.store.CreatePass(ctx, p))
	first := s.newRenewal(p)
	s.Require().NoError(s.store.CreateRenewal(ctx, first))

	err := s.store.CreateRenewal(ctx, s.newRenewal(p))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	first.Status = models.RenewalStatusApproved
	s.Require().NoError(s.store.UpdateRenewal(ctx, first))
	err = s.store.CreateRenewal(ctx, s.newRenewal(p))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed, "an approved renewal still holds the slot")

	first.Status = models.RenewalStatusPaid
	first.IsActive = true
	s.Require().NoError(s.store.UpdateRenewal(ctx, first))
	s.NoError(s.store.CreateRenewal(ctx, s.newRenewal(p)))
}

func (s *PostgresStoreSuite) TestOrderIDUnique() {
	ctx := context.Background()
	a := s.newPass(models.PassStatusApproved, false)
	b := s.newPass(models.PassStatusApproved, false)
	s.Require().NoError(s.store.CreatePass(ctx, a))
	s.Require().NoError(s.store.CreatePass(ctx, b))

	a.OrderID = "order_1"
	s.Require().NoError(s.store.UpdatePass(ctx, a))
	b.OrderID = "order_1"
	s.ErrorIs(s.store.UpdatePass(ctx, b), sentinel.ErrAlreadyUsed)
}

func (s *PostgresStoreSuite) TestRollbackLeavesNoTrace() {
	ctx := context.Background()
	p := s.newPass(models.PassStatusPaid, true)
	s.Require().NoError(s.store.CreatePass(ctx, p))

	boom := errors.New("boom")
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		locked, err := s.store.FindPassByIDForUpdate(ctx, p.ID)
		s.Require().NoError(err)
		locked.IsActive = false
		s.Require().NoError(s.store.UpdatePass(ctx, locked))
		s.Require().NoError(s.store.CreateRenewal(ctx, s.newRenewal(locked)))
		return boom
	})
	s.ErrorIs(err, boom)

	stored, err := s.store.FindPassByID(ctx, p.ID)
	s.Require().NoError(err)
	s.True(stored.IsActive)
	renewals, err := s.store.ListRenewalsByPass(ctx, p.ID)
	s.Require().NoError(err)
	s.Empty(renewals)
}

// TestForUpdateSerializesWriters increments a counter column under row locks from
// many goroutines; every increment must survive.
func (s *PostgresStoreSuite) TestForUpdateSerializesWriters() {
	ctx := context.Background()
	p := s.newPass(models.PassStatusPaid, true)
	p.Fare = 1
	s.Require().NoError(s.store.CreatePass(ctx, p))

	const writers = 20
	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
				locked, err := s.store.FindPassByIDForUpdate(ctx, p.ID)
				if err != nil {
					return err
				}
				locked.Fare++
				return s.store.UpdatePass(ctx, locked)
			})
			if err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Zero(failures.Load())
	stored, err := s.store.FindPassByID(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(int64(1+writers), stored.Fare)
}

func (s *PostgresStoreSuite) TestLockUser() {
	ctx := context.Background()
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.store.LockUser(ctx, s.userID)
	})
	s.NoError(err)

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.store.LockUser(ctx, 424242)
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}
