package store

import (
	"context"
	"sort"
	"sync"

	"transitpass/internal/pass/models"
	id "transitpass/pkg/domain"
	dErrors "transitpass/pkg/domain-errors"
	"transitpass/pkg/platform/sentinel"
)

type memTxKey struct{}

// InMemoryStore keeps passes and renewals in maps. RunInTx serializes
// transactions on one mutex and restores a snapshot when fn fails, so the
// ...ForUpdate readers behave like row locks inside a transaction.
type InMemoryStore struct {
	txMu sync.Mutex

	mu            sync.RWMutex
	passes        map[id.PassID]*models.Pass
	renewals      map[id.RenewalID]*models.Renewal
	nextPassID    id.PassID
	nextRenewalID id.RenewalID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		passes:   make(map[id.PassID]*models.Pass),
		renewals: make(map[id.RenewalID]*models.Renewal),
	}
}

type memSnapshot struct {
	passes        map[id.PassID]models.Pass
	renewals      map[id.RenewalID]models.Renewal
	nextPassID    id.PassID
	nextRenewalID id.RenewalID
}

// RunInTx runs fn atomically with respect to other transactions. Nested calls join the outer one.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *InMemoryStore) snapshot() memSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := memSnapshot{
		passes:        make(map[id.PassID]models.Pass, len(s.passes)),
		renewals:      make(map[id.RenewalID]models.Renewal, len(s.renewals)),
		nextPassID:    s.nextPassID,
		nextRenewalID: s.nextRenewalID,
	}
	for k, v := range s.passes {
		snap.passes[k] = *v
	}
	for k, v := range s.renewals {
		snap.renewals[k] = *v
	}
	return snap
}

func (s *InMemoryStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passes = make(map[id.PassID]*models.Pass, len(snap.passes))
	for k, v := range snap.passes {
		p := v
		s.passes[k] = &p
	}
	s.renewals = make(map[id.RenewalID]*models.Renewal, len(snap.renewals))
	for k, v := range snap.renewals {
		r := v
		s.renewals[k] = &r
	}
	s.nextPassID = snap.nextPassID
	s.nextRenewalID = snap.nextRenewalID
}

// LockUser is a no-op: RunInTx already serializes writers.
func (s *InMemoryStore) LockUser(_ context.Context, _ id.UserID) error {
	return nil
}

func (s *InMemoryStore) CreatePass(_ context.Context, p *models.Pass) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOrderIDLocked(p.OrderID, p.ID, 0); err != nil {
		return err
	}
	s.nextPassID++
	p.ID = s.nextPassID
	cp := *p
	s.passes[p.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindPassByID(_ context.Context, passID id.PassID) (*models.Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.passes[passID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemoryStore) FindPassByIDForUpdate(ctx context.Context, passID id.PassID) (*models.Pass, error) {
	return s.FindPassByID(ctx, passID)
}

func (s *InMemoryStore) FindPassByOrderIDForUpdate(_ context.Context, orderID string) (*models.Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.passes {
		if orderID != "" && p.OrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) UpdatePass(_ context.Context, p *models.Pass) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.passes[p.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if err := s.checkOrderIDLocked(p.OrderID, p.ID, 0); err != nil {
		return err
	}
	cp := *p
	s.passes[p.ID] = &cp
	return nil
}

func (s *InMemoryStore) ListPassesByUser(_ context.Context, userID id.UserID) ([]*models.Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Pass
	for _, p := range s.passes {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *InMemoryStore) ListPassesByStatus(_ context.Context, status models.PassStatus) ([]*models.Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Pass
	for _, p := range s.passes {
		if p.Status == status {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) CreateRenewal(_ context.Context, r *models.Renewal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.passes[r.PassID]; !ok {
		return sentinel.ErrNotFound
	}
	if r.Status.IsOpen() {
		for _, existing := range s.renewals {
			if existing.PassID == r.PassID && existing.Status.IsOpen() {
				return sentinel.ErrAlreadyUsed
			}
		}
	}
	s.nextRenewalID++
	r.ID = s.nextRenewalID
	cp := *r
	s.renewals[r.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindRenewalByID(_ context.Context, renewalID id.RenewalID) (*models.Renewal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.renewals[renewalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *InMemoryStore) FindRenewalByIDForUpdate(ctx context.Context, renewalID id.RenewalID) (*models.Renewal, error) {
	return s.FindRenewalByID(ctx, renewalID)
}

func (s *InMemoryStore) FindRenewalByOrderIDForUpdate(ctx context.Context, orderID string) (*models.Renewal, error) {
	return s.FindRenewalByOrderID(ctx, orderID)
}

func (s *InMemoryStore) FindRenewalByOrderID(_ context.Context, orderID string) (*models.Renewal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.renewals {
		if orderID != "" && r.OrderID == orderID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) UpdateRenewal(_ context.Context, r *models.Renewal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.renewals[r.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if err := s.checkOrderIDLocked(r.OrderID, 0, r.ID); err != nil {
		return err
	}
	cp := *r
	s.renewals[r.ID] = &cp
	return nil
}

func (s *InMemoryStore) ListRenewalsByUser(_ context.Context, userID id.UserID) ([]*models.Renewal, error) {
	return s.filterRenewals(func(r *models.Renewal) bool { return r.UserID == userID }, true), nil
}

func (s *InMemoryStore) ListRenewalsByPass(_ context.Context, passID id.PassID) ([]*models.Renewal, error) {
	return s.filterRenewals(func(r *models.Renewal) bool { return r.PassID == passID }, true), nil
}

func (s *InMemoryStore) ListRenewalsByStatus(_ context.Context, status models.RenewalStatus) ([]*models.Renewal, error) {
	return s.filterRenewals(func(r *models.Renewal) bool { return r.Status == status }, false), nil
}

func (s *InMemoryStore) filterRenewals(keep func(*models.Renewal) bool, newestFirst bool) []*models.Renewal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Renewal
	for _, r := range s.renewals {
		if keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// checkOrderIDLocked mirrors the unique order_id columns. Order ids are unique
// across both tables so verification can never match two records.
func (s *InMemoryStore) checkOrderIDLocked(orderID string, passID id.PassID, renewalID id.RenewalID) error {
	if orderID == "" {
		return nil
	}
	for _, p := range s.passes {
		if p.OrderID == orderID && p.ID != passID {
			return sentinel.ErrAlreadyUsed
		}
	}
	for _, r := range s.renewals {
		if r.OrderID == orderID && r.ID != renewalID {
			return sentinel.ErrAlreadyUsed
		}
	}
	return nil
}
