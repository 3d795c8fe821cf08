package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/guard"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/models"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/utils"
)

// memRepo keeps rows in memory and runs the guard against them the way the
// Postgres repository does inside its transaction.
type memRepo struct {
	mu   sync.Mutex
	now  time.Time
	rows []*models.VerificationRequest

	cleanupErr      error
	cleanupRetained time.Duration
}

func newMemRepo(now time.Time) *memRepo {
	return &memRepo{now: now}
}

func (m *memRepo) advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func (m *memRepo) snapshotLocked(userID string, rules guard.Rules) guard.Snapshot {
	s := guard.Snapshot{Now: m.now}
	for _, r := range m.rows {
		at := r.CreatedAt
		if r.UserID == userID && at.After(m.now.Add(-rules.UserWindow)) {
			s.UserCount++
			if s.UserOldest == nil || at.Before(*s.UserOldest) {
				s.UserOldest = &at
			}
			if s.UserLatest == nil || at.After(*s.UserLatest) {
				s.UserLatest = &at
			}
		}
		if at.After(m.now.Add(-rules.GlobalWindow)) {
			s.GlobalCount++
			if s.GlobalOldest == nil || at.Before(*s.GlobalOldest) {
				s.GlobalOldest = &at
			}
		}
	}
	return s
}

func (m *memRepo) CreateGuarded(_ context.Context, req *models.VerificationRequest, g *guard.Guard) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := g.Check(m.snapshotLocked(req.UserID, g.Rules()), req.Pattern); err != nil {
		return err
	}
	req.Status = models.VerificationPending
	req.CreatedAt = m.now
	cp := *req
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*models.VerificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) ListByUser(_ context.Context, userID string, limit int) ([]*models.VerificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.VerificationRequest
	for i := len(m.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if m.rows[i].UserID == userID {
			cp := *m.rows[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) Snapshot(_ context.Context, userID string, rules guard.Rules) (guard.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(userID, rules), nil
}

func (m *memRepo) Resolve(
	_ context.Context,
	id uuid.UUID,
	status models.VerificationStatus,
	message *string,
) (*models.VerificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID != id {
			continue
		}
		if r.Status.IsTerminal() {
			cp := *r
			return &cp, utils.ErrWrongStatus
		}
		r.Status = status
		r.ResponseMessage = message
		r.ResolvedAt = utils.Ptr(m.now)
		cp := *r
		return &cp, nil
	}
	return nil, utils.ErrNotFound
}

func (m *memRepo) CleanupTerminal(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupRetained = olderThan
	if m.cleanupErr != nil {
		return 0, m.cleanupErr
	}
	var kept []*models.VerificationRequest
	var deleted int64
	for _, r := range m.rows {
		if r.Status.IsTerminal() && r.CreatedAt.Before(m.now.Add(-olderThan)) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return deleted, nil
}
