//go:build integration

package integration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/guard"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/models"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/utils"
)

func TestHourlyCap(t *testing.T) {
	resetTable(t)
	ctx := context.Background()
	user := newUserID()

	// Resolved rows still count toward the hour.
	seedRow(t, user, models.VerificationPending, 50*time.Minute)
	seedRow(t, user, models.VerificationApproved, 30*time.Minute)
	seedRow(t, user, models.VerificationDenied, 10*time.Minute)

	_, err := svc.Submit(ctx, user, validPattern, "")
	v := requireViolation(t, err, guard.CodeUserHourly)
	assert.InDelta(t, (10 * time.Minute).Seconds(), v.RetryAfter.Seconds(), 5)
	assert.Equal(t, 3, countRows(t, "user_id=$1", user))

	// Rows older than an hour drop out of the window.
	other := newUserID()
	seedRow(t, other, models.VerificationPending, 61*time.Minute)
	seedRow(t, other, models.VerificationPending, 40*time.Minute)
	seedRow(t, other, models.VerificationPending, 20*time.Minute)
	_, err = svc.Submit(ctx, other, validPattern, "")
	require.NoError(t, err)
}

func TestSpacing(t *testing.T) {
	resetTable(t)
	ctx := context.Background()
	user := newUserID()

	first, err := svc.Submit(ctx, user, validPattern, "")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationPending, first.Status)
	assert.WithinDuration(t, time.Now(), first.CreatedAt, time.Minute)

	_, err = svc.Submit(ctx, user, validPattern, "")
	v := requireViolation(t, err, guard.CodeUserSpacing)
	assert.InDelta(t, (5 * time.Minute).Seconds(), v.RetryAfter.Seconds(), 5)

	// Another user is unaffected.
	_, err = svc.Submit(ctx, newUserID(), validPattern, "")
	require.NoError(t, err)

	spaced := newUserID()
	seedRow(t, spaced, models.VerificationPending, 5*time.Minute+time.Second)
	_, err = svc.Submit(ctx, spaced, validPattern, "")
	require.NoError(t, err)
}

func TestPatternFormat(t *testing.T) {
	resetTable(t)
	ctx := context.Background()

	for _, p := range []string{"abc12...wxyz", "abc123..wxyz", "abc-23...wxyz", ""} {
		_, err := svc.Submit(ctx, newUserID(), p, "")
		requireViolation(t, err, guard.CodePatternFormat)
	}
	assert.Zero(t, countRows(t, "TRUE"))

	// No upper bound on either side of the separator.
	long := strings.Repeat("a", 130) + "...wxyz"
	_, err := svc.Submit(ctx, newUserID(), long, "")
	require.NoError(t, err)

	_, err = db.Exec(ctx,
		`INSERT INTO verify_requests (id, user_id, pattern) VALUES ($1, $2, $3)`,
		uuid.New(), newUserID(), "abc123..."+strings.Repeat("z", 300))
	require.NoError(t, err)
	assert.Equal(t, 2, countRows(t, "TRUE"))
}

func TestGlobalThrottle(t *testing.T) {
	resetTable(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		seedRow(t, fmt.Sprintf("global-%03d", i), models.VerificationPending, 10*time.Second)
	}

	_, err := svc.Submit(ctx, newUserID(), validPattern, "")
	v := requireViolation(t, err, guard.CodeGlobal)
	assert.InDelta(t, (50 * time.Second).Seconds(), v.RetryAfter.Seconds(), 5)

	// A malformed pattern is reported as such, not as throttling.
	_, err = svc.Submit(ctx, newUserID(), "nope", "")
	requireViolation(t, err, guard.CodePatternFormat)

	assert.Equal(t, 100, countRows(t, "TRUE"))
}

// Direct inserts that skip the repository still hit the trigger.
func TestTriggerBackstop(t *testing.T) {
	resetTable(t)
	ctx := context.Background()
	user := newUserID()

	insert := func(pattern string) error {
		_, err := db.Exec(ctx,
			`INSERT INTO verify_requests (id, user_id, pattern) VALUES ($1, $2, $3)`,
			uuid.New(), user, pattern)
		return err
	}

	err := insert("bad")
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "P0001", pgErr.Code)
	assert.Equal(t, string(guard.CodePatternFormat), pgErr.Hint)

	require.NoError(t, insert(validPattern))

	err = insert(validPattern)
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, string(guard.CodeUserSpacing), pgErr.Hint)

	// Writers cannot forge history.
	var createdAt time.Time
	var status string
	err = db.QueryRow(ctx, `SELECT created_at, status FROM verify_requests WHERE user_id=$1`, user).Scan(&createdAt, &status)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), createdAt, time.Minute)
	assert.Equal(t, "pending", status)
}

func TestConcurrentSubmitsSameUser(t *testing.T) {
	resetTable(t)
	ctx := context.Background()
	user := newUserID()

	const workers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		codes    = map[guard.Code]int{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Submit(ctx, user, validPattern, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
				return
			}
			var v *guard.Violation
			if assert.ErrorAs(t, err, &v) {
				codes[v.Code]++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, workers-1, codes[guard.CodeUserSpacing])
	assert.Equal(t, 1, countRows(t, "user_id=$1", user))
}

func TestConcurrentSubmitsGlobalCap(t *testing.T) {
	resetTable(t)
	ctx := context.Background()

	for i := 0; i < 95; i++ {
		seedRow(t, fmt.Sprintf("burst-%03d", i), models.VerificationPending, 5*time.Second)
	}

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = svc.Submit(ctx, fmt.Sprintf("racer-%03d", i), validPattern, "")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, countRows(t, "created_at > NOW() - INTERVAL '1 minute'"))
}

func TestResolveLifecycle(t *testing.T) {
	resetTable(t)
	ctx := context.Background()

	rec, err := svc.Submit(ctx, newUserID(), validPattern, "BSC")
	require.NoError(t, err)
	assert.Equal(t, "bsc", rec.Chain)

	approved, err := svc.Approve(ctx, rec.ID, "wallet matches")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationApproved, approved.Status)
	assert.Equal(t, "wallet matches", utils.Val(approved.ResponseMessage))
	require.NotNil(t, approved.ResolvedAt)

	again, err := svc.Deny(ctx, rec.ID, "")
	assert.ErrorIs(t, err, utils.ErrWrongStatus)
	require.NotNil(t, again)
	assert.Equal(t, models.VerificationApproved, again.Status)

	_, err = svc.Approve(ctx, uuid.New(), "")
	assert.ErrorIs(t, err, utils.ErrNotFound)

	// Only the approval fields may change.
	_, err = db.Exec(ctx, `UPDATE verify_requests SET pattern='zzzzzz...zzzz' WHERE id=$1`, rec.ID)
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "IMMUTABLE_ROW", pgErr.Hint)

	_, err = db.Exec(ctx, `UPDATE verify_requests SET status='pending' WHERE id=$1`, rec.ID)
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "WRONG_STATUS", pgErr.Hint)

	list, err := svc.ListForUser(ctx, rec.UserID, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)
}

func TestQuota(t *testing.T) {
	resetTable(t)
	ctx := context.Background()
	user := newUserID()

	q, err := svc.Quota(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 3, q.Remaining)

	seedRow(t, user, models.VerificationPending, 2*time.Minute)
	q, err = svc.Quota(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 2, q.Remaining)
	assert.WithinDuration(t, time.Now().Add(3*time.Minute), q.NextAllowedAt, 5*time.Second)
}
