package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/constants"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/guard"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/models"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/utils"
)

// raiseExceptionCode is the SQLSTATE used by the verify_requests triggers.
const raiseExceptionCode = "P0001"

type VerificationRequestRepository interface {
	// CreateGuarded inserts req if the guard admits it. On success req.Status
	// and req.CreatedAt are filled from the stored row. Rejections are
	// returned as *guard.Violation.
	CreateGuarded(ctx context.Context, req *models.VerificationRequest, g *guard.Guard) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.VerificationRequest, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.VerificationRequest, error)
	// Snapshot reads the guard's view of history for userID without locking.
	Snapshot(ctx context.Context, userID string, rules guard.Rules) (guard.Snapshot, error)
	// Resolve moves a pending request to approved or denied.
	Resolve(ctx context.Context, id uuid.UUID, status models.VerificationStatus, message *string) (*models.VerificationRequest, error)
	// CleanupTerminal deletes approved/denied rows older than olderThan and
	// returns how many were removed. Pending rows are never touched.
	CleanupTerminal(ctx context.Context, olderThan time.Duration) (int64, error)
}

type verificationRequestRepo struct {
	db DB
}

func NewVerificationRequestRepository(db DB) VerificationRequestRepository {
	return &verificationRequestRepo{db: db}
}

func baseSelectVerificationRequest() string {
	return `
        SELECT id, user_id, pattern, chain, status, response_message, created_at, resolved_at
        FROM verify_requests
    `
}

// snapshotQuery evaluates both windows against a single clock reading.
const snapshotQuery = `
    WITH clock AS (SELECT clock_timestamp() AS now)
    SELECT clock.now,
           u.cnt, u.oldest, u.latest,
           g.cnt, g.oldest
    FROM clock
    CROSS JOIN LATERAL (
        SELECT COUNT(*) AS cnt, MIN(created_at) AS oldest, MAX(created_at) AS latest
        FROM verify_requests
        WHERE user_id = $1
          AND created_at > clock.now - $2::interval
    ) u
    CROSS JOIN LATERAL (
        SELECT COUNT(*) AS cnt, MIN(created_at) AS oldest
        FROM verify_requests
        WHERE created_at > clock.now - $3::interval
    ) g
`

func (r *verificationRequestRepo) CreateGuarded(
	ctx context.Context,
	req *models.VerificationRequest,
	g *guard.Guard,
) (err error) {
	// Read committed: every statement after the locks sees rows committed
	// by whoever held them before us.
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	// Fixed order (user, then global) so two inserts can never deadlock.
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`,
		constants.UserLockNamespace, req.UserID); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, 0)`,
		constants.GlobalLockNamespace); err != nil {
		return err
	}

	snap, err := scanSnapshot(tx.QueryRow(ctx, snapshotQuery, req.UserID, g.Rules().UserWindow, g.Rules().GlobalWindow))
	if err != nil {
		return err
	}

	if err = g.Check(snap, req.Pattern); err != nil {
		return err
	}

	var status string
	err = tx.QueryRow(ctx, `
        INSERT INTO verify_requests (id, user_id, pattern, chain)
        VALUES ($1, $2, $3, $4)
        RETURNING status, created_at
    `, req.ID, req.UserID, req.Pattern, req.Chain).Scan(&status, &req.CreatedAt)
	if err != nil {
		return translatePgError(err)
	}
	req.Status = models.VerificationStatus(status)
	return nil
}

func (r *verificationRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.VerificationRequest, error) {
	row := r.db.QueryRow(ctx, baseSelectVerificationRequest()+" WHERE id=$1", id)
	return scanVerificationRequest(row)
}

func (r *verificationRequestRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*models.VerificationRequest, error) {
	rows, err := r.db.Query(ctx,
		baseSelectVerificationRequest()+" WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2",
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.VerificationRequest
	for rows.Next() {
		rec, err := scanVerificationRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *verificationRequestRepo) Snapshot(ctx context.Context, userID string, rules guard.Rules) (guard.Snapshot, error) {
	return scanSnapshot(r.db.QueryRow(ctx, snapshotQuery, userID, rules.UserWindow, rules.GlobalWindow))
}

func (r *verificationRequestRepo) Resolve(
	ctx context.Context,
	id uuid.UUID,
	status models.VerificationStatus,
	message *string,
) (*models.VerificationRequest, error) {
	if !status.IsTerminal() {
		return nil, utils.ErrWrongStatus
	}

	row := r.db.QueryRow(ctx, `
        UPDATE verify_requests
        SET status=$2,
            response_message=$3,
            resolved_at=NOW()
        WHERE id=$1 AND status='pending'
        RETURNING id, user_id, pattern, chain, status, response_message, created_at, resolved_at
    `, id, string(status), message)
	rec, err := scanVerificationRequest(row)
	if err != nil {
		return nil, translatePgError(err)
	}
	if rec != nil {
		return rec, nil
	}

	// Nothing updated: either missing or already resolved.
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, utils.ErrNotFound
	}
	return existing, utils.ErrWrongStatus
}

func (r *verificationRequestRepo) CleanupTerminal(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.db.Exec(ctx, `
        DELETE FROM verify_requests
        WHERE created_at < NOW() - $1::interval
          AND status IN ('approved', 'denied')
    `, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanVerificationRequest(row pgx.Row) (*models.VerificationRequest, error) {
	var rec models.VerificationRequest
	var status string
	var resolvedAt pgtype.Timestamptz
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Pattern,
		&rec.Chain,
		&status,
		&rec.ResponseMessage,
		&rec.CreatedAt,
		&resolvedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	rec.Status = models.VerificationStatus(status)
	rec.ResolvedAt = timestamptzPtr(resolvedAt)
	return &rec, nil
}

func scanSnapshot(row pgx.Row) (guard.Snapshot, error) {
	var s guard.Snapshot
	var userOldest, userLatest, globalOldest pgtype.Timestamptz
	err := row.Scan(
		&s.Now,
		&s.UserCount, &userOldest, &userLatest,
		&s.GlobalCount, &globalOldest,
	)
	if err != nil {
		return s, err
	}
	s.UserOldest = timestamptzPtr(userOldest)
	s.UserLatest = timestamptzPtr(userLatest)
	s.GlobalOldest = timestamptzPtr(globalOldest)
	return s, nil
}

// timestamptzPtr returns nil for SQL NULL (no rows in a window).
func timestamptzPtr(ts pgtype.Timestamptz) *time.Time {
	if ts.Status != pgtype.Present {
		return nil
	}
	t := ts.Time
	return &t
}

// translatePgError maps trigger exceptions onto the errors the service
// layer understands. Anything else is returned unchanged.
func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != raiseExceptionCode {
		return err
	}
	if v := guard.FromCode(pgErr.Hint, pgErr.Message); v != nil {
		return v
	}
	if pgErr.Hint == "WRONG_STATUS" {
		return utils.ErrWrongStatus
	}
	return err
}
