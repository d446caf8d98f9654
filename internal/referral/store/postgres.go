package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"refhub/internal/referral/models"
	"refhub/pkg/platform/sentinel"
	txcontext "refhub/pkg/platform/tx"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint hits.
const pgUniqueViolation = "23505"

// Postgres persists all four relations in PostgreSQL. Reads and writes run on
// the transaction carried in ctx when present, so the signup orchestrator's
// claim, insert, and edge recording share one atomic unit.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const userColumns = `id, username, code, first_name, last_name, phone, messaging_id, referred_by_user_id, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Code, &u.FirstName, &u.LastName,
		&u.Phone, &u.MessagingID, &u.ReferredByID, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Postgres) Create(ctx context.Context, u *models.User) (*models.User, error) {
	query := `
		INSERT INTO ref_users (username, code, first_name, last_name, phone, messaging_id, referred_by_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + userColumns
	created, err := scanUser(s.q(ctx).QueryRowContext(ctx, query,
		u.Username, u.Code, u.FirstName, u.LastName, u.Phone, u.MessagingID, u.ReferredByID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if strings.Contains(pgErr.ConstraintName, "code") {
				return nil, ErrCodeTaken
			}
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (s *Postgres) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return s.findUser(ctx, `SELECT `+userColumns+` FROM ref_users WHERE id = $1`, id)
}

func (s *Postgres) FindByCode(ctx context.Context, refCode string) (*models.User, error) {
	return s.findUser(ctx, `SELECT `+userColumns+` FROM ref_users WHERE code = $1`, refCode)
}

func (s *Postgres) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(ctx, `SELECT `+userColumns+` FROM ref_users WHERE username = $1`, username)
}

func (s *Postgres) findUser(ctx context.Context, query string, arg any) (*models.User, error) {
	u, err := scanUser(s.q(ctx).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *Postgres) UpdateProfile(ctx context.Context, id int64, fields models.ProfileFields) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE ref_users
		SET first_name = $2, last_name = $3, phone = $4, messaging_id = $5
		WHERE id = $1`,
		id, fields.FirstName, fields.LastName, fields.Phone, fields.MessagingID)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) Search(ctx context.Context, query string, limit int) ([]*models.User, error) {
	like := "%" + query + "%"
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM ref_users
		WHERE username ILIKE $1
		   OR code ILIKE $1
		   OR first_name ILIKE $1
		   OR last_name ILIKE $1
		   OR phone ILIKE $1
		   OR messaging_id ILIKE $1
		ORDER BY id DESC
		LIMIT $2`, like, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("search users: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return users, nil
}

func (s *Postgres) Record(ctx context.Context, referrerID, referredID int64, at time.Time) (bool, error) {
	res, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO referrals (referrer_user_id, referred_user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (referrer_user_id, referred_user_id) DO NOTHING`,
		referrerID, referredID, at)
	if err != nil {
		return false, fmt.Errorf("record referral: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record referral: %w", err)
	}
	return affected == 1, nil
}

func (s *Postgres) ListReferred(ctx context.Context, referrerID int64) ([]*models.User, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT u.id, u.username, u.code, u.first_name, u.last_name, u.phone, u.messaging_id, u.referred_by_user_id, u.created_at
		FROM referrals r
		JOIN ref_users u ON u.id = r.referred_user_id
		WHERE r.referrer_user_id = $1
		ORDER BY r.id DESC`, referrerID)
	if err != nil {
		return nil, fmt.Errorf("list referred: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list referred: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list referred: %w", err)
	}
	return users, nil
}

// ClaimOldest selects the oldest unassigned account under FOR UPDATE SKIP
// LOCKED: concurrent signups racing for the same row never block each other,
// and exactly one sees any given account. The row lock is held until the
// surrounding transaction commits or rolls back.
func (s *Postgres) ClaimOldest(ctx context.Context, currency string) (*models.ReservedAccount, error) {
	q := s.q(ctx)
	if currency != "" {
		acct, err := claimOne(ctx, q, `
			SELECT id, username, currency, notes FROM reserved_accounts
			WHERE NOT is_assigned AND currency = $1
			ORDER BY id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED`, currency)
		if err == nil {
			return acct, nil
		}
		if !errors.Is(err, sentinel.ErrExhausted) {
			return nil, err
		}
		// No account in the preferred currency; fall through to any.
	}
	return claimOne(ctx, q, `
		SELECT id, username, currency, notes FROM reserved_accounts
		WHERE NOT is_assigned
		ORDER BY id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`)
}

func claimOne(ctx context.Context, q querier, query string, args ...any) (*models.ReservedAccount, error) {
	var acct models.ReservedAccount
	err := q.QueryRowContext(ctx, query, args...).
		Scan(&acct.ID, &acct.Username, &acct.Currency, &acct.Notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrExhausted
		}
		return nil, fmt.Errorf("claim reserved account: %w", err)
	}
	return &acct, nil
}

// MarkAssigned flips the claimed account to assigned. The NOT is_assigned
// guard is a backstop; under ClaimOldest's row lock it always matches.
func (s *Postgres) MarkAssigned(ctx context.Context, username string, userID int64, at time.Time) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE reserved_accounts
		SET is_assigned = TRUE, assigned_user_id = $2, assigned_at = $3
		WHERE username = $1 AND NOT is_assigned`,
		username, userID, at)
	if err != nil {
		return fmt.Errorf("mark assigned: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark assigned: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("mark assigned %q: %w", username, sentinel.ErrAlreadyUsed)
	}
	return nil
}

func (s *Postgres) FindActive(ctx context.Context, kind models.BlacklistKind, value string) (*models.BlacklistEntry, error) {
	var e models.BlacklistEntry
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, kind, value, reason, active, created_at
		FROM blacklist
		WHERE kind = $1 AND value = $2 AND active
		LIMIT 1`, kind, value).
		Scan(&e.ID, &e.Kind, &e.Value, &e.Reason, &e.Active, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find blacklist entry: %w", err)
	}
	return &e, nil
}

// AddReserved provisions a pool entry. Used by operational tooling and tests;
// signup flows never create pool rows.
func (s *Postgres) AddReserved(ctx context.Context, username, currency, notes string) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO reserved_accounts (username, currency, notes)
		VALUES ($1, $2, $3)`, username, currency, notes)
	if err != nil {
		return fmt.Errorf("add reserved account: %w", err)
	}
	return nil
}

// AddBlacklist provisions a blacklist entry with an already-normalized value.
func (s *Postgres) AddBlacklist(ctx context.Context, kind models.BlacklistKind, value, reason string) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO blacklist (kind, value, reason) VALUES ($1, $2, $3)`, kind, value, reason)
	if err != nil {
		return fmt.Errorf("add blacklist entry: %w", err)
	}
	return nil
}
