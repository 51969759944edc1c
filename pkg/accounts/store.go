// Package accounts maps verified provider identities onto local account
// rows.
//
// The [Resolver] is the entry point. It turns verified token claims into
// an account, provisioning one on first login, and applies provider
// lifecycle webhooks. Rows live behind the [Store] interface; the
// production implementation is [PostgresStore].
//
// Account creation does not lock. Two first logins for the same subject
// may both miss the lookup and both insert; the unique index on the
// subject id rejects the loser, which re-reads the winner's row. This
// holds across processes, not just goroutines.
package accounts

import (
	"context"
	"time"

	"github.com/StricklySoft/stricklysoft-identity/pkg/clients/postgres"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

// Store persists accounts. Every read ignores soft-deleted rows.
//
// Lookups of a missing or deleted account return [sserr.CodeNotFoundAccount].
// Insert returns [sserr.CodeConflictAlreadyExists] when the subject id or
// email is already taken.
type Store interface {
	GetBySubjectID(ctx context.Context, subjectID string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	Insert(ctx context.Context, a models.NewAccount) (*models.Account, error)
	UpdateFromProvider(ctx context.Context, subjectID string, u models.ProviderUpdate) (*models.Account, error)
	UpdateProfile(ctx context.Context, id int64, u models.ProfileUpdate) (*models.Account, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
	SoftDelete(ctx context.Context, subjectID string) (bool, error)
}

const accountColumns = `account_id, clerk_user_id, email, nickname, profile_image_url,
	last_login_at, created_at, updated_at, is_deleted`

const (
	sqlGetBySubjectID = `SELECT ` + accountColumns + ` FROM accounts
	WHERE clerk_user_id = $1 AND is_deleted = false`

	sqlGetByEmail = `SELECT ` + accountColumns + ` FROM accounts
	WHERE lower(email) = lower($1) AND is_deleted = false`

	sqlGetByID = `SELECT ` + accountColumns + ` FROM accounts
	WHERE account_id = $1 AND is_deleted = false`

	sqlInsert = `INSERT INTO accounts (clerk_user_id, email, nickname, profile_image_url)
	VALUES ($1, $2, $3, $4)
	RETURNING ` + accountColumns

	sqlUpdateFromProvider = `UPDATE accounts SET
	email = COALESCE($2, email),
	nickname = COALESCE($3, nickname),
	profile_image_url = COALESCE($4, profile_image_url),
	updated_at = now()
	WHERE clerk_user_id = $1 AND is_deleted = false
	RETURNING ` + accountColumns

	sqlUpdateProfile = `UPDATE accounts SET
	nickname = COALESCE($2, nickname),
	profile_image_url = NULLIF(COALESCE($3, profile_image_url), ''),
	updated_at = now()
	WHERE account_id = $1 AND is_deleted = false
	RETURNING ` + accountColumns

	sqlTouchLastLogin = `UPDATE accounts SET last_login_at = $2
	WHERE account_id = $1 AND is_deleted = false`

	sqlSoftDelete = `UPDATE accounts SET is_deleted = true, updated_at = now()
	WHERE clerk_user_id = $1 AND is_deleted = false`
)

// PostgresStore is the [Store] backed by the accounts table.
type PostgresStore struct {
	db *postgres.Client
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store over db.
func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID,
		&a.SubjectID,
		&a.Email,
		&a.Nickname,
		&a.ProfileImageURL,
		&a.LastLoginAt,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.IsDeleted,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) queryOne(ctx context.Context, op, sql string, args ...any) (*models.Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, sserr.New(sserr.CodeNotFoundAccount, "account not found")
		}
		return nil, postgres.WrapError(err, "accounts: "+op+" failed")
	}
	return a, nil
}

// GetBySubjectID returns the live account for a provider subject id.
func (s *PostgresStore) GetBySubjectID(ctx context.Context, subjectID string) (*models.Account, error) {
	return s.queryOne(ctx, "get by subject id", sqlGetBySubjectID, subjectID)
}

// GetByEmail returns the live account with the given email, compared
// case-insensitively.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.queryOne(ctx, "get by email", sqlGetByEmail, email)
}

// GetByID returns the live account with the given id.
func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	return s.queryOne(ctx, "get by id", sqlGetByID, id)
}

// Insert creates an account. A unique violation comes back as
// CONF_002 with the violated constraint in the "constraint" detail.
func (s *PostgresStore) Insert(ctx context.Context, a models.NewAccount) (*models.Account, error) {
	return s.queryOne(ctx, "insert", sqlInsert, a.SubjectID, a.Email, a.Nickname, a.ProfileImageURL)
}

// UpdateFromProvider overwrites the non-nil fields of u.
func (s *PostgresStore) UpdateFromProvider(ctx context.Context, subjectID string, u models.ProviderUpdate) (*models.Account, error) {
	return s.queryOne(ctx, "update from provider", sqlUpdateFromProvider, subjectID, u.Email, u.Nickname, u.ProfileImageURL)
}

// UpdateProfile applies a user edit.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id int64, u models.ProfileUpdate) (*models.Account, error) {
	return s.queryOne(ctx, "update profile", sqlUpdateProfile, id, u.Nickname, u.ProfileImageURL)
}

// TouchLastLogin sets last_login_at.
func (s *PostgresStore) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.db.Exec(ctx, sqlTouchLastLogin, id, at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return sserr.New(sserr.CodeNotFoundAccount, "account not found")
	}
	return nil
}

// SoftDelete flags the subject's live account as deleted and reports
// whether there was one.
func (s *PostgresStore) SoftDelete(ctx context.Context, subjectID string) (bool, error) {
	tag, err := s.db.Exec(ctx, sqlSoftDelete, subjectID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
