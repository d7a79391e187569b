package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/account-service/internal/domain"
)

// Reset tokens live on the account row itself; these methods keep the token
// and its expiry written and cleared together.

func (r *accountRepository) SetPasswordResetToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	const query = `
        UPDATE accounts SET reset_password_token=$1, reset_password_token_expiry=$2, updated_at=NOW()
        WHERE id=$3 AND is_deleted=FALSE`

	if !isUUID(id) {
		return pgx.ErrNoRows
	}
	cmd, err := r.pool.Exec(ctx, query, token, expiresAt, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *accountRepository) GetByResetToken(ctx context.Context, token string) (*domain.Account, error) {
	if token == "" {
		return nil, pgx.ErrNoRows
	}
	query := `SELECT ` + accountSelectFields + `
        FROM accounts WHERE reset_password_token=$1 AND is_deleted=FALSE`
	return scanAccount(r.pool.QueryRow(ctx, query, token))
}

func (r *accountRepository) ClearPasswordResetToken(ctx context.Context, id string) error {
	const query = `
        UPDATE accounts SET reset_password_token='', reset_password_token_expiry=NULL, updated_at=NOW()
        WHERE id=$1`

	if !isUUID(id) {
		return pgx.ErrNoRows
	}
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// SetPassword stores a new hash and drops any outstanding reset token.
func (r *accountRepository) SetPassword(ctx context.Context, id, hash string) error {
	const query = `
        UPDATE accounts
        SET password_hash=$1, reset_password_token='', reset_password_token_expiry=NULL, updated_at=NOW()
        WHERE id=$2 AND is_deleted=FALSE`

	if !isUUID(id) {
		return pgx.ErrNoRows
	}
	cmd, err := r.pool.Exec(ctx, query, hash, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ResetPassword consumes a live reset token and stores hash in one statement,
// so a token can be redeemed at most once.
func (r *accountRepository) ResetPassword(ctx context.Context, token, hash string, now time.Time) (*domain.Account, error) {
	query := `
        UPDATE accounts
        SET password_hash=$1, reset_password_token='', reset_password_token_expiry=NULL, updated_at=NOW()
        WHERE reset_password_token=$2 AND reset_password_token_expiry > $3 AND is_deleted=FALSE
        RETURNING ` + accountSelectFields

	if token == "" {
		return nil, pgx.ErrNoRows
	}
	return scanAccount(r.pool.QueryRow(ctx, query, hash, token, now))
}

func (r *accountRepository) ClearExpiredResetTokens(ctx context.Context, before time.Time) (int64, error) {
	const query = `
        UPDATE accounts SET reset_password_token='', reset_password_token_expiry=NULL, updated_at=NOW()
        WHERE reset_password_token <> '' AND reset_password_token_expiry <= $1`
	cmd, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
