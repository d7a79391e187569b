package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/account-service/internal/domain"
)

var (
	// ErrEmailTaken is returned when the accounts email unique index rejects a write.
	ErrEmailTaken = errors.New("email already registered")
	// ErrSuperuserFlags is returned when a write would leave a superuser without staff or active.
	ErrSuperuserFlags = errors.New("superuser must be staff and active")
)

const (
	uniqueViolation     = "23505"
	checkViolation      = "23514"
	emailUniqueIndex    = "accounts_email_lower_key"
	superuserFlagsCheck = "accounts_superuser_flags_check"
	accountSelectFields = `id, email, password_hash, first_name, last_name, photo, date_of_birth, phone_number,
        is_superuser, is_staff, is_active, is_deleted, permissions,
        reset_password_token, reset_password_token_expiry, created_at, updated_at`
)

// AccountRepository defines persistence access for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	UpdateProfile(ctx context.Context, id string, changes ProfileChanges) (*domain.Account, error)
	UpdateFlags(ctx context.Context, id string, changes FlagChanges) (*domain.Account, error)
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	List(ctx context.Context, filter AccountFilter) ([]domain.Account, error)
	SoftDelete(ctx context.Context, id string) error
	SetPasswordResetToken(ctx context.Context, id, token string, expiresAt time.Time) error
	GetByResetToken(ctx context.Context, token string) (*domain.Account, error)
	ClearPasswordResetToken(ctx context.Context, id string) error
	SetPassword(ctx context.Context, id, hash string) error
	ResetPassword(ctx context.Context, token, hash string, now time.Time) (*domain.Account, error)
	ClearExpiredResetTokens(ctx context.Context, before time.Time) (int64, error)
}

// ProfileChanges lists the profile columns to overwrite; nil leaves a column as stored.
type ProfileChanges struct {
	FirstName   *string
	LastName    *string
	Photo       *string
	DateOfBirth *time.Time
	PhoneNumber *string
}

// FlagChanges lists the privilege columns to overwrite; nil leaves a column as stored.
type FlagChanges struct {
	IsStaff     *bool
	IsSuperuser *bool
	IsActive    *bool
	Permissions []string
}

// AccountFilter defines query params for account listing.
type AccountFilter struct {
	IsStaff        *bool
	IsActive       *bool
	IncludeDeleted bool
	Search         string
	Limit          int
	Offset         int
}

type accountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns a Postgres-backed implementation.
func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepository{pool: pool}
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	const query = `
        INSERT INTO accounts (email, password_hash, first_name, last_name, photo, date_of_birth, phone_number,
            is_superuser, is_staff, is_active, is_deleted, permissions)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		account.Email,
		account.PasswordHash,
		account.FirstName,
		account.LastName,
		account.Photo,
		account.DateOfBirth,
		account.PhoneNumber,
		account.IsSuperuser,
		account.IsStaff,
		account.IsActive,
		account.IsDeleted,
		permissionsOrEmpty(account.Permissions),
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	return translateError(err)
}

func (r *accountRepository) UpdateProfile(ctx context.Context, id string, changes ProfileChanges) (*domain.Account, error) {
	query := `
        UPDATE accounts
        SET first_name=COALESCE($1, first_name), last_name=COALESCE($2, last_name), photo=COALESCE($3, photo),
            date_of_birth=COALESCE($4, date_of_birth), phone_number=COALESCE($5, phone_number), updated_at=NOW()
        WHERE id=$6 AND is_deleted=FALSE
        RETURNING ` + accountSelectFields

	if !isUUID(id) {
		return nil, pgx.ErrNoRows
	}
	account, err := scanAccount(r.pool.QueryRow(ctx, query,
		changes.FirstName,
		changes.LastName,
		changes.Photo,
		changes.DateOfBirth,
		changes.PhoneNumber,
		id,
	))
	return account, translateError(err)
}

func (r *accountRepository) UpdateFlags(ctx context.Context, id string, changes FlagChanges) (*domain.Account, error) {
	query := `
        UPDATE accounts
        SET is_staff=COALESCE($1, is_staff), is_superuser=COALESCE($2, is_superuser),
            is_active=COALESCE($3, is_active), permissions=COALESCE($4, permissions), updated_at=NOW()
        WHERE id=$5 AND is_deleted=FALSE
        RETURNING ` + accountSelectFields

	if !isUUID(id) {
		return nil, pgx.ErrNoRows
	}
	account, err := scanAccount(r.pool.QueryRow(ctx, query,
		changes.IsStaff,
		changes.IsSuperuser,
		changes.IsActive,
		changes.Permissions,
		id,
	))
	return account, translateError(err)
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if !isUUID(id) {
		return nil, pgx.ErrNoRows
	}
	query := `SELECT ` + accountSelectFields + ` FROM accounts WHERE id=$1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountSelectFields + ` FROM accounts WHERE LOWER(email)=LOWER($1)`
	return scanAccount(r.pool.QueryRow(ctx, query, email))
}

func (r *accountRepository) List(ctx context.Context, filter AccountFilter) ([]domain.Account, error) {
	var (
		conditions []string
		args       []any
	)
	if !filter.IncludeDeleted {
		conditions = append(conditions, "is_deleted = FALSE")
	}
	if filter.IsStaff != nil {
		args = append(args, *filter.IsStaff)
		conditions = append(conditions, fmt.Sprintf("is_staff = $%d", len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(first_name || ' ' || last_name) LIKE $%d)", len(args), len(args)))
	}

	query := `SELECT ` + accountSelectFields + ` FROM accounts`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

func (r *accountRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `
        UPDATE accounts
        SET is_deleted=TRUE, reset_password_token='', reset_password_token_expiry=NULL, updated_at=NOW()
        WHERE id=$1`

	if !isUUID(id) {
		return pgx.ErrNoRows
	}
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var account domain.Account
	if err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.FirstName,
		&account.LastName,
		&account.Photo,
		&account.DateOfBirth,
		&account.PhoneNumber,
		&account.IsSuperuser,
		&account.IsStaff,
		&account.IsActive,
		&account.IsDeleted,
		&account.Permissions,
		&account.ResetPasswordToken,
		&account.ResetPasswordTokenExpiry,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &account, nil
}

// isUUID filters ids that would make Postgres fail the uuid cast; callers
// treat them as missing rows.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func permissionsOrEmpty(perms []string) []string {
	if perms == nil {
		return []string{}
	}
	return perms
}

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == uniqueViolation && pgErr.ConstraintName == emailUniqueIndex:
		return ErrEmailTaken
	case pgErr.Code == checkViolation && pgErr.ConstraintName == superuserFlagsCheck:
		return ErrSuperuserFlags
	}
	return err
}
