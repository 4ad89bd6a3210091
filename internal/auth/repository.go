package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgx shared by pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the PostgreSQL credential store.
type Repository struct {
	db   DB
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// InTx runs fn against a transaction-scoped repository. Nested calls reuse
// the enclosing transaction.
func (r *Repository) InTx(ctx context.Context, fn func(Store) error) error {
	if r.pool == nil {
		return fn(r)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Repository{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const userColumns = `id, email, auth_provider, password_hash, google_id, email_verified, is_admin, user_type,
	verification_token, verification_expires, reset_token, reset_expires, last_login_at, created_at, updated_at`

func (r *Repository) FindUserByID(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return scanUserNoRows(row)
}

func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, NormalizeEmail(email))
	return scanUserNoRows(row)
}

func (r *Repository) FindUserByGoogleID(ctx context.Context, googleID string) (*User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE google_id=$1`, googleID)
	return scanUserNoRows(row)
}

func (r *Repository) CreateUser(ctx context.Context, u *User, p *Profile) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, email, auth_provider, password_hash, google_id, email_verified, is_admin, user_type, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, u.ID, u.Email, u.AuthProvider, u.PasswordHash, u.GoogleID, u.EmailVerified, u.IsAdmin, u.UserType, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		// Two registrations racing past the in-tx lookup both reach the
		// insert; the loser's unique violation is still a duplicate email.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "users_email_key" {
			return ErrEmailAlreadyRegistered
		}
		return fmt.Errorf("insert user: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO profiles (user_id, full_name, profile_status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
	`, p.UserID, p.FullName, p.ProfileStatus, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (r *Repository) SetEmailVerification(ctx context.Context, userID, tokenHash string, expires time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users SET verification_token=$1, verification_expires=$2, updated_at=NOW()
		WHERE id=$3
	`, tokenHash, expires, userID)
	return err
}

// ConsumeVerificationToken flips email_verified and clears the token
// columns in one statement so a token can never be replayed.
func (r *Repository) ConsumeVerificationToken(ctx context.Context, tokenHash string) (*User, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE users SET email_verified=TRUE, verification_token=NULL, verification_expires=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires > NOW()
		RETURNING `+userColumns, tokenHash)
	return scanUserNoRows(row)
}

func (r *Repository) SetPasswordReset(ctx context.Context, userID, tokenHash string, expires time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users SET reset_token=$1, reset_expires=$2, updated_at=NOW()
		WHERE id=$3
	`, tokenHash, expires, userID)
	return err
}

func (r *Repository) FindUserByResetToken(ctx context.Context, tokenHash string) (*User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE reset_token=$1 AND reset_expires > NOW()
	`, tokenHash)
	return scanUserNoRows(row)
}

func (r *Repository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users SET password_hash=$1, reset_token=NULL, reset_expires=NULL, updated_at=NOW()
		WHERE id=$2
	`, passwordHash, userID)
	return err
}

func (r *Repository) LinkGoogleAccount(ctx context.Context, userID, googleID string) (*User, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE users SET google_id=$1, auth_provider=$2, email_verified=TRUE, updated_at=NOW()
		WHERE id=$3
		RETURNING `+userColumns, googleID, ProviderGoogle, userID)
	return scanUser(row)
}

// SyncGoogleAccount carries a provider-side email change (and the provider
// flag for rows linked before the flag existed) onto an account already
// matched by google_id.
func (r *Repository) SyncGoogleAccount(ctx context.Context, userID, email string) (*User, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE users SET email=$1, auth_provider=$2, email_verified=TRUE, updated_at=NOW()
		WHERE id=$3
		RETURNING `+userColumns, NormalizeEmail(email), ProviderGoogle, userID)
	return scanUser(row)
}

func (r *Repository) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET last_login_at=$1 WHERE id=$2`, at, userID)
	return err
}

const profileColumns = `user_id, full_name, bio, university, program, graduation_year, company_name, website,
	skills, image_path, profile_status, approved_by, approved_at, created_at, updated_at`

func (r *Repository) FindProfileByUserID(ctx context.Context, userID string) (*Profile, error) {
	row := r.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id=$1`, userID)
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *Repository) EnsureProfile(ctx context.Context, userID, fullName string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO profiles (user_id, full_name, profile_status, created_at, updated_at)
		VALUES ($1,$2,$3,NOW(),NOW())
		ON CONFLICT (user_id) DO NOTHING
	`, userID, fullName, ProfileStatusPending)
	return err
}

// UpdateProfile applies the partial edit. Every edit resets the approval
// gate: profile_status goes back to pending_approval and the approver
// columns are cleared, even for previously approved profiles.
func (r *Repository) UpdateProfile(ctx context.Context, userID string, changes ProfileChanges) (*Profile, error) {
	sets := []string{
		"profile_status=$1",
		"approved_by=NULL",
		"approved_at=NULL",
		"updated_at=NOW()",
	}
	args := []any{ProfileStatusPending}
	idx := 2

	add := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s=$%d", col, idx))
		args = append(args, val)
		idx++
	}
	if changes.FullName != nil {
		add("full_name", *changes.FullName)
	}
	if changes.Bio != nil {
		add("bio", changes.Bio)
	}
	if changes.University != nil {
		add("university", changes.University)
	}
	if changes.Program != nil {
		add("program", changes.Program)
	}
	if changes.GraduationYear != nil {
		add("graduation_year", changes.GraduationYear)
	}
	if changes.CompanyName != nil {
		add("company_name", changes.CompanyName)
	}
	if changes.Website != nil {
		add("website", changes.Website)
	}
	if changes.Skills != nil {
		add("skills", changes.Skills)
	}
	if changes.ImagePath != nil {
		add("image_path", changes.ImagePath)
	}

	args = append(args, userID)
	query := fmt.Sprintf(`
		UPDATE profiles SET %s
		WHERE user_id=$%d
		RETURNING %s
	`, strings.Join(sets, ", "), idx, profileColumns)

	p, err := scanProfile(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *Repository) ListProfilesByStatus(ctx context.Context, status string, limit int) ([]Profile, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+profileColumns+` FROM profiles
		WHERE profile_status=$1
		ORDER BY updated_at ASC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

func (r *Repository) ApproveProfile(ctx context.Context, userID, adminID string) (*Profile, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE profiles SET profile_status=$1, approved_by=$2, approved_at=NOW(), updated_at=NOW()
		WHERE user_id=$3
		RETURNING `+profileColumns, ProfileStatusApproved, adminID, userID)
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *Repository) InsertRefreshToken(ctx context.Context, t *RefreshToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, user_agent, ip, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.UserAgent, t.IP, t.CreatedAt)
	return err
}

func (r *Repository) FindRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	var (
		t         RefreshToken
		revokedAt sql.NullTime
		userAgent sql.NullString
		ip        sql.NullString
	)
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked_at, user_agent, ip, created_at
		FROM refresh_tokens WHERE token_hash=$1
	`, tokenHash)
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &revokedAt, &userAgent, &ip, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.RevokedAt = nullTimePtr(revokedAt)
	t.UserAgent = userAgent.String
	t.IP = ip.String
	return &t, nil
}

// RevokeRefreshToken reports whether this call performed the revocation.
// Racing rotations serialize here: the second caller sees zero rows.
func (r *Repository) RevokeRefreshToken(ctx context.Context, tokenHash string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at=NOW()
		WHERE token_hash=$1 AND revoked_at IS NULL
	`, tokenHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at=NOW()
		WHERE user_id=$1 AND revoked_at IS NULL
	`, userID)
	return err
}

func scanUserNoRows(row pgx.Row) (*User, error) {
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u                  User
		passwordHash       sql.NullString
		googleID           sql.NullString
		verificationToken  sql.NullString
		verificationExpiry sql.NullTime
		resetToken         sql.NullString
		resetExpiry        sql.NullTime
		lastLoginAt        sql.NullTime
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.AuthProvider,
		&passwordHash,
		&googleID,
		&u.EmailVerified,
		&u.IsAdmin,
		&u.UserType,
		&verificationToken,
		&verificationExpiry,
		&resetToken,
		&resetExpiry,
		&lastLoginAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = nullStringPtr(passwordHash)
	u.GoogleID = nullStringPtr(googleID)
	u.VerificationToken = nullStringPtr(verificationToken)
	u.VerificationExpiry = nullTimePtr(verificationExpiry)
	u.ResetToken = nullStringPtr(resetToken)
	u.ResetExpiry = nullTimePtr(resetExpiry)
	u.LastLoginAt = nullTimePtr(lastLoginAt)
	return &u, nil
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var (
		p              Profile
		bio            sql.NullString
		university     sql.NullString
		program        sql.NullString
		graduationYear sql.NullInt32
		companyName    sql.NullString
		website        sql.NullString
		imagePath      sql.NullString
		approvedBy     sql.NullString
		approvedAt     sql.NullTime
	)
	err := row.Scan(
		&p.UserID,
		&p.FullName,
		&bio,
		&university,
		&program,
		&graduationYear,
		&companyName,
		&website,
		&p.Skills,
		&imagePath,
		&p.ProfileStatus,
		&approvedBy,
		&approvedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Bio = nullStringPtr(bio)
	p.University = nullStringPtr(university)
	p.Program = nullStringPtr(program)
	if graduationYear.Valid {
		year := int(graduationYear.Int32)
		p.GraduationYear = &year
	}
	p.CompanyName = nullStringPtr(companyName)
	p.Website = nullStringPtr(website)
	p.ImagePath = nullStringPtr(imagePath)
	p.ApprovedBy = nullStringPtr(approvedBy)
	p.ApprovedAt = nullTimePtr(approvedAt)
	return &p, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}
