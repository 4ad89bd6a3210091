package auth

import (
	"context"
	"time"
)

// Store is the persistence contract the auth service runs against. Lookup
// methods return (nil, nil) when nothing matches. InTx runs fn against a
// transaction-scoped view of the same store; registration, the Google
// merge, and refresh rotation each execute inside one transaction.
type Store interface {
	InTx(ctx context.Context, fn func(Store) error) error

	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByGoogleID(ctx context.Context, googleID string) (*User, error)
	CreateUser(ctx context.Context, u *User, p *Profile) error
	SetEmailVerification(ctx context.Context, userID, tokenHash string, expires time.Time) error
	ConsumeVerificationToken(ctx context.Context, tokenHash string) (*User, error)
	SetPasswordReset(ctx context.Context, userID, tokenHash string, expires time.Time) error
	FindUserByResetToken(ctx context.Context, tokenHash string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	LinkGoogleAccount(ctx context.Context, userID, googleID string) (*User, error)
	SyncGoogleAccount(ctx context.Context, userID, email string) (*User, error)
	RecordLogin(ctx context.Context, userID string, at time.Time) error

	FindProfileByUserID(ctx context.Context, userID string) (*Profile, error)
	EnsureProfile(ctx context.Context, userID, fullName string) error
	UpdateProfile(ctx context.Context, userID string, changes ProfileChanges) (*Profile, error)
	ListProfilesByStatus(ctx context.Context, status string, limit int) ([]Profile, error)
	ApproveProfile(ctx context.Context, userID, adminID string) (*Profile, error)

	InsertRefreshToken(ctx context.Context, t *RefreshToken) error
	FindRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}

// ProfileChanges is a partial profile update; nil fields are left alone.
// Any edit resets the approval state, so the store always flips the status
// back to pending_approval and clears the approver columns.
type ProfileChanges struct {
	FullName       *string
	Bio            *string
	University     *string
	Program        *string
	GraduationYear *int
	CompanyName    *string
	Website        *string
	Skills         []string
	ImagePath      *string
}
