package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	verificationTokenTTL = 24 * time.Hour
	resetTokenTTL        = 1 * time.Hour
	rawTokenBytes        = 32
)

// Service is the business-logic core of authentication. It holds no
// in-process session state; every instance is replaceable.
type Service struct {
	Store  Store
	Codec  *TokenCodec
	Hasher PasswordHasher
}

func NewService(store Store, codec *TokenCodec, hasher PasswordHasher) *Service {
	return &Service{Store: store, Codec: codec, Hasher: hasher}
}

// Session is a freshly issued access/refresh pair plus the owning user.
type Session struct {
	User           *User
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshExpires time.Time
}

type RegisterParams struct {
	Email    string
	Password string
	FullName string
	UserType string
}

// Register creates a user plus default profile and returns the raw
// verification token for email dispatch. The caller owns delivery; a send
// failure must be logged, never surfaced as a registration failure.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*User, string, error) {
	email := NormalizeEmail(params.Email)
	if email == "" || params.FullName == "" {
		return nil, "", fmt.Errorf("%w: email and name are required", ErrValidation)
	}
	if err := ValidatePassword(params.Password); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}
	userType := params.UserType
	switch userType {
	case UserTypeStudent, UserTypeStartup, UserTypeMentor:
	case "":
		userType = UserTypeStudent
	default:
		return nil, "", fmt.Errorf("%w: unknown user type %q", ErrValidation, params.UserType)
	}

	hash, err := s.Hasher.Hash(params.Password)
	if err != nil {
		return nil, "", err
	}
	rawToken, err := RandomToken(rawTokenBytes)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		AuthProvider: ProviderPassword,
		PasswordHash: &hash,
		UserType:     userType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	profile := &Profile{
		UserID:        user.ID,
		FullName:      params.FullName,
		ProfileStatus: ProfileStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.Store.InTx(ctx, func(tx Store) error {
		existing, err := tx.FindUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrEmailAlreadyRegistered
		}
		if err := tx.CreateUser(ctx, user, profile); err != nil {
			return err
		}
		return tx.SetEmailVerification(ctx, user.ID, HashString(rawToken), now.Add(verificationTokenTTL))
	})
	if err != nil {
		return nil, "", err
	}
	return user, rawToken, nil
}

// ResendVerification re-issues the verification token for an unverified
// account. Returns (nil, "") when the email is unknown or already verified;
// the caller answers generically either way.
func (s *Service) ResendVerification(ctx context.Context, email string) (*User, string, error) {
	user, err := s.Store.FindUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, "", err
	}
	if user == nil || user.EmailVerified {
		return nil, "", nil
	}
	rawToken, err := RandomToken(rawTokenBytes)
	if err != nil {
		return nil, "", err
	}
	expires := time.Now().UTC().Add(verificationTokenTTL)
	if err := s.Store.SetEmailVerification(ctx, user.ID, HashString(rawToken), expires); err != nil {
		return nil, "", err
	}
	return user, rawToken, nil
}

// Login verifies a password credential. The failure is deliberately the
// same whether the user is missing, password-less, or mismatched.
func (s *Service) Login(ctx context.Context, email, password string, meta SessionMeta) (*Session, error) {
	user, err := s.Store.FindUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == nil || !s.Hasher.Compare(*user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	if err := s.Store.RecordLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.issueSession(ctx, s.Store, user, meta)
}

// Logout revokes the presented refresh token. Best effort: an invalid or
// absent token is not an error, the caller clears cookies regardless.
func (s *Service) Logout(ctx context.Context, rawRefreshToken string) {
	if rawRefreshToken == "" {
		return
	}
	_, _ = s.Store.RevokeRefreshToken(ctx, HashString(rawRefreshToken))
}

// GoogleLogin signs in (or up) via a verified Google identity. Three-way
// merge inside one transaction: by google id (carrying provider-side email
// changes onto the row), else by normalized email (linking the existing
// password account), else a fresh user. Linking forces emailVerified since
// the IdP already verified the address.
func (s *Service) GoogleLogin(ctx context.Context, googleID, email, name, userType string, meta SessionMeta) (*Session, error) {
	email = NormalizeEmail(email)
	if googleID == "" || email == "" {
		return nil, fmt.Errorf("%w: google id and email are required", ErrValidation)
	}
	if userType == "" {
		userType = UserTypeStudent
	}

	var user *User
	err := s.Store.InTx(ctx, func(tx Store) error {
		var err error
		user, err = tx.FindUserByGoogleID(ctx, googleID)
		if err != nil {
			return err
		}
		if user != nil {
			if user.Email != email || user.AuthProvider != ProviderGoogle {
				user, err = tx.SyncGoogleAccount(ctx, user.ID, email)
				if err != nil {
					return err
				}
			}
			return tx.EnsureProfile(ctx, user.ID, name)
		}

		user, err = tx.FindUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		if user != nil {
			user, err = tx.LinkGoogleAccount(ctx, user.ID, googleID)
			if err != nil {
				return err
			}
			return tx.EnsureProfile(ctx, user.ID, name)
		}

		now := time.Now().UTC()
		user = &User{
			ID:            uuid.NewString(),
			Email:         email,
			AuthProvider:  ProviderGoogle,
			GoogleID:      &googleID,
			EmailVerified: true,
			UserType:      userType,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		profile := &Profile{
			UserID:        user.ID,
			FullName:      name,
			ProfileStatus: ProfileStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return tx.CreateUser(ctx, user, profile)
	})
	if err != nil {
		return nil, err
	}

	if err := s.Store.RecordLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.issueSession(ctx, s.Store, user, meta)
}

// VerifyEmail consumes a verification token. Single use: a match flips
// emailVerified and clears the token columns in the same statement.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string) (*User, error) {
	if rawToken == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	user, err := s.Store.ConsumeVerificationToken(ctx, HashString(rawToken))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidOrExpiredToken
	}
	return user, nil
}

// PasswordResetIssue is the internal outcome of a reset request. RawToken
// is empty when the account cannot take a password reset (OAuth-only).
type PasswordResetIssue struct {
	User     *User
	RawToken string
}

// RequestPasswordReset never discloses account existence: a nil issue and
// a token-less issue both still produce the generic success response at
// the handler layer.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (*PasswordResetIssue, error) {
	user, err := s.Store.FindUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	if user.PasswordHash == nil {
		return &PasswordResetIssue{User: user}, nil
	}

	rawToken, err := RandomToken(rawTokenBytes)
	if err != nil {
		return nil, err
	}
	expires := time.Now().UTC().Add(resetTokenTTL)
	if err := s.Store.SetPasswordReset(ctx, user.ID, HashString(rawToken), expires); err != nil {
		return nil, err
	}
	return &PasswordResetIssue{User: user, RawToken: rawToken}, nil
}

// ConfirmPasswordReset sets a new password for a valid reset token and
// revokes every outstanding session of the account.
func (s *Service) ConfirmPasswordReset(ctx context.Context, rawToken, newPassword string) (*User, error) {
	if rawToken == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	if err := ValidatePassword(newPassword); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	user, err := s.Store.FindUserByResetToken(ctx, HashString(rawToken))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidOrExpiredToken
	}

	hash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}
	if err := s.Store.UpdatePassword(ctx, user.ID, hash); err != nil {
		return nil, err
	}
	if err := s.Store.RevokeAllRefreshTokens(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// RefreshSession rotates a refresh token: the presented token is revoked
// and a new pair issued in one transaction. When two requests race on the
// same token only the first revocation wins; the loser fails closed.
func (s *Service) RefreshSession(ctx context.Context, rawRefreshToken string, meta SessionMeta) (*Session, error) {
	claims, err := s.Codec.VerifyRefresh(rawRefreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	tokenHash := HashString(rawRefreshToken)

	var session *Session
	err = s.Store.InTx(ctx, func(tx Store) error {
		rec, err := tx.FindRefreshToken(ctx, tokenHash)
		if err != nil {
			return err
		}
		if rec == nil || !rec.Valid(time.Now().UTC()) || rec.ID != claims.TokenID || rec.UserID != claims.Subject {
			return ErrInvalidRefreshToken
		}
		revoked, err := tx.RevokeRefreshToken(ctx, tokenHash)
		if err != nil {
			return err
		}
		if !revoked {
			return ErrInvalidRefreshToken
		}
		user, err := tx.FindUserByID(ctx, rec.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrInvalidRefreshToken
		}
		session, err = s.issueSession(ctx, tx, user, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) issueSession(ctx context.Context, store Store, user *User, meta SessionMeta) (*Session, error) {
	accessToken, accessExp, err := s.Codec.SignAccess(user)
	if err != nil {
		return nil, err
	}
	tokenID := uuid.NewString()
	refreshToken, refreshExp, err := s.Codec.SignRefresh(user, tokenID)
	if err != nil {
		return nil, err
	}
	err = store.InsertRefreshToken(ctx, &RefreshToken{
		ID:        tokenID,
		UserID:    user.ID,
		TokenHash: HashString(refreshToken),
		ExpiresAt: refreshExp,
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return &Session{
		User:           user,
		AccessToken:    accessToken,
		AccessExpires:  accessExp,
		RefreshToken:   refreshToken,
		RefreshExpires: refreshExp,
	}, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
