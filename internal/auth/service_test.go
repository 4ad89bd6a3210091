package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeStore is an in-memory Store for service tests. InTx runs the callback
// against the same store; the service never relies on rollback in these
// scenarios.
type fakeStore struct {
	users    map[string]*User
	profiles map[string]*Profile
	tokens   map[string]*RefreshToken
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]*User{},
		profiles: map[string]*Profile{},
		tokens:   map[string]*RefreshToken{},
	}
}

func (f *fakeStore) InTx(ctx context.Context, fn func(Store) error) error {
	return fn(f)
}

func (f *fakeStore) FindUserByID(ctx context.Context, id string) (*User, error) {
	return f.users[id], nil
}

func (f *fakeStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindUserByGoogleID(ctx context.Context, googleID string) (*User, error) {
	for _, u := range f.users {
		if u.GoogleID != nil && *u.GoogleID == googleID {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateUser(ctx context.Context, u *User, p *Profile) error {
	f.users[u.ID] = u
	f.profiles[p.UserID] = p
	return nil
}

func (f *fakeStore) SetEmailVerification(ctx context.Context, userID, tokenHash string, expires time.Time) error {
	u := f.users[userID]
	u.VerificationToken = &tokenHash
	u.VerificationExpiry = &expires
	return nil
}

func (f *fakeStore) ConsumeVerificationToken(ctx context.Context, tokenHash string) (*User, error) {
	for _, u := range f.users {
		if u.VerificationToken != nil && *u.VerificationToken == tokenHash && u.VerificationExpiry.After(time.Now()) {
			u.EmailVerified = true
			u.VerificationToken = nil
			u.VerificationExpiry = nil
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) SetPasswordReset(ctx context.Context, userID, tokenHash string, expires time.Time) error {
	u := f.users[userID]
	u.ResetToken = &tokenHash
	u.ResetExpiry = &expires
	return nil
}

func (f *fakeStore) FindUserByResetToken(ctx context.Context, tokenHash string) (*User, error) {
	for _, u := range f.users {
		if u.ResetToken != nil && *u.ResetToken == tokenHash && u.ResetExpiry.After(time.Now()) {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	u := f.users[userID]
	u.PasswordHash = &passwordHash
	u.ResetToken = nil
	u.ResetExpiry = nil
	return nil
}

func (f *fakeStore) LinkGoogleAccount(ctx context.Context, userID, googleID string) (*User, error) {
	u := f.users[userID]
	u.GoogleID = &googleID
	u.EmailVerified = true
	return u, nil
}

func (f *fakeStore) SyncGoogleAccount(ctx context.Context, userID, email string) (*User, error) {
	u := f.users[userID]
	u.Email = NormalizeEmail(email)
	u.AuthProvider = ProviderGoogle
	u.EmailVerified = true
	return u, nil
}

func (f *fakeStore) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	f.users[userID].LastLoginAt = &at
	return nil
}

func (f *fakeStore) FindProfileByUserID(ctx context.Context, userID string) (*Profile, error) {
	return f.profiles[userID], nil
}

func (f *fakeStore) EnsureProfile(ctx context.Context, userID, fullName string) error {
	if _, ok := f.profiles[userID]; !ok {
		f.profiles[userID] = &Profile{UserID: userID, FullName: fullName, ProfileStatus: ProfileStatusPending}
	}
	return nil
}

func (f *fakeStore) UpdateProfile(ctx context.Context, userID string, changes ProfileChanges) (*Profile, error) {
	p := f.profiles[userID]
	if changes.FullName != nil {
		p.FullName = *changes.FullName
	}
	if changes.Bio != nil {
		p.Bio = changes.Bio
	}
	if changes.University != nil {
		p.University = changes.University
	}
	if changes.Program != nil {
		p.Program = changes.Program
	}
	if changes.GraduationYear != nil {
		p.GraduationYear = changes.GraduationYear
	}
	if changes.CompanyName != nil {
		p.CompanyName = changes.CompanyName
	}
	if changes.Website != nil {
		p.Website = changes.Website
	}
	if changes.Skills != nil {
		p.Skills = changes.Skills
	}
	if changes.ImagePath != nil {
		p.ImagePath = changes.ImagePath
	}
	p.ProfileStatus = ProfileStatusPending
	p.ApprovedBy = nil
	p.ApprovedAt = nil
	return p, nil
}

func (f *fakeStore) ListProfilesByStatus(ctx context.Context, status string, limit int) ([]Profile, error) {
	var out []Profile
	for _, p := range f.profiles {
		if p.ProfileStatus == status {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) ApproveProfile(ctx context.Context, userID, adminID string) (*Profile, error) {
	p := f.profiles[userID]
	if p == nil {
		return nil, nil
	}
	now := time.Now()
	p.ProfileStatus = ProfileStatusApproved
	p.ApprovedBy = &adminID
	p.ApprovedAt = &now
	return p, nil
}

func (f *fakeStore) InsertRefreshToken(ctx context.Context, t *RefreshToken) error {
	f.tokens[t.TokenHash] = t
	return nil
}

func (f *fakeStore) FindRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	return f.tokens[tokenHash], nil
}

func (f *fakeStore) RevokeRefreshToken(ctx context.Context, tokenHash string) (bool, error) {
	t, ok := f.tokens[tokenHash]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	t.RevokedAt = &now
	return true, nil
}

func (f *fakeStore) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	now := time.Now()
	for _, t := range f.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

func newTestService(store Store) *Service {
	codec := NewTokenCodec("test-secret", 15*time.Minute, time.Hour)
	return NewService(store, codec, NewBcryptHasher())
}

func TestRegisterCreatesUserAndPendingProfile(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	user, rawToken, err := svc.Register(context.Background(), RegisterParams{
		Email:    " Alice@Example.COM ",
		Password: "Sup3rsafe",
		FullName: "Alice",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("email = %q, want normalized", user.Email)
	}
	if user.AuthProvider != ProviderPassword || user.UserType != UserTypeStudent {
		t.Errorf("user = %+v", user)
	}
	if user.EmailVerified {
		t.Error("new password account must start unverified")
	}

	profile := store.profiles[user.ID]
	if profile == nil {
		t.Fatal("no profile row created")
	}
	if profile.ProfileStatus != ProfileStatusPending {
		t.Errorf("profile status = %q, want %q", profile.ProfileStatus, ProfileStatusPending)
	}

	stored := store.users[user.ID]
	if stored.VerificationToken == nil || *stored.VerificationToken != HashString(rawToken) {
		t.Error("verification token not stored as the hash of the raw token")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, RegisterParams{Email: "a@b.com", Password: "Sup3rsafe", FullName: "A"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, _, err := svc.Register(ctx, RegisterParams{Email: "A@B.com", Password: "Sup3rsafe", FullName: "B"})
	if !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Fatalf("err = %v, want ErrEmailAlreadyRegistered", err)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, _, err := svc.Register(context.Background(), RegisterParams{Email: "a@b.com", Password: "short", FullName: "A"})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("err = %v, want ErrWeakPassword", err)
	}
}

func TestLoginBlockedUntilEmailVerified(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, rawToken, err := svc.Register(ctx, RegisterParams{Email: "a@b.com", Password: "Sup3rsafe", FullName: "A"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.Login(ctx, "a@b.com", "Sup3rsafe", SessionMeta{}); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("pre-verification login err = %v, want ErrEmailNotVerified", err)
	}

	if _, err := svc.VerifyEmail(ctx, rawToken); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	// Single use: the same token must not verify twice.
	if _, err := svc.VerifyEmail(ctx, rawToken); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("second VerifyEmail err = %v, want ErrInvalidOrExpiredToken", err)
	}

	session, err := svc.Login(ctx, "a@b.com", "Sup3rsafe", SessionMeta{UserAgent: "test", IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("post-verification login: %v", err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatal("session tokens missing")
	}
	if _, ok := store.tokens[HashString(session.RefreshToken)]; !ok {
		t.Error("refresh token not persisted by hash")
	}
}

func TestLoginGenericFailure(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, rawToken, _ := svc.Register(ctx, RegisterParams{Email: "a@b.com", Password: "Sup3rsafe", FullName: "A"})
	_, _ = svc.VerifyEmail(ctx, rawToken)

	if _, err := svc.Login(ctx, "a@b.com", "WrongPass1", SessionMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "nobody@b.com", "Sup3rsafe", SessionMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email err = %v, want the same ErrInvalidCredentials", err)
	}
}

func verifiedLogin(t *testing.T, svc *Service) *Session {
	t.Helper()
	ctx := context.Background()
	_, rawToken, err := svc.Register(ctx, RegisterParams{Email: "a@b.com", Password: "Sup3rsafe", FullName: "A"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.VerifyEmail(ctx, rawToken); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	session, err := svc.Login(ctx, "a@b.com", "Sup3rsafe", SessionMeta{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return session
}

func TestRefreshTokenIsSingleUse(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	first := verifiedLogin(t, svc)

	second, err := svc.RefreshSession(ctx, first.RefreshToken, SessionMeta{})
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("rotation returned the same refresh token")
	}

	if _, err := svc.RefreshSession(ctx, first.RefreshToken, SessionMeta{}); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("replayed token err = %v, want ErrInvalidRefreshToken", err)
	}

	if _, err := svc.RefreshSession(ctx, second.RefreshToken, SessionMeta{}); err != nil {
		t.Fatalf("rotated token must stay usable once: %v", err)
	}
}

func TestRefreshRejectsRevokedToken(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	session := verifiedLogin(t, svc)
	svc.Logout(ctx, session.RefreshToken)

	if _, err := svc.RefreshSession(ctx, session.RefreshToken, SessionMeta{}); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRefreshRejectsForgedToken(t *testing.T) {
	svc := newTestService(newFakeStore())
	forger := NewTokenCodec("other-secret", 15*time.Minute, time.Hour)
	forged, _, _ := forger.SignRefresh(&User{ID: "user-1"}, "tok-1")

	if _, err := svc.RefreshSession(context.Background(), forged, SessionMeta{}); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestGoogleLoginCreatesVerifiedUser(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	session, err := svc.GoogleLogin(context.Background(), "g-1", "new@b.com", "New User", "", SessionMeta{})
	if err != nil {
		t.Fatalf("GoogleLogin: %v", err)
	}
	u := session.User
	if u.AuthProvider != ProviderGoogle || u.GoogleID == nil || *u.GoogleID != "g-1" {
		t.Errorf("user = %+v", u)
	}
	if !u.EmailVerified {
		t.Error("IdP-backed account must be emailVerified")
	}
	if p := store.profiles[u.ID]; p == nil || p.ProfileStatus != ProfileStatusPending {
		t.Errorf("profile = %+v, want pending profile", p)
	}
}

func TestGoogleLoginLinksExistingPasswordAccount(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	registered, _, err := svc.Register(ctx, RegisterParams{Email: "a@b.com", Password: "Sup3rsafe", FullName: "A"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	session, err := svc.GoogleLogin(ctx, "g-1", "A@b.com", "A", "", SessionMeta{})
	if err != nil {
		t.Fatalf("GoogleLogin: %v", err)
	}
	if session.User.ID != registered.ID {
		t.Fatal("linking created a second account instead of merging by email")
	}
	if session.User.GoogleID == nil || *session.User.GoogleID != "g-1" {
		t.Error("google id not linked")
	}
	if !session.User.EmailVerified {
		t.Error("linking must force emailVerified")
	}
	if len(store.users) != 1 {
		t.Errorf("user count = %d, want 1", len(store.users))
	}

	again, err := svc.GoogleLogin(ctx, "g-1", "a@b.com", "A", "", SessionMeta{})
	if err != nil {
		t.Fatalf("second GoogleLogin: %v", err)
	}
	if again.User.ID != registered.ID || len(store.users) != 1 {
		t.Error("repeat google login must resolve by google id without duplication")
	}
}

func TestGoogleLoginSyncsChangedEmail(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	first, err := svc.GoogleLogin(ctx, "g-1", "old@b.com", "A", "", SessionMeta{})
	if err != nil {
		t.Fatalf("GoogleLogin: %v", err)
	}

	// The provider owns the address: a later login with a changed email
	// updates the stored row rather than leaving it stale.
	again, err := svc.GoogleLogin(ctx, "g-1", "New@b.com", "A", "", SessionMeta{})
	if err != nil {
		t.Fatalf("second GoogleLogin: %v", err)
	}
	if again.User.ID != first.User.ID || len(store.users) != 1 {
		t.Fatal("email change must not fork the account")
	}
	if again.User.Email != "new@b.com" {
		t.Errorf("email = %q, want normalized provider email", again.User.Email)
	}
	if again.User.AuthProvider != ProviderGoogle {
		t.Errorf("authProvider = %q, want %q", again.User.AuthProvider, ProviderGoogle)
	}
}

func TestPasswordResetIsEnumerationSafe(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	issue, err := svc.RequestPasswordReset(ctx, "nobody@b.com")
	if err != nil || issue != nil {
		t.Fatalf("unknown email: issue=%v err=%v, want nil/nil", issue, err)
	}

	if _, err := svc.GoogleLogin(ctx, "g-1", "oauth@b.com", "O", "", SessionMeta{}); err != nil {
		t.Fatalf("GoogleLogin: %v", err)
	}
	issue, err = svc.RequestPasswordReset(ctx, "oauth@b.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if issue == nil || issue.RawToken != "" {
		t.Fatalf("oauth-only account: issue=%+v, want notice without token", issue)
	}
}

func TestConfirmPasswordResetRevokesSessions(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	session := verifiedLogin(t, svc)

	issue, err := svc.RequestPasswordReset(ctx, "a@b.com")
	if err != nil || issue == nil || issue.RawToken == "" {
		t.Fatalf("RequestPasswordReset: issue=%+v err=%v", issue, err)
	}

	if _, err := svc.ConfirmPasswordReset(ctx, "bogus-token", "N3wPassword"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("bogus token err = %v, want ErrInvalidOrExpiredToken", err)
	}

	if _, err := svc.ConfirmPasswordReset(ctx, issue.RawToken, "N3wPassword"); err != nil {
		t.Fatalf("ConfirmPasswordReset: %v", err)
	}

	if _, err := svc.Login(ctx, "a@b.com", "N3wPassword", SessionMeta{}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := svc.Login(ctx, "a@b.com", "Sup3rsafe", SessionMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.RefreshSession(ctx, session.RefreshToken, SessionMeta{}); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("pre-reset refresh token err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestResendVerification(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, firstToken, err := svc.Register(ctx, RegisterParams{Email: "a@b.com", Password: "Sup3rsafe", FullName: "A"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	user, rawToken, err := svc.ResendVerification(ctx, "a@b.com")
	if err != nil || user == nil || rawToken == "" {
		t.Fatalf("ResendVerification: user=%v token=%q err=%v", user, rawToken, err)
	}
	if rawToken == firstToken {
		t.Error("resend must issue a fresh token")
	}
	if _, err := svc.VerifyEmail(ctx, rawToken); err != nil {
		t.Fatalf("VerifyEmail with resent token: %v", err)
	}

	user, rawToken, err = svc.ResendVerification(ctx, "a@b.com")
	if err != nil || user != nil || rawToken != "" {
		t.Fatalf("verified account resend: user=%v token=%q err=%v, want nil/empty", user, rawToken, err)
	}
}
