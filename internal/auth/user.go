package auth

import "time"

const (
	ProviderPassword = "password"
	ProviderGoogle   = "google_oauth"
)

const (
	UserTypeStudent = "student"
	UserTypeStartup = "startup"
	UserTypeMentor  = "mentor"
)

const (
	ProfileStatusPending  = "pending_approval"
	ProfileStatusApproved = "approved"
	ProfileStatusRejected = "rejected"
)

type User struct {
	ID                 string
	Email              string
	AuthProvider       string
	PasswordHash       *string
	GoogleID           *string
	EmailVerified      bool
	IsAdmin            bool
	UserType           string
	VerificationToken  *string
	VerificationExpiry *time.Time
	ResetToken         *string
	ResetExpiry        *time.Time
	LastLoginAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Profile struct {
	UserID         string
	FullName       string
	Bio            *string
	University     *string
	Program        *string
	GraduationYear *int
	CompanyName    *string
	Website        *string
	Skills         []string
	ImagePath      *string
	ProfileStatus  string
	ApprovedBy     *string
	ApprovedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Complete reports whether the user-type-specific required fields are filled.
func (p *Profile) Complete(userType string) bool {
	if p == nil || p.FullName == "" {
		return false
	}
	switch userType {
	case UserTypeStudent:
		return strPtrSet(p.University) && strPtrSet(p.Program)
	case UserTypeStartup:
		return strPtrSet(p.CompanyName)
	default:
		return strPtrSet(p.Bio)
	}
}

func strPtrSet(s *string) bool {
	return s != nil && *s != ""
}

// RefreshToken is one issued long-lived session. Only the SHA-256 hash of
// the bearer secret is stored; a leaked row cannot be replayed.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	UserAgent string
	IP        string
	CreatedAt time.Time
}

func (t *RefreshToken) Valid(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}

// SessionMeta carries request metadata persisted with refresh tokens for audit.
type SessionMeta struct {
	UserAgent string
	IP        string
}
