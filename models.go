package accounts

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the single storefront identity. Login uses the email; the
// is_active/email_confirmed pair gates authentication and is only ever
// flipped together by the activation flow.
type Account struct {
	bun.BaseModel  `bun:"table:accounts,alias:acc"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string     `bun:"password_hash,notnull" json:"-"`
	FirstName      string     `bun:"first_name" json:"first_name,omitempty"`
	LastName       string     `bun:"last_name" json:"last_name,omitempty"`
	PhoneNumber    string     `bun:"phone_number" json:"phone_number,omitempty"`
	Address        string     `bun:"address" json:"address,omitempty"`
	DateOfBirth    *time.Time `bun:"date_of_birth,nullzero" json:"date_of_birth,omitempty"`
	IsActive       bool       `bun:"is_active" json:"is_active"`
	EmailConfirmed bool       `bun:"email_confirmed" json:"email_confirmed"`
	IsStaff        bool       `bun:"is_staff" json:"is_staff,omitempty"`
	IsSuperuser    bool       `bun:"is_superuser" json:"is_superuser,omitempty"`
	LastLoginIP    string     `bun:"last_login_ip" json:"last_login_ip,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// ProfileData enumerates every optional attribute accepted at registration
// or profile edit. Keeping the set closed keeps the creation contract
// testable.
type ProfileData struct {
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	PhoneNumber string     `json:"phone_number"`
	Address     string     `json:"address"`
	DateOfBirth *time.Time `json:"date_of_birth"`
}

// CanLogin reports whether the account passed the activation gate.
func (a *Account) CanLogin() bool {
	return a.IsActive && a.EmailConfirmed
}

// IsPending reports whether the account still awaits email confirmation.
func (a *Account) IsPending() bool {
	return !a.IsActive && !a.EmailConfirmed
}

// FullName returns first and last name, falling back to the email.
func (a *Account) FullName() string {
	if a.FirstName != "" && a.LastName != "" {
		return fmt.Sprintf("%s %s", a.FirstName, a.LastName)
	}
	if a.FirstName != "" {
		return a.FirstName
	}
	return a.Email
}

// ShortName returns the first name, falling back to the email.
func (a *Account) ShortName() string {
	if a.FirstName != "" {
		return a.FirstName
	}
	return a.Email
}

// TokenFingerprint is the mutable state baked into activation and reset
// tokens. Any change to these fields invalidates previously issued tokens:
// activation flips the flags, password reset swaps the hash, and login
// advances the timestamp.
func (a *Account) TokenFingerprint() string {
	loggedIn := ""
	if a.LoggedInAt != nil {
		loggedIn = a.LoggedInAt.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s|%s|%t|%t", a.PasswordHash, loggedIn, a.IsActive, a.EmailConfirmed)
}

// NormalizeEmail lowercases and trims an address so uniqueness and lookups
// compare a single canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
