package auth

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// AccountStatus is the status axis of the account lifecycle
type AccountStatus string

const (
	AccountStatusPending   AccountStatus = "pending"
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusInactive  AccountStatus = "inactive"
)

// IsValid reports whether s is one of the known statuses
func (s AccountStatus) IsValid() bool {
	switch s {
	case AccountStatusPending, AccountStatusActive, AccountStatusSuspended, AccountStatusInactive:
		return true
	default:
		return false
	}
}

// User is the account model. Soft deletion is orthogonal to Status.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID                   int64         `bun:"id,pk,autoincrement" json:"id"`
	UUID                 string        `bun:"uuid,notnull,unique" json:"uuid"`
	Email                string        `bun:"email,notnull,unique" json:"email"`
	FirstName            *string       `bun:"first_name" json:"first_name"`
	LastName             *string       `bun:"last_name" json:"last_name"`
	PasswordHash         *string       `bun:"password_hash" json:"-"`
	PhoneNumber          *string       `bun:"phone_number" json:"phone_number"`
	Roles                []string      `bun:"roles,type:json" json:"roles"`
	EmailVerified        bool          `bun:"email_verified,notnull" json:"email_verified"`
	VerificationCode     *string       `bun:"verification_code" json:"-"`
	VerificationExpireAt *time.Time    `bun:"verification_code_expires_at" json:"-"`
	Status               AccountStatus `bun:"account_status,notnull" json:"account_status"`
	CreatedAt            time.Time     `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt            time.Time     `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
	DeletedAt            *time.Time    `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// IsActive gates login: active status and a verified email
func (u *User) IsActive() bool {
	return u.Status == AccountStatusActive && u.EmailVerified
}

// IsPendingVerification reports whether the account still waits for
// its email to be verified.
func (u *User) IsPendingVerification() bool {
	return u.Status == AccountStatusPending || !u.EmailVerified
}

// IsDeleted reports whether the user is soft deleted
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil && !u.DeletedAt.IsZero()
}

// HasRole reports whether the raw role is assigned to the user
func (u *User) HasRole(role RoleName) bool {
	for _, r := range u.Roles {
		if r == string(role) {
			return true
		}
	}
	return false
}

// FullName joins first and last name
func (u *User) FullName() string {
	return strings.TrimSpace(deref(u.FirstName) + " " + deref(u.LastName))
}

// EnsureStatus defaults empty statuses to pending
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = AccountStatusPending
	}
}

func (u *User) clearVerificationCode() {
	u.VerificationCode = nil
	u.VerificationExpireAt = nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
