package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// VerificationCodeBytes is the entropy of a verification code, 128 bits
	VerificationCodeBytes = 16
	// DefaultVerificationTTL is how long a verification code stays valid
	DefaultVerificationTTL = 24 * time.Hour
)

// VerifyResult tells apart a fresh verification from a repeated one
type VerifyResult int

const (
	VerifyResultVerified VerifyResult = iota + 1
	VerifyResultAlreadyVerified
)

// ProfileInput carries the fields set by profile completion. The
// password is already hashed.
type ProfileInput struct {
	FirstName    string
	LastName     string
	PasswordHash string
	PhoneNumber  string
}

// AccountStateMachine owns the account lifecycle rules. It only mutates
// the in memory user, callers persist the columns returned for each
// operation.
type AccountStateMachine struct {
	now             func() time.Time
	generateCode    func() (string, error)
	verificationTTL time.Duration
	transitions     map[AccountStatus]map[AccountStatus]struct{}
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*AccountStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *AccountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithCodeGenerator replaces the verification code source
func WithCodeGenerator(gen func() (string, error)) StateMachineOption {
	return func(sm *AccountStateMachine) {
		if gen != nil {
			sm.generateCode = gen
		}
	}
}

// WithVerificationTTL overrides the 24h code lifetime
func WithVerificationTTL(ttl time.Duration) StateMachineOption {
	return func(sm *AccountStateMachine) {
		if ttl > 0 {
			sm.verificationTTL = ttl
		}
	}
}

func NewAccountStateMachine(opts ...StateMachineOption) *AccountStateMachine {
	sm := &AccountStateMachine{
		now:             time.Now,
		generateCode:    GenerateVerificationCode,
		verificationTTL: DefaultVerificationTTL,
		// pending -> active only happens through VerifyCode
		transitions: map[AccountStatus]map[AccountStatus]struct{}{
			AccountStatusPending: {
				AccountStatusInactive: {},
			},
			AccountStatusActive: {
				AccountStatusSuspended: {},
				AccountStatusInactive:  {},
			},
			AccountStatusSuspended: {
				AccountStatusActive:   {},
				AccountStatusInactive: {},
			},
			AccountStatusInactive: {
				AccountStatusActive: {},
			},
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

// GenerateVerificationCode returns 128 random bits hex encoded
func GenerateVerificationCode() (string, error) {
	buf := make([]byte, VerificationCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification code")
	}
	return hex.EncodeToString(buf), nil
}

// Register builds a new pending account for email with the default role
// and a fresh verification code.
func (sm *AccountStateMachine) Register(email string) (*User, string, error) {
	now := sm.now()
	user := &User{
		Email:     strings.TrimSpace(email),
		Roles:     []string{string(DefaultRole)},
		Status:    AccountStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	code, err := sm.RegenerateCode(user)
	if err != nil {
		return nil, "", err
	}

	return user, code, nil
}

// RegenerateCode overwrites the code and its expiry. Only unverified
// accounts can receive codes.
func (sm *AccountStateMachine) RegenerateCode(user *User) (string, error) {
	if user.EmailVerified {
		return "", ErrAlreadyVerified
	}

	code, err := sm.generateCode()
	if err != nil {
		return "", err
	}

	now := sm.now()
	expires := now.Add(sm.verificationTTL)
	user.VerificationCode = &code
	user.VerificationExpireAt = &expires
	user.UpdatedAt = now

	return code, nil
}

// VerifyCode consumes the submitted code. A wrong code and an expired
// code produce the same error. Verifying an already verified account is
// acknowledged without error.
func (sm *AccountStateMachine) VerifyCode(user *User, submitted string) (VerifyResult, error) {
	if user.EmailVerified {
		return VerifyResultAlreadyVerified, nil
	}

	if user.VerificationCode == nil || user.VerificationExpireAt == nil || submitted == "" {
		return 0, ErrInvalidOrExpiredCode
	}

	match := subtle.ConstantTimeCompare([]byte(*user.VerificationCode), []byte(submitted)) == 1
	now := sm.now()
	if !match || !now.Before(*user.VerificationExpireAt) {
		return 0, ErrInvalidOrExpiredCode
	}

	user.EmailVerified = true
	user.Status = AccountStatusActive
	user.clearVerificationCode()
	user.UpdatedAt = now

	return VerifyResultVerified, nil
}

// CompleteProfile sets the profile fields. Status is left untouched.
func (sm *AccountStateMachine) CompleteProfile(user *User, in ProfileInput) error {
	if !user.EmailVerified {
		return ErrNotVerified
	}

	user.FirstName = strPtr(strings.TrimSpace(in.FirstName))
	user.LastName = strPtr(strings.TrimSpace(in.LastName))
	user.PasswordHash = strPtr(in.PasswordHash)
	user.PhoneNumber = strPtr(strings.TrimSpace(in.PhoneNumber))
	user.UpdatedAt = sm.now()

	return nil
}

// CheckLogin gates authentication on IsActive
func (sm *AccountStateMachine) CheckLogin(user *User) error {
	if user.IsActive() {
		return nil
	}
	if user.IsPendingVerification() {
		return ErrPendingVerification
	}
	return ErrAccountNotActive
}

// Transition moves the status axis for administrative changes.
func (sm *AccountStateMachine) Transition(user *User, target AccountStatus) (AccountStatus, error) {
	user.EnsureStatus()
	from := user.Status

	if !target.IsValid() {
		return from, withMeta(ErrInvalidTransition, map[string]any{"from": from, "to": target})
	}

	if from == target {
		return from, nil
	}

	if !sm.CanTransition(from, target) {
		return from, withMeta(ErrInvalidTransition, map[string]any{"from": from, "to": target})
	}

	if target == AccountStatusActive && !user.EmailVerified {
		return from, withMeta(ErrNotVerified, map[string]any{"from": from, "to": target})
	}

	user.Status = target
	user.UpdatedAt = sm.now()

	return from, nil
}

// CanTransition reports whether the graph allows from -> to
func (sm *AccountStateMachine) CanTransition(from, to AccountStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// SoftDelete marks the user deleted. It does not touch the status.
func (sm *AccountStateMachine) SoftDelete(user *User) {
	now := sm.now()
	user.DeletedAt = &now
}

// Restore clears the soft delete marker
func (sm *AccountStateMachine) Restore(user *User) error {
	if !user.IsDeleted() {
		return ErrNotDeleted
	}
	user.DeletedAt = nil
	return nil
}
