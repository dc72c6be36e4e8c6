package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse numbers without a country prefix
const DefaultPhoneRegion = "AR"

type LoginPayload struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type CompleteProfilePayload struct {
	FirstName   string `json:"first_name" form:"first_name"`
	LastName    string `json:"last_name" form:"last_name"`
	Password    string `json:"password" form:"password"`
	PhoneNumber string `json:"phone_number" form:"phone_number"`
}

func (r CompleteProfilePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.RuneLength(2, 100)),
		validation.Field(&r.LastName, validation.Required, validation.RuneLength(2, 100)),
		validation.Field(&r.Password, validation.Required, validation.RuneLength(6, 0)),
		validation.Field(&r.PhoneNumber, validation.By(ValidPhone(DefaultPhoneRegion))),
	)
}

// AssignRolesPayload keeps Roles as a pointer so a missing key can be
// told apart from an empty list.
type AssignRolesPayload struct {
	Roles *[]string `json:"roles"`
}

// ParseAssignRoles decodes a role assignment body. A missing or null key
// leaves Roles nil, anything other than an array fails validation, and
// so does any entry that is not a string.
func ParseAssignRoles(body []byte) (*AssignRolesPayload, error) {
	var raw struct {
		Roles json.RawMessage `json:"roles"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errBadBody
	}

	payload := &AssignRolesPayload{}
	value := bytes.TrimSpace(raw.Roles)
	if len(value) == 0 || bytes.Equal(value, []byte("null")) {
		return payload, nil
	}
	if value[0] != '[' {
		return nil, withMessage(ErrValidation, rolesArrayRequired)
	}

	var entries []any
	if err := json.Unmarshal(value, &entries); err != nil {
		return nil, withMessage(ErrValidation, rolesArrayRequired)
	}

	roles := make([]string, 0, len(entries))
	for i, entry := range entries {
		name, ok := entry.(string)
		if !ok {
			return nil, withMeta(withMessage(ErrInvalidRole, fmt.Sprintf("Rol inválido: %v", entry)), map[string]any{
				"index": i,
			})
		}
		roles = append(roles, name)
	}
	payload.Roles = &roles
	return payload, nil
}

type StatusPayload struct {
	Status string `json:"status"`
}

func (r StatusPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Status, validation.Required, validation.In(
			string(AccountStatusPending),
			string(AccountStatusActive),
			string(AccountStatusSuspended),
			string(AccountStatusInactive),
		)),
	)
}

// NormalizeEmail trims and lowercases an address. Accounts are keyed on
// the normalized form, so lookups do not depend on the column collation.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidPhone accepts empty values and numbers libphonenumber considers
// valid for region.
func ValidPhone(region string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		num, err := phonenumbers.Parse(s, region)
		if err != nil || !phonenumbers.IsValidNumber(num) {
			return errors.New("must be a valid phone number")
		}
		return nil
	}
}

// NormalizePhone formats a valid number as E.164, returning the input
// unchanged when it cannot be parsed.
func NormalizePhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// ValidationErrors flattens ozzo errors into field -> messages
func ValidationErrors(err error) map[string][]string {
	out := map[string][]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr == nil {
				continue
			}
			out[field] = append(out[field], ferr.Error())
		}
		return out
	}
	if err != nil {
		out["_"] = []string{err.Error()}
	}
	return out
}
