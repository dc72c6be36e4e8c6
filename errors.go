package auth

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeValidationFailed  = "VALIDATION_FAILED"
	TextCodeEmailRegistered   = "EMAIL_ALREADY_REGISTERED"
	TextCodeInvalidCreds      = "INVALID_CREDENTIALS"
	TextCodePendingVerify     = "PENDING_VERIFICATION"
	TextCodeAccountInactive   = "ACCOUNT_NOT_ACTIVE"
	TextCodeInvalidCode       = "INVALID_VERIFICATION_CODE"
	TextCodeAlreadyVerified   = "ALREADY_VERIFIED"
	TextCodeNotVerified       = "EMAIL_NOT_VERIFIED"
	TextCodeUserNotFound      = "USER_NOT_FOUND"
	TextCodeNotDeleted        = "USER_NOT_DELETED"
	TextCodeUnauthorized      = "UNAUTHORIZED"
	TextCodeInvalidToken      = "INVALID_TOKEN"
	TextCodeForbidden         = "FORBIDDEN"
	TextCodeInvalidRole       = "INVALID_ROLE"
	TextCodeEmailDelivery     = "EMAIL_DELIVERY_FAILED"
	TextCodeInvalidTransition = "INVALID_USER_STATE_TRANSITION"
	TextCodeInternal          = "INTERNAL_ERROR"
	TextCodeBadRequest        = "BAD_REQUEST_BODY"
)

const rolesArrayRequired = "Se requiere un array de roles"

// errBadBody is returned for bodies that cannot be decoded. The decoder
// error is not part of the response.
var errBadBody = goerrors.New("Cuerpo de la solicitud inválido", goerrors.CategoryBadInput).
	WithTextCode(TextCodeBadRequest).
	WithCode(http.StatusBadRequest)

// ErrValidation is the base for payload validation failures, field
// messages travel in the metadata under "errors".
var ErrValidation = goerrors.New("Error de validación", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidationFailed).
	WithCode(http.StatusUnprocessableEntity)

// ErrEmailAlreadyRegistered is returned when a verified account owns the email
var ErrEmailAlreadyRegistered = goerrors.New("El correo electrónico ya está registrado y verificado", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailRegistered).
	WithCode(http.StatusConflict)

// ErrInvalidCredentials covers unknown emails and password mismatches alike
var ErrInvalidCredentials = goerrors.New("Credenciales inválidas", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(http.StatusUnauthorized)

var ErrPendingVerification = goerrors.New("Tu cuenta aún no ha sido verificada. Por favor revisa tu correo electrónico.", goerrors.CategoryAuthz).
	WithTextCode(TextCodePendingVerify).
	WithCode(http.StatusForbidden)

var ErrAccountNotActive = goerrors.New("Tu cuenta no está activa. Contacta al administrador.", goerrors.CategoryAuthz).
	WithTextCode(TextCodeAccountInactive).
	WithCode(http.StatusForbidden)

var ErrInvalidOrExpiredCode = goerrors.New("Código de verificación inválido o expirado", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidCode).
	WithCode(http.StatusBadRequest)

var ErrAlreadyVerified = goerrors.New("El email ya está verificado", goerrors.CategoryBadInput).
	WithTextCode(TextCodeAlreadyVerified).
	WithCode(http.StatusBadRequest)

var ErrNotVerified = goerrors.New("Debes verificar tu email primero", goerrors.CategoryAuthz).
	WithTextCode(TextCodeNotVerified).
	WithCode(http.StatusForbidden)

var ErrUserNotFound = goerrors.New("Usuario no encontrado", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(http.StatusNotFound)

var ErrNotDeleted = goerrors.New("El usuario no está eliminado", goerrors.CategoryBadInput).
	WithTextCode(TextCodeNotDeleted).
	WithCode(http.StatusBadRequest)

// ErrUnauthorized is returned when a request carries no usable identity
var ErrUnauthorized = goerrors.New("No autenticado", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthorized).
	WithCode(http.StatusUnauthorized)

// ErrInvalidToken collapses every token failure: bad signature, expiry,
// malformed input, wrong algorithm.
var ErrInvalidToken = goerrors.New("Token inválido", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(http.StatusUnauthorized)

var ErrForbidden = goerrors.New("Acceso denegado", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(http.StatusForbidden)

var ErrInvalidRole = goerrors.New("Rol inválido", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidRole).
	WithCode(http.StatusUnprocessableEntity)

var ErrEmailDelivery = goerrors.New("Error al enviar el correo electrónico", goerrors.CategoryOperation).
	WithTextCode(TextCodeEmailDelivery).
	WithCode(http.StatusInternalServerError)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid user state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(http.StatusBadRequest)

// withMeta copies a sentinel so request specific metadata never leaks
// into the shared value.
func withMeta(base *goerrors.Error, meta map[string]any) *goerrors.Error {
	return copyError(base, base.Message).WithMetadata(meta)
}

// withMessage copies a sentinel replacing its public message
func withMessage(base *goerrors.Error, msg string) *goerrors.Error {
	return copyError(base, msg)
}

func copyError(base *goerrors.Error, msg string) *goerrors.Error {
	return goerrors.New(msg, base.Category).
		WithTextCode(base.TextCode).
		WithCode(base.Code)
}

// ValidationError builds a 422 error carrying field level messages
func ValidationError(fields map[string][]string) *goerrors.Error {
	return withMeta(ErrValidation, map[string]any{"errors": fields})
}

// IsErrorCode reports whether err is a rich error with the given text code
func IsErrorCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == textCode
	}
	return false
}

// StatusCode resolves the HTTP status for any error, defaulting to 500
func StatusCode(err error) int {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code >= 400 && richErr.Code < 600 {
		return richErr.Code
	}
	return http.StatusInternalServerError
}

func internalError(err error, msg string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithTextCode(TextCodeInternal).
		WithCode(http.StatusInternalServerError)
}
