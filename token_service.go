package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// DefaultTokenExpiration is the token lifetime when none is configured
const DefaultTokenExpiration = time.Hour

// TokenService issues and validates bearer tokens carrying a user id
type TokenService interface {
	Issue(userID int64) (string, error)
	Validate(token string) (int64, error)
}

// TokenClaims is the signed payload: user_id, iat and exp
type TokenClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey []byte
	method     *jwt.SigningMethodHMAC
	expiration time.Duration
	now        func() time.Time
	logger     Logger
}

var _ TokenService = (*TokenServiceImpl)(nil)

// TokenServiceOption customizes the token service
type TokenServiceOption func(*TokenServiceImpl)

// WithTokenClock injects the clock used for iat, exp and validation
func WithTokenClock(clock func() time.Time) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a new TokenService instance. Only HMAC
// algorithms are accepted: HS256 (default), HS384 and HS512.
func NewTokenService(signingKey []byte, algorithm string, expiration time.Duration, opts ...TokenServiceOption) (*TokenServiceImpl, error) {
	if len(signingKey) == 0 {
		return nil, goerrors.New("token signing key is required", goerrors.CategoryBadInput)
	}

	method, err := hmacMethod(algorithm)
	if err != nil {
		return nil, err
	}

	if expiration <= 0 {
		expiration = DefaultTokenExpiration
	}

	ts := &TokenServiceImpl{
		signingKey: signingKey,
		method:     method,
		expiration: expiration,
		now:        time.Now,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts, nil
}

// NewTokenServiceFromConfig reads key, algorithm and expiry (seconds)
func NewTokenServiceFromConfig(cfg Config, opts ...TokenServiceOption) (*TokenServiceImpl, error) {
	exp := time.Duration(cfg.GetTokenExpiration()) * time.Second
	return NewTokenService([]byte(cfg.GetSigningKey()), cfg.GetSigningMethod(), exp, opts...)
}

func hmacMethod(algorithm string) (*jwt.SigningMethodHMAC, error) {
	switch strings.ToUpper(strings.TrimSpace(algorithm)) {
	case "", "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	default:
		return nil, goerrors.New("unsupported token algorithm", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"algorithm": algorithm})
	}
}

// Expiration returns the configured lifetime
func (ts *TokenServiceImpl) Expiration() time.Duration {
	return ts.expiration
}

// Issue signs a token for userID
func (ts *TokenServiceImpl) Issue(userID int64) (string, error) {
	now := ts.now()
	claims := &TokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.expiration)),
		},
	}

	token := jwt.NewWithClaims(ts.method, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signed, nil
}

// Validate returns the user id carried by a valid token. Any failure is
// reported as ErrInvalidToken.
func (ts *TokenServiceImpl) Validate(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != ts.method.Alg() {
			return nil, ErrInvalidToken
		}
		return ts.signingKey, nil
	},
		jwt.WithValidMethods([]string{ts.method.Alg()}),
		jwt.WithTimeFunc(ts.now),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		ts.logger.Debug("token validation failed", "error", err)
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return 0, ErrInvalidToken
	}

	return claims.UserID, nil
}
