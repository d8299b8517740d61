// Package auth turns bearer credentials into session identities.
package auth

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/Dial/internal/domain"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

type Config struct {
	Secret    string `mapstructure:"secret"`
	Algorithm string `mapstructure:"algorithm"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
}

// Claims carries the user id next to the registered claims. The id may be
// encoded as a string or a number.
type Claims struct {
	ID domain.UserID `json:"id"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret  []byte
	method  jwt.SigningMethod
	issuer  string
	options []jwt.ParserOption
}

func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: empty secret")
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(cfg.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, errors.Newf("auth: unsupported algorithm %q", cfg.Algorithm)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{
		secret:  []byte(cfg.Secret),
		method:  method,
		issuer:  cfg.Issuer,
		options: opts,
	}, nil
}

func (v *Verifier) Verify(token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, ErrMissingToken
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, v.options...)
	if err != nil {
		return domain.Identity{}, errors.WithSecondaryError(errors.Wrap(ErrInvalidToken, "verify"), err)
	}
	if err := claims.ID.Validate(); err != nil {
		return domain.Identity{}, errors.WithSecondaryError(errors.Wrap(ErrInvalidToken, "claim id"), err)
	}
	return domain.Identity{ID: claims.ID, ExpireAt: claims.ExpiresAt.Time}, nil
}

// Sign issues a token the verifier accepts. Issuance is owned by the user
// service; this exists for tooling and tests.
func (v *Verifier) Sign(id domain.UserID, expireAt time.Time, audience ...string) (string, error) {
	claims := Claims{
		ID: id,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			ExpiresAt: jwt.NewNumericDate(expireAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	if len(audience) > 0 {
		claims.Audience = audience
	}
	return jwt.NewWithClaims(v.method, claims).SignedString(v.secret)
}
