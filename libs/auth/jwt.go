package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type Role string

const (
	RoleHomeowner Role = "homeowner"
	RoleProvider  Role = "provider"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleHomeowner, RoleProvider, RoleAdmin:
		return true
	}
	return false
}

// Claims carries the caller role next to the registered claims; sub is the caller id.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

type VerifierConfig struct {
	// HMACSecret enables HS256 tokens.
	HMACSecret string
	// JWKS enables RS256 tokens whose kid is published at the JWKS endpoint.
	JWKS     *JWKSClient
	Issuer   string
	Audience string
	Leeway   time.Duration
}

type Verifier struct {
	cfg     VerifierConfig
	methods []string
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	var methods []string
	if cfg.HMACSecret != "" {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if cfg.JWKS != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	if len(methods) == 0 {
		return nil, errors.New("auth: either an HMAC secret or a JWKS client is required")
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = 30 * time.Second
	}
	return &Verifier{cfg: cfg, methods: methods}, nil
}

// Verify checks signature, expiry, and the presence of sub and a known role.
func (v *Verifier) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyFunc, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if v.cfg.HMACSecret == "" {
			return nil, jwt.ErrTokenUnverifiable
		}
		return []byte(v.cfg.HMACSecret), nil
	case *jwt.SigningMethodRSA:
		if v.cfg.JWKS == nil {
			return nil, jwt.ErrTokenUnverifiable
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, ErrKeyNotFound
		}
		return v.cfg.JWKS.Get(kid)
	default:
		return nil, jwt.ErrTokenSignatureInvalid
	}
}

// SignHS256 mints a token. Tests use it to issue credentials.
func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
