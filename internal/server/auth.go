package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/emrgen/docvault/internal/config"
)

const (
	authorization = "Authorization"
	// UserIDHeader carries the caller in insecure mode.
	UserIDHeader = "X-User-ID"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type userKey struct{}

// Authenticator resolves the user behind a request.
type Authenticator interface {
	Authenticate(r *http.Request) (uuid.UUID, error)
}

// NewAuthenticator picks the authenticator for the configured mode.
// JWKS wins over an HMAC secret when both are set.
func NewAuthenticator(cfg config.AuthConfig) (Authenticator, error) {
	switch {
	case cfg.JWKSURL != "":
		return NewJWKSAuthenticator(cfg.JWKSURL, cfg.Issuer)
	case cfg.HMACSecret != "":
		return NewHMACAuthenticator(cfg.HMACSecret, cfg.Issuer), nil
	case cfg.Insecure:
		logrus.Warn("auth is insecure, callers are identified by the " + UserIDHeader + " header")
		return HeaderAuthenticator{}, nil
	default:
		return nil, fmt.Errorf("no authentication configured")
	}
}

// HeaderAuthenticator trusts the X-User-ID header.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(r.Header.Get(UserIDHeader)))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: missing or malformed %s", ErrUnauthenticated, UserIDHeader)
	}
	return id, nil
}

// JWTAuthenticator verifies bearer tokens; the subject claim is the user id.
type JWTAuthenticator struct {
	keyfunc jwt.Keyfunc
	methods []string
	issuer  string
}

func NewHMACAuthenticator(secret, issuer string) *JWTAuthenticator {
	return &JWTAuthenticator{
		keyfunc: func(token *jwt.Token) (any, error) {
			return []byte(secret), nil
		},
		methods: []string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()},
		issuer:  issuer,
	}
}

func NewJWKSAuthenticator(jwksURL, issuer string) (*JWTAuthenticator, error) {
	k, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("create jwks keyfunc: %w", err)
	}

	return &JWTAuthenticator{
		keyfunc: k.Keyfunc,
		methods: []string{"RS256", "RS384", "RS512", "ES256", "ES384", "EdDSA"},
		issuer:  issuer,
	}, nil
}

func (j *JWTAuthenticator) Authenticate(r *http.Request) (uuid.UUID, error) {
	header := r.Header.Get(authorization)
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return uuid.Nil, fmt.Errorf("%w: expected Bearer token", ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(j.methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(parts[1], claims, j.keyfunc, opts...); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not a user id", ErrUnauthenticated)
	}

	return id, nil
}

// IssueToken signs an HMAC token for userID, for development setups and tests.
func IssueToken(secret, issuer string, userID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})

	return token.SignedString([]byte(secret))
}

// Authenticate rejects requests without a verifiable user and stores the user in the context.
func Authenticate(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := auth.Authenticate(r)
			if err != nil {
				logrus.Debugf("authentication failed for %s %s: %v", r.Method, r.URL.Path, err)
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
		})
	}
}

func UserFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userKey{}).(uuid.UUID)
	return id, ok
}
