package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/davidleathers/auction-ledger/internal/domain/values"
)

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret   []byte
	Issuer      string
	TokenExpiry time.Duration
}

// AuthMiddleware authenticates callers with HS256 bearer tokens whose
// subject is the caller's address
type AuthMiddleware struct {
	config *AuthConfig
	tracer trace.Tracer
	base   *BaseHandler
}

func NewAuthMiddleware(config *AuthConfig, base *BaseHandler) *AuthMiddleware {
	return &AuthMiddleware{
		config: config,
		tracer: otel.Tracer("api.rest.auth"),
		base:   base,
	}
}

// Require rejects requests without a valid token and stores the caller
// identity in the request context
func (a *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := a.tracer.Start(r.Context(), "auth.middleware")
		defer span.End()

		token, err := extractToken(r)
		if err != nil {
			span.RecordError(err)
			a.writeUnauthorized(ctx, w, "Authorization required")
			return
		}

		caller, err := a.ValidateToken(token)
		if err != nil {
			span.RecordError(err)
			a.writeUnauthorized(ctx, w, "Invalid or expired token")
			return
		}

		span.SetAttributes(attribute.String("caller", caller.String()))
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// GenerateToken issues a token for address
func (a *AuthMiddleware) GenerateToken(address values.Identity) (string, error) {
	if address.IsZero() {
		return "", errors.New("cannot issue a token for the null address")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    a.config.Issuer,
		Subject:   address.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.config.TokenExpiry)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.config.JWTSecret)
}

// ValidateToken verifies signature, expiry and issuer, and returns the
// subject address
func (a *AuthMiddleware) ValidateToken(tokenString string) (values.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.config.Issuer))
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return a.config.JWTSecret, nil
	}, opts...)
	if err != nil {
		return values.NullIdentity, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return values.NullIdentity, errors.New("invalid token")
	}

	caller, err := values.ParseIdentity(claims.Subject)
	if err != nil {
		return values.NullIdentity, fmt.Errorf("token subject: %w", err)
	}
	if caller.IsZero() {
		return values.NullIdentity, errors.New("token subject is the null address")
	}
	return caller, nil
}

func (a *AuthMiddleware) writeUnauthorized(ctx context.Context, w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	a.base.writeError(ctx, w, http.StatusUnauthorized, &ErrorResponse{
		Code:    CodeAuthRequired,
		Message: message,
	})
}

func extractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("no authorization token provided")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}

// WithCaller stores the authenticated caller
func WithCaller(ctx context.Context, caller values.Identity) context.Context {
	return context.WithValue(ctx, contextKeyCaller, caller)
}

// CallerFrom returns the authenticated caller, if any
func CallerFrom(ctx context.Context) (values.Identity, bool) {
	caller, ok := ctx.Value(contextKeyCaller).(values.Identity)
	return caller, ok
}
