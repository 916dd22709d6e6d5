/*
auth.go - Bearer token authentication

PURPOSE:
  Turns an HS256 JWT into the insurance.Caller every engine call needs.
  Identity management itself lives elsewhere; this layer only verifies
  the signature and reads three claims.

CLAIMS:
  sub          caller id (required)
  role         admin | staff | customer (required)
  customer_id  required when role is customer

SEE ALSO:
  - insurance/identity.go: Caller and role checks
  - cmd/server/main.go: -issue-token flag for operators
*/
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/warp/motor-insurance/insurance"
)

// Claims are the JWT claims accepted by the API.
type Claims struct {
	Role       string `json:"role"`
	CustomerID string `json:"customer_id,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies access tokens.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewAuthenticator creates an authenticator for the shared secret.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// IssueToken signs a token for caller valid for ttl.
func (a *Authenticator) IssueToken(caller insurance.Caller, ttl time.Duration) (string, error) {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:       string(caller.Role),
		CustomerID: caller.CustomerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.CallerID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(a.secret)
}

// Verify parses a token and returns the caller it identifies.
func (a *Authenticator) Verify(tokenString string) (insurance.Caller, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return insurance.Caller{}, errors.New("token has expired")
		}
		return insurance.Caller{}, errors.New("invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return insurance.Caller{}, errors.New("invalid token claims")
	}

	caller := insurance.Caller{
		CallerID:   claims.Subject,
		Role:       insurance.Role(claims.Role),
		CustomerID: claims.CustomerID,
	}
	switch {
	case caller.CallerID == "":
		return insurance.Caller{}, errors.New("token has no subject")
	case caller.Role != insurance.RoleAdmin && caller.Role != insurance.RoleStaff && caller.Role != insurance.RoleCustomer:
		return insurance.Caller{}, errors.New("token has unknown role")
	case caller.Role == insurance.RoleCustomer && caller.CustomerID == "":
		return insurance.Caller{}, errors.New("customer token has no customer_id")
	}
	return caller, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// caller in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}

		caller, err := a.Verify(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized", err)
			return
		}

		next.ServeHTTP(w, r.WithContext(insurance.WithCaller(r.Context(), caller)))
	})
}

// callerFrom returns the caller placed by Middleware.
func callerFrom(r *http.Request) insurance.Caller {
	c, _ := insurance.CallerFrom(r.Context())
	return c
}
