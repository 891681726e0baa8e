package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hpungsan/heritage/internal/errors"
	"github.com/hpungsan/heritage/internal/identity"
)

type contextKey string

const callerKey contextKey = "caller"

// identityMiddleware resolves the caller from an HMAC-signed bearer token whose
// "sub" claim is a principal. Requests without a token run as the anonymous caller.
// A token that is present but invalid is rejected with 401.
func identityMiddleware(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), identity.Anonymous)))
			return
		}

		caller, err := parseCallerToken(tokenString, secret)
		if err != nil {
			renderAPIError(w, errors.NewUnauthenticated(err.Error()))
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), caller)))
	})
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) < len("Bearer ") || !strings.EqualFold(authHeader[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authHeader[len("Bearer "):])
}

// parseCallerToken validates tokenString and returns the principal in its sub claim.
func parseCallerToken(tokenString, secret string) (identity.Identity, error) {
	if secret == "" {
		return "", fmt.Errorf("server is not configured to validate tokens")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid or expired token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("sub claim is missing or invalid")
	}
	caller, err := identity.Parse(sub)
	if err != nil {
		return "", fmt.Errorf("sub claim is not a principal: %v", err)
	}
	return caller, nil
}

func withCaller(ctx context.Context, caller identity.Identity) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// callerFrom returns the caller stored by identityMiddleware, or anonymous.
func callerFrom(ctx context.Context) identity.Identity {
	if caller, ok := ctx.Value(callerKey).(identity.Identity); ok {
		return caller
	}
	return identity.Anonymous
}
