package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the console shows about a token. The signature is not
// checked: the remote API is the one that verifies it.
type Claims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// Expired reports whether the token has a past expiry.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Inspect decodes the claims of a JWT without verifying it.
func Inspect(token string) (Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), claims); err != nil {
		return Claims{}, fmt.Errorf("decoding token: %w", err)
	}

	var out Claims
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		out.Subject = sub
	} else {
		out.Subject = firstString(claims, "email", "user_id", "id")
	}
	out.Role = firstString(claims, "role")
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

func firstString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		switch v := claims[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
