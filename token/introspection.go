// Package token inspects backend session tokens on the client side. The
// backend signs its tokens; the client cannot verify them and only parses the
// claims for display purposes (who is logged in, when the session expires).
// Nothing here influences whether a session is accepted.
package token

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Introspection holds the claims of a session token that the client surfaces.
type Introspection struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Expired   bool
}

// Introspect parses a session token without verifying its signature and
// extracts the subject and validity window. nowTime is injectable for testing.
func Introspect(rawToken string, nowTime func() time.Time) (*Introspection, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errors.New("[token.Introspect] empty token")
	}
	if nowTime == nil {
		nowTime = time.Now
	}

	parsed, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(err, "[token.Introspect] parse token")
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("[token.Introspect] error extracting claims")
	}

	sub, _ := claims["sub"].(string)
	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)

	info := &Introspection{Subject: sub}
	if iat != 0 {
		info.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp != 0 {
		info.ExpiresAt = time.Unix(int64(exp), 0)
		info.Expired = nowTime().After(info.ExpiresAt)
	}
	return info, nil
}
