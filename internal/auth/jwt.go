package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Claims represents JWT payload. Admin tokens carry AdminID, Username and IsAdmin;
// member tokens carry only the user id as subject.
type Claims struct {
	AdminID  string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	IsAdmin  bool   `json:"isAdmin,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AdminClaims builds the payload of an admin session token.
func AdminClaims(adminID, username string) Claims {
	return Claims{
		AdminID:  adminID,
		Username: username,
		IsAdmin:  true,
		Role:     RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: adminID,
		},
	}
}

// MemberClaims builds the payload of a member identity token.
func MemberClaims(userID string) Claims {
	return Claims{
		Role: RoleMember,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
		},
	}
}

// Issue signs claims with HS256 and returns the token and its expiry.
func Issue(claims Claims, issuer, key string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims.Issuer = issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(exp)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}

// MemberID validates a member token and returns the user id it names.
func MemberID(tokenStr, key, issuer string) (string, error) {
	claims, err := Parse(tokenStr, key, issuer)
	if err != nil {
		return "", err
	}
	if claims.Role != RoleMember || claims.Subject == "" {
		return "", errors.New("not a member token")
	}
	return claims.Subject, nil
}
