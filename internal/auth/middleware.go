package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key holding the verified admin Claims.
const ClaimsKey = "claims"

// Cookie describes how the admin session cookie is signed and sent.
type Cookie struct {
	Name       string
	SigningKey string
	Issuer     string
	Secure     bool
}

// Set writes token as an HTTP-only, SameSite=Lax cookie expiring at exp.
func (ck Cookie) Set(c *gin.Context, token string, exp time.Time) {
	maxAge := int(time.Until(exp).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ck.Name, token, maxAge, "/", "", ck.Secure, true)
}

// Clear expires the cookie on the client.
func (ck Cookie) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ck.Name, "", -1, "/", "", ck.Secure, true)
}

// AdminAuth enforces a valid admin session cookie. On any failure the cookie is
// cleared and the request is rejected with 401.
func AdminAuth(ck Cookie) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := c.Cookie(ck.Name)
		if err != nil || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		claims, err := Parse(tokenStr, ck.SigningKey, ck.Issuer)
		if err != nil || !claims.IsAdmin || claims.Role != RoleAdmin {
			ck.Clear(c)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// CurrentAdmin returns the claims placed by AdminAuth.
func CurrentAdmin(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

// BearerToken extracts a bearer token from the Authorization header.
func BearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("bearer "):])
}
