package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "rollcall-test"
)

func TestIssueAndParseAdmin(t *testing.T) {
	token, exp, err := Issue(AdminClaims("a1", "root"), testIssuer, testKey, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Fatalf("expiry too soon: %s", exp)
	}
	claims, err := Parse(token, testKey, testIssuer)
	if err != nil {
		t.Fatal(err)
	}
	if claims.AdminID != "a1" || claims.Username != "root" || !claims.IsAdmin || claims.Role != RoleAdmin {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := Parse(token, "other-key", testIssuer); err == nil {
		t.Fatal("wrong key accepted")
	}
	if _, err := Parse(token, testKey, "someone-else"); err == nil {
		t.Fatal("wrong issuer accepted")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, _, err := Issue(AdminClaims("a1", "root"), testIssuer, testKey, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(token, testKey, testIssuer); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestMemberID(t *testing.T) {
	token, _, err := Issue(MemberClaims("user-7"), testIssuer, testKey, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	id, err := MemberID(token, testKey, testIssuer)
	if err != nil || id != "user-7" {
		t.Fatalf("MemberID = %q, %v", id, err)
	}

	adminToken, _, _ := Issue(AdminClaims("a1", "root"), testIssuer, testKey, time.Hour)
	if _, err := MemberID(adminToken, testKey, testIssuer); err == nil {
		t.Fatal("admin token accepted as member token")
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword("s3cret", hash) {
		t.Fatal("correct password rejected")
	}
	if CheckPassword("S3cret", hash) {
		t.Fatal("wrong password accepted")
	}
	if _, err := HashPassword(""); err == nil {
		t.Fatal("empty password hashed")
	}
}

func newRouter(ck Cookie) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/private", AdminAuth(ck), func(c *gin.Context) {
		claims, ok := CurrentAdmin(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, claims.Username)
	})
	return r
}

func TestAdminAuth(t *testing.T) {
	ck := Cookie{Name: "admin_session", SigningKey: testKey, Issuer: testIssuer}
	r := newRouter(ck)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no cookie: status %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(&http.Cookie{Name: ck.Name, Value: "garbage"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad cookie: status %d", w.Code)
	}
	if sc := w.Header().Get("Set-Cookie"); !strings.Contains(sc, ck.Name+"=;") {
		t.Fatalf("bad cookie not cleared: %q", sc)
	}

	member, _, _ := Issue(MemberClaims("u1"), testIssuer, testKey, time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(&http.Cookie{Name: ck.Name, Value: member})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("member token: status %d", w.Code)
	}

	token, _, _ := Issue(AdminClaims("a1", "root"), testIssuer, testKey, time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(&http.Cookie{Name: ck.Name, Value: token})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "root" {
		t.Fatalf("valid cookie: %d %q", w.Code, w.Body.String())
	}
}

func TestBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if got := BearerToken(c); got != "" {
		t.Fatalf("no header: %q", got)
	}
	c.Request.Header.Set("Authorization", "Bearer abc.def")
	if got := BearerToken(c); got != "abc.def" {
		t.Fatalf("bearer = %q", got)
	}
	c.Request.Header.Set("Authorization", "Basic xyz")
	if got := BearerToken(c); got != "" {
		t.Fatalf("basic = %q", got)
	}
}
