// Package handler exposes the attendance service over HTTP.
package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/admin"
	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/live"
)

// Config holds the token settings the handlers need.
type Config struct {
	Cookie    auth.Cookie
	AdminTTL  time.Duration
	MemberTTL time.Duration
}

type Handler struct {
	svc    *attendance.Service
	admins *admin.Manager
	hub    *live.Hub
	cfg    Config
}

func New(svc *attendance.Service, admins *admin.Manager, hub *live.Hub, cfg Config) *Handler {
	return &Handler{svc: svc, admins: admins, hub: hub, cfg: cfg}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/attendance/:sessionId", h.MarkAttendance)
	r.GET("/attendance/history", h.History)
	r.GET("/attendance/:sessionId", h.PublicSession)
	r.POST("/users", h.CreateUser)
	r.GET("/users/:id", h.GetUser)

	r.POST("/admin/login", h.Login)
	r.POST("/admin/logout", h.Logout)

	adm := r.Group("/admin", auth.AdminAuth(h.cfg.Cookie))
	adm.GET("/me", h.Me)

	adm.GET("/sessions", h.ListSessions)
	adm.POST("/sessions", h.CreateSession)
	adm.GET("/sessions/:id", h.GetSession)
	adm.DELETE("/sessions/:id", h.DeleteSession)
	adm.GET("/sessions/:id/roster", h.Roster)
	adm.GET("/sessions/:id/export", h.ExportRoster)
	adm.GET("/sessions/:id/live", h.LiveRoster)

	adm.GET("/users", h.ListUsers)
	adm.POST("/users", h.AdminCreateUser)
	adm.GET("/users/:id", h.AdminGetUser)
	adm.PATCH("/users/:id", h.UpdateUser)
	adm.DELETE("/users/:id", h.DeleteUser)
	adm.POST("/users/:id/reset", h.ResetUser)
	adm.GET("/users/:id/stats", h.UserStats)

	adm.GET("/settings", h.GetSettings)
	adm.POST("/settings", h.UpdateSettings)

	adm.GET("/manage", h.ListAdmins)
	adm.POST("/manage", h.CreateAdmin)
	adm.DELETE("/manage/:id", h.DeleteAdmin)

	adm.POST("/attendance/start", h.StartWindow)
	adm.GET("/attendance/sessions", h.ListWindows)
}

// fail maps domain errors to status codes. Anything unrecognised is logged and
// reported as a generic 500.
func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": messageFor(err)})
}

func statusFor(err error) int {
	switch {
	case attendance.IsValidation(err),
		errors.Is(err, attendance.ErrSessionExpired),
		errors.Is(err, attendance.ErrAlreadyMarked),
		errors.Is(err, attendance.ErrNotRegistered),
		errors.Is(err, admin.ErrLastAdmin),
		errors.Is(err, admin.ErrDuplicate),
		errors.Is(err, admin.ErrMissingCredentials):
		return http.StatusBadRequest
	case errors.Is(err, admin.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, attendance.ErrNotFound), errors.Is(err, admin.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	if statusFor(err) == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		return "internal server error"
	}
	return err.Error()
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// issueMember signs a member identity token for userID.
func (h *Handler) issueMember(userID string) (string, error) {
	token, _, err := auth.Issue(auth.MemberClaims(userID), h.cfg.Cookie.Issuer, h.cfg.Cookie.SigningKey, h.cfg.MemberTTL)
	return token, err
}

// memberID returns the user named by a valid member token in the body or the
// Authorization header, or "" when none is present or it does not verify.
func (h *Handler) memberID(c *gin.Context, bodyToken string) string {
	token := bodyToken
	if token == "" {
		token = auth.BearerToken(c)
	}
	if token == "" {
		return ""
	}
	id, err := auth.MemberID(token, h.cfg.Cookie.SigningKey, h.cfg.Cookie.Issuer)
	if err != nil {
		return ""
	}
	return id
}
