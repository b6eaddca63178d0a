package handler

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/admin"
	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/metrics"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login verifies credentials and sets the admin session cookie. Failed logins never set a cookie.
func (h *Handler) Login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	a, created, err := h.admins.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, admin.ErrInvalidCredentials) {
			metrics.AdminLogins.WithLabelValues("denied").Inc()
		}
		fail(c, err)
		return
	}

	token, exp, err := auth.Issue(auth.AdminClaims(a.ID, a.Username), h.cfg.Cookie.Issuer, h.cfg.Cookie.SigningKey, h.cfg.AdminTTL)
	if err != nil {
		fail(c, err)
		return
	}
	h.cfg.Cookie.Set(c, token, exp)

	result := "ok"
	if created {
		result = "bootstrap"
	}
	metrics.AdminLogins.WithLabelValues(result).Inc()
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"admin":   gin.H{"id": a.ID, "username": a.Username},
	})
}

func (h *Handler) Logout(c *gin.Context) {
	h.cfg.Cookie.Clear(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// Me echoes the verified cookie claims.
func (h *Handler) Me(c *gin.Context) {
	claims, _ := auth.CurrentAdmin(c)
	c.JSON(http.StatusOK, gin.H{"id": claims.AdminID, "username": claims.Username, "isAdmin": claims.IsAdmin})
}

func (h *Handler) ListAdmins(c *gin.Context) {
	admins, err := h.admins.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admins": admins})
}

func (h *Handler) CreateAdmin(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	a, err := h.admins.Create(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Admin created successfully", "admin": a})
}

func (h *Handler) DeleteAdmin(c *gin.Context) {
	if err := h.admins.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Admin deleted successfully"})
}

type settingsRequest struct {
	SessionDuration           *float64 `json:"sessionDuration"`
	DefaultSessionName        *string  `json:"defaultSessionName"`
	DefaultSessionDescription *string  `json:"defaultSessionDescription"`
}

func (h *Handler) GetSettings(c *gin.Context) {
	s, err := h.svc.Settings(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionDuration == nil {
		badRequest(c, "session duration must be a number greater than 0")
		return
	}
	minutes := *req.SessionDuration
	if minutes != math.Trunc(minutes) || minutes < 1 || minutes > attendance.MaxDurationMinutes {
		badRequest(c, fmt.Sprintf("session duration must be a whole number of minutes between 1 and %d", attendance.MaxDurationMinutes))
		return
	}
	s, err := h.svc.UpdateSettings(c.Request.Context(), attendance.SettingsUpdate{
		SessionDuration:           int(minutes),
		DefaultSessionName:        req.DefaultSessionName,
		DefaultSessionDescription: req.DefaultSessionDescription,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Settings updated successfully", "settings": s})
}

// StartWindow opens today's attendance window.
func (h *Handler) StartWindow(c *gin.Context) {
	claims, _ := auth.CurrentAdmin(c)
	w, err := h.svc.StartWindow(c.Request.Context(), claims.AdminID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Attendance session started", "session": w.View(h.svc.Now())})
}

// ListWindows lists windows for ?date=YYYY-MM-DD (UTC), defaulting to today.
func (h *Handler) ListWindows(c *gin.Context) {
	day := h.svc.Now()
	if v := c.Query("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			badRequest(c, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}
	windows, err := h.svc.ListWindows(c.Request.Context(), day)
	if err != nil {
		fail(c, err)
		return
	}
	now := h.svc.Now()
	views := make([]attendance.AttendanceSessionView, 0, len(windows))
	for _, w := range windows {
		views = append(views, w.View(now))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views})
}
