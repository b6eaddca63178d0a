package handler

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/metrics"
	"rollcall/internal/report"
)

type createSessionRequest struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Duration          int      `json:"duration"` // minutes
	IsOpen            *bool    `json:"isOpen"`
	ExpectedAttendees []string `json:"expectedAttendees"`
}

func (h *Handler) ListSessions(c *gin.Context) {
	limit := attendance.MaxSessionList
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	sessions, err := h.svc.ListSessions(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	now := h.svc.Now()
	views := make([]attendance.SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, s.View(now))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views})
}

func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "duration must be a number of minutes")
		return
	}
	claims, _ := auth.CurrentAdmin(c)
	sess, err := h.svc.CreateSession(c.Request.Context(), attendance.NewSession{
		Name:              req.Name,
		Description:       req.Description,
		DurationMinutes:   req.Duration,
		IsOpen:            req.IsOpen,
		ExpectedAttendees: req.ExpectedAttendees,
	}, claims.AdminID)
	if err != nil {
		fail(c, err)
		return
	}
	metrics.SessionsCreated.Inc()
	c.JSON(http.StatusCreated, gin.H{"message": "Session created successfully", "session": sess.View(h.svc.Now())})
}

func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.svc.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View(h.svc.Now()))
}

func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.svc.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session deleted successfully"})
}

func (h *Handler) Roster(c *gin.Context) {
	r, err := h.svc.Roster(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// ExportRoster downloads the roster as xlsx (default) or csv.
func (h *Handler) ExportRoster(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", report.FormatXLSX))
	if format != report.FormatXLSX && format != report.FormatCSV {
		badRequest(c, "format must be xlsx or csv")
		return
	}
	r, err := h.svc.Roster(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	// render fully before writing headers so a failure can still produce a JSON error
	var buf bytes.Buffer
	if err := report.Write(&buf, r, format); err != nil {
		fail(c, fmt.Errorf("export roster: %w", err))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(r, format)))
	c.Data(http.StatusOK, report.ContentType(format), buf.Bytes())
}

// LiveRoster upgrades to a websocket streaming new attendees of the session.
func (h *Handler) LiveRoster(c *gin.Context) {
	sess, err := h.svc.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.hub.Serve(c.Writer, c.Request, sess.ID); err != nil {
		// the upgrader has already written an HTTP error
		log.Printf("live roster %s: %v", sess.ID, err)
	}
}
