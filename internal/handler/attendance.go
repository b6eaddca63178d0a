package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/metrics"
)

type markRequest struct {
	Name      string `json:"name"`
	UserToken string `json:"userToken"`
}

// MarkAttendance records the caller in a session. The response carries a fresh
// member token so later marks in closed sessions can prove identity.
func (h *Handler) MarkAttendance(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.Marks.WithLabelValues(metrics.MarkRejected).Inc()
		badRequest(c, "invalid request body")
		return
	}

	res, err := h.svc.Mark(c.Request.Context(), attendance.MarkRequest{
		SessionID: c.Param("sessionId"),
		Name:      req.Name,
		UserID:    h.memberID(c, req.UserToken),
	})
	if err != nil {
		metrics.Marks.WithLabelValues(markResult(err)).Inc()
		fail(c, err)
		return
	}
	metrics.Marks.WithLabelValues(metrics.MarkRecorded).Inc()

	token, err := h.issueMember(res.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Attendance marked successfully",
		"userId":    res.UserID,
		"name":      res.Name,
		"userToken": token,
		"attendee":  res.Attendee,
	})
}

func markResult(err error) string {
	switch {
	case errors.Is(err, attendance.ErrAlreadyMarked):
		return metrics.MarkDuplicate
	case errors.Is(err, attendance.ErrSessionExpired):
		return metrics.MarkExpired
	case errors.Is(err, attendance.ErrNotFound):
		return metrics.MarkNotFound
	case attendance.IsValidation(err), errors.Is(err, attendance.ErrNotRegistered):
		return metrics.MarkRejected
	default:
		return metrics.MarkFailed
	}
}

// PublicSession lets the attendance page show the window state.
func (h *Handler) PublicSession(c *gin.Context) {
	sess, err := h.svc.GetSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View(h.svc.Now()))
}

func (h *Handler) History(c *gin.Context) {
	logins, err := h.svc.History(c.Request.Context(), c.Query("userId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": logins})
}
