package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
)

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CreateUser is the public self-registration endpoint.
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	u, err := h.svc.CreateUser(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		fail(c, err)
		return
	}
	token, err := h.issueMember(u.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":   "User created successfully",
		"userId":    u.ID,
		"name":      u.Name,
		"userToken": token,
	})
}

// GetUser returns the public summary of a member.
func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.svc.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":       u.ID,
		"name":         u.Name,
		"totalLogins":  u.TotalLogins,
		"totalMinutes": u.TotalMinutes,
	})
}

// adminUser is the admin view of a member, with the penalty derived from missed days.
type adminUser struct {
	attendance.User
	Penalty int `json:"penalty"`
}

func withPenalty(u attendance.User) adminUser {
	return adminUser{User: u, Penalty: attendance.Penalty(u.MissedAttendance)}
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]adminUser, 0, len(users))
	for _, u := range users {
		out = append(out, withPenalty(u))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

func (h *Handler) AdminCreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	u, err := h.svc.CreateUser(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user": withPenalty(u)})
}

func (h *Handler) AdminGetUser(c *gin.Context) {
	u, err := h.svc.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, withPenalty(u))
}

type updateUserRequest struct {
	Name             *string `json:"name"`
	Email            *string `json:"email"`
	MissedAttendance *int    `json:"missedAttendance"`
}

func (h *Handler) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	u, err := h.svc.UpdateUser(c.Request.Context(), c.Param("id"), attendance.UserUpdate{
		Name:             req.Name,
		Email:            req.Email,
		MissedAttendance: req.MissedAttendance,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User updated successfully", "user": withPenalty(u)})
}

func (h *Handler) DeleteUser(c *gin.Context) {
	if err := h.svc.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

func (h *Handler) ResetUser(c *gin.Context) {
	if err := h.svc.ResetUser(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User attendance reset successfully"})
}

func (h *Handler) UserStats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
