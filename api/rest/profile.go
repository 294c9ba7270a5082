package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/thomaswakin/SystemAdept-sub000/middleware"
	"github.com/thomaswakin/SystemAdept-sub000/store"
)

// ProfileHandler handles user profile REST endpoints.
type ProfileHandler struct {
	st *store.Store
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(st *store.Store) *ProfileHandler {
	return &ProfileHandler{st: st}
}

// Get handles GET /api/profile.
func (h *ProfileHandler) Get(c *gin.Context) {
	p, err := h.st.Profile(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}

type restCycleRequest struct {
	StartHour   int `json:"start_hour" binding:"min=0,max=23"`
	StartMinute int `json:"start_minute" binding:"min=0,max=59"`
	EndHour     int `json:"end_hour" binding:"min=0,max=23"`
	EndMinute   int `json:"end_minute" binding:"min=0,max=59"`
}

// UpdateRestCycle handles PUT /api/profile/rest-cycle. The store ping wakes
// the notification scheduler, which recomputes the morning reminder.
func (h *ProfileHandler) UpdateRestCycle(c *gin.Context) {
	var req restCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := mw.GetUserID(c)
	if err := h.st.UpdateProfileRest(c.Request.Context(), userID,
		req.StartHour, req.StartMinute, req.EndHour, req.EndMinute); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
