package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thomaswakin/SystemAdept-sub000/game/assign"
	"github.com/thomaswakin/SystemAdept-sub000/game/catalog"
	"github.com/thomaswakin/SystemAdept-sub000/game/lifecycle"
	mw "github.com/thomaswakin/SystemAdept-sub000/middleware"
	"github.com/thomaswakin/SystemAdept-sub000/store"
)

// AssignmentHandler handles quest-system browsing and assignment REST
// endpoints.
type AssignmentHandler struct {
	st  *store.Store
	cat *catalog.Catalog
	as  *assign.Service
}

// NewAssignmentHandler creates an AssignmentHandler.
func NewAssignmentHandler(st *store.Store, cat *catalog.Catalog, as *assign.Service) *AssignmentHandler {
	return &AssignmentHandler{st: st, cat: cat, as: as}
}

// Systems handles GET /api/systems: the catalog of selectable quest systems.
func (h *AssignmentHandler) Systems(c *gin.Context) {
	type systemView struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Quests int    `json:"quests"`
	}
	systems := h.cat.Systems()
	views := make([]systemView, 0, len(systems))
	for _, s := range systems {
		views = append(views, systemView{
			ID:     s.ID,
			Name:   s.Name,
			Quests: len(s.Quests),
		})
	}
	c.JSON(http.StatusOK, gin.H{"systems": views})
}

// List handles GET /api/assignments.
func (h *AssignmentHandler) List(c *gin.Context) {
	assignments, err := h.st.AssignmentsByUser(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": assignments})
}

type createAssignmentRequest struct {
	SystemID string `json:"system_id" binding:"required"`
}

// Create handles POST /api/assignments: select a quest system.
func (h *AssignmentHandler) Create(c *gin.Context) {
	var req createAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, err := h.as.Select(c.Request.Context(), mw.GetUserID(c), req.SystemID)
	switch {
	case errors.Is(err, assign.ErrUnknownSystem):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown system"})
		return
	case errors.Is(err, assign.ErrAlreadyAssigned):
		c.JSON(http.StatusConflict, gin.H{"error": "system already assigned"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"assignment": a})
}

func (h *AssignmentHandler) command(c *gin.Context, fn func(c *gin.Context) error) {
	err := fn(c)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "assignment not found"})
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "illegal assignment state"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// Pause handles POST /api/assignments/:id/pause.
func (h *AssignmentHandler) Pause(c *gin.Context) {
	h.command(c, func(c *gin.Context) error {
		return h.as.Pause(c.Request.Context(), mw.GetUserID(c), c.Param("id"))
	})
}

// Resume handles POST /api/assignments/:id/resume.
func (h *AssignmentHandler) Resume(c *gin.Context) {
	h.command(c, func(c *gin.Context) error {
		return h.as.Resume(c.Request.Context(), mw.GetUserID(c), c.Param("id"))
	})
}

// Stop handles POST /api/assignments/:id/stop.
func (h *AssignmentHandler) Stop(c *gin.Context) {
	h.command(c, func(c *gin.Context) error {
		return h.as.Stop(c.Request.Context(), mw.GetUserID(c), c.Param("id"))
	})
}
