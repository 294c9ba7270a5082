package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/thomaswakin/SystemAdept-sub000/game/runtime"
	"github.com/thomaswakin/SystemAdept-sub000/game/sweep"
	"github.com/thomaswakin/SystemAdept-sub000/scheduler"
	"github.com/thomaswakin/SystemAdept-sub000/store"
	"go.uber.org/zap"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	st      *store.Store
	sweeper *sweep.Sweeper
	sched   *scheduler.Scheduler
	rt      *runtime.Manager
	logger  *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(st *store.Store, sweeper *sweep.Sweeper, sched *scheduler.Scheduler,
	rt *runtime.Manager, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{st: st, sweeper: sweeper, sched: sched, rt: rt, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"engine_sessions": h.rt.Count(),
		"scheduler_tasks": h.sched.ListTickers(),
	})
}

// ForceSweep reconciles every active assignment immediately.
// POST /api/admin/sweep
func (h *AdminHandler) ForceSweep(c *gin.Context) {
	ctx := c.Request.Context()
	assignments, err := h.st.ActiveAssignments(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	var expired, failed int
	for i := range assignments {
		a := &assignments[i]
		instances, err := h.st.ProgressByAssignment(ctx, a.ID)
		if err != nil {
			h.logger.Warn("force sweep fetch failed",
				zap.String("assignment_id", a.ID), zap.Error(err))
			failed++
			continue
		}
		e, f := h.sweeper.Reconcile(ctx, instances)
		expired += e
		failed += f
	}

	h.logger.Info("force sweep done",
		zap.Int("assignments", len(assignments)),
		zap.Int("expired", expired),
		zap.Int("failed", failed))
	c.JSON(http.StatusOK, gin.H{
		"assignments": len(assignments),
		"expired":     expired,
		"failed":      failed,
	})
}

// PendingNotifications lists a user's pending notification IDs.
// GET /api/admin/notifications/:user_id
func (h *AdminHandler) PendingNotifications(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	sess := h.rt.Get(userID)
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live session for user"})
		return
	}
	pending, err := sess.Host.ListPending(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending})
}
