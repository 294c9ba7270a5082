package rest

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thomaswakin/SystemAdept-sub000/game/assign"
	"github.com/thomaswakin/SystemAdept-sub000/game/catalog"
	"github.com/thomaswakin/SystemAdept-sub000/game/lifecycle"
	mw "github.com/thomaswakin/SystemAdept-sub000/middleware"
	"github.com/thomaswakin/SystemAdept-sub000/model"
	"github.com/thomaswakin/SystemAdept-sub000/store"
	"go.uber.org/zap"
)

// questView is the flattened active-quest record served to clients.
type questView struct {
	InstanceID     string     `json:"instance_id"`
	SystemName     string     `json:"system_name"`
	QuestName      string     `json:"quest_name"`
	Rank           int        `json:"rank"`
	Status         string     `json:"status"`
	AvailableAt    *time.Time `json:"available_at,omitempty"`
	ExpirationTime *time.Time `json:"expiration_time,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	FailedCount    int        `json:"failed_count"`
}

// QuestHandler handles quest instance REST endpoints.
type QuestHandler struct {
	st     *store.Store
	cat    *catalog.Catalog
	lc     *lifecycle.Service
	as     *assign.Service
	logger *zap.Logger
}

// NewQuestHandler creates a QuestHandler.
func NewQuestHandler(st *store.Store, cat *catalog.Catalog, lc *lifecycle.Service, as *assign.Service, logger *zap.Logger) *QuestHandler {
	return &QuestHandler{st: st, cat: cat, lc: lc, as: as, logger: logger}
}

// List handles GET /api/quests: the joined view over the user's live
// assignments and instances, ordered by system then rank. Instances whose
// quest or assignment is unknown are skipped, not fatal.
func (h *QuestHandler) List(c *gin.Context) {
	userID := mw.GetUserID(c)
	ctx := c.Request.Context()

	assignments, err := h.st.AssignmentsByUser(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	live := make(map[string]string) // assignment ID -> system display name
	for i := range assignments {
		a := &assignments[i]
		if a.Status == model.AssignmentActive || a.Status == model.AssignmentPaused {
			live[a.ID] = a.Name
		}
	}

	instances, err := h.st.ProgressByUser(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	views := make([]questView, 0, len(instances))
	for i := range instances {
		p := &instances[i]
		systemName, ok := live[p.AssignmentID]
		if !ok {
			continue
		}
		quest, _ := h.cat.Quest(p.QuestID)
		if quest == nil {
			h.logger.Warn("instance references unknown quest",
				zap.String("instance_id", p.ID), zap.String("quest_id", p.QuestID))
			continue
		}
		views = append(views, questView{
			InstanceID:     p.ID,
			SystemName:     systemName,
			QuestName:      quest.Name,
			Rank:           quest.Rank,
			Status:         p.Status,
			AvailableAt:    p.AvailableAt,
			ExpirationTime: p.ExpirationTime,
			CompletedAt:    p.CompletedAt,
			FailedCount:    p.FailedCount,
		})
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].SystemName != views[j].SystemName {
			return views[i].SystemName < views[j].SystemName
		}
		if views[i].Rank != views[j].Rank {
			return views[i].Rank < views[j].Rank
		}
		return views[i].QuestName < views[j].QuestName
	})

	c.JSON(http.StatusOK, gin.H{"quests": views})
}

// owned loads an instance and checks it belongs to the caller.
func (h *QuestHandler) owned(c *gin.Context) *model.QuestProgress {
	userID := mw.GetUserID(c)
	p, err := h.st.Progress(c.Request.Context(), c.Param("id"))
	if err != nil || p.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "quest not found"})
		return nil
	}
	return p
}

// Complete handles POST /api/quests/:id/complete.
func (h *QuestHandler) Complete(c *gin.Context) {
	p := h.owned(c)
	if p == nil {
		return
	}
	ctx := c.Request.Context()

	aura, err := h.lc.Complete(ctx, p.ID)
	switch {
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "quest not completable"})
		return
	case errors.Is(err, lifecycle.ErrRecordMalformed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "quest record malformed"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if err := h.as.Reconcile(ctx, p.AssignmentID); err != nil {
		// The next reconciliation pass picks this up; the completion stands.
		h.logger.Warn("post-complete reconcile failed",
			zap.String("assignment_id", p.AssignmentID), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"aura_granted": aura})
}

// Restart handles POST /api/quests/:id/restart.
func (h *QuestHandler) Restart(c *gin.Context) {
	p := h.owned(c)
	if p == nil {
		return
	}
	ctx := c.Request.Context()

	fresh, err := h.lc.Restart(ctx, p.ID)
	switch {
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "only failed quests can be restarted"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if err := h.as.Reconcile(ctx, p.AssignmentID); err != nil {
		h.logger.Warn("post-restart reconcile failed",
			zap.String("assignment_id", p.AssignmentID), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"instance": fresh})
}
