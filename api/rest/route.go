package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thomaswakin/SystemAdept-sub000/game/runtime"
	mw "github.com/thomaswakin/SystemAdept-sub000/middleware"
)

// RouteHandler serves the routing tuple the client UI navigates by.
type RouteHandler struct {
	rt *runtime.Manager
}

// NewRouteHandler creates a RouteHandler.
func NewRouteHandler(rt *runtime.Manager) *RouteHandler {
	return &RouteHandler{rt: rt}
}

// Get handles GET /api/route. Asking for the route is what boots the user's
// engine session, so the first call may report decided=false until both
// watch streams have delivered.
func (h *RouteHandler) Get(c *gin.Context) {
	sess := h.rt.Ensure(mw.GetUserID(c))
	d, decided := sess.Router.Current()
	c.JSON(http.StatusOK, gin.H{
		"tab":     d.Tab,
		"page":    d.Page,
		"banner":  d.Banner,
		"decided": decided,
	})
}
