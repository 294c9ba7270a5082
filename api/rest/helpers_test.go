package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thomaswakin/SystemAdept-sub000/api/rest"
	"github.com/thomaswakin/SystemAdept-sub000/audit"
	"github.com/thomaswakin/SystemAdept-sub000/config"
	"github.com/thomaswakin/SystemAdept-sub000/game/assign"
	"github.com/thomaswakin/SystemAdept-sub000/game/catalog"
	"github.com/thomaswakin/SystemAdept-sub000/game/lifecycle"
	"github.com/thomaswakin/SystemAdept-sub000/game/runtime"
	"github.com/thomaswakin/SystemAdept-sub000/game/sweep"
	"github.com/thomaswakin/SystemAdept-sub000/game/timewin"
	mw "github.com/thomaswakin/SystemAdept-sub000/middleware"
	"github.com/thomaswakin/SystemAdept-sub000/scheduler"
	"github.com/thomaswakin/SystemAdept-sub000/store"
	"github.com/thomaswakin/SystemAdept-sub000/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	router *gin.Engine
	store  *store.Store
	token  string
}

func f64(v float64) *float64 { return &v }

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]*catalog.SystemDef{
		{
			ID:             "sys_a",
			Name:           "System A",
			TimeToComplete: &catalog.Window{Amount: 1, Unit: timewin.UnitDay},
			DebuffFactor:   f64(0.5),
			Quests: []catalog.QuestDef{
				{ID: "q1", Name: "Quest One", Rank: 1, Aura: 100},
				{ID: "q2", Name: "Quest Two", Rank: 2, Aura: 200},
			},
		},
	}, 24*time.Hour)
	require.NoError(t, err)
	return c
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	db := testutil.SetupTestDB(t)
	kv, ps := testutil.SetupTestCache(t)
	st := store.New(db, ps, logger)
	aud := audit.New(db, logger)
	t.Cleanup(func() { aud.Stop(context.Background()) })

	cat := testCatalog(t)
	lc := lifecycle.NewService(st, cat, aud, logger)
	as := assign.NewService(st, cat, aud, logger)
	sweeper := sweep.New(st, lc, logger)
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	engineCfg := config.EngineConfig{
		SweepInterval:   time.Minute,
		NotifyDebounce:  50 * time.Millisecond,
		ExpiryAlertLead: time.Hour,
		WakeSpacing:     15 * time.Minute,
		DefaultTTL:      24 * time.Hour,
	}
	rt := runtime.NewManager(st, cat, sweeper, sched, ps, kv, engineCfg, logger)
	t.Cleanup(rt.StopAll)

	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: 72 * time.Hour}

	authH := rest.NewAuthHandler(db, kv, sec)
	questH := rest.NewQuestHandler(st, cat, lc, as, logger)
	assignH := rest.NewAssignmentHandler(st, cat, as)
	profileH := rest.NewProfileHandler(st)
	routeH := rest.NewRouteHandler(rt)
	adminH := rest.NewAdminHandler(st, sweeper, sched, rt, logger)

	r := gin.New()
	api := r.Group("/api")
	{
		api.POST("/auth/login", authH.Login)
		api.POST("/auth/logout", mw.Auth(sec, kv), authH.Logout)

		authed := api.Group("", mw.Auth(sec, kv))
		authed.GET("/route", routeH.Get)
		authed.GET("/quests", questH.List)
		authed.POST("/quests/:id/complete", questH.Complete)
		authed.POST("/quests/:id/restart", questH.Restart)
		authed.GET("/systems", assignH.Systems)
		authed.GET("/assignments", assignH.List)
		authed.POST("/assignments", assignH.Create)
		authed.POST("/assignments/:id/pause", assignH.Pause)
		authed.POST("/assignments/:id/resume", assignH.Resume)
		authed.POST("/assignments/:id/stop", assignH.Stop)
		authed.GET("/profile", profileH.Get)
		authed.PUT("/profile/rest-cycle", profileH.UpdateRestCycle)

		adminG := api.Group("/admin", mw.AdminAuth("test-admin-key"))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.POST("/sweep", adminH.ForceSweep)
		adminG.GET("/notifications/:user_id", adminH.PendingNotifications)
	}

	env := &testEnv{router: r, store: st}
	env.token = loginAndGetToken(t, r, "quester", "testpass")
	return env
}

func doRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var b []byte
	if body != nil {
		b, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doRequestAdmin(env *testEnv, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Admin-Key", "test-admin-key")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func loginAndGetToken(t *testing.T, r *gin.Engine, user, pass string) string {
	t.Helper()
	w := doRequest(r, http.MethodPost, "/api/auth/login", map[string]string{"username": user, "password": pass}, "")
	require.Equal(t, http.StatusOK, w.Code, "login failed: %s", w.Body.String())
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["token"].(string)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}
