package rest_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/thomaswakin/SystemAdept-sub000/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selectSystem(t *testing.T, env *testEnv) string {
	t.Helper()
	w := doRequest(env.router, http.MethodPost, "/api/assignments",
		map[string]string{"system_id": "sys_a"}, env.token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decodeBody(t, w)
	return resp["assignment"].(map[string]interface{})["id"].(string)
}

func questInstance(t *testing.T, env *testEnv, assignmentID, questID string) *model.QuestProgress {
	t.Helper()
	instances, err := env.store.ProgressByAssignment(context.Background(), assignmentID)
	require.NoError(t, err)
	for i := range instances {
		if instances[i].QuestID == questID {
			return &instances[i]
		}
	}
	t.Fatalf("no instance for quest %s", questID)
	return nil
}

func TestListQuests_JoinedOrderedView(t *testing.T) {
	env := newEnv(t)
	selectSystem(t, env)

	w := doRequest(env.router, http.MethodGet, "/api/quests", nil, env.token)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)

	quests := resp["quests"].([]interface{})
	require.Len(t, quests, 2)

	first := quests[0].(map[string]interface{})
	assert.Equal(t, "Quest One", first["quest_name"])
	assert.Equal(t, "System A", first["system_name"])
	assert.Equal(t, model.ProgressAvailable, first["status"])

	second := quests[1].(map[string]interface{})
	assert.Equal(t, "Quest Two", second["quest_name"])
	assert.Equal(t, model.ProgressLocked, second["status"])
}

func TestListQuests_RequiresAuth(t *testing.T) {
	env := newEnv(t)
	w := doRequest(env.router, http.MethodGet, "/api/quests", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCompleteQuest_GrantsAura(t *testing.T) {
	env := newEnv(t)
	aid := selectSystem(t, env)
	p := questInstance(t, env, aid, "q1")

	w := doRequest(env.router, http.MethodPost, "/api/quests/"+p.ID+"/complete", nil, env.token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody(t, w)
	assert.Equal(t, float64(100), resp["aura_granted"])

	profile, err := env.store.Profile(context.Background(), p.UserID)
	require.NoError(t, err)
	assert.Equal(t, float64(100), profile.Aura)
}

func TestCompleteQuest_TwiceConflicts(t *testing.T) {
	env := newEnv(t)
	aid := selectSystem(t, env)
	p := questInstance(t, env, aid, "q1")

	w := doRequest(env.router, http.MethodPost, "/api/quests/"+p.ID+"/complete", nil, env.token)
	require.Equal(t, http.StatusOK, w.Code)
	w = doRequest(env.router, http.MethodPost, "/api/quests/"+p.ID+"/complete", nil, env.token)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCompleteQuest_UnknownInstance(t *testing.T) {
	env := newEnv(t)
	w := doRequest(env.router, http.MethodPost, "/api/quests/nope/complete", nil, env.token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompleteQuest_UnlocksNextRank(t *testing.T) {
	env := newEnv(t)
	aid := selectSystem(t, env)
	p := questInstance(t, env, aid, "q1")

	w := doRequest(env.router, http.MethodPost, "/api/quests/"+p.ID+"/complete", nil, env.token)
	require.Equal(t, http.StatusOK, w.Code)

	next := questInstance(t, env, aid, "q2")
	assert.Equal(t, model.ProgressLocked, next.Status)
	require.NotNil(t, next.AvailableAt, "completing a rank schedules the next rank's unlock")
	assert.WithinDuration(t, time.Now(), *next.AvailableAt, 5*time.Second)
}

func TestRestartQuest_OnlyFromFailed(t *testing.T) {
	env := newEnv(t)
	aid := selectSystem(t, env)
	p := questInstance(t, env, aid, "q1")

	// Still available: restart must be rejected.
	w := doRequest(env.router, http.MethodPost, "/api/quests/"+p.ID+"/restart", nil, env.token)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Fail it, then restart succeeds with failedCount carried.
	require.NoError(t, env.store.UpdateProgressFields(context.Background(), p.ID, p.UserID,
		map[string]interface{}{"status": model.ProgressFailed, "failed_at": time.Now(), "failed_count": 2}))

	w = doRequest(env.router, http.MethodPost, "/api/quests/"+p.ID+"/restart", nil, env.token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody(t, w)
	fresh := resp["instance"].(map[string]interface{})
	assert.Equal(t, model.ProgressAvailable, fresh["status"])
	assert.Equal(t, float64(2), fresh["failed_count"])
	assert.NotEqual(t, p.ID, fresh["id"])
}
