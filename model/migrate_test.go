package model_test

import (
	"testing"
	"time"

	"github.com/thomaswakin/SystemAdept-sub000/model"
	"github.com/thomaswakin/SystemAdept-sub000/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// Account
	acc := &model.Account{Username: "test_user", PasswordHash: "hash", Status: 1}
	require.NoError(t, db.Create(acc).Error)
	assert.Greater(t, acc.ID, int64(0))

	var found model.Account
	require.NoError(t, db.First(&found, acc.ID).Error)
	assert.Equal(t, "test_user", found.Username)

	// UserProfile
	profile := &model.UserProfile{UserID: acc.ID, Aura: 50}
	require.NoError(t, db.Create(profile).Error)

	var gotProfile model.UserProfile
	require.NoError(t, db.First(&gotProfile, "user_id = ?", acc.ID).Error)
	assert.Equal(t, 22, gotProfile.RestStartHour)
	assert.Equal(t, 6, gotProfile.RestEndHour)

	// ActiveSystemAssignment
	a := &model.ActiveSystemAssignment{
		ID:       "assign-001",
		UserID:   acc.ID,
		SystemID: "sys_a",
		Name:     "System A",
		Status:   model.AssignmentActive,
	}
	require.NoError(t, db.Create(a).Error)

	// QuestProgress
	exp := time.Now().Add(24 * time.Hour)
	p := &model.QuestProgress{
		ID:             "inst-001",
		AssignmentID:   a.ID,
		UserID:         acc.ID,
		QuestID:        "q1",
		Status:         model.ProgressAvailable,
		ExpirationTime: &exp,
	}
	require.NoError(t, db.Create(p).Error)

	var instances []model.QuestProgress
	require.NoError(t, db.Where("assignment_id = ?", a.ID).Find(&instances).Error)
	assert.Len(t, instances, 1)
	assert.False(t, instances[0].Terminal())

	// AuditLog
	al := &model.AuditLog{
		TraceID: "trace-001", Action: "complete", InstanceID: p.ID,
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.Create(al).Error)
}
