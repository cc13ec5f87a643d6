package cli

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"contest-lifecycle/internal/models"
	"contest-lifecycle/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testRoot(t *testing.T, db *gorm.DB, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand(&RootOptions{
		open:  func() (*gorm.DB, error) { return db, nil },
		clock: func() time.Time { return testutil.Base },
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--operator", "ops"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"status", "force-lock", "force-live", "cancel", "mark-error",
		"resolve-error", "settle", "cancel-template", "reconcile",
	}

	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := testRoot(t, db, "--format", "yaml", "reconcile")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestReconcileCommand(t *testing.T) {
	db := testutil.NewDB(t)
	tmpl := testutil.CreateTemplate(t, db)
	inst := testutil.CreateInstance(t, db, tmpl, models.ContestStatusScheduled, testutil.Schedule(0, time.Hour, 2*time.Hour))

	out, err := testRoot(t, db, "reconcile", "--now", "2026-01-10T18:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, "reconciled at 2026-01-10T18:30:00Z: locked=1 live=0 completed=0\n", out)
	assert.Equal(t, models.ContestStatusLocked, testutil.Reload(t, db, inst.ID).Status)

	_, err = testRoot(t, db, "reconcile", "--now", "yesterday")
	assert.Error(t, err)
}

func TestAdminCommands(t *testing.T) {
	db := testutil.NewDB(t)
	tmpl := testutil.CreateTemplate(t, db)
	inst := testutil.CreateInstance(t, db, tmpl, models.ContestStatusScheduled, testutil.Schedule(time.Hour, 2*time.Hour, 3*time.Hour))
	id := inst.ID.String()

	out, err := testRoot(t, db, "force-lock", id)
	require.NoError(t, err)
	assert.Contains(t, out, "SCHEDULED -> LOCKED  (ADMIN)")

	out, err = testRoot(t, db, "force-lock", id)
	require.NoError(t, err)
	assert.Contains(t, out, "unchanged (LOCKED)")

	_, err = testRoot(t, db, "mark-error", id, "--reason", "bad feed")
	require.NoError(t, err)

	_, err = testRoot(t, db, "resolve-error", id)
	assert.Error(t, err, "--target is required")

	out, err = testRoot(t, db, "--format", "json", "resolve-error", id, "--target", "CANCELLED")
	require.NoError(t, err)
	var res struct {
		Transitions []struct {
			To string `json:"to"`
		} `json:"transitions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, "CANCELLED", res.Transitions[0].To)

	out, err = testRoot(t, db, "status", id)
	require.NoError(t, err)
	assert.Contains(t, out, "status:   CANCELLED")

	_, err = testRoot(t, db, "cancel", "not-a-uuid")
	assert.Error(t, err)

	var logs int64
	require.NoError(t, db.Model(&models.AdminLog{}).Where("operator = ?", "ops").Count(&logs).Error)
	assert.EqualValues(t, 4, logs)
}
