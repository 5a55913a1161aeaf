package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medobsmind/obswatch/internal/alert"
	"github.com/medobsmind/obswatch/internal/config"
	"github.com/medobsmind/obswatch/internal/reporter"
	"github.com/medobsmind/obswatch/internal/store"
)

func testSetup(t *testing.T) (*config.Config, *store.DB, *atomic.Int32) {
	t.Helper()
	var posts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Ntfy.URL = server.URL
	cfg.DB.Path = filepath.Join(t.TempDir(), "alerts.db")

	db, err := store.Open(cfg.DB.Path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return cfg, db, &posts
}

func TestRaiseStoresAndNotifies(t *testing.T) {
	cfg, db, posts := testSetup(t)
	log := zap.NewNop()

	a, err := newPipeline(cfg, log, nil).Raise("MRN-0042", "clinical_observation", "high",
		"Patient looks unwell", "Clammy and confused", []string{"Review within 30 minutes"})
	require.NoError(t, err)
	require.NoError(t, db.Insert(a))

	notify(context.Background(), a, db, reporter.NewNtfy(cfg, log), cfg, nil, log)
	assert.EqualValues(t, 1, posts.Load())

	got, err := db.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, alert.TypeClinicalObservation, got.Type)
	assert.Equal(t, alert.SevHigh, got.Severity)
	assert.Nil(t, got.Score)
	assert.Equal(t, []string{"Review within 30 minutes"}, got.Recommendations)
}

func TestNotifyCooldownSuppresses(t *testing.T) {
	cfg, db, posts := testSetup(t)
	log := zap.NewNop()
	rep := reporter.NewNtfy(cfg, log)
	p := newPipeline(cfg, log, nil)

	for i := 0; i < 2; i++ {
		a, err := p.Raise("MRN-0042", "clinical_observation", "critical", "Rapid decline", "", nil)
		require.NoError(t, err)
		a.TriggeredAt = time.Now().Add(time.Duration(i) * time.Second)
		require.NoError(t, db.Insert(a))
		notify(context.Background(), a, db, rep, cfg, nil, log)
	}
	assert.EqualValues(t, 1, posts.Load())
}

func TestNotifyWhenCooldownCheckFails(t *testing.T) {
	cfg, db, posts := testSetup(t)
	log := zap.NewNop()

	a, err := newPipeline(cfg, log, nil).Raise("MRN-0042", "clinical_observation", "critical",
		"Rapid decline", "", nil)
	require.NoError(t, err)
	require.NoError(t, db.Insert(a))
	require.NoError(t, db.Close())

	notify(context.Background(), a, db, reporter.NewNtfy(cfg, log), cfg, nil, log)
	assert.EqualValues(t, 1, posts.Load())
}
