package storemanager

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

func TestMaintenanceLifecycle(t *testing.T) {
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	m := newMaintenance(func() time.Time { return clock })

	require.NoError(t, m.begin(OpReindexing))
	assert.ErrorIs(t, m.begin(OpReindexing), ErrMaintenanceInProgress)
	require.NoError(t, m.begin(OpCleanup), "operations are tracked independently")

	m.progress(OpReindexing, 0.25)
	snap := m.snapshot()
	assert.True(t, snap.Reindexing.InProgress)
	assert.Equal(t, 0.25, snap.Reindexing.Progress)
	assert.Equal(t, clock, snap.Reindexing.StartedAt)

	m.progress(OpReindexing, 7)
	assert.Equal(t, 1.0, m.snapshot().Reindexing.Progress)

	clock = clock.Add(time.Minute)
	m.end(OpReindexing, errors.New("store unreachable"))
	snap = m.snapshot()
	assert.False(t, snap.Reindexing.InProgress)
	assert.Equal(t, "store unreachable", snap.Reindexing.LastError)
	assert.Equal(t, clock, snap.Reindexing.CompletedAt)

	require.NoError(t, m.begin(OpReindexing))
	assert.Equal(t, "store unreachable", m.snapshot().Reindexing.LastError, "kept until the next success")
	m.end(OpReindexing, nil)
	assert.Empty(t, m.snapshot().Reindexing.LastError)
	assert.Equal(t, 1.0, m.snapshot().Reindexing.Progress)
}

func TestMaintenanceSnapshotIsCopy(t *testing.T) {
	m := newMaintenance(time.Now)
	snap := m.snapshot()
	snap.Clustering.InProgress = true
	assert.False(t, m.snapshot().Clustering.InProgress)
}

func TestBackupLogBounded(t *testing.T) {
	log := newBackupLog(2)
	doc := &vectorstore.Document{ID: "doc-1", Content: "abc", Metadata: vectorstore.Metadata{"v": 1}}
	now := time.Now()

	for i := 0; i < 3; i++ {
		log.record(doc, now)
	}
	doc.Metadata["v"] = 2

	got := log.list("doc-1")
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Version)
	assert.Equal(t, 3, got[1].Version)
	assert.Equal(t, 3, got[1].ContentLength)
	assert.Equal(t, 1, got[1].Metadata["v"], "metadata is copied")
	assert.Empty(t, log.list("other"))
}
