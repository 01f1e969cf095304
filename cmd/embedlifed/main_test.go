package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/embedlife/internal/config"
)

func TestRunServesHealth(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	t.Setenv("HOME", t.TempDir())
	t.Setenv("EMBEDLIFE_SERVER_HTTP_PORT", "18084")
	t.Setenv("EMBEDLIFE_LOGGING_LEVEL", "error")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, "")
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:18084/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("EMBEDLIFE_STORE_PROVIDER", "cassandra")

	err := run(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
}
