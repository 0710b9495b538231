package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	require.NoError(t, env.server.startScheduler("@every 1h"))
	require.NotNil(t, env.server.scheduler)
	assert.Len(t, env.server.scheduler.Entries(), 1)

	env.server.stopScheduler()
	assert.Nil(t, env.server.scheduler)
	// Stopping twice is fine.
	env.server.stopScheduler()
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	env := newTestEnv(t, nil)

	err := env.server.startScheduler("whenever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid rescan schedule")
	assert.Nil(t, env.server.scheduler)
}
