package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetachContext_SurvivesCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	detached := DetachContext(parent)

	cancel()

	assert.Error(t, parent.Err())
	assert.NoError(t, detached.Err())
}

func TestDetachContextWithTimeout_SurvivesParentCancellation(t *testing.T) {
	parent, parentCancel := context.WithCancel(context.Background())
	detached, detachedCancel := DetachContextWithTimeout(parent, 100*time.Millisecond)
	defer detachedCancel()

	parentCancel()
	assert.NoError(t, detached.Err())

	<-detached.Done()
	assert.ErrorIs(t, detached.Err(), context.DeadlineExceeded)
}

func TestDetachContextWithTimeout_HasOwnDeadline(t *testing.T) {
	detached, cancel := DetachContextWithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	deadline, ok := detached.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 20*time.Millisecond)
}
