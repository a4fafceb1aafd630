package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestStartRejectsDuplicateName(t *testing.T) {
	m := NewManager(zerolog.Nop())
	defer m.StopAll()

	require.NoError(t, m.Start(context.Background(), "watch", blockUntilDone))
	err := m.Start(context.Background(), "watch", blockUntilDone)
	assert.ErrorIs(t, err, ErrRunning)
	assert.Equal(t, []string{"watch"}, m.List())
}

func TestStopWaitsForJob(t *testing.T) {
	m := NewManager(zerolog.Nop())
	exited := make(chan struct{})
	require.NoError(t, m.Start(context.Background(), "metrics", func(ctx context.Context) error {
		<-ctx.Done()
		close(exited)
		return nil
	}))

	require.NoError(t, m.Stop("metrics"))
	select {
	case <-exited:
	default:
		t.Fatal("Stop returned before the job exited")
	}
	assert.Empty(t, m.List())
	assert.Error(t, m.Stop("metrics"))
}

func TestFinishedJobIsForgotten(t *testing.T) {
	m := NewManager(zerolog.Nop())
	require.NoError(t, m.Start(context.Background(), "once", func(context.Context) error {
		return errors.New("boom")
	}))
	assert.Eventually(t, func() bool { return len(m.List()) == 0 }, time.Second, 5*time.Millisecond)

	// The name is free again.
	require.NoError(t, m.Start(context.Background(), "once", blockUntilDone))
	m.StopAll()
	assert.Empty(t, m.List())
}

func TestStopAllAndStatus(t *testing.T) {
	m := NewManager(zerolog.Nop())
	assert.Equal(t, "No jobs are running.", m.Status())

	require.NoError(t, m.Start(context.Background(), "b", blockUntilDone))
	require.NoError(t, m.Start(context.Background(), "a", blockUntilDone))
	assert.Equal(t, "Running jobs: a, b", m.Status())

	m.StopAll()
	assert.Equal(t, "No jobs are running.", m.Status())
}

func TestParentCancelStopsJobs(t *testing.T) {
	m := NewManager(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx, "watch", blockUntilDone))
	cancel()
	assert.Eventually(t, func() bool { return len(m.List()) == 0 }, time.Second, 5*time.Millisecond)
}
