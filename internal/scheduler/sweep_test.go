package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expirerFunc func(ctx context.Context, createdBefore, initiatedBefore time.Time) (int, error)

func (f expirerFunc) ExpirePending(ctx context.Context, createdBefore, initiatedBefore time.Time) (int, error) {
	return f(ctx, createdBefore, initiatedBefore)
}

func TestPendingSweep_Run(t *testing.T) {
	now := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
	var created, initiated time.Time
	s := NewPendingSweep(expirerFunc(func(_ context.Context, createdBefore, initiatedBefore time.Time) (int, error) {
		created, initiated = createdBefore, initiatedBefore
		return 2, nil
	}), 30*time.Minute, 3*time.Hour, nil)
	s.now = func() time.Time { return now }

	n, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, now.Add(-30*time.Minute), created)
	assert.Equal(t, now.Add(-3*time.Hour), initiated)
}

func TestPendingSweep_RunError(t *testing.T) {
	boom := errors.New("db down")
	s := NewPendingSweep(expirerFunc(func(context.Context, time.Time, time.Time) (int, error) {
		return 1, boom
	}), time.Minute, time.Hour, nil)

	n, err := s.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
}

func TestPendingSweep_StartRejectsBadSpec(t *testing.T) {
	s := NewPendingSweep(expirerFunc(func(context.Context, time.Time, time.Time) (int, error) { return 0, nil }), time.Minute, time.Hour, nil)

	_, err := s.Start("not a cron spec")
	assert.Error(t, err)

	c, err := s.Start("@every 5m")
	require.NoError(t, err)
	c.Stop()
}
