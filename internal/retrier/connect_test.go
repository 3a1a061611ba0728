package retrier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnectSucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := Connect(context.Background(), 3, time.Millisecond, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("refused")
		}
		return "conn", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "conn", got)
	assert.Equal(t, 3, calls)
}

func TestConnectReturnsLastError(t *testing.T) {
	calls := 0
	_, err := Connect(context.Background(), 2, time.Millisecond, func() (int, error) {
		calls++
		return 0, errors.New("refused")
	})

	assert.EqualError(t, err, "refused")
	assert.Equal(t, 2, calls)
}

func TestConnectZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_, _ = Connect(context.Background(), 0, time.Hour, func() (int, error) {
		calls++
		return 0, errors.New("refused")
	})
	assert.Equal(t, 1, calls)
}

func TestConnectStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Connect(ctx, 5, time.Hour, func() (int, error) {
		calls++
		return 0, errors.New("refused")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
