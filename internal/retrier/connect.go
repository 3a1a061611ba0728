package retrier

import (
	"context"
	"time"
)

// Connect calls connector up to attempts times, sleeping between failures.
// It returns the last error when every attempt fails or ctx is done.
func Connect[T any](ctx context.Context, attempts uint8, sleep time.Duration, connector func() (T, error)) (T, error) {
	var (
		out T
		err error
	)
	if attempts == 0 {
		attempts = 1
	}

	for i := uint8(0); i < attempts; i++ {
		out, err = connector()
		if err == nil {
			return out, nil
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(sleep):
		}
	}
	return out, err
}
