package shutdownqueue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newQueue() *Queue {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestQueue_RunsNewestFirst(t *testing.T) {
	t.Parallel()

	q := newQueue()

	var order []string

	for _, name := range []string{"postgres", "redis", "http"} {
		require.NoError(t, q.Add(name, func(context.Context) error {
			order = append(order, name)

			return nil
		}))
	}

	require.Equal(t, 3, q.Len())
	require.NoError(t, q.Shutdown(context.Background()))
	require.Equal(t, []string{"http", "redis", "postgres"}, order)
	require.Equal(t, 0, q.Len())
}

func TestQueue_NilTaskIgnored(t *testing.T) {
	t.Parallel()

	q := newQueue()

	require.NoError(t, q.Add("nil", nil))
	require.Equal(t, 0, q.Len())
}

func TestQueue_ErrorsAndPanicsAreJoined(t *testing.T) {
	t.Parallel()

	q := newQueue()
	errDB := errors.New("db close failed")

	ran := 0

	require.NoError(t, q.Add("first", func(context.Context) error {
		ran++

		return nil
	}))
	require.NoError(t, q.Add("db", func(context.Context) error {
		ran++

		return errDB
	}))
	require.NoError(t, q.Add("worker", func(context.Context) error {
		ran++

		panic("boom")
	}))

	err := q.Shutdown(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, errDB)
	require.Contains(t, err.Error(), "db: ")
	require.Contains(t, err.Error(), "worker: panic in shutdown task: boom")
	require.Equal(t, 3, ran, "a failing task must not stop the drain")
}

func TestQueue_CanceledContextSkipsRemaining(t *testing.T) {
	t.Parallel()

	q := newQueue()
	ctx, cancel := context.WithCancel(context.Background())

	ran := []string{}

	require.NoError(t, q.Add("skipped", func(context.Context) error {
		ran = append(ran, "skipped")

		return nil
	}))
	require.NoError(t, q.Add("cancels", func(context.Context) error {
		ran = append(ran, "cancels")
		cancel()

		return nil
	}))

	err := q.Shutdown(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, strings.Contains(err.Error(), "1 tasks left"), err.Error())
	require.Equal(t, []string{"cancels"}, ran)
}

func TestQueue_PerTaskTimeout(t *testing.T) {
	t.Parallel()

	q := newQueue()

	var earlierRan bool

	require.NoError(t, q.Add("earlier", func(context.Context) error {
		earlierRan = true

		return nil
	}))
	require.NoError(t, q.Add("slow", func(ctx context.Context) error {
		<-ctx.Done()

		return ctx.Err()
	}, WithTimeout(20*time.Millisecond)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := q.Shutdown(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, earlierRan)
}

func TestQueue_ClosedAfterShutdown(t *testing.T) {
	t.Parallel()

	q := newQueue()
	runs := 0

	require.NoError(t, q.Add("once", func(context.Context) error {
		runs++

		return nil
	}))

	require.NoError(t, q.Shutdown(context.Background()))
	require.NoError(t, q.Shutdown(context.Background()))
	require.Equal(t, 1, runs)

	err := q.Add("late", func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrClosed)
}

func TestQueue_EmptyShutdown(t *testing.T) {
	t.Parallel()

	var q Queue

	require.NoError(t, q.Shutdown(context.Background()))
}
