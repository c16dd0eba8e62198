package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/tasks"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/queue"
)

func ints(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func decode(t *testing.T, env tasks.Envelope) []int {
	t.Helper()
	out := make([]int, 0, len(env.Items))
	for _, raw := range env.Items {
		var v int
		require.NoError(t, json.Unmarshal(raw, &v))
		out = append(out, v)
	}
	return out
}

func TestLocal_MismoGrupoConservaOrden(t *testing.T) {
	q := queue.NewLocal(queue.Config{ChunkSize: 3, Workers: 4}, nil, nil)

	var mu sync.Mutex
	var seen []int
	running := 0
	maxRunning := 0
	require.NoError(t, q.Subscribe("count", func(_ context.Context, env tasks.Envelope) error {
		mu.Lock()
		running++
		maxRunning = max(maxRunning, running)
		mu.Unlock()

		time.Sleep(time.Millisecond)
		vals := decode(t, env)

		mu.Lock()
		seen = append(seen, vals...)
		running--
		mu.Unlock()
		return nil
	}))

	require.NoError(t, q.Publish(context.Background(), "count", ints(10), "store-1"))
	require.NoError(t, q.Publish(context.Background(), "count", []any{10, 11}, "store-1"))
	require.NoError(t, q.Close(context.Background()))

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, seen)
	assert.Equal(t, 1, maxRunning, "un solo worker por groupKey")
}

func TestLocal_GruposDistintosEnParalelo(t *testing.T) {
	var mu sync.Mutex
	var failures []error
	q := queue.NewLocal(queue.Config{Workers: 2}, nil, func(_ context.Context, _ tasks.Envelope, err error) {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, err)
	})

	bStarted := make(chan struct{})
	require.NoError(t, q.Subscribe("k", func(ctx context.Context, env tasks.Envelope) error {
		if env.GroupKey == "b" {
			close(bStarted)
			return nil
		}
		// "a" solo termina bien si "b" pudo arrancar en paralelo.
		select {
		case <-bStarted:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("b no corrió en paralelo")
		}
	}))

	require.NoError(t, q.Publish(context.Background(), "k", []any{1}, "a"))
	require.NoError(t, q.Publish(context.Background(), "k", []any{1}, "b"))
	require.NoError(t, q.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, failures)
}

func TestLocal_FallosAlSumideroSinReintento(t *testing.T) {
	var mu sync.Mutex
	var failed []tasks.Envelope
	sink := func(_ context.Context, env tasks.Envelope, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, env)
	}
	q := queue.NewLocal(queue.Config{ChunkSize: 1}, nil, sink)

	calls := 0
	require.NoError(t, q.Subscribe("k", func(_ context.Context, env tasks.Envelope) error {
		mu.Lock()
		calls++
		mu.Unlock()
		if env.ChunkIndex == 0 {
			return errors.New("falla")
		}
		return nil
	}))
	require.NoError(t, q.Publish(context.Background(), "k", ints(3), "g"))
	require.NoError(t, q.Close(context.Background()))

	assert.Equal(t, 3, calls, "el fallo no detiene el carril ni se reintenta")
	require.Len(t, failed, 1)
	assert.Equal(t, 0, failed[0].ChunkIndex)
}

func TestLocal_ValidacionYCierre(t *testing.T) {
	q := queue.NewLocal(queue.Config{}, nil, nil)
	ctx := context.Background()

	assert.ErrorIs(t, q.Publish(ctx, "k", nil, "g"), domain.ErrInvalidArgument)
	assert.ErrorIs(t, q.Publish(ctx, "k", ints(1), ""), domain.ErrInvalidArgument)
	require.NoError(t, q.Subscribe("k", func(context.Context, tasks.Envelope) error { return nil }))
	assert.ErrorIs(t, q.Subscribe("k", func(context.Context, tasks.Envelope) error { return nil }), domain.ErrDuplicate)

	require.NoError(t, q.Close(ctx))
	assert.ErrorIs(t, q.Publish(ctx, "k", ints(1), "g"), domain.ErrQueueClosed)
}
