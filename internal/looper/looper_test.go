package looper_test

import (
	"context"
	"testing"
	"time"

	"github.com/NamiraNet/handoff/internal/looper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func runAsync(ctx context.Context, l *looper.Loop) <-chan error {
	res := make(chan error, 1)
	go func() { res <- l.Run(ctx) }()
	return res
}

func TestLoop(t *testing.T) {
	t.Run("Just Work", func(t *testing.T) {
		l := looper.New(zaptest.NewLogger(t))
		var order []int
		for i := range 5 {
			require.NoError(t, l.Post(func() { order = append(order, i) }))
		}
		assert.Equal(t, 5, l.Pending())
		l.Quit()
		require.NoError(t, l.Run(context.Background()))
		assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	})

	t.Run("Post after quit", func(t *testing.T) {
		l := looper.New(nil)
		l.Quit()
		assert.ErrorIs(t, l.Post(func() {}), looper.ErrClosed)
	})

	t.Run("Post from foreground", func(t *testing.T) {
		l := looper.New(zaptest.NewLogger(t))
		var order []string
		require.NoError(t, l.Post(func() {
			order = append(order, "outer")
			assert.NoError(t, l.Post(func() {
				order = append(order, "inner")
				l.Quit()
			}))
		}))
		require.NoError(t, l.Run(context.Background()))
		assert.Equal(t, []string{"outer", "inner"}, order)
	})

	t.Run("Call waits for foreground", func(t *testing.T) {
		l := looper.New(zaptest.NewLogger(t))
		res := runAsync(context.Background(), l)

		value := 0
		require.NoError(t, l.Call(context.Background(), func() { value = 42 }))
		assert.Equal(t, 42, value)

		l.Quit()
		require.NoError(t, <-res)
	})

	t.Run("Call times out", func(t *testing.T) {
		l := looper.New(zaptest.NewLogger(t))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, l.Call(ctx, func() {}), context.DeadlineExceeded)

		l.Quit()
		require.NoError(t, l.Run(context.Background()))
	})

	t.Run("Context cancel", func(t *testing.T) {
		l := looper.New(zaptest.NewLogger(t))
		ctx, cancel := context.WithCancel(context.Background())
		res := runAsync(ctx, l)
		cancel()

		select {
		case err := <-res:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("run did not return")
		}
	})

	t.Run("Panicking callback", func(t *testing.T) {
		l := looper.New(zaptest.NewLogger(t))
		after := false
		require.NoError(t, l.Post(func() { panic("ui") }))
		require.NoError(t, l.Post(func() { after = true }))
		l.Quit()
		require.NoError(t, l.Run(context.Background()))
		assert.True(t, after)
	})

	t.Run("Run twice", func(t *testing.T) {
		l := looper.New(zaptest.NewLogger(t))
		res := runAsync(context.Background(), l)
		require.NoError(t, l.Call(context.Background(), func() {}))
		assert.ErrorIs(t, l.Run(context.Background()), looper.ErrAlreadyRunning)
		l.Quit()
		require.NoError(t, <-res)
	})
}
