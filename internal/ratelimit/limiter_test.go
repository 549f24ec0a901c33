package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitPacesSameHost(t *testing.T) {
	l := New(Config{QPS: 50, Burst: 1})

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://www.youtube.com/watch?v=x"))
	}
	// 50 qps with burst 1 spaces three calls about 40ms apart in total.
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestWaitKeysPerHost(t *testing.T) {
	l := New(Config{QPS: 1, Burst: 1})

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://a.example.org/x"))
	require.NoError(t, l.Wait(context.Background(), "https://b.example.org/x"))
	require.Less(t, time.Since(start), 500*time.Millisecond, "different hosts must not share a bucket")
}

func TestWaitDisabledLimiter(t *testing.T) {
	l := New(Config{QPS: 0})

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://www.youtube.com/watch?v=x"))
	}
	require.Less(t, time.Since(start), time.Second)
}

func TestWaitHonorsContext(t *testing.T) {
	l := New(Config{QPS: 0.001, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://www.youtube.com/watch?v=x"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := l.Wait(ctx, "https://www.youtube.com/watch?v=x")
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second, "wait must give up with the context")
}
