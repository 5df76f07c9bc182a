package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestKeyedPool_PreservesOrderPerKey(t *testing.T) {
	p := NewKeyedPool(KeyedPoolConfig{Workers: 4, QueueSize: 8})

	var mu sync.Mutex
	got := map[string][]int{}
	for i := 0; i < 50; i++ {
		for _, key := range []string{"root-a", "root-b", "root-c"} {
			i, key := i, key
			require.NoError(t, p.Submit(context.Background(), key, func(context.Context) error {
				mu.Lock()
				got[key] = append(got[key], i)
				mu.Unlock()
				return nil
			}))
		}
	}
	p.Close()

	for _, key := range []string{"root-a", "root-b", "root-c"} {
		require.Len(t, got[key], 50)
		for i, v := range got[key] {
			assert.Equal(t, i, v, "key %s out of order", key)
		}
	}
	st := p.Stats()
	assert.Equal(t, int64(150), st.Submitted)
	assert.Equal(t, int64(150), st.Completed)
}

func TestKeyedPool_DifferentKeysRunConcurrently(t *testing.T) {
	p := NewKeyedPool(KeyedPoolConfig{Workers: 64, QueueSize: 1})
	defer p.Close()

	// 找两个落在不同分片的键
	a := "root-a"
	b := ""
	for i := 0; i < 1000; i++ {
		k := fmt.Sprintf("root-%d", i)
		if p.shard(k) != p.shard(a) {
			b = k
			break
		}
	}
	require.NotEmpty(t, b)

	release := make(chan struct{})
	started := make(chan string, 2)
	task := func(name string) Task {
		return func(context.Context) error {
			started <- name
			<-release
			return nil
		}
	}
	require.NoError(t, p.Submit(context.Background(), a, task(a)))
	require.NoError(t, p.Submit(context.Background(), b, task(b)))

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("tasks for different keys did not run concurrently")
		}
	}
	close(release)
}

func TestKeyedPool_PanicAndError(t *testing.T) {
	var mu sync.Mutex
	var panics, errs []string
	p := NewKeyedPool(KeyedPoolConfig{
		Workers:   2,
		QueueSize: 4,
		PanicHandler: func(key string, r any) {
			mu.Lock()
			panics = append(panics, fmt.Sprintf("%s:%v", key, r))
			mu.Unlock()
		},
		OnError: func(key string, err error) {
			mu.Lock()
			errs = append(errs, key+":"+err.Error())
			mu.Unlock()
		},
	})

	ctx := context.Background()
	require.NoError(t, p.Submit(ctx, "k1", func(context.Context) error { panic("boom") }))
	require.NoError(t, p.Submit(ctx, "k2", func(context.Context) error { return errors.New("llm down") }))
	require.NoError(t, p.Submit(ctx, "k1", func(context.Context) error { return nil }))
	p.Close()

	assert.Equal(t, []string{"k1:boom"}, panics)
	assert.Len(t, errs, 2)
	assert.Contains(t, errs, "k2:llm down")
	assert.Contains(t, errs, "k1:task panicked: boom")

	st := p.Stats()
	assert.Equal(t, int64(2), st.Failed)
	assert.Equal(t, int64(1), st.Completed)
}

func TestKeyedPool_FullQueue(t *testing.T) {
	p := NewKeyedPool(KeyedPoolConfig{Workers: 1, QueueSize: 1})
	release := make(chan struct{})
	running := make(chan struct{}, 1)
	block := func(context.Context) error {
		select {
		case running <- struct{}{}:
		default:
		}
		<-release
		return nil
	}

	ctx := context.Background()
	require.NoError(t, p.Submit(ctx, "k", block))
	<-running
	require.NoError(t, p.Submit(ctx, "k", block)) // 占满队列

	assert.ErrorIs(t, p.TrySubmit(ctx, "k", block), ErrPoolFull)

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Submit(cctx, "k", block), context.DeadlineExceeded)
	assert.Equal(t, int64(2), p.Stats().Rejected)

	close(release)
	p.Close()
	assert.Equal(t, int64(2), p.Stats().Completed)
}

func TestKeyedPool_Closed(t *testing.T) {
	p := NewKeyedPool(KeyedPoolConfig{})
	assert.Equal(t, DefaultKeyedPoolConfig().Workers, p.Stats().Workers)
	p.Close()
	p.Close()

	noop := func(context.Context) error { return nil }
	assert.ErrorIs(t, p.Submit(context.Background(), "k", noop), ErrPoolClosed)
	assert.ErrorIs(t, p.TrySubmit(context.Background(), "k", noop), ErrPoolClosed)
}

func TestKeyedPool_OrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		workers := rapid.IntRange(1, 8).Draw(t, "workers")
		keys := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c", "d", "e"}), 1, 60).Draw(t, "keys")

		p := NewKeyedPool(KeyedPoolConfig{Workers: workers, QueueSize: 4})
		var mu sync.Mutex
		got := map[string][]int{}
		want := map[string][]int{}
		for i, k := range keys {
			i, k := i, k
			want[k] = append(want[k], i)
			if err := p.Submit(context.Background(), k, func(context.Context) error {
				mu.Lock()
				got[k] = append(got[k], i)
				mu.Unlock()
				return nil
			}); err != nil {
				t.Fatalf("submit: %v", err)
			}
		}
		p.Close()

		for k, seq := range want {
			if fmt.Sprint(seq) != fmt.Sprint(got[k]) {
				t.Fatalf("key %s: want %v, got %v", k, seq, got[k])
			}
		}
	})
}
