package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_GetOrCreate(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()

	sess, created, err := s.GetOrCreate(ctx, "k", func(context.Context) (*Session, error) {
		return &Session{Key: "k"}, nil
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "k", sess.Key)

	again, created, err := s.GetOrCreate(ctx, "k", func(context.Context) (*Session, error) {
		t.Fatal("create must not run for a cached key")
		return nil, nil
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, sess, again)
	assert.Equal(t, 1, s.Len())
}

func TestSessionStore_ErrorsAndNilAreNotCached(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()
	boom := errors.New("boom")

	_, _, err := s.GetOrCreate(ctx, "k", func(context.Context) (*Session, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	sess, created, err := s.GetOrCreate(ctx, "k", func(context.Context) (*Session, error) { return nil, nil })
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.False(t, created)
	assert.Zero(t, s.Len())
}

func TestSessionStore_ConcurrentCreateRunsOnce(t *testing.T) {
	s := NewSessionStore()
	var calls atomic.Int32
	release := make(chan struct{})

	create := func(context.Context) (*Session, error) {
		calls.Add(1)
		<-release
		return &Session{Key: "k"}, nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]*Session, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, _, err := s.GetOrCreate(context.Background(), "k", create)
			assert.NoError(t, err)
			results[i] = sess
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestSessionStore_DeleteAndKeys(t *testing.T) {
	s := NewSessionStore()
	for _, k := range []string{"b", "a", "c"} {
		key := k
		_, _, err := s.GetOrCreate(context.Background(), key, func(context.Context) (*Session, error) {
			return &Session{Key: key}, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b", "c"}, s.Keys())

	assert.True(t, s.Delete("b"))
	assert.False(t, s.Delete("b"))
	assert.Equal(t, []string{"a", "c"}, s.Keys())
}

func TestSessionStore_CreateSurvivesCallerCancel(t *testing.T) {
	s := NewSessionStore()
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})

	var createErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = s.GetOrCreate(ctx, "k", func(ctx context.Context) (*Session, error) {
			close(started)
			<-release
			if createErr = ctx.Err(); createErr != nil {
				return nil, createErr
			}
			return &Session{Key: "k"}, nil
		})
	}()

	<-started
	cancel()
	close(release)
	<-done

	require.NoError(t, createErr)
	sess, ok := s.Get("k")
	require.True(t, ok, "session is cached for later callers")
	assert.Equal(t, "k", sess.Key)
}
