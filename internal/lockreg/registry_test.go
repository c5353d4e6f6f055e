package lockreg

import (
	"context"
	stderr "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/objectfs/viewersettings/pkg/errors"
	"github.com/objectfs/viewersettings/pkg/types"
)

func placeholder(id types.ResourceIdentity) func(context.Context) (types.LockHandle, error) {
	return func(context.Context) (types.LockHandle, error) {
		return types.PlaceholderHandle{ID: id}, nil
	}
}

func TestRegistry_AcquireSameProcess(t *testing.T) {
	ctx := context.Background()
	r := New()
	id := types.FileIdentity("/data/viewer-settings.xml")

	h, err := r.Acquire(ctx, id, placeholder(id))
	require.NoError(t, err)
	assert.True(t, r.Held(id))
	assert.Equal(t, 1, r.Len())

	called := false
	_, err = r.Acquire(ctx, id, func(context.Context) (types.LockHandle, error) {
		called = true
		return nil, nil
	})
	ae, ok := errors.AsAccessError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ReasonLockedSameProcess, ae.Reason)
	assert.False(t, called, "backend must not be consulted when the process already holds the resource")

	other := types.FileIdentity("/data/other.xml")
	_, err = r.Acquire(ctx, other, placeholder(other))
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	require.NoError(t, r.Do(ctx, id, func(got types.LockHandle) error {
		assert.Equal(t, h, got)
		assert.True(t, r.ReleaseLocked(id, got))
		assert.False(t, r.ReleaseLocked(id, got))
		return nil
	}))
	assert.False(t, r.Held(id))
	assert.Equal(t, 1, r.Len())

	_, err = r.Acquire(ctx, id, placeholder(id))
	assert.NoError(t, err)
}

func TestRegistry_AcquireFailureLeavesNoEntry(t *testing.T) {
	ctx := context.Background()
	r := New()
	id := types.ObjectIdentity(types.SchemeS3, "bucket", "viewer-settings.xml")

	denied := errors.NewAccessError(errors.ReasonNotWritable, nil)
	_, err := r.Acquire(ctx, id, func(context.Context) (types.LockHandle, error) {
		return nil, denied
	})
	assert.ErrorIs(t, err, denied)
	assert.False(t, r.Held(id))
	assert.Empty(t, r.entries)

	_, err = r.Acquire(ctx, id, placeholder(id))
	assert.NoError(t, err)
}

func TestRegistry_ConcurrentAcquireHasOneWinner(t *testing.T) {
	ctx := context.Background()
	r := New()
	id := types.FileIdentity("/data/viewer-settings.xml")

	const n = 32
	var winners, sameProcess atomic.Int32
	start := make(chan struct{})

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			<-start
			_, err := r.Acquire(ctx, id, func(context.Context) (types.LockHandle, error) {
				time.Sleep(time.Millisecond)
				return types.PlaceholderHandle{ID: id}, nil
			})
			if err == nil {
				winners.Add(1)
				return nil
			}
			if ae, ok := errors.AsAccessError(err); ok && ae.Reason == errors.ReasonLockedSameProcess {
				sameProcess.Add(1)
				return nil
			}
			return err
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, int32(n-1), sameProcess.Load())
}

func TestRegistry_DoSerializesPerIdentity(t *testing.T) {
	ctx := context.Background()
	r := New()
	id := types.FileIdentity("/data/viewer-settings.xml")

	var inside, overlaps atomic.Int32
	count := 0

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			return r.Do(ctx, id, func(types.LockHandle) error {
				if inside.Add(1) > 1 {
					overlaps.Add(1)
				}
				count++
				time.Sleep(100 * time.Microsecond)
				inside.Add(-1)
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())

	assert.Zero(t, overlaps.Load())
	assert.Equal(t, 20, count)
	assert.Empty(t, r.entries, "unused entries are reclaimed")
}

func TestRegistry_DoRunsIdentitiesInParallel(t *testing.T) {
	ctx := context.Background()
	r := New()
	a := types.FileIdentity("/a.xml")
	b := types.FileIdentity("/b.xml")

	entered := make(chan struct{})
	release := make(chan struct{})

	var g errgroup.Group
	g.Go(func() error {
		return r.Do(ctx, a, func(types.LockHandle) error {
			close(entered)
			<-release
			return nil
		})
	})

	<-entered
	done := make(chan error, 1)
	go func() { done <- r.Do(ctx, b, func(types.LockHandle) error { return nil }) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Do on a different identity blocked")
	}
	close(release)
	require.NoError(t, g.Wait())
}

func TestRegistry_DoHonorsContext(t *testing.T) {
	r := New()
	id := types.FileIdentity("/data/viewer-settings.xml")

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = r.Do(context.Background(), id, func(types.LockHandle) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := r.Do(ctx, id, func(types.LockHandle) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
	close(release)
}

func TestRegistry_DoPropagatesError(t *testing.T) {
	r := New()
	boom := stderr.New("boom")
	err := r.Do(context.Background(), types.FileIdentity("/x.xml"), func(h types.LockHandle) error {
		assert.Nil(t, h)
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestTracks(t *testing.T) {
	assert.True(t, Tracks(types.FileIdentity("/data/viewer-settings.xml")))
	assert.False(t, Tracks(types.ResourceIdentity{Scheme: types.SchemeS3, Bucket: "bucket", Key: "viewer-settings.xml"}))
	assert.False(t, Tracks(types.ResourceIdentity{Scheme: types.SchemeGCS, Bucket: "bucket", Key: "viewer-settings.xml"}))
	assert.False(t, Tracks(types.ResourceIdentity{Scheme: types.SchemeMemory, Key: "viewer-settings.xml"}))
}
