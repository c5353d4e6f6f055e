package memory

import (
	"context"
	stderr "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/viewersettings/pkg/errors"
)

func TestBackend_LockIsExclusivePerKey(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	a := NewBackend(store, "k", Options{})
	b := NewBackend(store, "k", Options{})
	other := NewBackend(store, "other", Options{})

	h, err := a.TryAcquireLock(ctx)
	require.NoError(t, err)
	assert.True(t, h.Exclusive())
	assert.True(t, store.Locked("k"))

	_, err = b.TryAcquireLock(ctx)
	ae, ok := errors.AsAccessError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ReasonLocked, ae.Reason)

	oh, err := other.TryAcquireLock(ctx)
	require.NoError(t, err)
	require.NoError(t, other.Release(oh))

	require.NoError(t, a.Release(h))
	require.NoError(t, a.Release(h))
	assert.False(t, store.Locked("k"))

	h2, err := b.TryAcquireLock(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Release(h2))
}

func TestBackend_ReadWrite(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(NewStore(), "k", Options{})

	exists, err := b.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = b.ReadUnlocked(ctx)
	assert.True(t, errors.HasCode(err, errors.ErrCodeObjectNotFound))

	h, err := b.TryAcquireLock(ctx)
	require.NoError(t, err)
	require.NoError(t, b.WriteThrough(ctx, h, []byte("v1")))
	assert.Equal(t, 1, b.Writes())

	data, err := b.ReadThrough(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	require.NoError(t, b.Release(h))
	err = b.WriteThrough(ctx, h, []byte("v2"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidState))

	data, err = b.ReadUnlocked(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestBackend_InjectedFailures(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(NewStore(), "k", Options{})
	h, err := b.TryAcquireLock(ctx)
	require.NoError(t, err)

	boom := stderr.New("disk on fire")
	b.FailWrites(boom)
	err = b.WriteThrough(ctx, h, []byte("x"))
	assert.ErrorIs(t, err, boom)
	assert.True(t, errors.HasCode(err, errors.ErrCodeStorageWrite))
	assert.Zero(t, b.Writes())

	b.FailWrites(nil)
	require.NoError(t, b.WriteThrough(ctx, h, []byte("x")))

	b.FailReads(boom)
	_, err = b.ReadThrough(ctx, h)
	assert.ErrorIs(t, err, boom)
	_, err = b.ReadUnlocked(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestBackend_Options(t *testing.T) {
	ctx := context.Background()

	ro := NewBackend(NewStore(), "k", Options{ReadOnly: true})
	ok, err := ro.IsWritableLocation(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = ro.TryAcquireLock(ctx)
	ae, isAccess := errors.AsAccessError(err)
	require.True(t, isAccess)
	assert.Equal(t, errors.ReasonNotWritable, ae.Reason)

	store := NewStore()
	a := NewBackend(store, "k", Options{NoLock: true})
	b := NewBackend(store, "k", Options{NoLock: true})
	ha, err := a.TryAcquireLock(ctx)
	require.NoError(t, err)
	hb, err := b.TryAcquireLock(ctx)
	require.NoError(t, err)
	assert.False(t, ha.Exclusive())
	assert.False(t, store.Locked("k"))
	require.NoError(t, a.Release(ha))
	require.NoError(t, b.Release(hb))
}

func TestBackend_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBackend(NewStore(), "k", Options{})
	_, err := b.TryAcquireLock(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = b.ReadUnlocked(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
