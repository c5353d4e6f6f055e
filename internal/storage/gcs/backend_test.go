package gcs

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	serrors "github.com/objectfs/viewersettings/pkg/errors"
	"github.com/objectfs/viewersettings/pkg/retry"
	"github.com/objectfs/viewersettings/pkg/types"
)

type fakeClient struct {
	mu       sync.Mutex
	objects  map[string][]byte
	ctypes   map[string]string
	granted  []string
	permErr  error
	readErrs []error
	closed   bool
}

func newFakeClient(granted ...string) *fakeClient {
	return &fakeClient{objects: map[string][]byte{}, ctypes: map[string]string{}, granted: granted}
}

func (f *fakeClient) Attrs(ctx context.Context, bucket, key string) (*storage.ObjectAttrs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return &storage.ObjectAttrs{Bucket: bucket, Name: key, Size: int64(len(data))}, nil
}

func (f *fakeClient) Read(ctx context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.readErrs) > 0 {
		err := f.readErrs[0]
		f.readErrs = f.readErrs[1:]
		return nil, err
	}
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeClient) Write(ctx context.Context, bucket, key, contentType string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = append([]byte(nil), data...)
	f.ctypes[bucket+"/"+key] = contentType
	return nil
}

func (f *fakeClient) TestPermissions(ctx context.Context, bucket string, perms []string) ([]string, error) {
	if f.permErr != nil {
		return nil, f.permErr
	}
	return f.granted, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func testConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Retry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return cfg
}

func TestBackend_IsWritableLocation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		client *fakeClient
		want   bool
	}{
		{"create and delete", newFakeClient("storage.objects.create", "storage.objects.delete"), true},
		{"create only", newFakeClient("storage.objects.create"), false},
		{"nothing", newFakeClient(), false},
		{
			name:   "iam forbidden",
			client: &fakeClient{permErr: &googleapi.Error{Code: http.StatusForbidden}},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(tt.client, "bucket", "viewer-settings.xml", testConfig())
			require.NoError(t, err)

			got, err := b.IsWritableLocation(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			_, err = b.TryAcquireLock(ctx)
			if tt.want {
				assert.NoError(t, err)
			} else {
				ae, ok := serrors.AsAccessError(err)
				require.True(t, ok)
				assert.Equal(t, serrors.ReasonNotWritable, ae.Reason)
			}
		})
	}
}

func TestBackend_IsWritableLocation_TransientFailure(t *testing.T) {
	client := &fakeClient{permErr: &googleapi.Error{Code: http.StatusServiceUnavailable}}
	b, err := NewBackend(client, "bucket", "viewer-settings.xml", testConfig())
	require.NoError(t, err)

	_, err = b.IsWritableLocation(context.Background())
	assert.True(t, serrors.HasCode(err, serrors.ErrCodeNetworkError))
	assert.Equal(t, int64(3), b.GetMetrics().Requests)
}

func TestBackend_ReadWriteRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient(WritePermissions...)
	b, err := NewBackend(client, "bucket", "data/viewer-settings.xml", testConfig())
	require.NoError(t, err)
	assert.Equal(t, "gs://bucket/data/viewer-settings.xml", b.Identity().String())

	exists, err := b.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = b.ReadUnlocked(ctx)
	assert.True(t, serrors.HasCode(err, serrors.ErrCodeObjectNotFound))

	h, err := b.TryAcquireLock(ctx)
	require.NoError(t, err)
	assert.False(t, h.Exclusive())

	require.NoError(t, b.WriteThrough(ctx, h, []byte("<settings/>")))
	assert.Equal(t, "application/xml", client.ctypes["bucket/data/viewer-settings.xml"])

	exists, err = b.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := b.ReadThrough(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "<settings/>", string(data))

	require.NoError(t, b.Release(h))
	require.NoError(t, b.Close())
	assert.True(t, client.closed)
}

func TestBackend_ReadRetries(t *testing.T) {
	client := newFakeClient()
	client.objects["bucket/viewer-settings.xml"] = []byte("<s/>")
	client.readErrs = []error{&googleapi.Error{Code: http.StatusTooManyRequests}}

	b, err := NewBackend(client, "bucket", "viewer-settings.xml", testConfig())
	require.NoError(t, err)

	data, err := b.ReadUnlocked(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "<s/>", string(data))
}

func TestTranslateError(t *testing.T) {
	b, err := NewBackend(newFakeClient(), "bucket", "viewer-settings.xml", testConfig())
	require.NoError(t, err)

	tests := []struct {
		name string
		err  error
		op   string
		want serrors.ErrorCode
	}{
		{"object missing", storage.ErrObjectNotExist, "Read", serrors.ErrCodeObjectNotFound},
		{"bucket missing", storage.ErrBucketNotExist, "Read", serrors.ErrCodeBucketNotFound},
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden}, "Write", serrors.ErrCodeAccessDenied},
		{"unauthorized", &googleapi.Error{Code: http.StatusUnauthorized}, "Read", serrors.ErrCodeAuthenticationFailed},
		{"server error", &googleapi.Error{Code: http.StatusBadGateway}, "Read", serrors.ErrCodeNetworkError},
		{"bad request on write", &googleapi.Error{Code: http.StatusBadRequest}, "Write", serrors.ErrCodeStorageWrite},
		{"transport", errors.New("EOF"), "Read", serrors.ErrCodeNetworkError},
		{"canceled", context.Canceled, "Read", serrors.ErrCodeOperationCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := serrors.CodeOf(b.translateError(tt.err, tt.op))
			require.True(t, ok)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestBackend_ForeignHandle(t *testing.T) {
	b, err := NewBackend(newFakeClient(WritePermissions...), "bucket", "a.xml", testConfig())
	require.NoError(t, err)

	foreign := types.PlaceholderHandle{ID: types.ObjectIdentity(types.SchemeS3, "bucket", "a.xml")}
	assert.Error(t, b.WriteThrough(context.Background(), foreign, []byte("x")))
}

func TestNewBackend_Validation(t *testing.T) {
	_, err := NewBackend(newFakeClient(), "", "k", nil)
	assert.Error(t, err)
	_, err = NewBackend(newFakeClient(), "b", "", nil)
	assert.Error(t, err)
	_, err = NewBackend(nil, "b", "k", nil)
	assert.Error(t, err)
}
