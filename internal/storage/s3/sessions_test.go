package s3

import (
	"context"
	"testing"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/viewersettings/internal/coordinator"
	"github.com/objectfs/viewersettings/internal/lockreg"
	serrors "github.com/objectfs/viewersettings/pkg/errors"
	"github.com/objectfs/viewersettings/pkg/settings"
	"github.com/objectfs/viewersettings/pkg/types"
)

func TestTwoSessionsOnOneObjectAreBothWritable(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient(s3types.PermissionWrite)
	reg := lockreg.New()

	var denied []serrors.AccessReason
	open := func(src types.SettingsSource) *coordinator.Coordinator {
		b, err := NewBackend(client, "bucket", "viewer-settings.xml", testConfig())
		require.NoError(t, err)
		c, err := coordinator.New(b, reg, src,
			coordinator.WithAutosaveInterval(0),
			coordinator.WithAccessDeniedHandler(func(_ context.Context, ae *serrors.AccessError) bool {
				denied = append(denied, ae.Reason)
				return false
			}))
		require.NoError(t, err)
		return c
	}

	first := settings.NewBuffer([]byte("<first/>"))
	a := open(first)
	result, err := a.Initialize(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, types.NotLoaded, result)

	second := settings.NewBuffer([]byte("<second/>"))
	b := open(second)
	result, err = b.Initialize(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, types.NotLoaded, result)
	assert.Empty(t, denied)
	assert.False(t, reg.Held(a.Identity()))

	require.NoError(t, a.CloseAndSave(ctx))
	require.NoError(t, b.CloseAndSave(ctx))
	assert.Equal(t, "<second/>", string(client.objects["viewer-settings.xml"]))

	c := open(settings.NewBuffer(nil))
	result, err = c.Initialize(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, types.Loaded, result)
	require.NoError(t, c.CloseAndSave(ctx))
}
