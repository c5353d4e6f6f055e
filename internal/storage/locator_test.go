package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/viewersettings/pkg/errors"
	"github.com/objectfs/viewersettings/pkg/types"
)

func TestDetectType(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		link string
		want Type
	}{
		{dir, TypeFilesystem},
		{"relative/settings.xml", TypeFilesystem},
		{"file:///data/viewer-settings.xml", TypeFilesystem},
		{"s3://bucket/container", TypeS3},
		{"S3://bucket", TypeS3},
		{"https://bucket.s3.amazonaws.com/container", TypeS3},
		{"https://bucket.s3.eu-west-1.amazonaws.com/", TypeS3},
		{"https://s3.amazonaws.com/bucket/container", TypeS3},
		{"https://s3-us-west-2.amazonaws.com/bucket", TypeS3},
		{"gs://bucket/container", TypeGCS},
		{"https://googleapis.com/storage/v1/b/bucket", TypeGCS},
		{"https://www.googleapis.com/storage/v1/b/bucket/", TypeGCS},
		{"mem://scratch", TypeMemory},
	}

	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			got, err := DetectType(tt.link)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectType_Unknown(t *testing.T) {
	for _, link := range []string{
		"ftp://host/file",
		"https://example.com/bucket",
		"https://ec2.amazonaws.com/bucket",
		"https://googleapis.com/compute/v1/projects",
		"https://googleapis.com/storage/v1/b/bucket/acl",
	} {
		t.Run(link, func(t *testing.T) {
			got, err := DetectType(link)
			assert.Equal(t, TypeUnknown, got)
			assert.True(t, errors.HasCode(err, errors.ErrCodeUnknownScheme))
		})
	}
}

func TestCombinePaths(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		base string
		rel  string
		want string
	}{
		{"filesystem", TypeFilesystem, "/data/container", "viewer-settings.xml", filepath.Join("/data/container", "viewer-settings.xml")},
		{"s3 bucket", TypeS3, "s3://bucket", "viewer-settings.xml", "s3://bucket/viewer-settings.xml"},
		{"s3 trailing slash", TypeS3, "s3://bucket/container/", "viewer-settings.xml", "s3://bucket/container/viewer-settings.xml"},
		{"s3 nested", TypeS3, "s3://bucket/container", "viewer-settings.xml", "s3://bucket/container/viewer-settings.xml"},
		{"gcs absolute rel", TypeGCS, "gs://bucket/container", "/other.xml", "gs://bucket/other.xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CombinePaths(tt.typ, tt.base, tt.rel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := CombinePaths(TypeUnknown, "x", "y")
	assert.Error(t, err)

	for _, rel := range []string{"../viewer-settings.xml", "nested/../../viewer-settings.xml"} {
		_, err = CombinePaths(TypeFilesystem, "/data/container", rel)
		assert.True(t, errors.HasCode(err, errors.ErrCodePathInvalid), "%s must not escape the container", rel)
	}
}

func TestParseIdentity(t *testing.T) {
	abs, err := filepath.Abs("settings.xml")
	require.NoError(t, err)

	tests := []struct {
		uri  string
		want types.ResourceIdentity
	}{
		{"/data/viewer-settings.xml", types.FileIdentity("/data/viewer-settings.xml")},
		{"file:///data/viewer-settings.xml", types.FileIdentity("/data/viewer-settings.xml")},
		{"settings.xml", types.FileIdentity(abs)},
		{"s3://bucket/container/viewer-settings.xml", types.ObjectIdentity(types.SchemeS3, "bucket", "container/viewer-settings.xml")},
		{"s3://bucket", types.ObjectIdentity(types.SchemeS3, "bucket", "")},
		{"https://bucket.s3.amazonaws.com/a/b.xml", types.ObjectIdentity(types.SchemeS3, "bucket", "a/b.xml")},
		{"https://s3.us-east-1.amazonaws.com/bucket/a/b.xml", types.ObjectIdentity(types.SchemeS3, "bucket", "a/b.xml")},
		{"gs://bucket/viewer-settings.xml", types.ObjectIdentity(types.SchemeGCS, "bucket", "viewer-settings.xml")},
		{"https://googleapis.com/storage/v1/b/bucket", types.ObjectIdentity(types.SchemeGCS, "bucket", "")},
		{"https://googleapis.com/storage/v1/b/bucket/o/a%2Fb.xml", types.ObjectIdentity(types.SchemeGCS, "bucket", "a/b.xml")},
		{"mem://scratch", types.ResourceIdentity{Scheme: types.SchemeMemory, Key: "scratch"}},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := ParseIdentity(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = ParseIdentity("s3:///key-without-bucket")
	assert.True(t, errors.HasCode(err, errors.ErrCodePathInvalid))
}

func TestIsContainer(t *testing.T) {
	dir := t.TempDir()

	assert.True(t, IsContainer(types.FileIdentity(dir)))
	assert.False(t, IsContainer(types.FileIdentity(filepath.Join(dir, "viewer-settings.xml"))))
	assert.True(t, IsContainer(types.ObjectIdentity(types.SchemeS3, "bucket", "")))
	assert.True(t, IsContainer(types.ObjectIdentity(types.SchemeGCS, "bucket", "container/")))
	assert.False(t, IsContainer(types.ObjectIdentity(types.SchemeGCS, "bucket", "viewer-settings.xml")))
}
