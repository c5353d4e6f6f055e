package storage

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/objectfs/viewersettings/pkg/errors"
	"github.com/objectfs/viewersettings/pkg/types"
	"github.com/objectfs/viewersettings/pkg/utils"
)

// Type identifies a storage backend family.
type Type int

const (
	TypeUnknown Type = iota
	TypeFilesystem
	TypeS3
	TypeGCS
	TypeMemory
)

func (t Type) String() string {
	switch t {
	case TypeFilesystem:
		return "filesystem"
	case TypeS3:
		return "s3"
	case TypeGCS:
		return "gcs"
	case TypeMemory:
		return "memory"
	default:
		return "unknown"
	}
}

const (
	googleCloudHost   = "googleapis.com"
	googleStoragePath = "/storage/v1/b/"
	amazonHostSuffix  = ".amazonaws.com"
)

// DetectType classifies a user-supplied link. Plain paths, file:// URIs,
// s3:// and gs:// URIs, S3 HTTPS endpoints in virtual-host or path style and
// Google Cloud HTTP bucket links are recognized.
func DetectType(link string) (Type, error) {
	if info, err := os.Stat(link); err == nil && info.IsDir() {
		return TypeFilesystem, nil
	}

	u, err := url.Parse(link)
	if err != nil {
		return TypeUnknown, errors.Wrap(err, errors.ErrCodeUnknownScheme, "not a valid storage link").
			WithResource(link)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return TypeFilesystem, nil
	case string(types.SchemeS3):
		return TypeS3, nil
	case string(types.SchemeGCS):
		return TypeGCS, nil
	case string(types.SchemeMemory):
		return TypeMemory, nil
	case "http", "https":
		if _, _, ok := parseS3Endpoint(u); ok {
			return TypeS3, nil
		}
		if _, _, ok := parseGoogleLink(u); ok {
			return TypeGCS, nil
		}
	case "":
		return TypeFilesystem, nil
	}

	return TypeUnknown, errors.NewError(errors.ErrCodeUnknownScheme, "unrecognized storage link").
		WithResource(link)
}

// CombinePaths appends a relative path to a base location. Filesystem paths
// are joined; object-storage URIs are resolved against the base treated as a
// directory.
func CombinePaths(t Type, base, rel string) (string, error) {
	switch t {
	case TypeFilesystem:
		joined, err := utils.SecureJoin(base, rel)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodePathInvalid, "relative path leaves the base location").
				WithResource(rel)
		}
		return joined, nil
	case TypeS3, TypeGCS, TypeMemory:
		if !strings.HasSuffix(base, "/") && !strings.HasPrefix(rel, "/") {
			base += "/"
		}
		baseURL, err := url.Parse(base)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodePathInvalid, "invalid base location").WithResource(base)
		}
		relURL, err := url.Parse(rel)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodePathInvalid, "invalid relative path").WithResource(rel)
		}
		return baseURL.ResolveReference(relURL).String(), nil
	default:
		return "", errors.NewError(errors.ErrCodeUnknownScheme, "cannot combine paths for "+t.String())
	}
}

// ParseIdentity converts a resource URI into its identity. Plain paths are
// made absolute. The key may be empty when the URI names a bucket only.
func ParseIdentity(uri string) (types.ResourceIdentity, error) {
	t, err := DetectType(uri)
	if err != nil {
		return types.ResourceIdentity{}, err
	}

	u, err := url.Parse(uri)
	if err != nil {
		return types.ResourceIdentity{}, errors.Wrap(err, errors.ErrCodePathInvalid, "invalid resource URI").
			WithResource(uri)
	}

	switch t {
	case TypeFilesystem:
		p := uri
		if strings.EqualFold(u.Scheme, "file") {
			p = u.Path
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return types.ResourceIdentity{}, errors.Wrap(err, errors.ErrCodePathInvalid, "cannot resolve path").
				WithResource(uri)
		}
		return types.FileIdentity(abs), nil
	case TypeMemory:
		return types.ResourceIdentity{Scheme: types.SchemeMemory, Key: u.Host + u.Path}, nil
	}

	var bucket, key string
	switch strings.ToLower(u.Scheme) {
	case string(types.SchemeS3), string(types.SchemeGCS):
		bucket, key = u.Host, u.Path
	default:
		var ok bool
		if t == TypeS3 {
			bucket, key, ok = parseS3Endpoint(u)
		} else {
			bucket, key, ok = parseGoogleLink(u)
		}
		if !ok {
			return types.ResourceIdentity{}, errors.NewError(errors.ErrCodePathInvalid, "cannot parse bucket").
				WithResource(uri)
		}
	}
	if bucket == "" {
		return types.ResourceIdentity{}, errors.NewError(errors.ErrCodePathInvalid, "bucket name is missing").
			WithResource(uri)
	}

	scheme := types.SchemeS3
	if t == TypeGCS {
		scheme = types.SchemeGCS
	}
	return types.ObjectIdentity(scheme, bucket, key), nil
}

// IsContainer reports whether the identity names a directory or bucket
// rather than a settings object.
func IsContainer(id types.ResourceIdentity) bool {
	if id.Scheme == types.SchemeFile {
		info, err := os.Stat(id.Key)
		return err == nil && info.IsDir()
	}
	return id.Key == "" || strings.HasSuffix(id.Key, "/")
}

// parseS3Endpoint recognizes bucket.s3.amazonaws.com, bucket.s3.region.amazonaws.com,
// bucket.s3-region.amazonaws.com and the path-style forms of the same hosts.
func parseS3Endpoint(u *url.URL) (bucket, key string, ok bool) {
	host := strings.ToLower(u.Hostname())
	if !strings.HasSuffix(host, amazonHostSuffix) {
		return "", "", false
	}
	labels := strings.Split(strings.TrimSuffix(host, amazonHostSuffix), ".")

	s3Label := -1
	for i, l := range labels {
		if l == "s3" || strings.HasPrefix(l, "s3-") {
			s3Label = i
			break
		}
	}
	if s3Label < 0 {
		return "", "", false
	}

	if s3Label > 0 {
		return strings.Join(labels[:s3Label], "."), u.Path, true
	}

	trimmed := strings.TrimPrefix(u.Path, "/")
	bucket, key, _ = strings.Cut(trimmed, "/")
	return bucket, key, true
}

// parseGoogleLink recognizes https://googleapis.com/storage/v1/b/<bucket> and
// .../b/<bucket>/o/<object>.
func parseGoogleLink(u *url.URL) (bucket, key string, ok bool) {
	host := strings.ToLower(u.Hostname())
	if host != googleCloudHost && host != "www."+googleCloudHost {
		return "", "", false
	}
	if !strings.HasPrefix(strings.ToLower(u.Path), googleStoragePath) {
		return "", "", false
	}

	rest := strings.TrimSuffix(u.Path[len(googleStoragePath):], "/")
	bucket, object, found := strings.Cut(rest, "/")
	if !found {
		return bucket, "", bucket != ""
	}
	if !strings.HasPrefix(object, "o/") {
		return "", "", false
	}
	key = strings.TrimPrefix(object, "o/")
	return bucket, key, bucket != "" && key != ""
}
