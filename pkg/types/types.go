package types

import (
	"fmt"
	"net/url"
	"strings"
)

// Scheme identifies the storage backend family of a resource.
type Scheme string

const (
	SchemeFile   Scheme = "file"
	SchemeS3     Scheme = "s3"
	SchemeGCS    Scheme = "gs"
	SchemeMemory Scheme = "mem"
)

// ResourceIdentity locates a settings resource. Two coordinators refer to the
// same resource for locking purposes when their identities are equal.
//
// Filesystem resources use Key for the absolute path and leave Bucket empty.
type ResourceIdentity struct {
	Scheme Scheme `json:"scheme" yaml:"scheme"`
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Key    string `json:"key" yaml:"key"`
}

// FileIdentity returns the identity of a local file.
func FileIdentity(absPath string) ResourceIdentity {
	return ResourceIdentity{Scheme: SchemeFile, Key: absPath}
}

// ObjectIdentity returns the identity of an object in a bucket.
func ObjectIdentity(scheme Scheme, bucket, key string) ResourceIdentity {
	return ResourceIdentity{Scheme: scheme, Bucket: bucket, Key: strings.TrimPrefix(key, "/")}
}

// String renders the identity as a URI.
func (r ResourceIdentity) String() string {
	if r.Scheme == SchemeFile {
		u := url.URL{Scheme: string(SchemeFile), Path: r.Key}
		return u.String()
	}
	return fmt.Sprintf("%s://%s/%s", r.Scheme, r.Bucket, r.Key)
}

// IsZero reports whether the identity is unset.
func (r ResourceIdentity) IsZero() bool {
	return r == ResourceIdentity{}
}

// InitResult is the outcome of initializing a coordinator.
type InitResult int

const (
	// Loaded means an existing blob was applied and the resource is writable.
	Loaded InitResult = iota + 1
	// NotLoaded means the resource is fresh and writable.
	NotLoaded
	// LoadedReadOnly means an existing blob was applied; writes are disabled.
	LoadedReadOnly
	// NotLoadedReadOnly means nothing was loaded and writes are disabled.
	NotLoadedReadOnly
	// Canceled means the caller declined the read-only fallback.
	Canceled
)

// String returns the result's name.
func (r InitResult) String() string {
	switch r {
	case Loaded:
		return "LOADED"
	case NotLoaded:
		return "NOT_LOADED"
	case LoadedReadOnly:
		return "LOADED_READ_ONLY"
	case NotLoadedReadOnly:
		return "NOT_LOADED_READ_ONLY"
	case Canceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// ReadOnly reports whether writes are disabled for the session.
func (r InitResult) ReadOnly() bool {
	return r == LoadedReadOnly || r == NotLoadedReadOnly
}

// Loaded reports whether an existing blob was applied.
func (r InitResult) Loaded() bool {
	return r == Loaded || r == LoadedReadOnly
}

// Writable reports whether the session holds write access.
func (r InitResult) Writable() bool {
	return r == Loaded || r == NotLoaded
}

// ReadOnlyVariant maps a load outcome to its read-only counterpart.
func ReadOnlyVariant(loaded bool) InitResult {
	if loaded {
		return LoadedReadOnly
	}
	return NotLoadedReadOnly
}

// PlaceholderHandle is the lock handle of backends that cannot lock. It proves
// only that the permission check passed.
type PlaceholderHandle struct {
	ID ResourceIdentity
}

// Identity implements LockHandle.
func (p PlaceholderHandle) Identity() ResourceIdentity { return p.ID }

// Exclusive implements LockHandle.
func (p PlaceholderHandle) Exclusive() bool { return false }
