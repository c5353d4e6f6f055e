package utils

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestValidateFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		input       string
		wantErr     bool
		errContains string
	}{
		{name: "plain name", input: "viewer-settings.xml"},
		{name: "hidden file", input: ".viewer-settings.xml"},
		{name: "empty", input: "", wantErr: true, errContains: "cannot be empty"},
		{name: "blank", input: "   ", wantErr: true, errContains: "cannot be empty"},
		{name: "nested", input: "conf/viewer.xml", wantErr: true, errContains: "path separators"},
		{name: "windows nested", input: `conf\viewer.xml`, wantErr: true, errContains: "path separators"},
		{name: "parent", input: "..", wantErr: true, errContains: "traversal"},
		{name: "dot", input: ".", wantErr: true, errContains: "traversal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFileName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateFileName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error %q does not contain %q", err, tt.errContains)
			}
		})
	}
}

func TestSecureJoin(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("POSIX paths")
	}

	tests := []struct {
		name     string
		base     string
		elements []string
		want     string
		wantErr  bool
	}{
		{
			name:     "settings file in dataset",
			base:     "/data/dataset.n5",
			elements: []string{"viewer-settings.xml"},
			want:     "/data/dataset.n5/viewer-settings.xml",
		},
		{
			name:     "root base",
			base:     "/",
			elements: []string{"viewer-settings.xml"},
			want:     "/viewer-settings.xml",
		},
		{
			name:     "unclean base",
			base:     "/data//dataset.n5/",
			elements: []string{"a", "b.xml"},
			want:     "/data/dataset.n5/a/b.xml",
		},
		{
			name:     "escape",
			base:     "/data/dataset.n5",
			elements: []string{"..", "other", "x.xml"},
			wantErr:  true,
		},
		{
			name:    "empty base",
			base:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SecureJoin(tt.base, tt.elements...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SecureJoin() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != filepath.FromSlash(tt.want) {
				t.Errorf("SecureJoin() = %q, want %q", got, tt.want)
			}
		})
	}
}
