package io

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/loader"
)

func TestIOFileLoader_GetFileText(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "paper.txt")
	if err := os.WriteFile(p, []byte("The sky is blue."), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	l := NewIOFileLoader()
	got, err := l.GetFileText(context.Background(), p)
	if err != nil {
		t.Fatalf("GetFileText() error = %v", err)
	}
	if string(got) != "The sky is blue." {
		t.Fatalf("GetFileText() = %q", got)
	}

	// served from cache after the file is gone
	if err := os.Remove(p); err != nil {
		t.Fatalf("remove file: %v", err)
	}
	if _, err := l.GetFileText(context.Background(), p); err != nil {
		t.Fatalf("expected cached content, got %v", err)
	}

	fileURL := "file://" + filepath.ToSlash(filepath.Join(dir, "missing.txt"))
	if _, err := l.GetFileText(context.Background(), fileURL); !errors.Is(err, common.ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestRootedIOFileLoader(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	if err := os.MkdirAll(filepath.Join(root, "papers"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "papers", "sky.txt"), []byte("The sky is blue."), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	secret := filepath.Join(outside, ".env")
	if err := os.WriteFile(secret, []byte("MISTRAL_API_KEY=secret"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := os.Symlink(secret, filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	l, err := NewRootedIOFileLoader(root)
	if err != nil {
		t.Fatalf("NewRootedIOFileLoader() error = %v", err)
	}

	tests := []struct {
		name    string
		source  string
		want    string
		wantErr error
	}{
		{name: "relative", source: "papers/sky.txt", want: "The sky is blue."},
		{name: "absolute inside root", source: filepath.Join(root, "papers", "sky.txt"), want: "The sky is blue."},
		{name: "file url inside root", source: "file://" + filepath.ToSlash(filepath.Join(root, "papers", "sky.txt")), want: "The sky is blue."},
		{name: "absolute outside root", source: secret, wantErr: common.ErrSourceForbidden},
		{name: "parent traversal", source: "papers/../../" + filepath.Base(outside) + "/.env", wantErr: common.ErrSourceForbidden},
		{name: "system file", source: "/etc/passwd", wantErr: common.ErrSourceForbidden},
		{name: "symlink escaping root", source: "link.txt", wantErr: common.ErrSourceForbidden},
		{name: "missing inside root", source: "papers/missing.txt", wantErr: common.ErrSourceNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := l.GetFileText(context.Background(), tc.source)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetFileText() error = %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("GetFileText() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewRootedIOFileLoader_InvalidRoot(t *testing.T) {
	for _, root := range []string{"", filepath.Join(t.TempDir(), "missing")} {
		if _, err := NewRootedIOFileLoader(root); !errors.Is(err, common.ErrInvalidConfiguration) {
			t.Fatalf("root %q: expected ErrInvalidConfiguration, got %v", root, err)
		}
	}
}

func TestIOFileLoader_CacheExpires(t *testing.T) {
	p := filepath.Join(t.TempDir(), "paper.txt")
	if err := os.WriteFile(p, []byte("first"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	l := NewIOFileLoader(loader.WithCache(loader.NewCache(4, 20*time.Millisecond)))
	if got, _ := l.GetFileText(context.Background(), p); string(got) != "first" {
		t.Fatalf("GetFileText() = %q", got)
	}
	if err := os.WriteFile(p, []byte("second"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if got, _ := l.GetFileText(context.Background(), p); string(got) != "second" {
		t.Fatalf("expected fresh content after ttl, got %q", got)
	}
}
