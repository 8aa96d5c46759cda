package browser

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/andybalholm/brotli"
)

func writeBrotli(t *testing.T, path string, data []byte) {
	t.Helper()
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBundledProvider_Direct(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "chromium")
	os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755)

	p := &BundledProvider{Dir: dir, UnpackDir: t.TempDir()}
	got, err := p.ExecutablePath(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != bin {
		t.Errorf("path = %q, want %q", got, bin)
	}
}

func TestBundledProvider_Unpack(t *testing.T) {
	dir := t.TempDir()
	unpackDir := filepath.Join(t.TempDir(), "chromium")
	payload := bytes.Repeat([]byte("ELF"), 4096)
	writeBrotli(t, filepath.Join(dir, "chromium.br"), payload)

	p := &BundledProvider{Dir: dir, UnpackDir: unpackDir}
	got, err := p.ExecutablePath(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(unpackDir, "chromium") {
		t.Errorf("path = %q", got)
	}
	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("unpacked binary differs from payload")
	}
	if !isExecutable(got) {
		t.Error("unpacked binary is not executable")
	}

	// Second call reuses the unpacked binary even if the archive is gone.
	os.Remove(filepath.Join(dir, "chromium.br"))
	again, err := p.ExecutablePath(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if again != got {
		t.Errorf("second call: %q, want %q", again, got)
	}
}

func TestBundledProvider_TooLarge(t *testing.T) {
	dir := t.TempDir()
	writeBrotli(t, filepath.Join(dir, "chromium.br"), bytes.Repeat([]byte("x"), 1024))

	p := &BundledProvider{Dir: dir, UnpackDir: t.TempDir(), MaxSize: 100}
	if _, err := p.ExecutablePath(context.Background()); err == nil {
		t.Fatal("expected size limit error")
	}
}

func TestBundledProvider_Missing(t *testing.T) {
	p := &BundledProvider{Dir: t.TempDir(), UnpackDir: t.TempDir()}
	_, err := p.ExecutablePath(context.Background())
	if !errors.Is(err, ErrBinaryNotFound) {
		t.Fatalf("err = %v, want ErrBinaryNotFound", err)
	}
}

func TestLocalProvider_ExplicitPath(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "chrome")
	os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755)

	p := &LocalProvider{Path: bin}
	got, err := p.ExecutablePath(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != bin {
		t.Errorf("path = %q", got)
	}

	p = &LocalProvider{Path: filepath.Join(t.TempDir(), "nope")}
	if _, err := p.ExecutablePath(context.Background()); !errors.Is(err, ErrBinaryNotFound) {
		t.Fatalf("err = %v, want ErrBinaryNotFound", err)
	}
}

func TestLocalProvider_LookPathThenDownload(t *testing.T) {
	p := &LocalProvider{
		lookPath: func() (string, bool) { return "/usr/bin/google-chrome", true },
		download: func(context.Context) (string, error) { t.Fatal("download must not run"); return "", nil },
	}
	got, err := p.ExecutablePath(context.Background())
	if err != nil || got != "/usr/bin/google-chrome" {
		t.Fatalf("got %q, %v", got, err)
	}

	downloads := 0
	p = &LocalProvider{
		AllowDownload: true,
		lookPath:      func() (string, bool) { return "", false },
		download: func(context.Context) (string, error) {
			downloads++
			return "/home/u/.cache/rod/browser/chrome", nil
		},
	}
	got, err = p.ExecutablePath(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if downloads != 1 || got != "/home/u/.cache/rod/browser/chrome" {
		t.Errorf("downloads=%d path=%q", downloads, got)
	}
}

func TestLocalProvider_NoDownload(t *testing.T) {
	p := &LocalProvider{lookPath: func() (string, bool) { return "", false }}
	if _, err := p.ExecutablePath(context.Background()); !errors.Is(err, ErrBinaryNotFound) {
		t.Fatalf("err = %v, want ErrBinaryNotFound", err)
	}
}

func TestLocalProvider_DownloadFails(t *testing.T) {
	p := &LocalProvider{
		AllowDownload: true,
		lookPath:      func() (string, bool) { return "", false },
		download:      func(context.Context) (string, error) { return "", errors.New("offline") },
	}
	if _, err := p.ExecutablePath(context.Background()); !errors.Is(err, ErrBinaryNotFound) {
		t.Fatalf("err = %v, want ErrBinaryNotFound", err)
	}
}
