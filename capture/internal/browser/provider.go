// CLAUDE:SUMMARY Binary providers: bundled brotli-packed Chromium for serverless hosts, PATH/managed download for local dev.
package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/go-rod/rod/lib/launcher"
)

// Defaults for BundledProvider.
const (
	DefaultBundleDir  = "/opt/chromium"
	DefaultUnpackDir  = "/tmp/chromium"
	defaultMaxUnpack  = 512 << 20
	bundledBinaryName = "chromium"
	bundledArchive    = "chromium.br"
)

// BundledProvider serves the minimal Chromium shipped alongside a function.
// The binary is either present as-is under Dir or packed as chromium.br, in
// which case it is decompressed once into UnpackDir.
type BundledProvider struct {
	Dir       string
	UnpackDir string
	// MaxSize caps the decompressed binary. Default: 512MB.
	MaxSize int64
	Logger  *slog.Logger

	mu sync.Mutex
}

// ExecutablePath returns a runnable Chromium path, unpacking if needed.
func (p *BundledProvider) ExecutablePath(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dir := p.Dir
	if dir == "" {
		dir = DefaultBundleDir
	}
	unpackDir := p.UnpackDir
	if unpackDir == "" {
		unpackDir = DefaultUnpackDir
	}
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}

	direct := filepath.Join(dir, bundledBinaryName)
	if isExecutable(direct) {
		return direct, nil
	}

	unpacked := filepath.Join(unpackDir, bundledBinaryName)
	if isExecutable(unpacked) {
		return unpacked, nil
	}

	archive := filepath.Join(dir, bundledArchive)
	if _, err := os.Stat(archive); err != nil {
		return "", fmt.Errorf("%w: no %s or %s", ErrBinaryNotFound, direct, archive)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	limit := p.MaxSize
	if limit <= 0 {
		limit = defaultMaxUnpack
	}
	n, err := unpackBrotli(archive, unpacked, limit)
	if err != nil {
		return "", fmt.Errorf("browser: unpack %s: %w", archive, err)
	}
	log.Info("browser: unpacked bundled chromium", "path", unpacked, "bytes", n)
	return unpacked, nil
}

func unpackBrotli(src, dst string, limit int64) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".chromium-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(brotli.NewReader(in), limit+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if n > limit {
		return 0, fmt.Errorf("decompressed binary exceeds %d bytes", limit)
	}
	if n == 0 {
		return 0, fmt.Errorf("empty archive")
	}
	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, err
	}
	return n, nil
}

func isExecutable(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular() && fi.Mode().Perm()&0o111 != 0
}

// LocalProvider finds a Chrome installation on a development machine:
// an explicit Path, then the well-known locations Rod knows about, then
// (if AllowDownload) Rod's managed Chromium download.
type LocalProvider struct {
	Path          string
	AllowDownload bool
	Logger        *slog.Logger

	lookPath func() (string, bool)
	download func(ctx context.Context) (string, error)
}

// ExecutablePath implements BinaryProvider.
func (p *LocalProvider) ExecutablePath(ctx context.Context) (string, error) {
	if p.Path != "" {
		if isExecutable(p.Path) {
			return p.Path, nil
		}
		return "", fmt.Errorf("%w: %s is not executable", ErrBinaryNotFound, p.Path)
	}

	lookPath := p.lookPath
	if lookPath == nil {
		lookPath = launcher.LookPath
	}
	if path, ok := lookPath(); ok {
		return path, nil
	}

	if !p.AllowDownload {
		return "", fmt.Errorf("%w: no local chrome and download disabled", ErrBinaryNotFound)
	}

	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	download := p.download
	if download == nil {
		download = rodDownload
	}
	log.Info("browser: downloading managed chromium")
	path, err := download(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: download: %v", ErrBinaryNotFound, err)
	}
	return path, nil
}

func rodDownload(ctx context.Context) (string, error) {
	b := launcher.NewBrowser()
	b.Context = ctx
	return b.Get()
}
