package qr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// Uploader publishes a rendered PNG and returns its public URL.
type Uploader interface {
	UploadPNG(ctx context.Context, data []byte, name string) (string, error)
}

// Renderer writes QR PNGs for session redemption links into Dir.
type Renderer struct {
	Dir        string
	PublicPath string // URL prefix Dir is served under, e.g. "/qrcodes"
	Size       int
	Level      qrcode.RecoveryLevel
	Uploader   Uploader
	Log        *zap.Logger

	encode func(content string, level qrcode.RecoveryLevel, size int) ([]byte, error)
}

// NewRenderer creates Dir if needed.
func NewRenderer(dir, publicPath string, size int, uploader Uploader, log *zap.Logger) (*Renderer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	if size <= 0 {
		size = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{
		Dir:        dir,
		PublicPath: publicPath,
		Size:       size,
		Level:      qrcode.Medium,
		Uploader:   uploader,
		Log:        log,
		encode:     qrcode.Encode,
	}, nil
}

// FileName is the artifact name for a session.
func FileName(sessionID int64) string {
	return "session_" + strconv.FormatInt(sessionID, 10) + ".png"
}

// Encode renders url, stores the PNG and returns where it can be fetched.
// With an Uploader configured the CDN URL wins; the local copy is kept
// either way so the janitor owns its lifetime.
func (r *Renderer) Encode(ctx context.Context, sessionID int64, url string) (string, error) {
	png, err := r.encode(url, r.Level, r.Size)
	if err != nil {
		return "", fmt.Errorf("render qr: %w", err)
	}

	name := FileName(sessionID)
	if err := writeAtomic(r.Dir, name, png); err != nil {
		return "", err
	}

	if r.Uploader != nil {
		secure, err := r.Uploader.UploadPNG(ctx, png, name)
		if err == nil {
			return secure, nil
		}
		r.Log.Warn("artifact upload failed, serving local copy", zap.String("name", name), zap.Error(err))
	}
	return r.PublicPath + "/" + name, nil
}

// writeAtomic writes via a temp file and rename so a concurrent janitor
// never sees a partial .png.
func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("publish artifact: %w", err)
	}
	return nil
}
