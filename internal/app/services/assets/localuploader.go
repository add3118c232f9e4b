package assets

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Raunak-cloud/pocket-dev/pkg/logger"
)

// LocalUploader stores uploaded images on the local filesystem and serves
// them under a public URL prefix. Suitable for single-node deployments and
// development.
type LocalUploader struct {
	dir       string
	publicURL string
	log       *logger.Logger
}

var _ Uploader = (*LocalUploader)(nil)

// NewLocalUploader creates the target directory when missing.
func NewLocalUploader(dir, publicURL string, log *logger.Logger) (*LocalUploader, error) {
	if log == nil {
		log = logger.NewDefault("uploads")
	}
	if dir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &LocalUploader{dir: dir, publicURL: strings.TrimRight(publicURL, "/"), log: log}, nil
}

// Upload writes the content under a random name, keeping the original
// extension, and returns the public URL.
func (u *LocalUploader) Upload(_ context.Context, name string, content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("upload is empty")
	}
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".avif":
	default:
		return "", fmt.Errorf("unsupported image type %q", ext)
	}

	filename := uuid.New().String() + ext
	target := filepath.Join(u.dir, filename)
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	u.log.Debugf("stored upload %s (%d bytes)", filename, len(content))
	return u.publicURL + "/" + path.Base(filename), nil
}

// Dir returns the storage directory, for wiring a static file handler.
func (u *LocalUploader) Dir() string { return u.dir }
