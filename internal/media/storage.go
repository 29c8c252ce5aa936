package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Uploader stores release evidence. Uploading the same key twice overwrites
// the first object, so a failed release can be retried safely.
type Uploader interface {
	Upload(ctx context.Context, key string, content io.Reader) (string, error)
}

// LocalStorage keeps uploads on the local filesystem and serves them under baseURL.
type LocalStorage struct {
	baseDir string
	baseURL string
	logger  *zap.Logger
}

func NewLocalStorage(baseDir, baseURL string, logger *zap.Logger) *LocalStorage {
	return &LocalStorage{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Upload writes content to baseDir/key and returns its public URL.
func (s *LocalStorage) Upload(ctx context.Context, key string, content io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := s.ValidatePath(fullPath); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		s.logger.Error("Failed to create upload directory",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	// Write to a temp file first so a partial upload never replaces a good one.
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	written, err := io.Copy(tmp, content)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		s.logger.Error("Failed to write upload",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to store file: %w", err)
	}

	s.logger.Debug("Upload stored",
		zap.String("path", fullPath),
		zap.Int64("size", written))

	return s.baseURL + "/" + path.Clean(key), nil
}

// ValidatePath checks that the path stays inside baseDir.
func (s *LocalStorage) ValidatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s", fullPath)
	}
	return nil
}

// Key builds the object key for a piece of evidence. Extensions outside the
// allowed image types fall back to .png.
func Key(folder, owner, name, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
	default:
		ext = ".png"
	}
	return path.Join(folder, owner, name+ext)
}
