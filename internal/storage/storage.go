package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ImageStore persists uploaded profile images and hands back a public path.
type ImageStore interface {
	Save(filename, contentType string, data []byte) (string, error)
	Remove(publicPath string)
}

var allowedImageTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/webp": "webp",
}

// LocalStore writes images under a content-hash directory inside the
// configured upload dir, served at /uploads/.
type LocalStore struct {
	Dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{Dir: abs}, nil
}

func (s *LocalStore) Save(filename, contentType string, data []byte) (string, error) {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return "", fmt.Errorf("unsupported image type %q", contentType)
	}
	if fromName := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."); fromName != "" {
		if _, known := map[string]bool{"png": true, "jpg": true, "jpeg": true, "webp": true}[fromName]; known {
			if fromName == "jpeg" {
				fromName = "jpg"
			}
			ext = fromName
		}
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	dir := filepath.Join(s.Dir, hash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := "profile." + ext
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("/uploads/%s/%s", hash, name), nil
}

// Remove deletes a previously saved image; unknown paths are ignored.
func (s *LocalStore) Remove(publicPath string) {
	if !strings.HasPrefix(publicPath, "/uploads/") {
		return
	}
	rel := strings.TrimPrefix(publicPath, "/uploads/")
	dir := filepath.Dir(rel)
	if dir == "." || dir == "/" || strings.Contains(dir, "..") {
		return
	}
	_ = os.RemoveAll(filepath.Join(s.Dir, dir))
}
