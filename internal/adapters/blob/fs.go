package blob

import (
	"chainwatch/internal/ports"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FSStore keeps blobs as files under a root directory, with a ".meta"
// sidecar holding the content type.
type FSStore struct {
	root string
}

type fsMeta struct {
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
}

// NewFSStore returns a filesystem-backed blob store rooted at root, creating it if needed.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		root = "data/blobs"
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("new fs blob store: create root %q: %w", root, err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) Driver() string { return "fs" }

func (s *FSStore) pathFor(key string) (dataPath, metaPath string, err error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(s.root, filepath.FromSlash(k))
	return dataPath, dataPath + ".meta", nil
}

func (s *FSStore) Put(_ context.Context, key string, r io.Reader, contentType string) (ports.BlobInfo, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return ports.BlobInfo{}, fmt.Errorf("put blob: %w", err)
	}
	if _, err := os.Stat(dataPath); err == nil {
		return ports.BlobInfo{}, fmt.Errorf("blob %s already exists", key)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o750); err != nil {
		return ports.BlobInfo{}, fmt.Errorf("put blob %s: mkdir: %w", key, err)
	}

	// Stream to a temp file and rename so readers never see a partial blob.
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return ports.BlobInfo{}, fmt.Errorf("put blob %s: create temp: %w", key, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	size, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return ports.BlobInfo{}, fmt.Errorf("put blob %s: write: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return ports.BlobInfo{}, fmt.Errorf("put blob %s: close temp: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return ports.BlobInfo{}, fmt.Errorf("put blob %s: rename: %w", key, err)
	}

	meta, err := json.Marshal(fsMeta{ContentType: contentType, Size: size})
	if err != nil {
		return ports.BlobInfo{}, fmt.Errorf("put blob %s: marshal meta: %w", key, err)
	}
	if err := os.WriteFile(metaPath, meta, 0o640); err != nil {
		return ports.BlobInfo{}, fmt.Errorf("put blob %s: write meta: %w", key, err)
	}

	return ports.BlobInfo{Key: key, Size: size, ContentType: contentType, URL: "blob:fs/" + key}, nil
}

func (s *FSStore) Get(_ context.Context, key string) (ports.BlobInfo, io.ReadCloser, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return ports.BlobInfo{}, nil, fmt.Errorf("get blob: %w", err)
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return ports.BlobInfo{}, nil, fmt.Errorf("get blob %s: %w", key, err)
	}

	info := ports.BlobInfo{Key: key, URL: "blob:fs/" + key}
	if raw, err := os.ReadFile(metaPath); err == nil {
		var m fsMeta
		if json.Unmarshal(raw, &m) == nil {
			info.ContentType = m.ContentType
			info.Size = m.Size
		}
	}
	return info, f, nil
}

// Delete removes the blob and its sidecar, returning true if the blob existed.
func (s *FSStore) Delete(_ context.Context, key string) (bool, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return false, fmt.Errorf("delete blob: %w", err)
	}

	err = os.Remove(dataPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete blob %s: %w", key, err)
	}
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return true, fmt.Errorf("delete blob %s: remove meta: %w", key, err)
	}
	return true, nil
}
