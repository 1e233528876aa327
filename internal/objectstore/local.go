package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MetaSuffix names the sidecar file holding an object's content type and
// metadata
const MetaSuffix = ".meta.json"

type objectMeta struct {
	ContentType string            `json:"contentType"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// LocalStore mirrors object keys as paths under a root directory
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) Put(ctx context.Context, obj Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.path(obj.Key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	meta, err := json.MarshalIndent(objectMeta{ContentType: obj.ContentType, Metadata: obj.Metadata}, "", "  ")
	if err != nil {
		return err
	}

	if err := writeFileAtomic(path, obj.Body); err != nil {
		return err
	}
	return writeFileAtomic(path+MetaSuffix, meta)
}

// Read returns a stored object, for inspection and tests
func (s *LocalStore) Read(key string) (Object, error) {
	path, err := s.path(key)
	if err != nil {
		return Object{}, err
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return Object{}, err
	}
	obj := Object{Key: key, Body: body}

	raw, err := os.ReadFile(path + MetaSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return obj, nil
		}
		return Object{}, err
	}
	var meta objectMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Object{}, err
	}
	obj.ContentType = meta.ContentType
	obj.Metadata = meta.Metadata
	return obj, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *LocalStore) Close() error { return nil }
