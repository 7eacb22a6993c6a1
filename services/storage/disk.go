package storagesvc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/media"
)

// diskStorage keeps objects under a local directory served by the API at PublicBaseURL.
type diskStorage struct {
	root    string
	baseURL string
}

var _ media.Storage = (*diskStorage)(nil)

func NewDiskStorage(conf *core.Config) (media.Storage, error) {
	root := conf.Storage.DiskRoot
	if !filepath.IsAbs(root) {
		root = filepath.Join(conf.WorkDir, root)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating storage root")
	}
	return &diskStorage{root: root, baseURL: strings.TrimRight(conf.Storage.PublicBaseURL, "/")}, nil
}

// Root is the directory the files live in.
func (s *diskStorage) Root() string { return s.root }

func (s *diskStorage) path(key string) (string, error) {
	fp := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(fp, s.root+string(filepath.Separator)) {
		return "", media.ErrInvalidKey
	}
	return fp, nil
}

func (s *diskStorage) Upload(_ context.Context, key string, r io.Reader, _ string) error {
	fp, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return errors.Wrap(err, "creating object dir")
	}

	f, err := os.Create(fp)
	if err != nil {
		return errors.Wrap(err, "creating object")
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(fp)
		return errors.Wrap(err, "writing object")
	}
	return errors.Wrap(f.Close(), "closing object")
}

func (s *diskStorage) Delete(_ context.Context, key string) error {
	fp, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.Remove(fp); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "deleting object")
	}
	return nil
}

func (s *diskStorage) PublicURL(key string) string {
	return s.baseURL + "/" + key
}
