package storagesvc

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/media"
)

func TestDiskStorage(t *testing.T) {
	conf := &core.Config{WorkDir: t.TempDir()}
	conf.Storage.DiskRoot = "media"
	conf.Storage.PublicBaseURL = "http://localhost:8000/media/"

	s, err := NewDiskStorage(conf)
	require.NoError(t, err)
	root := filepath.Join(conf.WorkDir, "media")
	assert.Equal(t, root, s.(*diskStorage).Root())
	ctx := context.Background()

	key := "avatars/u1/pic.png"
	require.NoError(t, s.Upload(ctx, key, strings.NewReader("png"), "image/png"))
	data, err := os.ReadFile(filepath.Join(root, "avatars", "u1", "pic.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
	assert.Equal(t, "http://localhost:8000/media/avatars/u1/pic.png", s.PublicURL(key))

	assert.Equal(t, media.ErrInvalidKey, s.Upload(ctx, "../outside.png", strings.NewReader("x"), "image/png"))
	_, err = os.Stat(filepath.Join(conf.WorkDir, "outside.png"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, s.Delete(ctx, key))
	_, err = os.Stat(filepath.Join(root, "avatars", "u1", "pic.png"))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, s.Delete(ctx, key), "deleting a missing object is fine")
}

func TestDiskStorage_AbsoluteRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")
	conf := &core.Config{WorkDir: "/nowhere"}
	conf.Storage.DiskRoot = root

	s, err := NewDiskStorage(conf)
	require.NoError(t, err)
	assert.Equal(t, root, s.(*diskStorage).Root())
	fi, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestClientOptions(t *testing.T) {
	assert.Len(t, clientOptions(""), 1)
	assert.Len(t, clientOptions(` {"type":"service_account"}`), 2)
	assert.Len(t, clientOptions("/etc/gcs.json"), 2)
}
