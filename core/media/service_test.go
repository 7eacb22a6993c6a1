package media

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/user"
)

type memStorage struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (s *memStorage) Upload(_ context.Context, key string, r io.Reader, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

func (s *memStorage) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

func (s *memStorage) PublicURL(key string) string { return "https://cdn.test/" + key }

var (
	pngHead = []byte("\x89PNG\r\n\x1a\n")
	gifHead = []byte("GIF89a")
)

func newFile(name string, content []byte) File {
	return File{Name: name, Size: int64(len(content)), Body: bytes.NewReader(content)}
}

func TestService_UploadImage(t *testing.T) {
	conf := &core.Config{}
	conf.Storage.MaxImageSize = 1 << 20
	storage := newMemStorage()
	svc := NewService(storage, conf)
	ctx := context.Background()

	png := append(append([]byte{}, pngHead...), make([]byte, 100)...)
	tests := []struct {
		name    string
		file    File
		wantErr error
	}{
		{name: "no file", file: File{Name: "a.png"}, wantErr: ErrNoFile},
		{name: "bad extension", file: newFile("a.bmp", png), wantErr: ErrNotAnImage},
		{name: "no extension", file: newFile("a", png), wantErr: ErrNotAnImage},
		{name: "extension mismatch", file: newFile("a.gif", png), wantErr: ErrNotAnImage},
		{name: "text", file: newFile("a.png", []byte("hello")), wantErr: ErrNotAnImage},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UploadImage(ctx, CategoryAvatar, "u1", tt.file)
			assert.Equal(t, tt.wantErr, err)
		})
	}

	t.Run("too large", func(t *testing.T) {
		big := append(append([]byte{}, pngHead...), make([]byte, 2<<20)...)
		_, err := svc.UploadImage(ctx, CategoryAvatar, "u1", newFile("a.png", big))
		vErr, ok := err.(*core.ValidationError)
		require.True(t, ok, "error = %v", err)
		assert.Equal(t, "image must not exceed 1MB", vErr.Fields[0].Error)

		// a lying size is caught while reading
		lying := newFile("a.png", big)
		lying.Size = 10
		_, err = svc.UploadImage(ctx, CategoryAvatar, "u1", lying)
		assert.IsType(t, &core.ValidationError{}, err)
		assert.Empty(t, storage.objects)
	})

	t.Run("stored", func(t *testing.T) {
		obj, err := svc.UploadImage(ctx, CategoryCourseThumbnail, "u1", newFile("Cover.PNG", png))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(obj.Key, "course-thumbnails/u1/"), obj.Key)
		assert.True(t, strings.HasSuffix(obj.Key, ".png"), obj.Key)
		assert.Equal(t, "https://cdn.test/"+obj.Key, obj.URL)
		assert.Equal(t, png, storage.objects[obj.Key])
		assert.Equal(t, "image/png", storage.types[obj.Key])

		gif, err := svc.UploadImage(ctx, CategoryAvatar, "u1", newFile("me.gif", gifHead))
		require.NoError(t, err)
		assert.NotEqual(t, obj.Key, gif.Key)
		assert.Equal(t, "image/gif", storage.types[gif.Key])
	})
}

func TestService_Delete(t *testing.T) {
	storage := newMemStorage()
	svc := NewService(storage, &core.Config{})
	ctx := context.Background()
	storage.objects["avatars/u1/x.png"] = pngHead

	assert.NoError(t, svc.Delete(ctx, ""))
	assert.Equal(t, ErrInvalidKey, svc.Delete(ctx, "avatars/u1/../../etc/passwd"))
	assert.Equal(t, ErrInvalidKey, svc.Delete(ctx, "/etc/passwd"))
	assert.NoError(t, svc.Delete(ctx, "avatars/u1/x.png"))
	assert.Empty(t, storage.objects)
}

func TestService_CanDelete(t *testing.T) {
	svc := NewService(newMemStorage(), &core.Config{})
	owner := user.User{ID: "u1", Role: user.RoleStudent}
	other := user.User{ID: "u2", Role: user.RoleInstructor}
	admin := user.User{ID: "u3", Role: user.RoleAdmin}

	assert.True(t, svc.CanDelete(owner, "avatars/u1/x.png"))
	assert.False(t, svc.CanDelete(other, "avatars/u1/x.png"))
	assert.True(t, svc.CanDelete(admin, "avatars/u1/x.png"))
	assert.False(t, svc.CanDelete(owner, "u1/x.png"))
	assert.False(t, svc.CanDelete(owner, "avatars/u1/nested/x.png"))
}
