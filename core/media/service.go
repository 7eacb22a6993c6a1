package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/user"
)

// Categories
const (
	CategoryCourseThumbnail = "course-thumbnails"
	CategoryAvatar          = "avatars"
)

var (
	allowedExts = map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".webp": "image/webp",
		".gif":  "image/gif",
	}

	// errors
	ErrNotAnImage  = core.NewValidationError(nil, core.FieldError{Field: "image", Error: "only jpg, jpeg, png, webp and gif images are allowed"})
	ErrNoFile      = core.NewValidationError(nil, core.FieldError{Field: "image", Error: "this field is required"})
	ErrNotUploader = core.NewPermissionError("Not authorized to delete this image")
	ErrInvalidKey  = core.NewValidationError(nil, core.FieldError{Field: "key", Error: "invalid key"})
)

type (
	// Storage is an object store serving public files.
	Storage interface {
		Upload(ctx context.Context, key string, r io.Reader, contentType string) error
		Delete(ctx context.Context, key string) error
		PublicURL(key string) string
	}

	Object struct {
		URL string `json:"url"`
		Key string `json:"key"`
	}

	File struct {
		Name string
		Size int64
		Body io.Reader
	}

	Service interface {
		// UploadImage checks and stores an image under {category}/{userID}/{uuid}{ext}.
		UploadImage(ctx context.Context, category, userID string, f File) (Object, error)
		// Delete removes an object. An empty key is a no-op.
		Delete(ctx context.Context, key string) error
		// CanDelete reports whether usr may delete the object at key.
		CanDelete(usr user.User, key string) bool
	}

	service struct {
		storage Storage
		maxSize int64
	}
)

var _ Service = (*service)(nil)

func NewService(storage Storage, conf *core.Config) Service {
	return &service{storage: storage, maxSize: conf.Storage.MaxImageSize}
}

func (svc *service) tooLarge() error {
	return core.NewValidationError(nil, core.FieldError{
		Field: "image",
		Error: fmt.Sprintf("image must not exceed %dMB", svc.maxSize>>20),
	})
}

func (svc *service) UploadImage(ctx context.Context, category, userID string, f File) (Object, error) {
	if f.Body == nil {
		return Object{}, ErrNoFile
	}
	if f.Size > svc.maxSize {
		return Object{}, svc.tooLarge()
	}
	ext := strings.ToLower(path.Ext(f.Name))
	contentType, ok := allowedExts[ext]
	if !ok {
		return Object{}, ErrNotAnImage
	}

	// the extension must match the content
	head := make([]byte, 512)
	n, err := io.ReadFull(f.Body, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Object{}, errors.Wrap(err, "reading image")
	}
	head = head[:n]
	if sniffed := http.DetectContentType(head); sniffed != contentType {
		return Object{}, ErrNotAnImage
	}

	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), f.Body), svc.maxSize+1)
	buf := new(bytes.Buffer)
	if _, err = io.Copy(buf, body); err != nil {
		return Object{}, errors.Wrap(err, "reading image")
	}
	if int64(buf.Len()) > svc.maxSize {
		return Object{}, svc.tooLarge()
	}

	key := path.Join(category, userID, uuid.New().String()+ext)
	if err = svc.storage.Upload(ctx, key, buf, contentType); err != nil {
		return Object{}, err
	}
	return Object{URL: svc.storage.PublicURL(key), Key: key}, nil
}

func (svc *service) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	return svc.storage.Delete(ctx, key)
}

func (svc *service) CanDelete(usr user.User, key string) bool {
	if usr.IsAdmin() {
		return true
	}
	parts := strings.Split(key, "/")
	return len(parts) == 3 && parts[1] == usr.ID
}
