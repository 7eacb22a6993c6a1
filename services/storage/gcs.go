package storagesvc

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/media"
)

const (
	uploadTimeout = 2 * time.Minute
	deleteTimeout = 30 * time.Second
)

type gcsStorage struct {
	client    *storage.Client
	bucket    string
	cdnDomain string
}

var _ media.Storage = (*gcsStorage)(nil)

// clientOptions reads GCSCredentials as inline JSON or as a file path. Empty means application default credentials.
func clientOptions(creds string) []option.ClientOption {
	creds = strings.TrimSpace(creds)
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	switch {
	case creds == "":
	case strings.HasPrefix(creds, "{"):
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	default:
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	return opts
}

func NewGCSStorage(ctx context.Context, conf *core.Config) (media.Storage, error) {
	err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(conf.Storage.GCSBucket, "GCSBucket"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "configuring gcs")
	}

	client, err := storage.NewClient(ctx, clientOptions(conf.Storage.GCSCredentials)...)
	if err != nil {
		return nil, errors.Wrap(err, "creating gcs client")
	}
	return &gcsStorage{
		client:    client,
		bucket:    conf.Storage.GCSBucket,
		cdnDomain: strings.TrimRight(conf.Storage.GCSCDNDomain, "/"),
	}, nil
}

func (s *gcsStorage) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "writing %s to gcs", key)
	}
	return errors.Wrapf(w.Close(), "closing gcs writer of %s", key)
}

func (s *gcsStorage) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()

	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err == storage.ErrObjectNotExist {
		return nil
	}
	return errors.Wrapf(err, "deleting gcs object %s", key)
}

func (s *gcsStorage) PublicURL(key string) string {
	if s.cdnDomain != "" {
		if !strings.Contains(s.cdnDomain, "://") {
			return fmt.Sprintf("https://%s/%s", s.cdnDomain, key)
		}
		return s.cdnDomain + "/" + key
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
}

// Close releases the gcs client.
func (s *gcsStorage) Close() error {
	return s.client.Close()
}
