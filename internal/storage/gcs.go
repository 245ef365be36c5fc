package storage

import (
	"context"
	"io"
	"time"

	gcs "cloud.google.com/go/storage"
)

// GCSUploader stores assembled interview media in a private bucket. Recordings
// are never public; reviewers get short-lived signed URLs instead.
type GCSUploader struct {
	client *gcs.Client
	bucket string
}

func NewGCSUploader(ctx context.Context, bucket string) (*GCSUploader, error) {
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSUploader{client: c, bucket: bucket}, nil
}

func (u *GCSUploader) Close() error { return u.client.Close() }

// Upload writes the object and returns its name. The stored path, not a URL,
// goes into the attempt row; playback URLs are signed on read.
func (u *GCSUploader) Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (string, error) {
	obj := u.client.Bucket(u.bucket).Object(objectName)

	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return objectName, nil
}

func (u *GCSUploader) SignedGetURL(_ context.Context, objectName string, ttl time.Duration) (string, error) {
	return u.client.Bucket(u.bucket).SignedURL(objectName, &gcs.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(ttl),
		Scheme:  gcs.SigningSchemeV4,
	})
}
