package storage

import (
	"context"
	"io"
	"time"
)

// Uploader persists assembled interview media. Upload returns the stored path
// recorded on the attempt row.
type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}

// Signer mints short-lived playback URLs for stored media. Backends without
// signing (local disk) simply don't implement it and reviewers get the stored
// path as-is.
type Signer interface {
	SignedGetURL(ctx context.Context, objectName string, ttl time.Duration) (string, error)
}
