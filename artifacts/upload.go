package artifacts

import (
	"context"
	"fmt"
	"time"
)

// Uploader is the part of the object store Upload needs.
type Uploader interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Upload stores each artifact under its file name and presigns a link to it.
// It stops at the first failure.
func Upload(ctx context.Context, store Uploader, ttl time.Duration, artifacts ...Artifact) ([]Uploaded, error) {
	uploaded := make([]Uploaded, 0, len(artifacts))
	for _, a := range artifacts {
		if err := store.Put(ctx, a.FileName, a.Content, a.ContentType); err != nil {
			return nil, fmt.Errorf("upload %s: %w", a.FileName, err)
		}
		url, err := store.Presign(ctx, a.FileName, ttl)
		if err != nil {
			return nil, fmt.Errorf("presign %s: %w", a.FileName, err)
		}
		uploaded = append(uploaded, Uploaded{
			FileName:       a.FileName,
			URL:            url,
			RawScanResults: a.RawScanResult,
		})
	}
	return uploaded, nil
}

// RawScanKey returns the file name of the first raw scan result in uploaded.
func RawScanKey(uploaded []Uploaded) (string, bool) {
	for _, u := range uploaded {
		if u.RawScanResults {
			return u.FileName, true
		}
	}
	return "", false
}
