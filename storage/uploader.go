package storage

import (
	"context"
	"io"
)

const ContentTypeJSON = "application/json"

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// FileUploader stores public objects such as published leaderboard snapshots.
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)

	Delete(ctx context.Context, key string) error

	GetPublicURL(key string) string
}
