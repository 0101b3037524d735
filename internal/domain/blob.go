package domain

import (
	"context"
	"io"
)

// BlobWriter stores closed journal segments in object storage under key.
type BlobWriter interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}
