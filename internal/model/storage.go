package model

import (
	"context"
	"io"
)

// Storage is an object store used to archive raw payloads.
type Storage interface {
	Upload(ctx context.Context, key string, reader io.Reader) error
	Exists(ctx context.Context, key string) (bool, error)
}
