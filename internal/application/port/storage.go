package port

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by FileStorage.Read when nothing is stored under the key
var ErrObjectNotFound = errors.New("object not found")

// FileStorage stores rendition files under relative object keys
type FileStorage interface {
	Save(ctx context.Context, key string, content []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) bool
	Delete(ctx context.Context, key string) error
}
